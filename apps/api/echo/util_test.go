package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/files"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
	"github.com/trezcool/iems/services/email"
	"github.com/trezcool/iems/services/logger"
	"github.com/trezcool/iems/services/notify"
	"github.com/trezcool/iems/services/storage"
	"github.com/trezcool/iems/storage/database/inmem"
	"github.com/trezcool/iems/testutil"
)

const testPassword = "s3cure-Passw0rd"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	conf    *core.Config
	srv     *Server
	db      *inmemdb.DB
	usrRepo user.Repository
	socRepo society.Repository
	evRepo  event.Repository
	usrSvc  *user.Service
	evSvc   *event.Service
	hub     *notifysvc.Hub
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Storage.Backend = "disk"
	conf.Storage.MediaRoot = t.TempDir()
	conf.Storage.MediaBaseURL = "http://localhost:8000/media"

	// set up DB & repos
	db := inmemdb.Open()
	env := &testEnv{
		conf:    conf,
		db:      db,
		usrRepo: inmemdb.NewUserRepository(db),
		socRepo: inmemdb.NewSocietyRepository(db),
		evRepo:  inmemdb.NewEventRepository(db),
		hub:     notifysvc.NewHub(),
	}
	t.Cleanup(env.hub.Close)

	// set up services
	logger := logsvc.New(io.Discard, "API : ", conf)
	emailsvc.ResetSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	env.usrSvc = user.NewService(env.usrRepo, mailSvc, env.hub, logger, conf)
	socSvc := society.NewService(db, env.socRepo, env.usrSvc, mailSvc, logger, conf)
	env.evSvc = event.NewService(
		db,
		env.evRepo,
		inmemdb.NewModuleRepository(db),
		inmemdb.NewSpeakerRepository(db),
		inmemdb.NewEngagementRepository(db),
		env.socRepo,
		logger,
		conf,
	)
	fileSvc := files.NewService(storagesvc.NewDiskStore(conf), logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up server
	env.srv = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    env.usrSvc,
		SocietySvc: socSvc,
		EventSvc:   env.evSvc,
		FileSvc:    fileSvc,
		Hub:        env.hub,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = env.srv.Shutdown(ctx)
	})
	return env
}

// fixtures

func (env *testEnv) createUser(t *testing.T, name, email string, level privilege.Level) user.User {
	return testutil.CreateUser(t, env.usrRepo, name, email, testPassword, level, true /* verified */)
}

func (env *testEnv) createAdmin(t *testing.T) user.User {
	return env.createUser(t, "Admin", "admin@iiitdwd.ac.in", privilege.Admin)
}

// createHead creates a society named socName headed by a new CEO.
func (env *testEnv) createHead(t *testing.T, socName, email string) (user.User, society.Society) {
	usr := env.createUser(t, "Head of "+socName, email, privilege.NormalUser)
	soc := testutil.CreateSociety(t, env.socRepo, socName, "")
	return testutil.MakeHead(t, env.usrRepo, env.socRepo, usr, soc, society.RoleCEO)
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	token, err := env.srv.auth.generateToken(env.srv.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.srv.ServeHTTP(rec, req)
}

// harness

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart request carrying a single `file` part.
func newUploadRequest(t *testing.T, path, token, filename, contentType string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}
	if _, err = part.Write(content); err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
