package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/privilege"
)

func (env *testEnv) createSpeaker(t *testing.T, name string) event.Speaker {
	spk, err := env.evSvc.CreateSpeaker(context.Background(), event.NewSpeaker{Name: name}, rootActor)
	if err != nil {
		t.Fatalf("createSpeaker() failed: %v", err)
	}
	return spk
}

func TestSpeakerApi_List(t *testing.T) {
	env := setup(t)
	ada := env.createSpeaker(t, "Ada Lovelace")
	alan := env.createSpeaker(t, "Alan Turing")
	grace := env.createSpeaker(t, "Grace Hopper")

	tests := []httpTest{
		{
			name:     "all",
			method:   http.MethodGet,
			path:     "/v1/speakers",
			wantCode: http.StatusOK,
			wantData: marchallList(t, ada, alan, grace),
		},
		{
			name:     "by ids",
			method:   http.MethodGet,
			path:     "/v1/speakers?id=" + grace.ID + "&id=" + ada.ID + "&id=unknown",
			wantCode: http.StatusOK,
			wantData: marchallList(t, grace, ada),
		},
		{
			name:     "retrieve",
			method:   http.MethodGet,
			path:     "/v1/speakers/" + alan.ID,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, alan),
		},
		{
			name:     "retrieve unknown",
			method:   http.MethodGet,
			path:     "/v1/speakers/unknown",
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"error": "speaker not found"}`),
		},
	}
	runHTTPTests(t, env, tests)
}

func TestSpeakerApi_Manage(t *testing.T) {
	env := setup(t)
	head, _ := env.createHead(t, "Coding Club", "head@iiitdwd.ac.in")
	usr := env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)
	headToken := env.token(t, head)

	runHTTPTests(t, env, []httpTest{
		{
			name:     "normal user creates",
			method:   http.MethodPost,
			path:     "/v1/speakers",
			body:     []byte(`{"name": "Ada Lovelace"}`),
			token:    env.token(t, usr),
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error": "permission denied"}`),
		},
		{
			name:     "invalid linkedin",
			method:   http.MethodPost,
			path:     "/v1/speakers",
			body:     []byte(`{"name": "Ada Lovelace", "linkedin": "ada"}`),
			token:    headToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"linkedin": "must be a valid http(s) URL"}`),
		},
	})

	var spk event.Speaker
	t.Run("create", func(t *testing.T) {
		body := []byte(`{"name": " Ada Lovelace ", "designation": "Countess", "linkedin": "https://linkedin.com/in/ada"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/speakers", headToken, body)
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		unmarshal(t, rec, &spk)
		assert.NotEmpty(t, spk.ID)
		assert.Equal(t, "Ada Lovelace", spk.Name)
		assert.Equal(t, "Countess", spk.Designation)
		assert.Equal(t, head.ID, spk.CreatedBy)
	})

	t.Run("update", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/speakers/"+spk.ID, headToken, []byte(`{"organization": "Analytical Engines"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got event.Speaker
		unmarshal(t, rec, &got)
		assert.Equal(t, "Analytical Engines", got.Organization)
		assert.Equal(t, spk.Name, got.Name)
	})

	t.Run("photo", func(t *testing.T) {
		path := "/v1/speakers/" + spk.ID + "/photo"
		req, rec := newUploadRequest(t, path, env.token(t, usr), "ada.png", "image/png", pngBytes)
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req, rec = newUploadRequest(t, path, headToken, "ada.png", "image/png", pngBytes)
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got event.Speaker
		unmarshal(t, rec, &got)
		assert.Equal(t, "http://localhost:8000/media/speakers/"+spk.ID+"/photos/ada.png", got.PhotoURL)
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/speakers/"+spk.ID, env.token(t, usr))
		env.serve(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/speakers/"+spk.ID, headToken)
		env.serve(req, rec)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		req, rec = newRequest(http.MethodGet, "/v1/speakers/"+spk.ID)
		env.serve(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
