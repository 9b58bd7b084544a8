package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/files"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
	notifysvc "github.com/trezcool/iems/services/notify"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		UserSvc    *user.Service
		SocietySvc *society.Service
		EventSvc   *event.Service
		FileSvc    *files.Service
		Hub        *notifysvc.Hub
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf, deps.UserSvc),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if prefix, ok := diskMediaPrefix(conf); ok {
		s.app.Static(prefix, conf.Storage.MediaRoot)
	}

	v1 := s.app.Group("/v1")
	registerUserAPI(v1, s.auth, s.deps)
	registerSocietyAPI(v1, s.auth, s.deps)
	registerEventAPI(v1, s.auth, s.deps)
	registerModuleAPI(v1, s.auth, s.deps)
	registerSpeakerAPI(v1, s.auth, s.deps)
	registerAdminAPI(v1, s.auth, s.deps)
}

// diskMediaPrefix is the URL path the disk store's files are served under.
func diskMediaPrefix(conf *core.Config) (string, bool) {
	if !(conf.Storage.Backend == "" || conf.Storage.Backend == "disk") || conf.Storage.MediaRoot == "" {
		return "", false
	}
	u, err := url.Parse(conf.Storage.MediaBaseURL)
	if err != nil {
		return "", false
	}
	prefix := "/" + strings.Trim(u.Path, "/")
	if prefix == "/" || strings.HasPrefix(prefix, "/v1") {
		return "", false
	}
	return prefix, true
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors receives the error the server stopped with.
func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives the OS signals, and the internal requests, to shut down.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
