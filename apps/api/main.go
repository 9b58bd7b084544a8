package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/iems/apps/api/echo"
	"github.com/trezcool/iems/apps/shared"
	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/files"
	"github.com/trezcool/iems/core/society"
	"github.com/trezcool/iems/core/user"
	logsvc "github.com/trezcool/iems/services/logger"
	notifysvc "github.com/trezcool/iems/services/notify"
	schedulersvc "github.com/trezcool/iems/services/scheduler"
	storagesvc "github.com/trezcool/iems/services/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.New(os.Stdout, "API : ", conf)
	defer logger.Close()
	dbLogger := logsvc.New(os.Stdout, "DB : ", conf)

	// set up DB
	ctx := context.Background()
	store, err := shared.OpenStore(ctx, conf, true /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = store.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	objStore, err := storagesvc.New(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}

	// set up services
	hub := notifysvc.NewHub()
	defer hub.Close()

	mailSvc := shared.NewMailService(conf, logger)
	usrSvc := user.NewService(store.Users, mailSvc, hub, logger, conf)
	socSvc := society.NewService(store.Tx, store.Societies, usrSvc, mailSvc, logger, conf)
	evSvc := event.NewService(
		store.Tx,
		store.Events,
		store.Modules,
		store.Speakers,
		store.Engagements,
		store.Societies,
		logger,
		conf,
	)
	fileSvc := files.NewService(objStore, logger)

	scheduler, err := schedulersvc.New(conf, evSvc, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			UserSvc:    usrSvc,
			SocietySvc: socSvc,
			EventSvc:   evSvc,
			FileSvc:    fileSvc,
			Hub:        hub,
		},
	)

	go func() {
		server.Start()
	}()
	scheduler.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = scheduler.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop scheduler gracefully: %v", err), err)
		}

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
