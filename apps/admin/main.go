package main

import (
	"context"
	"os"

	"github.com/trezcool/iems/apps/shared"
	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/user"
	logsvc "github.com/trezcool/iems/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New(os.Stdout, "ADMIN : ", conf)

	// set up DB
	store, err := shared.OpenStore(context.Background(), conf, false /* migrate */)
	if err != nil {
		logger.Fatal("setting up database", err)
	}

	// set up services
	mailSvc := shared.NewMailService(conf, logger)
	usrSvc := user.NewService(store.Users, mailSvc, nil, logger, conf)
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

	// start CLI
	cli := commandLine{
		db:     store.DB,
		usrSvc: usrSvc,
		evSvc:  evSvc,
	}
	err = cli.run(os.Args)
	if err != nil && err != errHelp {
		logger.Error("command failed", err)
	}
	_ = store.Close()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
