package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/storage/database"
)

var (
	runMigrationsFunc = database.RunMigrations // mockable

	errNoDatabase = errors.New("migrations need the postgres database (dbInMemory is set)")
)

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return runMigrationsFunc(context.Background(), cli.db, args[0], args[1:]...)
}

func (cli *commandLine) concludeEvents() error {
	n, err := cli.evSvc.ConcludePast(context.Background(), core.NowFunc())
	if err != nil {
		return err
	}
	fmt.Printf("%d event(s) concluded\n", n)
	return nil
}
