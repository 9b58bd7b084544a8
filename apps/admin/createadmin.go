package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) createAdmin(name, email, pwd string) error {
	usr, err := cli.usrSvc.CreateAdmin(context.Background(), name, email, pwd)
	if err != nil {
		return err
	}
	fmt.Printf("admin %s <%s> created\n", usr.Name, usr.Email)
	return nil
}

// promote grants admin privilege to the user with the given email, or revokes it.
func (cli *commandLine) promote(email string, admin bool) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr, err = cli.usrSvc.SetAdmin(ctx, usr.ID, admin); err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", usr.Email, usr.Privilege)
	return nil
}
