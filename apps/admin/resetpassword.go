package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	usr, err := cli.usrSvc.SetPassword(context.Background(), email, pwd)
	if err != nil {
		return err
	}
	fmt.Printf("password of %s updated\n", usr.Email)
	return nil
}
