package main

import (
	"context"
	"errors"

	"github.com/trezcool/planner/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if tag := user.CheckPasswordPolicy(pwd, usr.Name, usr.Username, usr.Email); tag != "" {
		return errors.New(user.PasswordPolicyText(tag))
	}
	_, err = cli.usrSvc.SetPassword(ctx, usr.Username, pwd)
	return err
}
