package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/planner/core/user"
)

var errInvalidRole = errors.New("invalid role")

func parseClassIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing class ID %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (cli *commandLine) addUser(name, uname, email, role, classes, pwd string) error {
	r, ok := user.ParseRole(role)
	if !ok {
		return errInvalidRole
	}
	classIDs, err := parseClassIDs(classes)
	if err != nil {
		return err
	}

	usr, err := cli.usrSvc.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            r,
		ClassIDs:        classIDs,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s user %s (%s)\n", usr.Role, usr.Username, usr.ID)
	return nil
}
