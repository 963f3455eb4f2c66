package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/user"
	"github.com/trezcool/planner/storage/database/inmem"
	"github.com/trezcool/planner/tests"
)

const strongPwd = "Str0ng&Secret"

var usrRepo user.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	usrRepo = inmemdb.NewUserRepository(inmemdb.Open())
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)

	var out bytes.Buffer
	return &commandLine{usrSvc: user.NewService(usrRepo, validate), out: &out}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLI(t *testing.T, cli *commandLine, tt cliTest) {
	t.Helper()
	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	var ran []string
	gooseRunFunc = func(_ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "redo", "reset", "status", "version":
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, strings.TrimSpace(command+" "+strings.Join(args, " ")))
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, tt)
		})
	}
	assert.Equal(t, []string{"up", "up-to 2", "down", "status"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, out := setup(t)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "name but no username or email", args: []string{"adduser", "-name", "Ana"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-name", "Ana", "-username", "ana"}, wantErr: errHelp},
		{
			name: "invalid role", args: []string{"adduser", "-name", "Ana", "-username", "ana", "-role", "janitor"},
			extra: extra{pwd: strongPwd}, wantErr: errInvalidRole,
		},
		{
			name: "invalid class", args: []string{"adduser", "-name", "Ana", "-username", "ana", "-classes", "7,x"},
			extra: extra{pwd: strongPwd}, wantErrStr: `parsing class ID "x": strconv.ParseInt: parsing "x": invalid syntax`,
		},
		{
			name: "teacher", args: []string{"adduser", "-name", "Ana", "-username", "Anabela", "-email", "ana@test.cd", "-classes", "7, 8"},
			extra: extra{pwd: strongPwd},
		},
		{
			name: "admin", args: []string{"adduser", "-name", "Boss", "-email", "boss@test.cd", "-role", "GENERAL_ADMIN"},
			extra: extra{pwd: strongPwd},
		},
	}
	for _, tt := range tests {
		readPasswordFunc = func(int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, tt)
		})
	}

	ctx := context.Background()
	ana, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "anabela")
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, ana.Role)
	assert.Equal(t, []int64{7, 8}, ana.ClassIDs)
	assert.NoError(t, ana.CheckPassword(strongPwd))

	boss, err := cli.usrSvc.GetByUsernameOrEmail(ctx, "boss@test.cd")
	require.NoError(t, err)
	assert.Equal(t, user.RoleGeneralAdmin, boss.Role)
	assert.Contains(t, out.String(), "created general_admin user")
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", user.RoleTeacher, nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: strongPwd}, wantErr: user.ErrNotFound},
		{
			name: "weak password", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"},
			wantErrStr: "password must contain at least 8 characters",
		},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: strongPwd}},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: extra{pwd: "An0ther&Secret"}},
	}
	for _, tt := range tests {
		readPasswordFunc = func(int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}
		t.Run(tt.name, func(t *testing.T) {
			runCLI(t, cli, tt)
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("An0ther&Secret"))
}

func Test_commandLine_weeks(t *testing.T) {
	cli, out := setup(t)

	runCLI(t, cli, cliTest{args: []string{"weeks", "-year", "2025"}, wantErr: errHelp})
	runCLI(t, cli, cliTest{args: []string{"weeks", "-year", "2025", "-month", "13"}, wantErrStr: "invalid month"})

	out.Reset()
	runCLI(t, cli, cliTest{args: []string{"weeks", "-year", "2025", "-month", "5"}})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6) // header + W18..W22
	assert.True(t, strings.HasPrefix(lines[1], "2025-W18"), lines[1])
	assert.Contains(t, lines[1], "April")
	assert.True(t, strings.HasPrefix(lines[5], "2025-W22"), lines[5])
	assert.Contains(t, lines[5], "June")
}
