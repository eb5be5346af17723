package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoparadise/kido/apps/di"
	"github.com/kidoparadise/kido/core/booking"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/user"
	emailsvc "github.com/kidoparadise/kido/services/email"
	inmemdb "github.com/kidoparadise/kido/storage/database/inmem"
	"github.com/kidoparadise/kido/tests"
)

var (
	usrRepo     user.Repository
	catalogRepo catalog.Repository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := testutil.NewConfig()
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	catalogRepo = inmemdb.NewCatalogRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NopLogger{})
	catalogSvc := catalog.NewService(catalogRepo)

	var out bytes.Buffer
	return &commandLine{
		validate:   di.NewValidator(di.NewTranslator()),
		usrSvc:     user.NewService(usrRepo, mailSvc),
		catalogSvc: catalogSvc,
		bookingSvc: booking.NewService(inmemdb.NewBookingRepository(db), inmemdb.NewTransactor(db), catalogSvc, mailSvc, conf.Location()),
		out:        &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkRunErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if !strings.Contains(err.Error(), tt.wantErrStr) {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	t.Run("in-memory engine", func(t *testing.T) {
		assert.Equal(t, errNoSQLDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})

	cli.db = &sql.DB{} // never used by the mock
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_quizzes", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no name", args: []string{"adduser", "-email", "jo@test.cd"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "jo@test.cd", "-name", "Jo"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, wantErrStr: "flag provided but not defined: -lol"},
		{name: "invalid email", args: []string{"adduser", "-email", "lol", "-name", "Jo"}, extra: extra{pwd: "Str0ng!Pass"}, wantErrStr: "'email' tag"},
		{name: "weak password", args: []string{"adduser", "-email", "jo@test.cd", "-name", "Jo"}, extra: extra{pwd: "1234"}, wantErrStr: "password"},
		{name: "create", args: []string{"adduser", "-email", " Jo@Test.cd ", "-name", "Jo"}, extra: extra{pwd: "Str0ng!Pass"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(pwd)
			checkRunErr(t, tt, cli.run(args))
		})
	}

	usr, err := usrRepo.GetUserByEmail(ctx, "jo@test.cd")
	require.NoError(t, err)
	assert.Equal(t, "Jo", usr.Name)
	assert.Equal(t, user.RoleUser, usr.Role)
	assert.NoError(t, usr.CheckPassword("Str0ng!Pass"))

	t.Run("existing user is updated", func(t *testing.T) {
		out.Reset()
		mockPassword("An0ther!Pass")
		require.NoError(t, cli.run([]string{"admin", "adduser", "-email", "jo@test.cd", "-name", "Jo", "-admin"}))
		assert.Contains(t, out.String(), "updated user jo@test.cd (ADMIN)")

		updated, err := usrRepo.GetUserByEmail(ctx, "jo@test.cd")
		require.NoError(t, err)
		assert.Equal(t, usr.ID, updated.ID)
		assert.Equal(t, user.RoleAdmin, updated.Role)
		assert.NoError(t, updated.CheckPassword("An0ther!Pass"))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "awe@test.cd", "mdr", user.RoleUser)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: extra{pwd: "lol"}},
		{name: "reset with another case", args: []string{"resetpassword", "-email", "AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}

		t.Run(tt.name, func(t *testing.T) {
			mockPassword(pwd)
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUserByID(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
				if err = refreshedUsr.CheckPassword(pwd); err != nil {
					t.Errorf("CheckPassword(%s) failed, %v", pwd, err)
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_professionalsAndSlots(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "addprofessional: no name", args: []string{"addprofessional", "-specialty", "Pediatrics"}, wantErr: errHelp},
		{name: "addprofessional", args: []string{"addprofessional", "-name", " Dr Awa ", "-specialty", "Pediatrics"}},
		{name: "genslots: no args", args: []string{"genslots"}, wantErr: errHelp},
		{name: "genslots: no date", args: []string{"genslots", "-professional", "lol"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	pros, err := catalogRepo.QueryProfessionals(ctx)
	require.NoError(t, err)
	require.Len(t, pros, 1)
	assert.Equal(t, "Dr Awa", pros[0].Name)
	assert.Contains(t, out.String(), "created professional Dr Awa: "+pros[0].ID)

	t.Run("genslots", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "genslots", "-professional", pros[0].ID, "-date", "2030-01-07"}))
		assert.Equal(t, "18 slots available on 2030-01-07\n", out.String())
	})

	t.Run("genslots: invalid date", func(t *testing.T) {
		err := cli.run([]string{"admin", "genslots", "-professional", pros[0].ID, "-date", "07/01/2030"})
		assert.Error(t, err)
	})

	t.Run("genslots: unknown professional", func(t *testing.T) {
		err := cli.run([]string{"admin", "genslots", "-professional", "lol", "-date", "2030-01-07"})
		assert.Error(t, err)
	})
}
