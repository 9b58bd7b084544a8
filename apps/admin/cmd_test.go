package main

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/iems/apps/shared"
	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/event"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
	emailsvc "github.com/trezcool/iems/services/email"
	"github.com/trezcool/iems/testutil"
)

type cliEnv struct {
	cli   *commandLine
	store *shared.Store
}

func setup(t *testing.T) *cliEnv {
	t.Helper()
	conf := core.NewTestConfig()

	// set up DB & services
	store, err := shared.OpenStore(context.Background(), conf, false)
	require.NoError(t, err)
	usrSvc := user.NewService(store.Users, emailsvc.NewConsoleServiceMock(conf), nil, nil, conf)
	evSvc := event.NewService(store.Tx, store.Events, store.Modules, store.Speakers, store.Engagements, store.Societies, nil, conf)

	// start CLI
	return &cliEnv{
		cli:   &commandLine{usrSvc: usrSvc, evSvc: evSvc},
		store: store,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

// mockPassword makes the password prompt return pwd.
func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

func Test_commandLine_help(t *testing.T) {
	env := setup(t)
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "createadmin: no args", args: []string{"createadmin"}, wantErr: errHelp},
		{name: "createadmin: no email", args: []string{"createadmin", "-name", "Admin"}, wantErr: errHelp},
		{name: "resetpassword: no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "promote: no args", args: []string{"promote"}, wantErr: errHelp},
		{name: "migrate: no command", args: []string{"migrate"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, env.cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	env := setup(t)

	t.Run("in-memory store", func(t *testing.T) {
		err := env.cli.run([]string{"admin", "migrate", "up"})
		assert.Equal(t, errNoDatabase, err)
	})

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	env.cli.db = sqlx.NewDb(mockDB, "postgres")

	orig := runMigrationsFunc
	defer func() { runMigrationsFunc = orig }()
	var gotCommand string
	runMigrationsFunc = func(ctx context.Context, db *sqlx.DB, command string, args ...string) error {
		gotCommand = command
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
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_venues", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, env.cli.run(append([]string{"admin"}, tt.args...)))
			assert.Equal(t, tt.args[1], gotCommand)
		})
	}
}

func Test_commandLine_createAdmin(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	t.Run("empty password", func(t *testing.T) {
		mockPassword(t, "")
		err := env.cli.run([]string{"admin", "createadmin", "-name", "Admin", "-email", "admin@iiitdwd.ac.in"})
		assert.Equal(t, errHelp, err)
	})

	t.Run("create", func(t *testing.T) {
		mockPassword(t, "s3cure-Passw0rd")
		err := env.cli.run([]string{"admin", "createadmin", "-name", " Admin ", "-email", "Admin@IIITDWD.ac.in"})
		require.NoError(t, err)

		usr, err := env.store.Users.GetUserByEmail(ctx, "admin@iiitdwd.ac.in")
		require.NoError(t, err)
		assert.Equal(t, "Admin", usr.Name)
		assert.Equal(t, privilege.Admin, usr.Privilege)
		assert.True(t, usr.EmailVerified)
		assert.NoError(t, usr.CheckPassword("s3cure-Passw0rd"))
	})

	t.Run("duplicate email", func(t *testing.T) {
		mockPassword(t, "s3cure-Passw0rd")
		err := env.cli.run([]string{"admin", "createadmin", "-name", "Other", "-email", "admin@iiitdwd.ac.in"})
		assert.Equal(t, user.ErrEmailExists, err)
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.store.Users, "John Smith", "john@iiitdwd.ac.in", "old-Passw0rd", privilege.NormalUser, true)

	tests := []cliTest{
		{name: "email but no password", args: []string{"resetpassword", "-email", usr.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@iiitdwd.ac.in"}, extra: "n3w-Passw0rd", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: "n3w-Passw0rd"},
		{name: "reset with another case", args: []string{"resetpassword", "-email", "JOHN@iiitdwd.ac.in"}, extra: "n3w3r-Passw0rd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd, _ := tt.extra.(string)
			mockPassword(t, pwd)

			err := env.cli.run(append([]string{"admin"}, tt.args...))
			tt.check(t, err)
			if err == nil {
				refreshed, err := env.store.Users.GetUserByID(context.Background(), usr.ID)
				require.NoError(t, err)
				assert.NoError(t, refreshed.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_promote(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.store.Users, "John Smith", "john@iiitdwd.ac.in", "s3cure-Passw0rd", privilege.NormalUser, true)

	require.NoError(t, env.cli.run([]string{"admin", "promote", "-email", usr.Email}))
	got, err := env.store.Users.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, privilege.Admin, got.Privilege)

	require.NoError(t, env.cli.run([]string{"admin", "promote", "-email", usr.Email, "-revoke"}))
	got, err = env.store.Users.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, privilege.NormalUser, got.Privilege)

	err = env.cli.run([]string{"admin", "promote", "-email", "lol@iiitdwd.ac.in"})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func Test_commandLine_concludeEvents(t *testing.T) {
	env := setup(t)
	soc := testutil.CreateSociety(t, env.store.Societies, "Coding Club", "")
	now := time.Now()
	past := testutil.CreateEvent(t, env.store.Events, env.store.Societies, soc, "Hackathon", event.StatusPublished, now.Add(-48*time.Hour))
	upcoming := testutil.CreateEvent(t, env.store.Events, env.store.Societies, soc, "Meetup", event.StatusPublished, now.Add(48*time.Hour))

	require.NoError(t, env.cli.run([]string{"admin", "concludeevents"}))

	ctx := context.Background()
	got, err := env.store.Events.GetEvent(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusConcluded, got.Status)
	got, err = env.store.Events.GetEvent(ctx, upcoming.ID)
	require.NoError(t, err)
	assert.Equal(t, event.StatusPublished, got.Status)
}
