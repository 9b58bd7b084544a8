package user_test

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
	"github.com/trezcool/iems/services/email"
	"github.com/trezcool/iems/storage/database/inmem"
	"github.com/trezcool/iems/testutil"
)

var linkRegex = regexp.MustCompile(`uid=([\w-]+)&token=([\w-]+)`)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []user.IdentityChange
}

func (p *recordingPublisher) Publish(change user.IdentityChange) {
	p.mu.Lock()
	p.changes = append(p.changes, change)
	p.mu.Unlock()
}

// failingRepo simulates an unavailable store.
type failingRepo struct {
	user.Repository
}

func (failingRepo) GetUserByID(context.Context, string, ...core.DBExecutor) (user.User, error) {
	return user.User{}, errors.New("store unavailable")
}

func setup(t *testing.T) (user.Repository, *user.Service, *recordingPublisher) {
	t.Helper()
	conf := core.NewTestConfig()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	pub := new(recordingPublisher)
	emailsvc.ResetSentMessages()
	svc := user.NewService(repo, emailsvc.NewConsoleServiceMock(conf), pub, nil, conf)
	return repo, svc, pub
}

// mailLink extracts the uid and token of the last link mailed to email.
func mailLink(t *testing.T, email string) (uid, token string) {
	t.Helper()
	msgs := emailsvc.SentTo(email)
	require.NotEmpty(t, msgs)
	m := linkRegex.FindStringSubmatch(msgs[len(msgs)-1].TextContent)
	require.Len(t, m, 3)
	return m[1], m[2]
}

func TestService_GetPrivilege(t *testing.T) {
	repo, svc, _ := setup(t)
	ctx := context.Background()

	head := testutil.CreateUser(t, repo, "Head", "head@iiitdwd.ac.in", "", privilege.NormalUser, true)
	socID, role := "coding-club", "CEO"
	require.NoError(t, repo.UpdatePrivilege(ctx, head.ID, privilege.SocietyHead, &socID, &role, core.NowFunc()))
	admin := testutil.CreateUser(t, repo, "Admin", "admin@iiitdwd.ac.in", "", privilege.Admin, true)
	unset := testutil.CreateUser(t, repo, "Unset", "unset@iiitdwd.ac.in", "", privilege.Unset, true)
	bogus := testutil.CreateUser(t, repo, "Bogus", "bogus@iiitdwd.ac.in", "", privilege.Level(7), true)

	tests := []struct {
		name string
		svc  *user.Service
		id   string
		want privilege.Level
	}{
		{"admin", svc, admin.ID, privilege.Admin},
		{"head", svc, head.ID, privilege.SocietyHead},
		{"absent user", svc, "nope", privilege.NormalUser},
		{"absent field", svc, unset.ID, privilege.NormalUser},
		{"unknown level", svc, bogus.ID, privilege.NormalUser},
		{"store error", user.NewService(failingRepo{repo}, nil, nil, nil, core.NewTestConfig()), admin.ID, privilege.NormalUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.svc.GetPrivilege(ctx, tt.id))
		})
	}

	assert.Equal(t, privilege.Actor{UserID: head.ID, Privilege: privilege.SocietyHead, SocietyID: socID}, svc.Actor(ctx, head.ID))
	assert.Equal(t, privilege.Actor{}, svc.Actor(ctx, ""))
}

func TestService_Register(t *testing.T) {
	repo, svc, pub := setup(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, user.NewUser{Name: "Jane", Email: "jane@gmail.com", Password: "s3cure-Passw0rd"})
	require.NoError(t, err)
	assert.Equal(t, privilege.NormalUser, usr.Privilege)
	assert.False(t, usr.EmailVerified)
	assert.NoError(t, usr.CheckPassword("s3cure-Passw0rd"))

	_, err = svc.Register(ctx, user.NewUser{Name: "Jane 2", Email: "jane@gmail.com", Password: "s3cure-Passw0rd"})
	require.Error(t, err)
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, user.ErrEmailExists, verr.Err)

	t.Run("verify email", func(t *testing.T) {
		uid, token := mailLink(t, "jane@gmail.com")

		_, err := svc.VerifyEmail(ctx, user.VerifyUserEmail{UID: uid, Token: token + "x"})
		require.Error(t, err)

		verified, err := svc.VerifyEmail(ctx, user.VerifyUserEmail{UID: uid, Token: token})
		require.NoError(t, err)
		assert.True(t, verified.EmailVerified)

		got, err := repo.GetUserByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.True(t, got.EmailVerified)

		require.NotEmpty(t, pub.changes)
		last := pub.changes[len(pub.changes)-1]
		assert.Equal(t, user.IdentityEmailVerified, last.Kind)
		assert.True(t, last.EmailVerified)

		err = svc.RequestEmailVerification(ctx, usr.ID)
		assert.IsType(t, &core.ValidationError{}, err)
	})
}

func TestService_PasswordReset(t *testing.T) {
	repo, svc, _ := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Jane", "jane@iiitdwd.ac.in", "old-Passw0rd", privilege.NormalUser, true)

	require.NoError(t, svc.RequestPasswordReset(ctx, "nobody@iiitdwd.ac.in"))
	assert.Empty(t, emailsvc.SentTo("nobody@iiitdwd.ac.in"))

	require.NoError(t, svc.RequestPasswordReset(ctx, " JANE@iiitdwd.ac.in"))
	uid, token := mailLink(t, usr.Email)

	err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: "not-a-uid!", Token: token, Password: "new-Passw0rd"})
	assert.IsType(t, &core.ValidationError{}, err)

	require.NoError(t, svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "new-Passw0rd"}))
	_, err = svc.Authenticate(ctx, usr.Email, "old-Passw0rd")
	assert.Equal(t, user.ErrInvalidCredentials, err)

	// single use: the password hash is part of the token
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "other-Passw0rd"})
	assert.IsType(t, &core.ValidationError{}, err)

	logged, err := svc.Authenticate(ctx, usr.Email, "new-Passw0rd")
	require.NoError(t, err)
	assert.NotNil(t, logged.LastLogin)
}

func TestService_Authenticate(t *testing.T) {
	repo, svc, _ := setup(t)
	ctx := context.Background()
	testutil.CreateUser(t, repo, "Jane", "jane@iiitdwd.ac.in", "Passw0rd!", privilege.NormalUser, true)

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{"unknown email", "john@iiitdwd.ac.in", "Passw0rd!", user.ErrInvalidCredentials},
		{"wrong password", "jane@iiitdwd.ac.in", "passw0rd!", user.ErrInvalidCredentials},
		{"success", "Jane@iiitdwd.ac.in", "Passw0rd!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.email, tt.pwd)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}
}

func TestService_SetAdmin(t *testing.T) {
	repo, svc, pub := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Jane", "jane@iiitdwd.ac.in", "", privilege.NormalUser, true)
	head := testutil.CreateUser(t, repo, "Head", "head@iiitdwd.ac.in", "", privilege.NormalUser, true)
	socID, role := "coding-club", "CEO"
	require.NoError(t, repo.UpdatePrivilege(ctx, head.ID, privilege.SocietyHead, &socID, &role, core.NowFunc()))

	promoted, err := svc.SetAdmin(ctx, usr.ID, true)
	require.NoError(t, err)
	assert.Equal(t, privilege.Admin, promoted.Privilege)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, privilege.Admin, pub.changes[0].Privilege)

	demoted, err := svc.SetAdmin(ctx, usr.ID, false)
	require.NoError(t, err)
	assert.Equal(t, privilege.NormalUser, demoted.Privilege)

	_, err = svc.SetAdmin(ctx, head.ID, true)
	assert.IsType(t, &core.ValidationError{}, err)

	_, err = svc.SetAdmin(ctx, "nope", true)
	assert.True(t, core.IsNotFound(err))
}

func TestService_UpdatePrivilege(t *testing.T) {
	repo, svc, _ := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Jane", "jane@iiitdwd.ac.in", "", privilege.NormalUser, true)
	socID, role := "coding-club", "CEO"

	assert.Error(t, svc.UpdatePrivilege(ctx, usr.ID, privilege.Level(3), nil, nil))

	// society and role only stick to heads
	require.NoError(t, svc.UpdatePrivilege(ctx, usr.ID, privilege.Admin, &socID, &role))
	got, err := repo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, privilege.Admin, got.Privilege)
	assert.Nil(t, got.SocietyID)
	assert.Nil(t, got.SocietyRole)
}

func TestService_UpdateProfile(t *testing.T) {
	repo, svc, pub := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Jane", "jane@iiitdwd.ac.in", "", privilege.NormalUser, true)

	updated, err := svc.UpdateProfile(ctx, usr.ID, user.UpdateProfile{Name: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", updated.Name)
	require.Len(t, pub.changes, 1)
	assert.Equal(t, user.IdentityProfileUpdated, pub.changes[0].Kind)

	svc.SignOut(ctx, usr.ID)
	require.Len(t, pub.changes, 2)
	assert.Equal(t, user.IdentityChange{UserID: usr.ID, Kind: user.IdentitySignedOut, At: pub.changes[1].At}, pub.changes[1])
}
