package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/iems/core/privilege"
	"github.com/trezcool/iems/core/user"
	"github.com/trezcool/iems/services/email"
	"github.com/trezcool/iems/testutil"
)

func TestHome(t *testing.T) {
	env := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	env.serve(req, rec)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to IEMS API!", rec.Body.String())
}

func TestUserApi_Signup(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Taken", "taken@iiitdwd.ac.in", privilege.NormalUser)

	tests := []httpTest{
		{
			name:     "empty body",
			method:   http.MethodPost,
			path:     "/v1/auth/signup",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "passwords mismatch",
			method:   http.MethodPost,
			path:     "/v1/auth/signup",
			body:     []byte(`{"name": "Jane Doe", "email": "jane@iiitdwd.ac.in", "password": "s3cure-Passw0rd", "password_confirm": "other"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "weak password",
			method:   http.MethodPost,
			path:     "/v1/auth/signup",
			body:     []byte(`{"name": "Jane Doe", "email": "jane@iiitdwd.ac.in", "password": "12345678", "password_confirm": "12345678"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			env.serve(req, rec)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	t.Run("existing email", func(t *testing.T) {
		body := []byte(`{"name": "Jane Doe", "email": " TAKEN@iiitdwd.ac.in", "password": "s3cure-Passw0rd", "password_confirm": "s3cure-Passw0rd"}`)
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", body)
		env.serve(req, rec)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "a user with this email already exists"}`),
		}, rec)
	})

	t.Run("success", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		body := []byte(`{"name": " Jane Doe ", "email": "Jane@iiitdwd.ac.in", "password": "s3cure-Passw0rd", "password_confirm": "s3cure-Passw0rd"}`)
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", body)
		env.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		unmarshal(t, rec, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "Jane Doe", usr.Name)
		assert.Equal(t, "jane@iiitdwd.ac.in", usr.Email)
		assert.Equal(t, privilege.NormalUser, usr.Privilege)
		assert.False(t, usr.EmailVerified)
		assert.Len(t, emailsvc.SentTo("jane@iiitdwd.ac.in"), 1)
	})
}

func TestUserApi_Login(t *testing.T) {
	env := setup(t)
	env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)

	failed := marchallObj(t, httpErr{Error: "authentication failed"})
	tests := []httpTest{
		{
			name:     "missing password",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"email": "john@iiitdwd.ac.in"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password": "this field is required"}`),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"email": "nobody@iiitdwd.ac.in", "password": "s3cure-Passw0rd"}`),
			wantCode: http.StatusBadRequest,
			wantData: failed,
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     []byte(`{"email": "john@iiitdwd.ac.in", "password": "wrong-Passw0rd"}`),
			wantCode: http.StatusBadRequest,
			wantData: failed,
		},
	}
	runHTTPTests(t, env, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", []byte(`{"email": "JOHN@iiitdwd.ac.in", "password": "s3cure-Passw0rd"}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		require.NotNil(t, resp.User)
		assert.Equal(t, "john@iiitdwd.ac.in", resp.User.Email)
		assert.NotNil(t, resp.User.LastLogin)

		// the token opens the authed endpoints
		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestUserApi_Me(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)
	head, soc := env.createHead(t, "Coding Club", "head@iiitdwd.ac.in")

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "invalid token",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    "not-a-jwt",
			wantCode: http.StatusUnauthorized,
			wantData: []byte(`{"error": "invalid or expired jwt"}`),
		},
		{
			name:     "normal user",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    env.token(t, usr),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, ProfileResponse{User: usr, Privilege: privilege.NormalUser}),
		},
		{
			name:     "society head",
			method:   http.MethodGet,
			path:     "/v1/users/me",
			token:    env.token(t, head),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, ProfileResponse{User: head, Privilege: privilege.SocietyHead, Society: &soc}),
		},
	}
	runHTTPTests(t, env, tests)
}

func TestUserApi_UpdateMe(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)
	token := env.token(t, usr)

	req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, []byte(`{"name": "   "}`))
	env.serve(req, rec)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = newAuthRequest(http.MethodPut, "/v1/users/me", token, []byte(`{"name": " Johnny Smith "}`))
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got user.User
	unmarshal(t, rec, &got)
	assert.Equal(t, usr.ID, got.ID)
	assert.Equal(t, "Johnny Smith", got.Name)
}

func TestUserApi_Query(t *testing.T) {
	env := setup(t)
	admin := env.createAdmin(t)
	usr := env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)
	head, _ := env.createHead(t, "Coding Club", "head@iiitdwd.ac.in")

	tests := []httpTest{
		{
			name:     "no token",
			method:   http.MethodGet,
			path:     "/v1/users",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "normal user",
			method:   http.MethodGet,
			path:     "/v1/users",
			token:    env.token(t, usr),
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error": "permission denied"}`),
		},
		{
			name:     "society head",
			method:   http.MethodGet,
			path:     "/v1/users",
			token:    env.token(t, head),
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error": "permission denied"}`),
		},
		{
			name:     "all",
			method:   http.MethodGet,
			path:     "/v1/users",
			token:    env.token(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallList(t, admin, usr, head),
		},
		{
			name:     "by privilege",
			method:   http.MethodGet,
			path:     "/v1/users?privilege=1",
			token:    env.token(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallList(t, head),
		},
		{
			name:     "search",
			method:   http.MethodGet,
			path:     "/v1/users?search=smith",
			token:    env.token(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallList(t, usr),
		},
		{
			name:     "no match",
			method:   http.MethodGet,
			path:     "/v1/users?search=nobody",
			token:    env.token(t, admin),
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
	}
	runHTTPTests(t, env, tests)
}

func TestUserApi_SetPrivilege(t *testing.T) {
	env := setup(t)
	admin := env.createAdmin(t)
	usr := env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)
	head, _ := env.createHead(t, "Coding Club", "head@iiitdwd.ac.in")
	adminToken := env.token(t, admin)

	tests := []httpTest{
		{
			name:     "not an admin",
			method:   http.MethodPut,
			path:     "/v1/users/" + admin.ID + "/privilege",
			body:     []byte(`{"admin": false}`),
			token:    env.token(t, usr),
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error": "permission denied"}`),
		},
		{
			name:     "self demotion",
			method:   http.MethodPut,
			path:     "/v1/users/" + admin.ID + "/privilege",
			body:     []byte(`{"admin": false}`),
			token:    adminToken,
			wantCode: http.StatusForbidden,
			wantData: []byte(`{"error": "permission denied"}`),
		},
		{
			name:     "society head",
			method:   http.MethodPut,
			path:     "/v1/users/" + head.ID + "/privilege",
			body:     []byte(`{"admin": true}`),
			token:    adminToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error": "society heads are managed through society head assignment"}`),
		},
		{
			name:     "unknown user",
			method:   http.MethodPut,
			path:     "/v1/users/unknown/privilege",
			body:     []byte(`{"admin": true}`),
			token:    adminToken,
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"error": "user not found"}`),
		},
	}
	runHTTPTests(t, env, tests)

	t.Run("missing admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+usr.ID+"/privilege", adminToken, []byte(`{}`))
		env.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("promote", func(t *testing.T) {
		sub := env.hub.Subscribe(usr.ID)
		defer sub.Close()

		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+usr.ID+"/privilege", adminToken, []byte(`{"admin": true}`))
		env.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got user.User
		unmarshal(t, rec, &got)
		assert.Equal(t, privilege.Admin, got.Privilege)

		change := <-sub.C()
		assert.Equal(t, user.IdentityPrivilegeChanged, change.Kind)
		assert.Equal(t, privilege.Admin, change.Privilege)

		// the new privilege applies to the old token right away
		req, rec = newAuthRequest(http.MethodGet, "/v1/users", env.token(t, usr))
		env.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestUserApi_PasswordReset(t *testing.T) {
	env := setup(t)
	env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)

	success := []byte(`{"success": "If the email address supplied is associated with an active account on this system, ` +
		`an email will arrive in your inbox shortly with instructions to reset your password."}`)
	tests := []httpTest{
		{
			name:     "invalid email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email": "not-an-email"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "email must be a valid email address"}`),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email": "nobody@iiitdwd.ac.in"}`),
			wantCode: http.StatusOK,
			wantData: success,
		},
		{
			name:     "known email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email": "john@iiitdwd.ac.in"}`),
			wantCode: http.StatusOK,
			wantData: success,
		},
		{
			name:     "bad link",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset/confirm",
			body:     []byte(`{"token": "bad", "uid": "bad", "password": "n3w-Passw0rd!", "password_confirm": "n3w-Passw0rd!"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			env.serve(req, rec)
			if tt.wantData == nil {
				assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.Len(t, emailsvc.SentTo("john@iiitdwd.ac.in"), 1)
	assert.Empty(t, emailsvc.SentTo("nobody@iiitdwd.ac.in"))
}

func TestUserApi_TokenRefreshAndLogout(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "John Smith", "john@iiitdwd.ac.in", privilege.NormalUser)
	token := env.token(t, usr)

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", token)
	env.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	unmarshal(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Nil(t, resp.User)

	sub := env.hub.Subscribe(usr.ID)
	defer sub.Close()

	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/logout", resp.Token)
	env.serve(req, rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	change := <-sub.C()
	assert.Equal(t, user.IdentitySignedOut, change.Kind)
	assert.Equal(t, usr.ID, change.UserID)
}

func TestUserApi_RequestEmailVerification(t *testing.T) {
	env := setup(t)
	usr := testutil.CreateUser(t, env.usrRepo, "John Smith", "john@iiitdwd.ac.in", testPassword, privilege.NormalUser, false /* verified */)

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/verify-email", env.token(t, usr))
	env.serve(req, rec)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: []byte(`{"success": "A verification email has been sent to your inbox."}`),
	}, rec)
	assert.Len(t, emailsvc.SentTo(usr.Email), 1)
}
