package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoparadise/kido/core/user"
)

func Test_userApi_signup(t *testing.T) {
	app := setup(t)
	existing, _ := app.createUsers(t)

	body := func(name, email, pwd string) []byte {
		return marchallObj(t, map[string]string{"name": name, "email": email, "password": pwd})
	}

	tests := []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/users/signup", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/users/signup", body: body("Jo", "jo@test.cd", "1234"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{
			name: "duplicate email", method: http.MethodPost, path: "/api/users/signup",
			body:     body("Someone", " "+existing.Email+" ", "Str0ng!Pass"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	}
	runHTTPTests(t, app, tests)

	t.Run("success", func(t *testing.T) {
		app.mailSvc.Reset()
		rec := app.serve(newRequest(http.MethodPost, "/api/users/signup", body("Pierre", "Pierre@Test.cd", "Str0ng!Pass")))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var got user.User
		unmarchall(t, rec, &got)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "pierre@test.cd", got.Email)
		assert.Equal(t, user.RoleUser, got.Role)
		assert.NotContains(t, rec.Body.String(), "password")

		sent := app.mailSvc.SentMessages()
		if assert.Len(t, sent, 1) {
			assert.Equal(t, "pierre@test.cd", sent[0].To[0].Address)
		}
	})
}

func Test_userApi_login(t *testing.T) {
	app := setup(t)
	usr, admin := app.createUsers(t)

	creds := func(email, pwd string) []byte {
		return marchallObj(t, user.Credentials{Email: email, Password: pwd})
	}
	badCreds := marchallObj(t, httpErr{Error: "invalid credentials"})

	tests := []httpTest{
		{name: "unknown email", method: http.MethodPost, path: "/api/users/login", body: creds("lol@test.cd", "lol"), wantCode: http.StatusUnauthorized, wantData: badCreds},
		{name: "wrong password", method: http.MethodPost, path: "/api/users/login", body: creds(usr.Email, "lol"), wantCode: http.StatusUnauthorized, wantData: badCreds},
		{name: "admin login: not an admin", method: http.MethodPost, path: "/api/admin/login", body: creds(usr.Email, "Rad1um!Pwd"), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenBody)},
		{name: "admin login: wrong password", method: http.MethodPost, path: "/api/admin/login", body: creds(admin.Email, "lol"), wantCode: http.StatusUnauthorized, wantData: badCreds},
	}
	runHTTPTests(t, app, tests)

	t.Run("user login sets the session cookie", func(t *testing.T) {
		rec := app.serve(newRequest(http.MethodPost, "/api/users/login", creds(" MARIE@test.cd ", "Rad1um!Pwd")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LoginResponse
		unmarchall(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, usr.ID, resp.User.ID)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, userCookie, cookies[0].Name)
		assert.Equal(t, resp.Token, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)

		// the cookie alone authenticates
		req := newRequest(http.MethodGet, "/api/me")
		req.AddCookie(cookies[0])
		rec = app.serve(req)
		var me MeResponse
		unmarchall(t, rec, &me)
		require.NotNil(t, me.User)
		assert.Equal(t, usr.ID, me.User.ID)
	})

	t.Run("admin login sets the back-office cookie", func(t *testing.T) {
		rec := app.serve(newRequest(http.MethodPost, "/api/admin/login", creds(admin.Email, "Adm1n!Pwd")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, adminCookie, cookies[0].Name)

		req := newRequest(http.MethodGet, "/api/admin/check")
		req.AddCookie(cookies[0])
		assert.Equal(t, http.StatusOK, app.serve(req).Code)
	})

	t.Run("both session cookies", func(t *testing.T) {
		adminCk := &http.Cookie{Name: adminCookie, Value: app.token(t, admin)}
		tests := []struct {
			name   string
			userCk *http.Cookie
			wantMe string
		}{
			{name: "customer session", userCk: &http.Cookie{Name: userCookie, Value: app.token(t, usr)}, wantMe: usr.ID},
			{name: "stale customer session", userCk: &http.Cookie{Name: userCookie, Value: "stale"}, wantMe: admin.ID},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				req := newRequest(http.MethodGet, "/api/admin/check")
				req.AddCookie(tc.userCk)
				req.AddCookie(adminCk)
				rec := app.serve(req)
				assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

				req = newRequest(http.MethodGet, "/api/me")
				req.AddCookie(tc.userCk)
				req.AddCookie(adminCk)
				var me MeResponse
				unmarchall(t, app.serve(req), &me)
				require.NotNil(t, me.User)
				assert.Equal(t, tc.wantMe, me.User.ID)
			})
		}
	})

	t.Run("logout clears both cookies", func(t *testing.T) {
		rec := app.serve(newRequest(http.MethodPost, "/api/users/logout"))
		assert.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 2)
		for _, c := range cookies {
			assert.Empty(t, c.Value)
			assert.True(t, c.MaxAge < 0)
		}
	})
}

func Test_userApi_me(t *testing.T) {
	app := setup(t)
	usr, admin := app.createUsers(t)
	ghost := user.User{ID: "ghost", Name: "Ghost", Email: "ghost@test.cd", Role: user.RoleUser}

	tests := []httpTest{
		{name: "anonymous", path: "/api/me", wantCode: http.StatusOK, wantData: []byte(`{"user":null}`)},
		{name: "garbage token", path: "/api/me", token: "lol", wantCode: http.StatusOK, wantData: []byte(`{"user":null}`)},
		{name: "deleted user", path: "/api/me", token: app.token(t, ghost), wantCode: http.StatusOK, wantData: []byte(`{"user":null}`)},
		{name: "logged in", path: "/api/me", token: app.token(t, usr), wantCode: http.StatusOK, wantData: marchallObj(t, MeResponse{User: &usr})},
		{name: "admin check: auth required", path: "/api/admin/check", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingTokenBody)},
		{name: "admin check: admin required", path: "/api/admin/check", token: app.token(t, usr), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbiddenBody)},
		{name: "admin check", path: "/api/admin/check", token: app.token(t, admin), wantCode: http.StatusOK, wantData: marchallObj(t, MeResponse{User: &admin})},
	}
	runHTTPTests(t, app, tests)

	t.Run("lowercase admin role", func(t *testing.T) {
		legacy := admin
		legacy.Role = "admin"
		rec := app.serve(newAuthRequest(http.MethodGet, "/api/admin/check", app.token(t, legacy)))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
