package rest_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/guildhall/server/middleware"
	"github.com/kasuganosora/guildhall/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAutoRegister(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "pass1234"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.NotEmpty(t, resp["user_id"])
	assert.Equal(t, "alice", resp["display_name"])
	assert.Equal(t, "G", resp["rank"], "new accounts default to the lowest rank")

	var acc model.Account
	require.NoError(t, e.db.First(&acc, "username = ?", "alice").Error)
	assert.NotEqual(t, "pass1234", acc.PasswordHash)
}

func TestLoginKeepsRankFromRegistration(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "bob", "password": "pass1234", "rank": "B"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "B", decode(t, w)["rank"])

	// A later login cannot change the rank.
	w = e.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "bob", "password": "pass1234", "rank": "SSS"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "B", decode(t, w)["rank"])

	token := decode(t, w)["token"].(string)
	claims, err := mw.ParseToken(token, testSec.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "B", claims.Rank)
}

func TestLoginWrongPassword(t *testing.T) {
	e := newEnv(t, nil)
	e.login(t, "carol", "")

	w := e.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "carol", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginSecondTimeSameUser(t *testing.T) {
	e := newEnv(t, nil)
	_, first := e.login(t, "dave", "")
	_, second := e.login(t, "dave", "")
	assert.Equal(t, first, second)
}

func TestLoginValidation(t *testing.T) {
	e := newEnv(t, nil)
	cases := []struct {
		name string
		body gin.H
	}{
		{"missing password", gin.H{"username": "erin"}},
		{"short username", gin.H{"username": "e", "password": "pass1234"}},
		{"short password", gin.H{"username": "erin", "password": "abc"}},
		{"unknown rank", gin.H{"username": "erin", "password": "pass1234", "rank": "Z"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/api/auth/login", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "validation", decode(t, w)["code"])
		})
	}
}

func TestLoginBannedAccount(t *testing.T) {
	e := newEnv(t, nil)
	_, userID := e.login(t, "frank", "")

	w := e.do(http.MethodPost, "/api/admin/accounts/"+userID+"/ban", "", gin.H{"ban": true}, "X-Admin-Key", testAdminKey)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "frank", "password": "pass1234"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	e := newEnv(t, nil)
	token, _ := e.login(t, "grace", "")

	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/me/guild", token, nil).Code)

	w := e.do(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me/guild", token, nil).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	e := newEnv(t, nil)
	token, _ := e.login(t, "heidi", "C")

	w := e.do(http.MethodPost, "/api/auth/refresh", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	fresh := resp["token"].(string)
	assert.Equal(t, "C", resp["rank"])

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me/guild", token, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/me/guild", fresh, nil).Code)
}

func TestRefreshBannedAccount(t *testing.T) {
	e := newEnv(t, nil)
	token, userID := e.login(t, "ivan", "")
	require.NoError(t, e.db.Model(&model.Account{}).Where("id = ?", userID).Update("status", 0).Error)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/api/auth/refresh", token, nil).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newEnv(t, nil)
	for _, path := range []string{"/api/guilds", "/api/me/guild", "/api/invitations", "/api/ranking/guilds"} {
		assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, path, "", nil).Code, path)
	}
}
