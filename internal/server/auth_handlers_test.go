package server

import (
	"net/http"
	"strings"
	"testing"

	"meshi/internal/models"
	"meshi/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignupLoginAndProfile(t *testing.T) {
	env := newTestEnv(t)
	signed := env.signUp(t, "Cook@Example.com", "cook")
	require.NotEmpty(t, signed.Token)
	assert.Equal(t, "cook@example.com", signed.User.Email)

	var dup errorBody
	status := env.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "cook@example.com", "password": "secret1", "display_name": "again",
	}, &dup)
	assert.Equal(t, http.StatusConflict, status)

	var bad errorBody
	status = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "cook@example.com", "password": "wrong-password",
	}, &bad)
	assert.Equal(t, http.StatusUnauthorized, status)

	var login service.AuthResult
	status = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "cook@example.com", "password": "secret1",
	}, &login)
	require.Equal(t, http.StatusOK, status)

	var me models.User
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/me", login.Token, nil, &me))
	assert.Equal(t, "cook", me.DisplayName)

	avatar := "http://meshi.test/storage/avatars/0000000000000000_me.png"
	var updated models.User
	status = env.do(t, http.MethodPut, "/api/users/me", login.Token, map[string]string{
		"avatar_url": avatar,
	}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cook", updated.DisplayName)
	assert.Equal(t, avatar, updated.AvatarURL)
}

func TestProfileUpdateWithWarmUserCacheKeepsPassword(t *testing.T) {
	env := newTestEnv(t)
	env.useUserCache(t)
	res := env.signUp(t, "cached@example.com", "cached")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/me", res.Token, nil, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/me", res.Token, nil, nil))

	var updated models.User
	status := env.do(t, http.MethodPut, "/api/users/me", res.Token, map[string]string{
		"display_name": "ramen cook",
	}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ramen cook", updated.DisplayName)

	var login service.AuthResult
	status = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "cached@example.com", "password": "secret1",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ramen cook", login.User.DisplayName)

	var me models.User
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/me", login.Token, nil, &me))
	assert.Equal(t, "ramen cook", me.DisplayName)
}

func TestPasswordResetWithWarmUserCache(t *testing.T) {
	env := newTestEnv(t)
	env.useUserCache(t)
	res := env.signUp(t, "warm@example.com", "warm")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/me", res.Token, nil, nil))

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/auth/password-reset", "", map[string]string{
		"email": "warm@example.com",
	}, nil))
	var token string
	for _, key := range env.mr.Keys() {
		if strings.HasPrefix(key, "password_reset:") {
			token = strings.TrimPrefix(key, "password_reset:")
		}
	}
	require.NotEmpty(t, token)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", map[string]string{
		"token": token, "password": "newsecret",
	}, nil))

	var login service.AuthResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "warm@example.com", "password": "newsecret",
	}, &login))
	assert.Equal(t, "warm", login.User.DisplayName)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	res := env.signUp(t, "bye@example.com", "bye")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/users/me", res.Token, nil, nil))
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/auth/logout", res.Token, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/users/me", res.Token, nil, nil))
}

func TestGuestLogin(t *testing.T) {
	env := newTestEnv(t)

	var first, second service.AuthResult
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/guest", "", nil, &first))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/guest", "", nil, &second))

	assert.Equal(t, "guest@example.com", first.User.Email)
	assert.Equal(t, first.User.ID, second.User.ID)
}

func TestGuestLogin_FlagOff(t *testing.T) {
	env := newTestEnv(t, withFlags("guest_login=off"))

	var body errorBody
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, "/api/auth/guest", "", nil, &body))
	assert.Equal(t, models.CodeForbidden, body.Code)
}

func TestFederatedLogin_NotConfigured(t *testing.T) {
	env := newTestEnv(t)

	status := env.do(t, http.MethodGet, "/api/auth/federated/google", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "forgot@example.com", "forgot")

	var missing errorBody
	status := env.do(t, http.MethodPost, "/api/auth/password-reset", "", map[string]string{
		"email": "nobody@example.com",
	}, &missing)
	assert.Equal(t, http.StatusNotFound, status)

	status = env.do(t, http.MethodPost, "/api/auth/password-reset", "", map[string]string{
		"email": "forgot@example.com",
	}, nil)
	require.Equal(t, http.StatusAccepted, status)

	var token string
	for _, key := range env.mr.Keys() {
		if strings.HasPrefix(key, "password_reset:") {
			token = strings.TrimPrefix(key, "password_reset:")
		}
	}
	require.NotEmpty(t, token)

	status = env.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", map[string]string{
		"token": token, "password": "newsecret",
	}, nil)
	require.Equal(t, http.StatusNoContent, status)

	status = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "forgot@example.com", "password": "newsecret",
	}, nil)
	assert.Equal(t, http.StatusOK, status)

	status = env.do(t, http.MethodPost, "/api/auth/password-reset/confirm", "", map[string]string{
		"token": token, "password": "another1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestIssueWSTicket(t *testing.T) {
	env := newTestEnv(t)
	res := env.signUp(t, "ticket@example.com", "ticket")

	var body struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/ws/ticket", res.Token, nil, &body))
	assert.NotEmpty(t, body.Ticket)
	assert.Equal(t, 60, body.ExpiresIn)
}
