package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, router http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, router http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/auth/register", map[string]string{
		"username": "alice",
		"password": "secret1",
		"email":    "a@x.com",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "hash")

	rec = postJSON(t, env.router, "/auth/login", map[string]string{
		"username": "alice",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Token string `json:"access_token"`
		User  struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Token)
	assert.Equal(t, "alice", result.User.Username)

	claims, err := env.issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.Subject)
}

func TestRegisterValidationAndConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/auth/register", map[string]string{
		"username": "ab",
		"password": "secret1",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, env.router, "/auth/register", map[string]string{
		"username": "alice",
		"password": "secret1",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, env.router, "/auth/register", map[string]string{
		"username": "alice",
		"password": "secret2",
	}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(t, "alice", "secret1", "user")

	wrongPass := postJSON(t, env.router, "/auth/login", map[string]string{
		"username": "alice",
		"password": "wrong",
	}, "")
	unknownUser := postJSON(t, env.router, "/auth/login", map[string]string{
		"username": "nobody",
		"password": "secret1",
	}, "")

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	// Identical body so callers cannot probe for account existence.
	assert.Equal(t, wrongPass.Body.String(), unknownUser.Body.String())
}

func TestPasswordResetEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(t, "alice", "secret1", "user")

	rec := postJSON(t, env.router, "/auth/password-reset/request", map[string]string{
		"email": "ghost@x.com",
	}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postJSON(t, env.router, "/auth/password-reset/request", map[string]string{
		"email": "alice@x.com",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var reset struct {
		ResetToken string `json:"reset_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reset))
	require.NotEmpty(t, reset.ResetToken)

	rec = postJSON(t, env.router, "/auth/password-reset/confirm", map[string]string{
		"reset_token":  "bogus",
		"new_password": "secret2",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, env.router, "/auth/password-reset/confirm", map[string]string{
		"reset_token":  reset.ResetToken,
		"new_password": "secret2",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, env.router, "/auth/login", map[string]string{
		"username": "alice",
		"password": "secret2",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutIsStateless(t *testing.T) {
	env := newTestEnv(t)

	rec := postJSON(t, env.router, "/auth/logout", map[string]string{}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logout successful")
}

func TestMeRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	user := env.repo.seed(t, "alice", "secret1", "user")

	rec := getJSON(t, env.router, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = getJSON(t, env.router, "/auth/me", env.login(t, user))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
}
