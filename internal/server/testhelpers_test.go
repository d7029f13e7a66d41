package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"meshi/internal/cache"
	"meshi/internal/config"
	"meshi/internal/database"
	"meshi/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-key-12345678901234567890123456789012"

type testEnv struct {
	server *Server
	app    *fiber.App
	redis  *redis.Client
	mr     *miniredis.Miniredis
}

type envOption func(*config.Config)

func withFlags(flags string) envOption {
	return func(c *config.Config) { c.FeatureFlags = flags }
}

func withoutRedis() envOption {
	return func(c *config.Config) { c.RedisURL = "" }
}

// newTestEnv boots a server on a temporary SQLite file and miniredis.
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Env:              "test",
		Port:             "0",
		JWTSecret:        testJWTSecret,
		DBDriver:         "sqlite",
		DBPath:           filepath.Join(dir, "meshi.db"),
		DBMaxOpenConns:   1,
		BlobDir:          filepath.Join(dir, "blobs"),
		PublicBaseURL:    "http://meshi.test",
		MaxUploadSizeMB:  1,
		FeatureFlags:     "guest_login=on,federated_login=on,password_reset=on",
		GuestEmail:       "guest@example.com",
		GuestPassword:    "guestpassword",
		GuestDisplayName: "guest",
		RedisURL:         "miniredis",
		AllowedOrigins:   "http://localhost:5173",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := database.Connect(cfg)
	require.NoError(t, err)

	env := &testEnv{}
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		env.mr = miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: env.mr.Addr()})
		env.redis = rdb
	}

	s, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.StartWiring(ctx))
	t.Cleanup(func() {
		cancel()
		_ = s.liveHub.Shutdown(context.Background())
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		if rdb != nil {
			_ = rdb.Close()
		}
	})

	env.server = s
	env.app = s.App()
	return env
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, out), string(raw))
		}
	}
	return resp.StatusCode
}

// useUserCache routes repository reads through the env's miniredis for the
// rest of the test.
func (e *testEnv) useUserCache(t *testing.T) {
	t.Helper()
	require.NotNil(t, e.redis)
	cache.SetClient(e.redis)
	t.Cleanup(func() { cache.SetClient(nil) })
}

func (e *testEnv) signUp(t *testing.T, email, displayName string) *service.AuthResult {
	t.Helper()
	var res service.AuthResult
	status := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":        email,
		"password":     "secret1",
		"display_name": displayName,
	}, &res)
	require.Equal(t, http.StatusCreated, status)
	return &res
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
