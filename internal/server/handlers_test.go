package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"statescape/internal/config"
	"statescape/internal/database"
	"statescape/internal/middleware"
	"statescape/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testJWTSecret = "server-test-secret-0123456789abcdef"

type testEnv struct {
	app    *fiber.App
	server *Server
	db     *gorm.DB
	redis  *redis.Client
}

// newTestEnv builds a full server against an in-memory database and
// miniredis, with routes and auth wired the way production runs them.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		JWTSecret: testJWTSecret,
		Port:      "0",
		Env:       "test",
	}
	middleware.InitMiddleware(cfg)

	s, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	app := fiber.New()
	s.SetupRoutes(app)

	return &testEnv{app: app, server: s, db: db, redis: rdb}
}

func (e *testEnv) createUser(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) token(t *testing.T, userID uint) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": fmt.Sprint(userID),
		"iss": middleware.TokenIssuer,
		"aud": middleware.TokenAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// request performs an HTTP request against the test app. A non-zero userID
// attaches that user's bearer token.
func (e *testEnv) request(t *testing.T, method, path string, body interface{}, userID uint) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func itoa(id uint) string {
	return fmt.Sprint(id)
}

func decodeJSON(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func (e *testEnv) createPost(t *testing.T, authorID uint, title, region string) *models.Post {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/api/posts", map[string]string{
		"title":   title,
		"content": "some content",
		"region":  region,
	}, authorID)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var post models.Post
	decodeJSON(t, resp, &post)
	return &post
}
