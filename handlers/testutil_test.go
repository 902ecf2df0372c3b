package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rollingdoor-backend/config"
	"rollingdoor-backend/coordinator"
	"rollingdoor-backend/database/dbtest"
	"rollingdoor-backend/invite"
	"rollingdoor-backend/ledger"
	"rollingdoor-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	registry *session.Registry
}

// setupTestEnv builds the full router over a fresh in-memory database.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	l := ledger.New(db)
	registry := session.NewRegistry()
	t.Cleanup(registry.CloseAll)
	coord := coordinator.New(l, invite.NewIssuer(l, invite.DefaultTTL), registry)

	h := New(db, coord,
		config.JWTConfig{Secret: testSecret, TTL: time.Hour},
		config.SessionConfig{WriteTimeout: time.Second, PingInterval: time.Minute})
	return &testEnv{router: NewRouter(h, registry), db: db, registry: registry}
}

// do sends a JSON request; token may be empty.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup registers username and logs in, returning a bearer token.
func (e *testEnv) signup(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, "POST", "/register", "", RegisterInput{Username: username, Password: "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, "POST", "/login", "", LoginInput{Username: username, Password: "password1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
