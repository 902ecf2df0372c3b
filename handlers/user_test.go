// user_test.go - Automated tests for user registration and login handlers

package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRegisterAndLogin tests user registration and login
func TestRegisterAndLogin(t *testing.T) {
	env := setupTestEnv(t) // Prepare test DB and router

	// --- Test registration ---
	w := env.do(t, "POST", "/register", "", RegisterInput{Username: "tester", Password: "testpass"})
	assert.Equal(t, 200, w.Code) // Assert success

	// --- Test duplicate registration ---
	w = env.do(t, "POST", "/register", "", RegisterInput{Username: "tester", Password: "testpass"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// --- Test login ---
	login := LoginInput{Username: "tester", Password: "testpass"}
	w = env.do(t, "POST", "/login", "", login)
	assert.Equal(t, 200, w.Code) // Assert success
	assert.NotEmpty(t, decode[map[string]string](t, w)["token"])

	// --- Test login with wrong password ---
	login.Password = "wrongpass"
	w = env.do(t, "POST", "/login", "", login)
	assert.Equal(t, 401, w.Code) // Should be unauthorized

	// --- Test login with unknown user ---
	w = env.do(t, "POST", "/login", "", LoginInput{Username: "nobody", Password: "testpass"})
	assert.Equal(t, 401, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "POST", "/register", "", map[string]string{"username": "ab"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "GET", "/api/devices/my-devices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
