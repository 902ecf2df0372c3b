// auth.go - JWT authentication middleware
// This file implements authentication for the API
//
// Authentication Flow:
// 1. Extract JWT token from Authorization header
// 2. Validate token signature, algorithm and expiration
// 3. Extract user ID from token claims
// 4. Store user ID in context for handlers
//
// Per-device authorization (admin vs. member) is not decided here; the
// coordinator checks the caller's grant on every operation.

package middleware // Declares the package name

import ( // Import required packages
	"errors"
	"net/http" // HTTP status codes (401, etc.)
	"strings"  // String operations (for header parsing)
	"time"     // Token expiration

	"github.com/gin-gonic/gin"     // Gin web framework (for middleware)
	"github.com/golang-jwt/jwt/v5" // JWT library (for token validation)
)

const userIDKey = "user_id" // Context key (and claim name) for the authenticated user

// IssueToken signs an HS256 token carrying user_id and exp claims
func IssueToken(secret string, userID uint, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIDKey: userID,                     // Add user ID to token
		"exp":     time.Now().Add(ttl).Unix(), // Set expiration
	})
	return token.SignedString([]byte(secret)) // Sign token
}

// ParseToken validates tokenStr and returns the user ID it carries
func ParseToken(secret, tokenStr string) (uint, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil // Provide secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	// JWT stores all numbers as float64, but our database uses uint
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid token claims")
	}
	raw, ok := claims[userIDKey].(float64)
	if !ok || raw <= 0 {
		return 0, errors.New("user ID not found in token")
	}
	return uint(raw), nil
}

// AuthMiddleware - Returns a Gin middleware function for JWT authentication
//
// How it works:
// 1. Checks for "Authorization: Bearer <token>" header
// 2. Validates JWT token signature and expiration
// 3. Stores the user ID in the Gin context for later use
// 4. Continues to next handler if valid, aborts with 401 if invalid
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) { // Middleware handler (runs before each request)
		header := c.GetHeader("Authorization")                     // Get Authorization header
		if header == "" || !strings.HasPrefix(header, "Bearer ") { // If missing or invalid format
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		userID, err := ParseToken(secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil { // If token is invalid or expired
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(userIDKey, userID) // Store user ID in Gin context
		c.Next()                 // Continue to next handler (authentication successful)
	}
}

// UserID returns the authenticated user set by AuthMiddleware (0 if none)
func UserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}
