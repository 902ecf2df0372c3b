// user.go - Handles user registration and login

package handlers // Declares the package name

import ( // Import required packages
	"errors"
	"net/http" // HTTP status codes

	"rollingdoor-backend/middleware" // Token issuing
	"rollingdoor-backend/models"     // User model

	"github.com/gin-gonic/gin"   // Gin web framework
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"
)

type RegisterInput struct { // Struct for registration input
	Username string `json:"username" binding:"required,min=3,max=64"` // Username (required)
	Password string `json:"password" binding:"required,min=6"`        // Password (required)
}

type LoginInput struct { // Struct for login input
	Username string `json:"username" binding:"required"` // Username (required)
	Password string `json:"password" binding:"required"` // Password (required)
}

func (h *Handler) Register(c *gin.Context) { // Handler for user registration
	var input RegisterInput                          // Declare input variable
	if err := c.ShouldBindJSON(&input); err != nil { // Parse JSON input
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()}) // Return error if invalid
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost) // Hash password
	if err != nil {
		respondError(c, err)
		return
	}
	user := models.User{Username: input.Username, Password: string(hash)} // Create user struct
	if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "registration successful"}) // Success response
}

func (h *Handler) Login(c *gin.Context) { // Handler for user login
	var input LoginInput                             // Declare input variable
	if err := c.ShouldBindJSON(&input); err != nil { // Parse JSON input
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()}) // Return error if invalid
		return
	}
	var user models.User // Find user by username
	if err := h.db.WithContext(c.Request.Context()).Where("username = ?", input.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"}) // Return error if not found
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil { // Check password
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"}) // Return error if wrong
		return
	}
	tokenString, err := middleware.IssueToken(h.jwt.Secret, user.ID, h.jwt.TTL) // Sign token
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString}) // Return token
}
