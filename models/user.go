// user.go - Defines the User model for the database

package models // Declares the package name

import "time"

type User struct { // User struct represents an account that can hold device grants
	ID        uint      `gorm:"primaryKey" json:"id"`                  // Unique user ID (primary key)
	Username  string    `gorm:"uniqueIndex;not null" json:"username"` // Login name (must be unique, cannot be null)
	Password  string    `gorm:"not null" json:"-"`                     // Hashed password (never serialized)
	CreatedAt time.Time `json:"created_at"`                            // Registration time
}
