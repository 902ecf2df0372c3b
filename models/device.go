// device.go - Defines the Device model (a claimed rolling door controller)

package models

import "time"

type Device struct {
	ID         uint      `gorm:"primaryKey" json:"-"`                   // Internal row ID
	DeviceID   string    `gorm:"uniqueIndex;not null" json:"device_id"` // Stable hardware identifier (e.g. MAC address)
	Name       string    `json:"name"`                                  // Display name, defaults to DeviceID on claim
	MasterHash string    `gorm:"not null" json:"-"`                     // bcrypt hash of the master password
	CreatedAt  time.Time `json:"created_at"`
}
