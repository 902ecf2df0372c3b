// inviteCode.go - Defines the short-lived PIN an admin hands out to new members

package models

import "time"

type InviteCode struct {
	ID        uint      `gorm:"primaryKey"`
	PIN       string    `gorm:"column:pin;type:varchar(6);uniqueIndex;not null"` // 6-digit code, unique among live codes
	DevicePK  uint      `gorm:"column:device_id;not null;index"` // devices.id
	Device    Device    `gorm:"foreignKey:DevicePK;references:ID;constraint:OnDelete:CASCADE;"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// Expired reports whether the code can no longer be redeemed at now.
func (c InviteCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
