// accessGrant.go - Defines the AccessGrant model linking a user to a device

package models

import "time"

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
)

// AccessGrant is the one row governing a user's relationship to a device.
// The composite unique index keeps it at one row per (user, device).
type AccessGrant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_grant_user_device" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;" json:"-"`
	DevicePK  uint      `gorm:"column:device_id;not null;uniqueIndex:idx_grant_user_device;index" json:"-"` // devices.id, not the hardware identifier
	Device    Device    `gorm:"foreignKey:DevicePK;references:ID;constraint:OnDelete:CASCADE;" json:"-"`
	Role      Role      `gorm:"type:varchar(16);not null" json:"role"`
	Status    Status    `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// Standing is the meaningful combination of Role and Status.
type Standing int

const (
	StandingInvalid Standing = iota
	StandingPendingMember
	StandingAcceptedMember
	StandingAcceptedAdmin
)

// Standing collapses the stored role/status pair. PENDING ADMIN is never
// written by the ledger and reports StandingInvalid.
func (g AccessGrant) Standing() Standing {
	switch {
	case g.Role == RoleMember && g.Status == StatusPending:
		return StandingPendingMember
	case g.Role == RoleMember && g.Status == StatusAccepted:
		return StandingAcceptedMember
	case g.Role == RoleAdmin && g.Status == StatusAccepted:
		return StandingAcceptedAdmin
	default:
		return StandingInvalid
	}
}

func (g AccessGrant) IsAcceptedAdmin() bool {
	return g.Standing() == StandingAcceptedAdmin
}
