package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/models"

	"gorm.io/gorm"
)

// DeviceSummary is one row of a user's device list.
type DeviceSummary struct {
	DeviceID string      `json:"device_id"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	Online   bool        `json:"online" gorm:"-"`
}

// Member is one grant on a device, as shown to its admins.
type Member struct {
	AccessID  uint          `json:"access_id"`
	Username  string        `json:"username"`
	Role      models.Role   `json:"role"`
	Status    models.Status `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// ListDevices returns every device on which userID holds an ACCEPTED grant.
func (l *Ledger) ListDevices(ctx context.Context, userID uint) ([]DeviceSummary, error) {
	rows := []DeviceSummary{}
	err := l.db.WithContext(ctx).
		Table("access_grants").
		Select("devices.device_id AS device_id, devices.name AS name, access_grants.role AS role").
		Joins("JOIN devices ON devices.id = access_grants.device_id").
		Where("access_grants.user_id = ? AND access_grants.status = ?", userID, models.StatusAccepted).
		Order("devices.device_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return rows, nil
}

// ListGrants returns all grants on a device, pending requests first. Admin only.
func (l *Ledger) ListGrants(ctx context.Context, deviceID string, adminID uint) ([]Member, error) {
	grant, err := l.RequireAdmin(ctx, adminID, deviceID)
	if err != nil {
		return nil, err
	}

	rows := []Member{}
	err = l.db.WithContext(ctx).
		Table("access_grants").
		Select("access_grants.id AS access_id, users.username AS username, access_grants.role AS role, " +
			"access_grants.status AS status, access_grants.created_at AS created_at").
		Joins("JOIN users ON users.id = access_grants.user_id").
		Where("access_grants.device_id = ?", grant.DevicePK).
		Order("access_grants.status DESC, access_grants.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return rows, nil
}

// InviteCodeExists reports whether pin is held by a stored code.
func (l *Ledger) InviteCodeExists(ctx context.Context, pin string) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.InviteCode{}).Where("pin = ?", pin).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count invite codes: %w", err)
	}
	return count > 0, nil
}

// SaveInvite stores a new code. A PIN collision is reported as Conflict.
func (l *Ledger) SaveInvite(ctx context.Context, code *models.InviteCode) error {
	err := l.db.WithContext(ctx).Omit("Device").Create(code).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("invite code already in use")
	}
	return err
}

// FindInvite loads a code with its device.
func (l *Ledger) FindInvite(ctx context.Context, pin string) (*models.InviteCode, error) {
	var code models.InviteCode
	err := l.db.WithContext(ctx).Preload("Device").Where("pin = ?", pin).First(&code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("invalid or expired PIN")
	}
	if err != nil {
		return nil, fmt.Errorf("load invite code: %w", err)
	}
	return &code, nil
}

func (l *Ledger) DeleteInvite(ctx context.Context, id uint) error {
	return l.db.WithContext(ctx).Delete(&models.InviteCode{}, id).Error
}

// DeleteExpiredInvites removes codes whose window closed before now.
func (l *Ledger) DeleteExpiredInvites(ctx context.Context, now time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("expires_at < ?", now.UTC()).Delete(&models.InviteCode{})
	return res.RowsAffected, res.Error
}

// DeleteStalePendingGrants removes PENDING grants created before cutoff.
func (l *Ledger) DeleteStalePendingGrants(ctx context.Context, cutoff time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusPending, cutoff.UTC()).
		Delete(&models.AccessGrant{})
	return res.RowsAffected, res.Error
}
