// ledger.go - Access Ledger: the authoritative (user, device) -> (role, status) mapping
//
// Every mutating operation runs in a single transaction. On PostgreSQL the
// device row is read FOR UPDATE first, which serializes check-then-write
// sequences (claim, last-admin count, recovery) per device. SQLite runs with
// one connection, so transactions are already serialized.

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PasswordVerifier reports whether candidate matches the stored hash.
type PasswordVerifier func(candidate, hash string) bool

type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Ledger)

// WithClock replaces the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

func (l *Ledger) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return l.db.WithContext(ctx).Transaction(fn)
}

// forUpdate adds a row lock where the dialect supports one.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func findDevice(tx *gorm.DB, deviceID string) (*models.Device, error) {
	var device models.Device
	err := tx.Where("device_id = ?", deviceID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("device %s not found", deviceID)
	}
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", deviceID, err)
	}
	return &device, nil
}

func lockDeviceByPK(tx *gorm.DB, pk uint) (*models.Device, error) {
	var device models.Device
	err := forUpdate(tx).First(&device, pk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("device not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	return &device, nil
}

// findGrant returns nil without error when the pair has no grant.
func findGrant(tx *gorm.DB, userID, devicePK uint) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := tx.Where("user_id = ? AND device_id = ?", userID, devicePK).First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load grant: %w", err)
	}
	return &grant, nil
}

func requireAdmin(tx *gorm.DB, userID uint, device *models.Device) (*models.AccessGrant, error) {
	grant, err := findGrant(tx, userID, device.ID)
	if err != nil {
		return nil, err
	}
	if grant == nil || !grant.IsAcceptedAdmin() {
		return nil, apperr.Forbidden("you are not an admin of device %s", device.DeviceID)
	}
	grant.Device = *device
	return grant, nil
}

// RecordClaim registers a new device owned by userID. The claimant becomes
// ADMIN/ACCEPTED immediately.
func (l *Ledger) RecordClaim(ctx context.Context, userID uint, deviceID, masterHash string) (*models.Device, error) {
	alreadyClaimed := apperr.Conflict("device %s is already registered; use admin recovery if you lost access", deviceID)
	now := l.clock()

	var device models.Device
	err := l.transaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Device{}).Where("device_id = ?", deviceID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return alreadyClaimed
		}

		device = models.Device{
			DeviceID:   deviceID,
			Name:       deviceID,
			MasterHash: masterHash,
			CreatedAt:  now,
		}
		if err := tx.Create(&device).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) { // lost a race with a concurrent claim
				return alreadyClaimed
			}
			return err
		}

		grant := models.AccessGrant{
			UserID:    userID,
			DevicePK:  device.ID,
			Role:      models.RoleAdmin,
			Status:    models.StatusAccepted,
			CreatedAt: now,
		}
		return tx.Omit(clause.Associations).Create(&grant).Error
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// FindDevice loads a device by its external identifier.
func (l *Ledger) FindDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	return findDevice(l.db.WithContext(ctx), deviceID)
}

func (l *Ledger) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&models.Device{}).Where("device_id = ?", deviceID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count devices: %w", err)
	}
	return count > 0, nil
}

// RequireAdmin returns the caller's grant (with Device set) if it is ACCEPTED ADMIN.
func (l *Ledger) RequireAdmin(ctx context.Context, userID uint, deviceID string) (*models.AccessGrant, error) {
	db := l.db.WithContext(ctx)
	device, err := findDevice(db, deviceID)
	if err != nil {
		return nil, err
	}
	return requireAdmin(db, userID, device)
}

// RequireAccepted returns the caller's grant if it is ACCEPTED with any role.
func (l *Ledger) RequireAccepted(ctx context.Context, userID uint, deviceID string) (*models.AccessGrant, error) {
	db := l.db.WithContext(ctx)
	device, err := findDevice(db, deviceID)
	if err != nil {
		return nil, err
	}
	grant, err := findGrant(db, userID, device.ID)
	if err != nil {
		return nil, err
	}
	if grant == nil || grant.Status != models.StatusAccepted {
		return nil, apperr.Forbidden("you do not have access to device %s", deviceID)
	}
	grant.Device = *device
	return grant, nil
}

// CreatePendingRequest inserts a MEMBER/PENDING grant unless the pair
// already has one.
func (l *Ledger) CreatePendingRequest(ctx context.Context, userID, devicePK uint) (*models.AccessGrant, error) {
	var grant *models.AccessGrant
	err := l.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		grant, err = createPending(tx, userID, devicePK, l.clock())
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// RedeemInvite consumes invite code codeID and files a MEMBER/PENDING grant
// for userID in one transaction. Only one caller can delete a given code, so
// every other concurrent redemption gets NotFound. A Conflict on the grant
// still commits the delete: the code is spent either way.
func (l *Ledger) RedeemInvite(ctx context.Context, codeID, userID, devicePK uint) (*models.AccessGrant, error) {
	var (
		grant   *models.AccessGrant
		refused error
	)
	err := l.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Delete(&models.InviteCode{}, codeID)
		if res.Error != nil {
			return fmt.Errorf("consume invite code: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("invalid or expired PIN")
		}

		// savepoint, so a refused grant does not poison the delete
		err := tx.Transaction(func(sp *gorm.DB) error {
			var err error
			grant, err = createPending(sp, userID, devicePK, l.clock())
			return err
		})
		if apperr.KindOf(err) == apperr.KindConflict {
			refused = err
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if refused != nil {
		return nil, refused
	}
	return grant, nil
}

func createPending(tx *gorm.DB, userID, devicePK uint, now time.Time) (*models.AccessGrant, error) {
	if _, err := lockDeviceByPK(tx, devicePK); err != nil {
		return nil, err
	}
	existing, err := findGrant(tx, userID, devicePK)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.StatusPending {
			return nil, apperr.Conflict("you already have a pending request for this device")
		}
		return nil, apperr.Conflict("you already have access to this device")
	}

	grant := models.AccessGrant{
		UserID:    userID,
		DevicePK:  devicePK,
		Role:      models.RoleMember,
		Status:    models.StatusPending,
		CreatedAt: now,
	}
	if err := tx.Omit(clause.Associations).Create(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("you already have a pending request for this device")
		}
		return nil, err
	}
	return &grant, nil
}

// loadPendingForAdmin finds a PENDING grant and checks that adminID may act on it.
func loadPendingForAdmin(tx *gorm.DB, grantID, adminID uint) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := tx.Where("id = ? AND status = ?", grantID, models.StatusPending).First(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("access request not found or already processed")
	}
	if err != nil {
		return nil, fmt.Errorf("load access request: %w", err)
	}
	device, err := lockDeviceByPK(tx, grant.DevicePK)
	if err != nil {
		return nil, err
	}
	if _, err := requireAdmin(tx, adminID, device); err != nil {
		return nil, err
	}
	grant.Device = *device
	return &grant, nil
}

// Approve flips a PENDING grant to ACCEPTED.
func (l *Ledger) Approve(ctx context.Context, grantID, adminID uint) (*models.AccessGrant, error) {
	var grant *models.AccessGrant
	err := l.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		grant, err = loadPendingForAdmin(tx, grantID, adminID)
		if err != nil {
			return err
		}
		grant.Status = models.StatusAccepted
		return tx.Model(&models.AccessGrant{}).Where("id = ?", grant.ID).Update("status", models.StatusAccepted).Error
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// Reject deletes a PENDING grant so the user may request again later.
func (l *Ledger) Reject(ctx context.Context, grantID, adminID uint) error {
	return l.transaction(ctx, func(tx *gorm.DB) error {
		grant, err := loadPendingForAdmin(tx, grantID, adminID)
		if err != nil {
			return err
		}
		return tx.Delete(&models.AccessGrant{}, grant.ID).Error
	})
}

// RemoveMember deletes any grant on a device the actor administers. Admins
// cannot remove themselves, and the last ACCEPTED ADMIN is never removed.
func (l *Ledger) RemoveMember(ctx context.Context, grantID, adminID uint) error {
	return l.transaction(ctx, func(tx *gorm.DB) error {
		var target models.AccessGrant
		err := tx.First(&target, grantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("member not found")
		}
		if err != nil {
			return fmt.Errorf("load member: %w", err)
		}

		device, err := lockDeviceByPK(tx, target.DevicePK)
		if err != nil {
			return err
		}
		if _, err := requireAdmin(tx, adminID, device); err != nil {
			return err
		}
		if target.UserID == adminID {
			return apperr.Forbidden("admin cannot remove themselves; transfer admin rights first")
		}

		if target.IsAcceptedAdmin() {
			var admins int64
			err := tx.Model(&models.AccessGrant{}).
				Where("device_id = ? AND role = ? AND status = ?", device.ID, models.RoleAdmin, models.StatusAccepted).
				Count(&admins).Error
			if err != nil {
				return err
			}
			if admins <= 1 {
				return apperr.Forbidden("cannot remove the last admin of device %s", device.DeviceID)
			}
		}
		return tx.Delete(&models.AccessGrant{}, target.ID).Error
	})
}

// RecoverAdmin promotes userID to ADMIN/ACCEPTED on proof of the master
// password. Every other ACCEPTED ADMIN is downgraded to MEMBER in the same
// transaction.
func (l *Ledger) RecoverAdmin(ctx context.Context, deviceID string, userID uint, candidate string, verify PasswordVerifier) (*models.AccessGrant, error) {
	device, err := l.FindDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !verify(candidate, device.MasterHash) {
		return nil, apperr.Forbidden("invalid master password")
	}

	now := l.clock()
	var grant *models.AccessGrant
	err = l.transaction(ctx, func(tx *gorm.DB) error {
		if _, err := lockDeviceByPK(tx, device.ID); err != nil {
			return err
		}
		err := tx.Model(&models.AccessGrant{}).
			Where("device_id = ? AND role = ? AND status = ? AND user_id <> ?",
				device.ID, models.RoleAdmin, models.StatusAccepted, userID).
			Update("role", models.RoleMember).Error
		if err != nil {
			return fmt.Errorf("downgrade admins: %w", err)
		}

		grant, err = findGrant(tx, userID, device.ID)
		if err != nil {
			return err
		}
		if grant == nil {
			grant = &models.AccessGrant{UserID: userID, DevicePK: device.ID}
		}
		grant.Role = models.RoleAdmin
		grant.Status = models.StatusAccepted
		grant.CreatedAt = now
		return tx.Omit(clause.Associations).Save(grant).Error
	})
	if err != nil {
		return nil, err
	}
	grant.Device = *device
	return grant, nil
}

// RenameDevice changes the display name. Admin only.
func (l *Ledger) RenameDevice(ctx context.Context, deviceID, name string, adminID uint) (*models.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("device name must not be empty")
	}

	var device *models.Device
	err := l.transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if device, err = findDevice(tx, deviceID); err != nil {
			return err
		}
		if _, err := requireAdmin(tx, adminID, device); err != nil {
			return err
		}
		device.Name = name
		return tx.Model(device).Update("name", name).Error
	})
	if err != nil {
		return nil, err
	}
	return device, nil
}

// DeleteDevice removes the device together with all its grants and invite
// codes. Session eviction is the caller's job.
func (l *Ledger) DeleteDevice(ctx context.Context, deviceID string, adminID uint) error {
	return l.transaction(ctx, func(tx *gorm.DB) error {
		device, err := findDevice(tx, deviceID)
		if err != nil {
			return err
		}
		if _, err := lockDeviceByPK(tx, device.ID); err != nil {
			return err
		}
		if _, err := requireAdmin(tx, adminID, device); err != nil {
			return err
		}
		if err := tx.Where("device_id = ?", device.ID).Delete(&models.AccessGrant{}).Error; err != nil {
			return fmt.Errorf("delete grants: %w", err)
		}
		if err := tx.Where("device_id = ?", device.ID).Delete(&models.InviteCode{}).Error; err != nil {
			return fmt.Errorf("delete invite codes: %w", err)
		}
		return tx.Delete(&models.Device{}, device.ID).Error
	})
}
