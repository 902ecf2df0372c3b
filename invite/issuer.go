// issuer.go - Issues and redeems short-lived numeric invite codes

package invite

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/models"
)

const (
	DefaultTTL = 5 * time.Minute

	pinFloor = 100000 // smallest 6-digit value
	pinSpan  = 900000 // values in [100000, 999999]
)

// Store is the slice of the Access Ledger the issuer works against.
type Store interface {
	InviteCodeExists(ctx context.Context, pin string) (bool, error)
	SaveInvite(ctx context.Context, code *models.InviteCode) error
	FindInvite(ctx context.Context, pin string) (*models.InviteCode, error)
	DeleteInvite(ctx context.Context, id uint) error
	RedeemInvite(ctx context.Context, codeID, userID, devicePK uint) (*models.AccessGrant, error)
}

// Code is what an admin hands to the person being invited.
type Code struct {
	PIN       string `json:"pin"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

type Issuer struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

func NewIssuer(store Store, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		random: rand.Reader,
	}
}

func (i *Issuer) drawPIN() (string, error) {
	n, err := rand.Int(i.random, big.NewInt(pinSpan))
	if err != nil {
		return "", fmt.Errorf("draw pin: %w", err)
	}
	return fmt.Sprintf("%06d", pinFloor+n.Int64()), nil
}

// Issue stores a fresh code for device, redrawing until it does not collide
// with a live one.
func (i *Issuer) Issue(ctx context.Context, device *models.Device) (Code, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Code{}, err
		}
		pin, err := i.drawPIN()
		if err != nil {
			return Code{}, err
		}
		taken, err := i.store.InviteCodeExists(ctx, pin)
		if err != nil {
			return Code{}, err
		}
		if taken {
			continue
		}

		code := &models.InviteCode{
			PIN:       pin,
			DevicePK:  device.ID,
			ExpiresAt: i.now().UTC().Add(i.ttl),
		}
		err = i.store.SaveInvite(ctx, code)
		if apperr.KindOf(err) == apperr.KindConflict {
			continue // another issuer stored the same pin in between
		}
		if err != nil {
			return Code{}, fmt.Errorf("save invite code: %w", err)
		}
		return Code{PIN: pin, ExpiresIn: int(i.ttl / time.Second)}, nil
	}
}

// Redeem turns a live code for deviceID into a PENDING MEMBER grant for
// userID. An expired code is deleted on the attempt. Once the device matches,
// the code is burned whether or not the grant could be created, and only one
// of several concurrent redemptions of the same code succeeds.
func (i *Issuer) Redeem(ctx context.Context, pin, deviceID string, userID uint) (*models.AccessGrant, error) {
	code, err := i.store.FindInvite(ctx, pin)
	if err != nil {
		return nil, err
	}

	if code.Expired(i.now().UTC()) {
		if err := i.store.DeleteInvite(ctx, code.ID); err != nil {
			return nil, fmt.Errorf("delete expired invite code: %w", err)
		}
		return nil, apperr.Forbidden("PIN has expired")
	}
	if code.Device.DeviceID != deviceID {
		return nil, apperr.Forbidden("PIN is not valid for this device")
	}

	grant, err := i.store.RedeemInvite(ctx, code.ID, userID, code.DevicePK)
	if err != nil {
		return nil, err
	}
	return grant, nil
}
