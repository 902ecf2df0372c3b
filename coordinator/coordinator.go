// coordinator.go - Device Access Coordinator
//
// Every user-facing operation resolves the caller, runs the relevant Access
// Ledger check or mutation, and for command-class operations hands the
// payload to the Session Registry. Failures from the ledger or registry are
// passed through with added context, never swallowed.

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/invite"
	"rollingdoor-backend/ledger"
	"rollingdoor-backend/models"
	"rollingdoor-backend/session"

	"golang.org/x/crypto/bcrypt"
)

// Sessions is the Session Registry as seen by the coordinator.
type Sessions interface {
	Register(deviceID string, conn session.Conn)
	Release(deviceID string, conn session.Conn) bool
	Unregister(deviceID string)
	Send(deviceID, payload string) bool
	Online(deviceID string) bool
}

// Action is a door command carried as a single text message.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
	ActionStop  Action = "STOP"
)

// ParseAction accepts an action name in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionOpen, ActionClose, ActionStop:
		return a, nil
	default:
		return "", apperr.Invalid("unknown action %q (expected OPEN, CLOSE or STOP)", s)
	}
}

// offlinePasswordCommand is the structured message that sets the password a
// device accepts locally while it has no server connection.
type offlinePasswordCommand struct {
	Type     string `json:"type"`
	Password string `json:"password"`
}

type Coordinator struct {
	ledger     *ledger.Ledger
	invites    *invite.Issuer
	sessions   Sessions
	bcryptCost int
	log        *slog.Logger
}

func New(l *ledger.Ledger, invites *invite.Issuer, sessions Sessions) *Coordinator {
	return &Coordinator{
		ledger:     l,
		invites:    invites,
		sessions:   sessions,
		bcryptCost: bcrypt.DefaultCost,
		log:        slog.With("component", "coordinator"),
	}
}

func verifyPassword(candidate, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// Claim registers deviceID with userID as its first admin.
func (c *Coordinator) Claim(ctx context.Context, deviceID, devicePassword string, userID uint) (*models.Device, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || devicePassword == "" {
		return nil, apperr.Invalid("device id and device password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(devicePassword), c.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash device password: %w", err)
	}
	device, err := c.ledger.RecordClaim(ctx, userID, deviceID, string(hash))
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", deviceID, err)
	}
	c.log.Info("Device claimed", "device_id", deviceID, "user_id", userID)
	return device, nil
}

func (c *Coordinator) GenerateInvite(ctx context.Context, deviceID string, adminID uint) (invite.Code, error) {
	grant, err := c.ledger.RequireAdmin(ctx, adminID, deviceID)
	if err != nil {
		return invite.Code{}, fmt.Errorf("generate invite for %s: %w", deviceID, err)
	}
	code, err := c.invites.Issue(ctx, &grant.Device)
	if err != nil {
		return invite.Code{}, fmt.Errorf("generate invite for %s: %w", deviceID, err)
	}
	return code, nil
}

func (c *Coordinator) RequestAccess(ctx context.Context, deviceID, pin string, userID uint) (*models.AccessGrant, error) {
	grant, err := c.invites.Redeem(ctx, strings.TrimSpace(pin), deviceID, userID)
	if err != nil {
		return nil, fmt.Errorf("request access to %s: %w", deviceID, err)
	}
	c.log.Info("Access requested", "device_id", deviceID, "user_id", userID, "access_id", grant.ID)
	return grant, nil
}

func (c *Coordinator) Approve(ctx context.Context, accessID, adminID uint) (*models.AccessGrant, error) {
	grant, err := c.ledger.Approve(ctx, accessID, adminID)
	if err != nil {
		return nil, fmt.Errorf("approve request %d: %w", accessID, err)
	}
	return grant, nil
}

func (c *Coordinator) Reject(ctx context.Context, accessID, adminID uint) error {
	if err := c.ledger.Reject(ctx, accessID, adminID); err != nil {
		return fmt.Errorf("reject request %d: %w", accessID, err)
	}
	return nil
}

// SendCommand delivers action to the device if userID holds accepted access.
// Delivery is fire-and-forget: an offline device fails the call with
// Unavailable and nothing is queued.
func (c *Coordinator) SendCommand(ctx context.Context, deviceID string, action Action, userID uint) error {
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}
	if _, err := c.ledger.RequireAccepted(ctx, userID, deviceID); err != nil {
		return fmt.Errorf("send %s to %s: %w", action, deviceID, err)
	}
	if !c.sessions.Send(deviceID, string(action)) {
		return apperr.Unavailable("device %s is offline; command not sent", deviceID)
	}
	c.log.Info("Command sent", "device_id", deviceID, "action", action, "user_id", userID)
	return nil
}

// RecoverAdmin makes userID the device's admin on proof of the master password.
func (c *Coordinator) RecoverAdmin(ctx context.Context, deviceID, masterPassword string, userID uint) (*models.AccessGrant, error) {
	grant, err := c.ledger.RecoverAdmin(ctx, deviceID, userID, masterPassword, verifyPassword)
	if err != nil {
		return nil, fmt.Errorf("recover admin of %s: %w", deviceID, err)
	}
	c.log.Warn("Admin recovered with master password", "device_id", deviceID, "user_id", userID)
	return grant, nil
}

// SetOfflinePassword pushes a new local password to the device. The server
// does not store it.
func (c *Coordinator) SetOfflinePassword(ctx context.Context, deviceID, password string, adminID uint) error {
	if password == "" {
		return apperr.Invalid("password must not be empty")
	}
	if _, err := c.ledger.RequireAdmin(ctx, adminID, deviceID); err != nil {
		return fmt.Errorf("set offline password on %s: %w", deviceID, err)
	}
	payload, err := json.Marshal(offlinePasswordCommand{Type: "SET_OFFLINE_PASS", Password: password})
	if err != nil {
		return err
	}
	if !c.sessions.Send(deviceID, string(payload)) {
		return apperr.Unavailable("device %s is offline; password not updated", deviceID)
	}
	return nil
}

// ListDevices returns the caller's accepted devices with their live status.
func (c *Coordinator) ListDevices(ctx context.Context, userID uint) ([]ledger.DeviceSummary, error) {
	devices, err := c.ledger.ListDevices(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		devices[i].Online = c.sessions.Online(devices[i].DeviceID)
	}
	return devices, nil
}

func (c *Coordinator) ListMembers(ctx context.Context, deviceID string, adminID uint) ([]ledger.Member, error) {
	members, err := c.ledger.ListGrants(ctx, deviceID, adminID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", deviceID, err)
	}
	return members, nil
}

func (c *Coordinator) RemoveMember(ctx context.Context, accessID, adminID uint) error {
	if err := c.ledger.RemoveMember(ctx, accessID, adminID); err != nil {
		return fmt.Errorf("remove member %d: %w", accessID, err)
	}
	return nil
}

func (c *Coordinator) RenameDevice(ctx context.Context, deviceID, name string, adminID uint) (*models.Device, error) {
	device, err := c.ledger.RenameDevice(ctx, deviceID, name, adminID)
	if err != nil {
		return nil, fmt.Errorf("rename %s: %w", deviceID, err)
	}
	return device, nil
}

// DeleteDevice removes the device and all grants, then drops its live session.
func (c *Coordinator) DeleteDevice(ctx context.Context, deviceID string, adminID uint) error {
	if err := c.ledger.DeleteDevice(ctx, deviceID, adminID); err != nil {
		return fmt.Errorf("delete %s: %w", deviceID, err)
	}
	c.sessions.Unregister(deviceID)
	c.log.Info("Device deleted", "device_id", deviceID, "user_id", adminID)
	return nil
}
