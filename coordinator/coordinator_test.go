package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/database/dbtest"
	"rollingdoor-backend/invite"
	"rollingdoor-backend/ledger"
	"rollingdoor-backend/models"
	"rollingdoor-backend/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// fakeSessions records deliveries for devices marked online.
type fakeSessions struct {
	mu         sync.Mutex
	online     map[string]session.Conn
	sent       map[string][]string
	unregister []string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{online: map[string]session.Conn{}, sent: map[string][]string{}}
}

func (f *fakeSessions) Register(deviceID string, conn session.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[deviceID] = conn
}

func (f *fakeSessions) Release(deviceID string, conn session.Conn) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.online[deviceID] != conn {
		return false
	}
	delete(f.online, deviceID)
	return true
}

func (f *fakeSessions) Unregister(deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.online, deviceID)
	f.unregister = append(f.unregister, deviceID)
}

func (f *fakeSessions) Send(deviceID, payload string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.online[deviceID]; !ok {
		return false
	}
	f.sent[deviceID] = append(f.sent[deviceID], payload)
	return true
}

func (f *fakeSessions) Online(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.online[deviceID]
	return ok
}

type nopConn struct{}

func (nopConn) WriteText(string) error { return nil }
func (nopConn) Writable() bool         { return true }
func (nopConn) Close() error           { return nil }

type env struct {
	db       *gorm.DB
	coord    *Coordinator
	sessions *fakeSessions
}

func setup(t *testing.T) *env {
	t.Helper()
	db := dbtest.New(t)
	l := ledger.New(db)
	sessions := newFakeSessions()
	c := New(l, invite.NewIssuer(l, invite.DefaultTTL), sessions)
	c.bcryptCost = bcrypt.MinCost
	return &env{db: db, coord: c, sessions: sessions}
}

func (e *env) user(t *testing.T, name string) uint {
	t.Helper()
	u := models.User{Username: name, Password: "x"}
	require.NoError(t, e.db.Create(&u).Error)
	return u.ID
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" open ")
	require.NoError(t, err)
	assert.Equal(t, ActionOpen, a)

	_, err = ParseAction("EXPLODE")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestClaimInviteApproveCommandScenario(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.user(t, "admin")
	member := e.user(t, "member")

	device, err := e.coord.Claim(ctx, "D1", "secret1", admin)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", device.MasterHash)

	code, err := e.coord.GenerateInvite(ctx, "D1", admin)
	require.NoError(t, err)
	assert.Len(t, code.PIN, 6)
	assert.Equal(t, 300, code.ExpiresIn)

	pending, err := e.coord.RequestAccess(ctx, "D1", code.PIN, member)
	require.NoError(t, err)
	assert.Equal(t, models.StandingPendingMember, pending.Standing())

	var codes int64
	require.NoError(t, e.db.Model(&models.InviteCode{}).Count(&codes).Error)
	assert.Zero(t, codes)

	// not yet accepted
	assert.ErrorIs(t, e.coord.SendCommand(ctx, "D1", ActionOpen, member), apperr.ErrForbidden)

	approved, err := e.coord.Approve(ctx, pending.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, approved.Status)

	// device offline
	err = e.coord.SendCommand(ctx, "D1", ActionOpen, member)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	require.NoError(t, e.coord.OnConnect(ctx, "D1", nopConn{}))
	require.NoError(t, e.coord.SendCommand(ctx, "D1", ActionOpen, member))
	require.NoError(t, e.coord.SendCommand(ctx, "D1", ActionStop, admin))
	assert.Equal(t, []string{"OPEN", "STOP"}, e.sessions.sent["D1"])
}

func TestClaimTwiceConflicts(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.coord.Claim(ctx, "D1", "pw", e.user(t, "a"))
	require.NoError(t, err)
	_, err = e.coord.Claim(ctx, "D1", "pw", e.user(t, "b"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = e.coord.Claim(ctx, " ", "pw", e.user(t, "c"))
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestGenerateInviteRequiresAdmin(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.user(t, "admin")
	other := e.user(t, "other")
	_, err := e.coord.Claim(ctx, "D1", "pw", admin)
	require.NoError(t, err)

	_, err = e.coord.GenerateInvite(ctx, "D1", other)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.coord.GenerateInvite(ctx, "D404", admin)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecoverAdminScenario(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := e.user(t, "owner")
	rescuer := e.user(t, "rescuer")

	_, err := e.coord.Claim(ctx, "D1", "secret1", owner)
	require.NoError(t, err)

	_, err = e.coord.RecoverAdmin(ctx, "D1", "wrong", rescuer)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	grant, err := e.coord.RecoverAdmin(ctx, "D1", "secret1", rescuer)
	require.NoError(t, err)
	assert.Equal(t, models.StandingAcceptedAdmin, grant.Standing())

	devices, err := e.coord.ListDevices(ctx, owner)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, models.RoleMember, devices[0].Role)

	// the old owner can still operate the door but no longer administer it
	_, err = e.coord.GenerateInvite(ctx, "D1", owner)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = e.coord.GenerateInvite(ctx, "D1", rescuer)
	assert.NoError(t, err)
}

func TestSetOfflinePassword(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.user(t, "admin")
	_, err := e.coord.Claim(ctx, "D1", "pw", admin)
	require.NoError(t, err)

	assert.ErrorIs(t, e.coord.SetOfflinePassword(ctx, "D1", "1234", admin), apperr.ErrUnavailable)

	require.NoError(t, e.coord.OnConnect(ctx, "D1", nopConn{}))
	require.NoError(t, e.coord.SetOfflinePassword(ctx, "D1", "1234", admin))

	require.Len(t, e.sessions.sent["D1"], 1)
	var msg map[string]string
	require.NoError(t, json.Unmarshal([]byte(e.sessions.sent["D1"][0]), &msg))
	assert.Equal(t, map[string]string{"type": "SET_OFFLINE_PASS", "password": "1234"}, msg)

	assert.ErrorIs(t, e.coord.SetOfflinePassword(ctx, "D1", "1234", e.user(t, "x")), apperr.ErrForbidden)
}

func TestListDevicesReportsOnline(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	u := e.user(t, "u")
	_, err := e.coord.Claim(ctx, "D1", "pw", u)
	require.NoError(t, err)
	_, err = e.coord.Claim(ctx, "D2", "pw", u)
	require.NoError(t, err)
	require.NoError(t, e.coord.OnConnect(ctx, "D2", nopConn{}))

	devices, err := e.coord.ListDevices(ctx, u)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.False(t, devices[0].Online)
	assert.True(t, devices[1].Online)
}

func TestRenameRemoveAndDelete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.user(t, "admin")
	member := e.user(t, "member")
	_, err := e.coord.Claim(ctx, "D1", "pw", admin)
	require.NoError(t, err)

	code, err := e.coord.GenerateInvite(ctx, "D1", admin)
	require.NoError(t, err)
	req, err := e.coord.RequestAccess(ctx, "D1", code.PIN, member)
	require.NoError(t, err)
	_, err = e.coord.Approve(ctx, req.ID, admin)
	require.NoError(t, err)

	members, err := e.coord.ListMembers(ctx, "D1", admin)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	renamed, err := e.coord.RenameDevice(ctx, "D1", "Front gate", admin)
	require.NoError(t, err)
	assert.Equal(t, "Front gate", renamed.Name)

	require.NoError(t, e.coord.RemoveMember(ctx, req.ID, admin))
	assert.ErrorIs(t, e.coord.SendCommand(ctx, "D1", ActionOpen, member), apperr.ErrForbidden)

	require.NoError(t, e.coord.OnConnect(ctx, "D1", nopConn{}))
	assert.ErrorIs(t, e.coord.DeleteDevice(ctx, "D1", member), apperr.ErrForbidden)
	require.NoError(t, e.coord.DeleteDevice(ctx, "D1", admin))
	assert.Equal(t, []string{"D1"}, e.sessions.unregister)
	assert.False(t, e.sessions.Online("D1"))
}

func TestRejectedRequestCanRetry(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	admin := e.user(t, "admin")
	bob := e.user(t, "bob")
	_, err := e.coord.Claim(ctx, "D1", "pw", admin)
	require.NoError(t, err)

	code, err := e.coord.GenerateInvite(ctx, "D1", admin)
	require.NoError(t, err)
	req, err := e.coord.RequestAccess(ctx, "D1", code.PIN, bob)
	require.NoError(t, err)
	require.NoError(t, e.coord.Reject(ctx, req.ID, admin))

	code, err = e.coord.GenerateInvite(ctx, "D1", admin)
	require.NoError(t, err)
	_, err = e.coord.RequestAccess(ctx, "D1", code.PIN, bob)
	assert.NoError(t, err)
}

func TestOnConnect(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.coord.Claim(ctx, "D1", "pw", e.user(t, "admin"))
	require.NoError(t, err)

	assert.ErrorIs(t, e.coord.OnConnect(ctx, "", nopConn{}), apperr.ErrInvalid)
	assert.ErrorIs(t, e.coord.OnConnect(ctx, "ghost", nopConn{}), apperr.ErrNotFound)
	assert.False(t, e.sessions.Online("ghost"))

	conn := nopConn{}
	require.NoError(t, e.coord.OnConnect(ctx, "D1", conn))
	assert.True(t, e.sessions.Online("D1"))

	e.coord.OnMessage("D1", "door closed")
	e.coord.OnDisconnect("D1", conn)
	assert.False(t, e.sessions.Online("D1"))
}
