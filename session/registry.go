// registry.go - In-memory table of device identifier -> live connection
//
// At most one connection is registered per device. Registering a new one
// swaps it in under the lock and closes the previous connection outside it,
// so a slow close never blocks other devices.

package session

import (
	"log/slog"
	"sync"
)

// Conn is a live, bidirectional text channel to one device.
type Conn interface {
	// WriteText delivers one text message. Implementations bound the write
	// with a deadline.
	WriteText(payload string) error
	// Writable reports whether the connection can still accept writes.
	Writable() bool
	// Close tears the connection down. It must be safe to call more than once.
	Close() error
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Conn
	log      *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Conn),
		log:      slog.With("component", "session"),
	}
}

// Register installs conn for deviceID, closing any connection it replaces.
func (r *Registry) Register(deviceID string, conn Conn) {
	r.mu.Lock()
	old := r.sessions[deviceID]
	r.sessions[deviceID] = conn
	total := len(r.sessions)
	r.mu.Unlock()

	if old != nil && old != conn {
		if err := old.Close(); err != nil {
			r.log.Debug("Closing replaced session failed", "device_id", deviceID, "error", err)
		}
		r.log.Info("Device session replaced", "device_id", deviceID)
	}
	r.log.Info("Device connected", "device_id", deviceID, "online", total)
}

// Unregister removes and closes whatever is registered for deviceID.
// It is a no-op when nothing is registered.
func (r *Registry) Unregister(deviceID string) {
	r.mu.Lock()
	conn, ok := r.sessions[deviceID]
	delete(r.sessions, deviceID)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		r.log.Debug("Closing evicted session failed", "device_id", deviceID, "error", err)
	}
	r.log.Info("Device session evicted", "device_id", deviceID)
}

// Release removes deviceID only if conn is still the registered connection.
// A replaced connection's disconnect therefore never evicts its successor.
func (r *Registry) Release(deviceID string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[deviceID]; !ok || current != conn {
		return false
	}
	delete(r.sessions, deviceID)
	r.log.Info("Device disconnected", "device_id", deviceID, "online", len(r.sessions))
	return true
}

// Send writes payload to the device's connection. It returns false, without
// retrying, when the device has no writable session or the write fails.
func (r *Registry) Send(deviceID, payload string) bool {
	r.mu.RLock()
	conn := r.sessions[deviceID]
	r.mu.RUnlock()

	if conn == nil || !conn.Writable() {
		return false
	}
	if err := conn.WriteText(payload); err != nil {
		r.log.Warn("Write to device failed", "device_id", deviceID, "error", err)
		return false
	}
	return true
}

// Online reports whether deviceID has a writable session.
func (r *Registry) Online(deviceID string) bool {
	r.mu.RLock()
	conn := r.sessions[deviceID]
	r.mu.RUnlock()
	return conn != nil && conn.Writable()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes and forgets every session (shutdown).
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Conn)
	r.mu.Unlock()

	for _, conn := range sessions {
		_ = conn.Close()
	}
}
