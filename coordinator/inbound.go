package coordinator

import (
	"context"
	"fmt"
	"strings"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/session"
)

// OnConnect admits a device connection. Only claimed devices may connect;
// the caller closes conn when an error is returned.
func (c *Coordinator) OnConnect(ctx context.Context, deviceID string, conn session.Conn) error {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return apperr.Invalid("device id is required")
	}
	known, err := c.ledger.DeviceExists(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("look up device %s: %w", deviceID, err)
	}
	if !known {
		c.log.Warn("Rejected connection from unknown device", "device_id", deviceID)
		return apperr.NotFound("device %s is not registered", deviceID)
	}
	c.sessions.Register(deviceID, conn)
	return nil
}

// OnDisconnect forgets conn if it is still the device's session.
func (c *Coordinator) OnDisconnect(deviceID string, conn session.Conn) {
	c.sessions.Release(deviceID, conn)
}

// OnMessage records a message from the device. Messages carry no semantics yet.
func (c *Coordinator) OnMessage(deviceID, text string) {
	c.log.Info("Message from device", "device_id", deviceID, "message", text)
}
