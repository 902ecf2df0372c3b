// ws.go - WebSocket endpoint devices connect to (/ws/device?deviceId=...)

package handlers

import (
	"strings"
	"time"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxDeviceMessage = 4096 // bytes

// DeviceSocket upgrades the request and keeps the device session alive until
// either side closes it. Missing ids close with 1007, unknown devices with 1008.
func (h *Handler) DeviceSocket(c *gin.Context) {
	deviceID := strings.TrimSpace(c.Query("deviceId"))

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "device_id", deviceID, "error", err)
		return // the upgrader already answered the request
	}
	conn := session.NewWebSocketConn(ws, h.session.WriteTimeout)

	if err := h.coord.OnConnect(c.Request.Context(), deviceID, conn); err != nil {
		code := websocket.CloseInternalServerErr
		switch apperr.KindOf(err) {
		case apperr.KindInvalid:
			code = websocket.CloseInvalidFramePayloadData
		case apperr.KindNotFound:
			code = websocket.ClosePolicyViolation
		}
		_ = conn.CloseWithReason(code, err.Error())
		return
	}
	defer h.coord.OnDisconnect(deviceID, conn)
	defer conn.Close()

	h.readLoop(deviceID, ws, conn)
}

// readLoop forwards text frames to the coordinator and pings the device so a
// silently dropped peer is detected within two ping intervals.
func (h *Handler) readLoop(deviceID string, ws *websocket.Conn, conn *session.WebSocketConn) {
	ws.SetReadLimit(maxDeviceMessage)

	ping := h.session.PingInterval
	if ping > 0 {
		extend := func() error { return ws.SetReadDeadline(time.Now().Add(2 * ping)) }
		_ = extend()
		ws.SetPongHandler(func(string) error { return extend() })

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(ping)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := conn.Ping(); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()
	}

	for {
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && conn.Writable() {
				h.log.Debug("Device connection dropped", "device_id", deviceID, "error", err)
			}
			return
		}
		if ping > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(2 * ping))
		}
		if kind == websocket.TextMessage {
			h.coord.OnMessage(deviceID, string(msg))
		}
	}
}
