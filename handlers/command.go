// command.go - Handles door commands sent to a connected device
// Commands are relayed over the device's live session (WebSocket or MQTT):
// 1. The caller must hold accepted access to the device
// 2. The device must be online, otherwise 503 is returned and nothing is queued

package handlers // Declares the package name

import ( // Import required packages
	"net/http" // HTTP status codes (200, 400, 503, etc.)

	"rollingdoor-backend/coordinator" // Action parsing and command relay
	"rollingdoor-backend/middleware"  // Authenticated user lookup

	"github.com/gin-gonic/gin" // Gin web framework for HTTP handlers
)

// CommandInput - Structure for door command requests
type CommandInput struct {
	DeviceID string `json:"device_id" binding:"required"` // Target device (required)
	Action   string `json:"action" binding:"required"`    // OPEN, CLOSE or STOP (required)
}

// OfflinePasswordInput - Structure for the offline password push
type OfflinePasswordInput struct {
	DeviceID string `json:"device_id" binding:"required"`      // Target device (required)
	Password string `json:"password" binding:"required,min=4"` // Password the device accepts while offline
}

// SendCommand - HTTP handler to send a door command to a device
func (h *Handler) SendCommand(c *gin.Context) {
	var input CommandInput                           // Declare input variable
	if err := c.ShouldBindJSON(&input); err != nil { // Parse JSON input from request body
		badRequest(c, err) // Return 400 error if JSON is invalid
		return
	}
	action, err := coordinator.ParseAction(input.Action) // Reject anything but OPEN/CLOSE/STOP
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.coord.SendCommand(c.Request.Context(), input.DeviceID, action, middleware.UserID(c)); err != nil {
		respondError(c, err) // 403 without access, 503 if the device is offline
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "command sent", "action": action}) // Return 200 success response
}

// SetOfflinePassword - HTTP handler to push a new offline password to a device (admin only)
func (h *Handler) SetOfflinePassword(c *gin.Context) {
	var input OfflinePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.coord.SetOfflinePassword(c.Request.Context(), input.DeviceID, input.Password, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "offline password sent to device"})
}
