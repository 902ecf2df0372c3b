// handlers.go - Shared handler state, error translation and route table

package handlers

import (
	"log/slog"
	"net/http"

	"rollingdoor-backend/apperr"
	"rollingdoor-backend/config"
	"rollingdoor-backend/coordinator"
	"rollingdoor-backend/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// SessionCounter reports how many devices are connected.
type SessionCounter interface {
	Count() int
}

type Handler struct {
	db       *gorm.DB
	coord    *coordinator.Coordinator
	jwt      config.JWTConfig
	session  config.SessionConfig
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func New(db *gorm.DB, coord *coordinator.Coordinator, jwt config.JWTConfig, sessionCfg config.SessionConfig) *Handler {
	return &Handler{
		db:      db,
		coord:   coord,
		jwt:     jwt,
		session: sessionCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices are not browsers and send no Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: slog.With("component", "http"),
	}
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, sessions SessionCounter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(h.log))

	// Public routes (no authentication required)
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online_devices": sessions.Count()})
	})

	// Device connections identify themselves by deviceId
	r.GET("/ws/device", h.DeviceSocket)

	// Protected routes (require JWT authentication)
	api := r.Group("/api/devices")
	api.Use(middleware.AuthMiddleware(h.jwt.Secret))
	{
		api.POST("/claim", h.Claim)
		api.GET("/:deviceId/generate-invite", h.GenerateInvite)
		api.POST("/request-access", h.RequestAccess)
		api.POST("/approve-access", h.ApproveAccess)
		api.POST("/reject-access", h.RejectAccess)
		api.POST("/command", h.SendCommand)
		api.POST("/recover-admin", h.RecoverAdmin)
		api.POST("/set-offline-password", h.SetOfflinePassword)
		api.GET("/my-devices", h.MyDevices)
		api.GET("/:deviceId/members", h.Members)
		api.DELETE("/remove-member", h.RemoveMember)
		api.PUT("/rename-device", h.RenameDevice)
		api.DELETE("/delete-device/:deviceId", h.DeleteDevice)
	}
	return r
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a core failure onto an HTTP status. Unclassified errors
// are logged and hidden behind a generic message.
func respondError(c *gin.Context, err error) {
	status := statusFor(apperr.KindOf(err))
	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
