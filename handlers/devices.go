// devices.go - HTTP handlers for claiming devices and managing who may use them

package handlers

import (
	"net/http"

	"rollingdoor-backend/middleware"

	"github.com/gin-gonic/gin"
)

type ClaimInput struct {
	DeviceID       string `json:"device_id" binding:"required"`
	DevicePassword string `json:"device_password" binding:"required"` // becomes the master password
}

type RequestAccessInput struct {
	DeviceID string `json:"device_id" binding:"required"`
	PIN      string `json:"pin" binding:"required,len=6,numeric"`
}

type AccessIDInput struct {
	AccessID uint `json:"access_id" form:"access_id" binding:"required"`
}

type RecoverAdminInput struct {
	DeviceID       string `json:"device_id" binding:"required"`
	MasterPassword string `json:"master_password" binding:"required"`
}

type RenameInput struct {
	DeviceID string `json:"device_id" binding:"required"`
	NewName  string `json:"new_name" binding:"required,max=100"`
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// Claim registers an unclaimed device; the caller becomes its admin.
func (h *Handler) Claim(c *gin.Context) {
	var input ClaimInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	device, err := h.coord.Claim(c.Request.Context(), input.DeviceID, input.DevicePassword, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device claimed", "device_id": device.DeviceID, "name": device.Name})
}

func (h *Handler) GenerateInvite(c *gin.Context) {
	code, err := h.coord.GenerateInvite(c.Request.Context(), c.Param("deviceId"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

func (h *Handler) RequestAccess(c *gin.Context) {
	var input RequestAccessInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	grant, err := h.coord.RequestAccess(c.Request.Context(), input.DeviceID, input.PIN, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "access requested; waiting for admin approval", "access_id": grant.ID})
}

func (h *Handler) ApproveAccess(c *gin.Context) {
	var input AccessIDInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := h.coord.Approve(c.Request.Context(), input.AccessID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "access approved"})
}

func (h *Handler) RejectAccess(c *gin.Context) {
	var input AccessIDInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.coord.Reject(c.Request.Context(), input.AccessID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "access request rejected"})
}

func (h *Handler) RecoverAdmin(c *gin.Context) {
	var input RecoverAdminInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := h.coord.RecoverAdmin(c.Request.Context(), input.DeviceID, input.MasterPassword, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "admin rights recovered"})
}

func (h *Handler) MyDevices(c *gin.Context) {
	devices, err := h.coord.ListDevices(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *Handler) Members(c *gin.Context) {
	members, err := h.coord.ListMembers(c.Request.Context(), c.Param("deviceId"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// RemoveMember takes the grant id as ?access_id=.
func (h *Handler) RemoveMember(c *gin.Context) {
	var input AccessIDInput
	if err := c.ShouldBindQuery(&input); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.coord.RemoveMember(c.Request.Context(), input.AccessID, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

func (h *Handler) RenameDevice(c *gin.Context) {
	var input RenameInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	device, err := h.coord.RenameDevice(c.Request.Context(), input.DeviceID, input.NewName, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device renamed", "name": device.Name})
}

func (h *Handler) DeleteDevice(c *gin.Context) {
	if err := h.coord.DeleteDevice(c.Request.Context(), c.Param("deviceId"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device deleted"})
}
