// controller/device_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stronghold-io/bastion/devicetrust"
	bastion_errors "github.com/stronghold-io/bastion/errors"
	"github.com/stronghold-io/bastion/util"
)

type DeviceController struct {
	manager *devicetrust.Manager
}

func NewDeviceController(manager *devicetrust.Manager) *DeviceController {
	return &DeviceController{manager: manager}
}

// RegisterRoutes registers the API routes for device trust
func (dc *DeviceController) RegisterRoutes(r *gin.RouterGroup) {
	devices := r.Group("/devices")
	{
		devices.POST("", dc.RegisterDevice)
		devices.GET("/:fingerprint", dc.GetDevice)
		devices.POST("/:fingerprint/trust", dc.UpdateTrustScore)
		devices.POST("/:fingerprint/compromise", dc.MarkCompromised)
		devices.POST("/:fingerprint/sessions", dc.CreateSession)
	}
	r.POST("/sessions/validate", dc.ValidateSession)
}

type registerDeviceRequest struct {
	UserID  string            `json:"user_id" binding:"required"`
	Signals map[string]string `json:"signals" binding:"required"`
}

// RegisterDevice endpoint
func (dc *DeviceController) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid device data", err)
		return
	}

	device, err := dc.manager.RegisterDevice(c, req.UserID, req.Signals)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to register device", err)
		return
	}

	c.JSON(http.StatusCreated, device)
}

// GetDevice endpoint
func (dc *DeviceController) GetDevice(c *gin.Context) {
	device, err := dc.manager.GetDevice(c, c.Param("fingerprint"))
	if err != nil {
		if errors.Is(err, bastion_errors.ErrDeviceNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Device not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to load device", err)
		}
		return
	}

	c.JSON(http.StatusOK, device)
}

type trustUpdateRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// UpdateTrustScore endpoint
func (dc *DeviceController) UpdateTrustScore(c *gin.Context) {
	var req trustUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid trust delta", err)
		return
	}

	device, err := dc.manager.UpdateTrustScore(c, c.Param("fingerprint"), req.Delta)
	if err != nil {
		if errors.Is(err, bastion_errors.ErrDeviceNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Device not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to update trust score", err)
		}
		return
	}

	c.JSON(http.StatusOK, device)
}

// MarkCompromised endpoint
func (dc *DeviceController) MarkCompromised(c *gin.Context) {
	if err := dc.manager.MarkCompromised(c, c.Param("fingerprint")); err != nil {
		if errors.Is(err, bastion_errors.ErrDeviceNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Device not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to mark device compromised", err)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// CreateSession endpoint
func (dc *DeviceController) CreateSession(c *gin.Context) {
	session, err := dc.manager.CreateSession(c, c.Param("fingerprint"))
	if err != nil {
		switch {
		case errors.Is(err, bastion_errors.ErrDeviceNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Device not found", err)
		case errors.Is(err, bastion_errors.ErrDeviceCompromised):
			util.RespondWithError(c, http.StatusForbidden, "Device is compromised", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create session", err)
		}
		return
	}

	c.JSON(http.StatusCreated, session)
}

type validateSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// ValidateSession endpoint
func (dc *DeviceController) ValidateSession(c *gin.Context) {
	var req validateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid session token", err)
		return
	}

	session, err := dc.manager.ValidateSession(c, req.Token)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Session invalid", err)
		return
	}

	c.JSON(http.StatusOK, session)
}
