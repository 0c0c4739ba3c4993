package api

import (
	"context"
	"net/http"
	"time"

	"fleet-api/internal/config"
	"fleet-api/internal/response"

	"github.com/gin-gonic/gin"
)

// lockCtx bounds how long a request waits for the per-user serialization unit
func lockCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := 10 * time.Second
	if config.AppConfig != nil && config.AppConfig.LockTimeoutSec > 0 {
		timeout = time.Duration(config.AppConfig.LockTimeoutSec) * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

// RegisterDeviceRequest represents a device registration request
type RegisterDeviceRequest struct {
	UserID       uint   `json:"user_id" binding:"required"`
	DeviceTypeID uint   `json:"device_type_id"`
	Name         string `json:"name" binding:"required"`
}

// RegisterDevice creates a device in pending state. Registration itself never
// consumes a slot; the device enters capacity accounting on first activation.
func RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	device, err := deviceService.Register(c.Request.Context(), req.UserID, req.DeviceTypeID, req.Name)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.CreatedJSON(c, device)
}

// ActivateDeviceRequest identifies the owner of the device being activated
type ActivateDeviceRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// ActivateDevice admits an activation under the always-accept policy. The
// request never fails for capacity: going over the limit auto-suspends the
// lowest-priority device and the response reports it with upsell options.
func ActivateDevice(c *gin.Context) {
	deviceID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ActivateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := lockCtx(c)
	defer cancel()

	result, err := admissionService.AdmitActivation(ctx, req.UserID, deviceID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

// HeartbeatDeviceRequest identifies the owner of the reporting device
type HeartbeatDeviceRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// HeartbeatDevice refreshes last_connection for the priority scorer
func HeartbeatDevice(c *gin.Context) {
	deviceID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req HeartbeatDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	device, err := deviceService.Heartbeat(c.Request.Context(), req.UserID, deviceID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, device)
}
