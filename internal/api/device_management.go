package api

import (
	"net/http"

	"fleet-api/internal/response"

	"github.com/gin-gonic/gin"
)

// SuspendDeviceRequest represents an explicit suspension request
type SuspendDeviceRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Reason string `json:"reason"`
}

// SuspendDevice suspends a device on user or admin request. Suspending an
// already suspended device refreshes its reason and grace period.
func SuspendDevice(c *gin.Context) {
	deviceID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req SuspendDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := lockCtx(c)
	defer cancel()

	device, err := deviceService.Suspend(ctx, req.UserID, deviceID, req.Reason)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, device)
}

// WakeDeviceRequest identifies the owner of the device being woken
type WakeDeviceRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// WakeDevice reactivates a suspended device. Always succeeds regardless of
// grace period expiry; at capacity the overflow is absorbed by suspending the
// lowest-priority device, same as any activation.
func WakeDevice(c *gin.Context) {
	deviceID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req WakeDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := lockCtx(c)
	defer cancel()

	result, err := deviceService.Wake(ctx, req.UserID, deviceID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

// DisableDeviceRequest identifies the owner of the device being disabled
type DisableDeviceRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// DisableDevice puts a device in its terminal state
func DisableDevice(c *gin.Context) {
	deviceID, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req DisableDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := lockCtx(c)
	defer cancel()

	device, err := deviceService.Disable(ctx, req.UserID, deviceID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, device)
}

// ListUserDevices returns all devices of a user
func ListUserDevices(c *gin.Context) {
	userID, ok := parseIDParam(c)
	if !ok {
		return
	}

	devices, err := deviceService.List(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, devices)
}
