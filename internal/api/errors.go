package api

import (
	"errors"
	"net/http"
	"strconv"

	"fleet-api/internal/models"
	"fleet-api/internal/response"
	"fleet-api/internal/services"

	"github.com/gin-gonic/gin"
)

// handleServiceError maps the service error taxonomy onto HTTP statuses:
// precondition failures are 404, business rejections 409/422, the transient
// lock failure 503 so callers retry the whole call.
func handleServiceError(c *gin.Context, err error) {
	var invalidTransition *models.InvalidTransitionError

	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrDeviceNotFound),
		errors.Is(err, services.ErrSubscriptionNotFound),
		errors.Is(err, services.ErrPlanNotFound):
		response.ErrorJSON(c, http.StatusNotFound, err.Error())

	case errors.As(err, &invalidTransition):
		response.ErrorJSON(c, http.StatusConflict, err.Error())

	case errors.Is(err, services.ErrPlanNotActive),
		errors.Is(err, services.ErrSubscriptionInactive),
		errors.Is(err, services.ErrInvalidStrategyForChangeType),
		errors.Is(err, services.ErrDeviceSelectionCountMismatch),
		errors.Is(err, services.ErrDeviceSelectionNotOperational):
		response.ErrorJSON(c, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, services.ErrLockNotAcquired):
		response.ErrorJSON(c, http.StatusServiceUnavailable, "busy, please retry")

	default:
		response.ErrorJSON(c, http.StatusInternalServerError, "internal error: "+err.Error())
	}
}

// parseIDParam parses the :id path parameter
func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid id parameter")
		return 0, false
	}
	return uint(id), true
}
