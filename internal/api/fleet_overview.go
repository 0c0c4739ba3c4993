package api

import (
	"fleet-api/internal/response"

	"github.com/gin-gonic/gin"
)

// GetFleetOverview returns the dashboard rollup for a user: operational and
// suspended counts, capacity, ranked suspension priorities and upsell options
func GetFleetOverview(c *gin.Context) {
	userID, ok := parseIDParam(c)
	if !ok {
		return
	}

	overview, err := overviewService.GetOverview(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, overview)
}
