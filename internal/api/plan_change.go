package api

import (
	"net/http"

	"fleet-api/internal/response"

	"github.com/gin-gonic/gin"
)

// PlanChangePreviewRequest represents a plan change preview request
type PlanChangePreviewRequest struct {
	UserID         uint   `json:"user_id" binding:"required"`
	TargetPlanCode string `json:"target_plan_code" binding:"required"`
	Interval       string `json:"interval" binding:"required,oneof=month year"`
}

// PreviewPlanChange classifies a plan change and lists available strategies
// without mutating anything
func PreviewPlanChange(c *gin.Context) {
	var req PlanChangePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	analysis, err := planChangeService.Preview(c.Request.Context(), req.UserID, req.TargetPlanCode, req.Interval)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, analysis)
}

// PlanChangeExecuteRequest represents a plan change execution request
type PlanChangeExecuteRequest struct {
	UserID            uint   `json:"user_id" binding:"required"`
	TargetPlanCode    string `json:"target_plan_code" binding:"required"`
	Interval          string `json:"interval" binding:"required,oneof=month year"`
	Strategy          string `json:"strategy" binding:"required"`
	SelectedDeviceIDs []uint `json:"selected_device_ids"`
}

// ExecutePlanChange applies a plan change with the chosen strategy and
// cascades capacity through bulk suspend or wake
func ExecutePlanChange(c *gin.Context) {
	var req PlanChangeExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := lockCtx(c)
	defer cancel()

	result, err := planChangeService.Execute(ctx, req.UserID, req.TargetPlanCode, req.Interval, req.Strategy, req.SelectedDeviceIDs)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}

// PurchaseExtraSlotsRequest represents a slot purchase from the billing collaborator
type PurchaseExtraSlotsRequest struct {
	UserID uint `json:"user_id" binding:"required"`
	Count  int  `json:"count" binding:"required,min=1"`
}

// PurchaseExtraSlots adds purchased device slots and wakes suspended devices
// into the new capacity
func PurchaseExtraSlots(c *gin.Context) {
	var req PurchaseExtraSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := lockCtx(c)
	defer cancel()

	result, err := planChangeService.PurchaseExtraSlots(ctx, req.UserID, req.Count)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, result)
}
