package api

import (
	"errors"
	"net/http"

	"fleet-api/internal/database"
	"fleet-api/internal/models"
	"fleet-api/internal/response"
	"fleet-api/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateUserRequest represents an onboarding request from the account service
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	PlanCode string `json:"plan_code" binding:"required"`
	Interval string `json:"interval" binding:"required,oneof=month year"`
}

// CreateUser creates a user with an active subscription. Onboarding belongs
// to the account and billing collaborators; this endpoint is their write path
// into the capacity engine's data model.
func CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	plan, err := database.GetPlanByCode(database.GetDB(), req.PlanCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			handleServiceError(c, services.ErrPlanNotFound)
			return
		}
		handleServiceError(c, err)
		return
	}
	if !plan.IsActive {
		handleServiceError(c, services.ErrPlanNotActive)
		return
	}

	user := &models.User{Email: req.Email, Name: req.Name}
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		subscription := &models.Subscription{
			UserID:   user.ID,
			PlanID:   plan.ID,
			Status:   models.SubscriptionActive,
			Interval: req.Interval,
		}
		return tx.Create(subscription).Error
	})
	if err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Failed to create user: "+err.Error())
		return
	}

	response.CreatedJSON(c, user)
}

// ListPlans returns the active plan catalog
func ListPlans(c *gin.Context) {
	plans, err := database.GetActivePlans(database.GetDB())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	response.SuccessJSON(c, plans)
}
