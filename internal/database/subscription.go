package database

import (
	"fleet-api/internal/models"

	"gorm.io/gorm"
)

// GetUserByID 通过ID获取用户
func GetUserByID(db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	err := db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetSubscriptionByUserID 获取用户的订阅（带套餐和额外槽位）
func GetSubscriptionByUserID(db *gorm.DB, userID uint) (*models.Subscription, error) {
	var subscription models.Subscription
	err := db.Preload("Plan").Preload("ExtraSlots").
		Where("user_id = ?", userID).First(&subscription).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

// SaveSubscription 保存订阅
func SaveSubscription(db *gorm.DB, subscription *models.Subscription) error {
	return db.Save(subscription).Error
}

// GetPlanByID 通过ID获取套餐
func GetPlanByID(db *gorm.DB, id uint) (*models.Plan, error) {
	var plan models.Plan
	err := db.First(&plan, id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetPlanByCode 通过代码获取套餐
func GetPlanByCode(db *gorm.DB, code string) (*models.Plan, error) {
	var plan models.Plan
	err := db.Where("code = ?", code).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetActivePlans lists plans that can be subscribed to
func GetActivePlans(db *gorm.DB) ([]models.Plan, error) {
	var plans []models.Plan
	err := db.Where("is_active = ?", true).Order("base_device_limit ASC").Find(&plans).Error
	return plans, err
}

// AddExtraDeviceSlots creates n extra slot rows for a subscription
func AddExtraDeviceSlots(db *gorm.DB, subscriptionID uint, n, priceCents int) error {
	for i := 0; i < n; i++ {
		slot := models.ExtraDeviceSlot{
			SubscriptionID: subscriptionID,
			PriceCents:     priceCents,
		}
		if err := db.Create(&slot).Error; err != nil {
			return err
		}
	}
	return nil
}

// CountExtraDeviceSlots counts the purchased slots of a subscription
func CountExtraDeviceSlots(db *gorm.DB, subscriptionID uint) (int64, error) {
	var count int64
	err := db.Model(&models.ExtraDeviceSlot{}).
		Where("subscription_id = ?", subscriptionID).
		Count(&count).Error
	return count, err
}

// CreateScheduledPlanChange records a deferred end-of-period plan change
func CreateScheduledPlanChange(db *gorm.DB, change *models.ScheduledPlanChange) error {
	return db.Create(change).Error
}

// GetPendingScheduledChange gets the unexecuted scheduled change of a
// subscription, if any
func GetPendingScheduledChange(db *gorm.DB, subscriptionID uint) (*models.ScheduledPlanChange, error) {
	var change models.ScheduledPlanChange
	err := db.Where("subscription_id = ? AND executed = ?", subscriptionID, false).
		Order("created_at DESC").First(&change).Error
	if err != nil {
		return nil, err
	}
	return &change, nil
}
