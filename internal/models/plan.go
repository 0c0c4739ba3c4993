package models

// Plan 套餐目录
// Immutable catalog entry, read-only for this service. Base device limit plus
// purchased extra slots gives the subscription's device limit.
type Plan struct {
	BaseModel
	Code            string `json:"code" gorm:"uniqueIndex;not null;size:50"` // basic, professional, enterprise
	Name            string `json:"name" gorm:"not null"`
	BaseDeviceLimit int    `json:"base_device_limit" gorm:"not null"`
	PriceMonthCents int    `json:"price_month_cents"`
	PriceYearCents  int    `json:"price_year_cents"`
	IsActive        bool   `json:"is_active" gorm:"default:true"`
}

// Default plan codes seeded by the database layer
const (
	PlanBasic        = "basic"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)
