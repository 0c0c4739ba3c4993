package models

import (
	"time"
)

// Subscription status values
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Billing interval values
const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Subscription 订阅模型
// One active billing relationship per user. The device limit is always derived
// from the plan's base limit plus the purchased extra slots, never stored.
type Subscription struct {
	BaseModel

	UserID uint `json:"user_id" gorm:"not null;uniqueIndex"`
	PlanID uint `json:"plan_id" gorm:"not null;index"`
	Plan   Plan `json:"plan" gorm:"foreignKey:PlanID"`

	Status   string `json:"status" gorm:"not null;size:20;index"` // active, past_due, canceled
	Interval string `json:"interval" gorm:"not null;size:10"`     // month, year

	ExtraSlots []ExtraDeviceSlot `json:"extra_slots" gorm:"foreignKey:SubscriptionID"`
}

// DeviceLimit returns the derived device limit: plan base limit + extra slots.
// Plan and ExtraSlots must be preloaded.
func (s *Subscription) DeviceLimit() int {
	return s.Plan.BaseDeviceLimit + len(s.ExtraSlots)
}

// IsActive reports whether the subscription can be billed for changes
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// ExtraDeviceSlot 额外设备槽位
// One row per purchased capacity unit; each contributes +1 to the device limit.
// Created and destroyed by the billing collaborator, counted by the slot ledger.
type ExtraDeviceSlot struct {
	BaseModel
	SubscriptionID uint `json:"subscription_id" gorm:"not null;index"`
	PriceCents     int  `json:"price_cents"`
}

// ScheduledPlanChange 计划变更排程
// Persisted end_of_period downgrade. The deferred execution itself belongs to
// the billing collaborator; we only record the schedule and report it back.
type ScheduledPlanChange struct {
	BaseModel
	SubscriptionID uint      `json:"subscription_id" gorm:"not null;index"`
	TargetPlanID   uint      `json:"target_plan_id" gorm:"not null"`
	TargetInterval string    `json:"target_interval" gorm:"not null;size:10"`
	EffectiveAt    time.Time `json:"effective_at"`
	Executed       bool      `json:"executed" gorm:"default:false;index"`
}
