package services

import (
	"fleet-api/internal/models"
)

// CapacityReport is the slot arithmetic of one subscription
type CapacityReport struct {
	Total     int `json:"total"`
	Used      int `json:"used"`
	Available int `json:"available"`
}

// SlotLedger computes device capacity from a subscription and a device-set
// snapshot. Pure arithmetic: no queries, no mutation, so it is unit-testable
// without a database. Missing subscription/plan is the caller's precondition.
type SlotLedger struct{}

// NewSlotLedger creates a new slot ledger
func NewSlotLedger() *SlotLedger {
	return &SlotLedger{}
}

// Capacity computes total/used/available slots. Used counts active devices
// only: pending, suspended and disabled devices hold no slot.
func (l *SlotLedger) Capacity(subscription *models.Subscription, devices []models.Device) CapacityReport {
	total := subscription.DeviceLimit()

	used := 0
	for i := range devices {
		if devices[i].IsOperational() {
			used++
		}
	}

	available := total - used
	if available < 0 {
		available = 0
	}

	return CapacityReport{Total: total, Used: used, Available: available}
}
