package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleet-api/internal/database"
	"fleet-api/internal/models"
	"fleet-api/pkg/logging"

	"gorm.io/gorm"
)

// overviewCacheTTL keeps the dashboard read cheap without serving stale
// counts for long
const overviewCacheTTL = 30 * time.Second

// FleetOverview is the derived read view for the dashboard collaborator.
// Pure rollup over the data model, no side effects.
type FleetOverview struct {
	UserID                  uint                        `json:"user_id"`
	OperationalDevicesCount int                         `json:"operational_devices_count"`
	SuspendedDevicesCount   int                         `json:"suspended_devices_count"`
	PendingDevicesCount     int                         `json:"pending_devices_count"`
	Capacity                CapacityReport              `json:"capacity"`
	ExtraSlotsCount         int64                       `json:"extra_slots_count"`
	SuspensionPriorities    []RankedDevice              `json:"suspension_priorities"`
	UpsellOptions           []string                    `json:"upsell_options"`
	PendingPlanChange       *models.ScheduledPlanChange `json:"pending_plan_change,omitempty"`
}

// FleetOverviewService serves the reporting reads over a user's fleet
type FleetOverviewService struct {
	db     *gorm.DB
	ledger *SlotLedger
	scorer *PriorityScorer
}

// NewFleetOverviewService creates a new fleet overview service
func NewFleetOverviewService(db *gorm.DB) *FleetOverviewService {
	return &FleetOverviewService{
		db:     db,
		ledger: NewSlotLedger(),
		scorer: NewPriorityScorer(),
	}
}

func fleetOverviewCacheKey(userID uint) string {
	return fmt.Sprintf("fleet_overview:%d", userID)
}

// invalidateFleetOverview drops the cached overview after any fleet mutation
func invalidateFleetOverview(ctx context.Context, userID uint) {
	if err := database.DeleteCache(ctx, fleetOverviewCacheKey(userID)); err != nil {
		logging.Warnf("Failed to invalidate fleet overview cache - user: %d, error: %v", userID, err)
	}
}

// GetOverview computes the fleet overview for a user, serving from the Redis
// cache when fresh. The suspension priorities rank the currently active
// devices evict-first; the same ranking is the hibernation priority view.
func (s *FleetOverviewService) GetOverview(ctx context.Context, userID uint) (*FleetOverview, error) {
	cacheKey := fleetOverviewCacheKey(userID)
	if cached, err := database.GetCache(ctx, cacheKey); err == nil && cached != "" {
		var overview FleetOverview
		if err := json.Unmarshal([]byte(cached), &overview); err == nil {
			return &overview, nil
		}
	}

	subscription, err := database.GetSubscriptionByUserID(s.db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	devices, err := database.GetUserDevices(s.db, userID)
	if err != nil {
		return nil, err
	}

	extraSlots, err := database.CountExtraDeviceSlots(s.db, subscription.ID)
	if err != nil {
		return nil, err
	}

	overview := &FleetOverview{
		UserID:               userID,
		Capacity:             s.ledger.Capacity(subscription, devices),
		ExtraSlotsCount:      extraSlots,
		SuspensionPriorities: s.scorer.Rank(operationalOnly(devices), time.Now()),
		UpsellOptions:        upsellOptionsFor(s.db, subscription),
	}
	if pending, err := database.GetPendingScheduledChange(s.db, subscription.ID); err == nil {
		overview.PendingPlanChange = pending
	}
	for i := range devices {
		switch devices[i].Status {
		case models.DeviceActive:
			overview.OperationalDevicesCount++
		case models.DeviceSuspended:
			overview.SuspendedDevicesCount++
		case models.DevicePending:
			overview.PendingDevicesCount++
		}
	}

	if payload, err := json.Marshal(overview); err == nil {
		if err := database.SetCache(ctx, cacheKey, payload, overviewCacheTTL); err != nil {
			logging.Warnf("Failed to cache fleet overview - user: %d, error: %v", userID, err)
		}
	}

	return overview, nil
}
