package services

import (
	"context"
	"errors"
	"time"

	"fleet-api/internal/database"
	"fleet-api/internal/models"
	"fleet-api/pkg/logging"

	"gorm.io/gorm"
)

// Plan change classification, mutually exclusive and checked in this order
const (
	ChangeCurrent          = "current"
	ChangeUpgrade          = "upgrade"
	ChangeDowngradeSafe    = "downgrade_safe"
	ChangeDowngradeWarning = "downgrade_warning"
)

// Plan change strategies
const (
	StrategyImmediate                    = "immediate"
	StrategyImmediateWithDeviceSelection = "immediate_with_device_selection"
	StrategyPayForExtraDevices           = "pay_for_extra_devices"
	StrategyEndOfPeriod                  = "end_of_period"
)

// extraSlotPriceCents is the billed price of one purchased device slot
const extraSlotPriceCents = 300

// ChangeAnalysis is the preview of a plan change before execution
type ChangeAnalysis struct {
	ChangeType          string      `json:"change_type"`
	CurrentPlan         models.Plan `json:"current_plan"`
	TargetPlan          models.Plan `json:"target_plan"`
	TargetInterval      string      `json:"target_interval"`
	ActiveDevices       int         `json:"active_devices"`
	TargetLimit         int         `json:"target_limit"`
	ShortfallDevices    int         `json:"shortfall_devices"`
	AvailableStrategies []string    `json:"available_strategies"`
}

// PlanChangeResult reports what an executed change did to the fleet
type PlanChangeResult struct {
	ChangeType       string                      `json:"change_type"`
	Strategy         string                      `json:"strategy"`
	Capacity         CapacityReport              `json:"capacity"`
	SuspendedDevices []models.Device             `json:"suspended_devices,omitempty"`
	WokenDevices     []models.Device             `json:"woken_devices,omitempty"`
	DisabledDevices  []models.Device             `json:"disabled_devices,omitempty"`
	PurchasedSlots   int                         `json:"purchased_slots,omitempty"`
	ScheduledChange  *models.ScheduledPlanChange `json:"scheduled_change,omitempty"`
}

// PlanChangeService cascades a subscription plan or interval change through
// the capacity engine: it re-derives the slot ledger and drives bulk suspend
// or wake through the same admission primitives, under the same per-user
// serialization unit.
type PlanChangeService struct {
	db        *gorm.DB
	locker    UserLocker
	ledger    *SlotLedger
	admission *AdmissionService
	state     *DeviceStateService
}

// NewPlanChangeService creates a new plan change service
func NewPlanChangeService(db *gorm.DB, locker UserLocker, admission *AdmissionService, state *DeviceStateService) *PlanChangeService {
	return &PlanChangeService{
		db:        db,
		locker:    locker,
		ledger:    NewSlotLedger(),
		admission: admission,
		state:     state,
	}
}

// Preview classifies a plan change and lists the strategies available for it.
// Read-only: nothing is mutated.
func (s *PlanChangeService) Preview(ctx context.Context, userID uint, targetPlanCode, interval string) (*ChangeAnalysis, error) {
	subscription, targetPlan, err := s.loadChangeInputs(s.db, userID, targetPlanCode)
	if err != nil {
		return nil, err
	}

	activeCount, err := database.CountUserDevicesByStatus(s.db, userID, models.DeviceActive)
	if err != nil {
		return nil, err
	}

	return s.analyze(subscription, targetPlan, interval, int(activeCount)), nil
}

// Execute applies a plan change with the chosen strategy. The whole cascade
// (plan mutation, slot purchase, bulk suspend or wake) runs as one per-user
// serializable unit.
func (s *PlanChangeService) Execute(ctx context.Context, userID uint, targetPlanCode, interval, strategy string, selectedDeviceIDs []uint) (*PlanChangeResult, error) {
	var result *PlanChangeResult
	events := s.state.StartEvents()

	err := s.locker.WithUserLock(ctx, userID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			subscription, targetPlan, err := s.loadChangeInputs(tx, userID, targetPlanCode)
			if err != nil {
				return err
			}
			if !subscription.IsActive() {
				return ErrSubscriptionInactive
			}

			activeCount, err := database.CountUserDevicesByStatus(tx, userID, models.DeviceActive)
			if err != nil {
				return err
			}

			analysis := s.analyze(subscription, targetPlan, interval, int(activeCount))
			if !strategyAvailable(analysis.AvailableStrategies, strategy) {
				return ErrInvalidStrategyForChangeType
			}

			result = &PlanChangeResult{ChangeType: analysis.ChangeType, Strategy: strategy}

			switch strategy {
			case StrategyEndOfPeriod:
				scheduled, err := s.scheduleChange(tx, subscription, targetPlan, interval)
				if err != nil {
					return err
				}
				result.ScheduledChange = scheduled

			case StrategyImmediateWithDeviceSelection:
				disabled, err := s.applyDeviceSelection(tx, subscription, analysis.TargetLimit, selectedDeviceIDs, events)
				if err != nil {
					return err
				}
				result.DisabledDevices = disabled
				if err := s.applyPlan(tx, subscription, targetPlan, interval); err != nil {
					return err
				}

			case StrategyPayForExtraDevices:
				if analysis.ShortfallDevices > 0 {
					if err := database.AddExtraDeviceSlots(tx, subscription.ID, analysis.ShortfallDevices, extraSlotPriceCents); err != nil {
						return err
					}
					result.PurchasedSlots = analysis.ShortfallDevices
				}
				if err := s.applyPlan(tx, subscription, targetPlan, interval); err != nil {
					return err
				}

			case StrategyImmediate:
				if err := s.applyPlan(tx, subscription, targetPlan, interval); err != nil {
					return err
				}
			}

			// Scheduled changes have no device impact until the period boundary
			if strategy != StrategyEndOfPeriod {
				// Reload with the new plan and slots, then cascade symmetrically:
				// suspend down to the new limit or wake back up into it.
				subscription, err = database.GetSubscriptionByUserID(tx, userID)
				if err != nil {
					return err
				}

				suspended, err := s.admission.EnforceCapacity(tx, subscription, 0, events)
				if err != nil {
					return err
				}
				result.SuspendedDevices = suspended

				woken, err := s.admission.ReclaimCapacity(tx, subscription, events)
				if err != nil {
					return err
				}
				result.WokenDevices = woken
			}

			devices, err := database.GetUserDevices(tx, userID)
			if err != nil {
				return err
			}
			result.Capacity = s.ledger.Capacity(subscription, devices)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	events.Dispatch()
	invalidateFleetOverview(ctx, userID)
	logging.Infof("Plan change executed - user: %d, target: %s/%s, strategy: %s, type: %s",
		userID, targetPlanCode, interval, strategy, result.ChangeType)
	return result, nil
}

// PurchaseExtraSlots adds purchased capacity for the billing collaborator and
// wakes suspended devices into the new slots.
func (s *PlanChangeService) PurchaseExtraSlots(ctx context.Context, userID uint, count int) (*PlanChangeResult, error) {
	var result *PlanChangeResult
	events := s.state.StartEvents()

	err := s.locker.WithUserLock(ctx, userID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			subscription, err := database.GetSubscriptionByUserID(tx, userID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrSubscriptionNotFound
				}
				return err
			}
			if !subscription.IsActive() {
				return ErrSubscriptionInactive
			}

			if err := database.AddExtraDeviceSlots(tx, subscription.ID, count, extraSlotPriceCents); err != nil {
				return err
			}

			subscription, err = database.GetSubscriptionByUserID(tx, userID)
			if err != nil {
				return err
			}

			woken, err := s.admission.ReclaimCapacity(tx, subscription, events)
			if err != nil {
				return err
			}

			devices, err := database.GetUserDevices(tx, userID)
			if err != nil {
				return err
			}

			result = &PlanChangeResult{
				Strategy:       StrategyPayForExtraDevices,
				PurchasedSlots: count,
				WokenDevices:   woken,
				Capacity:       s.ledger.Capacity(subscription, devices),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	events.Dispatch()
	invalidateFleetOverview(ctx, userID)
	return result, nil
}

// loadChangeInputs loads the subscription and the target plan, mapping
// missing rows and retired plans to precondition errors
func (s *PlanChangeService) loadChangeInputs(db *gorm.DB, userID uint, targetPlanCode string) (*models.Subscription, *models.Plan, error) {
	subscription, err := database.GetSubscriptionByUserID(db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSubscriptionNotFound
		}
		return nil, nil, err
	}

	targetPlan, err := database.GetPlanByCode(db, targetPlanCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrPlanNotFound
		}
		return nil, nil, err
	}
	if !targetPlan.IsActive {
		return nil, nil, ErrPlanNotActive
	}

	return subscription, targetPlan, nil
}

// analyze classifies the change and derives the available strategies.
// Direction compares plan base limits; the safety check compares the active
// device count against the effective target limit (base + purchased slots,
// which survive a plan change).
func (s *PlanChangeService) analyze(subscription *models.Subscription, targetPlan *models.Plan, interval string, activeCount int) *ChangeAnalysis {
	targetLimit := targetPlan.BaseDeviceLimit + len(subscription.ExtraSlots)

	analysis := &ChangeAnalysis{
		CurrentPlan:    subscription.Plan,
		TargetPlan:     *targetPlan,
		TargetInterval: interval,
		ActiveDevices:  activeCount,
		TargetLimit:    targetLimit,
	}

	switch {
	case targetPlan.ID == subscription.PlanID && interval == subscription.Interval:
		analysis.ChangeType = ChangeCurrent
		analysis.AvailableStrategies = []string{StrategyImmediate}
	case targetPlan.BaseDeviceLimit >= subscription.Plan.BaseDeviceLimit:
		analysis.ChangeType = ChangeUpgrade
		analysis.AvailableStrategies = []string{StrategyImmediate}
	case activeCount <= targetLimit:
		analysis.ChangeType = ChangeDowngradeSafe
		analysis.AvailableStrategies = []string{StrategyImmediate}
	default:
		analysis.ChangeType = ChangeDowngradeWarning
		analysis.ShortfallDevices = activeCount - targetLimit
		analysis.AvailableStrategies = []string{
			StrategyImmediateWithDeviceSelection,
			StrategyPayForExtraDevices,
			StrategyEndOfPeriod,
		}
	}

	return analysis
}

// applyPlan mutates the subscription's plan and interval
func (s *PlanChangeService) applyPlan(tx *gorm.DB, subscription *models.Subscription, targetPlan *models.Plan, interval string) error {
	subscription.PlanID = targetPlan.ID
	subscription.Plan = *targetPlan
	if interval != "" {
		subscription.Interval = interval
	}
	return database.SaveSubscription(tx, subscription)
}

// scheduleChange records an end-of-period downgrade. The billing collaborator
// owns the deferred execution; until then the fleet is untouched.
func (s *PlanChangeService) scheduleChange(tx *gorm.DB, subscription *models.Subscription, targetPlan *models.Plan, interval string) (*models.ScheduledPlanChange, error) {
	effectiveAt := time.Now().AddDate(0, 1, 0)
	if subscription.Interval == models.IntervalYear {
		effectiveAt = time.Now().AddDate(1, 0, 0)
	}

	scheduled := &models.ScheduledPlanChange{
		SubscriptionID: subscription.ID,
		TargetPlanID:   targetPlan.ID,
		TargetInterval: interval,
		EffectiveAt:    effectiveAt,
	}
	if err := database.CreateScheduledPlanChange(tx, scheduled); err != nil {
		return nil, err
	}
	return scheduled, nil
}

// applyDeviceSelection keeps exactly the selected devices active and disables
// every other active device. Disabling is permanent, distinct from suspension.
func (s *PlanChangeService) applyDeviceSelection(tx *gorm.DB, subscription *models.Subscription, targetLimit int, selectedDeviceIDs []uint, events *StatusEvents) ([]models.Device, error) {
	selected := make(map[uint]bool, len(selectedDeviceIDs))
	for _, id := range selectedDeviceIDs {
		selected[id] = true
	}
	// Count distinct ids: duplicates would otherwise slip past the check and
	// keep fewer devices than the target limit
	if len(selected) != targetLimit {
		return nil, ErrDeviceSelectionCountMismatch
	}

	actives, err := database.GetUserDevicesByStatus(tx, subscription.UserID, models.DeviceActive)
	if err != nil {
		return nil, err
	}

	// Every selected id must name one of the user's active devices
	activeByID := make(map[uint]bool, len(actives))
	for i := range actives {
		activeByID[actives[i].ID] = true
	}
	for id := range selected {
		if !activeByID[id] {
			return nil, ErrDeviceSelectionNotOperational
		}
	}

	var disabled []models.Device
	for i := range actives {
		if selected[actives[i].ID] {
			continue
		}
		if err := s.state.Disable(tx, &actives[i], events); err != nil {
			return nil, err
		}
		disabled = append(disabled, actives[i])
	}

	return disabled, nil
}

// strategyAvailable reports whether the strategy is in the analysis list
func strategyAvailable(available []string, strategy string) bool {
	for _, s := range available {
		if s == strategy {
			return true
		}
	}
	return false
}
