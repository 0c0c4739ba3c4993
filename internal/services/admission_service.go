package services

import (
	"context"
	"errors"
	"time"

	"fleet-api/internal/config"
	"fleet-api/internal/database"
	"fleet-api/internal/models"
	"fleet-api/pkg/logging"

	"gorm.io/gorm"
)

// DefaultGracePeriodDays is the grace period attached to auto-suspensions
const DefaultGracePeriodDays = 7

// Upsell option identifiers. Advisory payload for the caller, never control flow.
const (
	UpsellUpgradePlan        = "upgrade_plan"
	UpsellManageDevices      = "manage_devices"
	UpsellPayForExtraDevices = "pay_for_extra_devices"
)

// AdmissionResult reports the outcome of an always-accept activation
type AdmissionResult struct {
	DeviceActivated  bool           `json:"device_activated"`
	Hibernated       bool           `json:"hibernated"`
	HibernatedDevice *models.Device `json:"hibernated_device,omitempty"`
	Capacity         CapacityReport `json:"capacity"`
	UpsellOptions    []string       `json:"upsell_options,omitempty"`
}

// AdmissionService admits device activations under the always-accept policy:
// an activation never fails for capacity. When the activation pushes the user
// over the limit, the lowest-value active device is auto-suspended instead.
// Check, ranking and mutation run as one serializable unit per user: inside
// the UserLocker and a single database transaction.
type AdmissionService struct {
	db     *gorm.DB
	locker UserLocker
	ledger *SlotLedger
	scorer *PriorityScorer
	state  *DeviceStateService

	GraceDays int
}

// NewAdmissionService creates a new admission service
func NewAdmissionService(db *gorm.DB, locker UserLocker, state *DeviceStateService) *AdmissionService {
	graceDays := DefaultGracePeriodDays
	if config.AppConfig != nil && config.AppConfig.GracePeriodDays > 0 {
		graceDays = config.AppConfig.GracePeriodDays
	}
	return &AdmissionService{
		db:        db,
		locker:    locker,
		ledger:    NewSlotLedger(),
		scorer:    NewPriorityScorer(),
		state:     state,
		GraceDays: graceDays,
	}
}

// AdmitActivation activates a device for a user. Never rejects for capacity:
// when the activation goes over the limit, the highest-priority other device
// is suspended with reason over_device_limit and the result carries the
// victim plus upsell options. Precondition failures (unknown device or
// subscription, disabled device) are the only errors.
func (s *AdmissionService) AdmitActivation(ctx context.Context, userID, deviceID uint) (*AdmissionResult, error) {
	var result *AdmissionResult
	events := s.state.StartEvents()

	err := s.locker.WithUserLock(ctx, userID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			device, err := database.GetUserDevice(tx, userID, deviceID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrDeviceNotFound
				}
				return err
			}

			subscription, err := database.GetSubscriptionByUserID(tx, userID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrSubscriptionNotFound
				}
				return err
			}

			// Idempotent when the device is already active
			if err := s.state.Activate(tx, device, events); err != nil {
				return err
			}

			// The just-activated device is never its own eviction victim:
			// that guarantees forward progress and avoids flapping.
			suspended, err := s.EnforceCapacity(tx, subscription, device.ID, events)
			if err != nil {
				return err
			}

			devices, err := database.GetUserDevices(tx, userID)
			if err != nil {
				return err
			}

			result = &AdmissionResult{
				DeviceActivated: true,
				Capacity:        s.ledger.Capacity(subscription, devices),
			}
			if len(suspended) > 0 {
				result.Hibernated = true
				result.HibernatedDevice = &suspended[0]
				result.UpsellOptions = upsellOptionsFor(tx, subscription)
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

// EnforceCapacity suspends the lowest-value active devices of a subscription
// until the active count fits the limit, excluding excludeID from eviction
// (zero excludes nothing). Must run inside the caller's per-user transaction;
// notifications go through the caller's event buffer.
func (s *AdmissionService) EnforceCapacity(tx *gorm.DB, subscription *models.Subscription, excludeID uint, events *StatusEvents) ([]models.Device, error) {
	now := time.Now()
	var suspended []models.Device

	for {
		devices, err := database.GetUserDevices(tx, subscription.UserID)
		if err != nil {
			return nil, err
		}

		report := s.ledger.Capacity(subscription, devices)
		if report.Used <= report.Total {
			return suspended, nil
		}

		victim := s.scorer.PickVictim(operationalOnly(devices), excludeID, now)
		if victim == nil {
			// Nothing left to evict besides the protected device. Always
			// accept wins over the limit; leave the overshoot for the caller
			// to resolve through plan change.
			logging.Warnf("Over device limit with no eviction candidate - user: %d, used: %d, total: %d",
				subscription.UserID, report.Used, report.Total)
			return suspended, nil
		}

		if err := s.state.Suspend(tx, victim, models.ReasonOverDeviceLimit, s.GraceDays, events); err != nil {
			return nil, err
		}
		suspended = append(suspended, *victim)
	}
}

// ReclaimCapacity wakes suspended devices while free slots remain, best
// connectivity first. The symmetric counterpart of EnforceCapacity, used when
// a plan change or a slot purchase grows the limit. Must run inside the
// caller's per-user transaction.
func (s *AdmissionService) ReclaimCapacity(tx *gorm.DB, subscription *models.Subscription, events *StatusEvents) ([]models.Device, error) {
	now := time.Now()

	devices, err := database.GetUserDevices(tx, subscription.UserID)
	if err != nil {
		return nil, err
	}

	report := s.ledger.Capacity(subscription, devices)
	if report.Available <= 0 {
		return nil, nil
	}

	var suspendedDevices []models.Device
	for i := range devices {
		if devices[i].Status == models.DeviceSuspended {
			suspendedDevices = append(suspendedDevices, devices[i])
		}
	}

	var woken []models.Device
	for _, candidate := range s.scorer.RankForWake(suspendedDevices, now) {
		if report.Available <= 0 {
			break
		}
		device := candidate.Device
		if err := s.state.Wake(tx, &device, events); err != nil {
			return nil, err
		}
		woken = append(woken, device)
		report.Available--
	}

	return woken, nil
}

// operationalOnly filters the devices that hold a slot
func operationalOnly(devices []models.Device) []models.Device {
	var actives []models.Device
	for i := range devices {
		if devices[i].IsOperational() {
			actives = append(actives, devices[i])
		}
	}
	return actives
}

// upsellOptionsFor builds the advisory upsell list for an over-limit user:
// upgrade_plan when a bigger active plan exists, manage_devices always,
// pay_for_extra_devices when the subscription can still be billed.
func upsellOptionsFor(tx *gorm.DB, subscription *models.Subscription) []string {
	options := []string{}

	var higherPlans int64
	if err := tx.Model(&models.Plan{}).
		Where("is_active = ? AND base_device_limit > ?", true, subscription.Plan.BaseDeviceLimit).
		Count(&higherPlans).Error; err == nil && higherPlans > 0 {
		options = append(options, UpsellUpgradePlan)
	}

	options = append(options, UpsellManageDevices)

	if subscription.IsActive() {
		options = append(options, UpsellPayForExtraDevices)
	}

	return options
}
