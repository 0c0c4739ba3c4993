package services

import (
	"time"

	"fleet-api/internal/database"
	"fleet-api/internal/models"
	"fleet-api/pkg/logging"

	"gorm.io/gorm"
)

// DeviceStateService owns the legal transitions of a single device and their
// side effects: status, the suspension field unit, and collaborator
// notifications. It never decides capacity; callers run it inside their own
// per-user transaction.
type DeviceStateService struct {
	notifier Notifier
}

// NewDeviceStateService creates a new device state service. The notifier may
// be nil, in which case transitions are silent.
func NewDeviceStateService(notifier Notifier) *DeviceStateService {
	return &DeviceStateService{notifier: notifier}
}

type statusEvent struct {
	device    models.Device
	oldStatus models.DeviceStatus
	newStatus models.DeviceStatus
	reason    string
}

// StatusEvents buffers device transitions made inside one transaction so
// collaborators only hear about committed changes. The owning service creates
// one per operation and calls Dispatch after the transaction returns; a rolled
// back transaction just drops the buffer.
type StatusEvents struct {
	notifier Notifier
	pending  []statusEvent
}

// StartEvents creates an event buffer for one transaction
func (s *DeviceStateService) StartEvents() *StatusEvents {
	return &StatusEvents{notifier: s.notifier}
}

// Dispatch sends the buffered events without awaiting them. Call only after
// the transaction committed.
func (e *StatusEvents) Dispatch() {
	if e == nil || e.notifier == nil {
		return
	}
	for i := range e.pending {
		ev := e.pending[i]
		go e.notifier.DeviceStatusChanged(&ev.device, ev.oldStatus, ev.newStatus, ev.reason)
	}
	e.pending = nil
}

// Activate transitions a device to active. Legal from pending and suspended,
// a no-op on an already active device, rejected on a disabled device.
// Activation clears the suspension fields but does not touch last_connection:
// whether activation counts as a connection is the caller's call.
func (s *DeviceStateService) Activate(tx *gorm.DB, device *models.Device, events *StatusEvents) error {
	oldStatus := device.Status
	if _, err := models.NextStatus(oldStatus, models.EventActivate); err != nil {
		return err
	}
	if oldStatus == models.DeviceActive {
		return nil
	}

	device.ClearSuspension()
	if err := database.SaveDevice(tx, device); err != nil {
		return err
	}

	s.emit(events, device, oldStatus, models.DeviceActive, "")
	return nil
}

// Suspend transitions a device to suspended with a reason and a grace period.
// Suspending an already suspended device succeeds and refreshes the reason and
// grace deadline.
func (s *DeviceStateService) Suspend(tx *gorm.DB, device *models.Device, reason string, gracePeriodDays int, events *StatusEvents) error {
	oldStatus := device.Status
	if _, err := models.NextStatus(oldStatus, models.EventSuspend); err != nil {
		return err
	}

	device.MarkSuspended(reason, time.Now(), gracePeriodDays)
	if err := database.SaveDevice(tx, device); err != nil {
		return err
	}

	logging.Infof("Device suspended - device: %d, user: %d, reason: %s, grace ends: %s",
		device.ID, device.UserID, reason, device.GracePeriodEndsAt.Format(time.RFC3339))

	if oldStatus != models.DeviceSuspended {
		s.emit(events, device, oldStatus, models.DeviceSuspended, reason)
	}
	return nil
}

// Wake transitions a suspended device back to active and clears the suspension
// fields as a unit. The grace period is advisory: waking after it passed still
// succeeds. Waking an already active device is a no-op.
func (s *DeviceStateService) Wake(tx *gorm.DB, device *models.Device, events *StatusEvents) error {
	oldStatus := device.Status
	if _, err := models.NextStatus(oldStatus, models.EventWake); err != nil {
		return err
	}
	if oldStatus == models.DeviceActive {
		return nil
	}

	device.ClearSuspension()
	if err := database.SaveDevice(tx, device); err != nil {
		return err
	}

	s.emit(events, device, oldStatus, models.DeviceActive, "")
	return nil
}

// Disable puts a device in its terminal state. Legal from any non-disabled
// state; used by explicit admin action and by downgrade device selection.
func (s *DeviceStateService) Disable(tx *gorm.DB, device *models.Device, events *StatusEvents) error {
	oldStatus := device.Status
	if _, err := models.NextStatus(oldStatus, models.EventDisable); err != nil {
		return err
	}

	device.Status = models.DeviceDisabled
	device.SuspendedAt = nil
	device.SuspendedReason = nil
	device.GracePeriodEndsAt = nil
	device.GraceExpiredNotifiedAt = nil
	if err := database.SaveDevice(tx, device); err != nil {
		return err
	}

	s.emit(events, device, oldStatus, models.DeviceDisabled, "")
	return nil
}

// emit buffers the event when the caller brought a transaction-scoped buffer,
// otherwise dispatches immediately. A buffered event reaches collaborators
// only if the caller's transaction commits.
func (s *DeviceStateService) emit(events *StatusEvents, device *models.Device, oldStatus, newStatus models.DeviceStatus, reason string) {
	if s.notifier == nil {
		return
	}
	snapshot := *device
	if events != nil {
		events.pending = append(events.pending, statusEvent{
			device:    snapshot,
			oldStatus: oldStatus,
			newStatus: newStatus,
			reason:    reason,
		})
		return
	}
	go s.notifier.DeviceStatusChanged(&snapshot, oldStatus, newStatus, reason)
}
