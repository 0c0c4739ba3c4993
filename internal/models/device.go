package models

import (
	"fmt"
	"time"
)

// DeviceStatus is the lifecycle state of a device
type DeviceStatus string

const (
	DevicePending   DeviceStatus = "pending"
	DeviceActive    DeviceStatus = "active"
	DeviceSuspended DeviceStatus = "suspended"
	DeviceDisabled  DeviceStatus = "disabled"
)

// DeviceEvent is a requested transition on a device
type DeviceEvent string

const (
	EventActivate DeviceEvent = "activate"
	EventSuspend  DeviceEvent = "suspend"
	EventWake     DeviceEvent = "wake"
	EventDisable  DeviceEvent = "disable"
)

// Suspension reasons written by this service
const (
	ReasonOverDeviceLimit = "over_device_limit"
	ReasonUserRequested   = "user_requested"
)

// InvalidTransitionError reports an illegal state transition request
type InvalidTransitionError struct {
	From  DeviceStatus
	Event DeviceEvent
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s a %s device", e.Event, e.From)
}

// NextStatus is the transition table of the device state machine.
// It is total over (status, event): every pair either yields the resulting
// status or an InvalidTransitionError. Idempotent pairs (activate an active
// device, suspend a suspended device, wake an active device) succeed so that
// callers can safely retry.
func NextStatus(from DeviceStatus, event DeviceEvent) (DeviceStatus, error) {
	if from == DeviceDisabled {
		// disabled is terminal
		return from, &InvalidTransitionError{From: from, Event: event}
	}

	switch event {
	case EventActivate:
		// pending -> active, suspended -> active, active -> active (no-op)
		return DeviceActive, nil
	case EventSuspend:
		// active -> suspended, suspended -> suspended (refresh reason/grace)
		if from == DeviceActive || from == DeviceSuspended {
			return DeviceSuspended, nil
		}
	case EventWake:
		// suspended -> active; active -> active (no-op)
		if from == DeviceSuspended || from == DeviceActive {
			return DeviceActive, nil
		}
	case EventDisable:
		// any non-disabled -> disabled
		return DeviceDisabled, nil
	}

	return from, &InvalidTransitionError{From: from, Event: event}
}

// Device 设备模型
// One physical unit owned by a user. The suspension fields (suspended_at,
// suspended_reason, grace_period_ends_at) move as a unit: all set on suspend,
// all cleared on wake.
type Device struct {
	BaseModel

	UserID       uint   `json:"user_id" gorm:"not null;index"`
	DeviceTypeID uint   `json:"device_type_id" gorm:"index"`
	SerialNumber string `json:"serial_number" gorm:"uniqueIndex;not null;size:64"`
	Name         string `json:"name"`

	Status DeviceStatus `json:"status" gorm:"not null;size:20;index"`

	LastConnection    *time.Time `json:"last_connection"`
	SuspendedAt       *time.Time `json:"suspended_at"`
	SuspendedReason   *string    `json:"suspended_reason" gorm:"size:100"`
	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at"`

	// Set by the grace period sweeper once the expired grace period has been
	// reported, so each expiry is notified once.
	GraceExpiredNotifiedAt *time.Time `json:"grace_expired_notified_at"`
}

// IsOperational reports whether the device counts against the capacity used
func (d *Device) IsOperational() bool {
	return d.Status == DeviceActive
}

// MarkSuspended sets the suspension fields as a unit
func (d *Device) MarkSuspended(reason string, now time.Time, graceDays int) {
	graceEnd := now.Add(time.Duration(graceDays) * 24 * time.Hour)
	d.Status = DeviceSuspended
	d.SuspendedAt = &now
	d.SuspendedReason = &reason
	d.GracePeriodEndsAt = &graceEnd
	d.GraceExpiredNotifiedAt = nil
}

// ClearSuspension clears the suspension fields as a unit
func (d *Device) ClearSuspension() {
	d.Status = DeviceActive
	d.SuspendedAt = nil
	d.SuspendedReason = nil
	d.GracePeriodEndsAt = nil
	d.GraceExpiredNotifiedAt = nil
}
