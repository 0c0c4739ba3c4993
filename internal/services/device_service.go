package services

import (
	"context"
	"errors"
	"time"

	"fleet-api/internal/database"
	"fleet-api/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceService is the device-facing surface around the capacity engine:
// registration (pending), heartbeats, and explicit suspend/disable. Waking is
// an activation and goes through the admission service, so capacity is
// enforced by the same always-accept path.
type DeviceService struct {
	db        *gorm.DB
	locker    UserLocker
	state     *DeviceStateService
	admission *AdmissionService
}

// NewDeviceService creates a new device service
func NewDeviceService(db *gorm.DB, locker UserLocker, state *DeviceStateService, admission *AdmissionService) *DeviceService {
	return &DeviceService{db: db, locker: locker, state: state, admission: admission}
}

// Register creates a device in pending for a user. Registration never touches
// capacity: a pending device holds no slot until its first activation.
func (s *DeviceService) Register(ctx context.Context, userID, deviceTypeID uint, name string) (*models.Device, error) {
	if _, err := database.GetUserByID(s.db, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	device := &models.Device{
		UserID:       userID,
		DeviceTypeID: deviceTypeID,
		SerialNumber: uuid.NewString(),
		Name:         name,
		Status:       models.DevicePending,
	}
	if err := database.CreateDevice(s.db, device); err != nil {
		return nil, err
	}

	invalidateFleetOverview(ctx, userID)
	return device, nil
}

// Heartbeat refreshes the device's last connection timestamp. This is the
// only write the telemetry side performs here; it feeds the priority scorer.
func (s *DeviceService) Heartbeat(ctx context.Context, userID, deviceID uint) (*models.Device, error) {
	device, err := database.GetUserDevice(s.db, userID, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	if err := database.TouchLastConnection(s.db, device, time.Now()); err != nil {
		return nil, err
	}
	return device, nil
}

// Suspend suspends a device on explicit user or admin request
func (s *DeviceService) Suspend(ctx context.Context, userID, deviceID uint, reason string) (*models.Device, error) {
	if reason == "" {
		reason = models.ReasonUserRequested
	}

	var device *models.Device
	events := s.state.StartEvents()
	err := s.locker.WithUserLock(ctx, userID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			device, err = database.GetUserDevice(tx, userID, deviceID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrDeviceNotFound
				}
				return err
			}
			return s.state.Suspend(tx, device, reason, s.admission.GraceDays, events)
		})
	})
	if err != nil {
		return nil, err
	}

	events.Dispatch()
	invalidateFleetOverview(ctx, userID)
	return device, nil
}

// Wake reactivates a suspended device through the admission service: waking
// always succeeds, and when the fleet is at capacity another device absorbs
// the overflow. Wake is only legal from suspended or active; a pending device
// must go through activation.
func (s *DeviceService) Wake(ctx context.Context, userID, deviceID uint) (*AdmissionResult, error) {
	device, err := database.GetUserDevice(s.db, userID, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	if _, err := models.NextStatus(device.Status, models.EventWake); err != nil {
		return nil, err
	}

	return s.admission.AdmitActivation(ctx, userID, deviceID)
}

// Disable puts a device in its terminal state on explicit request
func (s *DeviceService) Disable(ctx context.Context, userID, deviceID uint) (*models.Device, error) {
	var device *models.Device
	events := s.state.StartEvents()
	err := s.locker.WithUserLock(ctx, userID, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			var err error
			device, err = database.GetUserDevice(tx, userID, deviceID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrDeviceNotFound
				}
				return err
			}
			return s.state.Disable(tx, device, events)
		})
	})
	if err != nil {
		return nil, err
	}

	events.Dispatch()
	invalidateFleetOverview(ctx, userID)
	return device, nil
}

// List returns all devices of a user
func (s *DeviceService) List(ctx context.Context, userID uint) ([]models.Device, error) {
	return database.GetUserDevices(s.db, userID)
}
