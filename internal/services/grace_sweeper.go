package services

import (
	"context"
	"time"

	"fleet-api/internal/database"
	"fleet-api/pkg/logging"

	"gorm.io/gorm"
)

// sweepBatchSize bounds one sweep pass
const sweepBatchSize = 200

// GracePeriodSweeper periodically reports suspended devices whose grace
// period has passed. Observability only: an expired grace period never blocks
// waking and the sweeper never disables anything, it just makes the expiry
// visible once per suspension.
type GracePeriodSweeper struct {
	db       *gorm.DB
	notifier Notifier
	interval time.Duration
}

// NewGracePeriodSweeper creates a new grace period sweeper
func NewGracePeriodSweeper(db *gorm.DB, notifier Notifier, interval time.Duration) *GracePeriodSweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &GracePeriodSweeper{db: db, notifier: notifier, interval: interval}
}

// Start runs the sweep loop until the context is canceled
func (s *GracePeriodSweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		logging.Infof("Grace period sweeper started - interval: %s", s.interval)
		for {
			select {
			case <-ctx.Done():
				logging.Infof("Grace period sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.Sweep(time.Now()); err != nil {
					logging.Errorf("Grace period sweep failed: %v", err)
				}
			}
		}
	}()
}

// Sweep flags every suspended device whose grace period passed before now and
// has not been reported yet. Returns the number of devices flagged.
func (s *GracePeriodSweeper) Sweep(now time.Time) (int, error) {
	devices, err := database.GetExpiredGraceDevices(s.db, now, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	flagged := 0
	for i := range devices {
		device := &devices[i]
		device.GraceExpiredNotifiedAt = &now
		if err := database.SaveDevice(s.db, device); err != nil {
			logging.Errorf("Failed to flag expired grace period - device: %d, error: %v", device.ID, err)
			continue
		}

		logging.Infof("Grace period expired - device: %d, user: %d, ended: %s",
			device.ID, device.UserID, device.GracePeriodEndsAt.Format(time.RFC3339))
		if s.notifier != nil {
			snapshot := *device
			go s.notifier.GracePeriodExpired(&snapshot)
		}
		flagged++
	}

	return flagged, nil
}
