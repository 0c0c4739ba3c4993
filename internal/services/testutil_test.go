package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"fleet-api/internal/database"
	"fleet-api/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// setupTestDB opens an isolated in-memory SQLite database migrated through
// the same schema and seeded with the same plan catalog as production
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the shared in-memory database alive and avoids
	// SQLite write contention in concurrent tests
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedPlans(db))
	return db
}

// createTestUser creates a user with an active monthly subscription on the
// given plan
func createTestUser(t *testing.T, db *gorm.DB, planCode string) *models.User {
	t.Helper()

	user := &models.User{
		Email: fmt.Sprintf("%s-%d@example.com", strings.ReplaceAll(t.Name(), "/", "_"), time.Now().UnixNano()),
		Name:  "Test Owner",
	}
	require.NoError(t, db.Create(user).Error)

	plan, err := database.GetPlanByCode(db, planCode)
	require.NoError(t, err)

	subscription := &models.Subscription{
		UserID:   user.ID,
		PlanID:   plan.ID,
		Status:   models.SubscriptionActive,
		Interval: models.IntervalMonth,
	}
	require.NoError(t, db.Create(subscription).Error)
	return user
}

// createTestDevice creates a device in the given status. lastConnection may
// be nil for a device that never connected.
func createTestDevice(t *testing.T, db *gorm.DB, userID uint, status models.DeviceStatus, lastConnection *time.Time) *models.Device {
	t.Helper()

	device := &models.Device{
		UserID:         userID,
		SerialNumber:   fmt.Sprintf("sn-%d-%d", userID, time.Now().UnixNano()),
		Name:           "test device",
		Status:         status,
		LastConnection: lastConnection,
	}
	if status == models.DeviceSuspended {
		device.MarkSuspended(models.ReasonOverDeviceLimit, time.Now(), DefaultGracePeriodDays)
	}
	require.NoError(t, db.Create(device).Error)
	return device
}

// newTestEngine wires the capacity engine against the test database with an
// in-process locker and no notifier
func newTestEngine(db *gorm.DB) (*AdmissionService, *PlanChangeService, *DeviceService) {
	locker := NewLocalUserLocker()
	state := NewDeviceStateService(nil)
	admission := NewAdmissionService(db, locker, state)
	planChange := NewPlanChangeService(db, locker, admission, state)
	devices := NewDeviceService(db, locker, state, admission)
	return admission, planChange, devices
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func reloadDevice(t *testing.T, db *gorm.DB, id uint) *models.Device {
	t.Helper()
	device, err := database.GetDeviceByID(db, id)
	require.NoError(t, err)
	return device
}
