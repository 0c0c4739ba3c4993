package services

import (
	"context"
	"testing"
	"time"

	"fleet-api/internal/database"
	"fleet-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreviewClassifiesChangeTypes(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanProfessional) // limit 4

	now := time.Now()
	for i := 0; i < 3; i++ {
		createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Minute)))
	}

	// Same plan and interval
	analysis, err := planChange.Preview(context.Background(), user.ID, models.PlanProfessional, models.IntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, ChangeCurrent, analysis.ChangeType)
	assert.Equal(t, []string{StrategyImmediate}, analysis.AvailableStrategies)

	// Bigger plan
	analysis, err = planChange.Preview(context.Background(), user.ID, models.PlanEnterprise, models.IntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, ChangeUpgrade, analysis.ChangeType)
	assert.Equal(t, []string{StrategyImmediate}, analysis.AvailableStrategies)

	// Smaller plan, 3 active > limit 2
	analysis, err = planChange.Preview(context.Background(), user.ID, models.PlanBasic, models.IntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, ChangeDowngradeWarning, analysis.ChangeType)
	assert.Equal(t, 1, analysis.ShortfallDevices)
	assert.ElementsMatch(t, []string{
		StrategyImmediateWithDeviceSelection,
		StrategyPayForExtraDevices,
		StrategyEndOfPeriod,
	}, analysis.AvailableStrategies)
}

func TestPreviewDowngradeSafe(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanProfessional)

	createTestDevice(t, db, user.ID, models.DeviceActive, nil)

	analysis, err := planChange.Preview(context.Background(), user.ID, models.PlanBasic, models.IntervalMonth)
	require.NoError(t, err)
	assert.Equal(t, ChangeDowngradeSafe, analysis.ChangeType)
	assert.Equal(t, []string{StrategyImmediate}, analysis.AvailableStrategies)
}

func TestUpgradeWakesSuspendedDevices(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanBasic) // limit 2

	now := time.Now()
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Minute)))
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Hour)))
	sleeper := createTestDevice(t, db, user.ID, models.DeviceSuspended, timePtr(now.Add(-time.Second)))

	result, err := planChange.Execute(context.Background(), user.ID, models.PlanProfessional, models.IntervalMonth, StrategyImmediate, nil)
	require.NoError(t, err)

	assert.Equal(t, ChangeUpgrade, result.ChangeType)
	require.Len(t, result.WokenDevices, 1)
	assert.Equal(t, sleeper.ID, result.WokenDevices[0].ID)

	woken := reloadDevice(t, db, sleeper.ID)
	assert.Equal(t, models.DeviceActive, woken.Status)
	assert.Nil(t, woken.SuspendedAt)

	activeCount, err := database.CountUserDevicesByStatus(db, user.ID, models.DeviceActive)
	require.NoError(t, err)
	assert.EqualValues(t, 3, activeCount)
}

func TestUpgradeWakesBestConnectivityFirst(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanBasic) // limit 2

	now := time.Now()
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Minute)))
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Hour)))
	// Three suspended candidates for two new slots on Professional (limit 4)
	never := createTestDevice(t, db, user.ID, models.DeviceSuspended, nil)
	stale := createTestDevice(t, db, user.ID, models.DeviceSuspended, timePtr(now.Add(-72*time.Hour)))
	fresh := createTestDevice(t, db, user.ID, models.DeviceSuspended, timePtr(now.Add(-time.Second)))

	result, err := planChange.Execute(context.Background(), user.ID, models.PlanProfessional, models.IntervalMonth, StrategyImmediate, nil)
	require.NoError(t, err)

	require.Len(t, result.WokenDevices, 2)
	assert.Equal(t, fresh.ID, result.WokenDevices[0].ID)
	assert.Equal(t, stale.ID, result.WokenDevices[1].ID)
	assert.Equal(t, models.DeviceSuspended, reloadDevice(t, db, never.ID).Status)
}

func TestDowngradeWithDeviceSelection(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanProfessional) // limit 4

	now := time.Now()
	keepA := createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Minute)))
	keepB := createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Hour)))
	drop := createTestDevice(t, db, user.ID, models.DeviceActive, nil)

	result, err := planChange.Execute(context.Background(), user.ID, models.PlanBasic, models.IntervalMonth,
		StrategyImmediateWithDeviceSelection, []uint{keepA.ID, keepB.ID})
	require.NoError(t, err)

	assert.Equal(t, ChangeDowngradeWarning, result.ChangeType)
	require.Len(t, result.DisabledDevices, 1)
	assert.Equal(t, drop.ID, result.DisabledDevices[0].ID)

	// Disabled, not suspended: the selection is permanent
	dropped := reloadDevice(t, db, drop.ID)
	assert.Equal(t, models.DeviceDisabled, dropped.Status)
	assert.Nil(t, dropped.SuspendedAt)

	assert.Equal(t, models.DeviceActive, reloadDevice(t, db, keepA.ID).Status)
	assert.Equal(t, models.DeviceActive, reloadDevice(t, db, keepB.ID).Status)
	assert.Empty(t, result.SuspendedDevices)
}

func TestDowngradeSelectionCountMismatch(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanProfessional)

	now := time.Now()
	keep := createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))

	_, err := planChange.Execute(context.Background(), user.ID, models.PlanBasic, models.IntervalMonth,
		StrategyImmediateWithDeviceSelection, []uint{keep.ID})
	assert.ErrorIs(t, err, ErrDeviceSelectionCountMismatch)
}

func TestDowngradeSelectionRejectsDuplicateIDs(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanProfessional) // limit 4

	now := time.Now()
	keep := createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))

	// Two copies of the same id pass a naive length check but name only one
	// device; the user would silently keep one device instead of two
	_, err := planChange.Execute(context.Background(), user.ID, models.PlanBasic, models.IntervalMonth,
		StrategyImmediateWithDeviceSelection, []uint{keep.ID, keep.ID})
	assert.ErrorIs(t, err, ErrDeviceSelectionCountMismatch)

	// Nothing was disabled
	activeCount, err := database.CountUserDevicesByStatus(db, user.ID, models.DeviceActive)
	require.NoError(t, err)
	assert.EqualValues(t, 3, activeCount)
}

func TestDowngradePayForExtraDevices(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanProfessional) // limit 4

	now := time.Now()
	for i := 0; i < 3; i++ {
		createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Minute)))
	}

	result, err := planChange.Execute(context.Background(), user.ID, models.PlanBasic, models.IntervalMonth,
		StrategyPayForExtraDevices, nil)
	require.NoError(t, err)

	// One slot bridges the gap between 3 active devices and Basic's limit of 2
	assert.Equal(t, 1, result.PurchasedSlots)
	assert.Empty(t, result.SuspendedDevices)
	assert.Equal(t, 3, result.Capacity.Total)
	assert.Equal(t, 3, result.Capacity.Used)

	activeCount, err := database.CountUserDevicesByStatus(db, user.ID, models.DeviceActive)
	require.NoError(t, err)
	assert.EqualValues(t, 3, activeCount)
}

func TestDowngradeEndOfPeriodDefersEverything(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanProfessional)

	now := time.Now()
	for i := 0; i < 3; i++ {
		createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))
	}

	result, err := planChange.Execute(context.Background(), user.ID, models.PlanBasic, models.IntervalMonth,
		StrategyEndOfPeriod, nil)
	require.NoError(t, err)

	require.NotNil(t, result.ScheduledChange)
	assert.True(t, result.ScheduledChange.EffectiveAt.After(now))

	// No device impact, no plan mutation until the period boundary
	subscription, err := database.GetSubscriptionByUserID(db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanProfessional, subscription.Plan.Code)

	activeCount, err := database.CountUserDevicesByStatus(db, user.ID, models.DeviceActive)
	require.NoError(t, err)
	assert.EqualValues(t, 3, activeCount)
}

func TestExecuteRejectsInvalidStrategy(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanBasic)

	// end_of_period only exists for downgrade_warning
	_, err := planChange.Execute(context.Background(), user.ID, models.PlanProfessional, models.IntervalMonth,
		StrategyEndOfPeriod, nil)
	assert.ErrorIs(t, err, ErrInvalidStrategyForChangeType)

	// device selection is not a strategy for upgrades either
	_, err = planChange.Execute(context.Background(), user.ID, models.PlanProfessional, models.IntervalMonth,
		StrategyImmediateWithDeviceSelection, nil)
	assert.ErrorIs(t, err, ErrInvalidStrategyForChangeType)
}

func TestExecutePreconditionFailures(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanBasic)

	_, err := planChange.Execute(context.Background(), user.ID, "nonexistent", models.IntervalMonth, StrategyImmediate, nil)
	assert.ErrorIs(t, err, ErrPlanNotFound)

	// Retired plans cannot be targeted
	require.NoError(t, db.Model(&models.Plan{}).Where("code = ?", models.PlanEnterprise).Update("is_active", false).Error)
	_, err = planChange.Execute(context.Background(), user.ID, models.PlanEnterprise, models.IntervalMonth, StrategyImmediate, nil)
	assert.ErrorIs(t, err, ErrPlanNotActive)

	// Canceled subscriptions cannot change plan
	require.NoError(t, db.Model(&models.Subscription{}).Where("user_id = ?", user.ID).
		Update("status", models.SubscriptionCanceled).Error)
	_, err = planChange.Execute(context.Background(), user.ID, models.PlanProfessional, models.IntervalMonth, StrategyImmediate, nil)
	assert.ErrorIs(t, err, ErrSubscriptionInactive)
}

func TestPurchaseExtraSlotsWakesSuspended(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanBasic) // limit 2

	now := time.Now()
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))
	createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now))
	sleeper := createTestDevice(t, db, user.ID, models.DeviceSuspended, timePtr(now))

	result, err := planChange.PurchaseExtraSlots(context.Background(), user.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, result.PurchasedSlots)
	assert.Equal(t, 3, result.Capacity.Total)
	require.Len(t, result.WokenDevices, 1)
	assert.Equal(t, sleeper.ID, result.WokenDevices[0].ID)
	assert.Equal(t, models.DeviceActive, reloadDevice(t, db, sleeper.ID).Status)
}

func TestDowngradeBelowSuspendedFleetSuspendsNothingTwice(t *testing.T) {
	db := setupTestDB(t)
	_, planChange, _ := newTestEngine(db)
	user := createTestUser(t, db, models.PlanEnterprise) // limit 10

	now := time.Now()
	// 4 active devices, downgrade to Professional (limit 4): safe, no impact
	for i := 0; i < 4; i++ {
		createTestDevice(t, db, user.ID, models.DeviceActive, timePtr(now.Add(-time.Minute)))
	}

	result, err := planChange.Execute(context.Background(), user.ID, models.PlanProfessional, models.IntervalMonth,
		StrategyImmediate, nil)
	require.NoError(t, err)

	assert.Equal(t, ChangeDowngradeSafe, result.ChangeType)
	assert.Empty(t, result.SuspendedDevices)
	assert.Empty(t, result.WokenDevices)
	assert.Equal(t, 4, result.Capacity.Used)
	assert.Equal(t, 4, result.Capacity.Total)
}
