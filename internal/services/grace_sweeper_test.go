package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"fleet-api/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures notifier calls for assertions
type recordingNotifier struct {
	mu            sync.Mutex
	expired       []uint
	statusChanges []string
}

func (n *recordingNotifier) DeviceStatusChanged(device *models.Device, oldStatus, newStatus models.DeviceStatus, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusChanges = append(n.statusChanges, fmt.Sprintf("%d:%s->%s", device.ID, oldStatus, newStatus))
}

func (n *recordingNotifier) GracePeriodExpired(device *models.Device) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, device.ID)
}

func (n *recordingNotifier) expiredIDs() []uint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uint(nil), n.expired...)
}

func (n *recordingNotifier) changes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.statusChanges...)
}

func TestSweepFlagsExpiredGraceOnce(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.PlanBasic)

	now := time.Now()
	expired := createTestDevice(t, db, user.ID, models.DeviceSuspended, nil)
	require.NoError(t, db.Model(expired).Update("grace_period_ends_at", now.Add(-time.Hour)).Error)
	// Still inside its grace window
	inWindow := createTestDevice(t, db, user.ID, models.DeviceSuspended, nil)

	notifier := &recordingNotifier{}
	sweeper := NewGracePeriodSweeper(db, notifier, 0)

	flagged, err := sweeper.Sweep(now)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	marked := reloadDevice(t, db, expired.ID)
	require.NotNil(t, marked.GraceExpiredNotifiedAt)
	assert.Equal(t, models.DeviceSuspended, marked.Status) // sweeper never disables
	assert.Nil(t, reloadDevice(t, db, inWindow.ID).GraceExpiredNotifiedAt)

	assert.Eventually(t, func() bool {
		ids := notifier.expiredIDs()
		return len(ids) == 1 && ids[0] == expired.ID
	}, time.Second, 10*time.Millisecond)

	// A second pass reports nothing new
	flagged, err = sweeper.Sweep(time.Now())
	require.NoError(t, err)
	assert.Zero(t, flagged)
}

func TestSweepResetOnResuspension(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.PlanBasic)
	state := NewDeviceStateService(nil)

	now := time.Now()
	device := createTestDevice(t, db, user.ID, models.DeviceSuspended, nil)
	require.NoError(t, db.Model(device).Update("grace_period_ends_at", now.Add(-time.Hour)).Error)

	sweeper := NewGracePeriodSweeper(db, nil, 0)
	flagged, err := sweeper.Sweep(now)
	require.NoError(t, err)
	require.Equal(t, 1, flagged)

	// Wake then re-suspend: a fresh suspension gets a fresh one-shot report
	require.NoError(t, state.Wake(db, reloadDevice(t, db, device.ID), nil))
	require.NoError(t, state.Suspend(db, reloadDevice(t, db, device.ID), models.ReasonUserRequested, 7, nil))
	require.NoError(t, db.Model(device).Update("grace_period_ends_at", now.Add(-time.Minute)).Error)

	flagged, err = sweeper.Sweep(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
}
