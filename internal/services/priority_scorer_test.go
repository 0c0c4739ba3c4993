package services

import (
	"testing"
	"time"

	"fleet-api/internal/models"

	"github.com/stretchr/testify/assert"
)

func scorerDevice(id uint, createdAt time.Time, lastConnection *time.Time) models.Device {
	d := models.Device{LastConnection: lastConnection, Status: models.DeviceActive}
	d.ID = id
	d.CreatedAt = createdAt
	return d
}

func TestNeverConnectedAlwaysOutranksConnected(t *testing.T) {
	scorer := NewPriorityScorer()
	now := time.Now()

	// A registered a second ago and never connected; B is ten years old and
	// connected one second ago. Connectivity is the primary key.
	a := scorerDevice(1, now.Add(-time.Second), nil)
	b := scorerDevice(2, now.AddDate(-10, 0, 0), timePtr(now.Add(-time.Second)))

	assert.Greater(t, scorer.Score(&a, now), scorer.Score(&b, now))

	// Even a decade-stale connection stays below the never-connected band
	c := scorerDevice(3, now.AddDate(-10, 0, 0), timePtr(now.AddDate(-10, 0, 0)))
	assert.Greater(t, scorer.Score(&a, now), scorer.Score(&c, now))
}

func TestStalerConnectionScoresHigher(t *testing.T) {
	scorer := NewPriorityScorer()
	now := time.Now()
	createdAt := now.AddDate(0, -6, 0)

	fresh := scorerDevice(1, createdAt, timePtr(now.Add(-time.Minute)))
	stale := scorerDevice(2, createdAt, timePtr(now.Add(-30*24*time.Hour)))

	assert.Greater(t, scorer.Score(&stale, now), scorer.Score(&fresh, now))
}

func TestOlderRegistrationBreaksTies(t *testing.T) {
	scorer := NewPriorityScorer()
	now := time.Now()
	lastConnection := timePtr(now.Add(-time.Hour))

	older := scorerDevice(1, now.AddDate(-2, 0, 0), lastConnection)
	newer := scorerDevice(2, now.Add(-time.Hour), lastConnection)

	assert.Greater(t, scorer.Score(&older, now), scorer.Score(&newer, now))
}

func TestRankEvictFirstOrderAndIDTieBreak(t *testing.T) {
	scorer := NewPriorityScorer()
	now := time.Now()
	createdAt := now.Add(-time.Hour)

	// Two identical never-connected devices: the lower id is evicted first
	first := scorerDevice(7, createdAt, nil)
	second := scorerDevice(3, createdAt, nil)
	connected := scorerDevice(9, createdAt, timePtr(now))

	ranked := scorer.Rank([]models.Device{first, second, connected}, now)
	assert.Equal(t, uint(3), ranked[0].Device.ID)
	assert.Equal(t, uint(7), ranked[1].Device.ID)
	assert.Equal(t, uint(9), ranked[2].Device.ID)
}

func TestPickVictimExcludesProtectedDevice(t *testing.T) {
	scorer := NewPriorityScorer()
	now := time.Now()
	createdAt := now.Add(-time.Hour)

	protected := scorerDevice(1, createdAt, nil)
	other := scorerDevice(2, createdAt, timePtr(now))

	victim := scorer.PickVictim([]models.Device{protected, other}, protected.ID, now)
	assert.NotNil(t, victim)
	assert.Equal(t, uint(2), victim.ID)

	// No candidate besides the protected device
	victim = scorer.PickVictim([]models.Device{protected}, protected.ID, now)
	assert.Nil(t, victim)
}

func TestRankForWakeBestConnectivityFirst(t *testing.T) {
	scorer := NewPriorityScorer()
	now := time.Now()
	createdAt := now.Add(-time.Hour)

	never := scorerDevice(1, createdAt, nil)
	stale := scorerDevice(2, createdAt, timePtr(now.Add(-48*time.Hour)))
	fresh := scorerDevice(3, createdAt, timePtr(now.Add(-time.Minute)))

	ranked := scorer.RankForWake([]models.Device{never, stale, fresh}, now)
	assert.Equal(t, uint(3), ranked[0].Device.ID)
	assert.Equal(t, uint(2), ranked[1].Device.ID)
	assert.Equal(t, uint(1), ranked[2].Device.ID)
}
