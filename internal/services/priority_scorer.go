package services

import (
	"sort"
	"time"

	"fleet-api/internal/models"
)

// neverConnectedScore puts devices that never connected in a band strictly
// above any device with a connection history: connectivity is the primary
// sort key, registration age only breaks ties within a band.
const neverConnectedScore = 1e12

// agePerHour is the weight of one hour of registration age. Small enough that
// the age term never reorders the connectivity bands.
const agePerHour = 0.001

// PriorityScorer ranks devices for eviction. Higher score = evict first.
// The same score serves as suspension priority and hibernation priority.
type PriorityScorer struct{}

// NewPriorityScorer creates a new priority scorer
func NewPriorityScorer() *PriorityScorer {
	return &PriorityScorer{}
}

// Score computes the eviction priority of a device at the given instant.
// Two additive terms: a connectivity term (never connected is maximal, then
// staler connection means higher score) and an age term (older registration
// means slightly higher score, tie-breaker only).
func (s *PriorityScorer) Score(device *models.Device, now time.Time) float64 {
	var connectivity float64
	if device.LastConnection == nil {
		connectivity = neverConnectedScore
	} else {
		connectivity = now.Sub(*device.LastConnection).Hours()
		if connectivity < 0 {
			connectivity = 0
		}
	}

	age := now.Sub(device.CreatedAt).Hours() * agePerHour
	if age < 0 {
		age = 0
	}

	return connectivity + age
}

// RankedDevice pairs a device with its score for reporting
type RankedDevice struct {
	Device models.Device `json:"device"`
	Score  float64       `json:"score"`
}

// Rank orders devices by score descending, evict-first. Equal scores break by
// lowest device id first, so the ranking is deterministic.
func (s *PriorityScorer) Rank(devices []models.Device, now time.Time) []RankedDevice {
	ranked := make([]RankedDevice, 0, len(devices))
	for i := range devices {
		ranked = append(ranked, RankedDevice{
			Device: devices[i],
			Score:  s.Score(&devices[i], now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Device.ID < ranked[j].Device.ID
	})

	return ranked
}

// PickVictim returns the highest-priority device to suspend, excluding the
// given device id. Returns nil when no candidate remains.
func (s *PriorityScorer) PickVictim(devices []models.Device, excludeID uint, now time.Time) *models.Device {
	ranked := s.Rank(devices, now)
	for i := range ranked {
		if ranked[i].Device.ID == excludeID {
			continue
		}
		return &ranked[i].Device
	}
	return nil
}

// RankForWake orders suspended devices for reactivation: lowest score first,
// so the best-connected devices come back first. Ties break by lowest id.
func (s *PriorityScorer) RankForWake(devices []models.Device, now time.Time) []RankedDevice {
	ranked := make([]RankedDevice, 0, len(devices))
	for i := range devices {
		ranked = append(ranked, RankedDevice{
			Device: devices[i],
			Score:  s.Score(&devices[i], now),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score < ranked[j].Score
		}
		return ranked[i].Device.ID < ranked[j].Device.ID
	})

	return ranked
}
