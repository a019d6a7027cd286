package risk

import (
	"sort"
	"strings"
	"sync"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

type Severity string

const (
	SeverityNormal    Severity = "NORMAL"
	SeverityRisky     Severity = "RISKY"
	SeverityDangerous Severity = "DANGEROUS"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityRisky:
		return 1
	case SeverityDangerous:
		return 2
	default:
		return 0
	}
}

type Factor string

const (
	FactorSpeeding       Factor = "speeding"
	FactorSwerving       Factor = "swerving"
	FactorSuddenMovement Factor = "sudden_movement"
	FactorHighHeartRate  Factor = "high_hr"
)

type Config struct {
	// Speeding fires when the rolling mean exceeds the limit and at least
	// MinSpeedingFraction of the window's speed samples individually do.
	SpeedLimitKmh       float64
	MinSpeedingFraction float64

	// Swerving fires on gyro-magnitude variance across the window.
	SwerveGyroVariance float64

	// Sudden movement looks at the accel peak within the recent sub-window
	// only, so transients are not smeared out by the full window mean.
	AccelSpikeMps2 float64
	SpikeTailLen   int

	HighHeartRateBPM float64

	// Score weights for the 0-100 dashboard score.
	SpeedingWeight int
	SwervingWeight int
	SuddenWeight   int
	HeartWeight    int
}

// Status is the classification broadcast to viewers when it changes.
type Status struct {
	TripID   string   `json:"trip_id"`
	DeviceID string   `json:"device_id"`
	Severity Severity `json:"level"`
	Score    int      `json:"score"`
	Factors  []Factor `json:"reasons"`
	SpeedKmh float64  `json:"speed_kmh"`
}

// Assessor classifies each window snapshot and suppresses emissions that
// repeat the previous severity and factor set for the trip.
type Assessor struct {
	cfg Config

	mu   sync.Mutex
	last map[string]string
}

func NewAssessor(cfg Config) *Assessor {
	return &Assessor{cfg: cfg, last: map[string]string{}}
}

// Assess evaluates the snapshot. The returned bool reports whether the status
// differs from the last emission for this trip and should go downstream.
func (a *Assessor) Assess(snap window.Snapshot) (Status, bool) {
	status := a.classify(snap)

	key := fingerprint(status)
	a.mu.Lock()
	defer a.mu.Unlock()

	prev, seen := a.last[snap.TripID]
	if !seen {
		// a trip starts out implicitly NORMAL with no factors
		prev = fingerprint(Status{Severity: SeverityNormal})
	}
	if key == prev {
		return status, false
	}
	a.last[snap.TripID] = key
	return status, true
}

// Forget drops suppression state when a trip ends.
func (a *Assessor) Forget(tripID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.last, tripID)
}

func (a *Assessor) classify(snap window.Snapshot) Status {
	status := Status{
		TripID:   snap.TripID,
		DeviceID: snap.DeviceID,
		Severity: SeverityNormal,
		Factors:  []Factor{},
	}
	if snap.Latest.HasSpeed {
		status.SpeedKmh = snap.Latest.SpeedKmh
	}
	if snap.Len == 0 {
		return status
	}

	score := 0
	addFactor := func(f Factor, weight int, implied Severity) {
		status.Factors = append(status.Factors, f)
		score += weight
		if severityRank(implied) > severityRank(status.Severity) {
			status.Severity = implied
		}
	}

	if snap.SpeedCount > 0 &&
		snap.SpeedMean > a.cfg.SpeedLimitKmh &&
		float64(snap.AboveLimit) >= a.cfg.MinSpeedingFraction*float64(snap.SpeedCount) {
		addFactor(FactorSpeeding, a.cfg.SpeedingWeight, SeverityRisky)
	}

	if snap.GyroVar > a.cfg.SwerveGyroVariance {
		addFactor(FactorSwerving, a.cfg.SwervingWeight, SeverityRisky)
	}

	if a.spikeInTail(snap.Tail) {
		addFactor(FactorSuddenMovement, a.cfg.SuddenWeight, SeverityDangerous)
	}

	if snap.HeartCount > 0 && snap.HeartMean > a.cfg.HighHeartRateBPM {
		addFactor(FactorHighHeartRate, a.cfg.HeartWeight, SeverityRisky)
	}

	if score > 100 {
		score = 100
	}
	status.Score = score
	return status
}

func (a *Assessor) spikeInTail(tail []window.Entry) bool {
	n := a.cfg.SpikeTailLen
	if n <= 0 || n > len(tail) {
		n = len(tail)
	}
	for _, e := range tail[len(tail)-n:] {
		if e.AccelMag > a.cfg.AccelSpikeMps2 {
			return true
		}
	}
	return false
}

func fingerprint(s Status) string {
	names := make([]string, len(s.Factors))
	for i, f := range s.Factors {
		names[i] = string(f)
	}
	sort.Strings(names)
	return string(s.Severity) + "|" + strings.Join(names, ",")
}
