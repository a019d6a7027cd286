package crash

import (
	"fmt"
	"sync"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

type State string

const (
	StateIdle      State = "idle"
	StateSuspect   State = "suspect"
	StateConfirmed State = "confirmed"
)

type Config struct {
	// GraceSamples is how many subsequent samples a suspect state waits for
	// corroborating evidence before falling back to idle.
	GraceSamples int
}

// Alert is the critical event emitted exactly once per trip when the state
// machine reaches confirmed.
type Alert struct {
	TripID    string    `json:"trip_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"ts"`
	Score     float64   `json:"score"`
	Message   string    `json:"message"`
}

type machine struct {
	state        State
	sinceSuspect int
	alerted      bool
}

// Detector runs one idle/suspect/confirmed machine per active trip.
// Confirmed is terminal for the trip's lifetime: no transition leaves it and
// no second alert is ever produced.
type Detector struct {
	cfg    Config
	scorer AnomalyScorer

	mu    sync.Mutex
	trips map[string]*machine
}

func NewDetector(cfg Config, scorer AnomalyScorer) *Detector {
	if cfg.GraceSamples <= 0 {
		cfg.GraceSamples = 5
	}
	return &Detector{cfg: cfg, scorer: scorer, trips: map[string]*machine{}}
}

// Observe feeds one window snapshot through the machine for its trip. The
// returned bool is true only on the single idle-to-confirmed completion.
func (d *Detector) Observe(snap window.Snapshot) (Alert, bool) {
	sig := d.scorer.Score(snap)

	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.trips[snap.TripID]
	if !ok {
		m = &machine{state: StateIdle}
		d.trips[snap.TripID] = m
	}

	switch m.state {
	case StateConfirmed:
		return Alert{}, false

	case StateIdle:
		if sig.Anomalous {
			m.state = StateSuspect
			m.sinceSuspect = 0
		}
		return Alert{}, false

	case StateSuspect:
		if sig.Anomalous {
			m.state = StateConfirmed
			if m.alerted {
				return Alert{}, false
			}
			m.alerted = true
			return Alert{
				TripID:    snap.TripID,
				DeviceID:  snap.DeviceID,
				Timestamp: snap.Latest.Timestamp,
				Score:     sig.Score,
				Message:   fmt.Sprintf("Crash detected (confidence %.0f%%)", sig.Score*100),
			}, true
		}
		m.sinceSuspect++
		if m.sinceSuspect >= d.cfg.GraceSamples {
			// no corroboration within the grace budget
			m.state = StateIdle
			m.sinceSuspect = 0
		}
		return Alert{}, false
	}
	return Alert{}, false
}

// State reports the machine state for a trip; unknown trips are idle.
func (d *Detector) State(tripID string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.trips[tripID]; ok {
		return m.state
	}
	return StateIdle
}

// Forget drops the machine when its trip ends.
func (d *Detector) Forget(tripID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.trips, tripID)
}
