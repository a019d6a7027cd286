package crash

import "github.com/AdamAtiehh/smart-helmet-backend/internal/window"

// Signal is one anomaly judgement over the current window.
type Signal struct {
	Anomalous bool
	Score     float64
}

// AnomalyScorer is the single capability the detector needs: given the
// current window, return an anomaly signal. The heuristic below is the
// default; a learned model can implement the same interface and slot in
// without touching the state machine.
type AnomalyScorer interface {
	Score(snap window.Snapshot) Signal
}

type HeuristicConfig struct {
	// ImpactSpikeMps2 is the combined accel+gyro magnitude a single sample
	// must exceed to look impact-like.
	ImpactSpikeMps2 float64
	// SpeedDropFraction is how far below the preceding sub-window's mean
	// speed the latest sample must fall (0.5 = half the mean).
	SpeedDropFraction float64
	// MinSpeedKmh keeps parked or walking-pace windows from ever matching.
	MinSpeedKmh float64
	// MinSamples is the least window fill before scoring at all.
	MinSamples int
}

// HeuristicScorer flags windows where an impact-magnitude spike coincides
// with an abrupt speed drop versus the preceding samples. Both conditions
// come from the window, not a single field, so one noisy reading is not
// enough.
type HeuristicScorer struct {
	cfg HeuristicConfig
}

func NewHeuristicScorer(cfg HeuristicConfig) *HeuristicScorer {
	return &HeuristicScorer{cfg: cfg}
}

func (h *HeuristicScorer) Score(snap window.Snapshot) Signal {
	if snap.Len < h.cfg.MinSamples || len(snap.Tail) < 2 {
		return Signal{}
	}

	latest := snap.Latest
	combined := latest.AccelMag + latest.GyroMag
	if combined <= h.cfg.ImpactSpikeMps2 {
		return Signal{}
	}

	// mean speed over the sub-window preceding the latest sample
	var sum float64
	var n int
	for _, e := range snap.Tail[:len(snap.Tail)-1] {
		if e.HasSpeed {
			sum += e.SpeedKmh
			n++
		}
	}
	if n == 0 {
		return Signal{}
	}
	mean := sum / float64(n)
	if mean < h.cfg.MinSpeedKmh {
		return Signal{}
	}

	var current float64
	if latest.HasSpeed {
		current = latest.SpeedKmh
	}
	if current > (1-h.cfg.SpeedDropFraction)*mean {
		return Signal{}
	}

	score := combined / (2 * h.cfg.ImpactSpikeMps2)
	if score > 1 {
		score = 1
	}
	return Signal{Anomalous: true, Score: score}
}
