package persist

import (
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

type Kind string

const (
	KindBeginTrip    Kind = "begin_trip"
	KindAppendSample Kind = "append_sample"
	KindEndTrip      Kind = "end_trip"
)

// Intent is one queued unit of durable work. It carries everything needed for
// the write so the worker never reads back into live in-memory trip state.
type Intent struct {
	Kind      Kind
	TripID    string
	DeviceID  string
	Timestamp time.Time
	Sample    *telemetry.Sample
	Stats     *window.Stats
}

func BeginTrip(tripID, deviceID string, start time.Time) Intent {
	return Intent{Kind: KindBeginTrip, TripID: tripID, DeviceID: deviceID, Timestamp: start}
}

func AppendSample(tripID string, sample telemetry.Sample) Intent {
	return Intent{Kind: KindAppendSample, TripID: tripID, DeviceID: sample.DeviceID, Timestamp: sample.Timestamp, Sample: &sample}
}

func EndTrip(tripID, deviceID string, end time.Time, stats window.Stats) Intent {
	return Intent{Kind: KindEndTrip, TripID: tripID, DeviceID: deviceID, Timestamp: end, Stats: &stats}
}
