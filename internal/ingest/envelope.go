package ingest

import (
	"errors"
	"strings"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
)

const (
	TypeTripStart = "trip_start"
	TypeTelemetry = "telemetry"
	TypeTripEnd   = "trip_end"
)

var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrMissingDevice = errors.New("device_id cannot be empty")
)

// WireTime accepts both RFC3339 and the firmware's DD/MM/YYYY format.
type WireTime struct {
	time.Time
}

func (t *WireTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse("02/01/2006 15:04:05", s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

type Velocity struct {
	Kmh *float64 `json:"kmh"`
}

// Envelope is one uplink message from a device. trip_start and trip_end only
// carry the header fields; telemetry carries the sensor blocks too.
type Envelope struct {
	Type      string               `json:"type"`
	DeviceID  string               `json:"device_id"`
	TripID    string               `json:"trip_id,omitempty"`
	Timestamp WireTime             `json:"ts"`
	HelmetOn  bool                 `json:"helmet_on"`
	IMU       telemetry.IMU        `json:"imu"`
	GPS       *telemetry.GPS       `json:"gps,omitempty"`
	HeartRate *telemetry.HeartRate `json:"heart_rate,omitempty"`
	Velocity  *Velocity            `json:"velocity,omitempty"`
}

func (e Envelope) validate() error {
	if strings.TrimSpace(e.DeviceID) == "" {
		return ErrMissingDevice
	}
	switch e.Type {
	case TypeTripStart, TypeTelemetry, TypeTripEnd:
		return nil
	}
	return ErrUnknownType
}

// sample converts a telemetry envelope into the pipeline's sample shape.
func (e Envelope) sample() telemetry.Sample {
	s := telemetry.Sample{
		DeviceID:  e.DeviceID,
		TripID:    e.TripID,
		Timestamp: e.Timestamp.Time,
		GPS:       e.GPS,
		IMU:       e.IMU,
		HeartRate: e.HeartRate,
		HelmetOn:  e.HelmetOn,
	}
	if e.Velocity != nil {
		s.SpeedKmh = e.Velocity.Kmh
	}
	return s
}
