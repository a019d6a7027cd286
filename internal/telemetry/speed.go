package telemetry

import (
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/shared/geo"
)

// GPSFix is the last trusted position for a device, kept so that speed can be
// derived when the velocity sensor drops out.
type GPSFix struct {
	Lat float64
	Lng float64
	At  time.Time
}

// ResolveSpeedKmh determines the speed for a sample. The device velocity field
// wins when present and plausible; otherwise the distance from the previous
// GPS fix is used. Returns false when neither source can produce a value.
func ResolveSpeedKmh(s Sample, last *GPSFix) (float64, bool) {
	if s.SpeedKmh != nil {
		v := *s.SpeedKmh
		if v >= 0 && v <= MaxPlausibleSpeedKmh {
			return v, true
		}
	}

	if last == nil || !s.HasGPSFix() {
		return 0, false
	}

	deltaSec := s.Timestamp.Sub(last.At).Seconds()
	// Tiny deltas amplify GPS jitter into absurd speeds.
	if deltaSec <= 0.5 {
		return 0, false
	}

	distKm := geo.HaversineKm(last.Lat, last.Lng, s.GPS.Lat, s.GPS.Lng)
	v := distKm / deltaSec * 3600.0
	if v > MaxPlausibleSpeedKmh {
		return 0, false
	}
	return v, true
}
