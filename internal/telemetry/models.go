package telemetry

import (
	"math"
	"time"
)

// Speed readings outside this range come from a bad sensor and are ignored.
const MaxPlausibleSpeedKmh = 250.0

type GPS struct {
	OK  bool    `json:"ok"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

type IMU struct {
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
	AZ float64 `json:"az"`
	GX float64 `json:"gx"`
	GY float64 `json:"gy"`
	GZ float64 `json:"gz"`
}

type HeartRate struct {
	OK   bool `json:"ok"`
	BPM  int  `json:"hr"`
	SpO2 int  `json:"spo2"`
}

// Sample is one validated telemetry reading from a device. Immutable once
// built; the pipeline hands the same value to the window store, the
// persistence queue and the broadcaster.
type Sample struct {
	DeviceID  string     `json:"device_id"`
	TripID    string     `json:"trip_id,omitempty"`
	Timestamp time.Time  `json:"ts"`
	SpeedKmh  *float64   `json:"speed_kmh,omitempty"`
	GPS       *GPS       `json:"gps,omitempty"`
	IMU       IMU        `json:"imu"`
	HeartRate *HeartRate `json:"heart_rate,omitempty"`
	HelmetOn  bool       `json:"helmet_on"`
}

func (s Sample) AccelMagnitude() float64 {
	return math.Sqrt(s.IMU.AX*s.IMU.AX + s.IMU.AY*s.IMU.AY + s.IMU.AZ*s.IMU.AZ)
}

func (s Sample) GyroMagnitude() float64 {
	return math.Sqrt(s.IMU.GX*s.IMU.GX + s.IMU.GY*s.IMU.GY + s.IMU.GZ*s.IMU.GZ)
}

// HeartRateBPM returns the reading and whether one is present. Devices without
// a heart-rate sensor simply omit the block; absence is not an error.
func (s Sample) HeartRateBPM() (int, bool) {
	if s.HeartRate == nil || !s.HeartRate.OK {
		return 0, false
	}
	return s.HeartRate.BPM, true
}

func (s Sample) HasGPSFix() bool {
	return s.GPS != nil && s.GPS.OK
}
