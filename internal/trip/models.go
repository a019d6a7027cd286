package trip

import "time"

const (
	StatusRecording = "recording"
	StatusEnded     = "ended"
)

type Trip struct {
	ID           string     `json:"trip_id"`
	DeviceID     string     `json:"device_id"`
	Status       string     `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	AvgSpeedKmh  float64    `json:"average_speed"`
	MaxSpeedKmh  float64    `json:"max_speed"`
	AvgHeartRate float64    `json:"average_heart_rate"`
	MaxHeartRate int        `json:"max_heart_rate"`
	DistanceKm   float64    `json:"total_distance_km"`
	SampleCount  int        `json:"sample_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

type RoutePoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"ts"`
	SpeedKmh  *float64  `json:"speed,omitempty"`
}
