package geofence

import "time"

// Zone is a circular region watched for a single device. AlertOnExit flips
// the alert direction: false means alert when the device enters, true means
// alert when it leaves (a safe zone).
type Zone struct {
	ID          string    `json:"zone_id"`
	DeviceID    string    `json:"device_id"`
	Name        string    `json:"name"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	RadiusM     float64   `json:"radius_m"`
	AlertOnExit bool      `json:"alert_on_exit"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Crossing is a boundary transition observed by the watcher.
type Crossing struct {
	Zone    Zone
	Entered bool
}
