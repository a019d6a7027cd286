package alert

import "time"

const (
	TypeCrash    = "crash_detected"
	TypeGeofence = "geo_fence"

	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type Alert struct {
	ID         string         `json:"alert_id"`
	Type       string         `json:"alert_type"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	DeviceID   string         `json:"device_id"`
	TripID     *string        `json:"trip_id,omitempty"`
	Timestamp  time.Time      `json:"ts"`
	Payload    map[string]any `json:"payload,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy *string        `json:"resolved_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
