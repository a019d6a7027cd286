package device

import "time"

type Device struct {
	ID         string     `json:"device_id"`
	UserID     *string    `json:"user_id,omitempty"`
	ModelName  *string    `json:"model_name,omitempty"`
	Serial     *string    `json:"device_serial,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type RegisterInput struct {
	DeviceID  string  `json:"device_id"`
	ModelName *string `json:"model_name,omitempty"`
	Serial    *string `json:"device_serial,omitempty"`
}
