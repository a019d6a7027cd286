package device

import (
	"context"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Upsert makes sure the device row exists. Ingest calls this on the first
// frame from an unknown device, so it has to be idempotent.
func (s *Service) Upsert(ctx context.Context, deviceID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// TouchLastSeen records the device heartbeat. No-op for unknown devices.
func (s *Service) TouchLastSeen(ctx context.Context, deviceID string, ts time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE devices SET last_seen_at=$2 WHERE device_id=$1
	`, deviceID, ts)
	return err
}

func (s *Service) Get(ctx context.Context, deviceID string) (Device, error) {
	row := s.db.QueryRow(ctx, `
		SELECT device_id, user_id, model_name, device_serial, last_seen_at, created_at
		FROM devices WHERE device_id=$1
	`, deviceID)
	var d Device
	if err := row.Scan(&d.ID, &d.UserID, &d.ModelName, &d.Serial, &d.LastSeenAt, &d.CreatedAt); err != nil {
		return Device{}, err
	}
	return d, nil
}

// Register pairs a device to a user. A device owned by another user is
// transferred, single-owner behavior.
func (s *Service) Register(ctx context.Context, userID string, input RegisterInput) (Device, error) {
	if err := s.Upsert(ctx, input.DeviceID); err != nil {
		return Device{}, err
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE devices
		SET user_id=$2,
		    model_name=COALESCE($3, model_name),
		    device_serial=COALESCE($4, device_serial)
		WHERE device_id=$1
	`, input.DeviceID, userID, input.ModelName, input.Serial); err != nil {
		return Device{}, err
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO user_devices (user_id, device_id, role)
		VALUES ($1,$2,'owner')
		ON CONFLICT (user_id, device_id) DO UPDATE SET role='owner'
	`, userID, input.DeviceID); err != nil {
		return Device{}, err
	}
	return s.Get(ctx, input.DeviceID)
}

// Unclaim removes the user link without deleting the device row.
func (s *Service) Unclaim(ctx context.Context, userID, deviceID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM user_devices WHERE user_id=$1 AND device_id=$2
	`, userID, deviceID)
	return err
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]Device, error) {
	rows, err := s.db.Query(ctx, `
		SELECT d.device_id, d.user_id, d.model_name, d.device_serial, d.last_seen_at, d.created_at
		FROM devices d
		JOIN user_devices ud ON ud.device_id = d.device_id
		WHERE ud.user_id=$1
		ORDER BY d.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.UserID, &d.ModelName, &d.Serial, &d.LastSeenAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}
