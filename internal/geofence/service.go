package geofence

import (
	"context"

	"github.com/google/uuid"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) CreateZone(ctx context.Context, input Zone) (Zone, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO geofence_zones (zone_id, device_id, name, lat, lng, radius_m, alert_on_exit, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, input.ID, input.DeviceID, input.Name, input.Lat, input.Lng,
		input.RadiusM, input.AlertOnExit, input.CreatedBy)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Zone{}, err
	}
	return input, nil
}

func (s *Service) GetZone(ctx context.Context, id string) (Zone, error) {
	row := s.db.QueryRow(ctx, `
		SELECT zone_id, device_id, name, lat, lng, radius_m, alert_on_exit, created_by, created_at
		FROM geofence_zones WHERE zone_id=$1
	`, id)
	var z Zone
	if err := row.Scan(&z.ID, &z.DeviceID, &z.Name, &z.Lat, &z.Lng,
		&z.RadiusM, &z.AlertOnExit, &z.CreatedBy, &z.CreatedAt); err != nil {
		return Zone{}, err
	}
	return z, nil
}

func (s *Service) ZonesForDevice(ctx context.Context, deviceID string) ([]Zone, error) {
	rows, err := s.db.Query(ctx, `
		SELECT zone_id, device_id, name, lat, lng, radius_m, alert_on_exit, created_by, created_at
		FROM geofence_zones WHERE device_id=$1
		ORDER BY created_at
	`, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []Zone
	for rows.Next() {
		var z Zone
		if err := rows.Scan(&z.ID, &z.DeviceID, &z.Name, &z.Lat, &z.Lng,
			&z.RadiusM, &z.AlertOnExit, &z.CreatedBy, &z.CreatedAt); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, nil
}

func (s *Service) DeleteZone(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM geofence_zones WHERE zone_id=$1`, id)
	return err
}
