package alert

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Insert stores one alert and returns it with its generated id. Payload is
// stored as jsonb so alert shapes can differ per type.
func (s *Service) Insert(ctx context.Context, input Alert) (Alert, error) {
	input.ID = uuid.NewString()
	row := s.db.QueryRow(ctx, `
		INSERT INTO alerts (alert_id, alert_type, severity, message, device_id, trip_id, ts, payload_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at
	`, input.ID, input.Type, input.Severity, input.Message,
		input.DeviceID, input.TripID, input.Timestamp, input.Payload)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Alert{}, err
	}
	return input, nil
}

func (s *Service) Get(ctx context.Context, alertID string) (Alert, error) {
	row := s.db.QueryRow(ctx, `
		SELECT alert_id, alert_type, severity, message, device_id, trip_id,
		       ts, payload_json, resolved_at, resolved_by, created_at
		FROM alerts WHERE alert_id=$1
	`, alertID)
	var a Alert
	if err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Message, &a.DeviceID, &a.TripID,
		&a.Timestamp, &a.Payload, &a.ResolvedAt, &a.ResolvedBy, &a.CreatedAt); err != nil {
		return Alert{}, err
	}
	return a, nil
}

// ListForDevice returns the most recent alerts first.
func (s *Service) ListForDevice(ctx context.Context, deviceID string, limit int) ([]Alert, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT alert_id, alert_type, severity, message, device_id, trip_id,
		       ts, payload_json, resolved_at, resolved_by, created_at
		FROM alerts WHERE device_id=$1
		ORDER BY ts DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Message, &a.DeviceID, &a.TripID,
			&a.Timestamp, &a.Payload, &a.ResolvedAt, &a.ResolvedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// ListForTrip returns alerts in trip order, oldest first.
func (s *Service) ListForTrip(ctx context.Context, tripID string) ([]Alert, error) {
	rows, err := s.db.Query(ctx, `
		SELECT alert_id, alert_type, severity, message, device_id, trip_id,
		       ts, payload_json, resolved_at, resolved_by, created_at
		FROM alerts WHERE trip_id=$1
		ORDER BY ts ASC
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Message, &a.DeviceID, &a.TripID,
			&a.Timestamp, &a.Payload, &a.ResolvedAt, &a.ResolvedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// Resolve marks an alert acknowledged by a user.
func (s *Service) Resolve(ctx context.Context, alertID, resolvedBy string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE alerts SET resolved_at=$2, resolved_by=$3 WHERE alert_id=$1
	`, alertID, time.Now().UTC(), resolvedBy)
	return err
}
