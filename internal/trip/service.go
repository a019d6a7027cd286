package trip

import (
	"context"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/db"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// CreateRecording inserts the durable row for a freshly started trip.
func (s *Service) CreateRecording(ctx context.Context, tripID, deviceID string, start time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trips (trip_id, device_id, status, start_time)
		VALUES ($1,$2,$3,$4)
	`, tripID, deviceID, StatusRecording, start)
	return err
}

// CloseTrip marks the trip ended and stores the whole-trip aggregates the
// window computed at close time.
func (s *Service) CloseTrip(ctx context.Context, tripID string, end time.Time, stats window.Stats) error {
	_, err := s.db.Exec(ctx, `
		UPDATE trips
		SET status=$2, end_time=$3, average_speed=$4, max_speed=$5,
		    average_heart_rate=$6, max_heart_rate=$7, total_distance_km=$8, sample_count=$9
		WHERE trip_id=$1
	`, tripID, StatusEnded, end, stats.AvgSpeedKmh, stats.MaxSpeedKmh,
		stats.AvgHeartRate, stats.MaxHeartRate, stats.DistanceKm, stats.SampleCount)
	return err
}

// InsertSample appends one telemetry row. Duplicate rows from worker retries
// are tolerated; downstream reads order by timestamp.
func (s *Service) InsertSample(ctx context.Context, tripID string, sample telemetry.Sample) error {
	var lat, lng *float64
	if sample.HasGPSFix() {
		lat, lng = &sample.GPS.Lat, &sample.GPS.Lng
	}
	var hr *int
	if bpm, ok := sample.HeartRateBPM(); ok {
		hr = &bpm
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_data
			(trip_id, device_id, timestamp, lat, lng, speed_kmh,
			 acc_x, acc_y, acc_z, gyro_x, gyro_y, gyro_z, heart_rate, helmet_on)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, tripID, sample.DeviceID, sample.Timestamp, lat, lng, sample.SpeedKmh,
		sample.IMU.AX, sample.IMU.AY, sample.IMU.AZ,
		sample.IMU.GX, sample.IMU.GY, sample.IMU.GZ, hr, sample.HelmetOn)
	return err
}

func (s *Service) GetTrip(ctx context.Context, tripID string) (Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT trip_id, device_id, status, start_time, end_time,
		       COALESCE(average_speed,0), COALESCE(max_speed,0),
		       COALESCE(average_heart_rate,0), COALESCE(max_heart_rate,0),
		       COALESCE(total_distance_km,0), COALESCE(sample_count,0), created_at
		FROM trips WHERE trip_id=$1
	`, tripID)
	var t Trip
	if err := row.Scan(&t.ID, &t.DeviceID, &t.Status, &t.StartTime, &t.EndTime,
		&t.AvgSpeedKmh, &t.MaxSpeedKmh, &t.AvgHeartRate, &t.MaxHeartRate,
		&t.DistanceKm, &t.SampleCount, &t.CreatedAt); err != nil {
		return Trip{}, err
	}
	return t, nil
}

// ActiveTripForDevice finds the recording trip for a device, used to rebuild
// in-memory state after a restart. Returns pgx.ErrNoRows when none.
func (s *Service) ActiveTripForDevice(ctx context.Context, deviceID string) (Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT trip_id, device_id, status, start_time, created_at
		FROM trips
		WHERE device_id=$1 AND status=$2
		ORDER BY start_time DESC
		LIMIT 1
	`, deviceID, StatusRecording)
	var t Trip
	if err := row.Scan(&t.ID, &t.DeviceID, &t.Status, &t.StartTime, &t.CreatedAt); err != nil {
		return Trip{}, err
	}
	return t, nil
}

func (s *Service) ListForDevice(ctx context.Context, deviceID string, limit int) ([]Trip, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT trip_id, device_id, status, start_time, end_time,
		       COALESCE(average_speed,0), COALESCE(max_speed,0),
		       COALESCE(average_heart_rate,0), COALESCE(max_heart_rate,0),
		       COALESCE(total_distance_km,0), COALESCE(sample_count,0), created_at
		FROM trips WHERE device_id=$1
		ORDER BY start_time DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		var t Trip
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.Status, &t.StartTime, &t.EndTime,
			&t.AvgSpeedKmh, &t.MaxSpeedKmh, &t.AvgHeartRate, &t.MaxHeartRate,
			&t.DistanceKm, &t.SampleCount, &t.CreatedAt); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, nil
}

func (s *Service) RoutePoints(ctx context.Context, tripID string) ([]RoutePoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT lat, lng, timestamp, speed_kmh
		FROM trip_data
		WHERE trip_id=$1 AND lat IS NOT NULL AND lng IS NOT NULL
		ORDER BY timestamp
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []RoutePoint
	for rows.Next() {
		var p RoutePoint
		if err := rows.Scan(&p.Lat, &p.Lng, &p.Timestamp, &p.SpeedKmh); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}
