package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

var errAlert = errors.New("alert query failed")

func TestInsertReturnsStoredAlert(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	ts := time.Now()
	created := ts.Add(time.Millisecond)
	tripID := "trip-1"

	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs(pgxmock.AnyArg(), TypeCrash, SeverityCritical, "possible crash detected",
			"helmet-1", &tripID, ts, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	svc := NewService(mock)
	a, err := svc.Insert(context.Background(), Alert{
		Type:      TypeCrash,
		Severity:  SeverityCritical,
		Message:   "possible crash detected",
		DeviceID:  "helmet-1",
		TripID:    &tripID,
		Timestamp: ts,
		Payload:   map[string]any{"score": 0.92},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if a.ID == "" || !a.CreatedAt.Equal(created) {
		t.Fatalf("unexpected alert: %+v", a)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListForDeviceAndTrip(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	ts := time.Now()
	tripID := "trip-1"
	columns := []string{
		"alert_id", "alert_type", "severity", "message", "device_id", "trip_id",
		"ts", "payload_json", "resolved_at", "resolved_by", "created_at",
	}

	mock.ExpectQuery(`SELECT alert_id, alert_type, severity`).
		WithArgs("helmet-1", 100).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("a-2", TypeGeofence, SeverityWarning, "left zone", "helmet-1", &tripID,
				ts, map[string]any{"zone": "campus"}, (*time.Time)(nil), (*string)(nil), ts).
			AddRow("a-1", TypeCrash, SeverityCritical, "crash", "helmet-1", &tripID,
				ts.Add(-time.Minute), map[string]any(nil), (*time.Time)(nil), (*string)(nil), ts))

	mock.ExpectQuery(`SELECT alert_id, alert_type, severity`).
		WithArgs("trip-1").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("a-1", TypeCrash, SeverityCritical, "crash", "helmet-1", &tripID,
				ts.Add(-time.Minute), map[string]any(nil), (*time.Time)(nil), (*string)(nil), ts))

	svc := NewService(mock)
	alerts, err := svc.ListForDevice(context.Background(), "helmet-1", 0)
	if err != nil || len(alerts) != 2 {
		t.Fatalf("list for device: %v (%d)", err, len(alerts))
	}
	if alerts[0].ID != "a-2" || alerts[0].Type != TypeGeofence {
		t.Fatalf("unexpected first alert: %+v", alerts[0])
	}

	tripAlerts, err := svc.ListForTrip(context.Background(), "trip-1")
	if err != nil || len(tripAlerts) != 1 {
		t.Fatalf("list for trip: %v (%d)", err, len(tripAlerts))
	}
}

func TestResolveAndErrors(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`UPDATE alerts SET resolved_at`).
		WithArgs("a-1", pgxmock.AnyArg(), "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs(pgxmock.AnyArg(), TypeCrash, SeverityCritical, "crash", "helmet-1",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errAlert)

	svc := NewService(mock)
	if err := svc.Resolve(context.Background(), "a-1", "user-1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.Insert(context.Background(), Alert{
		Type: TypeCrash, Severity: SeverityCritical, Message: "crash",
		DeviceID: "helmet-1", Timestamp: time.Now(),
	}); err == nil {
		t.Fatalf("expected error")
	}
}
