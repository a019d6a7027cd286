package trip

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func asUser(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

var tripColumns = []string{
	"trip_id", "device_id", "status", "start_time", "end_time",
	"average_speed", "max_speed", "average_heart_rate", "max_heart_rate",
	"total_distance_km", "sample_count", "created_at",
}

func TestTripHandlersGetAndList(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	start := time.Now().Add(-time.Hour)
	created := start

	mock.ExpectQuery(`SELECT trip_id, device_id, status`).
		WithArgs("trip-1").
		WillReturnRows(pgxmock.NewRows(tripColumns).
			AddRow("trip-1", "helmet-1", StatusEnded, start, (*time.Time)(nil),
				31.0, 58.0, 90.0, 115, 12.4, 1200, created))

	mock.ExpectQuery(`SELECT trip_id, device_id, status`).
		WithArgs("helmet-1", 50).
		WillReturnRows(pgxmock.NewRows(tripColumns).
			AddRow("trip-1", "helmet-1", StatusEnded, start, (*time.Time)(nil),
				31.0, 58.0, 90.0, 115, 12.4, 1200, created))

	app := fiber.New()
	RegisterRoutes(app.Group("/trips"), NewService(mock), asUser("user-1"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/trips/trip-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get trip: %v status %d", err, resp.StatusCode)
	}
	var got Trip
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode trip: %v", err)
	}
	if got.ID != "trip-1" || got.MaxSpeedKmh != 58.0 {
		t.Fatalf("unexpected trip: %+v", got)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/trips/device/helmet-1", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list trips: %v status %d", err, resp.StatusCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTripHandlersNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT trip_id, device_id, status`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	app := fiber.New()
	RegisterRoutes(app.Group("/trips"), NewService(mock), asUser("user-1"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/trips/missing", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v %d", err, resp.StatusCode)
	}
}

func TestTripHandlersRoute(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	ts := time.Now()
	speed := 42.0
	mock.ExpectQuery(`SELECT lat, lng, timestamp, speed_kmh`).
		WithArgs("trip-1").
		WillReturnRows(pgxmock.NewRows([]string{"lat", "lng", "timestamp", "speed_kmh"}).
			AddRow(33.9, 35.5, ts, &speed).
			AddRow(33.91, 35.51, ts.Add(time.Second), (*float64)(nil)))

	app := fiber.New()
	RegisterRoutes(app.Group("/trips"), NewService(mock), asUser("user-1"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/trips/trip-1/route", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("route: %v status %d", err, resp.StatusCode)
	}
	var points []RoutePoint
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &points); err != nil {
		t.Fatalf("decode points: %v", err)
	}
	if len(points) != 2 || points[0].SpeedKmh == nil || *points[0].SpeedKmh != 42.0 {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestTripHandlersListError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT trip_id, device_id, status`).
		WithArgs("helmet-1", 50).
		WillReturnError(errQuery)

	app := fiber.New()
	RegisterRoutes(app.Group("/trips"), NewService(mock), asUser("user-1"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/trips/device/helmet-1", nil))
	if err != nil || resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v %d", err, resp.StatusCode)
	}
}
