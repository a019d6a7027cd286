package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/pipeline"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

// TripRunner is the slice of the pipeline the ingest layer drives.
// *pipeline.Pipeline satisfies it.
type TripRunner interface {
	StartTrip(ctx context.Context, deviceID, tripID string, start time.Time) (string, error)
	HandleSample(ctx context.Context, sample telemetry.Sample) error
	EndTrip(ctx context.Context, deviceID string, end time.Time) (string, window.Stats, error)
}

type ack struct {
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	TripID string        `json:"trip_id,omitempty"`
	Stats  *window.Stats `json:"stats,omitempty"`
}

// RegisterRoutes wires the device uplink: a websocket for live devices and a
// plain POST for store-and-forward uploads. An empty apiKey disables the
// check (tests and local runs).
func RegisterRoutes(r fiber.Router, runner TripRunner, apiKey string) {
	keyCheck := func(c *fiber.Ctx) error {
		if apiKey == "" {
			return c.Next()
		}
		got := c.Get("X-API-Key")
		if got == "" {
			got = c.Query("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid api key")
		}
		return c.Next()
	}

	r.Post("/", keyCheck, func(c *fiber.Ctx) error {
		var env Envelope
		if err := json.Unmarshal(c.Body(), &env); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		result := dispatch(c.Context(), runner, env)
		if result.Status != "saved" {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
		}
		return c.JSON(result)
	})

	r.Get("/ws", keyCheck, websocket.New(func(c *websocket.Conn) {
		serveDevice(c, runner)
	}))
}

// serveDevice runs the per-connection uplink loop: parse, dispatch, ack.
// A disconnect mid-trip ends the trip on the device's behalf so its window
// and durable row do not dangle.
func serveDevice(c *websocket.Conn, runner TripRunner) {
	var lastDeviceID string

	defer func() {
		if lastDeviceID == "" {
			return
		}
		if _, _, err := runner.EndTrip(context.Background(), lastDeviceID, time.Now().UTC()); err != nil &&
			!errors.Is(err, pipeline.ErrNoActiveTrip) {
			log.Printf("ingest: close trip on disconnect for %s: %v", lastDeviceID, err)
		}
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			writeAck(c, ack{Status: "error", Error: err.Error()})
			continue
		}
		if env.DeviceID != "" {
			lastDeviceID = env.DeviceID
		}

		result := dispatch(context.Background(), runner, env)
		if !writeAck(c, result) {
			return
		}
	}
}

func dispatch(ctx context.Context, runner TripRunner, env Envelope) ack {
	if err := env.validate(); err != nil {
		return ack{Status: "error", Error: err.Error()}
	}

	switch env.Type {
	case TypeTripStart:
		tripID, err := runner.StartTrip(ctx, env.DeviceID, env.TripID, env.Timestamp.Time)
		if err != nil {
			return ack{Status: "error", Error: err.Error()}
		}
		return ack{Status: "saved", TripID: tripID}

	case TypeTelemetry:
		if err := runner.HandleSample(ctx, env.sample()); err != nil {
			return ack{Status: "error", Error: err.Error()}
		}
		return ack{Status: "saved"}

	case TypeTripEnd:
		tripID, stats, err := runner.EndTrip(ctx, env.DeviceID, env.Timestamp.Time)
		if err != nil {
			return ack{Status: "error", Error: err.Error()}
		}
		return ack{Status: "saved", TripID: tripID, Stats: &stats}
	}
	return ack{Status: "error", Error: ErrUnknownType.Error()}
}

func writeAck(c *websocket.Conn, a ack) bool {
	payload, err := json.Marshal(a)
	if err != nil {
		return false
	}
	return c.WriteMessage(websocket.TextMessage, payload) == nil
}
