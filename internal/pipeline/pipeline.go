package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/alert"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/crash"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/geofence"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/persist"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/risk"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/stream"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

var ErrNoActiveTrip = errors.New("device has no active trip")

// AlertSink persists alerts raised by the live path.
type AlertSink interface {
	Insert(ctx context.Context, input alert.Alert) (alert.Alert, error)
}

// DeviceRegistry keeps device rows and heartbeats current.
type DeviceRegistry interface {
	Upsert(ctx context.Context, deviceID string) error
	TouchLastSeen(ctx context.Context, deviceID string, ts time.Time) error
}

// ZoneSource loads the geofence zones to watch for a device.
type ZoneSource interface {
	ZonesForDevice(ctx context.Context, deviceID string) ([]geofence.Zone, error)
}

// Broadcaster fans events out to live viewers. *stream.Hub satisfies it.
type Broadcaster interface {
	Broadcast(deviceID string, evt stream.Event)
}

// Pipeline drives every sample through the same sequence: durable enqueue,
// window push, risk assessment, crash detection, geofence check, broadcast.
// Samples for one trip are processed strictly in arrival order.
type Pipeline struct {
	windows  *window.Store
	assessor *risk.Assessor
	detector *crash.Detector
	queue    *persist.Queue
	hub      Broadcaster
	alerts   AlertSink
	devices  DeviceRegistry
	zones    ZoneSource
	watcher  *geofence.Watcher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(windows *window.Store, assessor *risk.Assessor, detector *crash.Detector,
	queue *persist.Queue, hub Broadcaster, alerts AlertSink,
	devices DeviceRegistry, zones ZoneSource, watcher *geofence.Watcher) *Pipeline {
	return &Pipeline{
		windows:  windows,
		assessor: assessor,
		detector: detector,
		queue:    queue,
		hub:      hub,
		alerts:   alerts,
		devices:  devices,
		zones:    zones,
		watcher:  watcher,
		locks:    map[string]*sync.Mutex{},
	}
}

// tripLock returns the mutex serializing all work for one trip, creating it
// on first use.
func (p *Pipeline) tripLock(tripID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[tripID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[tripID] = l
	}
	return l
}

func (p *Pipeline) dropLock(tripID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locks, tripID)
}

// StartTrip opens the in-memory window, queues the durable begin-trip write
// and primes the geofence watcher. An empty tripID gets a generated one.
func (p *Pipeline) StartTrip(ctx context.Context, deviceID, tripID string, start time.Time) (string, error) {
	if tripID == "" {
		tripID = uuid.NewString()
	}
	if err := p.windows.Open(tripID, deviceID); err != nil {
		return "", err
	}

	if err := p.devices.Upsert(ctx, deviceID); err != nil {
		log.Printf("pipeline: upsert device %s: %v", deviceID, err)
	}
	if p.zones != nil && p.watcher != nil {
		zones, err := p.zones.ZonesForDevice(ctx, deviceID)
		if err != nil {
			log.Printf("pipeline: load zones for %s: %v", deviceID, err)
		} else {
			p.watcher.SetZones(deviceID, zones)
		}
	}

	if err := p.queue.Enqueue(ctx, persist.BeginTrip(tripID, deviceID, start)); err != nil {
		// undo the open so the device is not stuck recording a trip that
		// was never persisted
		_, _ = p.windows.Close(tripID)
		return "", err
	}

	p.hub.Broadcast(deviceID, stream.Event{Type: stream.EventTripStart, Payload: map[string]any{
		"trip_id":   tripID,
		"device_id": deviceID,
		"ts":        start,
	}})
	return tripID, nil
}

// HandleSample processes one telemetry frame for the device's active trip.
// The window is checked under the trip lock before anything else, so a
// sample for a closed or unknown trip is rejected without reaching storage;
// for an accepted sample the durable enqueue happens before the in-memory
// push, so it is never scored without also being queued. Enqueue blocks when
// the queue is full, pushing backpressure onto the ingest connection.
func (p *Pipeline) HandleSample(ctx context.Context, sample telemetry.Sample) error {
	tripID := sample.TripID
	if tripID == "" {
		var ok bool
		tripID, ok = p.windows.ActiveTrip(sample.DeviceID)
		if !ok {
			return ErrNoActiveTrip
		}
		sample.TripID = tripID
	}

	l := p.tripLock(tripID)
	l.Lock()
	defer l.Unlock()

	// EndTrip closes the window under this same lock, so the check cannot
	// race a concurrent shutdown of the trip.
	if !p.windows.Has(tripID) {
		return window.ErrUnknownTrip
	}

	if err := p.queue.Enqueue(ctx, persist.AppendSample(tripID, sample)); err != nil {
		return err
	}

	snap, err := p.windows.Push(tripID, sample)
	if err != nil {
		return err
	}

	if err := p.devices.TouchLastSeen(ctx, sample.DeviceID, sample.Timestamp); err != nil {
		log.Printf("pipeline: touch last seen %s: %v", sample.DeviceID, err)
	}

	p.hub.Broadcast(sample.DeviceID, stream.Event{Type: stream.EventTelemetry, Payload: sample})

	if status, emit := p.assessor.Assess(snap); emit {
		p.hub.Broadcast(sample.DeviceID, stream.Event{Type: stream.EventRiskStatus, Payload: status})
	}

	if crashAlert, fired := p.detector.Observe(snap); fired {
		p.raiseCrashAlert(ctx, sample, crashAlert)
	}

	if p.watcher != nil && sample.HasGPSFix() {
		for _, crossing := range p.watcher.Check(sample.DeviceID, sample.GPS.Lat, sample.GPS.Lng) {
			p.raiseGeofenceAlert(ctx, sample, crossing)
		}
	}
	return nil
}

// EndTrip closes the window first, so samples racing the shutdown fail fast,
// then queues the durable close with the whole-trip aggregates.
func (p *Pipeline) EndTrip(ctx context.Context, deviceID string, end time.Time) (string, window.Stats, error) {
	tripID, ok := p.windows.ActiveTrip(deviceID)
	if !ok {
		return "", window.Stats{}, ErrNoActiveTrip
	}

	l := p.tripLock(tripID)
	l.Lock()
	defer l.Unlock()
	defer p.dropLock(tripID)

	stats, err := p.windows.Close(tripID)
	if err != nil {
		return "", window.Stats{}, err
	}

	p.assessor.Forget(tripID)
	p.detector.Forget(tripID)
	if p.watcher != nil {
		p.watcher.Forget(deviceID)
	}

	if err := p.queue.Enqueue(ctx, persist.EndTrip(tripID, deviceID, end, stats)); err != nil {
		return tripID, stats, err
	}

	p.hub.Broadcast(deviceID, stream.Event{Type: stream.EventTripEnd, Payload: map[string]any{
		"trip_id":   tripID,
		"device_id": deviceID,
		"ts":        end,
		"stats":     stats,
	}})
	return tripID, stats, nil
}

// ActiveTrip exposes the device's recording trip for the ingest layer.
func (p *Pipeline) ActiveTrip(deviceID string) (string, bool) {
	return p.windows.ActiveTrip(deviceID)
}

func (p *Pipeline) raiseCrashAlert(ctx context.Context, sample telemetry.Sample, crashAlert crash.Alert) {
	payload := map[string]any{"score": crashAlert.Score}
	if sample.HasGPSFix() {
		payload["lat"] = sample.GPS.Lat
		payload["lng"] = sample.GPS.Lng
	}
	stored, err := p.alerts.Insert(ctx, alert.Alert{
		Type:      alert.TypeCrash,
		Severity:  alert.SeverityCritical,
		Message:   crashAlert.Message,
		DeviceID:  crashAlert.DeviceID,
		TripID:    &crashAlert.TripID,
		Timestamp: crashAlert.Timestamp,
		Payload:   payload,
	})
	if err != nil {
		log.Printf("pipeline: store crash alert for %s: %v", crashAlert.TripID, err)
		// the broadcast still goes out, storage is retried by ops
		stored = alert.Alert{
			Type: alert.TypeCrash, Severity: alert.SeverityCritical,
			Message: crashAlert.Message, DeviceID: crashAlert.DeviceID,
			TripID: &crashAlert.TripID, Timestamp: crashAlert.Timestamp, Payload: payload,
		}
	}
	p.hub.Broadcast(crashAlert.DeviceID, stream.Event{Type: stream.EventCrashAlert, Payload: stored})
}

func (p *Pipeline) raiseGeofenceAlert(ctx context.Context, sample telemetry.Sample, crossing geofence.Crossing) {
	direction := "entered"
	if !crossing.Entered {
		direction = "left"
	}
	stored, err := p.alerts.Insert(ctx, alert.Alert{
		Type:      alert.TypeGeofence,
		Severity:  alert.SeverityWarning,
		Message:   "device " + direction + " zone " + crossing.Zone.Name,
		DeviceID:  sample.DeviceID,
		TripID:    &sample.TripID,
		Timestamp: sample.Timestamp,
		Payload: map[string]any{
			"zone_id": crossing.Zone.ID,
			"zone":    crossing.Zone.Name,
			"entered": crossing.Entered,
			"lat":     sample.GPS.Lat,
			"lng":     sample.GPS.Lng,
		},
	})
	if err != nil {
		log.Printf("pipeline: store geofence alert for %s: %v", sample.DeviceID, err)
		return
	}
	p.hub.Broadcast(sample.DeviceID, stream.Event{Type: stream.EventGeofence, Payload: stored})
}
