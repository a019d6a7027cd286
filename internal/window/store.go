package window

import (
	"errors"
	"sync"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
)

var (
	ErrDuplicateTrip          = errors.New("trip window already open")
	ErrDeviceAlreadyRecording = errors.New("device already has a recording trip")
	ErrUnknownTrip            = errors.New("no open window for trip")
)

type Config struct {
	// Capacity bounds the ring buffer per trip.
	Capacity int
	// TailLen is how many recent entries snapshots expose for the
	// sub-window checks (risk spikes, crash deceleration).
	TailLen int
	// SpeedLimitKmh feeds the above-limit counter maintained per window.
	SpeedLimitKmh float64
}

// Store owns every open trip window, keyed by trip id, with a device index
// enforcing one recording trip per device. Map access is guarded by one
// RWMutex; sample mutation serializes on the per-window mutex, so pushes to
// different trips never contend.
type Store struct {
	cfg Config

	mu       sync.RWMutex
	trips    map[string]*tripWindow
	byDevice map[string]string
}

func NewStore(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 20
	}
	if cfg.TailLen <= 0 || cfg.TailLen > cfg.Capacity {
		cfg.TailLen = cfg.Capacity
	}
	return &Store{
		cfg:      cfg,
		trips:    map[string]*tripWindow{},
		byDevice: map[string]string{},
	}
}

// Open creates an empty window. Both invariants are checked before any state
// is touched, so a failed open leaves the store unchanged.
func (s *Store) Open(tripID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trips[tripID]; exists {
		return ErrDuplicateTrip
	}
	if _, recording := s.byDevice[deviceID]; recording {
		return ErrDeviceAlreadyRecording
	}

	s.trips[tripID] = newTripWindow(tripID, deviceID, s.cfg.Capacity)
	s.byDevice[deviceID] = tripID
	return nil
}

// Push appends a sample to the trip's window, evicting the oldest entry when
// full, and returns a snapshot for scoring.
func (s *Store) Push(tripID string, sample telemetry.Sample) (Snapshot, error) {
	s.mu.RLock()
	w, ok := s.trips[tripID]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrUnknownTrip
	}
	return w.push(sample, s.cfg.SpeedLimitKmh, s.cfg.TailLen)
}

// Close discards the window and returns whole-trip aggregates. The window is
// marked closed before removal so a racing Push fails with ErrUnknownTrip
// instead of landing on a dead buffer.
func (s *Store) Close(tripID string) (Stats, error) {
	s.mu.Lock()
	w, ok := s.trips[tripID]
	if !ok {
		s.mu.Unlock()
		return Stats{}, ErrUnknownTrip
	}
	delete(s.trips, tripID)
	delete(s.byDevice, w.deviceID)
	s.mu.Unlock()

	return w.close(), nil
}

// Has reports whether the trip has an open window.
func (s *Store) Has(tripID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trips[tripID]
	return ok
}

// ActiveTrip reports the recording trip for a device, if any.
func (s *Store) ActiveTrip(deviceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tripID, ok := s.byDevice[deviceID]
	return tripID, ok
}
