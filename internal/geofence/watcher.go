package geofence

import (
	"sync"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/shared/geo"
)

// Watcher keeps the zone set in memory and tracks which zones each device is
// currently inside, so the hot path never touches the database.
type Watcher struct {
	mu     sync.RWMutex
	zones  map[string][]Zone          // device id -> zones
	inside map[string]map[string]bool // device id -> zone id -> inside
}

func NewWatcher() *Watcher {
	return &Watcher{
		zones:  map[string][]Zone{},
		inside: map[string]map[string]bool{},
	}
}

// SetZones replaces the watched zones for a device. Containment state for
// removed zones is dropped.
func (w *Watcher) SetZones(deviceID string, zones []Zone) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(zones) == 0 {
		delete(w.zones, deviceID)
		delete(w.inside, deviceID)
		return
	}
	w.zones[deviceID] = zones

	keep := map[string]bool{}
	for _, z := range zones {
		keep[z.ID] = true
	}
	for zoneID := range w.inside[deviceID] {
		if !keep[zoneID] {
			delete(w.inside[deviceID], zoneID)
		}
	}
}

func (w *Watcher) AddZone(z Zone) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.zones[z.DeviceID] = append(w.zones[z.DeviceID], z)
}

func (w *Watcher) RemoveZone(deviceID, zoneID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	zones := w.zones[deviceID]
	for i, z := range zones {
		if z.ID == zoneID {
			w.zones[deviceID] = append(zones[:i], zones[i+1:]...)
			break
		}
	}
	if in := w.inside[deviceID]; in != nil {
		delete(in, zoneID)
	}
}

// Check updates containment for the device position and returns boundary
// crossings that should raise an alert. A device first seen inside a zone is
// recorded without alerting; only genuine transitions fire.
func (w *Watcher) Check(deviceID string, lat, lng float64) []Crossing {
	w.mu.Lock()
	defer w.mu.Unlock()

	zones := w.zones[deviceID]
	if len(zones) == 0 {
		return nil
	}
	state := w.inside[deviceID]
	if state == nil {
		state = map[string]bool{}
		w.inside[deviceID] = state
	}

	var crossings []Crossing
	for _, z := range zones {
		in := geo.HaversineKm(lat, lng, z.Lat, z.Lng)*1000 <= z.RadiusM
		was, seen := state[z.ID]
		state[z.ID] = in
		if !seen || was == in {
			continue
		}
		if in != z.AlertOnExit {
			// entered an enter-zone, or left an exit-zone
			crossings = append(crossings, Crossing{Zone: z, Entered: in})
		}
	}
	return crossings
}

// Forget drops containment state for a device, e.g. when its trip ends.
func (w *Watcher) Forget(deviceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inside, deviceID)
}
