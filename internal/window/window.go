package window

import (
	"sync"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/shared/geo"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
)

// series keeps a running sum and sum of squares so mean and variance stay
// O(1) under both append and eviction.
type series struct {
	n     int
	sum   float64
	sumSq float64
}

func (r *series) add(v float64) {
	r.n++
	r.sum += v
	r.sumSq += v * v
}

func (r *series) remove(v float64) {
	r.n--
	r.sum -= v
	r.sumSq -= v * v
}

func (r *series) mean() float64 {
	if r.n == 0 {
		return 0
	}
	return r.sum / float64(r.n)
}

func (r *series) variance() float64 {
	if r.n == 0 {
		return 0
	}
	m := r.mean()
	v := r.sumSq/float64(r.n) - m*m
	if v < 0 {
		// float rounding can push a zero variance slightly negative
		return 0
	}
	return v
}

// Entry is one buffered sample reduced to the scalars the scorers consume.
type Entry struct {
	Timestamp time.Time
	SpeedKmh  float64
	HasSpeed  bool
	AccelMag  float64
	GyroMag   float64
	HeartBPM  int
	HasHeart  bool
}

// Snapshot is a copy of a window's state taken at push time. The tail holds
// the most recent entries (oldest first), sized for the sub-window checks;
// everything else is an O(1) aggregate.
type Snapshot struct {
	TripID   string
	DeviceID string
	Len      int

	SpeedMean  float64
	SpeedVar   float64
	SpeedCount int
	AboveLimit int

	AccelMean float64
	AccelVar  float64
	GyroMean  float64
	GyroVar   float64

	HeartMean  float64
	HeartCount int

	Tail   []Entry
	Latest Entry
}

// Stats are the whole-trip aggregates returned when a window closes. Unlike
// the rolling snapshot they cover every sample the trip ever pushed.
type Stats struct {
	SampleCount  int
	AvgSpeedKmh  float64
	MaxSpeedKmh  float64
	AvgHeartRate float64
	MaxHeartRate int
	DistanceKm   float64
}

type tripWindow struct {
	mu       sync.Mutex
	tripID   string
	deviceID string
	closed   bool

	buf  []Entry
	head int
	size int

	speed series
	accel series
	gyro  series
	heart series

	aboveLimit int
	lastFix    *telemetry.GPSFix

	// whole-trip stats, never evicted
	total      int
	tripSpeed  series
	tripHeart  series
	maxSpeed   float64
	maxHeart   int
	distanceKm float64
}

func newTripWindow(tripID, deviceID string, capacity int) *tripWindow {
	return &tripWindow{
		tripID:   tripID,
		deviceID: deviceID,
		buf:      make([]Entry, capacity),
	}
}

func (w *tripWindow) push(sample telemetry.Sample, speedLimit float64, tailLen int) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return Snapshot{}, ErrUnknownTrip
	}

	e := Entry{
		Timestamp: sample.Timestamp,
		AccelMag:  sample.AccelMagnitude(),
		GyroMag:   sample.GyroMagnitude(),
	}
	if v, ok := telemetry.ResolveSpeedKmh(sample, w.lastFix); ok {
		e.SpeedKmh = v
		e.HasSpeed = true
	}
	if bpm, ok := sample.HeartRateBPM(); ok {
		e.HeartBPM = bpm
		e.HasHeart = true
	}

	if sample.HasGPSFix() {
		if w.lastFix != nil {
			w.distanceKm += geo.HaversineKm(w.lastFix.Lat, w.lastFix.Lng, sample.GPS.Lat, sample.GPS.Lng)
		}
		w.lastFix = &telemetry.GPSFix{Lat: sample.GPS.Lat, Lng: sample.GPS.Lng, At: sample.Timestamp}
	}

	if w.size == len(w.buf) {
		w.evictOldest(speedLimit)
	}
	w.buf[(w.head+w.size)%len(w.buf)] = e
	w.size++

	w.accel.add(e.AccelMag)
	w.gyro.add(e.GyroMag)
	if e.HasSpeed {
		w.speed.add(e.SpeedKmh)
		if e.SpeedKmh > speedLimit {
			w.aboveLimit++
		}
	}
	if e.HasHeart {
		w.heart.add(float64(e.HeartBPM))
	}

	w.total++
	if e.HasSpeed {
		w.tripSpeed.add(e.SpeedKmh)
		if e.SpeedKmh > w.maxSpeed {
			w.maxSpeed = e.SpeedKmh
		}
	}
	if e.HasHeart {
		w.tripHeart.add(float64(e.HeartBPM))
		if e.HeartBPM > w.maxHeart {
			w.maxHeart = e.HeartBPM
		}
	}

	return w.snapshot(tailLen), nil
}

func (w *tripWindow) evictOldest(speedLimit float64) {
	old := w.buf[w.head]
	w.head = (w.head + 1) % len(w.buf)
	w.size--

	w.accel.remove(old.AccelMag)
	w.gyro.remove(old.GyroMag)
	if old.HasSpeed {
		w.speed.remove(old.SpeedKmh)
		if old.SpeedKmh > speedLimit {
			w.aboveLimit--
		}
	}
	if old.HasHeart {
		w.heart.remove(float64(old.HeartBPM))
	}
}

func (w *tripWindow) snapshot(tailLen int) Snapshot {
	if tailLen > w.size {
		tailLen = w.size
	}
	tail := make([]Entry, tailLen)
	for i := 0; i < tailLen; i++ {
		tail[i] = w.buf[(w.head+w.size-tailLen+i)%len(w.buf)]
	}

	snap := Snapshot{
		TripID:     w.tripID,
		DeviceID:   w.deviceID,
		Len:        w.size,
		SpeedMean:  w.speed.mean(),
		SpeedVar:   w.speed.variance(),
		SpeedCount: w.speed.n,
		AboveLimit: w.aboveLimit,
		AccelMean:  w.accel.mean(),
		AccelVar:   w.accel.variance(),
		GyroMean:   w.gyro.mean(),
		GyroVar:    w.gyro.variance(),
		HeartMean:  w.heart.mean(),
		HeartCount: w.heart.n,
		Tail:       tail,
	}
	if len(tail) > 0 {
		snap.Latest = tail[len(tail)-1]
	}
	return snap
}

func (w *tripWindow) close() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	return Stats{
		SampleCount:  w.total,
		AvgSpeedKmh:  w.tripSpeed.mean(),
		MaxSpeedKmh:  w.maxSpeed,
		AvgHeartRate: w.tripHeart.mean(),
		MaxHeartRate: w.maxHeart,
		DistanceKm:   w.distanceKm,
	}
}
