package window

import (
	"math"
	"testing"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
)

func sampleAt(t time.Time, speed, accel, gyro float64, hr int) telemetry.Sample {
	s := telemetry.Sample{
		DeviceID:  "device-1",
		Timestamp: t,
		SpeedKmh:  &speed,
		IMU:       telemetry.IMU{AX: accel, GX: gyro},
	}
	if hr > 0 {
		s.HeartRate = &telemetry.HeartRate{OK: true, BPM: hr}
	}
	return s
}

func TestOpenInvariants(t *testing.T) {
	store := NewStore(Config{Capacity: 4})

	if err := store.Open("trip-1", "device-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Open("trip-1", "device-2"); err != ErrDuplicateTrip {
		t.Fatalf("expected ErrDuplicateTrip, got %v", err)
	}
	if err := store.Open("trip-2", "device-1"); err != ErrDeviceAlreadyRecording {
		t.Fatalf("expected ErrDeviceAlreadyRecording, got %v", err)
	}

	// the failed opens must not have registered anything
	if _, ok := store.ActiveTrip("device-2"); ok {
		t.Fatalf("device-2 should not be recording")
	}
	if tripID, ok := store.ActiveTrip("device-1"); !ok || tripID != "trip-1" {
		t.Fatalf("unexpected active trip: %q %v", tripID, ok)
	}
}

func TestPushUnknownTrip(t *testing.T) {
	store := NewStore(Config{Capacity: 4})
	if _, err := store.Push("nope", telemetry.Sample{}); err != ErrUnknownTrip {
		t.Fatalf("expected ErrUnknownTrip, got %v", err)
	}
	if _, err := store.Close("nope"); err != ErrUnknownTrip {
		t.Fatalf("expected ErrUnknownTrip on close, got %v", err)
	}
}

func TestPushAfterCloseFails(t *testing.T) {
	store := NewStore(Config{Capacity: 4})
	if err := store.Open("trip-1", "device-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.Close("trip-1"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Push("trip-1", telemetry.Sample{}); err != ErrUnknownTrip {
		t.Fatalf("expected ErrUnknownTrip after close, got %v", err)
	}

	// device is free again
	if err := store.Open("trip-2", "device-1"); err != nil {
		t.Fatalf("reopen for device: %v", err)
	}
}

// Rolling aggregates must equal a direct recomputation over the buffer's
// current contents, including after evictions.
func TestIncrementalAggregatesMatchRecompute(t *testing.T) {
	const capacity = 8
	store := NewStore(Config{Capacity: capacity, SpeedLimitKmh: 60})
	if err := store.Open("trip-1", "device-1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Now()
	var snap Snapshot
	for i := 0; i < 25; i++ {
		speed := 30 + float64(i*7%50)
		accel := 9.5 + float64(i%5)
		gyro := 0.5 + float64(i%3)
		hr := 0
		if i%2 == 0 {
			hr = 80 + i
		}
		var err error
		snap, err = store.Push("trip-1", sampleAt(base.Add(time.Duration(i)*time.Second), speed, accel, gyro, hr))
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	if snap.Len != capacity {
		t.Fatalf("expected full window, got %d", snap.Len)
	}
	if len(snap.Tail) != capacity {
		t.Fatalf("expected tail to cover window, got %d", len(snap.Tail))
	}

	var speedSum, speedSq, accelSum, accelSq, gyroSum, gyroSq, hrSum float64
	var speedN, hrN, above int
	for _, e := range snap.Tail {
		if e.HasSpeed {
			speedSum += e.SpeedKmh
			speedSq += e.SpeedKmh * e.SpeedKmh
			speedN++
			if e.SpeedKmh > 60 {
				above++
			}
		}
		accelSum += e.AccelMag
		accelSq += e.AccelMag * e.AccelMag
		gyroSum += e.GyroMag
		gyroSq += e.GyroMag * e.GyroMag
		if e.HasHeart {
			hrSum += float64(e.HeartBPM)
			hrN++
		}
	}

	approx := func(got, want float64) bool { return math.Abs(got-want) < 1e-6 }

	if !approx(snap.SpeedMean, speedSum/float64(speedN)) {
		t.Fatalf("speed mean: got %v want %v", snap.SpeedMean, speedSum/float64(speedN))
	}
	wantVar := speedSq/float64(speedN) - (speedSum/float64(speedN))*(speedSum/float64(speedN))
	if !approx(snap.SpeedVar, wantVar) {
		t.Fatalf("speed var: got %v want %v", snap.SpeedVar, wantVar)
	}
	if !approx(snap.AccelMean, accelSum/float64(capacity)) {
		t.Fatalf("accel mean: got %v want %v", snap.AccelMean, accelSum/float64(capacity))
	}
	wantGyroVar := gyroSq/float64(capacity) - (gyroSum/float64(capacity))*(gyroSum/float64(capacity))
	if !approx(snap.GyroVar, wantGyroVar) {
		t.Fatalf("gyro var: got %v want %v", snap.GyroVar, wantGyroVar)
	}
	if snap.AboveLimit != above {
		t.Fatalf("above limit: got %d want %d", snap.AboveLimit, above)
	}
	if snap.HeartCount != hrN || !approx(snap.HeartMean, hrSum/float64(hrN)) {
		t.Fatalf("heart aggregates: got %d/%v want %d/%v", snap.HeartCount, snap.HeartMean, hrN, hrSum/float64(hrN))
	}
}

func TestCloseStatsCoverWholeTrip(t *testing.T) {
	store := NewStore(Config{Capacity: 4})
	if err := store.Open("trip-1", "device-1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	base := time.Now()
	speeds := []float64{10, 20, 30, 40, 50, 60}
	for i, v := range speeds {
		s := sampleAt(base.Add(time.Duration(i)*time.Second), v, 9.8, 0.1, 100+i)
		s.GPS = &telemetry.GPS{OK: true, Lat: 33.89 + float64(i)*0.001, Lng: 35.5}
		if _, err := store.Push("trip-1", s); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	stats, err := store.Close("trip-1")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if stats.SampleCount != len(speeds) {
		t.Fatalf("sample count: got %d", stats.SampleCount)
	}
	if stats.MaxSpeedKmh != 60 {
		t.Fatalf("max speed: got %v", stats.MaxSpeedKmh)
	}
	if math.Abs(stats.AvgSpeedKmh-35) > 1e-6 {
		t.Fatalf("avg speed: got %v", stats.AvgSpeedKmh)
	}
	if stats.MaxHeartRate != 105 {
		t.Fatalf("max hr: got %d", stats.MaxHeartRate)
	}
	if stats.DistanceKm <= 0 {
		t.Fatalf("expected accumulated distance, got %v", stats.DistanceKm)
	}
}

func TestHeartRateAbsenceIsNotCounted(t *testing.T) {
	store := NewStore(Config{Capacity: 4})
	if err := store.Open("trip-1", "device-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	snap, err := store.Push("trip-1", sampleAt(time.Now(), 20, 9.8, 0.1, 0))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if snap.HeartCount != 0 || snap.HeartMean != 0 {
		t.Fatalf("expected no heart aggregates, got %d/%v", snap.HeartCount, snap.HeartMean)
	}
}
