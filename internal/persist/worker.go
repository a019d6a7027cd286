package persist

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

// TripWriter and SampleWriter are the durable-storage capabilities the worker
// needs. trip.Service satisfies both.
type TripWriter interface {
	CreateRecording(ctx context.Context, tripID, deviceID string, start time.Time) error
	CloseTrip(ctx context.Context, tripID string, end time.Time, stats window.Stats) error
}

type SampleWriter interface {
	InsertSample(ctx context.Context, tripID string, sample telemetry.Sample) error
}

type WorkerConfig struct {
	// RetryAttempts is the total tries per intent before it is dropped.
	RetryAttempts int
	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration
}

// Worker is the sole consumer of the queue. Intents are applied strictly in
// arrival order; a failing intent is retried in place, never skipped past,
// so a trip's durable record is always a prefix of its true event sequence.
type Worker struct {
	cfg     WorkerConfig
	queue   *Queue
	trips   TripWriter
	samples SampleWriter
}

func NewWorker(cfg WorkerConfig, queue *Queue, trips TripWriter, samples SampleWriter) *Worker {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Worker{cfg: cfg, queue: queue, trips: trips, samples: samples}
}

// Run drains the queue until the context is cancelled or the queue is
// closed. On close the worker finishes everything still buffered before
// returning, so a clean shutdown loses no intents.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case intent, ok := <-w.queue.ch:
			if !ok {
				return
			}
			if err := w.applyWithRetry(ctx, intent); err != nil {
				log.Printf("persist: dropping %s for trip %s after retries: %v", intent.Kind, intent.TripID, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) applyWithRetry(ctx context.Context, intent Intent) error {
	backoff := w.cfg.RetryBackoff
	var err error
	for attempt := 0; attempt < w.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		if err = w.apply(ctx, intent); err == nil {
			return nil
		}
		log.Printf("persist: %s for trip %s failed (attempt %d/%d): %v",
			intent.Kind, intent.TripID, attempt+1, w.cfg.RetryAttempts, err)
	}
	return err
}

func (w *Worker) apply(ctx context.Context, intent Intent) error {
	switch intent.Kind {
	case KindBeginTrip:
		return w.trips.CreateRecording(ctx, intent.TripID, intent.DeviceID, intent.Timestamp)
	case KindAppendSample:
		return w.samples.InsertSample(ctx, intent.TripID, *intent.Sample)
	case KindEndTrip:
		return w.trips.CloseTrip(ctx, intent.TripID, intent.Timestamp, *intent.Stats)
	default:
		return fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
}
