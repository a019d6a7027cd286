package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AdamAtiehh/smart-helmet-backend/internal/telemetry"
	"github.com/AdamAtiehh/smart-helmet-backend/internal/window"
)

// recordingStore collects applied writes and can fail the first N attempts
// of selected operations.
type recordingStore struct {
	mu       sync.Mutex
	applied  []string
	failures map[string]int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{failures: map[string]int{}}
}

func (s *recordingStore) failNext(op string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = times
}

func (s *recordingStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.failures[op]; n > 0 {
		s.failures[op] = n - 1
		return errors.New("transient storage failure")
	}
	s.applied = append(s.applied, op)
	return nil
}

func (s *recordingStore) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.applied))
	copy(out, s.applied)
	return out
}

func (s *recordingStore) CreateRecording(_ context.Context, tripID, deviceID string, _ time.Time) error {
	return s.record("begin:" + tripID)
}

func (s *recordingStore) CloseTrip(_ context.Context, tripID string, _ time.Time, _ window.Stats) error {
	return s.record("end:" + tripID)
}

func (s *recordingStore) InsertSample(_ context.Context, tripID string, sample telemetry.Sample) error {
	return s.record(fmt.Sprintf("sample:%s:%d", tripID, sample.Timestamp.UnixNano()))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func TestWorkerPreservesPerTripOrderUnderRetries(t *testing.T) {
	store := newRecordingStore()
	store.failNext("begin:t1", 2)

	queue := NewQueue(64)
	worker := NewWorker(WorkerConfig{RetryAttempts: 3, RetryBackoff: time.Millisecond}, queue, store, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	base := time.Unix(0, 0)
	if err := queue.Enqueue(ctx, BeginTrip("t1", "d1", base)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i := 1; i <= 3; i++ {
		s := telemetry.Sample{DeviceID: "d1", Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := queue.Enqueue(ctx, AppendSample("t1", s)); err != nil {
			t.Fatalf("enqueue sample: %v", err)
		}
	}
	if err := queue.Enqueue(ctx, EndTrip("t1", "d1", base.Add(time.Minute), window.Stats{})); err != nil {
		t.Fatalf("enqueue end: %v", err)
	}

	waitFor(t, func() bool { return len(store.ops()) == 5 })

	want := []string{
		"begin:t1",
		fmt.Sprintf("sample:t1:%d", base.Add(1*time.Second).UnixNano()),
		fmt.Sprintf("sample:t1:%d", base.Add(2*time.Second).UnixNano()),
		fmt.Sprintf("sample:t1:%d", base.Add(3*time.Second).UnixNano()),
		"end:t1",
	}
	got := store.ops()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order violated at %d: got %v", i, got)
		}
	}
}

func TestWorkerDropsIntentAfterRetryBudget(t *testing.T) {
	store := newRecordingStore()
	store.failNext("begin:t1", 10) // more than the budget

	queue := NewQueue(8)
	worker := NewWorker(WorkerConfig{RetryAttempts: 2, RetryBackoff: time.Millisecond}, queue, store, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	if err := queue.Enqueue(ctx, BeginTrip("t1", "d1", time.Now())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := queue.Enqueue(ctx, BeginTrip("t2", "d2", time.Now())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// t1 is dropped after its budget; the worker moves on to t2
	waitFor(t, func() bool {
		ops := store.ops()
		return len(ops) == 1 && ops[0] == "begin:t2"
	})
}

func TestWorkerDrainsQueueOnClose(t *testing.T) {
	store := newRecordingStore()
	queue := NewQueue(8)
	worker := NewWorker(WorkerConfig{RetryAttempts: 3, RetryBackoff: time.Millisecond}, queue, store, store)

	base := time.Unix(0, 0)
	if err := queue.Enqueue(context.Background(), BeginTrip("t1", "d1", base)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	s := telemetry.Sample{DeviceID: "d1", Timestamp: base.Add(time.Second)}
	if err := queue.Enqueue(context.Background(), AppendSample("t1", s)); err != nil {
		t.Fatalf("enqueue sample: %v", err)
	}
	if err := queue.Enqueue(context.Background(), EndTrip("t1", "d1", base.Add(time.Minute), window.Stats{})); err != nil {
		t.Fatalf("enqueue end: %v", err)
	}

	// close before the worker even starts: Run must apply all three
	// buffered intents and only then return
	queue.Close()

	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not exit after queue close")
	}
	if ops := store.ops(); len(ops) != 3 || ops[0] != "begin:t1" || ops[2] != "end:t1" {
		t.Fatalf("unexpected drained ops: %v", ops)
	}
}

func TestTryEnqueueSaturation(t *testing.T) {
	queue := NewQueue(2)

	if err := queue.TryEnqueue(BeginTrip("t1", "d1", time.Now())); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := queue.TryEnqueue(BeginTrip("t2", "d2", time.Now())); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if err := queue.TryEnqueue(BeginTrip("t3", "d3", time.Now())); !errors.Is(err, ErrQueueSaturated) {
		t.Fatalf("expected ErrQueueSaturated, got %v", err)
	}
	if queue.Len() != 2 {
		t.Fatalf("expected 2 queued intents, got %d", queue.Len())
	}
}

func TestEnqueueBlocksUntilSpaceFrees(t *testing.T) {
	queue := NewQueue(1)
	ctx := context.Background()

	if err := queue.Enqueue(ctx, BeginTrip("t1", "d1", time.Now())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- queue.Enqueue(ctx, BeginTrip("t2", "d2", time.Now()))
	}()

	select {
	case <-done:
		t.Fatalf("enqueue should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	<-queue.ch // consumer frees a slot

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked enqueue: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("enqueue did not resume")
	}
}

func TestEnqueueHonorsContext(t *testing.T) {
	queue := NewQueue(1)
	if err := queue.Enqueue(context.Background(), BeginTrip("t1", "d1", time.Now())); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := queue.Enqueue(ctx, BeginTrip("t2", "d2", time.Now())); err == nil {
		t.Fatalf("expected context error")
	}
}
