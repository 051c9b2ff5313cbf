package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSleeper struct {
	calls []time.Duration
	err   error
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return r.err
}

func TestPacerPausesAfterEveryBatch(t *testing.T) {
	sleeper := &recordingSleeper{}
	p := NewBatchPacerWith(3, time.Minute, sleeper.sleep)
	ctx := context.Background()

	var pausedBefore []int
	for i := 1; i <= 7; i++ {
		paused, err := p.Wait(ctx)
		if err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
		if p.Count() >= 3 {
			t.Fatalf("counter reached %d before request %d", p.Count(), i)
		}
		if paused {
			pausedBefore = append(pausedBefore, i)
		}
		p.RecordSuccess()
	}

	if len(pausedBefore) != 2 || pausedBefore[0] != 4 || pausedBefore[1] != 7 {
		t.Fatalf("expected pauses before requests 4 and 7, got %v", pausedBefore)
	}
	if len(sleeper.calls) != 2 || sleeper.calls[0] != time.Minute {
		t.Fatalf("unexpected sleeps %v", sleeper.calls)
	}
	if p.Pauses() != 2 {
		t.Fatalf("expected 2 pauses, got %d", p.Pauses())
	}
}

func TestPacerIgnoresFailures(t *testing.T) {
	sleeper := &recordingSleeper{}
	p := NewBatchPacerWith(3, time.Minute, sleeper.sleep)
	ctx := context.Background()

	// Two successes, then a run of failures that are never recorded.
	for i := 0; i < 2; i++ {
		if _, err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
		p.RecordSuccess()
	}
	for i := 0; i < 5; i++ {
		paused, err := p.Wait(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if paused {
			t.Fatalf("unexpected pause on failed attempt %d", i)
		}
	}
	if p.Count() != 2 {
		t.Fatalf("expected count 2, got %d", p.Count())
	}
	if len(sleeper.calls) != 0 {
		t.Fatalf("expected no sleeps, got %v", sleeper.calls)
	}
}

func TestPacerSleepErrorKeepsCount(t *testing.T) {
	sleeper := &recordingSleeper{err: context.Canceled}
	p := NewBatchPacerWith(1, time.Minute, sleeper.sleep)
	p.RecordSuccess()

	paused, err := p.Wait(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if paused || p.Count() != 1 {
		t.Fatalf("expected counter untouched after failed pause, paused=%v count=%d", paused, p.Count())
	}
}

func TestPacerCancelledContext(t *testing.T) {
	p := NewBatchPacerWith(3, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSleepCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep did not return promptly on cancellation")
	}
}

func TestSleepElapses(t *testing.T) {
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewBatchPacerDefaults(t *testing.T) {
	p := NewBatchPacer()
	if p.threshold != BatchSize || p.PauseDuration() != Pause {
		t.Fatalf("unexpected defaults: threshold=%d pause=%v", p.threshold, p.PauseDuration())
	}
}
