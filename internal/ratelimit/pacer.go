// Package ratelimit paces synthesis calls against the remote TTS quota.
// Every BatchSize successful calls are followed by a fixed pause before the
// next call is issued.
package ratelimit

import (
	"context"
	"time"
)

const (
	// BatchSize is the number of successful calls allowed between pauses.
	BatchSize = 3
	// Pause is how long the dispatcher is suspended once a batch is spent.
	Pause = 60 * time.Second
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// BatchPacer counts successful calls and suspends the caller once the
// threshold is reached. It is owned by a single run and is not safe for
// concurrent use.
type BatchPacer struct {
	count     int
	threshold int
	pause     time.Duration
	sleep     SleepFunc
	pauses    int
}

// NewBatchPacer returns a pacer with the production threshold and pause.
func NewBatchPacer() *BatchPacer {
	return NewBatchPacerWith(BatchSize, Pause, Sleep)
}

// NewBatchPacerWith builds a pacer with explicit parameters. A nil sleep uses
// Sleep.
func NewBatchPacerWith(threshold int, pause time.Duration, sleep SleepFunc) *BatchPacer {
	if threshold <= 0 {
		threshold = BatchSize
	}
	if sleep == nil {
		sleep = Sleep
	}
	return &BatchPacer{threshold: threshold, pause: pause, sleep: sleep}
}

// Wait must be called before every request. When the threshold has been
// reached it sleeps for the pause and resets the counter; paused reports
// whether that happened.
func (p *BatchPacer) Wait(ctx context.Context) (paused bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if p.count < p.threshold {
		return false, nil
	}
	if err := p.sleep(ctx, p.pause); err != nil {
		return false, err
	}
	p.count = 0
	p.pauses++
	return true, nil
}

// Due reports whether the next Wait will pause.
func (p *BatchPacer) Due() bool {
	return p.count >= p.threshold
}

// RecordSuccess counts one successful call. Failed calls are not recorded.
func (p *BatchPacer) RecordSuccess() {
	p.count++
}

// Count is the number of successes since the last pause.
func (p *BatchPacer) Count() int { return p.count }

// Pauses is the number of pauses taken so far.
func (p *BatchPacer) Pauses() int { return p.pauses }

// PauseDuration is the configured pause length.
func (p *BatchPacer) PauseDuration() time.Duration { return p.pause }

// Sleep waits on a timer and returns early with ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
