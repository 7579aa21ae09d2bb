package textio

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Pacer throttles an offline replay to sensor-timestamp rate. The first
// waited-on timestamp anchors the wall clock; subsequent timestamps sleep
// out their offset, scaled by the speed factor. A mock clock makes pacing
// testable.
type Pacer struct {
	clock clock.Clock
	speed float64

	started   bool
	wallStart time.Time
	firstT    float64
}

// NewPacer creates a pacer running at speed times real time; speed must be
// positive.
func NewPacer(c clock.Clock, speed float64) *Pacer {
	if speed <= 0 {
		speed = 1
	}
	return &Pacer{clock: c, speed: speed}
}

// Wait blocks until the wall clock reaches sensor time t, or the context is
// canceled.
func (p *Pacer) Wait(ctx context.Context, t float64) error {
	if !p.started {
		p.started = true
		p.wallStart = p.clock.Now()
		p.firstT = t
		return ctx.Err()
	}

	offset := time.Duration((t - p.firstT) / p.speed * float64(time.Second))
	target := p.wallStart.Add(offset)
	d := target.Sub(p.clock.Now())
	if d <= 0 {
		return ctx.Err()
	}

	timer := p.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
