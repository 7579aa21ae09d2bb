package fusion

import (
	"context"

	gins "github.com/rovernav/gins"
	"github.com/rovernav/gins/textio"
)

// Pacer optionally throttles replay; see textio.Pacer.
type Pacer interface {
	Wait(ctx context.Context, t float64) error
}

// Run consumes the sensor log to end-of-stream, dispatching every record to
// the filter in arrival order. It stops early on context cancellation, on a
// Stop call, or on divergence, discarding pending samples.
func (f *Fusion) Run(ctx context.Context, r *textio.Reader, pacer Pacer) error {
	wait := func(t float64) error {
		if f.stopped.Load() {
			return context.Canceled
		}
		if pacer == nil {
			return ctx.Err()
		}
		return pacer.Wait(ctx, t)
	}

	return r.ReadAll(ctx, textio.Handlers{
		IMU: func(s gins.IMU) error {
			if err := wait(s.Timestamp); err != nil {
				return err
			}
			return f.ProcessIMU(s)
		},
		GNSS: func(g *gins.GNSS) error {
			if err := wait(g.UnixTime); err != nil {
				return err
			}
			return f.ProcessGNSS(g)
		},
		Odom: func(o gins.Odom) error {
			if err := wait(o.Timestamp); err != nil {
				return err
			}
			return f.ProcessOdom(o)
		},
	})
}

// Stop asks a concurrent Run to terminate between samples. Safe to call from
// any goroutine.
func (f *Fusion) Stop() {
	f.stopped.Store(true)
}
