package textio

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/rovernav/gins/eskf"
	"github.com/rovernav/gins/spatialmath"
)

// TrajectoryWriter streams nominal-state poses as TUM-format lines:
// t tx ty tz qx qy qz qw. It satisfies the fusion sink interface so it can be
// attached directly to the driver.
type TrajectoryWriter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	out io.Writer
}

// NewTrajectoryWriter wraps an output stream.
func NewTrajectoryWriter(w io.Writer) *TrajectoryWriter {
	return &TrajectoryWriter{w: bufio.NewWriter(w), out: w}
}

// UpdateNavState appends one trajectory line.
func (tw *TrajectoryWriter) UpdateNavState(s eskf.NavState) {
	q := s.Rotation
	tw.mu.Lock()
	defer tw.mu.Unlock()
	fmt.Fprintf(tw.w, "%.9f %.6f %.6f %.6f %.9f %.9f %.9f %.9f\n",
		s.Timestamp,
		s.Position.X, s.Position.Y, s.Position.Z,
		q.Imag, q.Jmag, q.Kmag, q.Real)
}

// UpdateGPSPose is a no-op; only filter states are written.
func (tw *TrajectoryWriter) UpdateGPSPose(spatialmath.Pose) {}

// Close flushes buffered lines and closes the underlying stream when it is a
// closer.
func (tw *TrajectoryWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	err := tw.w.Flush()
	if c, ok := tw.out.(io.Closer); ok {
		err = multierr.Combine(err, c.Close())
	}
	return err
}
