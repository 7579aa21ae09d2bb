// Package fusion drives the navigation filter: it orders asynchronous
// IMU/GNSS/odometry streams, performs the static initial alignment, and
// dispatches each sample to the appropriate filter operation.
package fusion

import (
	"sync"

	"github.com/rovernav/gins/eskf"
	"github.com/rovernav/gins/spatialmath"
)

// Sink receives state snapshots from the driver. Implementations must not
// block: the driver calls these inline on the fusion thread.
type Sink interface {
	UpdateNavState(s eskf.NavState)
	UpdateGPSPose(p spatialmath.Pose)
}

// LatestStateSink keeps only the most recent snapshot of each kind, each
// behind its own lock. A slow reader never blocks the fusion thread and
// intermediate states are intentionally dropped.
type LatestStateSink struct {
	navMu  sync.Mutex
	nav    eskf.NavState
	hasNav bool

	gpsMu  sync.Mutex
	gps    spatialmath.Pose
	hasGPS bool
}

// NewLatestStateSink returns an empty sink.
func NewLatestStateSink() *LatestStateSink {
	return &LatestStateSink{}
}

// UpdateNavState stores the latest nominal state.
func (l *LatestStateSink) UpdateNavState(s eskf.NavState) {
	l.navMu.Lock()
	l.nav = s
	l.hasNav = true
	l.navMu.Unlock()
}

// UpdateGPSPose stores the latest prepared GNSS pose.
func (l *LatestStateSink) UpdateGPSPose(p spatialmath.Pose) {
	l.gpsMu.Lock()
	l.gps = p
	l.hasGPS = true
	l.gpsMu.Unlock()
}

// NavState returns a copy of the most recent nominal state, if any.
func (l *LatestStateSink) NavState() (eskf.NavState, bool) {
	l.navMu.Lock()
	defer l.navMu.Unlock()
	return l.nav, l.hasNav
}

// GPSPose returns a copy of the most recent GNSS pose, if any.
func (l *LatestStateSink) GPSPose() (spatialmath.Pose, bool) {
	l.gpsMu.Lock()
	defer l.gpsMu.Unlock()
	return l.gps, l.hasGPS
}
