// Package eskf implements an 18-state error-state Kalman filter over the
// rigid-body manifold: the nominal state carries rotation, position,
// velocity, IMU biases, and gravity, while the covariance lives on the
// tangent-space error state
// [dp, dv, dtheta, dbg, dba, dg].
package eskf

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/rovernav/gins/spatialmath"
)

// Error-state block offsets.
const (
	idxPos      = 0
	idxVel      = 3
	idxTheta    = 6
	idxGyroBias = 9
	idxAccBias  = 12
	idxGravity  = 15

	// StateDim is the dimension of the error state.
	StateDim = 18
)

// NavState is the nominal navigation state. It is a value type; the filter
// hands out copies only.
type NavState struct {
	Timestamp float64
	Rotation  quat.Number // unit quaternion, body to nav
	Position  r3.Vector
	Velocity  r3.Vector
	GyroBias  r3.Vector
	AccBias   r3.Vector
	Gravity   r3.Vector // in the nav frame, typically (0, 0, -9.81)
}

// NewNavState returns a state at the given time with identity rotation and
// the given nav-frame gravity.
func NewNavState(timestamp float64, gravity r3.Vector) NavState {
	return NavState{
		Timestamp: timestamp,
		Rotation:  spatialmath.NewZeroRotation(),
		Gravity:   gravity,
	}
}

// Pose returns the SE(3) element (R, p) of the state.
func (s NavState) Pose() spatialmath.Pose {
	return spatialmath.NewPose(s.Position, s.Rotation)
}

// ComposeRight injects an 18-dimensional error vector into the nominal state:
// linear blocks add, and the rotation is right-multiplied by Exp(dtheta).
// dx must have length StateDim.
func (s *NavState) ComposeRight(dx []float64) {
	if len(dx) != StateDim {
		panic(fmt.Sprintf("error state must have length %d, got %d", StateDim, len(dx)))
	}
	s.Position = s.Position.Add(vecAt(dx, idxPos))
	s.Velocity = s.Velocity.Add(vecAt(dx, idxVel))
	s.Rotation = spatialmath.Normalize(
		quat.Mul(s.Rotation, spatialmath.Exp(vecAt(dx, idxTheta))))
	s.GyroBias = s.GyroBias.Add(vecAt(dx, idxGyroBias))
	s.AccBias = s.AccBias.Add(vecAt(dx, idxAccBias))
	s.Gravity = s.Gravity.Add(vecAt(dx, idxGravity))
}

func vecAt(dx []float64, off int) r3.Vector {
	return r3.Vector{X: dx[off], Y: dx[off+1], Z: dx[off+2]}
}

func (s NavState) String() string {
	return fmt.Sprintf("navstate{t: %.3f, p: (%.3f, %.3f, %.3f), v: (%.3f, %.3f, %.3f), bg: %v, ba: %v}",
		s.Timestamp, s.Position.X, s.Position.Y, s.Position.Z,
		s.Velocity.X, s.Velocity.Y, s.Velocity.Z, s.GyroBias, s.AccBias)
}
