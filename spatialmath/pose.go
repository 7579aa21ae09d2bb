package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform on SE(3): a rotation followed by a translation.
// The zero value is not a valid pose; use NewZeroPose.
type Pose struct {
	rot   quat.Number
	point r3.Vector
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{rot: NewZeroRotation()}
}

// NewPose creates a pose from a point and an orientation quaternion.
func NewPose(point r3.Vector, rot quat.Number) Pose {
	return Pose{rot: Normalize(rot), point: point}
}

// NewPoseFromPoint creates a pose with identity orientation at the given point.
func NewPoseFromPoint(point r3.Vector) Pose {
	return Pose{rot: NewZeroRotation(), point: point}
}

// Point returns the translation part of the pose.
func (p Pose) Point() r3.Vector {
	return p.point
}

// Rotation returns the orientation part of the pose.
func (p Pose) Rotation() quat.Number {
	return p.rot
}

// Compose returns the pose p * o, applying o in the frame of p.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		rot:   Normalize(quat.Mul(p.rot, o.rot)),
		point: p.point.Add(Rotate(p.rot, o.point)),
	}
}

// Invert returns the inverse transform.
func (p Pose) Invert() Pose {
	inv := quat.Conj(p.rot)
	return Pose{
		rot:   inv,
		point: Rotate(inv, p.point.Mul(-1)),
	}
}

// TransformPoint applies the pose to a point.
func (p Pose) TransformPoint(v r3.Vector) r3.Vector {
	return Rotate(p.rot, v).Add(p.point)
}

// PoseAlmostEqual returns whether two poses agree within tol in both
// translation (meters) and rotation (radians).
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	return a.point.Sub(b.point).Norm() < tol && QuaternionAlmostEqual(a.rot, b.rot, tol)
}

func (p Pose) String() string {
	return fmt.Sprintf("pose{t: (%.3f, %.3f, %.3f), q: (%.4f, %.4f, %.4f, %.4f)}",
		p.point.X, p.point.Y, p.point.Z, p.rot.Real, p.rot.Imag, p.rot.Jmag, p.rot.Kmag)
}
