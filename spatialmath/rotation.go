// Package spatialmath defines the spatial math used by the navigation filter:
// rotations on SO(3) stored as unit quaternions, rigid poses on SE(3), and the
// exponential/logarithm maps between rotations and their tangent vectors.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// defaultAngleEpsilon is the angle below which Exp/Log switch to their
// small-angle series to avoid dividing by a vanishing norm.
const defaultAngleEpsilon = 1e-8

// NewZeroRotation returns the identity rotation.
func NewZeroRotation() quat.Number {
	return quat.Number{Real: 1}
}

// Exp maps a rotation vector (axis scaled by angle, radians) to the unit
// quaternion representing that rotation.
func Exp(v r3.Vector) quat.Number {
	theta := v.Norm()
	if theta < defaultAngleEpsilon {
		// sin(t/2)/t ~ 1/2 - t^2/48
		s := 0.5 - theta*theta/48
		return Normalize(quat.Number{Real: 1, Imag: v.X * s, Jmag: v.Y * s, Kmag: v.Z * s})
	}
	s := math.Sin(theta/2) / theta
	return quat.Number{
		Real: math.Cos(theta / 2),
		Imag: v.X * s,
		Jmag: v.Y * s,
		Kmag: v.Z * s,
	}
}

// Log maps a unit quaternion to its rotation vector. The result has norm in
// [0, pi].
func Log(q quat.Number) r3.Vector {
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	im := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sinHalf := im.Norm()
	if sinHalf < defaultAngleEpsilon {
		// theta/sin(theta/2) ~ 2 + sinHalf^2/3
		return im.Mul(2 + sinHalf*sinHalf/3)
	}
	theta := 2 * math.Atan2(sinHalf, q.Real)
	return im.Mul(theta / sinHalf)
}

// Normalize scales a quaternion back to unit norm. The zero quaternion is
// mapped to the identity rotation.
func Normalize(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return NewZeroRotation()
	}
	return quat.Scale(1/n, q)
}

// Rotate applies the rotation q to the vector v, computing q * v * q^-1.
func Rotate(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// RotateInverse applies the inverse rotation of q to v.
func RotateInverse(q quat.Number, v r3.Vector) r3.Vector {
	return Rotate(quat.Conj(q), v)
}

// QuatFromRPY builds a rotation from roll, pitch, yaw (radians) applied in
// Z-Y-X order, matching the usual vehicle-frame convention.
func QuatFromRPY(roll, pitch, yaw float64) quat.Number {
	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	cy, sy := math.Cos(yaw/2), math.Sin(yaw/2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// QuatFromYaw builds a rotation about +z by yaw radians.
func QuatFromYaw(yaw float64) quat.Number {
	return quat.Number{Real: math.Cos(yaw / 2), Kmag: math.Sin(yaw / 2)}
}

// Yaw extracts the Z-Y-X yaw angle of q in radians.
func Yaw(q quat.Number) float64 {
	return math.Atan2(
		2*(q.Real*q.Kmag+q.Imag*q.Jmag),
		1-2*(q.Jmag*q.Jmag+q.Kmag*q.Kmag),
	)
}

// QuaternionAlmostEqual returns whether two rotations agree within tol,
// treating q and -q as the same rotation.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	diff := quat.Mul(a, quat.Conj(b))
	return Log(diff).Norm() < tol
}

// BetweenQuats returns the rotation taking a to b, i.e. a^-1 * b.
func BetweenQuats(a, b quat.Number) quat.Number {
	return quat.Mul(quat.Conj(a), b)
}

// QuatBetweenVectors returns the minimal rotation q such that Rotate(q, a) is
// parallel to b. Antiparallel inputs rotate by pi about an arbitrary
// perpendicular axis.
func QuatBetweenVectors(a, b r3.Vector) quat.Number {
	an, bn := a.Norm(), b.Norm()
	if an == 0 || bn == 0 {
		return NewZeroRotation()
	}
	w := an*bn + a.Dot(b)
	if w < defaultAngleEpsilon*an*bn {
		// pick any axis perpendicular to a
		axis := a.Cross(r3.Vector{X: 1})
		if axis.Norm() < defaultAngleEpsilon*an {
			axis = a.Cross(r3.Vector{Y: 1})
		}
		axis = axis.Normalize()
		return quat.Number{Imag: axis.X, Jmag: axis.Y, Kmag: axis.Z}
	}
	cross := a.Cross(b)
	return Normalize(quat.Number{Real: w, Imag: cross.X, Jmag: cross.Y, Kmag: cross.Z})
}
