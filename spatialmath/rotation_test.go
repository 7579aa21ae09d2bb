package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestExpLogRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		v    r3.Vector
	}{
		{"zero", r3.Vector{}},
		{"tiny", r3.Vector{X: 1e-10, Y: -2e-10, Z: 3e-10}},
		{"small roll", r3.Vector{X: 0.01}},
		{"yaw", r3.Vector{Z: 1.2}},
		{"general", r3.Vector{X: 0.3, Y: -0.7, Z: 0.5}},
		{"near pi", r3.Vector{X: 3.1, Y: 0.1, Z: -0.1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := Log(Exp(tc.v))
			test.That(t, got.Sub(tc.v).Norm(), test.ShouldBeLessThan, 1e-9)
		})
	}
}

func TestExpIsUnit(t *testing.T) {
	q := Exp(r3.Vector{X: 0.4, Y: 0.5, Z: -0.6})
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	test.That(t, n, test.ShouldAlmostEqual, 1, 1e-12)
}

func TestRotate(t *testing.T) {
	// 90 degrees about z sends +x to +y.
	q := QuatFromYaw(math.Pi / 2)
	got := Rotate(q, r3.Vector{X: 1})
	test.That(t, got.Sub(r3.Vector{Y: 1}).Norm(), test.ShouldBeLessThan, 1e-12)

	back := RotateInverse(q, got)
	test.That(t, back.Sub(r3.Vector{X: 1}).Norm(), test.ShouldBeLessThan, 1e-12)
}

func TestRotationMatrixMatchesQuat(t *testing.T) {
	q := QuatFromRPY(0.2, -0.4, 1.1)
	rm := NewRotationMatrixFromQuat(q)
	for _, v := range []r3.Vector{{X: 1}, {Y: 1}, {Z: 1}, {X: 0.3, Y: -2, Z: 0.7}} {
		test.That(t, rm.MulVec(v).Sub(Rotate(q, v)).Norm(), test.ShouldBeLessThan, 1e-12)
	}
	// transpose acts as the inverse rotation
	v := r3.Vector{X: 0.5, Y: 1.5, Z: -0.25}
	test.That(t, rm.Transpose().MulVec(rm.MulVec(v)).Sub(v).Norm(), test.ShouldBeLessThan, 1e-12)
}

func TestHat(t *testing.T) {
	a := r3.Vector{X: 1, Y: 2, Z: 3}
	b := r3.Vector{X: -0.5, Y: 0.25, Z: 4}
	h := Hat(a)
	got := r3.Vector{
		X: h.At(0, 0)*b.X + h.At(0, 1)*b.Y + h.At(0, 2)*b.Z,
		Y: h.At(1, 0)*b.X + h.At(1, 1)*b.Y + h.At(1, 2)*b.Z,
		Z: h.At(2, 0)*b.X + h.At(2, 1)*b.Y + h.At(2, 2)*b.Z,
	}
	test.That(t, got.Sub(a.Cross(b)).Norm(), test.ShouldBeLessThan, 1e-12)
}

func TestYaw(t *testing.T) {
	for _, yaw := range []float64{0, 0.3, -1.2, math.Pi - 0.01, -math.Pi + 0.01} {
		test.That(t, Yaw(QuatFromYaw(yaw)), test.ShouldAlmostEqual, yaw, 1e-12)
	}
	test.That(t, Yaw(QuatFromRPY(0.1, -0.2, 0.8)), test.ShouldAlmostEqual, 0.8, 1e-12)
}

func TestQuaternionAlmostEqualSignAmbiguity(t *testing.T) {
	q := QuatFromRPY(0.3, 0.2, -0.9)
	neg := quat.Scale(-1, q)
	test.That(t, QuaternionAlmostEqual(q, neg, 1e-8), test.ShouldBeTrue)
}

func TestQuatBetweenVectors(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b r3.Vector
	}{
		{"x to y", r3.Vector{X: 1}, r3.Vector{Y: 1}},
		{"unnormalized", r3.Vector{X: 3, Y: 0.5, Z: -1}, r3.Vector{X: 0.1, Y: 2, Z: 0.4}},
		{"parallel", r3.Vector{Z: 2}, r3.Vector{Z: 5}},
		{"tilted gravity", r3.Vector{X: 0.4, Y: -0.2, Z: 9.79}, r3.Vector{Z: 1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			q := QuatBetweenVectors(tc.a, tc.b)
			got := Rotate(q, tc.a.Normalize())
			test.That(t, got.Sub(tc.b.Normalize()).Norm(), test.ShouldBeLessThan, 1e-9)
		})
	}

	// antiparallel vectors still get a valid half-turn
	q := QuatBetweenVectors(r3.Vector{Z: 1}, r3.Vector{Z: -1})
	got := Rotate(q, r3.Vector{Z: 1})
	test.That(t, got.Sub(r3.Vector{Z: -1}).Norm(), test.ShouldBeLessThan, 1e-9)
}

func TestPoseComposeInvert(t *testing.T) {
	a := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, QuatFromRPY(0.1, 0.2, 0.3))
	b := NewPose(r3.Vector{X: -4, Y: 0, Z: 2}, QuatFromYaw(1.5))

	ab := a.Compose(b)
	test.That(t, PoseAlmostEqual(ab.Compose(b.Invert()), a, 1e-10), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(a.Invert().Compose(ab), b, 1e-10), test.ShouldBeTrue)

	p := r3.Vector{X: 0.5, Y: -1, Z: 2}
	test.That(t, ab.TransformPoint(p).Sub(a.TransformPoint(b.TransformPoint(p))).Norm(),
		test.ShouldBeLessThan, 1e-10)
}
