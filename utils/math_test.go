package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestDegRadConversions(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90)
	test.That(t, RadToDeg(DegToRad(37.25)), test.ShouldAlmostEqual, 37.25, 1e-12)
}

func TestWrapAngleRad(t *testing.T) {
	test.That(t, WrapAngleRad(3*math.Pi), test.ShouldAlmostEqual, math.Pi, 1e-12)
	test.That(t, WrapAngleRad(-3*math.Pi), test.ShouldAlmostEqual, math.Pi, 1e-12)
	test.That(t, WrapAngleRad(0.25), test.ShouldAlmostEqual, 0.25)
}

func TestAllFinite(t *testing.T) {
	test.That(t, AllFinite(1, -2, 0), test.ShouldBeTrue)
	test.That(t, AllFinite(1, math.NaN()), test.ShouldBeFalse)
	test.That(t, AllFinite(math.Inf(-1)), test.ShouldBeFalse)
}
