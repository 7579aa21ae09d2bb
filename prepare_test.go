package gins

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"go.viam.com/test"

	"github.com/rovernav/gins/spatialmath"
)

func TestPrepareGNSSPosition(t *testing.T) {
	g := NewGNSS(10, int(StatusRTKFixed), geo.NewPoint(51.2, 7.5), 120, 0, false)
	test.That(t, PrepareGNSSPosition(g), test.ShouldBeNil)
	test.That(t, g.UTMValid, test.ShouldBeTrue)
	test.That(t, g.UTM.Zone, test.ShouldEqual, 32)

	// without an origin, the pose carries the raw UTM coordinates
	p := g.Pose.Point()
	test.That(t, p.X, test.ShouldAlmostEqual, g.UTM.Easting, 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, g.UTM.Northing, 1e-9)
	test.That(t, p.Z, test.ShouldEqual, 120.0)
}

func TestPrepareGNSSOrigin(t *testing.T) {
	g := NewGNSS(10, int(StatusRTKFixed), geo.NewPoint(51.2, 7.5), 120, 0, false)
	test.That(t, PrepareGNSSPosition(g), test.ShouldBeNil)
	origin := g.Pose.Point()

	g2 := NewGNSS(11, int(StatusRTKFixed), geo.NewPoint(51.2, 7.5), 121, 0, false)
	test.That(t, PrepareGNSS(g2, r3.Vector{}, 0, origin), test.ShouldBeNil)
	p := g2.Pose.Point()
	test.That(t, p.Norm(), test.ShouldAlmostEqual, 1.0, 1e-9) // only the altitude differs
	test.That(t, p.Z, test.ShouldEqual, 1.0)
}

func TestPrepareGNSSLeverArm(t *testing.T) {
	g := NewGNSS(10, int(StatusRTKFixed), geo.NewPoint(51.2, 7.5), 0, 0, true)
	test.That(t, PrepareGNSSPosition(g), test.ShouldBeNil)
	antennaAt := g.Pose.Point()

	// heading 90 degrees: the body x axis points along nav y, so an antenna
	// one meter ahead of the body origin sits one meter north of it
	g2 := NewGNSS(10, int(StatusRTKFixed), geo.NewPoint(51.2, 7.5), 0, 90, true)
	lever := r3.Vector{X: 1}
	test.That(t, PrepareGNSS(g2, lever, 0, r3.Vector{}), test.ShouldBeNil)

	p := g2.Pose.Point()
	test.That(t, p.X, test.ShouldAlmostEqual, antennaAt.X, 1e-6)
	test.That(t, p.Y, test.ShouldAlmostEqual, antennaAt.Y-1.0, 1e-6)

	// the pose yaw follows heading minus the mounting offset
	g3 := NewGNSS(10, int(StatusRTKFixed), geo.NewPoint(51.2, 7.5), 0, 90, true)
	test.That(t, PrepareGNSS(g3, r3.Vector{}, 30, r3.Vector{}), test.ShouldBeNil)
	test.That(t, spatialmath.Yaw(g3.Pose.Rotation()), test.ShouldAlmostEqual, 60*math.Pi/180, 1e-9)
}

func TestPrepareGNSSRejections(t *testing.T) {
	test.That(t, PrepareGNSSPosition(nil), test.ShouldNotBeNil)

	noLoc := &GNSS{UnixTime: 1, Status: StatusRTKFixed}
	test.That(t, PrepareGNSSPosition(noLoc), test.ShouldNotBeNil)
	test.That(t, noLoc.UTMValid, test.ShouldBeFalse)

	noFix := NewGNSS(1, int(StatusNoFix), geo.NewPoint(51.2, 7.5), 0, 0, false)
	test.That(t, PrepareGNSSPosition(noFix), test.ShouldNotBeNil)

	polar := NewGNSS(1, int(StatusRTKFixed), geo.NewPoint(85.0, 7.5), 0, 0, false)
	test.That(t, PrepareGNSSPosition(polar), test.ShouldNotBeNil)
	test.That(t, polar.UTMValid, test.ShouldBeFalse)
}

func TestNewGNSSStatusMapping(t *testing.T) {
	for _, tc := range []struct {
		raw  int
		want GPSStatus
	}{
		{0, StatusNoFix},
		{1, StatusSinglePoint},
		{2, StatusPseudoRangeDiff},
		{4, StatusRTKFixed},
		{5, StatusRTKFloat},
		{-1, StatusOther},
		{3, StatusOther},
		{99, StatusOther},
	} {
		g := NewGNSS(0, tc.raw, geo.NewPoint(0, 0), 0, 0, false)
		test.That(t, g.Status, test.ShouldEqual, tc.want)
	}
}

func TestGPSStatusString(t *testing.T) {
	test.That(t, StatusRTKFixed.String(), test.ShouldEqual, "rtk-fixed")
	test.That(t, StatusNoFix.String(), test.ShouldEqual, "no-fix")
	test.That(t, StatusOther.String(), test.ShouldEqual, "other")
}

func TestWheelGeometrySpeed(t *testing.T) {
	w := WheelGeometry{Radius: 0.155, PulsesPerRev: 1024}
	o := Odom{Timestamp: 1, LeftPulse: 1024, RightPulse: 1024}
	// one full revolution per second moves one circumference
	test.That(t, w.Speed(o, 1.0), test.ShouldAlmostEqual, 2*math.Pi*0.155, 1e-12)

	// asymmetric wheels average
	o2 := Odom{Timestamp: 1, LeftPulse: 0, RightPulse: 2048}
	test.That(t, w.Speed(o2, 1.0), test.ShouldAlmostEqual, 2*math.Pi*0.155, 1e-12)
}
