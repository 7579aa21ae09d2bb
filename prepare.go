package gins

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/rovernav/gins/geodesy"
	"github.com/rovernav/gins/spatialmath"
	"github.com/rovernav/gins/utils"
)

// PrepareGNSS projects a raw reading into the local metric frame and fills in
// g.UTM, g.UTMValid, and g.Pose.
//
// antennaPos is the antenna lever arm (x, y) in the vehicle frame, in meters;
// antennaAngleDeg is the antenna mounting yaw offset; origin is subtracted
// from the projected position. When the heading is valid the pose rotation is
// built from yaw = heading - antennaAngleDeg and the lever arm is removed by
// back-projecting the antenna through that yaw; without a heading the pose
// carries only a position and the rotation stays identity (not usable).
func PrepareGNSS(g *GNSS, antennaPos r3.Vector, antennaAngleDeg float64, origin r3.Vector) error {
	if g == nil {
		return errors.New("nil gnss reading")
	}
	g.UTMValid = false
	if g.Location == nil {
		return errors.New("gnss reading has no location")
	}
	if g.Status == StatusNoFix {
		return errors.New("gnss reading has no fix")
	}

	u, err := geodesy.LatLonToUTM(g.Location.Lat(), g.Location.Lng())
	if err != nil {
		return errors.Wrap(err, "projecting gnss reading")
	}
	g.UTM = u

	p := r3.Vector{
		X: u.Easting - origin.X,
		Y: u.Northing - origin.Y,
		Z: g.Alt - origin.Z,
	}

	if g.HeadingValid {
		yaw := utils.DegToRad(g.Heading - antennaAngleDeg)
		rot := spatialmath.QuatFromYaw(yaw)
		// vehicle origin = antenna position - R(yaw) * lever arm
		lever := r3.Vector{X: antennaPos.X, Y: antennaPos.Y}
		p = p.Sub(spatialmath.Rotate(rot, lever))
		g.Pose = spatialmath.NewPose(p, rot)
	} else {
		g.Pose = spatialmath.NewPoseFromPoint(p)
	}

	g.UTMValid = true
	return nil
}

// PrepareGNSSPosition converts only the translation, without lever-arm or
// heading handling. Used when the vehicle extrinsics are unknown.
func PrepareGNSSPosition(g *GNSS) error {
	return PrepareGNSS(g, r3.Vector{}, 0, r3.Vector{})
}
