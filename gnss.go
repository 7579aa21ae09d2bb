package gins

import (
	geo "github.com/kellydunn/golang-geo"

	"github.com/rovernav/gins/geodesy"
	"github.com/rovernav/gins/spatialmath"
)

// GPSStatus is the solution-quality flag reported with a GNSS reading. The
// numeric values follow the receiver convention of the data format.
type GPSStatus int

// The known GNSS solution states.
const (
	StatusOther           GPSStatus = -1
	StatusNoFix           GPSStatus = 0
	StatusSinglePoint     GPSStatus = 1
	StatusPseudoRangeDiff GPSStatus = 2
	StatusRTKFixed        GPSStatus = 4
	StatusRTKFloat        GPSStatus = 5
)

func (s GPSStatus) String() string {
	switch s {
	case StatusNoFix:
		return "no-fix"
	case StatusSinglePoint:
		return "single-point"
	case StatusPseudoRangeDiff:
		return "pseudo-range-diff"
	case StatusRTKFixed:
		return "rtk-fixed"
	case StatusRTKFloat:
		return "rtk-float"
	default:
		return "other"
	}
}

// GNSS is one receiver reading. Location/Alt/Heading are as reported by the
// receiver; UTM, UTMValid, and Pose are filled in by PrepareGNSS.
type GNSS struct {
	UnixTime     float64
	Status       GPSStatus
	Location     *geo.Point // latitude/longitude in degrees
	Alt          float64    // meters
	Heading      float64    // dual-antenna heading, degrees
	HeadingValid bool

	UTM      geodesy.UTM
	UTMValid bool
	// Pose is the 6-DoF prior of the vehicle body in the local metric frame.
	// Its rotation is meaningful only when HeadingValid.
	Pose spatialmath.Pose
}

// NewGNSS assembles a raw reading. status is the receiver's integer flag;
// unknown values map to StatusOther.
func NewGNSS(unixTime float64, status int, loc *geo.Point, alt, heading float64, headingValid bool) *GNSS {
	st := GPSStatus(status)
	switch st {
	case StatusNoFix, StatusSinglePoint, StatusPseudoRangeDiff, StatusRTKFixed, StatusRTKFloat:
	default:
		st = StatusOther
	}
	return &GNSS{
		UnixTime:     unixTime,
		Status:       st,
		Location:     loc,
		Alt:          alt,
		Heading:      heading,
		HeadingValid: headingValid,
		Pose:         spatialmath.NewZeroPose(),
	}
}
