package gins

import "math"

// Odom is a wheel-encoder reading: pulse counts accumulated by the left and
// right wheels over the interval since the previous reading.
type Odom struct {
	Timestamp  float64
	LeftPulse  float64
	RightPulse float64
}

// WheelGeometry converts pulse counts to a linear body speed.
type WheelGeometry struct {
	Radius       float64 // meters
	PulsesPerRev float64
}

// Speed returns the scalar longitudinal speed implied by an odometry reading
// spanning dt seconds. dt must be positive.
func (wg WheelGeometry) Speed(o Odom, dt float64) float64 {
	circumference := 2 * math.Pi * wg.Radius
	left := o.LeftPulse * circumference / wg.PulsesPerRev / dt
	right := o.RightPulse * circumference / wg.PulsesPerRev / dt
	return 0.5 * (left + right)
}
