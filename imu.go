// Package gins defines the sensor data model for a loosely-coupled
// GNSS/INS/wheel-odometry navigation filter, plus the GNSS preparation step
// that turns geodetic readings into local metric poses.
package gins

import "github.com/golang/geo/r3"

// IMU is a single inertial reading: angular rate in rad/s and specific force
// in m/s^2, both in the body frame. Timestamps are monotonic seconds.
type IMU struct {
	Timestamp float64
	Gyro      r3.Vector
	Acc       r3.Vector
}
