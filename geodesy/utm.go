// Package geodesy converts between WGS-84 geodetic coordinates and the
// Universal Transverse Mercator projection.
package geodesy

import (
	"math"

	"github.com/pkg/errors"
)

// WGS-84 ellipsoid.
const (
	equatorialRadius = 6378137.0
	eccSquared       = 0.00669438
	scaleFactor      = 0.9996

	falseEasting       = 500000.0
	falseNorthingSouth = 10000000.0

	// maxLatitude bounds the projection; UTM is undefined toward the poles.
	maxLatitude = 84.0
)

// derived series constants
var (
	eccP2 = eccSquared / (1 - eccSquared)

	e1 = (1 - math.Sqrt(1-eccSquared)) / (1 + math.Sqrt(1-eccSquared))

	m1 = 1 - eccSquared/4 - 3*eccSquared*eccSquared/64 - 5*eccSquared*eccSquared*eccSquared/256
	m2 = 3*eccSquared/8 + 3*eccSquared*eccSquared/32 + 45*eccSquared*eccSquared*eccSquared/1024
	m3 = 15*eccSquared*eccSquared/256 + 45*eccSquared*eccSquared*eccSquared/1024
	m4 = 35 * eccSquared * eccSquared * eccSquared / 3072

	p2 = 3*e1/2 - 27*e1*e1*e1/32
	p3 = 21*e1*e1/16 - 55*e1*e1*e1*e1/32
	p4 = 151 * e1 * e1 * e1 / 96
	p5 = 1097 * e1 * e1 * e1 * e1 / 512
)

// UTM is a projected coordinate: zone number, easting/northing in meters, and
// the hemisphere flag (North true for latitudes >= 0).
type UTM struct {
	Zone     int
	Easting  float64
	Northing float64
	North    bool
}

// LatLonToUTM projects a WGS-84 latitude/longitude pair (degrees) to UTM.
func LatLonToUTM(lat, lon float64) (UTM, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return UTM{}, errors.Errorf("non-finite coordinate (%v, %v)", lat, lon)
	}
	if math.Abs(lat) >= maxLatitude {
		return UTM{}, errors.Errorf("latitude %.4f out of UTM range (-84, 84)", lat)
	}
	lon = normalizeLon(lon)

	zone := zoneNumber(lat, lon)
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	centralRad := float64(zoneCentralMeridian(zone)) * math.Pi / 180

	sinLat, cosLat := math.Sincos(latRad)
	tanLat := sinLat / cosLat

	n := equatorialRadius / math.Sqrt(1-eccSquared*sinLat*sinLat)
	tt := tanLat * tanLat
	c := eccP2 * cosLat * cosLat
	a := cosLat * (lonRad - centralRad)
	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	m := equatorialRadius * (m1*latRad - m2*math.Sin(2*latRad) + m3*math.Sin(4*latRad) - m4*math.Sin(6*latRad))

	easting := scaleFactor*n*(a+
		a3/6*(1-tt+c)+
		a5/120*(5-18*tt+tt*tt+72*c-58*eccP2)) + falseEasting

	northing := scaleFactor * (m + n*tanLat*(a2/2+
		a4/24*(5-tt+9*c+4*c*c)+
		a6/720*(61-58*tt+tt*tt+600*c-330*eccP2)))

	north := lat >= 0
	if !north {
		northing += falseNorthingSouth
	}

	return UTM{Zone: zone, Easting: easting, Northing: northing, North: north}, nil
}

// UTMToLatLon inverts the projection, returning latitude/longitude in degrees.
func UTMToLatLon(u UTM) (float64, float64, error) {
	if u.Zone < 1 || u.Zone > 60 {
		return 0, 0, errors.Errorf("zone %d out of range [1, 60]", u.Zone)
	}
	if math.IsNaN(u.Easting) || math.IsNaN(u.Northing) {
		return 0, 0, errors.New("non-finite UTM coordinate")
	}

	x := u.Easting - falseEasting
	y := u.Northing
	if !u.North {
		y -= falseNorthingSouth
	}

	m := y / scaleFactor
	mu := m / (equatorialRadius * m1)

	// footprint latitude
	fpLat := mu + p2*math.Sin(2*mu) + p3*math.Sin(4*mu) + p4*math.Sin(6*mu) + p5*math.Sin(8*mu)

	sinFp, cosFp := math.Sincos(fpLat)
	tanFp := sinFp / cosFp

	c1 := eccP2 * cosFp * cosFp
	t1 := tanFp * tanFp
	sin2 := sinFp * sinFp
	n1 := equatorialRadius / math.Sqrt(1-eccSquared*sin2)
	r1 := equatorialRadius * (1 - eccSquared) / math.Pow(1-eccSquared*sin2, 1.5)

	d := x / (n1 * scaleFactor)
	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	lat := fpLat - (n1*tanFp/r1)*(d2/2-
		d4/24*(5+3*t1+10*c1-4*c1*c1-9*eccP2)+
		d6/720*(61+90*t1+298*c1+45*t1*t1-252*eccP2-3*c1*c1))

	lon := (d - d3/6*(1+2*t1+c1) +
		d5/120*(5-2*c1+28*t1-3*c1*c1+8*eccP2+24*t1*t1)) / cosFp

	latDeg := lat * 180 / math.Pi
	lonDeg := lon*180/math.Pi + float64(zoneCentralMeridian(u.Zone))
	return latDeg, lonDeg, nil
}

// zoneNumber returns the UTM zone for a coordinate, including the Norway and
// Svalbard exceptions.
func zoneNumber(lat, lon float64) int {
	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		return 32
	}
	if lat >= 72 && lat < 84 {
		switch {
		case lon >= 0 && lon < 9:
			return 31
		case lon >= 9 && lon < 21:
			return 33
		case lon >= 21 && lon < 33:
			return 35
		case lon >= 33 && lon < 42:
			return 37
		}
	}
	return int((lon+180)/6)%60 + 1
}

func zoneCentralMeridian(zone int) int {
	return (zone-1)*6 - 180 + 3
}

func normalizeLon(lon float64) float64 {
	for lon < -180 {
		lon += 360
	}
	for lon >= 180 {
		lon -= 360
	}
	return lon
}
