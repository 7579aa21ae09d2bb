package geodesy

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestLatLonToUTMKnownPoints(t *testing.T) {
	t.Run("null island", func(t *testing.T) {
		u, err := LatLonToUTM(0, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, u.Zone, test.ShouldEqual, 31)
		test.That(t, u.North, test.ShouldBeTrue)
		test.That(t, math.Abs(u.Easting-166021.44), test.ShouldBeLessThan, 0.5)
		test.That(t, math.Abs(u.Northing), test.ShouldBeLessThan, 0.5)
	})

	t.Run("wuppertal", func(t *testing.T) {
		u, err := LatLonToUTM(51.2, 7.5)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, u.Zone, test.ShouldEqual, 32)
		test.That(t, u.North, test.ShouldBeTrue)
		test.That(t, math.Abs(u.Easting-395201.31), test.ShouldBeLessThan, 0.5)
		test.That(t, math.Abs(u.Northing-5673135.24), test.ShouldBeLessThan, 0.5)
	})

	t.Run("southern hemisphere", func(t *testing.T) {
		u, err := LatLonToUTM(-33.8688, 151.2093)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, u.Zone, test.ShouldEqual, 56)
		test.That(t, u.North, test.ShouldBeFalse)
		// false northing keeps southern coordinates positive
		test.That(t, u.Northing, test.ShouldBeGreaterThan, 0)
		test.That(t, u.Northing, test.ShouldBeLessThan, falseNorthingSouth)
	})
}

func TestUTMToLatLonKnownPoint(t *testing.T) {
	lat, lon, err := UTMToLatLon(UTM{Zone: 32, Easting: 340000, Northing: 5710000, North: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Abs(lat-51.518520), test.ShouldBeLessThan, 1e-5)
	test.That(t, math.Abs(lon-6.693872), test.ShouldBeLessThan, 1e-5)
}

func TestRoundTrip(t *testing.T) {
	for lat := -79.5; lat < 80; lat += 7.3 {
		for lon := -179.5; lon < 180; lon += 11.7 {
			u, err := LatLonToUTM(lat, lon)
			test.That(t, err, test.ShouldBeNil)
			gotLat, gotLon, err := UTMToLatLon(u)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, math.Abs(gotLat-lat), test.ShouldBeLessThan, 1e-7)
			test.That(t, math.Abs(gotLon-lon), test.ShouldBeLessThan, 1e-7)
		}
	}
}

func TestRejectsBadInput(t *testing.T) {
	for _, tc := range []struct {
		name     string
		lat, lon float64
	}{
		{"north polar", 85, 0},
		{"south polar", -84, 10},
		{"nan lat", math.NaN(), 0},
		{"inf lon", 45, math.Inf(1)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LatLonToUTM(tc.lat, tc.lon)
			test.That(t, err, test.ShouldNotBeNil)
		})
	}

	_, _, err := UTMToLatLon(UTM{Zone: 0, Easting: 500000, Northing: 0, North: true})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestZoneExceptions(t *testing.T) {
	// southwest Norway sits in the widened zone 32
	u, err := LatLonToUTM(60.0, 5.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, u.Zone, test.ShouldEqual, 32)

	// Svalbard bands
	u, err = LatLonToUTM(78.0, 20.0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, u.Zone, test.ShouldEqual, 33)
}
