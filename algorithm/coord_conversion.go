package algorithm

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }

// LLAToECEF converts geodetic latitude and longitude (degrees) and altitude
// (meters) to Earth-centred Earth-fixed coordinates.
func LLAToECEF(lat, lon, alt float64) r3.Vec {
	phi, lambda := deg2rad(lat), deg2rad(lon)
	e2 := EllipsoidE * EllipsoidE
	sinPhi := math.Sin(phi)
	n := EllipsoidA / math.Sqrt(1-e2*sinPhi*sinPhi)
	return r3.Vec{
		X: (n + alt) * math.Cos(phi) * math.Cos(lambda),
		Y: (n + alt) * math.Cos(phi) * math.Sin(lambda),
		Z: ((1-e2)*n + alt) * sinPhi,
	}
}

// GeodToGeocLat converts a geodetic latitude to a geocentric one, both in degrees.
func GeodToGeocLat(lat float64) float64 {
	if math.Abs(lat) >= 90 {
		return math.Copysign(90, lat)
	}
	k := (1 - EllipsoidF) * (1 - EllipsoidF)
	return rad2deg(math.Atan(k * math.Tan(deg2rad(lat))))
}

// GMST returns the Greenwich mean sidereal angle in degrees, in [0, 360),
// at POSIX time t.
func GMST(t float64) float64 {
	days := (t - J2000) / 86400
	return normalizeDegrees(gmstAtJ2000 + gmstDegPerDay*days)
}

// GeodToECIGeocLon returns the inertial longitude in degrees of a site at
// Earth-fixed longitude lon at POSIX time t.
func GeodToECIGeocLon(lon, t float64) float64 {
	return normalizeDegrees(GMST(t) + lon)
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func rotateZ(v r3.Vec, angle float64) r3.Vec {
	c, s := math.Cos(angle), math.Sin(angle)
	return r3.Vec{
		X: c*v.X - s*v.Y,
		Y: s*v.X + c*v.Y,
		Z: v.Z,
	}
}

// earthRate is omega x r for the Earth's rotation vector.
func earthRate(r r3.Vec) r3.Vec {
	return r3.Vec{X: -AngularVelocityEarth * r.Y, Y: AngularVelocityEarth * r.X}
}

// ECEFToECI rotates an Earth-fixed state into the inertial frame at time t.
func ECEFToECI(pos, vel r3.Vec, t float64) (r3.Vec, r3.Vec) {
	theta := deg2rad(GMST(t))
	p := rotateZ(pos, theta)
	v := r3.Add(rotateZ(vel, theta), earthRate(p))
	return p, v
}

// ECIToECEF is the inverse of ECEFToECI.
func ECIToECEF(pos, vel r3.Vec, t float64) (r3.Vec, r3.Vec) {
	theta := deg2rad(GMST(t))
	p := rotateZ(pos, -theta)
	v := rotateZ(r3.Sub(vel, earthRate(pos)), -theta)
	return p, v
}

// LLAToECI returns the inertial position and velocity of a point fixed to
// the Earth's surface.
func LLAToECI(lat, lon, alt, t float64) (r3.Vec, r3.Vec) {
	return ECEFToECI(LLAToECEF(lat, lon, alt), r3.Vec{}, t)
}

// CartToSpherical returns the radius, latitude and longitude (radians) of v.
func CartToSpherical(v r3.Vec) (r, lat, lon float64) {
	r = r3.Norm(v)
	if r == 0 {
		return 0, 0, 0
	}
	return r, math.Asin(v.Z / r), math.Atan2(v.Y, v.X)
}
