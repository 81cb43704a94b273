package algorithm

// WGS84 ellipsoid and Earth rotation constants.
const (
	EllipsoidA = 6378137.0
	EllipsoidE = 8.1819190842622e-2
	EllipsoidF = 0.00335281068118

	// AngularVelocityEarth is in radians per second.
	AngularVelocityEarth  = 7.2921159e-5
	SecondsPerSiderealDay = 86164.0

	// ThetaNaught is the minimum elevation angle in radians.
	ThetaNaught = 0.0

	// J2000 is 2000-01-01T12:00:00Z in POSIX seconds.
	J2000 = 946728000.0

	gmstAtJ2000   = 280.46061837
	gmstDegPerDay = 360.98564736629
)
