package algorithm

import (
	"fmt"
	"math"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReducePOI narrows poi down to the sub-intervals in which a satellite
// orbiting no higher than qMag can rise above the horizon of site.
//
// site is a geodetic (lat, lon) pair in degrees. satPos and satVel are the
// inertial state of the satellite at poi.Start and define the orbit plane.
// The site sees part of that plane while the angle between the site and the
// orbit normal lies in [gamma, pi-gamma].
func ReducePOI(site [2]float64, satPos, satVel r3.Vec, qMag float64, poi utils.TimeInterval) ([]utils.TimeInterval, error) {
	if poi.Start > poi.End {
		return nil, apperr.Wrap(fmt.Errorf("poi (%f, %f)", poi.Start, poi.End), apperr.ErrBadPOI, "")
	}

	sitePos, _ := LLAToECI(site[0], site[1], 0, poi.Start)
	rSite, phi, lambda := CartToSpherical(sitePos)
	if rSite >= qMag {
		return nil, viewConeError("site radius %.1f is not below the orbit radius %.1f", rSite, qMag)
	}

	normal := r3.Cross(satPos, satVel)
	if r3.Norm(normal) == 0 {
		return nil, viewConeError("degenerate orbit state")
	}
	p := r3.Unit(normal)

	gamma := ThetaNaught + math.Asin(rSite*math.Sin(math.Pi/2+ThetaNaught)/qMag)
	gamma2 := math.Pi - gamma

	horizontal := math.Hypot(p.X, p.Y) * math.Cos(phi)
	if horizontal == 0 {
		return nil, viewConeError("site never changes its angle with the orbit normal")
	}
	arg1 := (math.Cos(gamma) - p.Z*math.Sin(phi)) / horizontal
	arg2 := (math.Cos(gamma2) - p.Z*math.Sin(phi)) / horizontal
	if math.Abs(arg1) > 1 || math.Abs(arg2) > 1 {
		return nil, viewConeError("site does not cross the viewing cone (arg1=%.4f, arg2=%.4f)", arg1, arg2)
	}

	beta := math.Atan2(p.X, p.Y)
	phase := math.Mod(lambda+beta, 2*math.Pi)
	if phase < 0 {
		phase += 2 * math.Pi
	}

	asin1, asin2 := math.Asin(arg1), math.Asin(arg2)
	at := func(angle float64, m int) float64 {
		return poi.Start + (angle+2*math.Pi*float64(m)-phase)/AngularVelocityEarth
	}

	// phase is in [0, 2π), so every window of day m = -1 ends before poi.Start.
	var windows []utils.TimeInterval
	for m := 0; ; m++ {
		t1 := at(asin1, m)
		t2 := at(math.Pi-asin1, m)
		t3 := at(asin2, m)
		t4 := at(math.Pi-asin2, m)
		if t3 > poi.End {
			break
		}
		if !(t3 <= t1 && t1 <= t2 && t2 <= t4) {
			return nil, viewConeError("inconsistent window bounds %.3f %.3f %.3f %.3f", t3, t1, t2, t4)
		}
		windows = append(windows,
			utils.TimeInterval{Start: t3, End: t1},
			utils.TimeInterval{Start: t2, End: t4},
		)
	}

	var out []utils.TimeInterval
	for _, w := range utils.TrimPOISegments(windows, poi) {
		if w.End > w.Start {
			out = append(out, w)
		}
	}
	return utils.FuseNeighborIntervals(out), nil
}

func viewConeError(format string, args ...any) error {
	return apperr.Wrap(fmt.Errorf(format, args...), apperr.ErrViewCone, "")
}
