package algorithm

import (
	"context"
	"fmt"
	"math"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// bisectionResolution is the width in seconds at which rise and set times
// stop being refined.
const bisectionResolution = 1e-3

// FinderOptions tune the adaptive step of the visibility finder.
type FinderOptions struct {
	ErrorTolerance float64
	ToleranceRatio float64
	MaxIterations  int
	InitialStep    float64
	MinStep        float64
	MaxStep        float64
	// FixedFrame is set when the state source returns Earth-fixed vectors.
	FixedFrame bool
}

type FinderOption func(*FinderOptions)

func DefaultFinderOptions() FinderOptions {
	return FinderOptions{
		ErrorTolerance: 1e-4,
		ToleranceRatio: 0.1,
		MaxIterations:  1000,
		InitialStep:    5,
		MinStep:        1,
		MaxStep:        300,
	}
}

func WithErrorTolerance(tol float64) FinderOption {
	return func(o *FinderOptions) {
		if tol > 0 {
			o.ErrorTolerance = tol
		}
	}
}

func WithToleranceRatio(ratio float64) FinderOption {
	return func(o *FinderOptions) {
		if ratio > 0 {
			o.ToleranceRatio = ratio
		}
	}
}

func WithMaxIterations(n int) FinderOption {
	return func(o *FinderOptions) {
		if n > 0 {
			o.MaxIterations = n
		}
	}
}

// WithSteps sets the initial step and the bounds of the adaptive step, in seconds.
func WithSteps(initial, min, max float64) FinderOption {
	return func(o *FinderOptions) {
		if initial > 0 {
			o.InitialStep = initial
		}
		if min > 0 {
			o.MinStep = min
		}
		if max > 0 {
			o.MaxStep = max
		}
	}
}

func WithFixedFrame(fixed bool) FinderOption {
	return func(o *FinderOptions) {
		o.FixedFrame = fixed
	}
}

// VisibilityFinder finds the periods in which a satellite is above the
// horizon of a ground site.
type VisibilityFinder struct {
	Source   StateSource
	Site     [2]float64
	Interval utils.TimeInterval
	Options  FinderOptions

	siteECEF r3.Vec
	steps    int
}

func NewVisibilityFinder(source StateSource, site [2]float64, interval utils.TimeInterval, opts ...FinderOption) *VisibilityFinder {
	o := DefaultFinderOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.MinStep > o.MaxStep {
		o.MinStep, o.MaxStep = o.MaxStep, o.MinStep
	}
	return &VisibilityFinder{
		Source:   source,
		Site:     site,
		Interval: interval,
		Options:  o,
		siteECEF: LLAToECEF(site[0], site[1], 0),
	}
}

// Steps is the number of Hermite steps taken so far.
func (f *VisibilityFinder) Steps() int {
	return f.steps
}

func (f *VisibilityFinder) siteState(t float64) (r3.Vec, r3.Vec) {
	if f.Options.FixedFrame {
		return f.siteECEF, r3.Vec{}
	}
	return LLAToECI(f.Site[0], f.Site[1], 0, t)
}

// Visibility evaluates the visibility function and its first derivative at t.
// The function is the cosine of the zenith angle of the satellite as seen
// from the site, so it is positive while the satellite is above the horizon.
func (f *VisibilityFinder) Visibility(ctx context.Context, t float64) (v, dv float64, err error) {
	satPos, satVel, err := f.Source.Interpolate(ctx, t)
	if err != nil {
		return 0, 0, err
	}
	sitePos, siteVel := f.siteState(t)

	d := r3.Sub(satPos, sitePos)
	dd := r3.Sub(satVel, siteVel)
	dNorm := r3.Norm(d)
	siteNorm := r3.Norm(sitePos)
	if dNorm == 0 || siteNorm == 0 {
		return 0, 0, apperr.Wrap(fmt.Errorf("satellite coincides with site at %.3f", t), apperr.ErrVisibilityFinder, "")
	}

	s := r3.Scale(1/siteNorm, sitePos)
	sDot := r3.Scale(1/siteNorm, r3.Sub(siteVel, r3.Scale(r3.Dot(s, siteVel), s)))

	ds := r3.Dot(d, s)
	v = ds / dNorm
	dv = (r3.Dot(dd, s)+r3.Dot(d, sDot))/dNorm - r3.Dot(d, dd)*ds/(dNorm*dNorm*dNorm)
	return v, dv, nil
}

// fourthDerivative estimates the maximum of the fourth derivative of a
// function over [0, h] from its values and first derivatives at the start,
// middle and end of the interval.
func fourthDerivative(h, vs, vm, ve, ds, dm, de float64) float64 {
	h4 := h * h * h * h
	h5 := h4 * h
	a5 := 24/h5*(vs-ve) + 4/h4*(ds+4*dm+de)
	a4 := 4/h4*(vs+4*vm+ve) - 4/h4*(3*h*ds+10*h*dm+2*h*de) - 24/h5*(3*h*vs-2*h*ve)
	if a5 > 0 {
		return 120*a5*h + 24*a4
	}
	return 24 * a4
}

// BoundTimeStep returns the step that keeps the Hermite interpolation error
// over interval near errTol, clamped to [MinStep, MaxStep].
func (f *VisibilityFinder) BoundTimeStep(ctx context.Context, interval utils.TimeInterval, errTol float64) (float64, error) {
	h := interval.Duration()
	if h <= 0 {
		return f.Options.MinStep, nil
	}
	mid := interval.Start + h/2
	vs, ds, err := f.Visibility(ctx, interval.Start)
	if err != nil {
		return 0, err
	}
	vm, dm, err := f.Visibility(ctx, mid)
	if err != nil {
		return 0, err
	}
	ve, de, err := f.Visibility(ctx, interval.End)
	if err != nil {
		return 0, err
	}
	// derivatives are taken in interval-local seconds, which leaves them unchanged
	f4 := math.Abs(fourthDerivative(h, vs, vm, ve, ds, dm, de))
	return f.clampStep(math.Pow(384*errTol/f4, 0.25)), nil
}

func (f *VisibilityFinder) clampStep(h float64) float64 {
	switch {
	case math.IsNaN(h):
		return f.Options.MinStep
	case h < f.Options.MinStep:
		return f.Options.MinStep
	case h > f.Options.MaxStep:
		return f.Options.MaxStep
	}
	return h
}

// adaptStep iterates BoundTimeStep from h until two successive steps agree
// within ToleranceRatio.
func (f *VisibilityFinder) adaptStep(ctx context.Context, start, h float64) (float64, error) {
	end := f.Interval.End
	if end-start <= f.Options.MinStep {
		return f.Options.MinStep, nil
	}
	h = f.clampStep(h)
	for i := 0; i < f.Options.MaxIterations; i++ {
		next, err := f.BoundTimeStep(ctx, utils.TimeInterval{Start: start, End: math.Min(start+h, end)}, f.Options.ErrorTolerance)
		if err != nil {
			return 0, err
		}
		converged := math.Abs(next-h)/h <= f.Options.ToleranceRatio
		h = next
		if converged {
			break
		}
	}
	return h, nil
}

// hermiteRoots returns the roots in (0, h) of the cubic Hermite polynomial
// matching v0, d0 at 0 and v1, d1 at h.
func hermiteRoots(h, v0, d0, v1, d1 float64) []float64 {
	c3 := 2*(v0-v1)/(h*h*h) + (d0+d1)/(h*h)
	c2 := 3*(v1-v0)/(h*h) - (2*d0+d1)/h
	var out []float64
	for _, r := range SolveCubic(c3, c2, d0, v0) {
		if r > 0 && r < h {
			out = append(out, r)
		}
	}
	return out
}

type sample struct {
	t       float64
	visible bool
}

// FindVisibility walks the interval with adaptive steps and returns the
// periods in which the satellite is visible from the site.
func (f *VisibilityFinder) FindVisibility(ctx context.Context) ([]utils.TimeInterval, error) {
	start, end := f.Interval.Start, f.Interval.End
	if start > end {
		return nil, apperr.Wrap(fmt.Errorf("interval (%f, %f)", start, end), apperr.ErrBadPOI, "")
	}

	out := []utils.TimeInterval{}
	t := start
	v0, d0, err := f.Visibility(ctx, t)
	if err != nil {
		return nil, err
	}
	visible := v0 > 0
	rise := start
	h := f.Options.InitialStep

	for t < end {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if h, err = f.adaptStep(ctx, t, h); err != nil {
			return nil, err
		}
		step := math.Min(h, end-t)
		t1 := t + step
		v1, d1, err := f.Visibility(ctx, t1)
		if err != nil {
			return nil, err
		}
		f.steps++

		// The Hermite roots split the step into pieces. The true function is
		// sampled once per piece and every sign change is refined by bisection.
		roots := hermiteRoots(step, v0, d0, v1, d1)
		samples := []sample{{t, v0 > 0}}
		for i := 0; i < len(roots)-1; i++ {
			mid := t + (roots[i]+roots[i+1])/2
			vm, _, err := f.Visibility(ctx, mid)
			if err != nil {
				return nil, err
			}
			samples = append(samples, sample{mid, vm > 0})
		}
		samples = append(samples, sample{t1, v1 > 0})

		for i := 1; i < len(samples); i++ {
			a, b := samples[i-1], samples[i]
			if a.visible == b.visible {
				continue
			}
			crossing, err := f.bisect(ctx, a, b)
			if err != nil {
				return nil, err
			}
			switch {
			case b.visible && !visible:
				rise = crossing
				visible = true
			case !b.visible && visible:
				if crossing > rise {
					out = append(out, utils.TimeInterval{Start: rise, End: crossing})
				}
				visible = false
			default:
				return nil, apperr.Wrap(fmt.Errorf("sign change at %.3f does not match state visible=%t", crossing, visible),
					apperr.ErrVisibilityFinder, "")
			}
		}

		t, v0, d0 = t1, v1, d1
	}

	if visible {
		out = append(out, utils.TimeInterval{Start: rise, End: end})
	}
	return out, nil
}

// bisect finds the time between a and b at which the visibility function
// changes sign.
func (f *VisibilityFinder) bisect(ctx context.Context, a, b sample) (float64, error) {
	for b.t-a.t > bisectionResolution {
		mid := (a.t + b.t) / 2
		v, _, err := f.Visibility(ctx, mid)
		if err != nil {
			return 0, err
		}
		if (v > 0) == a.visible {
			a.t = mid
		} else {
			b.t = mid
		}
	}
	return (a.t + b.t) / 2, nil
}
