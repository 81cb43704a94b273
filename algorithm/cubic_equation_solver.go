package algorithm

import (
	"math"
	"sort"
)

const (
	// coefficients smaller than this, relative to the largest one, are treated as zero
	coeffEpsilon = 1e-14
	rootEpsilon  = 1e-9
)

// SolveCubic returns the distinct real roots of a*x^3 + b*x^2 + c*x + d in
// ascending order. Vanishing leading coefficients reduce the degree.
func SolveCubic(a, b, c, d float64) []float64 {
	scale := math.Max(math.Abs(b), math.Max(math.Abs(c), math.Abs(d)))
	if math.Abs(a) <= coeffEpsilon*scale || a == 0 {
		return solveQuadratic(b, c, d)
	}

	// normalise and depress: x = y - B/3
	B, C, D := b/a, c/a, d/a
	p := C - B*B/3
	q := 2*B*B*B/27 - B*C/3 + D
	shift := -B / 3

	disc := q*q/4 + p*p*p/27
	discScale := q*q/4 + math.Abs(p*p*p/27)

	var roots []float64
	switch {
	case math.Abs(disc) <= 1e-12*discScale:
		if math.Abs(p) <= 1e-12*math.Max(1, math.Abs(C)) {
			roots = []float64{shift}
		} else {
			roots = []float64{3*q/p + shift, -3*q/(2*p) + shift}
		}
	case disc > 0:
		sq := math.Sqrt(disc)
		y := math.Cbrt(-q/2+sq) + math.Cbrt(-q/2-sq)
		roots = []float64{y + shift}
	default:
		m := 2 * math.Sqrt(-p/3)
		arg := 3 * q / (p * m)
		arg = math.Max(-1, math.Min(1, arg))
		phi := math.Acos(arg) / 3
		for k := 0; k < 3; k++ {
			roots = append(roots, m*math.Cos(phi-2*math.Pi*float64(k)/3)+shift)
		}
	}

	for i, r := range roots {
		roots[i] = polish(a, b, c, d, r)
	}
	return dedupe(roots)
}

func solveQuadratic(a, b, c float64) []float64 {
	scale := math.Max(math.Abs(b), math.Abs(c))
	if math.Abs(a) <= coeffEpsilon*scale || a == 0 {
		if b == 0 {
			return nil
		}
		return []float64{-c / b}
	}
	disc := b*b - 4*a*c
	switch {
	case disc < 0:
		return nil
	case disc == 0:
		return []float64{-b / (2 * a)}
	}
	sign := 1.0
	if b < 0 {
		sign = -1
	}
	q := -0.5 * (b + sign*math.Sqrt(disc))
	roots := []float64{q / a}
	if q != 0 {
		roots = append(roots, c/q)
	}
	return dedupe(roots)
}

// polish refines a root with a few Newton steps, keeping the original guess
// if the iteration diverges.
func polish(a, b, c, d, x float64) float64 {
	best, bestVal := x, math.Abs(((a*x+b)*x+c)*x+d)
	for i := 0; i < 4; i++ {
		f := ((a*x+b)*x+c)*x + d
		df := (3*a*x+2*b)*x + c
		if df == 0 {
			break
		}
		x -= f / df
		if v := math.Abs(((a*x+b)*x+c)*x + d); v < bestVal {
			best, bestVal = x, v
		}
	}
	return best
}

func dedupe(roots []float64) []float64 {
	sort.Float64s(roots)
	out := roots[:0]
	for _, r := range roots {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		if len(out) > 0 && math.Abs(r-out[len(out)-1]) <= rootEpsilon*math.Max(1, math.Abs(r)) {
			continue
		}
		out = append(out, r)
	}
	return out
}
