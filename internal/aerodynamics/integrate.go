package aerodynamics

import (
	"gonum.org/v1/gonum/integrate"
)

// simpson integrates samples f over the strictly increasing abscissae x.
// Two samples fall back to the trapezoidal rule; fewer integrate to zero.
func simpson(x, f []float64) float64 {
	switch {
	case len(x) >= 3:
		return integrate.Simpsons(x, f)
	case len(x) == 2:
		return integrate.Trapezoidal(x, f)
	default:
		return 0
	}
}

// gradient estimates dy/dx with central differences in the interior and
// one-sided differences at both ends
func gradient(x, y []float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if n < 2 {
		return out
	}
	out[0] = (y[1] - y[0]) / (x[1] - x[0])
	out[n-1] = (y[n-1] - y[n-2]) / (x[n-1] - x[n-2])
	for i := 1; i < n-1; i++ {
		out[i] = (y[i+1] - y[i-1]) / (x[i+1] - x[i-1])
	}
	return out
}

// runs splits the indices selected by mask into contiguous runs
func runs(mask []bool) [][]int {
	var out [][]int
	var cur []int
	for i, m := range mask {
		if m {
			cur = append(cur, i)
			continue
		}
		if len(cur) > 0 {
			out = append(out, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}
