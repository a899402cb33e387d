package aerodynamics

import (
	"math"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/geometry"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// QuarterChord is the pitching-moment reference point
var QuarterChord = geometry.Point{X: 0.25, Y: 0}

// FlapHinges holds the optional flap pivots. A nil pivot disables the
// corresponding hinge moment.
type FlapHinges struct {
	LeadingEdge  *geometry.Point `yaml:"leading_edge" json:"leading_edge,omitempty"`
	TrailingEdge *geometry.Point `yaml:"trailing_edge" json:"trailing_edge,omitempty"`
}

// SurfaceLoads integrates the surface cp distribution into cl, cdp, cm and
// the configured hinge moments
type SurfaceLoads struct {
	Airfoil *geometry.Airfoil
	Hinges  FlapHinges
}

// Apply adds the virtual trailing-edge cp columns (the mean of the first and
// last real tap) and the load coefficients. Hinge moments are integrated
// over the taps on the flap side of each pivot about the pivot itself;
// taps on the flap side that are not adjacent along the contour are
// integrated as separate pieces.
func (s SurfaceLoads) Apply(f *timeseries.Frame) (*timeseries.Frame, error) {
	if err := refuseRepeat(f, StageSurfaceLoads); err != nil {
		return nil, err
	}
	if err := requireStage(f, StageSurfaceLoads, StagePressureCoefficients); err != nil {
		return nil, err
	}
	if s.Airfoil == nil {
		return nil, apperrors.NewGeometryError("no airfoil geometry", nil)
	}
	if err := s.Airfoil.Validate(); err != nil {
		return nil, apperrors.NewGeometryError("invalid airfoil geometry", err).
			WithContext("file", s.Airfoil.Source)
	}
	alpha, err := lookup(f, ColAlpha)
	if err != nil {
		return nil, err
	}

	taps := s.Airfoil.Taps
	nt := len(taps)
	measured := s.Airfoil.RealTaps()
	cpReal := make([][]float64, len(measured))
	for i, tp := range measured {
		v, err := f.Lookup(tp.Channel)
		if err != nil {
			return nil, apperrors.NewGeometryError("tap channel missing from frame", ErrChannelMismatch).
				WithContext("tap", tp.ID).
				WithContext("channel", tp.Channel)
		}
		cpReal[i] = v
	}

	n := f.Len()
	virtual := make([]float64, n)
	first, last := cpReal[0], cpReal[len(cpReal)-1]
	for i := range virtual {
		virtual[i] = (first[i] + last[i]) / 2
	}
	virtualBot := append([]float64(nil), virtual...)

	sPos := s.Airfoil.Arclength()
	// moment arm cross products do not depend on the row
	armQC := make([]float64, nt)
	for k, tp := range taps {
		armQC[k] = cross(tp.NX, tp.NY, QuarterChord.X-tp.X, QuarterChord.Y-tp.Y)
	}
	te := hingeTerms(taps, s.Hinges.TrailingEdge, func(x, hx float64) bool { return x >= hx })
	le := hingeTerms(taps, s.Hinges.LeadingEdge, func(x, hx float64) bool { return x <= hx })

	cl := make([]float64, n)
	cdp := make([]float64, n)
	cm := make([]float64, n)
	var cmrTE, cmrLE []float64
	if te != nil {
		cmrTE = make([]float64, n)
	}
	if le != nil {
		cmrLE = make([]float64, n)
	}

	cp := make([]float64, nt)
	fz := make([]float64, nt)
	fx := make([]float64, nt)
	fm := make([]float64, nt)
	for i := 0; i < n; i++ {
		cp[0], cp[nt-1] = virtual[i], virtualBot[i]
		for k := range measured {
			cp[k+1] = cpReal[k][i]
		}

		sin, cos := math.Sincos(alpha[i] * math.Pi / 180)
		for k, tp := range taps {
			nz := -tp.NX*sin + tp.NY*cos
			nx := tp.NX*cos + tp.NY*sin
			fz[k] = cp[k] * nz
			fx[k] = cp[k] * nx
			fm[k] = cp[k] * armQC[k]
		}
		cl[i] = -simpson(sPos, fz)
		cdp[i] = -simpson(sPos, fx)
		cm[i] = -simpson(sPos, fm)

		if te != nil {
			cmrTE[i] = te.integrate(sPos, cp)
		}
		if le != nil {
			cmrLE[i] = le.integrate(sPos, cp)
		}
	}

	cols := []timeseries.Column{
		{Name: taps[0].Channel, Values: virtual},
		{Name: taps[nt-1].Channel, Values: virtualBot},
		{Name: ColCl, Values: cl},
		{Name: ColCdp, Values: cdp},
		{Name: ColCm, Values: cm},
	}
	if le != nil {
		cols = append(cols, timeseries.Column{Name: ColCmrLE, Values: cmrLE})
	}
	if te != nil {
		cols = append(cols, timeseries.Column{Name: ColCmrTE, Values: cmrTE})
	}

	out, err := f.WithColumns(cols...)
	if err != nil {
		return nil, apperrors.NewConfigError("add surface load columns", err)
	}
	return mark(out, StageSurfaceLoads)
}

// hinge holds the flap-side taps of one pivot, split into contour pieces,
// with their moment arms about the pivot
type hinge struct {
	pieces [][]int
	arm    []float64
}

func hingeTerms(taps []geometry.Tap, pivot *geometry.Point, onFlap func(x, hx float64) bool) *hinge {
	if pivot == nil {
		return nil
	}
	mask := make([]bool, len(taps))
	arm := make([]float64, len(taps))
	for k, tp := range taps {
		mask[k] = onFlap(tp.X, pivot.X)
		arm[k] = cross(tp.NX, tp.NY, tp.X-pivot.X, tp.Y-pivot.Y)
	}
	return &hinge{pieces: runs(mask), arm: arm}
}

func (h *hinge) integrate(sPos, cp []float64) float64 {
	total := 0.0
	for _, piece := range h.pieces {
		xs := make([]float64, len(piece))
		fs := make([]float64, len(piece))
		for j, k := range piece {
			xs[j] = sPos[k]
			fs[j] = cp[k] * h.arm[k]
		}
		total += simpson(xs, fs)
	}
	return total
}

// cross is the z component of (ax, ay) x (bx, by)
func cross(ax, ay, bx, by float64) float64 {
	return ax*by - ay*bx
}
