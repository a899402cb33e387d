package aerodynamics

import (
	"fmt"
	"math"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Model-to-wall distances of the test section in metres
const (
	DefaultWallDistanceLower = 0.7
	DefaultWallDistanceUpper = 1.582
)

// ReferencePoint is one sample of the reference pressure distribution
type ReferencePoint struct {
	X, Y, Cp float64
}

// WallCorrection holds the tunnel-wall correction coefficients: lambda for
// streamline curvature, sigma for solid blockage and xi for the model's
// effect on the static reference pressure. The zero value corrects nothing.
type WallCorrection struct {
	Lambda float64 `json:"lambda"`
	Sigma  float64 `json:"sigma"`
	Xi     float64 `json:"xi"`
}

// ComputeWallCorrection derives the coefficients from the reference
// distribution of a symmetric airfoil, ordered as digitized from the upper
// trailing edge around the leading edge, and the distances of the model to
// the two walls. Only the upper side up to the leading edge is used.
func ComputeWallCorrection(table []ReferencePoint, chord, d1, d2 float64) (WallCorrection, error) {
	if chord <= 0 || d1 <= 0 || d2 <= 0 {
		return WallCorrection{}, apperrors.NewConfigError("chord and wall distances must be positive", nil).
			WithContext("chord", chord).
			WithContext("d1", d1).
			WithContext("d2", d2)
	}
	if len(table) < 2 {
		return WallCorrection{}, apperrors.NewConfigError("reference pressure table has fewer than two points", nil)
	}

	le := 0
	for i, p := range table {
		if p.X < table[le].X {
			le = i
		}
	}
	upper := table[:le+1]
	n := len(upper)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range upper {
		p := upper[n-1-i]
		x[i], y[i] = p.X, p.Y
		if i > 0 && !(x[i] > x[i-1]) {
			return WallCorrection{}, apperrors.NewConfigError(
				fmt.Sprintf("reference table x not strictly decreasing towards the leading edge at row %d", n-1-i), nil)
		}
	}

	slope := gradient(x, y)
	integrand := make([]float64, n)
	for i := range x {
		cp := upper[n-1-i].Cp
		integrand[i] = 16 / math.Pi * y[i] * math.Sqrt(1-cp) * math.Sqrt(1+slope[i]*slope[i])
	}

	c2 := chord * chord
	inv := 1/(2*d1) + 1/(2*d2)
	return WallCorrection{
		Lambda: simpson(x, integrand),
		Sigma:  math.Pi * math.Pi / 48 * c2 * 0.5 * inv * inv,
		Xi:     -0.00335 * c2,
	}, nil
}

// LiftFactor scales cl and the surface cp
func (w WallCorrection) LiftFactor() float64 {
	return 1 - 2*w.Lambda*(w.Sigma+w.Xi) - w.Sigma
}

// MomentFactor scales cm and cd
func (w WallCorrection) MomentFactor() float64 {
	return 1 - 2*w.Lambda*(w.Sigma+w.Xi)
}

// AlphaFactor scales the geometric angle of attack
func (w WallCorrection) AlphaFactor() float64 {
	return 1 + w.Sigma
}

// CorrectAngleOfAttack scales alpha by (1 + sigma). It must run before the
// surface loads are integrated.
func (w WallCorrection) CorrectAngleOfAttack(f *timeseries.Frame) (*timeseries.Frame, error) {
	if err := refuseRepeat(f, StageAlphaCorrection); err != nil {
		return nil, err
	}
	if f.HasStage(StageSurfaceLoads) {
		return nil, apperrors.NewConfigError("angle of attack must be corrected before surface integration", nil).
			WithContext("stage", StageAlphaCorrection)
	}
	alpha, err := lookup(f, ColAlpha)
	if err != nil {
		return nil, err
	}
	out, err := f.WithReplaced(timeseries.Column{Name: ColAlpha, Values: scaled(alpha, w.AlphaFactor())})
	if err != nil {
		return nil, apperrors.NewConfigError("replace alpha", err)
	}
	return mark(out, StageAlphaCorrection)
}

// Apply corrects cl, cm and cd and then the surface cp columns. The loads
// are scaled from the values integrated out of uncorrected cp; the stage
// marker keeps a second application out.
func (w WallCorrection) Apply(f *timeseries.Frame, surfaceChannels []string) (*timeseries.Frame, error) {
	if err := refuseRepeat(f, StageWallCorrection); err != nil {
		return nil, err
	}
	if err := requireStage(f, StageWallCorrection, StageSurfaceLoads); err != nil {
		return nil, err
	}

	lift, moment := w.LiftFactor(), w.MomentFactor()
	var cols []timeseries.Column
	for _, c := range []struct {
		name   string
		factor float64
	}{
		{ColCl, lift},
		{ColCm, moment},
		{ColCd, moment},
	} {
		v, ok := f.Column(c.name)
		if !ok {
			if c.name == ColCd {
				continue
			}
			return nil, apperrors.NewDataQualityError("load column missing", ErrChannelMismatch).
				WithContext("channel", c.name)
		}
		cols = append(cols, timeseries.Column{Name: c.name, Values: scaled(v, c.factor)})
	}
	for _, ch := range surfaceChannels {
		v, err := lookup(f, ch)
		if err != nil {
			return nil, err
		}
		cols = append(cols, timeseries.Column{Name: ch, Values: scaled(v, lift)})
	}

	out, err := f.WithReplaced(cols...)
	if err != nil {
		return nil, apperrors.NewConfigError("apply wall correction", err)
	}
	return mark(out, StageWallCorrection)
}

func scaled(v []float64, factor float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * factor
	}
	return out
}
