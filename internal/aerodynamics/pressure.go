package aerodynamics

import (
	"math"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// DefaultPressurePatterns select the pressure channels by name
var DefaultPressurePatterns = []string{"stat", "ptot"}

// PressureCoefficients normalizes pressure channels by the probe's dynamic
// pressure
type PressureCoefficients struct {
	Probe    Probe
	Patterns []string
}

// Channels returns the frame columns the transform rewrites
func (p PressureCoefficients) Channels(f *timeseries.Frame) []string {
	patterns := p.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPressurePatterns
	}
	return f.Match(patterns...)
}

// Apply replaces every matched pressure channel, the probe channels
// included, by cp = (p - pstat) / (ptot - pstat), all evaluated against the
// untransformed probe readings. Where the dynamic pressure vanishes, or the
// quotient is infinite, cp is set to 0. Apply returns the number of values
// so replaced.
func (p PressureCoefficients) Apply(f *timeseries.Frame) (*timeseries.Frame, int, error) {
	if err := refuseRepeat(f, StagePressureCoefficients); err != nil {
		return nil, 0, err
	}
	ptot, err := lookup(f, p.Probe.Total)
	if err != nil {
		return nil, 0, err
	}
	pstat, err := lookup(f, p.Probe.Static)
	if err != nil {
		return nil, 0, err
	}

	channels := p.Channels(f)
	if len(channels) == 0 {
		return nil, 0, apperrors.NewConfigError("no channel matches the pressure patterns", nil).
			WithContext("patterns", p.Patterns)
	}

	n := f.Len()
	q := make([]float64, n)
	for i := range q {
		q[i] = ptot[i] - pstat[i]
	}

	replaced := 0
	cols := make([]timeseries.Column, len(channels))
	for c, name := range channels {
		raw, _ := f.Column(name)
		cp := make([]float64, n)
		for i, v := range raw {
			if q[i] == 0 {
				replaced++
				continue
			}
			x := (v - pstat[i]) / q[i]
			if math.IsInf(x, 0) {
				replaced++
				continue
			}
			cp[i] = x
		}
		cols[c] = timeseries.Column{Name: name, Values: cp}
	}

	out, err := f.WithReplaced(cols...)
	if err != nil {
		return nil, 0, apperrors.NewConfigError("replace pressure columns", err)
	}
	out, err = mark(out, StagePressureCoefficients)
	if err != nil {
		return nil, 0, err
	}
	return out, replaced, nil
}
