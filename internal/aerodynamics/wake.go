package aerodynamics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Rake describes one row of equally spaced wake-rake probes. Sensor i
// (zero based) reads channel Prefix+(i+1) at spanwise position
// -Height/2 + i*Height/(Sensors-1) millimetres.
type Rake struct {
	Prefix  string  `yaml:"prefix" json:"prefix" validate:"required"`
	Sensors int     `yaml:"sensors" json:"sensors" validate:"min=2"`
	Height  float64 `yaml:"height_mm" json:"height_mm" validate:"gt=0"`
	// Exclude lists zero-based indices of defective sensors
	Exclude []int `yaml:"exclude" json:"exclude,omitempty"`
}

// RakeLayout pairs the static and total pressure rakes
type RakeLayout struct {
	Static Rake `yaml:"static" json:"static"`
	Total  Rake `yaml:"total" json:"total"`
}

// DefaultRakeLayout is the wake rake of the test rig: five static probes
// over 100 mm and 32 total probes over 93 mm whose first probe is defective
var DefaultRakeLayout = RakeLayout{
	Static: Rake{Prefix: "pstat_rake_", Sensors: 5, Height: 100},
	Total:  Rake{Prefix: "ptot_rake_", Sensors: 32, Height: 93, Exclude: []int{0}},
}

// positions returns the spanwise positions and channels of the usable sensors
func (r Rake) positions() ([]float64, []string) {
	skip := make(map[int]bool, len(r.Exclude))
	for _, i := range r.Exclude {
		skip[i] = true
	}
	var z []float64
	var ch []string
	step := r.Height / float64(r.Sensors-1)
	for i := 0; i < r.Sensors; i++ {
		if skip[i] {
			continue
		}
		z = append(z, -r.Height/2+float64(i)*step)
		ch = append(ch, fmt.Sprintf("%s%d", r.Prefix, i+1))
	}
	return z, ch
}

// WakeDrag integrates the wake-rake momentum deficit into the profile drag
// coefficient cd
type WakeDrag struct {
	Layout          RakeLayout
	ReferenceLength float64
}

// Apply adds cd. The static profile is interpolated linearly onto the total
// probe positions, each point contributes
// 2 sqrt(|cpt - cps|) (1 - sqrt(|cpt|)) and the profile is integrated over
// the span in millimetres, normalized by the chord.
func (w WakeDrag) Apply(f *timeseries.Frame) (*timeseries.Frame, error) {
	if err := refuseRepeat(f, StageWakeDrag); err != nil {
		return nil, err
	}
	if err := requireStage(f, StageWakeDrag, StagePressureCoefficients); err != nil {
		return nil, err
	}
	if w.ReferenceLength <= 0 {
		return nil, apperrors.NewConfigError("reference length must be positive", nil).
			WithContext("reference_length", w.ReferenceLength)
	}

	zStat, statCh, err := w.rake(w.Layout.Static)
	if err != nil {
		return nil, err
	}
	zTot, totCh, err := w.rake(w.Layout.Total)
	if err != nil {
		return nil, err
	}
	if len(zStat) < 2 || len(zTot) < 2 {
		return nil, apperrors.NewConfigError("each rake needs at least two usable sensors", nil)
	}

	cps, err := columns(f, statCh)
	if err != nil {
		return nil, err
	}
	cpt, err := columns(f, totCh)
	if err != nil {
		return nil, err
	}

	n := f.Len()
	cd := make([]float64, n)
	profile := make([]float64, len(zStat))
	dcd := make([]float64, len(zTot))
	var pl interp.PiecewiseLinear
	scale := 1 / (w.ReferenceLength * 1000)
	for i := 0; i < n; i++ {
		for k := range zStat {
			profile[k] = cps[k][i]
		}
		if err := pl.Fit(zStat, profile); err != nil {
			return nil, apperrors.NewConfigError("interpolate static rake profile", err)
		}
		for k, z := range zTot {
			t := cpt[k][i]
			dcd[k] = 2 * math.Sqrt(math.Abs(t-pl.Predict(z))) * (1 - math.Sqrt(math.Abs(t)))
		}
		cd[i] = simpson(zTot, dcd) * scale
	}

	out, err := f.WithColumns(timeseries.Column{Name: ColCd, Values: cd})
	if err != nil {
		return nil, apperrors.NewConfigError("add drag column", err)
	}
	return mark(out, StageWakeDrag)
}

func (w WakeDrag) rake(r Rake) ([]float64, []string, error) {
	if r.Sensors < 2 || r.Height <= 0 {
		return nil, nil, apperrors.NewConfigError("invalid rake layout", nil).
			WithContext("prefix", r.Prefix)
	}
	z, ch := r.positions()
	return z, ch, nil
}

func columns(f *timeseries.Frame, names []string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for i, name := range names {
		v, err := lookup(f, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
