package segments

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Tolerance is a validity window around a target operating point
type Tolerance struct {
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gt=0"`
	Re    float64 `yaml:"re" json:"re" validate:"gt=0"`
}

// Default validity windows
var (
	DefaultRepresentativeTolerance = Tolerance{Alpha: 0.09, Re: 0.2e6}
	DefaultSettlingTolerance       = Tolerance{Alpha: 0.2, Re: 0.1e6}
)

// Target is a nominal operating point
type Target struct {
	Alpha float64 `json:"alpha"`
	Re    float64 `json:"re"`
}

// Representative holds the means over the rows close to a target
type Representative struct {
	Target  Target  `json:"target"`
	Samples int     `json:"samples"`
	Alpha   float64 `json:"alpha"`
	Cl      float64 `json:"cl"`
	Cd      float64 `json:"cd"`
	Cm      float64 `json:"cm"`
}

// SettlingSample is the running mean after one more valid row
type SettlingSample struct {
	Time time.Time `json:"time"`
	Mean float64   `json:"mean"`
}

// valid returns the rows whose alpha and Re lie strictly inside the window
func valid(f *timeseries.Frame, target Target, tol Tolerance) ([]int, error) {
	alpha, ok := f.Column(aerodynamics.ColAlpha)
	if !ok {
		return nil, apperrors.NewDataQualityError("alpha column missing", nil).
			WithContext("channel", aerodynamics.ColAlpha)
	}
	re, ok := f.Column(aerodynamics.ColRe)
	if !ok {
		return nil, apperrors.NewDataQualityError("Re column missing", nil).
			WithContext("channel", aerodynamics.ColRe)
	}

	var rows []int
	for i := range alpha {
		if math.Abs(alpha[i]-target.Alpha) < tol.Alpha && math.Abs(re[i]-target.Re) < tol.Re {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

// RepresentativeAt averages alpha, cl, cd and cm over the rows within tol
// of target. Without such rows the means are NaN.
func RepresentativeAt(f *timeseries.Frame, target Target, tol Tolerance) (Representative, error) {
	rows, err := valid(f, target, tol)
	if err != nil {
		return Representative{}, err
	}
	r := Representative{Target: target, Samples: len(rows)}
	means := make([]float64, 4)
	for k, name := range []string{aerodynamics.ColAlpha, aerodynamics.ColCl, aerodynamics.ColCd, aerodynamics.ColCm} {
		v, ok := f.Column(name)
		if !ok {
			return Representative{}, apperrors.NewDataQualityError("coefficient column missing", nil).
				WithContext("channel", name)
		}
		means[k] = meanAt(v, rows)
	}
	r.Alpha, r.Cl, r.Cd, r.Cm = means[0], means[1], means[2], means[3]
	return r, nil
}

// Settling returns the expanding mean of column over the rows within tol
// of target, for judging whether a sweep dwelt long enough.
func Settling(f *timeseries.Frame, column string, target Target, tol Tolerance) ([]SettlingSample, error) {
	rows, err := valid(f, target, tol)
	if err != nil {
		return nil, err
	}
	v, ok := f.Column(column)
	if !ok {
		return nil, apperrors.NewDataQualityError("column missing", nil).
			WithContext("channel", column)
	}

	idx := f.Index()
	out := make([]SettlingSample, len(rows))
	sum := 0.0
	for k, i := range rows {
		sum += v[i]
		out[k] = SettlingSample{Time: idx[i], Mean: sum / float64(k+1)}
	}
	return out, nil
}

func meanAt(v []float64, rows []int) float64 {
	picked := make([]float64, len(rows))
	for k, i := range rows {
		picked[k] = v[i]
	}
	picked = finite(picked)
	if len(picked) == 0 {
		return math.NaN()
	}
	return stat.Mean(picked, nil)
}
