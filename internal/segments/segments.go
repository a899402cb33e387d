// Package segments reduces the continuous coefficient series into one
// polar point per steady test segment.
package segments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// DefaultWindOffSpeed is the calibrated airspeed in m/s below which a row
// counts as wind-off
const DefaultWindOffSpeed = 10.0

// ErrInvalidSegment means a segment window is empty or reversed
var ErrInvalidSegment = errors.New("segment end is not after its start")

// Segment is a labelled half-open time window [Start, End)
type Segment struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate checks the window
func (s Segment) Validate() error {
	if !s.End.After(s.Start) {
		return apperrors.NewValidationError("invalid segment window", ErrInvalidSegment).
			WithContext("segment", s.Label).
			WithContext("start", s.Start.Format(time.RFC3339)).
			WithContext("end", s.End.Format(time.RFC3339))
	}
	return nil
}

// Stat is a sample mean and standard deviation (n-1 normalization)
type Stat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// PolarPoint is one reduced operating point
type PolarPoint struct {
	Label          string    `json:"label"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	// Samples counts the rows in the window, statistics skip non-finite values
	Samples        int       `json:"samples"`
	WindOffSamples int       `json:"wind_off_samples"`

	Alpha Stat  `json:"alpha"`
	Re    Stat  `json:"re"`
	UCAS  Stat  `json:"u_cas"`
	UTAS  Stat  `json:"u_tas"`
	Cl    Stat  `json:"cl"`
	Cm    Stat  `json:"cm"`
	Cd    Stat  `json:"cd"`
	Cdp   Stat  `json:"cdp"`
	CmrLE *Stat `json:"cmr_le,omitempty"`
	CmrTE *Stat `json:"cmr_te,omitempty"`
}

// Columns lists the polar quantities in output order together with their
// frame column names. Hinge moments appear only when present.
func (p PolarPoint) Columns() []NamedStat {
	out := []NamedStat{
		{aerodynamics.ColAlpha, p.Alpha},
		{aerodynamics.ColRe, p.Re},
		{aerodynamics.ColUCAS, p.UCAS},
		{aerodynamics.ColUTAS, p.UTAS},
		{aerodynamics.ColCl, p.Cl},
		{aerodynamics.ColCm, p.Cm},
		{aerodynamics.ColCd, p.Cd},
		{aerodynamics.ColCdp, p.Cdp},
	}
	if p.CmrLE != nil {
		out = append(out, NamedStat{aerodynamics.ColCmrLE, *p.CmrLE})
	}
	if p.CmrTE != nil {
		out = append(out, NamedStat{aerodynamics.ColCmrTE, *p.CmrTE})
	}
	return out
}

// NamedStat pairs a column name with its statistics
type NamedStat struct {
	Name string
	Stat Stat
}

// Options tunes the reduction
type Options struct {
	// WindOffSpeed is the U_CAS threshold below which rows are counted as
	// wind-off; zero selects DefaultWindOffSpeed.
	WindOffSpeed float64
}

// Aggregator reduces frames into polar points
type Aggregator struct {
	opts   Options
	logger *slog.Logger
}

// NewAggregator creates an aggregator
func NewAggregator(opts Options, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WindOffSpeed <= 0 {
		opts.WindOffSpeed = DefaultWindOffSpeed
	}
	return &Aggregator{opts: opts, logger: logger.With(slog.String("component", "segment_aggregator"))}
}

var required = []string{
	aerodynamics.ColAlpha, aerodynamics.ColRe, aerodynamics.ColUCAS, aerodynamics.ColUTAS,
	aerodynamics.ColCl, aerodynamics.ColCm, aerodynamics.ColCd, aerodynamics.ColCdp,
}

// Reduce computes one polar point per segment over every row inside the
// segment window. Segments without rows yield NaN statistics.
func (a *Aggregator) Reduce(ctx context.Context, f *timeseries.Frame, segments []Segment) ([]PolarPoint, error) {
	cols := make(map[string][]float64, len(required)+2)
	for _, name := range required {
		v, ok := f.Column(name)
		if !ok {
			return nil, apperrors.NewDataQualityError("polar column missing from frame", nil).
				WithContext("channel", name)
		}
		cols[name] = v
	}
	cmrLE, hasLE := f.Column(aerodynamics.ColCmrLE)
	cmrTE, hasTE := f.Column(aerodynamics.ColCmrTE)

	out := make([]PolarPoint, 0, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seg.Label == "" {
			seg.Label = fmt.Sprintf("segment-%d", i+1)
		}
		if err := seg.Validate(); err != nil {
			return nil, err
		}

		lo, hi := f.Window(seg.Start, seg.End)
		p := PolarPoint{
			Label:   seg.Label,
			Start:   seg.Start,
			End:     seg.End,
			Samples: hi - lo,
			Alpha:   describe(cols[aerodynamics.ColAlpha][lo:hi]),
			Re:      describe(cols[aerodynamics.ColRe][lo:hi]),
			UCAS:    describe(cols[aerodynamics.ColUCAS][lo:hi]),
			UTAS:    describe(cols[aerodynamics.ColUTAS][lo:hi]),
			Cl:      describe(cols[aerodynamics.ColCl][lo:hi]),
			Cm:      describe(cols[aerodynamics.ColCm][lo:hi]),
			Cd:      describe(cols[aerodynamics.ColCd][lo:hi]),
			Cdp:     describe(cols[aerodynamics.ColCdp][lo:hi]),
		}
		if hasLE {
			s := describe(cmrLE[lo:hi])
			p.CmrLE = &s
		}
		if hasTE {
			s := describe(cmrTE[lo:hi])
			p.CmrTE = &s
		}
		for _, u := range cols[aerodynamics.ColUCAS][lo:hi] {
			if !(u >= a.opts.WindOffSpeed) {
				p.WindOffSamples++
			}
		}

		if p.Samples == 0 {
			a.logger.WarnContext(ctx, "segment contains no samples",
				slog.String("segment", seg.Label),
				slog.Time("start", seg.Start),
				slog.Time("end", seg.End),
			)
		} else if p.WindOffSamples > 0 {
			a.logger.DebugContext(ctx, "segment contains wind-off samples",
				slog.String("segment", seg.Label),
				slog.Int("wind_off", p.WindOffSamples),
				slog.Int("samples", p.Samples),
			)
		}
		out = append(out, p)
	}
	return out, nil
}

// describe returns mean and sample standard deviation of the finite
// values. Without finite values both are NaN, a single one gives a NaN
// deviation.
func describe(v []float64) Stat {
	v = finite(v)
	switch len(v) {
	case 0:
		return Stat{Mean: math.NaN(), Std: math.NaN()}
	case 1:
		return Stat{Mean: v[0], Std: math.NaN()}
	}
	mean, std := stat.MeanStdDev(v, nil)
	return Stat{Mean: mean, Std: std}
}

// finite drops NaN and infinite values
func finite(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}
