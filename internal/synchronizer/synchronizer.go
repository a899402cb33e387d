// Package synchronizer aligns independently clocked channel groups onto one
// common time axis.
//
// The first series is the alignment base. Every other series is merged onto
// the base timestamps by nearest-neighbour lookup within a fixed tolerance;
// base rows without a partner inside the tolerance are left undefined and
// afterwards filled by time-weighted linear interpolation, column by column.
// Only the time range covered by every input survives.
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// DefaultTolerance is the nearest-neighbour match window
const DefaultTolerance = time.Millisecond

var (
	// ErrNoOverlap means two inputs share no usable time range
	ErrNoOverlap = errors.New("series do not overlap in time")
	// ErrDuplicateChannel means two inputs carry the same channel name
	ErrDuplicateChannel = errors.New("channel present in more than one series")
)

// Options configures a Synchronizer
type Options struct {
	Tolerance time.Duration
	Location  *time.Location
}

// Report summarizes what the alignment had to repair
type Report struct {
	Rows int
	// Filled counts, per series, the base rows that had no partner within
	// the tolerance and were filled by interpolation.
	Filled map[string]int
}

// Synchronizer merges channel groups into one frame
type Synchronizer struct {
	tolerance time.Duration
	location  *time.Location
	logger    *slog.Logger
}

// New creates a Synchronizer. Zero options fall back to a 1 ms tolerance and UTC.
func New(opts Options, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Synchronizer{
		tolerance: opts.Tolerance,
		location:  opts.Location,
		logger:    logger.With(slog.String("component", "synchronizer")),
	}
}

// Synchronize aligns the series onto the first one's timestamps
func (s *Synchronizer) Synchronize(ctx context.Context, series ...*timeseries.Series) (*timeseries.Frame, Report, error) {
	report := Report{Filled: make(map[string]int)}
	if len(series) == 0 {
		return nil, report, apperrors.NewConfigError("no series to synchronize", nil)
	}

	for _, sr := range series {
		if err := sr.Validate(); err != nil {
			return nil, report, apperrors.NewDataQualityError("invalid series", err).
				WithContext("series", sr.Name)
		}
		if sr.Len() == 0 {
			return nil, report, apperrors.NewDataQualityError("series has no samples", nil).
				WithContext("series", sr.Name)
		}
	}

	start, end, err := intersection(series)
	if err != nil {
		return nil, report, err
	}

	base := dedupe(series[0].Trim(start, end))
	index := base.Time
	if len(index) == 0 {
		return nil, report, apperrors.NewSyncError("base series has no samples in the common range", ErrNoOverlap).
			WithContext("base", base.Name)
	}
	cols := make([]timeseries.Column, 0, len(base.Channels))
	seen := make(map[string]string)
	for c, name := range base.Channels {
		seen[name] = base.Name
		cols = append(cols, timeseries.Column{Name: name, Values: append([]float64(nil), base.Values[c]...)})
	}

	for _, other := range series[1:] {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		for _, name := range other.Channels {
			if owner, dup := seen[name]; dup {
				return nil, report, apperrors.NewConfigError("duplicate channel", ErrDuplicateChannel).
					WithContext("channel", name).
					WithContext("series", other.Name).
					WithContext("first_series", owner)
			}
			seen[name] = other.Name
		}

		matched := s.nearest(index, other)
		missing := 0
		for _, m := range matched {
			if m < 0 {
				missing++
			}
		}
		if missing == len(index) {
			return nil, report, apperrors.NewSyncError(
				fmt.Sprintf("no sample within %s of the base timestamps", s.tolerance), ErrNoOverlap).
				WithContext("base", series[0].Name).
				WithContext("series", other.Name)
		}
		report.Filled[other.Name] = missing

		for c, name := range other.Channels {
			values := make([]float64, len(index))
			for i, m := range matched {
				if m < 0 {
					values[i] = math.NaN()
					continue
				}
				values[i] = other.Values[c][m]
			}
			cols = append(cols, timeseries.Column{Name: name, Values: values})
		}
	}

	for i := range cols {
		if !fillByTime(index, cols[i].Values) {
			return nil, report, apperrors.NewDataQualityError("channel has no finite samples", nil).
				WithContext("channel", cols[i].Name)
		}
	}

	localized := make([]time.Time, len(index))
	for i, t := range index {
		localized[i] = t.In(s.location)
	}

	frame, err := timeseries.NewFrame(localized, cols...)
	if err != nil {
		return nil, report, apperrors.NewSyncError("build synchronized frame", err)
	}
	report.Rows = frame.Len()

	s.logger.DebugContext(ctx, "series synchronized",
		slog.Int("rows", report.Rows),
		slog.Int("channels", len(cols)),
		slog.Time("start", start),
		slog.Time("end", end),
		slog.Any("filled", report.Filled),
	)

	return frame, report, nil
}

// nearest returns, for each base timestamp, the index of the closest sample
// of other within the tolerance, or -1. Equal distances resolve to the
// earlier sample.
func (s *Synchronizer) nearest(index []time.Time, other *timeseries.Series) []int {
	out := make([]int, len(index))
	times := other.Time
	k := 0
	for i, t := range index {
		for k < len(times) && times[k].Before(t) {
			k++
		}
		best := -1
		bestDist := time.Duration(math.MaxInt64)
		if k > 0 {
			best, bestDist = k-1, t.Sub(times[k-1])
		}
		if k < len(times) {
			if d := times[k].Sub(t); d < bestDist {
				best, bestDist = k, d
			}
		}
		if best >= 0 && bestDist <= s.tolerance {
			out[i] = best
		} else {
			out[i] = -1
		}
	}
	return out
}

// intersection returns the time range covered by every series
func intersection(series []*timeseries.Series) (time.Time, time.Time, error) {
	base := series[0]
	start, end := base.Start(), base.End()
	for _, sr := range series[1:] {
		if sr.End().Before(base.Start()) || sr.Start().After(base.End()) {
			return time.Time{}, time.Time{}, apperrors.NewSyncError("series share no time range", ErrNoOverlap).
				WithContext("base", base.Name).
				WithContext("series", sr.Name)
		}
		if sr.Start().After(start) {
			start = sr.Start()
		}
		if sr.End().Before(end) {
			end = sr.End()
		}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, apperrors.NewSyncError("inputs have no common time range", ErrNoOverlap).
			WithContext("start", start.Format(time.RFC3339Nano)).
			WithContext("end", end.Format(time.RFC3339Nano))
	}
	return start, end, nil
}

// dedupe keeps the first of several samples sharing one timestamp
func dedupe(s *timeseries.Series) *timeseries.Series {
	dup := false
	for i := 1; i < len(s.Time); i++ {
		if s.Time[i].Equal(s.Time[i-1]) {
			dup = true
			break
		}
	}
	if !dup {
		return s
	}

	out := timeseries.NewSeries(s.Name, s.Channels...)
	row := make([]float64, len(s.Channels))
	for i, t := range s.Time {
		if i > 0 && t.Equal(s.Time[i-1]) {
			continue
		}
		for c := range s.Channels {
			row[c] = s.Values[c][i]
		}
		// lengths match by construction
		_ = out.Append(t, row...)
	}
	return out
}

// fillByTime replaces NaN entries by linear interpolation in time between
// the neighbouring finite values. Leading and trailing gaps take the nearest
// finite value. It reports false when the column has no finite value at all.
func fillByTime(index []time.Time, values []float64) bool {
	prev := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case prev < 0:
			for j := 0; j < i; j++ {
				values[j] = v
			}
		case i-prev > 1:
			t0 := index[prev]
			span := float64(index[i].Sub(t0))
			v0 := values[prev]
			for j := prev + 1; j < i; j++ {
				w := float64(index[j].Sub(t0)) / span
				values[j] = v0 + w*(v-v0)
			}
		}
		prev = i
	}
	if prev < 0 {
		return false
	}
	for j := prev + 1; j < len(values); j++ {
		values[j] = values[prev]
	}
	return true
}
