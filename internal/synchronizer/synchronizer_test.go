package synchronizer

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 18, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func series(t *testing.T, name, channel string, times []time.Duration, values []float64) *timeseries.Series {
	t.Helper()
	s := timeseries.NewSeries(name, channel)
	for i, d := range times {
		require.NoError(t, s.Append(at(d), values[i]))
	}
	return s
}

func TestSynchronize_SingleSeriesIsUnchanged(t *testing.T) {
	s := series(t, "static_K02", "static_K02_1",
		[]time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond},
		[]float64{1, 2, 3})

	frame, report, err := New(Options{}, nil).Synchronize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)

	v, ok := frame.Column("static_K02_1")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, v)
	assert.Equal(t, s.Time, frame.Index())
}

func TestSynchronize_IdenticalClocks(t *testing.T) {
	times := []time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond}
	a := series(t, "AOA", "alpha", times, []float64{1, 2, 3})
	b := series(t, "Airspeed", "Temperature", times, []float64{290, 291, 292})

	frame, report, err := New(Options{}, nil).Synchronize(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Filled["Airspeed"])

	temp, _ := frame.Column("Temperature")
	assert.Equal(t, []float64{290, 291, 292}, temp)
}

func TestSynchronize_ToleranceAndInterpolation(t *testing.T) {
	base := series(t, "base", "a",
		[]time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond},
		[]float64{0, 0, 0, 0})
	// 10.5 ms lies within 1 ms of the base row at 10 ms; 25 ms is 5 ms from
	// both 20 ms and 30 ms, so the row at 20 ms is interpolated.
	other := series(t, "other", "b",
		[]time.Duration{0, 10*time.Millisecond + 500*time.Microsecond, 25 * time.Millisecond, 30 * time.Millisecond},
		[]float64{0, 10, 99, 30})

	frame, report, err := New(Options{}, nil).Synchronize(context.Background(), base, other)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Filled["other"])

	b, _ := frame.Column("b")
	require.Len(t, b, 4)
	assert.InDelta(t, 0, b[0], 1e-12)
	assert.InDelta(t, 10, b[1], 1e-12)
	assert.InDelta(t, 20, b[2], 1e-12)
	assert.InDelta(t, 30, b[3], 1e-12)
}

func TestSynchronize_TieResolvesToEarlierSample(t *testing.T) {
	base := series(t, "base", "a", []time.Duration{0, 10 * time.Millisecond}, []float64{0, 0})
	other := series(t, "other", "b",
		[]time.Duration{0, 9500 * time.Microsecond, 10500 * time.Microsecond},
		[]float64{0, 1, 2})

	frame, _, err := New(Options{}, nil).Synchronize(context.Background(), base, other)
	require.NoError(t, err)
	b, _ := frame.Column("b")
	assert.Equal(t, 1.0, b[1])
}

func TestSynchronize_TrimsToCommonRange(t *testing.T) {
	base := series(t, "base", "a",
		[]time.Duration{0, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond},
		[]float64{1, 2, 3, 4})
	other := series(t, "other", "b",
		[]time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
		[]float64{5, 6})

	frame, _, err := New(Options{}, nil).Synchronize(context.Background(), base, other)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{at(10 * time.Millisecond), at(20 * time.Millisecond)}, frame.Index())
	a, _ := frame.Column("a")
	assert.Equal(t, []float64{2, 3}, a)
}

func TestSynchronize_Errors(t *testing.T) {
	base := series(t, "base", "a", []time.Duration{0, 10 * time.Millisecond}, []float64{1, 2})

	tests := []struct {
		name     string
		other    *timeseries.Series
		wantErr  error
		wantType apperrors.ErrorType
	}{
		{
			name:     "disjoint ranges",
			other:    series(t, "late", "b", []time.Duration{time.Second, 2 * time.Second}, []float64{1, 2}),
			wantErr:  ErrNoOverlap,
			wantType: apperrors.ErrTypeSync,
		},
		{
			name: "no sample within tolerance",
			other: series(t, "offset", "b",
				[]time.Duration{5 * time.Millisecond, 6 * time.Millisecond}, []float64{1, 2}),
			wantErr:  ErrNoOverlap,
			wantType: apperrors.ErrTypeSync,
		},
		{
			name:     "duplicate channel",
			other:    series(t, "dup", "a", []time.Duration{0, 10 * time.Millisecond}, []float64{1, 2}),
			wantErr:  ErrDuplicateChannel,
			wantType: apperrors.ErrTypeConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New(Options{}, nil).Synchronize(context.Background(), base, tt.other)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.Equal(t, tt.wantType, apperrors.TypeOf(err))
		})
	}
}

func TestSynchronize_NoOverlapNamesSeries(t *testing.T) {
	base := series(t, "static_K02", "a", []time.Duration{0, time.Millisecond}, []float64{1, 2})
	late := series(t, "ptot_rake", "b", []time.Duration{time.Minute, 2 * time.Minute}, []float64{1, 2})

	_, _, err := New(Options{}, nil).Synchronize(context.Background(), base, late)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ptot_rake")
}

func TestSynchronize_DuplicateBaseTimestamps(t *testing.T) {
	base := series(t, "base", "a",
		[]time.Duration{0, 10 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond},
		[]float64{1, 2, 7, 3})

	frame, _, err := New(Options{}, nil).Synchronize(context.Background(), base)
	require.NoError(t, err)
	a, _ := frame.Column("a")
	assert.Equal(t, []float64{1, 2, 3}, a)
}

func TestSynchronize_Location(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	s := series(t, "x", "a", []time.Duration{0, time.Millisecond}, []float64{1, 2})

	frame, _, err := New(Options{Location: loc}, nil).Synchronize(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, loc, frame.Index()[0].Location())
	assert.True(t, frame.Index()[0].Equal(t0))
}
