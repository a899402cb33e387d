package timeseries

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 18, 10, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func TestSeries_AppendAndValidate(t *testing.T) {
	s := NewSeries("static_K02", "static_K02_1", "static_K02_2")
	require.NoError(t, s.Append(ms(0), 1, 2))
	require.NoError(t, s.Append(ms(10), 3, 4))
	assert.Error(t, s.Append(ms(20), 5))

	require.NoError(t, s.Validate())
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, ms(0), s.Start())
	assert.Equal(t, ms(10), s.End())

	v, ok := s.Channel("static_K02_2")
	require.True(t, ok)
	assert.Equal(t, []float64{2, 4}, v)

	s.Time[1] = ms(-5)
	assert.Error(t, s.Validate())
}

func TestSeries_Rebase(t *testing.T) {
	s := NewSeries("AOA", "alpha")
	require.NoError(t, s.Append(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 1))
	require.NoError(t, s.Append(time.Date(2024, 1, 1, 0, 0, 1, 500e6, time.UTC), 2))

	out := s.Rebase(t0)
	assert.Equal(t, t0, out.Time[0])
	assert.Equal(t, t0.Add(1500*time.Millisecond), out.Time[1])
	// original untouched
	assert.Equal(t, 2024, s.Time[0].Year())
	assert.Equal(t, time.January, s.Time[0].Month())
}

func TestSeries_Trim(t *testing.T) {
	s := NewSeries("x", "a")
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(ms(i*10), float64(i)))
	}
	out := s.Trim(ms(20), ms(50))
	assert.Equal(t, []float64{2, 3, 4, 5}, out.Values[0])
	assert.Equal(t, 0, s.Trim(ms(200), ms(300)).Len())
}

func TestSeries_DropGlitches(t *testing.T) {
	s := NewSeries("static_K03", "p1", "p2")
	rows := [][2]float64{
		{100, 200},
		{101, 201},
		{50, 199}, // p1 below 0.85*median
		{99, 260}, // p2 above 1.07*median
		{100, 200},
	}
	for i, r := range rows {
		require.NoError(t, s.Append(ms(i), r[0], r[1]))
	}

	out, dropped := s.DropGlitches(0.85, 1.07)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []float64{100, 101, 100}, out.Values[0])
	assert.Equal(t, []float64{200, 201, 200}, out.Values[1])
	assert.Equal(t, []time.Time{ms(0), ms(1), ms(4)}, out.Time)
	assert.Equal(t, 5, s.Len())
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, 0.0, Median(nil))
}

func TestNewFrame_RejectsNonIncreasingIndex(t *testing.T) {
	_, err := NewFrame([]time.Time{ms(0), ms(0)})
	assert.Error(t, err)

	_, err = NewFrame([]time.Time{ms(0), ms(1)}, Column{Name: "a", Values: []float64{1}})
	assert.Error(t, err)
}

func TestFrame_WithColumnsIsNonDestructive(t *testing.T) {
	f, err := NewFrame([]time.Time{ms(0), ms(1)}, Column{Name: "a", Values: []float64{1, 2}})
	require.NoError(t, err)

	g, err := f.WithColumns(Column{Name: "b", Values: []float64{3, 4}})
	require.NoError(t, err)
	assert.False(t, f.Has("b"))
	assert.True(t, g.Has("b"))
	assert.Equal(t, []string{"a", "b"}, g.Columns())

	_, err = g.WithColumns(Column{Name: "a", Values: []float64{0, 0}})
	assert.True(t, errors.Is(err, ErrColumnExists))

	h, err := g.WithReplaced(Column{Name: "a", Values: []float64{9, 9}})
	require.NoError(t, err)
	a, _ := g.Column("a")
	assert.Equal(t, []float64{1, 2}, a)
	a, _ = h.Column("a")
	assert.Equal(t, []float64{9, 9}, a)

	_, err = h.WithReplaced(Column{Name: "zz", Values: []float64{0, 0}})
	assert.True(t, errors.Is(err, ErrColumnMissing))
}

func TestFrame_Stages(t *testing.T) {
	f, err := NewFrame([]time.Time{ms(0)})
	require.NoError(t, err)

	g, err := f.WithStage("wall_correction")
	require.NoError(t, err)
	assert.True(t, g.HasStage("wall_correction"))
	assert.False(t, f.HasStage("wall_correction"))

	_, err = g.WithStage("wall_correction")
	assert.True(t, errors.Is(err, ErrStageApplied))
}

func TestFrame_MatchAndWindow(t *testing.T) {
	idx := []time.Time{ms(0), ms(10), ms(20), ms(30)}
	zeros := make([]float64, 4)
	f, err := NewFrame(idx,
		Column{Name: "static_K02_1", Values: zeros},
		Column{Name: "ptot_rake_1", Values: zeros},
		Column{Name: "pstat_rake_1", Values: zeros},
		Column{Name: "alpha", Values: zeros},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"static_K02_1", "ptot_rake_1", "pstat_rake_1"}, f.Match("stat", "ptot"))
	assert.Equal(t, []string{"ptot_rake_1"}, f.MatchPrefix("ptot_rake_"))

	lo, hi := f.Window(ms(10), ms(30))
	assert.Equal(t, 1, lo)
	assert.Equal(t, 3, hi)

	sub := f.Slice(lo, hi)
	assert.Equal(t, 2, sub.Len())
	assert.Equal(t, ms(10), sub.Index()[0])
}

func TestConcat(t *testing.T) {
	a, err := NewFrame([]time.Time{ms(0), ms(1)}, Column{Name: "x", Values: []float64{1, 2}})
	require.NoError(t, err)
	b, err := NewFrame([]time.Time{ms(5), ms(6)}, Column{Name: "x", Values: []float64{3, 4}})
	require.NoError(t, err)

	out, err := Concat(b, a)
	require.NoError(t, err)
	x, _ := out.Column("x")
	assert.Equal(t, []float64{1, 2, 3, 4}, x)

	c, err := NewFrame([]time.Time{ms(1), ms(2)}, Column{Name: "x", Values: []float64{0, 0}})
	require.NoError(t, err)
	_, err = Concat(a, c)
	assert.Error(t, err)

	d, err := NewFrame([]time.Time{ms(9)}, Column{Name: "y", Values: []float64{0}})
	require.NoError(t, err)
	_, err = Concat(a, d)
	assert.Error(t, err)
}
