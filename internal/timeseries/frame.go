package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrStageApplied is returned when a transform would run twice on a frame
	ErrStageApplied = errors.New("stage already applied to frame")
	// ErrColumnExists is returned when a derived column would shadow an existing one
	ErrColumnExists = errors.New("column already exists")
	// ErrColumnMissing is returned when a required column is absent
	ErrColumnMissing = errors.New("column missing")
)

// Column is a named value vector aligned to a frame index
type Column struct {
	Name   string
	Values []float64
}

// Frame is the synchronized, time-indexed table shared by all downstream
// transforms. A Frame is never modified after construction; every transform
// returns a new Frame that shares the unchanged column vectors. Slices
// returned by Index and Column must be treated as read-only.
type Frame struct {
	index   []time.Time
	columns []string
	data    map[string][]float64
	stages  []string
}

// NewFrame creates a frame from a strictly increasing index and columns
func NewFrame(index []time.Time, cols ...Column) (*Frame, error) {
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			return nil, fmt.Errorf("frame index not strictly increasing at row %d (%s)",
				i, index[i].Format(time.RFC3339Nano))
		}
	}
	f := &Frame{
		index: index,
		data:  make(map[string][]float64, len(cols)),
	}
	for _, c := range cols {
		if err := f.put(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Len returns the number of rows
func (f *Frame) Len() int {
	return len(f.index)
}

// Index returns the time index
func (f *Frame) Index() []time.Time {
	return f.index
}

// Columns returns the column names in insertion order
func (f *Frame) Columns() []string {
	return append([]string(nil), f.columns...)
}

// Has reports whether a column exists
func (f *Frame) Has(name string) bool {
	_, ok := f.data[name]
	return ok
}

// Column returns a column's values
func (f *Frame) Column(name string) ([]float64, bool) {
	v, ok := f.data[name]
	return v, ok
}

// Lookup returns a column or an error naming it
func (f *Frame) Lookup(name string) ([]float64, error) {
	v, ok := f.data[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnMissing, name)
	}
	return v, nil
}

// Match returns the columns whose name contains any of the patterns, in
// column order.
func (f *Frame) Match(patterns ...string) []string {
	var out []string
	for _, name := range f.columns {
		for _, p := range patterns {
			if strings.Contains(name, p) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// MatchPrefix returns the columns starting with prefix, in column order
func (f *Frame) MatchPrefix(prefix string) []string {
	var out []string
	for _, name := range f.columns {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// WithColumns returns a new frame with additional columns
func (f *Frame) WithColumns(cols ...Column) (*Frame, error) {
	out := f.clone()
	for _, c := range cols {
		if err := out.put(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// WithReplaced returns a new frame in which existing columns carry new values
func (f *Frame) WithReplaced(cols ...Column) (*Frame, error) {
	out := f.clone()
	for _, c := range cols {
		if _, ok := out.data[c.Name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrColumnMissing, c.Name)
		}
		if len(c.Values) != len(out.index) {
			return nil, fmt.Errorf("column %s has %d values for %d rows", c.Name, len(c.Values), len(out.index))
		}
		out.data[c.Name] = c.Values
	}
	return out, nil
}

// HasStage reports whether the named transform already ran on this frame
func (f *Frame) HasStage(stage string) bool {
	for _, s := range f.stages {
		if s == stage {
			return true
		}
	}
	return false
}

// Stages returns the transforms applied so far, in order
func (f *Frame) Stages() []string {
	return append([]string(nil), f.stages...)
}

// WithStage records that a transform ran. Recording the same stage twice
// is an error.
func (f *Frame) WithStage(stage string) (*Frame, error) {
	if f.HasStage(stage) {
		return nil, fmt.Errorf("%w: %s", ErrStageApplied, stage)
	}
	out := f.clone()
	out.stages = append(out.stages, stage)
	return out, nil
}

// Window returns the half-open row range [lo, hi) with start <= t < end
func (f *Frame) Window(start, end time.Time) (lo, hi int) {
	lo = sort.Search(len(f.index), func(i int) bool { return !f.index[i].Before(start) })
	hi = sort.Search(len(f.index), func(i int) bool { return !f.index[i].Before(end) })
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Slice returns the rows [lo, hi) as a new frame
func (f *Frame) Slice(lo, hi int) *Frame {
	out := f.clone()
	out.index = f.index[lo:hi]
	for name, v := range f.data {
		out.data[name] = v[lo:hi]
	}
	return out
}

// In returns a copy whose index is expressed in loc
func (f *Frame) In(loc *time.Location) *Frame {
	out := f.clone()
	out.index = make([]time.Time, len(f.index))
	for i, t := range f.index {
		out.index[i] = t.In(loc)
	}
	return out
}

// Concat joins frames with identical columns into one frame ordered by time.
// Frames whose time ranges overlap cannot be joined.
func Concat(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames to concatenate")
	}
	if len(frames) == 1 {
		return frames[0], nil
	}

	ordered := append([]*Frame(nil), frames...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return startOf(ordered[i]).Before(startOf(ordered[j]))
	})

	first := ordered[0]
	total := 0
	for k, fr := range ordered {
		if len(fr.columns) != len(first.columns) {
			return nil, fmt.Errorf("frame %d has %d columns, expected %d", k, len(fr.columns), len(first.columns))
		}
		for _, name := range first.columns {
			if !fr.Has(name) {
				return nil, fmt.Errorf("frame %d: %w: %s", k, ErrColumnMissing, name)
			}
		}
		if k > 0 && fr.Len() > 0 && ordered[k-1].Len() > 0 {
			prevEnd := ordered[k-1].index[ordered[k-1].Len()-1]
			if !fr.index[0].After(prevEnd) {
				return nil, fmt.Errorf("frame %d starts at %s before preceding frame ends at %s",
					k, fr.index[0].Format(time.RFC3339Nano), prevEnd.Format(time.RFC3339Nano))
			}
		}
		total += fr.Len()
	}

	index := make([]time.Time, 0, total)
	cols := make([]Column, len(first.columns))
	for c, name := range first.columns {
		cols[c] = Column{Name: name, Values: make([]float64, 0, total)}
	}
	for _, fr := range ordered {
		index = append(index, fr.index...)
		for c := range cols {
			cols[c].Values = append(cols[c].Values, fr.data[cols[c].Name]...)
		}
	}

	out, err := NewFrame(index, cols...)
	if err != nil {
		return nil, err
	}
	out.stages = append(out.stages, first.stages...)
	return out, nil
}

func startOf(f *Frame) time.Time {
	if f.Len() == 0 {
		return time.Time{}
	}
	return f.index[0]
}

func (f *Frame) put(c Column) error {
	if _, ok := f.data[c.Name]; ok {
		return fmt.Errorf("%w: %s", ErrColumnExists, c.Name)
	}
	if len(c.Values) != len(f.index) {
		return fmt.Errorf("column %s has %d values for %d rows", c.Name, len(c.Values), len(f.index))
	}
	f.columns = append(f.columns, c.Name)
	f.data[c.Name] = c.Values
	return nil
}

func (f *Frame) clone() *Frame {
	out := &Frame{
		index:   f.index,
		columns: append([]string(nil), f.columns...),
		data:    make(map[string][]float64, len(f.data)),
		stages:  append([]string(nil), f.stages...),
	}
	for k, v := range f.data {
		out.data[k] = v
	}
	return out
}
