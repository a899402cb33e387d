package timeseries

import (
	"fmt"
	"sort"
	"time"
)

// Series is one channel group recorded by a single instrument on its own
// clock. Values is column-major: Values[c][i] is channel c at Time[i].
type Series struct {
	Name     string
	Time     []time.Time
	Channels []string
	Values   [][]float64
}

// NewSeries creates an empty series for the given channels
func NewSeries(name string, channels ...string) *Series {
	return &Series{
		Name:     name,
		Channels: append([]string(nil), channels...),
		Values:   make([][]float64, len(channels)),
	}
}

// Append adds one sample row. The number of values must match the channels.
func (s *Series) Append(t time.Time, values ...float64) error {
	if len(values) != len(s.Channels) {
		return fmt.Errorf("series %s: got %d values for %d channels", s.Name, len(values), len(s.Channels))
	}
	s.Time = append(s.Time, t)
	for c, v := range values {
		s.Values[c] = append(s.Values[c], v)
	}
	return nil
}

// Len returns the number of samples
func (s *Series) Len() int {
	return len(s.Time)
}

// Start returns the first timestamp
func (s *Series) Start() time.Time {
	if len(s.Time) == 0 {
		return time.Time{}
	}
	return s.Time[0]
}

// End returns the last timestamp
func (s *Series) End() time.Time {
	if len(s.Time) == 0 {
		return time.Time{}
	}
	return s.Time[len(s.Time)-1]
}

// Channel returns the samples of one channel
func (s *Series) Channel(name string) ([]float64, bool) {
	for c, ch := range s.Channels {
		if ch == name {
			return s.Values[c], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants: consistent lengths and
// non-decreasing timestamps.
func (s *Series) Validate() error {
	if len(s.Values) != len(s.Channels) {
		return fmt.Errorf("series %s: %d value columns for %d channels", s.Name, len(s.Values), len(s.Channels))
	}
	for c, col := range s.Values {
		if len(col) != len(s.Time) {
			return fmt.Errorf("series %s: channel %s has %d samples, time axis has %d",
				s.Name, s.Channels[c], len(col), len(s.Time))
		}
	}
	for i := 1; i < len(s.Time); i++ {
		if s.Time[i].Before(s.Time[i-1]) {
			return fmt.Errorf("series %s: timestamp %d (%s) precedes its predecessor",
				s.Name, i, s.Time[i].Format(time.RFC3339Nano))
		}
	}
	return nil
}

// Rebase returns a copy whose first sample sits at origin. Instruments log
// local clock time; the shared origin (usually the first GPS fix) puts all
// channel groups on one absolute axis.
func (s *Series) Rebase(origin time.Time) *Series {
	out := s.shallowCopy()
	out.Time = make([]time.Time, len(s.Time))
	if len(s.Time) == 0 {
		return out
	}
	first := s.Time[0]
	for i, t := range s.Time {
		out.Time[i] = origin.Add(t.Sub(first))
	}
	return out
}

// Trim returns the samples with start <= t <= end
func (s *Series) Trim(start, end time.Time) *Series {
	lo := sort.Search(len(s.Time), func(i int) bool { return !s.Time[i].Before(start) })
	hi := sort.Search(len(s.Time), func(i int) bool { return s.Time[i].After(end) })
	if hi < lo {
		hi = lo
	}
	return s.rows(lo, hi)
}

// DropGlitches removes rows in which any channel leaves the band
// [lower*median, upper*median]. Channels are processed in order and each
// median is taken over the rows that survived the previous channels.
// It returns the filtered series and the number of rows dropped.
func (s *Series) DropGlitches(lower, upper float64) (*Series, int) {
	keep := make([]int, len(s.Time))
	for i := range keep {
		keep[i] = i
	}

	buf := make([]float64, 0, len(s.Time))
	for c := range s.Channels {
		col := s.Values[c]
		buf = buf[:0]
		for _, i := range keep {
			buf = append(buf, col[i])
		}
		median := Median(buf)
		lo, hi := lower*median, upper*median
		if lo > hi {
			lo, hi = hi, lo
		}

		next := keep[:0]
		for _, i := range keep {
			if v := col[i]; v >= lo && v <= hi {
				next = append(next, i)
			}
		}
		keep = next
	}

	out := s.shallowCopy()
	out.Time = make([]time.Time, len(keep))
	out.Values = make([][]float64, len(s.Channels))
	for c := range out.Values {
		out.Values[c] = make([]float64, len(keep))
	}
	for j, i := range keep {
		out.Time[j] = s.Time[i]
		for c := range s.Channels {
			out.Values[c][j] = s.Values[c][i]
		}
	}
	return out, len(s.Time) - len(keep)
}

func (s *Series) rows(lo, hi int) *Series {
	out := s.shallowCopy()
	out.Time = s.Time[lo:hi]
	out.Values = make([][]float64, len(s.Values))
	for c, col := range s.Values {
		out.Values[c] = col[lo:hi]
	}
	return out
}

func (s *Series) shallowCopy() *Series {
	return &Series{
		Name:     s.Name,
		Time:     s.Time,
		Channels: append([]string(nil), s.Channels...),
		Values:   s.Values,
	}
}

// Median returns the median of values, averaging the two central elements
// for even lengths. The input is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
