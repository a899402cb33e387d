package exporter

import (
	"strconv"
	"time"
)

// TimeLayout is the timestamp format of every exported table. The
// channel-group reader accepts it, so an exported frame can be read back.
const TimeLayout = time.RFC3339Nano

// formatFloat formats a value with the fewest digits that round-trip
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatTime renders t in loc; a nil loc keeps t's own zone
func formatTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimeLayout)
}
