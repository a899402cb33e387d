// Package ingest reads the already decoded instrument exports the
// reduction consumes: channel-group CSV files, the pressure-tap table and
// the reference pressure distribution for the wall correction.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// TimeColumn is the header of the timestamp column
const TimeColumn = "Time"

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// LoadChannelGroup reads one channel-group file
func LoadChannelGroup(path, name string) (*timeseries.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(path)
		}
		return nil, apperrors.NewStorageError("open channel group", err).WithContext("file", path)
	}
	defer f.Close()

	s, err := ReadChannelGroup(f, name)
	if err != nil {
		var ae *apperrors.AppError
		if errors.As(err, &ae) {
			return nil, ae.WithContext("file", path)
		}
		return nil, err
	}
	return s, nil
}

// ReadChannelGroup reads a CSV whose first column is the sample time and
// whose remaining columns are channels. Timestamps without a zone are UTC.
func ReadChannelGroup(r io.Reader, name string) (*timeseries.Series, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, apperrors.NewParsingError("read header", err).WithContext("series", name)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), TimeColumn) {
		return nil, apperrors.NewParsingError(
			fmt.Sprintf("header must start with %s followed by channels", TimeColumn), nil).
			WithContext("series", name)
	}
	channels := make([]string, len(header)-1)
	for i, h := range header[1:] {
		channels[i] = strings.TrimSpace(h)
	}

	s := timeseries.NewSeries(name, channels...)
	values := make([]float64, len(channels))
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.NewParsingError("read record", err).
				WithContext("series", name).WithContext("line", line)
		}
		t, err := parseTime(rec[0])
		if err != nil {
			return nil, apperrors.NewParsingError("invalid timestamp", err).
				WithContext("series", name).WithContext("line", line)
		}
		for c := range channels {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[c+1]), 64)
			if err != nil {
				return nil, apperrors.NewParsingError("invalid value", err).
					WithContext("series", name).
					WithContext("channel", channels[c]).
					WithContext("line", line)
			}
			values[c] = v
		}
		if err := s.Append(t, values...); err != nil {
			return nil, apperrors.NewParsingError("append record", err).WithContext("line", line)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, apperrors.NewDataQualityError("channel group out of order", err).WithContext("series", name)
	}
	return s, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// skipBOM drops a leading UTF-8 byte order mark
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		br.Discard(3)
	}
	return br
}
