package segments

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
)

// Recording is one raw-data recording of a campaign and the calibration it
// is to be corrected with
type Recording struct {
	Name        string `json:"name"`
	Calibration string `json:"calibration"`
}

// Definition is the content of a segment workbook
type Definition struct {
	Segments   []Segment   `json:"segments"`
	Recordings []Recording `json:"recordings"`
	FlapAngle  float64     `json:"flap_angle"`
}

// Workbook layout. Row 1 holds group headers and the headers of J, K and L;
// row 2 holds the dd/hh/mm/ss headers of the start (A-D) and end (E-H)
// times. Segments start in row 3, recordings, calibrations and the flap
// angle in row 2. Column I may carry a segment label.
const (
	firstSegmentRow   = 2 // zero based
	firstRecordingRow = 1
	colLabel          = 8
	colRecording      = 9
	colCalibration    = 10
	colFlapAngle      = 11
)

// LoadDefinition reads a segment workbook. Segment times are wall-clock
// times in loc.
func LoadDefinition(path string, loc *time.Location) (*Definition, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewParsingError("open segment workbook", err).WithContext("file", path)
	}
	defer f.Close()

	def, err := ParseDefinition(f, loc)
	if err != nil {
		if ae, ok := err.(*apperrors.AppError); ok {
			return nil, ae.WithContext("file", path)
		}
		return nil, err
	}
	return def, nil
}

// ReadDefinition reads a segment workbook from r
func ReadDefinition(r io.Reader, loc *time.Location) (*Definition, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperrors.NewParsingError("open segment workbook", err)
	}
	defer f.Close()
	return ParseDefinition(f, loc)
}

// ParseDefinition reads the first sheet of an open workbook
func ParseDefinition(f *excelize.File, loc *time.Location) (*Definition, error) {
	if loc == nil {
		loc = time.UTC
	}
	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewParsingError("read segment sheet", err).WithContext("sheet", sheet)
	}

	def := &Definition{}
	flapSet := false
	for r := firstRecordingRow; r < len(rows); r++ {
		name := cell(rows[r], colRecording)
		if name != "" {
			def.Recordings = append(def.Recordings, Recording{Name: name})
		}
		if cal := cell(rows[r], colCalibration); cal != "" {
			if len(def.Recordings) == 0 || def.Recordings[len(def.Recordings)-1].Calibration != "" {
				return nil, apperrors.NewParsingError("calibration type without recording", nil).
					WithContext("row", r+1)
			}
			def.Recordings[len(def.Recordings)-1].Calibration = cal
		}
		if v := cell(rows[r], colFlapAngle); v != "" && !flapSet {
			angle, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
			if err != nil {
				return nil, apperrors.NewParsingError("invalid flap angle", err).WithContext("row", r+1)
			}
			def.FlapAngle, flapSet = angle, true
		}
	}
	if len(def.Recordings) == 0 {
		return nil, apperrors.NewParsingError("workbook lists no recordings", nil).WithContext("sheet", sheet)
	}
	for i, rec := range def.Recordings {
		if rec.Calibration == "" {
			return nil, apperrors.NewParsingError("recording has no calibration type", nil).
				WithContext("recording", rec.Name).
				WithContext("row", firstRecordingRow+i+1)
		}
	}

	// A:H forward-filled
	var last [8]string
	for r := firstSegmentRow; r < len(rows); r++ {
		row := rows[r]
		empty := true
		for c := 0; c < 8; c++ {
			if cell(row, c) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		for c := 0; c < 8; c++ {
			if v := cell(row, c); v != "" {
				last[c] = v
			}
		}

		label := cell(row, colLabel)
		if label == "" {
			label = fmt.Sprintf("segment-%d", len(def.Segments)+1)
		}
		start, err := clock(last[0], last[1], last[2], last[3], loc)
		if err != nil {
			return nil, apperrors.NewParsingError("invalid segment start", err).
				WithContext("segment", label).WithContext("row", r+1)
		}
		end, err := clock(last[4], last[5], last[6], last[7], loc)
		if err != nil {
			return nil, apperrors.NewParsingError("invalid segment end", err).
				WithContext("segment", label).WithContext("row", r+1)
		}
		seg := Segment{Label: label, Start: start, End: end}
		if err := seg.Validate(); err != nil {
			return nil, err
		}
		def.Segments = append(def.Segments, seg)
	}
	if len(def.Segments) == 0 {
		return nil, apperrors.NewParsingError("workbook defines no segments", nil).WithContext("sheet", sheet)
	}
	return def, nil
}

func cell(row []string, c int) string {
	if c >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[c])
}

var dayLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02.01.2006",
	"2.1.2006",
	"01-02-06",
	"1/2/06",
	"01/02/2006",
}

// clock combines a day cell and hour, minute and second cells into an
// instant in loc
func clock(day, hh, mm, ss string, loc *time.Location) (time.Time, error) {
	d, err := parseDay(day)
	if err != nil {
		return time.Time{}, err
	}
	parts := [3]int{}
	for i, s := range []string{hh, mm, ss} {
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("time field %q: %w", s, err)
		}
		parts[i] = int(v)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), parts[0], parts[1], parts[2], 0, loc), nil
}

func parseDay(s string) (time.Time, error) {
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		return excelize.ExcelDateToTime(math.Floor(serial), false)
	}
	return time.Time{}, fmt.Errorf("unrecognized day %q", s)
}
