package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/geometry"
)

// Tap table identifiers of the virtual trailing-edge taps and the comment
// marking a broken tap
const (
	VirtualTopID    = "virtual_top"
	VirtualBottomID = "virtual_bot"
	InoperativeMark = "inop"
)

var tapColumns = []string{"id", "channel", "position_mm", "x", "y", "nx", "ny"}

// TapLoader reads tap tables for a geometry cache. Arclength positions are
// normalized by the chord.
func TapLoader(chord float64) geometry.Loader {
	return func(ctx context.Context, source string) (*geometry.Airfoil, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return LoadTapTable(source, chord)
	}
}

// LoadTapTable reads a tap table file
func LoadTapTable(path string, chord float64) (*geometry.Airfoil, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(path)
		}
		return nil, apperrors.NewStorageError("open tap table", err).WithContext("file", path)
	}
	defer f.Close()

	a, err := ReadTapTable(f, path, chord)
	if err != nil {
		var ae *apperrors.AppError
		if errors.As(err, &ae) {
			return nil, ae.WithContext("file", path)
		}
		return nil, err
	}
	return a, nil
}

// ReadTapTable reads a CSV with the columns id, channel, position_mm, x, y,
// nx, ny and an optional comment. Rows are ordered along the contour from
// the upper trailing edge; the virtual_top and virtual_bot rows give the
// closure points. Rows commented inop are dropped.
func ReadTapTable(r io.Reader, source string, chord float64) (*geometry.Airfoil, error) {
	if chord <= 0 {
		return nil, apperrors.NewConfigError("chord must be positive", nil)
	}
	cr := csv.NewReader(skipBOM(r))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, apperrors.NewParsingError("read tap table header", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range tapColumns {
		if _, ok := col[name]; !ok {
			return nil, apperrors.NewParsingError("tap table column missing", nil).WithContext("column", name)
		}
	}
	commentCol, hasComment := col["comment"]

	var (
		taps        []geometry.Tap
		top, bottom *geometry.Tap
		dropped     int
	)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.NewParsingError("read tap table", err).WithContext("line", line)
		}
		if hasComment && commentCol < len(rec) && strings.EqualFold(strings.TrimSpace(rec[commentCol]), InoperativeMark) {
			dropped++
			continue
		}

		tp := geometry.Tap{
			ID:      field(rec, col["id"]),
			Channel: field(rec, col["channel"]),
		}
		nums := make([]float64, 5)
		for k, name := range tapColumns[2:] {
			v, err := strconv.ParseFloat(field(rec, col[name]), 64)
			if err != nil {
				return nil, apperrors.NewParsingError("invalid tap table value", err).
					WithContext("line", line).
					WithContext("column", name).
					WithContext("tap", tp.ID)
			}
			nums[k] = v
		}
		tp.S = nums[0] / (chord * 1000)
		tp.X, tp.Y, tp.NX, tp.NY = nums[1], nums[2], nums[3], nums[4]

		switch tp.ID {
		case VirtualTopID:
			tp := tp
			top = &tp
		case VirtualBottomID:
			tp := tp
			bottom = &tp
		default:
			if tp.Channel == "" {
				return nil, apperrors.NewParsingError("tap has no channel", nil).
					WithContext("line", line).WithContext("tap", tp.ID)
			}
			taps = append(taps, tp)
		}
	}
	if top == nil || bottom == nil {
		return nil, apperrors.NewGeometryError(
			fmt.Sprintf("tap table needs %s and %s rows", VirtualTopID, VirtualBottomID), nil)
	}

	a, err := geometry.NewAirfoil(source, taps, *top, *bottom)
	if err != nil {
		return nil, apperrors.NewGeometryError("invalid tap layout", err).
			WithContext("dropped_inop", dropped)
	}
	return a, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// LoadReferenceTable reads the digitized reference pressure distribution
func LoadReferenceTable(path string) ([]aerodynamics.ReferencePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(path)
		}
		return nil, apperrors.NewStorageError("open reference table", err).WithContext("file", path)
	}
	defer f.Close()

	pts, err := ReadReferenceTable(f)
	if err != nil {
		var ae *apperrors.AppError
		if errors.As(err, &ae) {
			return nil, ae.WithContext("file", path)
		}
		return nil, err
	}
	return pts, nil
}

// ReferenceHeaderLines is the number of title lines preceding the data
const ReferenceHeaderLines = 3

// ReadReferenceTable reads whitespace separated x, y, cp rows after three
// header lines
func ReadReferenceTable(r io.Reader) ([]aerodynamics.ReferencePoint, error) {
	sc := bufio.NewScanner(r)
	var out []aerodynamics.ReferencePoint
	line := 0
	for sc.Scan() {
		line++
		if line <= ReferenceHeaderLines {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, apperrors.NewParsingError("reference row needs x, y and cp", nil).WithContext("line", line)
		}
		var v [3]float64
		for k := 0; k < 3; k++ {
			f, err := strconv.ParseFloat(fields[k], 64)
			if err != nil {
				return nil, apperrors.NewParsingError("invalid reference value", err).WithContext("line", line)
			}
			v[k] = f
		}
		out = append(out, aerodynamics.ReferencePoint{X: v[0], Y: v[1], Cp: v[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.NewParsingError("read reference table", err)
	}
	if len(out) < 2 {
		return nil, apperrors.NewParsingError("reference table has fewer than two rows", nil)
	}
	return out, nil
}
