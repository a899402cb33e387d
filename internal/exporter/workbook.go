package exporter

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
)

// Sheet names of the result workbook
const (
	SheetPolar          = "Polar"
	SheetRepresentative = "Representative"
	SheetWall           = "Wall correction"
)

// Workbook is the content of the result workbook
type Workbook struct {
	Polar           []segments.PolarPoint
	Representatives []segments.Representative
	// Wall adds the correction coefficients when set
	Wall     *aerodynamics.WallCorrection
	Location *time.Location
}

// WritePolarWorkbook renders wb as XLSX into w. Empty statistics are left
// as blank cells.
func WritePolarWorkbook(w io.Writer, wb Workbook) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetPolar); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	headers := PolarHeaders(wb.Polar)
	rows := make([][]interface{}, len(wb.Polar))
	names := polarQuantities(wb.Polar)
	for i, p := range wb.Polar {
		stats := make(map[string]segments.Stat, len(names))
		for _, ns := range p.Columns() {
			stats[ns.Name] = ns.Stat
		}
		row := []interface{}{
			p.Label,
			formatTime(p.Start, wb.Location),
			formatTime(p.End, wb.Location),
			p.Samples,
			p.WindOffSamples,
		}
		for _, name := range names {
			s, ok := stats[name]
			if !ok {
				row = append(row, nil, nil)
				continue
			}
			row = append(row, cellFloat(s.Mean), cellFloat(s.Std))
		}
		rows[i] = row
	}
	if err := writeSheet(f, SheetPolar, headers, rows, bold); err != nil {
		return err
	}

	if len(wb.Representatives) > 0 {
		if _, err := f.NewSheet(SheetRepresentative); err != nil {
			return err
		}
		rows := make([][]interface{}, len(wb.Representatives))
		for i, r := range wb.Representatives {
			rows[i] = []interface{}{
				r.Target.Alpha, r.Target.Re, r.Samples,
				cellFloat(r.Alpha), cellFloat(r.Cl), cellFloat(r.Cd), cellFloat(r.Cm),
			}
		}
		headers := []string{"target_alpha", "target_re", "samples", "alpha", "cl", "cd", "cm"}
		if err := writeSheet(f, SheetRepresentative, headers, rows, bold); err != nil {
			return err
		}
	}

	if wb.Wall != nil {
		if _, err := f.NewSheet(SheetWall); err != nil {
			return err
		}
		c := *wb.Wall
		rows := [][]interface{}{
			{"lambda", c.Lambda},
			{"sigma", c.Sigma},
			{"xi", c.Xi},
			{"lift_factor", c.LiftFactor()},
			{"moment_factor", c.MomentFactor()},
			{"alpha_factor", c.AlphaFactor()},
		}
		if err := writeSheet(f, SheetWall, []string{"coefficient", "value"}, rows, bold); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// ExportWorkbook writes the result workbook to name and returns the path
func (w *CSVWriter) ExportWorkbook(name string, wb Workbook) (string, error) {
	return w.create(name, func(out io.Writer) error {
		return WritePolarWorkbook(out, wb)
	})
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]interface{}, headerStyle int) error {
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("sheet %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+2, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// cellFloat maps non-finite values to blank cells
func cellFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
