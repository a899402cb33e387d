package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/ingest"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Leading columns of the polar table
var polarKeyHeaders = []string{"label", "start", "end", "samples", "wind_off_samples"}

// polarQuantities returns the reduced quantities present in any point, in
// output order. Hinge moments are listed when at least one point has them.
func polarQuantities(points []segments.PolarPoint) []string {
	names := []string{
		aerodynamics.ColAlpha, aerodynamics.ColRe, aerodynamics.ColUCAS, aerodynamics.ColUTAS,
		aerodynamics.ColCl, aerodynamics.ColCm, aerodynamics.ColCd, aerodynamics.ColCdp,
	}
	var le, te bool
	for _, p := range points {
		le = le || p.CmrLE != nil
		te = te || p.CmrTE != nil
	}
	if le {
		names = append(names, aerodynamics.ColCmrLE)
	}
	if te {
		names = append(names, aerodynamics.ColCmrTE)
	}
	return names
}

// PolarHeaders returns the header row of the polar table
func PolarHeaders(points []segments.PolarPoint) []string {
	headers := append([]string(nil), polarKeyHeaders...)
	for _, name := range polarQuantities(points) {
		headers = append(headers, name+"_mean", name+"_std")
	}
	return headers
}

// PolarRecords renders one row per point with times in loc. Quantities a
// point lacks are left empty.
func PolarRecords(points []segments.PolarPoint, loc *time.Location) [][]string {
	names := polarQuantities(points)
	records := make([][]string, len(points))
	for i, p := range points {
		stats := make(map[string]segments.Stat, len(names))
		for _, ns := range p.Columns() {
			stats[ns.Name] = ns.Stat
		}
		rec := []string{
			p.Label,
			formatTime(p.Start, loc),
			formatTime(p.End, loc),
			formatInt(p.Samples),
			formatInt(p.WindOffSamples),
		}
		for _, name := range names {
			s, ok := stats[name]
			if !ok {
				rec = append(rec, "", "")
				continue
			}
			rec = append(rec, formatFloat(s.Mean), formatFloat(s.Std))
		}
		records[i] = rec
	}
	return records
}

// WritePolarCSV writes the polar table to w
func WritePolarCSV(w io.Writer, points []segments.PolarPoint, loc *time.Location) error {
	return writeRecords(w, PolarHeaders(points), PolarRecords(points, loc))
}

// WriteFrameCSV writes every row of the frame, the time column first. The
// output is readable as a channel group.
func WriteFrameCSV(w io.Writer, f *timeseries.Frame, loc *time.Location) error {
	names := f.Columns()
	cols := make([][]float64, len(names))
	for i, name := range names {
		cols[i], _ = f.Column(name)
	}

	writer := csv.NewWriter(w)
	header := append([]string{ingest.TimeColumn}, names...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	record := make([]string, len(header))
	for r, t := range f.Index() {
		record[0] = formatTime(t, loc)
		for c, v := range cols {
			record[c+1] = formatFloat(v[r])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportPolar writes the polar table to name with a BOM and returns the path
func (w *CSVWriter) ExportPolar(name string, points []segments.PolarPoint, loc *time.Location) (string, error) {
	return w.WriteCSV(name, WriteOptions{
		Headers:   PolarHeaders(points),
		Records:   PolarRecords(points, loc),
		BOMPrefix: true,
	})
}

// ExportFrame streams the enriched frame to name and returns the path
func (w *CSVWriter) ExportFrame(name string, f *timeseries.Frame, loc *time.Location) (string, error) {
	return w.create(name, func(out io.Writer) error {
		return WriteFrameCSV(out, f, loc)
	})
}
