package exporter

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/ingest"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

var start = time.Date(2024, 6, 18, 8, 0, 0, 0, time.UTC)

func testPolar() []segments.PolarPoint {
	te := segments.Stat{Mean: -0.012, Std: 0.001}
	return []segments.PolarPoint{
		{
			Label: "alpha2", Start: start, End: start.Add(30 * time.Second),
			Samples: 300, WindOffSamples: 0,
			Alpha: segments.Stat{Mean: 2, Std: 0.01},
			Re:    segments.Stat{Mean: 1e6, Std: 1e3},
			Cl:    segments.Stat{Mean: 0.45, Std: 0.02},
			CmrTE: &te,
		},
		{
			Label: "empty", Start: start.Add(time.Minute), End: start.Add(2 * time.Minute),
			Alpha: segments.Stat{Mean: math.NaN(), Std: math.NaN()},
		},
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		input    float64
		expected string
	}{
		{0, "0"},
		{123, "123"},
		{-0.005678, "-0.005678"},
		{1.5e6, "1.5e+06"},
		{math.NaN(), "NaN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatFloat(tt.input))
	}
}

func TestWritePolarCSV(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WritePolarCSV(&buf, testPolar(), berlin))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	header := records[0]
	assert.Equal(t, []string{"label", "start", "end", "samples", "wind_off_samples", "alpha_mean", "alpha_std"}, header[:7])
	assert.Equal(t, "cmr_TE_std", header[len(header)-1])
	assert.NotContains(t, header, "cmr_LE_mean")

	row := records[1]
	assert.Equal(t, "alpha2", row[0])
	assert.Equal(t, "2024-06-18T10:00:00+02:00", row[1])
	assert.Equal(t, "300", row[3])
	assert.Equal(t, "2", row[5])
	assert.Equal(t, "-0.012", row[len(row)-2])

	// the empty segment has no hinge moment and NaN statistics
	empty := records[2]
	assert.Equal(t, "NaN", empty[5])
	assert.Equal(t, "", empty[len(empty)-1])
}

func TestWriteFrameCSV_ReadBack(t *testing.T) {
	index := []time.Time{start, start.Add(100 * time.Millisecond), start.Add(200 * time.Millisecond)}
	f, err := timeseries.NewFrame(index,
		timeseries.Column{Name: "static_1", Values: []float64{0.1, -0.25, 1.0 / 3}},
		timeseries.Column{Name: aerodynamics.ColUCAS, Values: []float64{20, math.NaN(), 21.5}},
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrameCSV(&buf, f, nil))

	s, err := ingest.ReadChannelGroup(&buf, "frame")
	require.NoError(t, err)
	assert.Equal(t, []string{"static_1", aerodynamics.ColUCAS}, s.Channels)
	require.Equal(t, 3, s.Len())
	assert.True(t, s.Time[1].Equal(index[1]))

	v, ok := s.Channel("static_1")
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, -0.25, 1.0 / 3}, v)
	cas, _ := s.Channel(aerodynamics.ColUCAS)
	assert.True(t, math.IsNaN(cas[1]))
}

func TestCSVWriter_Export(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(filepath.Join(dir, "out"), nil)

	path, err := w.ExportPolar(filepath.Join("campaign", "polar.csv"), testPolar(), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "campaign", "polar.csv"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, utf8BOM, content[:3])
	assert.Contains(t, string(content[3:]), "label,start,end")

	abs := filepath.Join(dir, "frame.csv")
	f, err := timeseries.NewFrame([]time.Time{start}, timeseries.Column{Name: "cl", Values: []float64{0.5}})
	require.NoError(t, err)
	path, err = w.ExportFrame(abs, f, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, abs, path)
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Time,cl\n2024-06-18T08:00:00Z,0.5\n", string(content))
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	w := NewCSVWriter(t.TempDir(), nil)
	path, err := w.WriteCSV("plain.csv", WriteOptions{
		Headers: []string{"a", "b"},
		Records: [][]string{{"1", "x,y"}},
	})
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\"x,y\"\n", string(content))
}

func TestCSVWriter_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	w := NewCSVWriter(blocker, nil)
	_, err := w.ExportPolar("polar.csv", testPolar(), nil)
	assert.Error(t, err)
}

func TestWritePolarWorkbook(t *testing.T) {
	wall := aerodynamics.WallCorrection{Lambda: 0.1, Sigma: 0.01, Xi: -0.001}
	wb := Workbook{
		Polar: testPolar(),
		Representatives: []segments.Representative{
			{Target: segments.Target{Alpha: 2, Re: 1e6}, Samples: 12, Alpha: 2.01, Cl: 0.44, Cd: 0.009, Cm: -0.05},
		},
		Wall:     &wall,
		Location: time.UTC,
	}

	var buf bytes.Buffer
	require.NoError(t, WritePolarWorkbook(&buf, wb))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetPolar, SheetRepresentative, SheetWall}, f.GetSheetList())

	rows, err := f.GetRows(SheetPolar)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, PolarHeaders(wb.Polar), rows[0])
	assert.Equal(t, "alpha2", rows[1][0])
	assert.Equal(t, "0.45", rows[1][13])

	// NaN statistics become blank cells
	alpha, err := f.GetCellValue(SheetPolar, "F3")
	require.NoError(t, err)
	assert.Empty(t, alpha)

	rep, err := f.GetRows(SheetRepresentative)
	require.NoError(t, err)
	require.Len(t, rep, 2)
	assert.Equal(t, "12", rep[1][2])

	lambda, err := f.GetCellValue(SheetWall, "B2")
	require.NoError(t, err)
	assert.Equal(t, "0.1", lambda)
}

func TestWritePolarWorkbook_PolarOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePolarWorkbook(&buf, Workbook{Polar: testPolar()[:1]}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{SheetPolar}, f.GetSheetList())
}
