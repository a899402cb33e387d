// Package exporter writes the results of a reduction.
//
// CSVWriter resolves relative names under the output directory and writes
// CSV files with an optional UTF-8 BOM for Excel. The polar table and the
// enriched frame have writers on io.Writer as well, so the HTTP layer can
// stream them:
//
//	w := exporter.NewCSVWriter(cfg.Paths.OutputDir, logger)
//	path, err := w.ExportPolar("campaign_polar.csv", res.Polar)
//
// WritePolarWorkbook renders the polar points and representative
// reductions into an XLSX workbook.
package exporter
