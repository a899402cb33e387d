package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/infrastructure"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes CSV files below an output directory
type CSVWriter struct {
	dir    string
	logger *slog.Logger
}

// NewCSVWriter creates a writer rooted at dir
func NewCSVWriter(dir string, logger *slog.Logger) *CSVWriter {
	return &CSVWriter{dir: dir, logger: infrastructure.WithComponent(logger, "exporter")}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes a complete file and returns its full path
func (w *CSVWriter) WriteCSV(name string, options WriteOptions) (string, error) {
	return w.create(name, func(out io.Writer) error {
		if options.BOMPrefix {
			if _, err := out.Write(utf8BOM); err != nil {
				return fmt.Errorf("failed to write BOM: %w", err)
			}
		}
		return writeRecords(out, options.Headers, options.Records)
	})
}

// create opens name below the output directory, runs write on it and
// closes the file
func (w *CSVWriter) create(name string, write func(io.Writer) error) (string, error) {
	fullPath := w.resolvePath(name)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", apperrors.NewStorageError("create output directory", err).WithContext("file", fullPath)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return "", apperrors.NewStorageError("create output file", err).WithContext("file", fullPath)
	}

	if err := write(file); err != nil {
		file.Close()
		return "", apperrors.NewStorageError("write output file", err).WithContext("file", fullPath)
	}
	if err := file.Close(); err != nil {
		return "", apperrors.NewStorageError("close output file", err).WithContext("file", fullPath)
	}

	w.logger.Info("output written", slog.String("file", fullPath))
	return fullPath, nil
}

// resolvePath keeps absolute paths and places relative ones in the output
// directory
func (w *CSVWriter) resolvePath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(w.dir, name)
}

func writeRecords(out io.Writer, headers []string, records [][]string) error {
	writer := csv.NewWriter(out)
	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
