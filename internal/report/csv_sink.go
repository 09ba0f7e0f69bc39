package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"conn-guard/internal/model"
)

var csvHeader = []string{"IP", "Antal"}

// CSVSink overwrites path with the latest window tally
type CSVSink struct {
	path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Name() string {
	return "csv"
}

// WriteReport writes to a temporary file and renames it over path, so readers
// never see a partial report
func (s *CSVSink) WriteReport(ctx context.Context, report *model.WindowReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, report); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace report file: %w", err)
	}
	return nil
}

// WriteCSV writes the IP,Antal header and one row per source
func WriteCSV(out io.Writer, report *model.WindowReport) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, entry := range report.Entries {
		if err := w.Write([]string{entry.Source, strconv.Itoa(entry.Count)}); err != nil {
			return fmt.Errorf("failed to write report entry: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return nil
}

// ReadCSV parses a report written by CSVSink
func ReadCSV(path string) ([]model.ReportEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) != 2 || rows[0][0] != csvHeader[0] || rows[0][1] != csvHeader[1] {
		return nil, fmt.Errorf("report %s has no %s,%s header", path, csvHeader[0], csvHeader[1])
	}

	entries := make([]model.ReportEntry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		count, err := strconv.Atoi(row[1])
		if err != nil {
			return nil, fmt.Errorf("bad count for %s: %w", row[0], err)
		}
		entries = append(entries, model.ReportEntry{Source: row[0], Count: count})
	}
	return entries, nil
}
