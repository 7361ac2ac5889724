/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report_writer.go
Description: Writes parse reports to a report directory as JSON files named by
timestamp, kind, grammar version and report id. Directories are created on demand.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ReportWriter writes JSON reports below Dir
type ReportWriter struct {
	Fs  afero.Fs
	Dir string
	Now func() time.Time
}

// NewReportWriter returns a writer on the OS filesystem
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{Fs: afero.NewOsFs(), Dir: dir, Now: time.Now}
}

// Write stores result under <Dir>/<kind>/ and returns the file path.
// The file is named like 2024-06-11_01-30-00.000_parse_v3_<id>.json.
func (w *ReportWriter) Write(kind string, version uint64, id string, result interface{}) (string, error) {
	dir := filepath.Join(w.Dir, kind)
	if err := w.Fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	name := fmt.Sprintf("%s_%s_v%d_%s.json", now().Format("2006-01-02_15-04-05.000"), kind, version, id)
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := afero.WriteFile(w.Fs, path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}
