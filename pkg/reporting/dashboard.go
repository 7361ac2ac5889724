/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dashboard.go
Description: HTML dashboard for parse runs. Summarises every document of a run with its
outcome, attempt history and failure, together with the grammar version chain and the
coordinator and inference statistics.
*/

package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"path/filepath"
	"time"

	"github.com/kleascm/akaylee-parser/pkg/core"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DashboardGenerator renders run summaries to index.html in a directory
type DashboardGenerator struct {
	fs        afero.Fs
	outputDir string
	logger    logrus.FieldLogger
	templates *template.Template
}

// DashboardData contains everything shown on the dashboard
type DashboardData struct {
	Title       string
	GeneratedAt time.Time
	Documents   []DocumentSummary
	Versions    []grammar.VersionInfo
	Grammar     string
	Engine      core.EngineStats
	Gateway     *inference.Stats
}

// DocumentSummary is one row of the documents table
type DocumentSummary struct {
	Name       string
	Code       string
	Outcome    core.Outcome
	Confidence float64
	Version    grammar.Version
	Duration   time.Duration
	Error      string
	Snippet    string
	Attempts   []core.Attempt
}

// Succeeded reports whether the document parsed
func (d DocumentSummary) Succeeded() bool {
	return d.Code == core.CodeNone
}

// NewDashboardData builds the dashboard data for a finished run
func NewDashboardData(title string, results []core.BatchResult, store *grammar.Store, engine core.EngineStats, gateway *inference.Stats) *DashboardData {
	data := &DashboardData{
		Title:       title,
		GeneratedAt: time.Now(),
		Versions:    store.History(),
		Grammar:     store.Latest().String(),
		Engine:      engine,
		Gateway:     gateway,
	}
	for _, res := range results {
		doc := DocumentSummary{Name: res.Name, Code: core.Classify(res.Err)}
		if res.Err != nil {
			doc.Error = res.Err.Error()
		}
		if r := res.Report; r != nil {
			doc.Outcome = r.Outcome
			doc.Confidence = r.Confidence
			doc.Version = r.FinalVersion
			doc.Duration = r.Duration
			doc.Attempts = r.History
			if r.Failure != nil {
				doc.Snippet = r.Failure.Snippet
			}
		}
		data.Documents = append(data.Documents, doc)
	}
	return data
}

// NewDashboardGenerator creates a generator writing below outputDir
func NewDashboardGenerator(fs afero.Fs, outputDir string, logger logrus.FieldLogger) *DashboardGenerator {
	return &DashboardGenerator{
		fs:        fs,
		outputDir: outputDir,
		logger:    logger,
		templates: template.Must(template.New("dashboard").Funcs(template.FuncMap{
			"pct": func(f float64) string { return fmt.Sprintf("%.0f%%", f*100) },
		}).Parse(dashboardTemplate)),
	}
}

// GenerateDashboard writes index.html and returns its path
func (dg *DashboardGenerator) GenerateDashboard(data *DashboardData) (string, error) {
	if err := dg.fs.MkdirAll(dg.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var buf bytes.Buffer
	if err := dg.templates.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	path := filepath.Join(dg.outputDir, "index.html")
	if err := afero.WriteFile(dg.fs, path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write dashboard: %w", err)
	}

	dg.logger.WithFields(logrus.Fields{
		"path":      path,
		"documents": len(data.Documents),
		"versions":  len(data.Versions),
	}).Info("Dashboard generated")
	return path, nil
}
