/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dashboard_test.go
Description: Tests for the parse run dashboard.
*/

package reporting

import (
	"io"
	"testing"

	"github.com/kleascm/akaylee-parser/pkg/core"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDashboard(t *testing.T) {
	t.Parallel()

	def, err := grammar.ParseDefinition([]byte(`
start: Number
terminals:
  - name: digit
    pattern: '[0-9]'
rules:
  - name: Number
    production: digit+
`))
	require.NoError(t, err)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store, err := grammar.NewStore(def, logger)
	require.NoError(t, err)

	results := []core.BatchResult{
		{
			Name: "a.txt",
			Report: &core.Report{
				Outcome:    core.OutcomeSucceeded,
				Confidence: 1,
				History: []core.Attempt{
					{Number: 1, Outcome: core.OutcomeParsed},
				},
			},
		},
		{
			Name: "<stdin>",
			Err:  core.ErrAttemptsExhausted,
			Report: &core.Report{
				Outcome: core.OutcomeFailed,
				History: []core.Attempt{
					{Number: 1, Outcome: core.OutcomeResolved, Rule: "Number -> digit+ ('a' digit+)*"},
				},
			},
		},
	}
	data := NewDashboardData("Nightly run", results, store, core.EngineStats{Parses: 2, Successes: 1, Failures: 1}, &inference.Stats{OracleCalls: 3})
	require.Len(t, data.Documents, 2)
	assert.True(t, data.Documents[0].Succeeded())
	assert.False(t, data.Documents[1].Succeeded())
	assert.Equal(t, core.CodeAttemptsExceeded, data.Documents[1].Code)

	fs := afero.NewMemMapFs()
	path, err := NewDashboardGenerator(fs, "dash", logger).GenerateDashboard(data)
	require.NoError(t, err)
	assert.Equal(t, "dash/index.html", path)

	html, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "<title>Nightly run - Akaylee Parser</title>")
	assert.Contains(t, page, "&lt;stdin&gt;")
	assert.NotContains(t, page, "<stdin>")
	assert.Contains(t, page, "Number -&gt; digit+ (&#39;a&#39; digit+)*")
	assert.Contains(t, page, "attempts_exhausted")
	assert.Contains(t, page, "100%")
	assert.Contains(t, page, "Oracle calls")
	assert.Contains(t, page, "start Number")

	_, err = NewDashboardGenerator(afero.NewReadOnlyFs(fs), "other", logger).GenerateDashboard(data)
	assert.Error(t, err)
}
