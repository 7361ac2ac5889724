/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report_writer_test.go
Description: Tests for the report writer.
*/

package utils

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportWriter(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	w := &ReportWriter{
		Fs:  fs,
		Dir: "reports",
		Now: func() time.Time { return time.Date(2024, 6, 11, 1, 30, 0, 0, time.UTC) },
	}

	path, err := w.Write("parse", 3, "9f1c", map[string]interface{}{"outcome": "succeeded"})
	require.NoError(t, err)
	assert.Equal(t, "reports/parse/2024-06-11_01-30-00.000_parse_v3_9f1c.json", path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"succeeded"}`, string(data))

	_, err = w.Write("parse", 3, "9f1d", func() {})
	assert.ErrorContains(t, err, "failed to marshal report")
}
