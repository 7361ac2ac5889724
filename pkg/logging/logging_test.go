/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logging_test.go
Description: Tests for the logging system: config validation, file output and retention,
formatters and the parser-specific helpers.
*/

package logging

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultLoggerConfig().Validate())

	cfg := DefaultLoggerConfig()
	cfg.Format = "xml"
	assert.ErrorContains(t, cfg.Validate(), "unsupported log format")

	cfg = DefaultLoggerConfig()
	cfg.Level = "loud"
	assert.ErrorContains(t, cfg.Validate(), "unsupported log level")

	cfg = DefaultLoggerConfig()
	cfg.OutputDir = "logs"
	cfg.MaxFiles = 0
	assert.ErrorContains(t, cfg.Validate(), "max_files")

	_, err := NewLogger(cfg)
	assert.Error(t, err)
}

func TestLoggerFileOutput(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	var console bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.OutputDir = "logs"
	cfg.Format = LogFormatJSON
	cfg.Console = &console
	cfg.Fs = fs

	l, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, l.Path())

	l.LogGrammarVersion(2, 1, "proposal Number", nil)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	data, err := afero.ReadFile(fs, l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Grammar version"`)
	assert.Contains(t, string(data), `"note":"proposal Number"`)
	assert.Equal(t, string(data), console.String())
}

func TestLoggerRetention(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("%s2020-01-0%d_00-00-00.000.log", filePrefix, i)
		require.NoError(t, afero.WriteFile(fs, filepath.Join("logs", name), []byte("old entry\n"), 0644))
	}

	cfg := DefaultLoggerConfig()
	cfg.OutputDir = "logs"
	cfg.MaxFiles = 3
	cfg.Compress = true
	cfg.Console = &bytes.Buffer{}
	cfg.Fs = fs

	l, err := NewLogger(cfg)
	require.NoError(t, err)
	l.GetLogger().Info("current run")
	require.NoError(t, l.Close())

	files, err := afero.Glob(fs, filepath.Join("logs", filePrefix+"*"))
	require.NoError(t, err)
	require.Len(t, files, 3)

	var compressed []string
	for _, f := range files {
		if strings.HasSuffix(f, ".zst") {
			compressed = append(compressed, f)
		}
	}
	assert.Len(t, compressed, 2)
	assert.NotContains(t, files, filepath.Join("logs", filePrefix+"2020-01-01_00-00-00.000.log.zst"))
	assert.Contains(t, files, l.Path())

	raw, err := afero.ReadFile(fs, compressed[len(compressed)-1])
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "old entry\n", string(plain))
}

func TestParserHelpers(t *testing.T) {
	t.Parallel()

	l, err := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: LogFormatText, Console: &bytes.Buffer{}})
	require.NoError(t, err)
	hook := logtest.NewLocal(l.GetLogger())

	l.LogResolution(strings.Repeat("ab", 32), "Number -> digit+", 2, logrus.Fields{"version": 1})
	l.LogGrammarVersion(1, 0, "proposal Number", nil)
	l.LogCacheEvent("save", "rules.zst", 4, nil)
	l.LogStats(logrus.Fields{"parses": 3})

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	assert.Equal(t, "Resolution applied", entries[0].Message)
	assert.Equal(t, "abababababab", entries[0].Data["fingerprint"])
	assert.Equal(t, 1, entries[0].Data["version"])
	assert.Equal(t, uint64(0), entries[1].Data["parent"])
	assert.Equal(t, "Rule cache event", entries[2].Message)
	assert.Equal(t, 4, entries[2].Data["entries"])
	assert.Equal(t, 3, entries[3].Data["parses"])
	assert.Contains(t, entries[3].Data, "uptime")
}

func TestParserFormatter(t *testing.T) {
	t.Parallel()

	f := &ParserFormatter{}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Level:   logrus.InfoLevel,
		Message: "Resolution applied",
		Data: logrus.Fields{
			"rule":        "Number -> digit+",
			"confidence":  0.8125,
			"fingerprint": strings.Repeat("f", 64),
			"attempt":     2,
		},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t,
		"INFO [ORACLE] Resolution applied attempt=2 confidence=0.81 fingerprint=ffffffffffff rule=Number -> digit+\n",
		string(out))

	entry.Message = "Grammar version"
	entry.Data = logrus.Fields{"payload": []byte(strings.Repeat("x", 30))}
	out, err = f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "INFO [GRAMMAR] Grammar version payload=[30 bytes]\n", string(out))

	plain := &CustomFormatter{}
	entry.Message = "Grammar version"
	out, err = plain.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "INFO Grammar version payload=[30 bytes]\n", string(out))
}
