/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Logging system for the Akaylee Parser. Provides structured logging to the console
and, optionally, a timestamped log file with retention and zstd compression of older files.
Includes helpers for parser-specific events such as resolutions, grammar versions and cache activity.
*/

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
	LogLevelFatal   LogLevel = "fatal"
)

// LogFormat represents the logging format
type LogFormat string

const (
	LogFormatJSON   LogFormat = "json"
	LogFormatText   LogFormat = "text"
	LogFormatCustom LogFormat = "custom"
)

const filePrefix = "akaylee-parser_"

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	Level     LogLevel  `json:"level" mapstructure:"level"`
	Format    LogFormat `json:"format" mapstructure:"format"`
	OutputDir string    `json:"output_dir" mapstructure:"output_dir"` // empty logs to the console only
	MaxFiles  int       `json:"max_files" mapstructure:"max_files"`
	Timestamp bool      `json:"timestamp" mapstructure:"timestamp"`
	Caller    bool      `json:"caller" mapstructure:"caller"`
	Colors    bool      `json:"colors" mapstructure:"colors"`
	Compress  bool      `json:"compress" mapstructure:"compress"` // zstd-compress older log files

	Console io.Writer `json:"-" mapstructure:"-"` // defaults to stderr
	Fs      afero.Fs  `json:"-" mapstructure:"-"` // defaults to the OS filesystem
}

// DefaultLoggerConfig returns console-only text logging at info level
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:     LogLevelInfo,
		Format:    LogFormatText,
		MaxFiles:  10,
		Timestamp: true,
		Colors:    true,
	}
}

// Validate checks the LoggerConfig for invalid or missing values.
// Returns an error if the config is invalid, or nil if valid.
func (c *LoggerConfig) Validate() error {
	if c.OutputDir != "" && c.MaxFiles <= 0 {
		return fmt.Errorf("max_files must be positive when output_dir is set")
	}
	switch c.Format {
	case LogFormatJSON, LogFormatText, LogFormatCustom:
		// ok
	default:
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	switch c.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, LogLevelFatal:
		// ok
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	return nil
}

// Logger provides structured logging for the parser
type Logger struct {
	config    *LoggerConfig
	logger    *logrus.Logger
	fs        afero.Fs
	file      afero.File
	path      string
	startTime time.Time
}

// NewLogger creates a new logger instance. A nil config uses DefaultLoggerConfig.
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &Logger{
		config:    config,
		logger:    logrus.New(),
		fs:        config.Fs,
		startTime: time.Now(),
	}
	if l.fs == nil {
		l.fs = afero.NewOsFs()
	}
	if err := l.setup(); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}
	return l, nil
}

// setup configures the logger with the given configuration
func (l *Logger) setup() error {
	level, err := logrus.ParseLevel(string(l.config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.logger.SetLevel(level)
	l.logger.SetReportCaller(l.config.Caller)
	l.setFormatter()

	console := l.config.Console
	if console == nil {
		console = os.Stderr
	}
	l.logger.SetOutput(console)
	return l.setupFileOutput(console)
}

// setFormatter configures the log formatter
func (l *Logger) setFormatter() {
	prettyCaller := func(f *runtime.Frame) (string, string) {
		return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
	}
	switch l.config.Format {
	case LogFormatJSON:
		l.logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: prettyCaller,
		})
	case LogFormatCustom:
		l.logger.SetFormatter(&ParserFormatter{CustomFormatter: CustomFormatter{
			Timestamp: l.config.Timestamp,
			Caller:    l.config.Caller,
			Colors:    l.config.Colors,
		}})
	default:
		l.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    l.config.Timestamp,
			TimestampFormat:  time.RFC3339,
			ForceColors:      l.config.Colors,
			DisableColors:    !l.config.Colors,
			CallerPrettyfier: prettyCaller,
		})
	}
}

// setupFileOutput adds a timestamped log file next to the console output
func (l *Logger) setupFileOutput(console io.Writer) error {
	if l.config.OutputDir == "" {
		return nil
	}
	if err := l.fs.MkdirAll(l.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("%s%s.log", filePrefix, l.startTime.Format("2006-01-02_15-04-05.000"))
	path := filepath.Join(l.config.OutputDir, name)
	file, err := l.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	l.file = file
	l.path = path
	l.logger.SetOutput(io.MultiWriter(console, file))

	l.logger.WithFields(logrus.Fields{
		"start_time": l.startTime.Format(time.RFC3339),
		"log_file":   path,
		"level":      l.config.Level,
		"format":     l.config.Format,
	}).Debug("Logging system initialized")
	return nil
}

// Path returns the current log file, or "" when logging to the console only
func (l *Logger) Path() string {
	return l.path
}

// GetLogger returns the underlying logrus logger
func (l *Logger) GetLogger() *logrus.Logger {
	return l.logger
}

// Close closes the log file and applies the retention policy to older files
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	l.file = nil
	if err := l.cleanup(); err != nil {
		return fmt.Errorf("failed to cleanup log files: %w", err)
	}
	return nil
}

// cleanup compresses older log files when configured and removes the
// oldest ones beyond MaxFiles
func (l *Logger) cleanup() error {
	if l.config.Compress {
		files, err := afero.Glob(l.fs, filepath.Join(l.config.OutputDir, filePrefix+"*.log"))
		if err != nil {
			return err
		}
		for _, f := range files {
			if f == l.path {
				continue
			}
			if err := l.compressFile(f); err != nil {
				return err
			}
		}
	}

	files, err := afero.Glob(l.fs, filepath.Join(l.config.OutputDir, filePrefix+"*.log*"))
	if err != nil {
		return err
	}
	if len(files) <= l.config.MaxFiles {
		return nil
	}
	// names embed the start time, so lexical order is age order
	sort.Strings(files)
	for _, f := range files[:len(files)-l.config.MaxFiles] {
		if err := l.fs.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

// compressFile replaces path with a zstd-compressed copy
func (l *Logger) compressFile(path string) error {
	if strings.HasSuffix(path, ".zst") {
		return nil
	}
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(data, nil)
	if err := enc.Close(); err != nil {
		return err
	}
	if err := afero.WriteFile(l.fs, path+".zst", compressed, 0644); err != nil {
		return err
	}
	return l.fs.Remove(path)
}

// Parser-specific logging methods

// LogResolution logs a grammar repair applied for a failure
func (l *Logger) LogResolution(fingerprint string, rule string, attempt int, fields logrus.Fields) {
	if len(fingerprint) > 12 {
		fingerprint = fingerprint[:12]
	}
	l.logger.WithFields(fields).WithFields(logrus.Fields{
		"fingerprint": fingerprint,
		"rule":        rule,
		"attempt":     attempt,
	}).Info("Resolution applied")
}

// LogGrammarVersion logs one entry of the grammar version chain
func (l *Logger) LogGrammarVersion(version uint64, parent uint64, note string, fields logrus.Fields) {
	l.logger.WithFields(fields).WithFields(logrus.Fields{
		"version": version,
		"parent":  parent,
		"note":    note,
	}).Info("Grammar version")
}

// LogCacheEvent logs rule cache persistence and maintenance
func (l *Logger) LogCacheEvent(event string, path string, entries int, fields logrus.Fields) {
	l.logger.WithFields(fields).WithFields(logrus.Fields{
		"event":   event,
		"path":    path,
		"entries": entries,
	}).Info("Rule cache event")
}

// LogStats logs a statistics summary
func (l *Logger) LogStats(fields logrus.Fields) {
	l.logger.WithFields(fields).WithField("uptime", time.Since(l.startTime)).Info("Statistics update")
}
