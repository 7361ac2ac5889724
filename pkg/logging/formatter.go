/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: formatter.go
Description: Custom log formatters for the Akaylee Parser. Provides compact, coloured,
structured output with fields in a stable order and parser-specific message prefixes.
*/

package logging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// CustomFormatter provides compact, structured logging output
type CustomFormatter struct {
	Timestamp bool
	Caller    bool
	Colors    bool
}

// Format formats a log entry
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return f.format(entry, "", f.formatValue), nil
}

func (f *CustomFormatter) format(entry *logrus.Entry, prefix string, value func(string, interface{}) string) []byte {
	var output strings.Builder

	if f.Timestamp {
		output.WriteString(f.paint(36, entry.Time.Format("2006-01-02 15:04:05.000")))
		output.WriteByte(' ')
	}

	output.WriteString(f.paint(f.getLevelColor(entry.Level), strings.ToUpper(entry.Level.String())))
	output.WriteByte(' ')

	if prefix != "" {
		output.WriteString(f.paint(35, "["+prefix+"]"))
		output.WriteByte(' ')
	}

	if f.Caller && entry.HasCaller() {
		output.WriteString(f.paint(33, fmt.Sprintf("[%s:%d]", entry.Caller.File, entry.Caller.Line)))
		output.WriteByte(' ')
	}

	output.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			output.WriteByte(' ')
			if f.Colors {
				fmt.Fprintf(&output, "\033[34m%s\033[0m=\033[32m%s\033[0m", k, value(k, entry.Data[k]))
			} else {
				fmt.Fprintf(&output, "%s=%s", k, value(k, entry.Data[k]))
			}
		}
	}

	output.WriteByte('\n')
	return []byte(output.String())
}

func (f *CustomFormatter) paint(color int, s string) string {
	if !f.Colors {
		return s
	}
	return fmt.Sprintf("\033[%dm%s\033[0m", color, s)
}

// getLevelColor returns the ANSI color code for a log level
func (f *CustomFormatter) getLevelColor(level logrus.Level) int {
	switch level {
	case logrus.InfoLevel:
		return 32 // green
	case logrus.WarnLevel:
		return 33 // yellow
	case logrus.ErrorLevel:
		return 31 // red
	case logrus.FatalLevel, logrus.PanicLevel:
		return 35 // magenta
	default:
		return 37 // white
	}
}

// formatValue formats a field value
func (f *CustomFormatter) formatValue(_ string, value interface{}) string {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format("15:04:05.000")
	case string:
		if len(v) > 60 {
			return v[:60] + "..."
		}
		return v
	case []byte:
		if len(v) > 20 {
			return fmt.Sprintf("[%d bytes]", len(v))
		}
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ParserFormatter adds a subsystem prefix and parser-aware field formatting
type ParserFormatter struct {
	CustomFormatter
}

// Format formats parser log entries
func (f *ParserFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return f.format(entry, f.getPrefix(entry.Message), f.formatParserValue), nil
}

// getPrefix returns a prefix based on the log message
func (f *ParserFormatter) getPrefix(message string) string {
	switch {
	case strings.Contains(message, "Grammar"):
		return "GRAMMAR"
	case strings.Contains(message, "cache"):
		return "CACHE"
	case strings.Contains(message, "Oracle"), strings.Contains(message, "Resolution"):
		return "ORACLE"
	case strings.Contains(message, "Coordinator"), strings.Contains(message, "advisory"):
		return "COORD"
	case strings.Contains(message, "Parse"), strings.Contains(message, "parse"):
		return "PARSE"
	case strings.Contains(message, "Statistics"):
		return "STATS"
	default:
		return ""
	}
}

// formatParserValue formats parser-specific field values
func (f *ParserFormatter) formatParserValue(key string, value interface{}) string {
	switch key {
	case "confidence", "threshold", "new_confidence":
		if c, ok := value.(float64); ok {
			return fmt.Sprintf("%.2f", c)
		}
	case "parse_id":
		if s, ok := value.(string); ok && len(s) > 8 {
			return s[:8]
		}
	case "fingerprint", "digest":
		if s, ok := value.(string); ok && len(s) > 12 {
			return s[:12]
		}
	}
	return f.formatValue(key, value)
}
