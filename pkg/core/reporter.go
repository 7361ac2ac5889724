/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: reporter.go
Description: Reporter interface and a logging implementation for coordinator events.
*/

package core

import (
	"github.com/sirupsen/logrus"
)

// Reporter receives coordinator events. Implementations must be safe for
// concurrent use because parses may run in parallel.
type Reporter interface {
	// OnAttempt is called for each entry appended to a report's history
	OnAttempt(r *Report, a Attempt)
	// OnReport is called once a parse has finished
	OnReport(r *Report)
}

// LoggerReporter logs coordinator events
type LoggerReporter struct {
	logger logrus.FieldLogger
}

// NewLoggerReporter creates a new LoggerReporter
func NewLoggerReporter(logger logrus.FieldLogger) *LoggerReporter {
	return &LoggerReporter{logger: logger}
}

// OnAttempt logs one attempt
func (r *LoggerReporter) OnAttempt(rep *Report, a Attempt) {
	entry := r.logger.WithFields(logrus.Fields{
		"parse_id": rep.ID.String(),
		"attempt":  a.Number,
		"version":  a.Version,
		"outcome":  a.Outcome,
		"offset":   a.Offset,
	})
	if a.Rule != "" {
		entry = entry.WithField("rule", a.Rule)
	}
	switch a.Outcome {
	case OutcomeFailed, OutcomeRolledBack:
		entry.WithField("error", a.Error).Warn("Attempt did not succeed")
	case OutcomeParseError:
		entry.Debug("Parse failed")
	default:
		entry.Debug("Attempt recorded")
	}
}

// OnReport logs the final outcome
func (r *LoggerReporter) OnReport(rep *Report) {
	entry := r.logger.WithFields(logrus.Fields{
		"parse_id":   rep.ID.String(),
		"outcome":    rep.Outcome,
		"attempts":   rep.Attempts,
		"version":    rep.FinalVersion,
		"confidence": rep.Confidence,
		"duration":   rep.Duration.String(),
	})
	if rep.Err != nil {
		entry.WithField("code", Classify(rep.Err)).Warn("Parse failed")
		return
	}
	entry.Info("Parse succeeded")
}
