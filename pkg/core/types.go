/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: types.go
Description: Core types for the reparse coordinator: configuration, coordinator states,
attempt history, parse reports and engine statistics.
*/

package core

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/parser"
	"gopkg.in/guregu/null.v3"
)

// DefaultMaxResolutionAttempts bounds the resolutions performed for one input
const DefaultMaxResolutionAttempts = 5

// Config controls the coordinator
type Config struct {
	MaxResolutionAttempts int `json:"max_resolution_attempts"`
	// ProactiveInferenceThreshold enables advisory inference for successful parses
	// whose confidence is below it. Unset disables advisory inference.
	ProactiveInferenceThreshold null.Float     `json:"proactive_inference_threshold"`
	Parser                      parser.Options `json:"parser"`
}

// DefaultConfig returns the default coordinator configuration
func DefaultConfig() Config {
	return Config{
		MaxResolutionAttempts: DefaultMaxResolutionAttempts,
		Parser:                parser.DefaultOptions(),
	}
}

// State is a coordinator state
type State string

const (
	StateParsing        State = "parsing"
	StateFailed         State = "failed"
	StateResolving      State = "resolving"
	StateReparsing      State = "reparsing"
	StateSucceeded      State = "succeeded"
	StateFailedTerminal State = "failed_terminal"
)

// Outcome is the result of one attempt or of a whole parse
type Outcome string

const (
	OutcomeParsed     Outcome = "parsed"
	OutcomeParseError Outcome = "parse_failed"
	OutcomeResolved   Outcome = "resolved"
	OutcomeAdvisory   Outcome = "advisory"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
)

// Attempt is one entry of a report's history
type Attempt struct {
	Number      int             `json:"number"`
	Version     grammar.Version `json:"version"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Offset      int             `json:"offset"`
	Rule        string          `json:"rule,omitempty"`
	Outcome     Outcome         `json:"outcome"`
	Error       string          `json:"error,omitempty"`
	Duration    time.Duration   `json:"duration"`
}

// Report describes one call to Engine.Parse
type Report struct {
	ID             uuid.UUID              `json:"id"`
	Outcome        Outcome                `json:"outcome"`
	Attempts       int                    `json:"attempts"` // resolutions performed
	Failure        *parser.FailureContext `json:"failure,omitempty"`
	History        []Attempt              `json:"history"`
	InitialVersion grammar.Version        `json:"initial_version"`
	FinalVersion   grammar.Version        `json:"final_version"`
	Confidence     float64                `json:"confidence"`
	Stats          parser.Stats           `json:"stats"`
	StartedAt      time.Time              `json:"started_at"`
	Duration       time.Duration          `json:"duration"`
	Err            error                  `json:"-"`
	Error          string                 `json:"error,omitempty"`
}

func (r *Report) record(a Attempt) {
	a.Number = len(r.History) + 1
	r.History = append(r.History, a)
}

// EngineStats tracks coordinator activity.
// Uses atomic operations for thread-safe updates.
type EngineStats struct {
	Parses         int64 `json:"parses"`
	Successes      int64 `json:"successes"`
	Failures       int64 `json:"failures"`
	Resolutions    int64 `json:"resolutions"`
	Advisories     int64 `json:"advisories"`
	NonConvergence int64 `json:"non_convergence"`
}

func (s *EngineStats) incParses()         { atomic.AddInt64(&s.Parses, 1) }
func (s *EngineStats) incSuccesses()      { atomic.AddInt64(&s.Successes, 1) }
func (s *EngineStats) incFailures()       { atomic.AddInt64(&s.Failures, 1) }
func (s *EngineStats) incResolutions()    { atomic.AddInt64(&s.Resolutions, 1) }
func (s *EngineStats) incAdvisories()     { atomic.AddInt64(&s.Advisories, 1) }
func (s *EngineStats) incNonConvergence() { atomic.AddInt64(&s.NonConvergence, 1) }

func (s *EngineStats) snapshot() EngineStats {
	return EngineStats{
		Parses:         atomic.LoadInt64(&s.Parses),
		Successes:      atomic.LoadInt64(&s.Successes),
		Failures:       atomic.LoadInt64(&s.Failures),
		Resolutions:    atomic.LoadInt64(&s.Resolutions),
		Advisories:     atomic.LoadInt64(&s.Advisories),
		NonConvergence: atomic.LoadInt64(&s.NonConvergence),
	}
}
