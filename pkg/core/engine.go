/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Reparse coordinator. Drives the loop of parsing, resolving a failure into a
grammar update and reparsing against the latest grammar version until the input parses or a
terminal condition is reached. Every call returns a report with the attempt history.
*/

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/kleascm/akaylee-parser/pkg/parser"
	"github.com/sirupsen/logrus"
)

// Resolver turns a parse failure into a rule proposal.
// *inference.Gateway is the production implementation.
type Resolver interface {
	Resolve(ctx context.Context, fc parser.FailureContext, notes ...string) (grammar.Proposal, error)
}

// Engine coordinates parsing and grammar repair. It is safe for concurrent use;
// each Parse call keeps its own state.
type Engine struct {
	store    *grammar.Store
	resolver Resolver
	cfg      Config
	logger   logrus.FieldLogger
	stats    EngineStats

	mu        sync.RWMutex
	reporters []Reporter
}

// NewEngine creates a coordinator. A nil resolver disables repair, so parse
// failures are returned as they are.
func NewEngine(store *grammar.Store, resolver Resolver, cfg Config, logger logrus.FieldLogger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine requires a grammar store")
	}
	if cfg.MaxResolutionAttempts <= 0 {
		cfg.MaxResolutionAttempts = DefaultMaxResolutionAttempts
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// AddReporter registers a reporter for attempt and report events
func (e *Engine) AddReporter(r Reporter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reporters = append(e.reporters, r)
}

// Store returns the grammar store the engine updates
func (e *Engine) Store() *grammar.Store {
	return e.store
}

// Stats returns a snapshot of the engine counters
func (e *Engine) Stats() EngineStats {
	return e.stats.snapshot()
}

// Parse parses input starting from grammar version initial, repairing the
// grammar on failure. The report is never nil.
func (e *Engine) Parse(ctx context.Context, input []byte, initial grammar.Version) (*parser.Node, *Report, error) {
	e.stats.incParses()
	rep := &Report{
		ID:             uuid.New(),
		InitialVersion: initial,
		FinalVersion:   initial,
		StartedAt:      time.Now(),
	}
	s := &session{
		e:      e,
		ctx:    ctx,
		input:  input,
		report: rep,
		log: e.logger.WithFields(logrus.Fields{
			"parse_id": rep.ID.String(),
			"bytes":    len(input),
		}),
	}

	root, err := s.run(initial)
	rep.Duration = time.Since(rep.StartedAt)
	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Err = err
		rep.Error = err.Error()
		e.stats.incFailures()
		s.transition(StateFailedTerminal, logrus.Fields{
			"code":     Classify(err),
			"attempts": rep.Attempts,
		})
		e.notify(rep)
		return nil, rep, err
	}
	rep.Outcome = OutcomeSucceeded
	e.stats.incSuccesses()
	s.transition(StateSucceeded, logrus.Fields{
		"version":    rep.FinalVersion,
		"confidence": rep.Confidence,
		"attempts":   rep.Attempts,
	})
	e.notify(rep)
	return root, rep, nil
}

func (e *Engine) notify(rep *Report) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.reporters {
		r.OnReport(rep)
	}
}

func (e *Engine) notifyAttempt(rep *Report, a Attempt) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.reporters {
		r.OnAttempt(rep, a)
	}
}

// session is the state of one Parse call
type session struct {
	e      *Engine
	ctx    context.Context
	input  []byte
	report *Report
	log    logrus.FieldLogger
	state  State
}

func (s *session) transition(to State, fields logrus.Fields) {
	entry := s.log.WithFields(logrus.Fields{"from": s.state, "to": to})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Debug("Coordinator state change")
	s.state = to
}

func (s *session) attempt(a Attempt) {
	s.report.record(a)
	s.e.notifyAttempt(s.report, s.report.History[len(s.report.History)-1])
}

func (s *session) run(initial grammar.Version) (*parser.Node, error) {
	snap, err := s.e.store.Get(initial)
	if err != nil {
		return nil, err
	}

	var (
		lastFP      string
		notes       []string
		resolutions int
	)
	s.transition(StateParsing, logrus.Fields{"version": snap.Version()})
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}

		started := time.Now()
		res, err := parser.Parse(snap, s.input, s.e.cfg.Parser)
		s.report.FinalVersion = snap.Version()
		if err == nil {
			s.report.Failure = nil
			s.report.Stats = res.Stats
			s.report.Confidence = res.Confidence
			s.attempt(Attempt{
				Version:  snap.Version(),
				Offset:   len(s.input),
				Outcome:  OutcomeParsed,
				Duration: time.Since(started),
			})
			return s.advise(snap, res), nil
		}

		var pf *parser.ParseFailure
		if !errors.As(err, &pf) {
			return nil, err
		}
		fc := pf.Context
		s.report.Failure = &fc
		fp := inference.Fingerprint(fc)
		s.attempt(Attempt{
			Version:     snap.Version(),
			Fingerprint: fp,
			Offset:      fc.Offset,
			Outcome:     OutcomeParseError,
			Error:       fc.Describe(),
			Duration:    time.Since(started),
		})
		s.transition(StateFailed, logrus.Fields{
			"version":     snap.Version(),
			"offset":      fc.Offset,
			"fingerprint": fp[:12],
		})

		switch {
		case s.e.resolver == nil:
			return nil, err
		case fp == lastFP:
			s.e.stats.incNonConvergence()
			return nil, fmt.Errorf("%w at offset %d: %w", ErrNonConvergence, fc.Offset, err)
		case resolutions >= s.e.cfg.MaxResolutionAttempts:
			return nil, fmt.Errorf("%w after %d resolution(s): %w", ErrAttemptsExhausted, resolutions, err)
		}

		resolutions++
		s.report.Attempts = resolutions
		s.transition(StateResolving, logrus.Fields{
			"attempt":     resolutions,
			"fingerprint": fp[:12],
		})
		started = time.Now()
		p, err := s.e.resolver.Resolve(s.ctx, fc, notes...)
		if err != nil {
			s.attempt(Attempt{
				Version:     snap.Version(),
				Fingerprint: fp,
				Offset:      fc.Offset,
				Outcome:     OutcomeFailed,
				Error:       err.Error(),
				Duration:    time.Since(started),
			})
			return nil, fmt.Errorf("%w at offset %d (attempted rules %s)", err, fc.Offset, strings.Join(fc.AttemptedRules, ", "))
		}
		s.e.stats.incResolutions()

		v, err := s.e.store.Propose(snap.Version(), p)
		if err != nil {
			s.attempt(Attempt{
				Version:     snap.Version(),
				Fingerprint: fp,
				Offset:      fc.Offset,
				Rule:        p.Rule.String(),
				Outcome:     OutcomeFailed,
				Error:       err.Error(),
				Duration:    time.Since(started),
			})
			return nil, fmt.Errorf("grammar update rejected at offset %d (attempted rules %s): %w", fc.Offset, strings.Join(fc.AttemptedRules, ", "), err)
		}
		s.attempt(Attempt{
			Version:     v,
			Fingerprint: fp,
			Offset:      fc.Offset,
			Rule:        p.Rule.String(),
			Outcome:     OutcomeResolved,
			Duration:    time.Since(started),
		})
		notes = append(notes, fmt.Sprintf("attempt %d added %s for a failure at offset %d", resolutions, p.Rule.String(), fc.Offset))
		lastFP = fp

		snap = s.e.store.Latest()
		s.transition(StateReparsing, logrus.Fields{"version": snap.Version()})
	}
}

// advise runs advisory inference for a low-confidence parse. The successful
// tree is only replaced by a strictly more confident one; otherwise the
// published proposal is rolled back.
func (s *session) advise(snap *grammar.Snapshot, res *parser.Result) *parser.Node {
	threshold := s.e.cfg.ProactiveInferenceThreshold
	if !threshold.Valid || s.e.resolver == nil || res.Confidence >= threshold.Float64 {
		return res.Root
	}
	s.e.stats.incAdvisories()
	fc := lowConfidenceContext(snap, s.input, res, s.e.cfg.Parser)
	log := s.log.WithFields(logrus.Fields{
		"version":    snap.Version(),
		"confidence": res.Confidence,
		"threshold":  threshold.Float64,
	})
	log.Info("Low confidence parse, requesting advisory rule")

	started := time.Now()
	advisory := Attempt{
		Version:     snap.Version(),
		Fingerprint: inference.Fingerprint(fc),
		Outcome:     OutcomeAdvisory,
	}
	p, err := s.e.resolver.Resolve(s.ctx, fc)
	if err != nil {
		advisory.Error = err.Error()
		advisory.Duration = time.Since(started)
		s.attempt(advisory)
		log.WithField("error", err.Error()).Warn("Advisory inference failed")
		return res.Root
	}
	advisory.Rule = p.Rule.String()

	before := s.e.store.Latest().Version()
	v, err := s.e.store.Propose(snap.Version(), p)
	if err != nil {
		advisory.Error = err.Error()
		advisory.Duration = time.Since(started)
		s.attempt(advisory)
		return res.Root
	}
	next, err := s.e.store.Get(v)
	if err != nil {
		advisory.Error = err.Error()
		s.attempt(advisory)
		return res.Root
	}
	better, err := parser.Parse(next, s.input, s.e.cfg.Parser)
	if err != nil || better.Confidence <= res.Confidence {
		advisory.Outcome = OutcomeRolledBack
		if err != nil {
			advisory.Error = err.Error()
		}
		// Only undo a version this call published, and only while it is still latest.
		if v > before {
			if rb, ok, rerr := s.e.store.RollbackIfLatest(v, next.Parent()); rerr == nil && ok {
				advisory.Version = rb
			}
		}
		advisory.Duration = time.Since(started)
		s.attempt(advisory)
		log.Info("Advisory rule did not improve the parse")
		return res.Root
	}

	advisory.Version = v
	advisory.Duration = time.Since(started)
	s.attempt(advisory)
	s.report.FinalVersion = v
	s.report.Confidence = better.Confidence
	s.report.Stats = better.Stats
	log.WithField("new_confidence", better.Confidence).Info("Advisory rule accepted")
	return better.Root
}

// lowConfidenceContext describes a successful but ambiguous parse for the oracle
func lowConfidenceContext(snap *grammar.Snapshot, input []byte, res *parser.Result, opts parser.Options) parser.FailureContext {
	seen := map[string]bool{}
	res.Root.Walk(func(n *parser.Node) bool {
		seen[n.Rule] = true
		return true
	})
	rules := make([]string, 0, len(seen))
	for name := range seen {
		rules = append(rules, name)
	}
	sort.Strings(rules)

	limit := opts.SnippetBytes
	if limit <= 0 {
		limit = parser.DefaultSnippetBytes
	}
	limit *= 2
	if limit > len(input) {
		limit = len(input)
	}
	return parser.FailureContext{
		Line:           1,
		Col:            1,
		Reason:         parser.ReasonLowConfidence,
		Found:          fmt.Sprintf("confidence %.2f", res.Confidence),
		AttemptedRules: rules,
		RulePath:       []string{snap.Start()},
		Snippet:        string(input[:limit]),
		Version:        snap.Version(),
		GrammarDigest:  snap.Digest(),
	}
}
