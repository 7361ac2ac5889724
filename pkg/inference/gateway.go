/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: gateway.go
Description: Inference gateway. Turns a parse failure into a validated rule proposal by
consulting the rule cache first and the oracle on a miss. Oracle output is untrusted: it is
decoded, parsed and validated against the latest grammar, with one refined retry that carries
the rejection reason. Concurrent identical failures share a single oracle call.
*/

package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/kleascm/akaylee-parser/pkg/cache"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/oracle"
	"github.com/kleascm/akaylee-parser/pkg/parser"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultOracleTimeout   = 30 * time.Second
	DefaultOracleCalls     = 2
	DefaultMaxGrammarLines = 256
	DefaultMaxNotes        = 8
)

// Options tunes the gateway
type Options struct {
	// OracleTimeout bounds each oracle call in addition to the caller's context
	OracleTimeout time.Duration
	// MinConfidence discards proposals the oracle itself rates lower
	MinConfidence float64
	// OracleCalls is the number of oracle calls per resolution, refinements included
	OracleCalls int
	// MaxGrammarLines bounds the grammar outline sent with a request
	MaxGrammarLines int
	// MaxNotes bounds the prior-attempt notes sent with a request
	MaxNotes int
}

// DefaultOptions returns the default gateway options
func DefaultOptions() Options {
	return Options{
		OracleTimeout:   DefaultOracleTimeout,
		OracleCalls:     DefaultOracleCalls,
		MaxGrammarLines: DefaultMaxGrammarLines,
		MaxNotes:        DefaultMaxNotes,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.OracleTimeout <= 0 {
		o.OracleTimeout = d.OracleTimeout
	}
	if o.OracleCalls <= 0 {
		o.OracleCalls = d.OracleCalls
	}
	if o.MaxGrammarLines <= 0 {
		o.MaxGrammarLines = d.MaxGrammarLines
	}
	if o.MaxNotes <= 0 {
		o.MaxNotes = d.MaxNotes
	}
	return o
}

// Stats reports gateway activity
type Stats struct {
	Resolutions uint64      `json:"resolutions"`
	CacheHits   uint64      `json:"cache_hits"`
	CacheMisses uint64      `json:"cache_misses"`
	OracleCalls uint64      `json:"oracle_calls"`
	Invalid     uint64      `json:"invalid"`
	Unavailable uint64      `json:"unavailable"`
	Shared      uint64      `json:"shared"`
	Cache       cache.Stats `json:"cache"`
}

// Gateway is safe for concurrent use
type Gateway struct {
	store  *grammar.Store
	cache  *cache.Cache
	oracle oracle.Oracle
	opts   Options
	logger logrus.FieldLogger
	group  singleflight.Group

	resolutions atomic.Uint64
	hits        atomic.Uint64
	misses      atomic.Uint64
	calls       atomic.Uint64
	invalid     atomic.Uint64
	unavailable atomic.Uint64
	shared      atomic.Uint64
}

// NewGateway creates a gateway. A nil cache is replaced by one of default capacity.
func NewGateway(store *grammar.Store, c *cache.Cache, o oracle.Oracle, opts Options, logger logrus.FieldLogger) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("inference gateway requires a grammar store")
	}
	if o == nil {
		return nil, errors.New("inference gateway requires an oracle")
	}
	if c == nil {
		var err error
		if c, err = cache.New(cache.DefaultCapacity); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Gateway{
		store:  store,
		cache:  c,
		oracle: o,
		opts:   opts.withDefaults(),
		logger: logger,
	}, nil
}

// Cache returns the rule cache used by the gateway
func (g *Gateway) Cache() *cache.Cache {
	return g.cache
}

// Resolve returns a proposal expected to repair fc. Notes describe earlier
// attempts of the same parse and are passed to the oracle.
func (g *Gateway) Resolve(ctx context.Context, fc parser.FailureContext, notes ...string) (grammar.Proposal, error) {
	g.resolutions.Add(1)
	fp := Fingerprint(fc)
	key := CacheKey(fp, fc.GrammarDigest)
	log := g.logger.WithFields(logrus.Fields{
		"fingerprint": fp[:12],
		"offset":      fc.Offset,
		"version":     fc.Version,
	})

	if p, ok := g.cache.Lookup(key, g.store.Latest()); ok {
		g.hits.Add(1)
		log.WithField("rule", p.Rule.Name).Debug("Rule cache hit")
		return p, nil
	}
	g.misses.Add(1)

	for {
		ch := g.group.DoChan(key, func() (interface{}, error) {
			return g.infer(ctx, fc, fp, key, notes, log)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return grammar.Proposal{}, ctx.Err()
		case res = <-ch:
		}
		if res.Shared {
			g.shared.Add(1)
		}
		if res.Err != nil {
			// the leader's context ended but ours did not
			if isContextErr(res.Err) && ctx.Err() == nil {
				log.Debug("Shared resolution was cancelled, retrying")
				continue
			}
			return grammar.Proposal{}, res.Err
		}
		return res.Val.(grammar.Proposal), nil
	}
}

// infer runs the oracle exchange for one cache key
func (g *Gateway) infer(ctx context.Context, fc parser.FailureContext, fp, key string, notes []string, log logrus.FieldLogger) (interface{}, error) {
	if p, ok := g.cache.Lookup(key, g.store.Latest()); ok {
		return p, nil
	}

	notes = append([]string(nil), notes...)
	summary := Summarise(fc)
	var lastErr error
	calls := 0
	for calls < g.opts.OracleCalls {
		calls++
		snap := g.store.Latest()
		req := oracle.Request{
			Failure:       summary,
			GrammarDigest: snap.Digest(),
			Start:         snap.Start(),
			Grammar:       g.outline(snap),
			Notes:         g.boundNotes(notes),
			Attempt:       calls,
		}

		resp, err := g.call(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, oracle.ErrInvalidResponse) {
				g.invalid.Add(1)
				lastErr = err
				log.WithField("attempt", calls).Info("Oracle reply could not be decoded")
				notes = append(notes, fmt.Sprintf("attempt %d: reply was not a valid rule document: %v", calls, err))
				continue
			}
			g.unavailable.Add(1)
			log.WithFields(logrus.Fields{
				"attempt": calls,
				"error":   err.Error(),
			}).Warn("Oracle unavailable")
			return nil, &GatewayError{Kind: ErrOracleUnavailable, Fingerprint: fp, Attempts: calls, Err: err}
		}

		p, err := g.normalise(snap, resp, fp)
		if err != nil {
			g.invalid.Add(1)
			lastErr = err
			log.WithFields(logrus.Fields{
				"attempt": calls,
				"rule":    resp.Rule.Name,
				"error":   err.Error(),
			}).Info("Oracle proposal rejected")
			notes = append(notes, fmt.Sprintf("attempt %d: proposal rejected: %v", calls, err))
			continue
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.cache.Insert(key, p)
		log.WithFields(logrus.Fields{
			"attempt":    calls,
			"rule":       p.Rule.String(),
			"confidence": p.Confidence,
		}).Info("Oracle proposal accepted")
		return p, nil
	}
	return nil, &GatewayError{Kind: ErrUnresolvable, Fingerprint: fp, Attempts: calls, Err: lastErr}
}

// call invokes the oracle under OracleTimeout. Running out of that budget,
// as opposed to the caller's context ending, counts as unavailability.
func (g *Gateway) call(ctx context.Context, req oracle.Request) (oracle.Response, error) {
	g.calls.Add(1)
	callCtx, cancel := context.WithTimeout(ctx, g.opts.OracleTimeout)
	defer cancel()

	resp, err := g.oracle.Propose(callCtx, req)
	if err != nil && ctx.Err() == nil && callCtx.Err() != nil {
		return oracle.Response{}, fmt.Errorf("%w: no reply within %s", oracle.ErrUnavailable, g.opts.OracleTimeout)
	}
	return resp, err
}

// normalise turns a response into a proposal valid against snap
func (g *Gateway) normalise(snap *grammar.Snapshot, resp oracle.Response, fp string) (grammar.Proposal, error) {
	conf := resp.Confidence
	switch {
	case math.IsNaN(conf) || conf < 0:
		conf = 0
	case conf > 1:
		conf = 1
	}
	if conf < g.opts.MinConfidence {
		return grammar.Proposal{}, fmt.Errorf("confidence %.2f is below the minimum %.2f", conf, g.opts.MinConfidence)
	}

	known := make(map[string]bool, len(resp.Terminals)+len(resp.Rule.TerminalRefs))
	for _, t := range resp.Terminals {
		known[t.Name] = true
	}
	for _, name := range resp.Rule.TerminalRefs {
		known[name] = true
	}
	rule, err := resp.Rule.Build(func(name string) bool {
		return known[name] || snap.IsTerminal(name)
	})
	if err != nil {
		return grammar.Proposal{}, err
	}

	p := grammar.Proposal{
		Rule:              rule,
		Terminals:         append([]grammar.TerminalDef(nil), resp.Terminals...),
		Confidence:        conf,
		SourceFingerprint: fp,
	}
	if err := grammar.Validate(snap, p); err != nil {
		return grammar.Proposal{}, err
	}
	return p, nil
}

func (g *Gateway) outline(snap *grammar.Snapshot) []string {
	lines := snap.Outline()
	if len(lines) <= g.opts.MaxGrammarLines {
		return lines
	}
	out := append([]string(nil), lines[:g.opts.MaxGrammarLines]...)
	return append(out, fmt.Sprintf("... %d more lines omitted", len(lines)-g.opts.MaxGrammarLines))
}

func (g *Gateway) boundNotes(notes []string) []string {
	if len(notes) > g.opts.MaxNotes {
		notes = notes[len(notes)-g.opts.MaxNotes:]
	}
	return append([]string(nil), notes...)
}

// Stats returns a snapshot of the gateway counters
func (g *Gateway) Stats() Stats {
	return Stats{
		Resolutions: g.resolutions.Load(),
		CacheHits:   g.hits.Load(),
		CacheMisses: g.misses.Load(),
		OracleCalls: g.calls.Load(),
		Invalid:     g.invalid.Load(),
		Unavailable: g.unavailable.Load(),
		Shared:      g.shared.Load(),
		Cache:       g.cache.Stats(),
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
