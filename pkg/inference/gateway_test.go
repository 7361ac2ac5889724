/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: gateway_test.go
Description: Tests for the inference gateway: cache reuse, refinement of rejected proposals,
error classification, oracle timeouts, single-flight and cancellation.
*/

package inference_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/kleascm/akaylee-parser/pkg/oracle"
	"github.com/kleascm/akaylee-parser/pkg/oracle/scripted"
	"github.com/kleascm/akaylee-parser/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const numberGrammar = `
start: Number
terminals:
  - name: digit
    pattern: '[0-9]'
rules:
  - name: Number
    production: digit+
`

var repair = oracle.Response{
	Rule: grammar.RuleSpec{
		Name:       "Number",
		Production: "digit+ ('a' digit+)*",
		Override:   true,
	},
	Confidence: 0.8,
}

func newStore(t *testing.T) *grammar.Store {
	t.Helper()
	def, err := grammar.ParseDefinition([]byte(numberGrammar))
	require.NoError(t, err)
	store, err := grammar.NewStore(def, nil)
	require.NoError(t, err)
	return store
}

func newGateway(t *testing.T, store *grammar.Store, o oracle.Oracle, opts inference.Options) *inference.Gateway {
	t.Helper()
	gw, err := inference.NewGateway(store, nil, o, opts, nil)
	require.NoError(t, err)
	return gw
}

func failureOf(t *testing.T, snap *grammar.Snapshot, input string) parser.FailureContext {
	t.Helper()
	_, err := parser.Parse(snap, []byte(input), parser.DefaultOptions())
	var pf *parser.ParseFailure
	require.True(t, errors.As(err, &pf), "expected a parse failure, got %v", err)
	return pf.Context
}

// TestResolveCachesProposal tests the oracle round trip and reuse of its result
func TestResolveCachesProposal(t *testing.T) {
	store := newStore(t)
	o := scripted.New(scripted.Step{Response: repair})
	gw := newGateway(t, store, o, inference.Options{})
	fc := failureOf(t, store.Latest(), "12a3")

	p, err := gw.Resolve(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, "Number -> digit+ ('a' digit+)* [override]", p.Rule.String())
	assert.Equal(t, inference.Fingerprint(fc), p.SourceFingerprint)
	assert.Equal(t, 0.8, p.Confidence)

	reqs := o.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2, reqs[0].Failure.Offset)
	assert.Equal(t, []string{"Number"}, reqs[0].Failure.AttemptedRules)
	assert.Equal(t, "Number", reqs[0].Start)
	assert.Contains(t, reqs[0].Grammar, "Number -> digit+")
	assert.Equal(t, fc.GrammarDigest, reqs[0].GrammarDigest)
	assert.Equal(t, 1, reqs[0].Attempt)

	v, err := store.Propose(fc.Version, p)
	require.NoError(t, err)
	snap, err := store.Get(v)
	require.NoError(t, err)
	_, err = parser.Parse(snap, []byte("12a3"), parser.DefaultOptions())
	require.NoError(t, err)

	again, err := gw.Resolve(context.Background(), fc)
	require.NoError(t, err)
	assert.Equal(t, p.Rule.String(), again.Rule.String())
	assert.Equal(t, 1, o.Calls())

	stats := gw.Stats()
	assert.Equal(t, uint64(2), stats.Resolutions)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, uint64(1), stats.CacheMisses)
	assert.Equal(t, uint64(1), stats.OracleCalls)
	assert.Equal(t, 1, stats.Cache.Size)
}

// TestResolveRefinesRejectedProposal tests the retry that carries the validation error
func TestResolveRefinesRejectedProposal(t *testing.T) {
	store := newStore(t)
	o := scripted.New(
		scripted.Step{Response: oracle.Response{Rule: grammar.RuleSpec{
			Name:       "Number",
			Production: "digit+ letter",
			Override:   true,
		}}},
		scripted.Step{Response: repair},
	)
	gw := newGateway(t, store, o, inference.Options{})
	fc := failureOf(t, store.Latest(), "12a3")

	p, err := gw.Resolve(context.Background(), fc, "earlier attempt failed")
	require.NoError(t, err)
	assert.Equal(t, "Number", p.Rule.Name)
	assert.Equal(t, 2, o.Calls())

	reqs := o.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"earlier attempt failed"}, reqs[0].Notes)
	require.Len(t, reqs[1].Notes, 2)
	assert.Contains(t, reqs[1].Notes[1], string(grammar.ReasonUndefinedSymbol))
	assert.Equal(t, 2, reqs[1].Attempt)
	assert.Equal(t, uint64(1), gw.Stats().Invalid)
}

// TestResolveUnresolvable tests that invalid replies exhaust the oracle budget
func TestResolveUnresolvable(t *testing.T) {
	store := newStore(t)
	o := scripted.New(scripted.Step{Text: "I think you need a letter rule"})
	gw := newGateway(t, store, o, inference.Options{})
	fc := failureOf(t, store.Latest(), "12a3")

	_, err := gw.Resolve(context.Background(), fc)
	require.Error(t, err)
	assert.ErrorIs(t, err, inference.ErrUnresolvable)
	assert.NotErrorIs(t, err, inference.ErrOracleUnavailable)
	assert.ErrorIs(t, err, oracle.ErrInvalidResponse)
	assert.NotContains(t, err.Error(), "letter rule")

	var ge *inference.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, inference.DefaultOracleCalls, ge.Attempts)
	assert.Equal(t, inference.Fingerprint(fc), ge.Fingerprint)
	assert.Equal(t, 2, o.Calls())
	assert.Equal(t, 0, gw.Cache().Len())
}

// TestResolveOracleUnavailable tests that transport failures are not retried here
func TestResolveOracleUnavailable(t *testing.T) {
	store := newStore(t)
	o := scripted.New(scripted.Step{Err: fmt.Errorf("%w: upstream down", oracle.ErrUnavailable)})
	gw := newGateway(t, store, o, inference.Options{})
	fc := failureOf(t, store.Latest(), "12a3")

	_, err := gw.Resolve(context.Background(), fc)
	assert.ErrorIs(t, err, inference.ErrOracleUnavailable)
	assert.Equal(t, 1, o.Calls())
	assert.Equal(t, uint64(1), gw.Stats().Unavailable)
}

// TestOracleTimeout tests that a slow oracle is cut off by OracleTimeout
func TestOracleTimeout(t *testing.T) {
	store := newStore(t)
	o := scripted.New(scripted.Step{Response: repair, Delay: time.Minute})
	gw := newGateway(t, store, o, inference.Options{OracleTimeout: 20 * time.Millisecond})
	fc := failureOf(t, store.Latest(), "12a3")

	start := time.Now()
	_, err := gw.Resolve(context.Background(), fc)
	assert.ErrorIs(t, err, inference.ErrOracleUnavailable)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 0, gw.Cache().Len())
}

// TestMinConfidence tests that low-confidence proposals are discarded
func TestMinConfidence(t *testing.T) {
	store := newStore(t)
	o := scripted.New(scripted.Step{Response: repair})
	gw := newGateway(t, store, o, inference.Options{MinConfidence: 0.9})
	fc := failureOf(t, store.Latest(), "12a3")

	_, err := gw.Resolve(context.Background(), fc)
	assert.ErrorIs(t, err, inference.ErrUnresolvable)
	reqs := o.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Notes[0], "below the minimum")
}

// TestSingleFlight tests that concurrent identical failures share one oracle call
func TestSingleFlight(t *testing.T) {
	store := newStore(t)
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (oracle.Response, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		select {
		case <-release:
			return repair, nil
		case <-ctx.Done():
			return oracle.Response{}, ctx.Err()
		}
	})
	gw := newGateway(t, store, o, inference.Options{})
	fc := failureOf(t, store.Latest(), "12a3")

	const n = 8
	var wg sync.WaitGroup
	results := make([]grammar.Proposal, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = gw.Resolve(context.Background(), fc)
		}(i)
	}
	<-entered
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Rule.String(), results[i].Rule.String())
	}
}

// TestCancellation tests that a cancelled resolution caches nothing and does
// not fail callers sharing its flight
func TestCancellation(t *testing.T) {
	t.Run("NoCacheWrite", func(t *testing.T) {
		store := newStore(t)
		o := scripted.New(scripted.Step{Response: repair, Delay: time.Minute})
		gw := newGateway(t, store, o, inference.Options{})
		fc := failureOf(t, store.Latest(), "12a3")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := gw.Resolve(ctx, fc)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, inference.ErrOracleUnavailable)
		assert.Equal(t, 0, gw.Cache().Len())
	})

	t.Run("FollowerRetries", func(t *testing.T) {
		store := newStore(t)
		var calls atomic.Int32
		started := make(chan struct{})
		o := oracle.Func(func(ctx context.Context, req oracle.Request) (oracle.Response, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-ctx.Done()
				return oracle.Response{}, ctx.Err()
			}
			return repair, nil
		})
		gw := newGateway(t, store, o, inference.Options{})
		fc := failureOf(t, store.Latest(), "12a3")

		ctx, cancel := context.WithCancel(context.Background())
		leader := make(chan error, 1)
		go func() {
			_, err := gw.Resolve(ctx, fc)
			leader <- err
		}()
		<-started

		type outcome struct {
			p   grammar.Proposal
			err error
		}
		follower := make(chan outcome, 1)
		go func() {
			p, err := gw.Resolve(context.Background(), fc)
			follower <- outcome{p, err}
		}()
		time.Sleep(20 * time.Millisecond)
		cancel()

		assert.ErrorIs(t, <-leader, context.Canceled)
		out := <-follower
		require.NoError(t, out.err)
		assert.Equal(t, "Number", out.p.Rule.Name)
		assert.Equal(t, int32(2), calls.Load())
		assert.Equal(t, 1, gw.Cache().Len())
	})
}

// TestNewGatewayRequiresCollaborators tests constructor validation
func TestNewGatewayRequiresCollaborators(t *testing.T) {
	store := newStore(t)
	_, err := inference.NewGateway(nil, nil, scripted.New(), inference.Options{}, nil)
	assert.Error(t, err)
	_, err = inference.NewGateway(store, nil, nil, inference.Options{}, nil)
	assert.Error(t, err)
}
