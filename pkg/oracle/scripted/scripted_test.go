/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scripted_test.go
Description: Tests for the scripted oracle and its YAML script loader.
*/

package scripted_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/oracle"
	"github.com/kleascm/akaylee-parser/pkg/oracle/scripted"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReplay tests that steps are returned in order and the last one repeats
func TestReplay(t *testing.T) {
	boom := errors.New("boom")
	c := scripted.New(
		scripted.Step{Err: boom},
		scripted.Step{Text: "```json\n{\"rule\": {\"name\": \"A\", \"production\": \"'a'\"}}\n```"},
		scripted.Step{Response: oracle.Response{Rule: grammar.RuleSpec{Name: "B", Production: "'b'"}, Confidence: 1}},
	)
	ctx := context.Background()

	_, err := c.Propose(ctx, oracle.Request{Attempt: 1})
	assert.ErrorIs(t, err, boom)

	resp, err := c.Propose(ctx, oracle.Request{Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, "A", resp.Rule.Name)

	for i := 0; i < 2; i++ {
		resp, err = c.Propose(ctx, oracle.Request{Attempt: 3 + i})
		require.NoError(t, err)
		assert.Equal(t, "B", resp.Rule.Name)
	}

	assert.Equal(t, 4, c.Calls())
	reqs := c.Requests()
	require.Len(t, reqs, 4)
	assert.Equal(t, 4, reqs[3].Attempt)
}

// TestDelayHonoursCancellation tests that a slow step returns on cancellation
func TestDelayHonoursCancellation(t *testing.T) {
	c := scripted.New(scripted.Step{Delay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Propose(ctx, oracle.Request{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = scripted.New().Propose(context.Background(), oracle.Request{})
	assert.ErrorIs(t, err, oracle.ErrUnavailable)
}

// TestLoadFile tests reading a YAML script
func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	script := `
- error: upstream down
- response:
    rule:
      name: Number
      production: "digit+ ('a' digit+)*"
      override: true
    confidence: 0.9
  delay: 1ms
`
	require.NoError(t, afero.WriteFile(fs, "oracle.yaml", []byte(script), 0644))

	c, err := scripted.LoadFile(fs, "oracle.yaml")
	require.NoError(t, err)

	_, err = c.Propose(context.Background(), oracle.Request{})
	assert.ErrorIs(t, err, oracle.ErrUnavailable)

	resp, err := c.Propose(context.Background(), oracle.Request{})
	require.NoError(t, err)
	assert.Equal(t, "digit+ ('a' digit+)*", resp.Rule.Production)
	assert.True(t, resp.Rule.Override)
	assert.Equal(t, 0.9, resp.Confidence)

	require.NoError(t, afero.WriteFile(fs, "empty.yaml", []byte("- {}\n"), 0644))
	_, err = scripted.LoadFile(fs, "empty.yaml")
	assert.Error(t, err)
}
