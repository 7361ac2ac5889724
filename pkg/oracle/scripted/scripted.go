/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scripted.go
Description: Deterministic oracle that replays a fixed sequence of responses. Used by tests and
for offline runs of the CLI; every call and request is recorded.
*/

package scripted

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kleascm/akaylee-parser/pkg/oracle"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Step is one scripted reply. Exactly one of Err, Text and Response is used,
// in that order of precedence.
type Step struct {
	Response oracle.Response
	Text     string        // raw oracle output, decoded like a model reply
	Err      error         // returned as is
	Delay    time.Duration // simulated latency; honours cancellation
}

// Client replays its steps in order; the last step repeats once the script is exhausted
type Client struct {
	steps []Step
	calls atomic.Int64

	mu       sync.Mutex
	requests []oracle.Request
}

// New creates a client from steps
func New(steps ...Step) *Client {
	return &Client{steps: steps}
}

// Propose implements oracle.Oracle
func (c *Client) Propose(ctx context.Context, req oracle.Request) (oracle.Response, error) {
	n := c.calls.Add(1)
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if len(c.steps) == 0 {
		return oracle.Response{}, fmt.Errorf("%w: script is empty", oracle.ErrUnavailable)
	}
	idx := int(n - 1)
	if idx >= len(c.steps) {
		idx = len(c.steps) - 1
	}
	step := c.steps[idx]

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return oracle.Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return oracle.Response{}, err
	}
	switch {
	case step.Err != nil:
		return oracle.Response{}, step.Err
	case step.Text != "":
		return oracle.DecodeResponse(step.Text)
	default:
		return step.Response, nil
	}
}

// Calls returns the number of Propose calls made
func (c *Client) Calls() int {
	return int(c.calls.Load())
}

// Requests returns a copy of the recorded requests
func (c *Client) Requests() []oracle.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]oracle.Request(nil), c.requests...)
}

type fileStep struct {
	Response *oracle.Response `yaml:"response"`
	Text     string           `yaml:"text"`
	Error    string           `yaml:"error"`
	Delay    time.Duration    `yaml:"delay"`
}

// LoadFile reads a YAML script: a list of steps with a response, raw text or
// error message each.
func LoadFile(fs afero.Fs, path string) (*Client, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oracle script: %w", err)
	}
	var raw []fileStep
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode oracle script: %w", err)
	}
	steps := make([]Step, 0, len(raw))
	for i, rs := range raw {
		var step Step
		switch {
		case rs.Error != "":
			step.Err = fmt.Errorf("%w: %s", oracle.ErrUnavailable, rs.Error)
		case rs.Text != "":
			step.Text = rs.Text
		case rs.Response != nil:
			step.Response = *rs.Response
		default:
			return nil, fmt.Errorf("oracle script step %d is empty", i)
		}
		step.Delay = rs.Delay
		steps = append(steps, step)
	}
	return New(steps...), nil
}
