/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: oracle.go
Description: Contract between the inference gateway and an external rule oracle. Requests carry a
bounded summary of a parse failure and an outline of the active grammar; responses carry a
single proposed rule in production notation. Responses are untrusted and validated by the caller.
*/

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-parser/pkg/grammar"
)

var (
	// ErrUnavailable reports that the oracle could not be reached or refused the request
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrInvalidResponse reports a response that could not be decoded
	ErrInvalidResponse = errors.New("oracle response invalid")
)

// Oracle proposes grammar rules for parse failures
type Oracle interface {
	Propose(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to the Oracle interface
type Func func(ctx context.Context, req Request) (Response, error)

// Propose calls f
func (f Func) Propose(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// WindowToken is one token near the failure position
type WindowToken struct {
	Terminal string `json:"terminal"`
	Text     string `json:"text"`
	Offset   int    `json:"offset"`
}

// FailureSummary is the structured description of a failure sent to the oracle
type FailureSummary struct {
	Offset         int           `json:"offset"`
	Line           int           `json:"line"`
	Col            int           `json:"col"`
	Reason         string        `json:"reason"`
	Found          string        `json:"found"`
	AttemptedRules []string      `json:"attempted_rules"`
	Expected       []string      `json:"expected"`
	RulePath       []string      `json:"rule_path,omitempty"`
	Window         []WindowToken `json:"window"`
	Snippet        string        `json:"snippet"`
}

// Request is one oracle call
type Request struct {
	Failure       FailureSummary `json:"failure"`
	GrammarDigest string         `json:"grammar_digest"`
	Start         string         `json:"start"`
	Grammar       []string       `json:"grammar"`
	Notes         []string       `json:"notes,omitempty"`
	Attempt       int            `json:"attempt"`
}

// Response is a proposed rule
type Response struct {
	Rule       grammar.RuleSpec      `json:"rule"`
	Terminals  []grammar.TerminalDef `json:"terminals,omitempty"`
	Confidence float64               `json:"confidence"`
}

// DecodeResponse parses oracle output text. Markdown code fences around the
// JSON document are removed first.
func DecodeResponse(text string) (Response, error) {
	raw := unwrapFenced(strings.TrimSpace(text))
	if raw == "" || raw == "null" {
		return Response{}, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Rule.Name == "" || strings.TrimSpace(resp.Rule.Production) == "" {
		return Response{}, fmt.Errorf("%w: rule name and production are required", ErrInvalidResponse)
	}
	return resp, nil
}

// unwrapFenced removes a surrounding ```lang ... ``` block
func unwrapFenced(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return s
	}
	s = s[i+1:]
	if j := strings.LastIndex(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}
