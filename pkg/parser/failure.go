/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: failure.go
Description: Structured parse failures. A failure records the farthest position the engine
reached, the rules that were active there, the terminals it expected, a bounded window of
surrounding tokens and a bounded input snippet. It is what the inference gateway works from.
*/

package parser

import (
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/lexer"
)

// Failure reasons
const (
	ReasonUnexpected    = "unexpected input"
	ReasonLexical       = "unrecognised input"
	ReasonDepthExceeded = "nesting depth exceeded"
	ReasonLowConfidence = "low confidence match"
)

// LexErrorName is the terminal name reported for input the lexer could not recognise
const LexErrorName = "<lex-error>"

// FailureContext describes where and why a parse failed
type FailureContext struct {
	Offset         int             `json:"offset"`
	Line           int             `json:"line"`
	Col            int             `json:"col"`
	TokenIndex     int             `json:"token_index"`
	Reason         string          `json:"reason"`
	Found          string          `json:"found"`
	FoundTerminal  string          `json:"found_terminal"`
	AttemptedRules []string        `json:"attempted_rules"`
	Expected       []string        `json:"expected"`
	RulePath       []string        `json:"rule_path,omitempty"`
	Window         []lexer.Token   `json:"-"`
	Snippet        string          `json:"snippet"`
	Version        grammar.Version `json:"version"`
	GrammarDigest  string          `json:"grammar_digest"`
	Lex            *lexer.LexError `json:"lex,omitempty"`
}

// WindowTerminals returns the terminal names of the window tokens
func (fc *FailureContext) WindowTerminals() []string {
	out := make([]string, len(fc.Window))
	for i, t := range fc.Window {
		out[i] = t.Terminal
	}
	return out
}

// Describe renders a one-line, user-facing summary
func (fc *FailureContext) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at offset %d (line %d, col %d)", fc.Reason, fc.Offset, fc.Line, fc.Col)
	if fc.Found != "" {
		fmt.Fprintf(&b, ", found %s", fc.Found)
	}
	if len(fc.Expected) > 0 {
		fmt.Fprintf(&b, ", expected %s", strings.Join(fc.Expected, " | "))
	}
	if len(fc.AttemptedRules) > 0 {
		fmt.Fprintf(&b, "; attempted rules [%s]", strings.Join(fc.AttemptedRules, ", "))
	}
	return b.String()
}

// ParseFailure is returned when the grammar does not match the input
type ParseFailure struct {
	Context FailureContext
}

func (e *ParseFailure) Error() string {
	return "parse failed: " + e.Context.Describe()
}

// Unwrap exposes the lexical error, if the failure was caused by one
func (e *ParseFailure) Unwrap() error {
	if e.Context.Lex == nil {
		return nil
	}
	return e.Context.Lex
}
