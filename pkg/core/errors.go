/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Terminal coordinator errors plus classification codes for logs and
user hints for the command line.
*/

package core

import (
	"context"
	"errors"

	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/kleascm/akaylee-parser/pkg/lexer"
	"github.com/kleascm/akaylee-parser/pkg/parser"
)

var (
	// ErrNonConvergence is returned when a resolution did not change the failure
	ErrNonConvergence = errors.New("grammar repair did not converge")
	// ErrAttemptsExhausted is returned when MaxResolutionAttempts resolutions did not produce a parse
	ErrAttemptsExhausted = errors.New("resolution attempts exhausted")
)

// Error codes returned by Classify
const (
	CodeNone             = "ok"
	CodeCancelled        = "cancelled"
	CodeLex              = "lex_error"
	CodeParse            = "parse_error"
	CodeInvalidRule      = "invalid_rule"
	CodeUnknownVersion   = "unknown_version"
	CodeOracle           = "oracle_unavailable"
	CodeUnresolvable     = "unresolvable"
	CodeNonConvergence   = "non_convergence"
	CodeAttemptsExceeded = "attempts_exhausted"
	CodeInternal         = "internal"
)

// Classify maps an error to a short code
func Classify(err error) string {
	var (
		lexErr *lexer.LexError
		pf     *parser.ParseFailure
		ve     *grammar.ValidationError
	)
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.Is(err, ErrNonConvergence):
		return CodeNonConvergence
	case errors.Is(err, ErrAttemptsExhausted):
		return CodeAttemptsExceeded
	case errors.Is(err, inference.ErrOracleUnavailable):
		return CodeOracle
	case errors.Is(err, inference.ErrUnresolvable):
		return CodeUnresolvable
	case errors.Is(err, grammar.ErrUnknownVersion):
		return CodeUnknownVersion
	case errors.As(err, &ve):
		return CodeInvalidRule
	case errors.As(err, &lexErr):
		return CodeLex
	case errors.As(err, &pf):
		return CodeParse
	default:
		return CodeInternal
	}
}

// Hint returns a suggestion for the user, or "" when there is none
func Hint(err error) string {
	switch Classify(err) {
	case CodeOracle:
		return "check the oracle endpoint and API key, or raise --oracle-timeout"
	case CodeUnresolvable:
		return "the oracle kept proposing invalid rules; extend the grammar by hand"
	case CodeNonConvergence:
		return "the proposed rule did not change the failure; inspect the attempt history"
	case CodeAttemptsExceeded:
		return "raise --max-attempts or extend the grammar by hand"
	case CodeLex, CodeParse:
		return "enable an oracle with --oracle to repair the grammar automatically"
	case CodeCancelled:
		return "the operation was cancelled or timed out"
	default:
		return ""
	}
}
