/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fingerprint_test.go
Description: Tests for failure fingerprints, cache keys and oracle summaries.
*/

package inference_test

import (
	"testing"

	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/kleascm/akaylee-parser/pkg/lexer"
	"github.com/kleascm/akaylee-parser/pkg/parser"
	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	base := parser.FailureContext{
		Offset:         2,
		Reason:         parser.ReasonUnexpected,
		Found:          `ident "x"`,
		FoundTerminal:  "ident",
		AttemptedRules: []string{"Item"},
		Expected:       []string{"number"},
		Window:         []lexer.Token{{Terminal: "'['", Text: []byte("[")}},
		Version:        0,
		GrammarDigest:  "aaaa",
	}

	moved := base
	moved.Offset = 40
	moved.Line = 3
	moved.Found = `ident "y"`
	moved.Version = 7
	moved.Snippet = "something else"
	assert.Equal(t, inference.Fingerprint(base), inference.Fingerprint(moved))

	other := base
	other.Expected = []string{"number", "'['"}
	assert.NotEqual(t, inference.Fingerprint(base), inference.Fingerprint(other))

	fp := inference.Fingerprint(base)
	assert.Len(t, fp, 64)
	assert.NotEqual(t, inference.CacheKey(fp, "aaaa"), inference.CacheKey(fp, "bbbb"))
	assert.Equal(t, inference.CacheKey(fp, "aaaa"), inference.CacheKey(fp, "aaaa"))
}

func TestSummarise(t *testing.T) {
	fc := parser.FailureContext{
		Offset:         5,
		Line:           1,
		Col:            6,
		Reason:         parser.ReasonUnexpected,
		Found:          `number "3"`,
		AttemptedRules: []string{"List"},
		Expected:       []string{"','", "']'"},
		Window: []lexer.Token{
			{Terminal: "number", Text: []byte("2"), Span: lexer.Span{Start: 4, End: 5}},
			{Terminal: "number", Text: []byte("3"), Span: lexer.Span{Start: 6, End: 7}},
		},
		Snippet: "[1, 2 3]",
	}
	s := inference.Summarise(fc)
	assert.Equal(t, 5, s.Offset)
	assert.Equal(t, 6, s.Col)
	assert.Equal(t, []string{"','", "']'"}, s.Expected)
	assert.Equal(t, "3", s.Window[1].Text)
	assert.Equal(t, 6, s.Window[1].Offset)
	assert.Equal(t, "[1, 2 3]", s.Snippet)

	fc.Expected[0] = "changed"
	assert.Equal(t, "','", s.Expected[0])
}
