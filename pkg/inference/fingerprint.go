/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fingerprint.go
Description: Structural fingerprints of parse failures. A fingerprint ignores offsets, versions
and token text so that structurally similar failures share one cache entry and one oracle call.
*/

package inference

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kleascm/akaylee-parser/pkg/oracle"
	"github.com/kleascm/akaylee-parser/pkg/parser"
)

// Fingerprint returns a version-free digest of the failure's structure
func Fingerprint(fc parser.FailureContext) string {
	var b strings.Builder
	b.WriteString("reason=")
	b.WriteString(fc.Reason)
	b.WriteString("\nfound=")
	b.WriteString(fc.FoundTerminal)
	b.WriteString("\nrules=")
	b.WriteString(strings.Join(fc.AttemptedRules, ","))
	b.WriteString("\nexpected=")
	b.WriteString(strings.Join(fc.Expected, ","))
	b.WriteString("\npath=")
	b.WriteString(strings.Join(fc.RulePath, "/"))
	b.WriteString("\nwindow=")
	b.WriteString(strings.Join(fc.WindowTerminals(), " "))
	return digest(b.String())
}

// CacheKey combines a fingerprint with the digest of the grammar it was taken under
func CacheKey(fingerprint, grammarDigest string) string {
	return digest(fingerprint + "\x00" + grammarDigest)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Summarise converts a failure context into the bounded form sent to the oracle
func Summarise(fc parser.FailureContext) oracle.FailureSummary {
	window := make([]oracle.WindowToken, len(fc.Window))
	for i, t := range fc.Window {
		window[i] = oracle.WindowToken{
			Terminal: t.Terminal,
			Text:     string(t.Text),
			Offset:   t.Span.Start,
		}
	}
	return oracle.FailureSummary{
		Offset:         fc.Offset,
		Line:           fc.Line,
		Col:            fc.Col,
		Reason:         fc.Reason,
		Found:          fc.Found,
		AttemptedRules: append([]string(nil), fc.AttemptedRules...),
		Expected:       append([]string(nil), fc.Expected...),
		RulePath:       append([]string(nil), fc.RulePath...),
		Window:         window,
		Snippet:        fc.Snippet,
	}
}
