/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: prompt.go
Description: Renders oracle requests as chat prompts for language-model backed oracles.
*/

package oracle

import (
	"fmt"
	"strings"
)

const systemPrompt = `You repair grammars for a PEG parser.
Productions use this notation: names separated by spaces, 'quoted literals', groups (a | b),
and the postfix quantifiers ? * + written directly after an item. Rule names and terminal
names match [A-Za-z_][A-Za-z0-9_]*. A rule whose production starts with its own name must set
"iterative": true and the rule needs another definition that does not.
Definitions of a name are tried by descending priority, newest first. A new definition at an
existing priority must set "override": true.
Answer with one JSON object and nothing else:
{"rule": {"name": "...", "production": "...", "priority": 0, "override": false,
"iterative": false, "terminal_refs": ["names in the production that are terminals"]},
"terminals": [{"name": "...", "pattern": "RE2 regexp", "skip": false}],
"confidence": 0.0}
Only list terminals that do not exist yet. Patterns must not match the empty string.`

// SystemPrompt returns the fixed instructions sent with every request
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt renders the request body
func (r Request) UserPrompt() string {
	var b strings.Builder
	f := r.Failure
	fmt.Fprintf(&b, "The input failed to parse: %s at offset %d (line %d, col %d).\n", f.Reason, f.Offset, f.Line, f.Col)
	if f.Found != "" {
		fmt.Fprintf(&b, "Found: %s\n", f.Found)
	}
	if len(f.Expected) > 0 {
		fmt.Fprintf(&b, "Expected one of: %s\n", strings.Join(f.Expected, ", "))
	}
	fmt.Fprintf(&b, "Rules active at the failure: %s\n", strings.Join(f.AttemptedRules, ", "))
	if len(f.RulePath) > 0 {
		fmt.Fprintf(&b, "Rule path: %s\n", strings.Join(f.RulePath, " > "))
	}
	if len(f.Window) > 0 {
		b.WriteString("Tokens around the failure:\n")
		for _, t := range f.Window {
			fmt.Fprintf(&b, "  %d %s %q\n", t.Offset, t.Terminal, t.Text)
		}
	}
	fmt.Fprintf(&b, "Input near the failure: %q\n\n", f.Snippet)

	fmt.Fprintf(&b, "Current grammar (digest %s, start rule %s):\n", shortDigest(r.GrammarDigest), r.Start)
	for _, line := range r.Grammar {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(r.Notes) > 0 {
		b.WriteString("\nPrevious proposals were rejected:\n")
		for _, n := range r.Notes {
			b.WriteString("  - ")
			b.WriteString(n)
			b.WriteByte('\n')
		}
	}
	b.WriteString("\nPropose one rule that makes this input parse.")
	return b.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
