/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: snapshot.go
Description: Immutable grammar snapshots. A snapshot is the complete rule and terminal set of
one grammar version. Once published it never changes; updates always produce a new snapshot.
*/

package grammar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Snapshot is an immutable grammar version
type Snapshot struct {
	version   Version
	parent    Version
	start     string
	note      string
	createdAt time.Time

	terminals []TerminalDef
	termIndex map[string]int
	rules     []Rule            // insertion order
	byName    map[string][]Rule // resolution order
	literals  []string
	digest    string

	compileOnce sync.Once
	compiled    interface{}
	compileErr  error
}

// newSnapshot builds a snapshot; rules must already carry sequence numbers
func newSnapshot(start string, terminals []TerminalDef, rules []Rule) *Snapshot {
	s := &Snapshot{
		start:     start,
		terminals: append([]TerminalDef(nil), terminals...),
		termIndex: make(map[string]int, len(terminals)),
		rules:     append([]Rule(nil), rules...),
		byName:    make(map[string][]Rule),
		createdAt: time.Now(),
	}
	for i, t := range s.terminals {
		s.termIndex[t.Name] = i
	}
	lits := map[string]bool{}
	for _, r := range s.rules {
		s.byName[r.Name] = append(s.byName[r.Name], r)
		for _, l := range r.literals() {
			lits[l] = true
		}
	}
	for _, alts := range s.byName {
		sortResolutionOrder(alts)
	}
	s.literals = sortedSet(lits)
	s.digest = digestOf(s.String())
	return s
}

// sortResolutionOrder orders definitions by descending priority, newest first on ties
func sortResolutionOrder(alts []Rule) {
	sort.SliceStable(alts, func(i, j int) bool {
		if alts[i].Priority != alts[j].Priority {
			return alts[i].Priority > alts[j].Priority
		}
		return alts[i].seq > alts[j].seq
	})
}

func digestOf(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Version returns the snapshot's version id
func (s *Snapshot) Version() Version { return s.version }

// Parent returns the parent version; version 0 has no parent and reports 0
func (s *Snapshot) Parent() Version { return s.parent }

// Start returns the start rule name
func (s *Snapshot) Start() string { return s.start }

// Note describes how the snapshot was produced
func (s *Snapshot) Note() string { return s.note }

// CreatedAt returns the publication time
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Digest returns the sha256 of the canonical grammar text. Two snapshots with
// the same digest parse every input identically.
func (s *Snapshot) Digest() string { return s.digest }

// Terminals returns the named terminals in declaration order
func (s *Snapshot) Terminals() []TerminalDef {
	return append([]TerminalDef(nil), s.terminals...)
}

// Terminal looks up a named terminal
func (s *Snapshot) Terminal(name string) (TerminalDef, bool) {
	i, ok := s.termIndex[name]
	if !ok {
		return TerminalDef{}, false
	}
	return s.terminals[i], true
}

// IsTerminal reports whether name is a named terminal; usable as a TerminalResolver
func (s *Snapshot) IsTerminal(name string) bool {
	_, ok := s.termIndex[name]
	return ok
}

// Literals returns the distinct literal texts used by the rules, sorted
func (s *Snapshot) Literals() []string {
	return append([]string(nil), s.literals...)
}

// Rules returns every rule in insertion order
func (s *Snapshot) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// RuleNames returns the defined non-terminal names, sorted
func (s *Snapshot) RuleNames() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasRule reports whether name has at least one definition
func (s *Snapshot) HasRule(name string) bool {
	return len(s.byName[name]) > 0
}

// Alternatives returns the definitions of name in resolution order.
// The returned slice must not be modified.
func (s *Snapshot) Alternatives(name string) []Rule {
	return s.byName[name]
}

// Compiled returns the value produced by build for this snapshot, invoking
// build at most once. Used to attach derived artefacts such as a compiled lexer.
func (s *Snapshot) Compiled(build func(*Snapshot) (interface{}, error)) (interface{}, error) {
	s.compileOnce.Do(func() {
		s.compiled, s.compileErr = build(s)
	})
	return s.compiled, s.compileErr
}

// String renders the canonical grammar text
func (s *Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "start %s\n", s.start)
	for _, t := range s.terminals {
		fmt.Fprintf(&b, "terminal %s = /%s/", t.Name, t.Pattern)
		if t.Skip {
			b.WriteString(" [skip]")
		}
		b.WriteByte('\n')
	}
	for _, name := range s.RuleNames() {
		for _, r := range s.byName[name] {
			b.WriteString(r.String())
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Outline returns the grammar as one line per terminal and rule, for oracle requests
func (s *Snapshot) Outline() []string {
	out := make([]string, 0, len(s.terminals)+len(s.byName))
	for _, t := range s.terminals {
		out = append(out, fmt.Sprintf("terminal %s = /%s/", t.Name, t.Pattern))
	}
	for _, name := range s.RuleNames() {
		for _, r := range s.byName[name] {
			out = append(out, r.String())
		}
	}
	return out
}
