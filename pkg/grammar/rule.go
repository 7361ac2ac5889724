/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: rule.go
Description: Rule, terminal and proposal types for the Akaylee Parser grammar store. Rules are
owned by the store; proposals are candidate rules produced by the inference gateway that
only enter the grammar after structural validation.
*/

package grammar

import (
	"fmt"
	"sort"
	"strings"
)

// Version identifies an immutable grammar snapshot
type Version uint64

// Rule is one definition of a non-terminal. Several rules may share a name;
// they are tried in resolution order (priority, then recency).
type Rule struct {
	Name       string
	Production []Symbol
	Priority   int
	Override   bool // permits a second definition at an existing priority
	Iterative  bool // permits direct left recursion

	seq uint64
}

// Seq returns the insertion sequence number assigned by the store
func (r Rule) Seq() uint64 {
	return r.seq
}

// String renders the rule as "Name -> production" followed by its attributes
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteString(" -> ")
	b.WriteString(FormatProduction(r.Production))
	if r.Priority != 0 {
		fmt.Fprintf(&b, " [priority=%d]", r.Priority)
	}
	if r.Override {
		b.WriteString(" [override]")
	}
	if r.Iterative {
		b.WriteString(" [iterative]")
	}
	return b.String()
}

// SameDefinition reports whether two rules define the same production at the same priority
func (r Rule) SameDefinition(o Rule) bool {
	return r.Name == o.Name &&
		r.Priority == o.Priority &&
		r.Iterative == o.Iterative &&
		FormatProduction(r.Production) == FormatProduction(o.Production)
}

// References returns the sorted non-terminal and terminal names used by the rule
func (r Rule) References() (nonterms, terms []string) {
	nt := map[string]bool{}
	tt := map[string]bool{}
	walkSymbols(r.Production, func(sym Symbol) {
		switch s := sym.(type) {
		case NonTerminal:
			nt[s.Name] = true
		case Terminal:
			tt[s.Name] = true
		case Literal, Group:
		default:
			panic(fmt.Sprintf("grammar: unknown symbol type %T", sym))
		}
	})
	return sortedSet(nt), sortedSet(tt)
}

// literals returns the literal texts used by the rule
func (r Rule) literals() []string {
	var out []string
	walkSymbols(r.Production, func(sym Symbol) {
		if l, ok := sym.(Literal); ok {
			out = append(out, l.Text)
		}
	})
	return out
}

// TerminalDef defines a named terminal by regular expression
type TerminalDef struct {
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Skip    bool   `json:"skip,omitempty" yaml:"skip"` // insignificant lexeme such as whitespace
}

// Proposal is a candidate rule, possibly with the terminals it needs
type Proposal struct {
	Rule              Rule
	Terminals         []TerminalDef
	Confidence        float64
	SourceFingerprint string
}

// MissingSymbols lists the references of the proposal that neither the snapshot
// nor the proposal itself defines. An empty result means the proposal is applicable.
func (p Proposal) MissingSymbols(s *Snapshot) []string {
	nonterms, terms := p.Rule.References()
	var missing []string
	for _, name := range nonterms {
		if name != p.Rule.Name && !s.HasRule(name) {
			missing = append(missing, name)
		}
	}
	for _, name := range terms {
		if _, ok := s.Terminal(name); ok {
			continue
		}
		if !p.definesTerminal(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func (p Proposal) definesTerminal(name string) bool {
	for _, t := range p.Terminals {
		if t.Name == name {
			return true
		}
	}
	return false
}

// RuleSpec is the serialisable form of a Rule
type RuleSpec struct {
	Name       string `json:"name" yaml:"name"`
	Production string `json:"production" yaml:"production"`
	Priority   int    `json:"priority,omitempty" yaml:"priority"`
	Override   bool   `json:"override,omitempty" yaml:"override"`
	Iterative  bool   `json:"iterative,omitempty" yaml:"iterative"`
	// TerminalRefs lists the production names that refer to terminals
	TerminalRefs []string `json:"terminal_refs,omitempty" yaml:"-"`
}

// Spec converts the rule to its serialisable form
func (r Rule) Spec() RuleSpec {
	_, terms := r.References()
	return RuleSpec{
		Name:         r.Name,
		Production:   FormatProduction(r.Production),
		Priority:     r.Priority,
		Override:     r.Override,
		Iterative:    r.Iterative,
		TerminalRefs: terms,
	}
}

// Build parses the spec into a Rule. When isTerminal is nil the spec's
// TerminalRefs decide which names are terminals.
func (s RuleSpec) Build(isTerminal TerminalResolver) (Rule, error) {
	if isTerminal == nil {
		refs := make(map[string]bool, len(s.TerminalRefs))
		for _, name := range s.TerminalRefs {
			refs[name] = true
		}
		isTerminal = func(name string) bool { return refs[name] }
	}
	prod, err := ParseProduction(s.Production, isTerminal)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", s.Name, err)
	}
	return Rule{
		Name:       s.Name,
		Production: prod,
		Priority:   s.Priority,
		Override:   s.Override,
		Iterative:  s.Iterative,
	}, nil
}

// ProposalRecord is the serialisable form of a Proposal
type ProposalRecord struct {
	Rule              RuleSpec      `json:"rule"`
	Terminals         []TerminalDef `json:"terminals,omitempty"`
	Confidence        float64       `json:"confidence"`
	SourceFingerprint string        `json:"source_fingerprint"`
}

// Record converts the proposal to its serialisable form
func (p Proposal) Record() ProposalRecord {
	return ProposalRecord{
		Rule:              p.Rule.Spec(),
		Terminals:         append([]TerminalDef(nil), p.Terminals...),
		Confidence:        p.Confidence,
		SourceFingerprint: p.SourceFingerprint,
	}
}

// Proposal rebuilds the proposal from its record
func (r ProposalRecord) Proposal() (Proposal, error) {
	rule, err := r.Rule.Build(nil)
	if err != nil {
		return Proposal{}, err
	}
	return Proposal{
		Rule:              rule,
		Terminals:         append([]TerminalDef(nil), r.Terminals...),
		Confidence:        r.Confidence,
		SourceFingerprint: r.SourceFingerprint,
	}, nil
}

// Definition describes an initial grammar
type Definition struct {
	Start     string
	Terminals []TerminalDef
	Rules     []Rule
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
