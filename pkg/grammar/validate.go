/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: validate.go
Description: Structural validation of grammars and rule proposals. Every candidate grammar is
checked before it is published: undefined references, bad terminal patterns, infinite
productions, unmarked left recursion, nullable repetitions and priority conflicts.
*/

package grammar

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ValidationReason classifies a validation failure
type ValidationReason string

const (
	ReasonMalformed         ValidationReason = "malformed"
	ReasonUndefinedSymbol   ValidationReason = "undefined_symbol"
	ReasonBadPattern        ValidationReason = "bad_pattern"
	ReasonNonProductive     ValidationReason = "non_productive"
	ReasonLeftRecursion     ValidationReason = "left_recursion"
	ReasonNullableRepeat    ValidationReason = "nullable_repeat"
	ReasonDuplicatePriority ValidationReason = "duplicate_priority"
)

// ValidationError reports why a grammar or proposal was rejected
type ValidationError struct {
	Rule   string
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("invalid grammar: %s: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("invalid rule %q: %s: %s", e.Rule, e.Reason, e.Detail)
}

func invalid(rule string, reason ValidationReason, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Rule: rule, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks that adding p to base yields a well-formed grammar.
// It does not modify base.
func Validate(base *Snapshot, p Proposal) error {
	_, _, err := applyProposal(base, p, false, 0)
	return err
}

// ValidateDefinition checks a complete grammar definition
func ValidateDefinition(def Definition) error {
	rules := make([]Rule, len(def.Rules))
	for i, r := range def.Rules {
		r.seq = uint64(i + 1)
		rules[i] = r
	}
	return checkGrammar(def.Start, def.Terminals, rules)
}

// applyProposal returns the terminal and rule sets that result from adding
// (or, with replace, substituting) the proposed rule, after validating them.
func applyProposal(base *Snapshot, p Proposal, replace bool, seq uint64) ([]TerminalDef, []Rule, error) {
	rule := p.Rule
	if !ValidName(rule.Name) {
		return nil, nil, invalid(rule.Name, ReasonMalformed, "bad rule name")
	}
	if len(rule.Production) == 0 {
		return nil, nil, invalid(rule.Name, ReasonMalformed, "empty production")
	}

	terms := base.Terminals()
	for _, t := range p.Terminals {
		if existing, ok := base.Terminal(t.Name); ok {
			if existing.Pattern != t.Pattern || existing.Skip != t.Skip {
				return nil, nil, invalid(rule.Name, ReasonMalformed, "terminal %q redefined", t.Name)
			}
			continue
		}
		if containsTerminal(terms, t.Name) {
			continue
		}
		terms = append(terms, t)
	}

	var rules []Rule
	for _, r := range base.rules {
		if r.Name != rule.Name {
			rules = append(rules, r)
			continue
		}
		if replace {
			continue
		}
		if r.Priority == rule.Priority && !rule.Override {
			return nil, nil, invalid(rule.Name, ReasonDuplicatePriority,
				"a definition at priority %d already exists; set override to shadow it", rule.Priority)
		}
		rules = append(rules, r)
	}
	rule.seq = seq
	rules = append(rules, rule)

	if err := checkGrammar(base.start, terms, rules); err != nil {
		return nil, nil, err
	}
	return terms, rules, nil
}

func containsTerminal(terms []TerminalDef, name string) bool {
	for _, t := range terms {
		if t.Name == name {
			return true
		}
	}
	return false
}

// checkGrammar performs the whole-grammar structural checks
func checkGrammar(start string, terms []TerminalDef, rules []Rule) error {
	termSet := make(map[string]bool, len(terms))
	for _, t := range terms {
		if !ValidName(t.Name) {
			return invalid("", ReasonMalformed, "bad terminal name %q", t.Name)
		}
		if termSet[t.Name] {
			return invalid("", ReasonMalformed, "terminal %q declared twice", t.Name)
		}
		termSet[t.Name] = true
		if err := checkPattern(t); err != nil {
			return err
		}
	}

	byName := map[string][]Rule{}
	for _, r := range rules {
		if !ValidName(r.Name) {
			return invalid(r.Name, ReasonMalformed, "bad rule name")
		}
		if termSet[r.Name] {
			return invalid(r.Name, ReasonMalformed, "name is already used by a terminal")
		}
		if len(r.Production) == 0 {
			return invalid(r.Name, ReasonMalformed, "empty production")
		}
		byName[r.Name] = append(byName[r.Name], r)
	}
	if len(byName[start]) == 0 {
		return invalid(start, ReasonUndefinedSymbol, "start rule is not defined")
	}

	for _, r := range rules {
		if err := checkReferences(r, termSet, byName); err != nil {
			return err
		}
	}

	nullable := nullableNames(rules)
	for _, r := range rules {
		if err := checkRepeats(r, r.Production, nullable); err != nil {
			return err
		}
	}

	productive := productiveNames(rules)
	var dead []string
	for name := range byName {
		if !productive[name] {
			dead = append(dead, name)
		}
	}
	if len(dead) > 0 {
		sort.Strings(dead)
		return invalid(dead[0], ReasonNonProductive,
			"expansion of %s never terminates in terminals", strings.Join(dead, ", "))
	}

	return checkLeftRecursion(byName, nullable)
}

func checkPattern(t TerminalDef) error {
	if t.Pattern == "" {
		return invalid("", ReasonBadPattern, "terminal %q has an empty pattern", t.Name)
	}
	re, err := regexp.Compile(`^(?:` + t.Pattern + `)`)
	if err != nil {
		return invalid("", ReasonBadPattern, "terminal %q: %v", t.Name, err)
	}
	if re.MatchString("") {
		return invalid("", ReasonBadPattern, "terminal %q matches the empty string", t.Name)
	}
	return nil
}

func checkReferences(r Rule, termSet map[string]bool, byName map[string][]Rule) error {
	var err error
	walkSymbols(r.Production, func(sym Symbol) {
		if err != nil {
			return
		}
		switch s := sym.(type) {
		case Terminal:
			if !termSet[s.Name] {
				err = invalid(r.Name, ReasonUndefinedSymbol, "terminal %q is not defined", s.Name)
			}
		case NonTerminal:
			if len(byName[s.Name]) == 0 {
				err = invalid(r.Name, ReasonUndefinedSymbol, "rule %q is not defined", s.Name)
			}
		case Literal:
			if s.Text == "" {
				err = invalid(r.Name, ReasonMalformed, "empty literal")
			}
		case Group:
			if len(s.Alternatives) == 0 {
				err = invalid(r.Name, ReasonMalformed, "empty group")
				return
			}
			for _, alt := range s.Alternatives {
				if len(alt) == 0 {
					err = invalid(r.Name, ReasonMalformed, "empty group alternative")
				}
			}
		default:
			panic(fmt.Sprintf("grammar: unknown symbol type %T", sym))
		}
	})
	return err
}

func checkRepeats(r Rule, prod []Symbol, nullable map[string]bool) error {
	for _, sym := range prod {
		if sym.Quant().Repeats() && symbolNullable(withQuantifier(sym, One), nullable) {
			return invalid(r.Name, ReasonNullableRepeat, "%s repeats an expression that can match nothing", sym)
		}
		if g, ok := sym.(Group); ok {
			for _, alt := range g.Alternatives {
				if err := checkRepeats(r, alt, nullable); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkLeftRecursion(byName map[string][]Rule, nullable map[string]bool) error {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		seeded := false
		var iterative []Rule
		for _, r := range byName[name] {
			if !leftRefs(r.Production, nullable)[name] {
				seeded = true
				continue
			}
			if !r.Iterative {
				return invalid(name, ReasonLeftRecursion, "%s is directly left recursive; mark it iterative", r)
			}
			head, ok := r.Production[0].(NonTerminal)
			if !ok || head.Name != name || head.Repeat != One || len(r.Production) < 2 {
				return invalid(name, ReasonLeftRecursion, "iterative rule must have the form %s -> %s tail...", name, name)
			}
			iterative = append(iterative, r)
		}
		if len(iterative) > 0 && !seeded {
			return invalid(name, ReasonLeftRecursion, "iterative rule needs a non-left-recursive definition")
		}
	}
	return nil
}

// leftRefs returns the non-terminals that may be invoked at the first position of prod
func leftRefs(prod []Symbol, nullable map[string]bool) map[string]bool {
	out := map[string]bool{}
	collectLeft(prod, nullable, out)
	return out
}

func collectLeft(prod []Symbol, nullable map[string]bool, out map[string]bool) {
	for _, sym := range prod {
		switch s := sym.(type) {
		case NonTerminal:
			out[s.Name] = true
		case Group:
			for _, alt := range s.Alternatives {
				collectLeft(alt, nullable, out)
			}
		case Terminal, Literal:
		default:
			panic(fmt.Sprintf("grammar: unknown symbol type %T", sym))
		}
		if !symbolNullable(sym, nullable) {
			return
		}
	}
}

func nullableNames(rules []Rule) map[string]bool {
	nullable := map[string]bool{}
	for changed := true; changed; {
		changed = false
		for _, r := range rules {
			if !nullable[r.Name] && sequenceNullable(r.Production, nullable) {
				nullable[r.Name] = true
				changed = true
			}
		}
	}
	return nullable
}

func sequenceNullable(prod []Symbol, nullable map[string]bool) bool {
	for _, sym := range prod {
		if !symbolNullable(sym, nullable) {
			return false
		}
	}
	return true
}

func symbolNullable(sym Symbol, nullable map[string]bool) bool {
	if sym.Quant().Nullable() {
		return true
	}
	switch s := sym.(type) {
	case Terminal, Literal:
		return false
	case NonTerminal:
		return nullable[s.Name]
	case Group:
		for _, alt := range s.Alternatives {
			if sequenceNullable(alt, nullable) {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("grammar: unknown symbol type %T", sym))
	}
}

func productiveNames(rules []Rule) map[string]bool {
	productive := map[string]bool{}
	for changed := true; changed; {
		changed = false
		for _, r := range rules {
			if !productive[r.Name] && sequenceProductive(r.Production, productive) {
				productive[r.Name] = true
				changed = true
			}
		}
	}
	return productive
}

func sequenceProductive(prod []Symbol, productive map[string]bool) bool {
	for _, sym := range prod {
		if !symbolProductive(sym, productive) {
			return false
		}
	}
	return true
}

func symbolProductive(sym Symbol, productive map[string]bool) bool {
	if sym.Quant().Nullable() {
		return true
	}
	switch s := sym.(type) {
	case Terminal, Literal:
		return true
	case NonTerminal:
		return productive[s.Name]
	case Group:
		for _, alt := range s.Alternatives {
			if sequenceProductive(alt, productive) {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("grammar: unknown symbol type %T", sym))
	}
}
