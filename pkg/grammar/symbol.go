/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: symbol.go
Description: Grammar symbols for the Akaylee Parser. A production is an ordered sequence of
symbols; each symbol is one of four closed variants (named terminal, literal terminal,
non-terminal reference, parenthesised group) carrying a repetition quantifier.
*/

package grammar

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Quantifier controls how many times a symbol may repeat
type Quantifier uint8

const (
	One        Quantifier = iota // exactly once
	Optional                     // ?
	ZeroOrMore                   // *
	OneOrMore                    // +
)

// Nullable reports whether the quantifier admits zero occurrences
func (q Quantifier) Nullable() bool {
	return q == Optional || q == ZeroOrMore
}

// Repeats reports whether the quantifier admits more than one occurrence
func (q Quantifier) Repeats() bool {
	return q == ZeroOrMore || q == OneOrMore
}

func (q Quantifier) suffix() string {
	switch q {
	case Optional:
		return "?"
	case ZeroOrMore:
		return "*"
	case OneOrMore:
		return "+"
	default:
		return ""
	}
}

// Symbol is a production element. The set of implementations is closed:
// Terminal, Literal, NonTerminal and Group. Code that inspects symbols uses an
// exhaustive type switch over these four types.
type Symbol interface {
	// Quant returns the repetition quantifier of the symbol
	Quant() Quantifier
	// String renders the symbol in production notation
	String() string

	symbol()
}

// Terminal references a named terminal pattern of the grammar
type Terminal struct {
	Name   string
	Repeat Quantifier
}

// Literal is an implicit terminal matching its text exactly
type Literal struct {
	Text   string
	Repeat Quantifier
}

// NonTerminal references the rules defined under Name
type NonTerminal struct {
	Name   string
	Repeat Quantifier
}

// Group is a parenthesised ordered choice between alternative sequences
type Group struct {
	Alternatives [][]Symbol
	Repeat       Quantifier
}

func (Terminal) symbol()    {}
func (Literal) symbol()     {}
func (NonTerminal) symbol() {}
func (Group) symbol()       {}

func (s Terminal) Quant() Quantifier    { return s.Repeat }
func (s Literal) Quant() Quantifier     { return s.Repeat }
func (s NonTerminal) Quant() Quantifier { return s.Repeat }
func (s Group) Quant() Quantifier       { return s.Repeat }

func (s Terminal) String() string    { return s.Name + s.Repeat.suffix() }
func (s NonTerminal) String() string { return s.Name + s.Repeat.suffix() }

func (s Literal) String() string {
	return quoteLiteral(s.Text) + s.Repeat.suffix()
}

func (s Group) String() string {
	alts := make([]string, len(s.Alternatives))
	for i, alt := range s.Alternatives {
		alts[i] = FormatProduction(alt)
	}
	return "(" + strings.Join(alts, " | ") + ")" + s.Repeat.suffix()
}

// FormatProduction renders a production in notation form
func FormatProduction(prod []Symbol) string {
	parts := make([]string, len(prod))
	for i, sym := range prod {
		parts[i] = sym.String()
	}
	return strings.Join(parts, " ")
}

func quoteLiteral(text string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteString(`\x`)
			b.WriteString(strconv.FormatInt(int64(text[i])|0x100, 16)[1:])
			i++
			continue
		}
		i += size
		switch r {
		case '\'', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\x`)
				b.WriteString(strconv.FormatInt(int64(r)|0x100, 16)[1:])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// walkSymbols visits every symbol of prod, descending into groups
func walkSymbols(prod []Symbol, visit func(Symbol)) {
	for _, sym := range prod {
		visit(sym)
		if g, ok := sym.(Group); ok {
			for _, alt := range g.Alternatives {
				walkSymbols(alt, visit)
			}
		}
	}
}
