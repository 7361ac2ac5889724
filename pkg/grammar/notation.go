/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: notation.go
Description: Parser for the production notation used by grammar files, cached proposals and
oracle responses. Items are separated by whitespace: names, 'quoted literals' and
parenthesised groups with | alternatives, each optionally followed by ?, * or +.
*/

package grammar

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NotationError reports a malformed production string
type NotationError struct {
	Offset int
	Reason string
}

func (e *NotationError) Error() string {
	return fmt.Sprintf("production notation: %s at offset %d", e.Reason, e.Offset)
}

// TerminalResolver reports whether a bare name refers to a terminal
type TerminalResolver func(name string) bool

// ParseProduction parses notation text into a production.
// Names accepted by isTerminal become Terminal symbols, all others NonTerminal.
func ParseProduction(text string, isTerminal TerminalResolver) ([]Symbol, error) {
	if isTerminal == nil {
		isTerminal = func(string) bool { return false }
	}
	p := &notationParser{src: text, isTerminal: isTerminal}
	prod, err := p.sequence()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos])
	}
	return prod, nil
}

type notationParser struct {
	src        string
	pos        int
	depth      int
	isTerminal TerminalResolver
}

const maxGroupDepth = 64

func (p *notationParser) errorf(format string, args ...interface{}) error {
	return &NotationError{Offset: p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *notationParser) skipSpace() {
	for p.pos < len(p.src) {
		r, size := utf8.DecodeRuneInString(p.src[p.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		p.pos += size
	}
}

func (p *notationParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *notationParser) sequence() ([]Symbol, error) {
	var seq []Symbol
	for {
		c := p.peek()
		if c == 0 || c == ')' || c == '|' {
			break
		}
		sym, err := p.item()
		if err != nil {
			return nil, err
		}
		seq = append(seq, sym)
	}
	if len(seq) == 0 {
		return nil, p.errorf("empty sequence")
	}
	return seq, nil
}

func (p *notationParser) item() (Symbol, error) {
	c := p.peek()
	var sym Symbol
	switch {
	case c == '\'':
		text, err := p.literal()
		if err != nil {
			return nil, err
		}
		sym = Literal{Text: text}
	case c == '(':
		g, err := p.group()
		if err != nil {
			return nil, err
		}
		sym = g
	case isNameStart(c):
		name := p.name()
		if p.isTerminal(name) {
			sym = Terminal{Name: name}
		} else {
			sym = NonTerminal{Name: name}
		}
	default:
		return nil, p.errorf("unexpected %q", c)
	}
	return withQuantifier(sym, p.quantifier()), nil
}

func (p *notationParser) group() (Group, error) {
	p.depth++
	if p.depth > maxGroupDepth {
		return Group{}, p.errorf("groups nested deeper than %d", maxGroupDepth)
	}
	defer func() { p.depth-- }()

	p.pos++ // (
	var g Group
	for {
		alt, err := p.sequence()
		if err != nil {
			return Group{}, err
		}
		g.Alternatives = append(g.Alternatives, alt)
		switch p.peek() {
		case '|':
			p.pos++
		case ')':
			p.pos++
			return g, nil
		default:
			return Group{}, p.errorf("unterminated group")
		}
	}
}

func (p *notationParser) quantifier() Quantifier {
	if p.pos >= len(p.src) {
		return One
	}
	// quantifiers bind to the preceding item without intervening space
	switch p.src[p.pos] {
	case '?':
		p.pos++
		return Optional
	case '*':
		p.pos++
		return ZeroOrMore
	case '+':
		p.pos++
		return OneOrMore
	}
	return One
}

func (p *notationParser) name() string {
	start := p.pos
	for p.pos < len(p.src) && isNamePart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *notationParser) literal() (string, error) {
	start := p.pos
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\'':
			p.pos++
			if b.Len() == 0 {
				p.pos = start
				return "", p.errorf("empty literal")
			}
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.errorf("dangling escape")
			}
			esc := p.src[p.pos+1]
			p.pos += 2
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'x':
				if p.pos+2 > len(p.src) {
					return "", p.errorf("short \\x escape")
				}
				v, err := strconv.ParseUint(p.src[p.pos:p.pos+2], 16, 8)
				if err != nil {
					return "", p.errorf("bad \\x escape")
				}
				b.WriteByte(byte(v))
				p.pos += 2
			default:
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	p.pos = start
	return "", p.errorf("unterminated literal")
}

func withQuantifier(sym Symbol, q Quantifier) Symbol {
	switch s := sym.(type) {
	case Terminal:
		s.Repeat = q
		return s
	case Literal:
		s.Repeat = q
		return s
	case NonTerminal:
		s.Repeat = q
		return s
	case Group:
		s.Repeat = q
		return s
	default:
		panic(fmt.Sprintf("grammar: unknown symbol type %T", sym))
	}
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

// ValidName reports whether name is usable as a rule or terminal name
func ValidName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNamePart(name[i]) {
			return false
		}
	}
	return true
}
