/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: lexer.go
Description: Grammar-driven lexer for the Akaylee Parser. Builds a terminal table from a grammar
snapshot (named patterns plus implicit literals) and produces a lazy, restartable token stream.
Unrecognised input is reported as a LexError and never skipped.
*/

package lexer

import (
	"bytes"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/kleascm/akaylee-parser/pkg/grammar"
)

type matcher struct {
	name    string
	literal []byte
	re      *regexp.Regexp
	skip    bool
}

// Lexer is immutable and safe for concurrent use
type Lexer struct {
	matchers []matcher
	byName   map[string]Kind
	literals map[string]Kind
}

// New compiles the terminal table of s. Named terminals take kinds 0..n-1 in
// declaration order, literals follow in sorted order.
func New(s *grammar.Snapshot) (*Lexer, error) {
	terms := s.Terminals()
	lits := s.Literals()
	l := &Lexer{
		matchers: make([]matcher, 0, len(terms)+len(lits)),
		byName:   make(map[string]Kind, len(terms)),
		literals: make(map[string]Kind, len(lits)),
	}
	for _, t := range terms {
		re, err := regexp.Compile(`^(?:` + t.Pattern + `)`)
		if err != nil {
			return nil, fmt.Errorf("terminal %q: %w", t.Name, err)
		}
		re.Longest()
		l.byName[t.Name] = Kind(len(l.matchers))
		l.matchers = append(l.matchers, matcher{name: t.Name, re: re, skip: t.Skip})
	}
	for _, text := range lits {
		l.literals[text] = Kind(len(l.matchers))
		l.matchers = append(l.matchers, matcher{name: grammar.Literal{Text: text}.String(), literal: []byte(text)})
	}
	return l, nil
}

// ForSnapshot returns the lexer of s, compiling it on first use
func ForSnapshot(s *grammar.Snapshot) (*Lexer, error) {
	v, err := s.Compiled(func(s *grammar.Snapshot) (interface{}, error) {
		return New(s)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Lexer), nil
}

// KindOf returns the kind of a named terminal
func (l *Lexer) KindOf(name string) (Kind, bool) {
	k, ok := l.byName[name]
	return k, ok
}

// LiteralKind returns the kind of a literal terminal
func (l *Lexer) LiteralKind(text string) (Kind, bool) {
	k, ok := l.literals[text]
	return k, ok
}

// Name returns the terminal name of kind k
func (l *Lexer) Name(k Kind) string {
	if k == EOF || int(k) < 0 || int(k) >= len(l.matchers) {
		return EOFName
	}
	return l.matchers[k].name
}

// Tokenize starts a token stream at the beginning of input
func (l *Lexer) Tokenize(input []byte) *Stream {
	return l.TokenizeFrom(input, 0)
}

// TokenizeFrom starts a token stream at byte offset of input. Line and column
// numbers are computed relative to the start of input.
func (l *Lexer) TokenizeFrom(input []byte, offset int) *Stream {
	if offset < 0 {
		offset = 0
	}
	if offset > len(input) {
		offset = len(input)
	}
	st := &Stream{lx: l, input: input, pos: offset, line: 1, col: 1}
	st.advance(input[:offset])
	return st
}

// match returns the matcher index and length of the longest lexeme at input[pos:].
// On equal length literals win over patterns, then earlier entries win.
func (l *Lexer) match(rest []byte) (int, int) {
	best, bestLen, bestLiteral := -1, 0, false
	for i := range l.matchers {
		m := &l.matchers[i]
		n := 0
		if m.re == nil {
			if !bytes.HasPrefix(rest, m.literal) {
				continue
			}
			n = len(m.literal)
		} else {
			loc := m.re.FindIndex(rest)
			if loc == nil {
				continue
			}
			n = loc[1]
		}
		literal := m.re == nil
		if n > bestLen || (n == bestLen && n > 0 && literal && !bestLiteral) {
			best, bestLen, bestLiteral = i, n, literal
		}
	}
	return best, bestLen
}

// Stream is a lazy token sequence. It is not safe for concurrent use.
type Stream struct {
	lx    *Lexer
	input []byte
	pos   int
	line  int
	col   int
	err   *LexError
}

// Offset returns the byte offset of the next unread input
func (s *Stream) Offset() int {
	return s.pos
}

// Next returns the next significant token. After the end of input it keeps
// returning the EOF token; after a lexical error it keeps returning that error.
func (s *Stream) Next() (Token, error) {
	if s.err != nil {
		return Token{}, s.err
	}
	for {
		if s.pos >= len(s.input) {
			return Token{
				Kind:     EOF,
				Terminal: EOFName,
				Span:     Span{Start: len(s.input), End: len(s.input)},
				Line:     s.line,
				Col:      s.col,
			}, nil
		}
		idx, n := s.lx.match(s.input[s.pos:])
		if idx < 0 || n == 0 {
			r, _ := utf8.DecodeRune(s.input[s.pos:])
			s.err = &LexError{
				Offset: s.pos,
				Line:   s.line,
				Col:    s.col,
				Reason: fmt.Sprintf("no terminal matches %q", r),
			}
			return Token{}, s.err
		}
		m := &s.lx.matchers[idx]
		start := s.pos
		text := s.input[start : start+n]
		line, col := s.line, s.col
		s.pos += n
		s.advance(text)
		if m.skip {
			continue
		}
		return Token{
			Kind:     Kind(idx),
			Terminal: m.name,
			Text:     text,
			Span:     Span{Start: start, End: start + n},
			Line:     line,
			Col:      col,
		}, nil
	}
}

func (s *Stream) advance(text []byte) {
	for len(text) > 0 {
		r, size := utf8.DecodeRune(text)
		text = text[size:]
		if r == '\n' {
			s.line++
			s.col = 1
		} else {
			s.col++
		}
	}
}

// Collect drains s into a slice, excluding the EOF token
func Collect(s *Stream) ([]Token, error) {
	var out []Token
	for {
		tok, err := s.Next()
		if err != nil {
			return out, err
		}
		if tok.IsEOF() {
			return out, nil
		}
		out = append(out, tok)
	}
}
