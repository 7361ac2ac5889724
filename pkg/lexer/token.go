/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: token.go
Description: Token and lexical error types for the Akaylee Parser lexer. Tokens are immutable
values whose text is a sub-slice of the input buffer.
*/

package lexer

import (
	"fmt"
	"strconv"
)

// Kind is the index of a terminal in a lexer's terminal table
type Kind int

// EOF is the kind of the end-of-input token
const EOF Kind = -1

// EOFName is the terminal name reported for the end-of-input token
const EOFName = "<eof>"

// Span is a half-open byte range [Start, End) of the input
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered
func (s Span) Len() int {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Token is one lexeme. Text references the input and must not be modified.
type Token struct {
	Kind     Kind
	Terminal string // terminal name, or the quoted text of a literal terminal
	Text     []byte
	Span     Span
	Line     int
	Col      int
}

// IsEOF reports whether the token marks the end of input
func (t Token) IsEOF() bool {
	return t.Kind == EOF
}

func (t Token) String() string {
	if t.IsEOF() {
		return EOFName
	}
	return fmt.Sprintf("%s(%s)@%d", t.Terminal, strconv.Quote(string(t.Text)), t.Span.Start)
}

// LexError reports input that no terminal of the active grammar recognises
type LexError struct {
	Offset int
	Line   int
	Col    int
	Reason string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at offset %d (line %d, col %d): %s", e.Offset, e.Line, e.Col, e.Reason)
}
