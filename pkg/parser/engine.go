/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: engine.go
Description: Packrat parse engine for the Akaylee Parser. Recursive descent with ordered choice
over a grammar snapshot, memoised per (token index, rule) so each pair is evaluated once per
call. Iterative rules are grown from a seed to support direct left recursion. On mismatch the
engine returns a structured ParseFailure instead of a partial result.
*/

package parser

import (
	"fmt"
	"sort"

	"github.com/kleascm/akaylee-parser/pkg/grammar"
	"github.com/kleascm/akaylee-parser/pkg/lexer"
)

const (
	DefaultMaxDepth     = 512
	DefaultWindowTokens = 4
	DefaultSnippetBytes = 48
)

// lexErrorKind marks the sentinel token placed where the lexer stopped
const lexErrorKind lexer.Kind = -2

// Options bounds a single parse call
type Options struct {
	MaxDepth     int // maximum rule nesting
	WindowTokens int // tokens kept on each side of a failure
	SnippetBytes int // input bytes kept on each side of a failure
}

// DefaultOptions returns the default parse bounds
func DefaultOptions() Options {
	return Options{
		MaxDepth:     DefaultMaxDepth,
		WindowTokens: DefaultWindowTokens,
		SnippetBytes: DefaultSnippetBytes,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.WindowTokens <= 0 {
		o.WindowTokens = DefaultWindowTokens
	}
	if o.SnippetBytes <= 0 {
		o.SnippetBytes = DefaultSnippetBytes
	}
	return o
}

// Stats counts the work done by one parse call
type Stats struct {
	Tokens      int `json:"tokens"`
	Evaluations int `json:"evaluations"`
	MemoHits    int `json:"memo_hits"`
	MemoEntries int `json:"memo_entries"`
	Backtracks  int `json:"backtracks"`
	Nodes       int `json:"nodes"`
}

// Result is a successful parse
type Result struct {
	Root       *Node
	Confidence float64
	Version    grammar.Version
	Stats      Stats
}

// Parse matches input against the start rule of s. The whole input must be
// consumed. A mismatch is reported as a *ParseFailure.
func Parse(s *grammar.Snapshot, input []byte, opts Options) (*Result, error) {
	lx, err := lexer.ForSnapshot(s)
	if err != nil {
		return nil, fmt.Errorf("failed to build lexer for version %d: %w", s.Version(), err)
	}
	p := &state{
		snap:     s,
		lx:       lx,
		input:    input,
		opts:     opts.withDefaults(),
		stream:   lx.Tokenize(input),
		memo:     make(map[memoKey]*memoEntry),
		far:      -1,
		farRules: map[string]bool{},
		farWant:  map[string]bool{},
	}

	root, ok := p.parseStart()
	p.stats.Tokens = len(p.tokens)
	p.stats.MemoEntries = len(p.memo)
	if !ok {
		return nil, &ParseFailure{Context: p.failureContext()}
	}

	unshare(root)
	root.Span = lexer.Span{Start: 0, End: len(input)}
	p.stats.Nodes = root.Count()
	return &Result{
		Root:       root,
		Confidence: confidence(p.stats.Backtracks, p.stats.Nodes),
		Version:    s.Version(),
		Stats:      p.stats,
	}, nil
}

// confidence is 1 minus the share of backtracked choice points per node
func confidence(backtracks, nodes int) float64 {
	if nodes <= 0 {
		return 0
	}
	c := 1 - float64(backtracks)/float64(nodes)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

type state struct {
	snap   *grammar.Snapshot
	lx     *lexer.Lexer
	input  []byte
	opts   Options
	stream *lexer.Stream

	tokens []lexer.Token
	done   bool
	lexErr *lexer.LexError

	memo  map[memoKey]*memoEntry
	stack []string
	depth int

	aborted bool

	// farthest failure
	far      int
	farRules map[string]bool
	farWant  map[string]bool
	farPath  []string

	stats Stats
}

// token returns the token at index i, pulling from the stream as needed.
// Indexes past the end return the final EOF or lex-error sentinel.
func (p *state) token(i int) lexer.Token {
	for len(p.tokens) <= i && !p.done {
		tok, err := p.stream.Next()
		if err != nil {
			p.lexErr, _ = err.(*lexer.LexError)
			if p.lexErr == nil {
				p.lexErr = &lexer.LexError{Offset: p.stream.Offset(), Reason: err.Error()}
			}
			p.tokens = append(p.tokens, lexer.Token{
				Kind:     lexErrorKind,
				Terminal: LexErrorName,
				Span:     lexer.Span{Start: p.lexErr.Offset, End: p.lexErr.Offset},
				Line:     p.lexErr.Line,
				Col:      p.lexErr.Col,
			})
			p.done = true
			break
		}
		p.tokens = append(p.tokens, tok)
		if tok.IsEOF() {
			p.done = true
		}
	}
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *state) parseStart() (*Node, bool) {
	start := p.snap.Start()
	end, node, ok := p.rule(start, 0)
	if !ok {
		return nil, false
	}
	if p.token(end).IsEOF() {
		return node, true
	}
	p.expect(end, lexer.EOFName)
	return nil, false
}

// rule evaluates the alternatives of name at token index pos
func (p *state) rule(name string, pos int) (int, *Node, bool) {
	key := memoKey{pos: pos, rule: name}
	if e, ok := p.memo[key]; ok {
		if e.active && !e.growing {
			// recursion without consuming input; this branch cannot match
			return pos, nil, false
		}
		p.stats.MemoHits++
		return e.end, e.node, e.ok
	}
	if p.aborted {
		return pos, nil, false
	}
	if p.depth >= p.opts.MaxDepth {
		p.abort(pos, name)
		return pos, nil, false
	}

	p.depth++
	p.stack = append(p.stack, name)
	defer func() {
		p.depth--
		p.stack = p.stack[:len(p.stack)-1]
	}()
	p.stats.Evaluations++

	alts := p.snap.Alternatives(name)
	e := &memoEntry{end: pos, active: true, growing: hasIterative(alts)}
	p.memo[key] = e

	if !e.growing {
		e.end, e.node, e.ok = p.choose(name, alts, pos)
		e.active = false
		return e.end, e.node, e.ok
	}

	// iterative definitions extend a match of a seed definition
	seeds, growers := splitIterative(alts)
	e.end, e.node, e.ok = p.choose(name, seeds, pos)
	for e.ok {
		end, node, ok := p.choose(name, growers, pos)
		if !ok || end <= e.end {
			break
		}
		e.end, e.node = end, node
	}
	e.active = false
	e.growing = false
	return e.end, e.node, e.ok
}

// choose tries the definitions of name in resolution order
func (p *state) choose(name string, alts []grammar.Rule, pos int) (int, *Node, bool) {
	for _, r := range alts {
		end, children, ok := p.sequence(r.Production, pos)
		if ok {
			return end, &Node{Rule: name, Children: children, Span: p.span(pos, end)}, true
		}
		if p.aborted {
			break
		}
		if len(alts) > 1 {
			p.stats.Backtracks++
		}
	}
	return pos, nil, false
}

func (p *state) sequence(prod []grammar.Symbol, pos int) (int, []*Node, bool) {
	var children []*Node
	cur := pos
	for _, sym := range prod {
		end, kids, ok := p.symbol(sym, cur)
		if !ok {
			return pos, nil, false
		}
		children = append(children, kids...)
		cur = end
	}
	return cur, children, true
}

// symbol applies the quantifier of sym
func (p *state) symbol(sym grammar.Symbol, pos int) (int, []*Node, bool) {
	q := sym.Quant()
	switch q {
	case grammar.One:
		return p.once(sym, pos)
	case grammar.Optional:
		end, kids, ok := p.once(sym, pos)
		if !ok {
			return pos, nil, true
		}
		return end, kids, true
	case grammar.ZeroOrMore, grammar.OneOrMore:
		var children []*Node
		cur, n := pos, 0
		for {
			end, kids, ok := p.once(sym, cur)
			if !ok {
				break
			}
			children = append(children, kids...)
			n++
			if end == cur {
				break
			}
			cur = end
		}
		if q == grammar.OneOrMore && n == 0 {
			return pos, nil, false
		}
		return cur, children, true
	default:
		panic(fmt.Sprintf("parser: unknown quantifier %d", q))
	}
}

// once matches sym exactly once, ignoring its quantifier
func (p *state) once(sym grammar.Symbol, pos int) (int, []*Node, bool) {
	switch s := sym.(type) {
	case grammar.Terminal:
		k, ok := p.lx.KindOf(s.Name)
		if !ok {
			p.expect(pos, s.Name)
			return pos, nil, false
		}
		return p.terminal(k, s.Name, pos)
	case grammar.Literal:
		name := grammar.Literal{Text: s.Text}.String()
		k, ok := p.lx.LiteralKind(s.Text)
		if !ok {
			p.expect(pos, name)
			return pos, nil, false
		}
		return p.terminal(k, name, pos)
	case grammar.NonTerminal:
		end, node, ok := p.rule(s.Name, pos)
		if !ok {
			return pos, nil, false
		}
		return end, []*Node{node}, true
	case grammar.Group:
		for _, alt := range s.Alternatives {
			end, kids, ok := p.sequence(alt, pos)
			if ok {
				return end, kids, true
			}
			if p.aborted {
				break
			}
			if len(s.Alternatives) > 1 {
				p.stats.Backtracks++
			}
		}
		return pos, nil, false
	default:
		panic(fmt.Sprintf("parser: unknown symbol type %T", sym))
	}
}

func (p *state) terminal(k lexer.Kind, name string, pos int) (int, []*Node, bool) {
	if p.token(pos).Kind == k {
		return pos + 1, nil, true
	}
	p.expect(pos, name)
	return pos, nil, false
}

// expect records a failed terminal match for failure reporting
func (p *state) expect(pos int, terminal string) {
	if p.aborted || pos < p.far {
		return
	}
	if pos > p.far {
		p.far = pos
		p.farRules = map[string]bool{}
		p.farWant = map[string]bool{}
		p.farPath = nil
	}
	p.farRules[p.activeRule()] = true
	p.farWant[terminal] = true
	if p.farPath == nil {
		p.farPath = append([]string{}, p.stack...)
	}
}

func (p *state) abort(pos int, name string) {
	p.aborted = true
	p.far = pos
	p.farRules = map[string]bool{name: true}
	p.farWant = map[string]bool{}
	p.farPath = append([]string{}, p.stack...)
}

func (p *state) activeRule() string {
	if len(p.stack) == 0 {
		return p.snap.Start()
	}
	return p.stack[len(p.stack)-1]
}

// span converts a token index range to a byte span
func (p *state) span(pos, end int) lexer.Span {
	if end <= pos {
		at := p.token(pos).Span.Start
		return lexer.Span{Start: at, End: at}
	}
	return lexer.Span{Start: p.token(pos).Span.Start, End: p.token(end - 1).Span.End}
}

func (p *state) failureContext() FailureContext {
	far := p.far
	if far < 0 {
		far = 0
	}
	tok := p.token(far)
	fc := FailureContext{
		Offset:         tok.Span.Start,
		Line:           tok.Line,
		Col:            tok.Col,
		TokenIndex:     far,
		Reason:         ReasonUnexpected,
		Found:          describeToken(tok),
		FoundTerminal:  terminalName(tok),
		AttemptedRules: sortedKeys(p.farRules),
		Expected:       sortedKeys(p.farWant),
		RulePath:       p.farPath,
		Window:         p.window(far),
		Snippet:        p.snippet(tok.Span.Start),
		Version:        p.snap.Version(),
		GrammarDigest:  p.snap.Digest(),
	}
	switch {
	case p.aborted:
		fc.Reason = ReasonDepthExceeded
	case tok.Kind == lexErrorKind:
		fc.Reason = ReasonLexical
		fc.Lex = p.lexErr
	}
	if len(fc.AttemptedRules) == 0 {
		fc.AttemptedRules = []string{p.snap.Start()}
	}
	return fc
}

// window returns the significant tokens around index at, excluding sentinels
func (p *state) window(at int) []lexer.Token {
	lo := at - p.opts.WindowTokens
	if lo < 0 {
		lo = 0
	}
	p.token(at + p.opts.WindowTokens)
	hi := at + p.opts.WindowTokens + 1
	if hi > len(p.tokens) {
		hi = len(p.tokens)
	}
	var out []lexer.Token
	for _, t := range p.tokens[lo:hi] {
		if t.Kind >= 0 {
			out = append(out, t)
		}
	}
	return out
}

func (p *state) snippet(offset int) string {
	lo := offset - p.opts.SnippetBytes
	if lo < 0 {
		lo = 0
	}
	hi := offset + p.opts.SnippetBytes
	if hi > len(p.input) {
		hi = len(p.input)
	}
	if lo > hi {
		lo = hi
	}
	return string(p.input[lo:hi])
}

func describeToken(t lexer.Token) string {
	switch t.Kind {
	case lexer.EOF:
		return lexer.EOFName
	case lexErrorKind:
		return LexErrorName
	}
	return fmt.Sprintf("%s %q", t.Terminal, t.Text)
}

func terminalName(t lexer.Token) string {
	if t.Kind == lexer.EOF {
		return lexer.EOFName
	}
	return t.Terminal
}

func hasIterative(alts []grammar.Rule) bool {
	for _, r := range alts {
		if r.Iterative {
			return true
		}
	}
	return false
}

func splitIterative(alts []grammar.Rule) (seeds, growers []grammar.Rule) {
	for _, r := range alts {
		if r.Iterative {
			growers = append(growers, r)
		} else {
			seeds = append(seeds, r)
		}
	}
	return seeds, growers
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
