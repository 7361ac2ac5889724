/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: node.go
Description: Syntax tree nodes produced by the Akaylee Parser engine. Only non-terminals create
nodes; terminals are covered by the spans of the nodes that consumed them.
*/

package parser

import (
	"strings"

	"github.com/kleascm/akaylee-parser/pkg/lexer"
)

// Node is one non-terminal match. A tree returned by Parse is owned by the caller.
type Node struct {
	Rule     string     `json:"rule"`
	Children []*Node    `json:"children,omitempty"`
	Span     lexer.Span `json:"span"`
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Count returns the number of nodes in the tree rooted at n
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// Text returns the input covered by the node
func (n *Node) Text(input []byte) []byte {
	if n.Span.Start < 0 || n.Span.End > len(input) || n.Span.Start > n.Span.End {
		return nil
	}
	return input[n.Span.Start:n.Span.End]
}

// Equal reports whether two trees have the same shape, rule names and spans
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Rule != o.Rule || n.Span != o.Span || len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// String renders the tree as an s-expression, e.g. (Expr[0,5) (Number[0,1)) (Number[4,5)))
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if n == nil {
		b.WriteString("()")
		return
	}
	b.WriteByte('(')
	b.WriteString(n.Rule)
	b.WriteString(n.Span.String())
	for _, c := range n.Children {
		b.WriteByte(' ')
		c.write(b)
	}
	b.WriteByte(')')
}

// clone copies the subtree rooted at n
func (n *Node) clone() *Node {
	c := &Node{Rule: n.Rule, Span: n.Span}
	if len(n.Children) > 0 {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.clone()
		}
	}
	return c
}

// unshare makes the tree strict: memoised subtrees reached twice (empty
// matches of the same rule at the same position) are copied.
func unshare(root *Node) {
	seen := map[*Node]bool{}
	var visit func(n *Node)
	visit = func(n *Node) {
		seen[n] = true
		for i, c := range n.Children {
			if seen[c] {
				c = c.clone()
				n.Children[i] = c
			}
			visit(c)
		}
	}
	visit(root)
}
