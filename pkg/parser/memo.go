/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: memo.go
Description: Packrat memo table entries. The table lives for one parse call only.
*/

package parser

// memoKey identifies one rule evaluation
type memoKey struct {
	pos  int
	rule string
}

type memoEntry struct {
	end  int
	node *Node
	ok   bool

	active  bool // evaluation in progress
	growing bool // in-progress entry may be read as the current seed
}
