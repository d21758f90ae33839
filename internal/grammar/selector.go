// Package grammar parses the fixed chain-call vocabulary of recorded
// Android UI tests (the Espresso-style fluent API) into a canonical
// selector/step representation.
//
// The selector model is a closed, recursive predicate tree:
//
//	onView(allOf(withId(R.id.medicineName), withText("Claritin")))
//	     |
//	And
//	 ├── ById("medicineName")
//	 └── ByText("Claritin", containsIgnoreCase)
//
// Nodes exclusively own their children and are immutable once built.
package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

// SelectorKind identifies a node in the selector tree.
type SelectorKind string

const (
	// Leaf kinds.
	KindByID                 SelectorKind = "byId"
	KindByText               SelectorKind = "byText"
	KindByContentDescription SelectorKind = "byContentDescription"
	KindByClassNameContains  SelectorKind = "byClassNameContains"
	KindByParentIndex        SelectorKind = "byParentIndex"

	// Combinator kinds.
	KindAnd           SelectorKind = "and"
	KindWithParent    SelectorKind = "withParent"
	KindHasDescendant SelectorKind = "hasDescendant"
)

// MatchMode describes how a text-bearing leaf compares its literal against
// the on-screen value. The vocabulary mirrors the Hamcrest-style string
// helpers that recorded tests wrap around matcher arguments.
type MatchMode string

const (
	ModeEqualsIgnoreCase     MatchMode = "equalsIgnoreCase"
	ModeContains             MatchMode = "contains"
	ModeContainsIgnoreCase   MatchMode = "containsIgnoreCase"
	ModeStartsWithIgnoreCase MatchMode = "startsWithIgnoreCase"
	ModeEndsWithIgnoreCase   MatchMode = "endsWithIgnoreCase"
)

// Selector is one node of the recursive predicate tree. Leaf nodes carry a
// literal (Value, and for text leaves a Mode; for byParentIndex an Index);
// combinator nodes carry Children and nothing else.
type Selector struct {
	Kind     SelectorKind `json:"kind"`
	Value    string       `json:"value,omitempty"`
	Mode     MatchMode    `json:"mode,omitempty"`
	Index    int          `json:"index,omitempty"`
	Children []*Selector  `json:"children,omitempty"`
}

// IsLeaf reports whether the node is a leaf predicate.
func (s *Selector) IsLeaf() bool {
	switch s.Kind {
	case KindAnd, KindWithParent, KindHasDescendant:
		return false
	}
	return true
}

// Clone returns a deep copy of the tree.
func (s *Selector) Clone() *Selector {
	if s == nil {
		return nil
	}
	out := &Selector{Kind: s.Kind, Value: s.Value, Mode: s.Mode, Index: s.Index}
	if len(s.Children) > 0 {
		out.Children = make([]*Selector, len(s.Children))
		for i, c := range s.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Walk visits every node in depth-first order. The trail holds the child
// indexes leading from the root to the visited node.
func (s *Selector) Walk(fn func(node *Selector, trail []int)) {
	s.walk(nil, fn)
}

func (s *Selector) walk(trail []int, fn func(*Selector, []int)) {
	if s == nil {
		return
	}
	fn(s, trail)
	for i, c := range s.Children {
		child := make([]int, len(trail)+1)
		copy(child, trail)
		child[len(trail)] = i
		c.walk(child, fn)
	}
}

// At resolves a child-index trail produced by Walk back to a node.
func (s *Selector) At(trail []int) *Selector {
	node := s
	for _, i := range trail {
		if node == nil || i < 0 || i >= len(node.Children) {
			return nil
		}
		node = node.Children[i]
	}
	return node
}

// String renders the node back into source syntax. Parsing the result
// yields a structurally identical tree; the default containsIgnoreCase mode
// round-trips as a bare string literal, all other modes as helper calls.
func (s *Selector) String() string {
	switch s.Kind {
	case KindByID:
		return fmt.Sprintf("withId(%q)", s.Value)
	case KindByText:
		return fmt.Sprintf("withText(%s)", renderStringExpr(s.Value, s.Mode))
	case KindByContentDescription:
		return fmt.Sprintf("withContentDescription(%s)", renderStringExpr(s.Value, s.Mode))
	case KindByClassNameContains:
		return fmt.Sprintf("withClassName(containsStringIgnoringCase(%q))", s.Value)
	case KindByParentIndex:
		return fmt.Sprintf("withParentIndex(%d)", s.Index)
	case KindAnd:
		parts := make([]string, len(s.Children))
		for i, c := range s.Children {
			parts[i] = c.String()
		}
		return fmt.Sprintf("allOf(%s)", strings.Join(parts, ", "))
	case KindWithParent:
		return fmt.Sprintf("withParent(%s)", s.Children[0].String())
	case KindHasDescendant:
		return fmt.Sprintf("hasDescendant(%s)", s.Children[0].String())
	}
	return string(s.Kind)
}

func renderStringExpr(value string, mode MatchMode) string {
	switch mode {
	case "", ModeContainsIgnoreCase:
		return strconv.Quote(value)
	default:
		return fmt.Sprintf("%s(%q)", mode, value)
	}
}

// DuplicateLeafKinds reports leaf kinds that occur more than once among the
// direct children of an And node. The combined semantics of such duplicates
// are undefined in the source vocabulary (two withId terms under one allOf
// never match the same view); callers surface this as a diagnostic instead
// of silently picking one.
func (s *Selector) DuplicateLeafKinds() []SelectorKind {
	if s.Kind != KindAnd {
		return nil
	}
	seen := map[SelectorKind]int{}
	for _, c := range s.Children {
		if c.IsLeaf() {
			seen[c.Kind]++
		}
	}
	var dups []SelectorKind
	for _, c := range s.Children {
		if c.IsLeaf() && seen[c.Kind] > 1 {
			dups = append(dups, c.Kind)
			seen[c.Kind] = 0
		}
	}
	return dups
}
