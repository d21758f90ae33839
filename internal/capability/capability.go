// Package capability turns parsed interaction methods into reusable,
// parameterized capabilities. A capability keeps the recorded step
// structure intact and lifts the literals a caller may vary into named
// slots; everything not lifted stays fixed exactly as recorded.
package capability

import (
	"fmt"
	"time"

	"capgen/internal/grammar"
)

// RefTarget says which field of a step a FieldRef points at.
type RefTarget string

const (
	// RefDetail addresses the step's action or assertion literal.
	RefDetail RefTarget = "detail"
	// RefSelector addresses the Value of a selector node reached by Trail.
	RefSelector RefTarget = "selector"
)

// FieldRef is a stable address of one substitutable literal inside a step
// list: the step index plus either the detail value or a child-index trail
// into the step's selector tree.
type FieldRef struct {
	Step   int       `json:"step"`
	Target RefTarget `json:"target"`
	Trail  []int     `json:"trail,omitempty"`
}

// Lookup reads the literal the reference points at.
func (r FieldRef) Lookup(steps []grammar.Step) (string, bool) {
	if r.Step < 0 || r.Step >= len(steps) {
		return "", false
	}
	step := steps[r.Step]
	switch r.Target {
	case RefDetail:
		return step.Detail.Value, true
	case RefSelector:
		node := step.Selector.At(r.Trail)
		if node == nil {
			return "", false
		}
		return node.Value, true
	}
	return "", false
}

// Apply writes value into the addressed position. The steps slice is
// mutated in place; callers substitute into their own deep copy.
func (r FieldRef) Apply(steps []grammar.Step, value string) error {
	if r.Step < 0 || r.Step >= len(steps) {
		return fmt.Errorf("field ref step %d out of range", r.Step)
	}
	switch r.Target {
	case RefDetail:
		steps[r.Step].Detail.Value = value
		return nil
	case RefSelector:
		node := steps[r.Step].Selector.At(r.Trail)
		if node == nil {
			return fmt.Errorf("field ref trail %v unresolvable at step %d", r.Trail, r.Step)
		}
		node.Value = value
		return nil
	}
	return fmt.Errorf("unknown field ref target %q", r.Target)
}

// Slot is one free parameter of a capability. Example holds the literal
// from the recording; Refs lists every position the bound value flows into.
type Slot struct {
	Name    string     `json:"name"`
	Example string     `json:"example"`
	Refs    []FieldRef `json:"refs"`
}

// Capability is a compiled, parameterized interaction sequence for one
// application. Steps keep the recorded order, with slot positions still
// holding their example literals; SuccessCondition is the recording's final
// assertion, when it ended in one.
type Capability struct {
	Name             string         `json:"name"`
	AppID            string         `json:"app_id"`
	Steps            []grammar.Step `json:"steps"`
	Slots            []Slot         `json:"slots,omitempty"`
	SuccessCondition *grammar.Step  `json:"success_condition,omitempty"`
	Notes            []string       `json:"notes,omitempty"`
	CompiledAt       time.Time      `json:"compiled_at"`
}

// CloneSteps returns a deep copy of the step list, safe to substitute into.
func (c *Capability) CloneSteps() []grammar.Step {
	out := make([]grammar.Step, len(c.Steps))
	for i, s := range c.Steps {
		out[i] = s.Clone()
	}
	return out
}

// SlotNames returns the slot names in declaration order.
func (c *Capability) SlotNames() []string {
	names := make([]string, len(c.Slots))
	for i, s := range c.Slots {
		names[i] = s.Name
	}
	return names
}

// EmptyMethodError reports a method that contains no action step. Such a
// recording observes but never interacts, so there is nothing to invoke.
type EmptyMethodError struct {
	Method string
}

func (e *EmptyMethodError) Error() string {
	return fmt.Sprintf("method %q has no action step", e.Method)
}
