// Package plan binds slot values into a capability's step list, producing
// a fully resolved execution plan. A plan that still carries unbound slots
// is never handed to a caller; the resolution layer keeps asking until
// RequireComplete passes.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"capgen/internal/capability"
	"capgen/internal/grammar"
)

// Plan is a capability with concrete values substituted into every slot
// position. Unbound lists slot names that still hold their recorded
// example literals.
type Plan struct {
	Capability       string            `json:"capability"`
	AppID            string            `json:"app_id"`
	Steps            []grammar.Step    `json:"steps"`
	SuccessCondition *grammar.Step     `json:"success_condition,omitempty"`
	Bindings         map[string]string `json:"bindings,omitempty"`
	Unbound          []string          `json:"unbound,omitempty"`
}

// SlotBindingIncompleteError reports an attempt to deliver a plan whose
// slots are not all bound.
type SlotBindingIncompleteError struct {
	Capability string
	Missing    []string
}

func (e *SlotBindingIncompleteError) Error() string {
	return fmt.Sprintf("plan for %q is missing values for %s", e.Capability, strings.Join(e.Missing, ", "))
}

// Build substitutes values into a deep copy of the capability's steps.
// Slots without a value stay on their example literal and are reported in
// Unbound. A value for a slot the capability does not declare is an error.
func Build(c *capability.Capability, values map[string]string) (*Plan, error) {
	declared := make(map[string]bool, len(c.Slots))
	for _, slot := range c.Slots {
		declared[slot.Name] = true
	}
	for name := range values {
		if !declared[name] {
			return nil, fmt.Errorf("capability %q has no slot %q", c.Name, name)
		}
	}

	steps := c.CloneSteps()
	p := &Plan{
		Capability: c.Name,
		AppID:      c.AppID,
		Steps:      steps,
	}
	for _, slot := range c.Slots {
		value, ok := values[slot.Name]
		if !ok {
			p.Unbound = append(p.Unbound, slot.Name)
			continue
		}
		for _, ref := range slot.Refs {
			if err := ref.Apply(steps, value); err != nil {
				return nil, fmt.Errorf("binding slot %q: %w", slot.Name, err)
			}
		}
		if p.Bindings == nil {
			p.Bindings = make(map[string]string)
		}
		p.Bindings[slot.Name] = value
	}
	sort.Strings(p.Unbound)

	if c.SuccessCondition != nil {
		cond := steps[len(steps)-1]
		if cond.Kind == grammar.StepAssert {
			copied := cond.Clone()
			p.SuccessCondition = &copied
		}
	}
	return p, nil
}

// Complete reports whether every slot is bound.
func (p *Plan) Complete() bool {
	return len(p.Unbound) == 0
}

// RequireComplete returns SlotBindingIncompleteError when slots remain
// unbound.
func (p *Plan) RequireComplete() error {
	if p.Complete() {
		return nil
	}
	return &SlotBindingIncompleteError{
		Capability: p.Capability,
		Missing:    append([]string(nil), p.Unbound...),
	}
}

// Script renders the plan as executable source lines, one per step.
func (p *Plan) Script() []string {
	lines := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		lines[i] = step.String()
	}
	return lines
}
