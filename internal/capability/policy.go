package capability

import (
	"fmt"

	"capgen/internal/grammar"
)

// SlotPolicy decides which recorded literals become free parameters. The
// compiler applies the policy as-is, so swapping the heuristic never
// touches compilation itself.
type SlotPolicy interface {
	Generalize(steps []grammar.Step) []Slot
}

// EchoPolicy is the default generalization heuristic.
//
// Typed input is always caller data: every typeText/replaceText literal
// becomes a slot. Selector and assertion literals are structural by default
// (they name fixed UI surface like "Clear events" or "Save") with one
// exception: a literal equal to text typed at an earlier or equal step is
// an echo of that input, so it joins the typing slot and tracks whatever
// value the caller binds.
type EchoPolicy struct{}

func (EchoPolicy) Generalize(steps []grammar.Step) []Slot {
	var slots []Slot

	typingSlot := func(value string, before int) int {
		for i := len(slots) - 1; i >= 0; i-- {
			if slots[i].Example == value && slots[i].Refs[0].Step <= before {
				return i
			}
		}
		return -1
	}

	for i, step := range steps {
		if step.Kind == grammar.StepAct &&
			(step.Detail.Action == grammar.ActionTypeText || step.Detail.Action == grammar.ActionReplaceText) {
			slots = append(slots, Slot{
				Name:    fmt.Sprintf("slot%d", len(slots)+1),
				Example: step.Detail.Value,
				Refs:    []FieldRef{{Step: i, Target: RefDetail}},
			})
			continue
		}

		if step.Kind == grammar.StepAssert && step.Detail.Assert == grammar.AssertMatchesText {
			if idx := typingSlot(step.Detail.Value, i); idx >= 0 {
				slots[idx].Refs = append(slots[idx].Refs, FieldRef{Step: i, Target: RefDetail})
			}
		}

		if step.Selector == nil {
			continue
		}
		step.Selector.Walk(func(node *grammar.Selector, trail []int) {
			switch node.Kind {
			case grammar.KindByText, grammar.KindByContentDescription:
			default:
				return
			}
			if idx := typingSlot(node.Value, i); idx >= 0 {
				ref := FieldRef{Step: i, Target: RefSelector, Trail: append([]int(nil), trail...)}
				slots[idx].Refs = append(slots[idx].Refs, ref)
			}
		})
	}
	return slots
}
