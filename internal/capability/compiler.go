package capability

import (
	"strings"
	"time"

	"capgen/internal/grammar"
)

// Compiler builds capabilities from parsed methods.
type Compiler struct {
	Policy SlotPolicy
	Now    func() time.Time
}

// NewCompiler returns a compiler with the default generalization policy.
func NewCompiler() *Compiler {
	return &Compiler{Policy: EchoPolicy{}, Now: time.Now}
}

// Compile turns one parsed method into a capability for appID. Methods
// without a single action step yield EmptyMethodError.
func (c *Compiler) Compile(appID string, m *grammar.Method) (*Capability, error) {
	hasAct := false
	for _, step := range m.Steps {
		if step.Kind == grammar.StepAct {
			hasAct = true
			break
		}
	}
	if !hasAct {
		return nil, &EmptyMethodError{Method: m.Name}
	}

	steps := make([]grammar.Step, len(m.Steps))
	for i, s := range m.Steps {
		steps[i] = s.Clone()
	}

	out := &Capability{
		Name:       strings.TrimSuffix(m.Name, "Test"),
		AppID:      appID,
		Steps:      steps,
		Notes:      append([]string(nil), m.Notes...),
		CompiledAt: c.now(),
	}
	out.Slots = c.policy().Generalize(steps)

	if last := steps[len(steps)-1]; last.Kind == grammar.StepAssert {
		cond := last.Clone()
		out.SuccessCondition = &cond
	}
	return out, nil
}

func (c *Compiler) policy() SlotPolicy {
	if c.Policy == nil {
		return EchoPolicy{}
	}
	return c.Policy
}

func (c *Compiler) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
