// Package describe generates natural-language skill descriptors for
// compiled capabilities. Descriptors carry the intent phrasings the
// runtime classifier matches against, so a capability without one is
// invisible to users until a later pass fills it in.
package describe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"capgen/internal/capability"
	"capgen/internal/nlu"
)

const (
	StatusReady   = "ready"
	StatusPending = "descriptor_pending"
)

// SkillDescriptor pairs a capability with its generated language surface.
// Status is StatusPending when generation failed; such descriptors persist
// so the next pipeline run can retry, but they contribute no intents.
type SkillDescriptor struct {
	Capability capability.Capability `json:"capability"`
	Intents    []string              `json:"intents,omitempty"`
	Summary    string                `json:"summary,omitempty"`
	Status     string                `json:"status"`
}

// AppSkills is the persisted per-app skills document: every descriptor
// generated for the app plus the app-level capability summary.
type AppSkills struct {
	AppID   string            `json:"app_id"`
	Summary string            `json:"app_summary,omitempty"`
	Skills  []SkillDescriptor `json:"skills"`
}

// Generator produces descriptors using a language model. One failed
// attempt is retried after RetryDelay before giving up on a capability.
type Generator struct {
	Client     nlu.Client
	Logger     *zap.Logger
	RetryDelay time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewGenerator returns a generator with a one second retry delay.
func NewGenerator(client nlu.Client, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{Client: client, Logger: logger, RetryDelay: time.Second}
}

type descriptorPayload struct {
	Summary string   `json:"summary"`
	Intents []string `json:"intents"`
}

// Describe generates the descriptor for one capability. It never returns
// an error: persistent model failure yields a pending descriptor instead,
// and the batch moves on.
func (g *Generator) Describe(ctx context.Context, c *capability.Capability, appIntro string) *SkillDescriptor {
	prompt := buildDescribePrompt(c, appIntro)

	payload, err := g.describeOnce(ctx, prompt)
	if err != nil {
		g.Logger.Warn("descriptor generation failed, retrying",
			zap.String("app_id", c.AppID),
			zap.String("capability", c.Name),
			zap.Error(err))
		if serr := g.wait(ctx); serr == nil {
			payload, err = g.describeOnce(ctx, prompt)
		}
	}
	if err != nil {
		g.Logger.Warn("descriptor generation failed, marking pending",
			zap.String("app_id", c.AppID),
			zap.String("capability", c.Name),
			zap.Error(err))
		return &SkillDescriptor{Capability: *c, Status: StatusPending}
	}

	return &SkillDescriptor{
		Capability: *c,
		Intents:    payload.Intents,
		Summary:    payload.Summary,
		Status:     StatusReady,
	}
}

func (g *Generator) describeOnce(ctx context.Context, prompt string) (*descriptorPayload, error) {
	raw, err := g.Client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var payload descriptorPayload
	if err := json.Unmarshal([]byte(nlu.ExtractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("unparseable descriptor output: %w", err)
	}
	var intents []string
	for _, intent := range payload.Intents {
		if trimmed := strings.TrimSpace(intent); trimmed != "" {
			intents = append(intents, trimmed)
		}
	}
	if len(intents) == 0 {
		return nil, fmt.Errorf("descriptor output has no intents")
	}
	payload.Intents = intents
	payload.Summary = strings.TrimSpace(payload.Summary)
	return &payload, nil
}

// AppSummary produces the one-paragraph capability overview shown when a
// user asks what the app can do. Failure is non-fatal; the caller stores
// an empty summary.
func (g *Generator) AppSummary(ctx context.Context, appID, appIntro string, descriptors []SkillDescriptor) (string, error) {
	var lines []string
	for _, d := range descriptors {
		if d.Status != StatusReady || len(d.Intents) == 0 {
			continue
		}
		lines = append(lines, "- "+d.Intents[0])
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("no ready descriptors for %s", appID)
	}

	var b strings.Builder
	b.WriteString("You are summarizing what a mobile app's voice assistant can do.\n\n")
	if appIntro != "" {
		fmt.Fprintf(&b, "App introduction:\n%s\n\n", appIntro)
	}
	fmt.Fprintf(&b, "App id: %s\n\nSupported actions:\n%s\n\n", appID, strings.Join(lines, "\n"))
	b.WriteString("Write a short, friendly summary (2-3 sentences) of what the user can ask ")
	b.WriteString("this assistant to do. Mention the actions in plain language. ")
	b.WriteString("Output only the summary text, no preamble.")

	summary, err := g.Client.Complete(ctx, b.String())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func (g *Generator) wait(ctx context.Context) error {
	delay := g.RetryDelay
	if g.sleep != nil {
		return g.sleep(ctx, delay)
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildDescribePrompt(c *capability.Capability, appIntro string) string {
	var b strings.Builder
	b.WriteString("You are interpreting an automated interaction sequence for a mobile app.\n\n")
	if appIntro != "" {
		fmt.Fprintf(&b, "App introduction:\n%s\n\n", appIntro)
	}
	fmt.Fprintf(&b, "Sequence name: %s\n\nSteps:\n", c.Name)
	for _, step := range c.Steps {
		b.WriteString(step.String())
		b.WriteByte('\n')
	}
	if len(c.Slots) > 0 {
		b.WriteString("\nFree parameters (with example values from the recording):\n")
		for _, slot := range c.Slots {
			fmt.Fprintf(&b, "- %s: %q\n", slot.Name, slot.Example)
		}
	}
	b.WriteString("\nFocus on the high-level user intent; ignore UI-level details such as ")
	b.WriteString("clicks, views, or matchers.\n\n")
	b.WriteString("Respond ONLY with a single valid JSON object with exactly these keys:\n")
	b.WriteString(`- "summary": what this sequence does, in fewer than 20 words.` + "\n")
	b.WriteString(`- "intents": 2 to 4 alternative phrasings a user might say to trigger it, ` +
		"each under 10 words, none mentioning specific example values when the sequence has free parameters.\n\n")
	b.WriteString("No markdown, no code fences, no commentary outside the JSON.")
	return b.String()
}
