package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Turn is one prior conversation turn passed to the classifier for
// pronoun and context resolution.
type Turn struct {
	Role    string
	Message string
}

// ClassificationResult is the classifier's verdict on one user message.
// MatchedIntent is always one of the allowed intents or empty; Candidates
// is non-empty only when several intents fit equally well.
type ClassificationResult struct {
	Supported     bool     `json:"is_supported"`
	MatchedIntent string   `json:"matched_intent"`
	Candidates    []string `json:"candidates"`
	Reason        string   `json:"reason"`
}

// ClassifierUnavailableError reports that the classifier could not produce
// a verdict after its retry. The caller must leave conversation state
// untouched and surface a retryable error.
type ClassifierUnavailableError struct {
	Err error
}

func (e *ClassifierUnavailableError) Error() string {
	return fmt.Sprintf("classifier unavailable: %v", e.Err)
}

func (e *ClassifierUnavailableError) Unwrap() error { return e.Err }

// Classifier matches free-form user messages against an app's allowed
// intent list. One failed attempt is retried after RetryDelay; a second
// failure yields ClassifierUnavailableError.
type Classifier struct {
	Client     Client
	RetryDelay time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewClassifier returns a classifier with a one second retry delay.
func NewClassifier(client Client) *Classifier {
	return &Classifier{Client: client, RetryDelay: time.Second}
}

// Classify decides whether the message matches one of the allowed intents.
// The model only ever chooses among the provided list; an answer outside
// it is treated as unsupported.
func (c *Classifier) Classify(ctx context.Context, appID, message string, allowed []string, history []Turn) (*ClassificationResult, error) {
	if len(allowed) == 0 {
		return &ClassificationResult{Supported: false, Reason: "no intents defined for this app"}, nil
	}
	prompt := buildClassifyPrompt(appID, message, allowed, history)

	result, err := c.classifyOnce(ctx, prompt)
	if err != nil {
		if serr := c.wait(ctx); serr != nil {
			return nil, &ClassifierUnavailableError{Err: err}
		}
		result, err = c.classifyOnce(ctx, prompt)
		if err != nil {
			return nil, &ClassifierUnavailableError{Err: err}
		}
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, intent := range allowed {
		allowedSet[intent] = true
	}
	if result.MatchedIntent != "" && !allowedSet[result.MatchedIntent] {
		result.Supported = false
		result.MatchedIntent = ""
		result.Reason = "model answered outside the allowed intent list"
	}
	var candidates []string
	for _, cand := range result.Candidates {
		if allowedSet[cand] {
			candidates = append(candidates, cand)
		}
	}
	result.Candidates = candidates
	return result, nil
}

func (c *Classifier) classifyOnce(ctx context.Context, prompt string) (*ClassificationResult, error) {
	raw, err := c.Client.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var result ClassificationResult
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &result); err != nil {
		return nil, fmt.Errorf("unparseable classifier output: %w", err)
	}
	return &result, nil
}

// IsCapabilityQuestion classifies whether the message asks what the app
// can do rather than requesting a specific action.
func (c *Classifier) IsCapabilityQuestion(ctx context.Context, message string) (bool, error) {
	prompt := strings.Join([]string{
		"You classify whether a user message is asking about an app's capabilities",
		"(a summary of what the app can do) rather than requesting a specific action.",
		"",
		"Examples that SHOULD be classified as YES (asking for a summary of intents):",
		`- "What can you do?"`,
		`- "What can this app do?"`,
		`- "What functions do you support?"`,
		`- "Help"`,
		"",
		"Examples that SHOULD be classified as NO (specific actions, not capability questions):",
		`- "Delete all my sleep records"`,
		`- "Add a medicine called Claritin"`,
		`- "Open the statistics screen"`,
		"",
		"User message:",
		message,
		"",
		"Answer with exactly one word: YES or NO.",
	}, "\n")

	raw, err := c.Client.Complete(ctx, prompt)
	if err != nil {
		return false, err
	}
	answer := strings.ToUpper(strings.TrimSpace(raw))
	return strings.HasPrefix(answer, "YES"), nil
}

func (c *Classifier) wait(ctx context.Context) error {
	if c.sleep != nil {
		return c.sleep(ctx, c.RetryDelay)
	}
	select {
	case <-time.After(c.RetryDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildClassifyPrompt(appID, message string, allowed []string, history []Turn) string {
	var b strings.Builder
	b.WriteString("You are an intent classifier for a single mobile app. ")
	b.WriteString("Your job is to decide whether the user's request matches one of the ")
	b.WriteString("allowed intents for this app.\n\n")
	fmt.Fprintf(&b, "App id: %s\n\n", appID)

	b.WriteString("Allowed intents (each line is one intent string):\n")
	for i, intent := range allowed {
		fmt.Fprintf(&b, "%d. %s\n", i+1, intent)
	}

	b.WriteString("\nRecent conversation history (oldest to newest):\n")
	if len(history) == 0 {
		b.WriteString("None\n")
	} else {
		start := 0
		if len(history) > 4 {
			start = len(history) - 4
		}
		for _, turn := range history[start:] {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Message)
		}
	}

	b.WriteString("\nCurrent user request:\n")
	b.WriteString(message)
	b.WriteString("\n\n")

	b.WriteString("Decide the following and respond ONLY with a single valid JSON object.\n")
	b.WriteString("- is_supported: true or false.\n")
	b.WriteString("- matched_intent: if is_supported is true, the SINGLE best intent string, ")
	b.WriteString("exactly as it appears in the allowed intents list; otherwise null.\n")
	b.WriteString("- candidates: if SEVERAL intents fit the request equally well, list them all ")
	b.WriteString("exactly as they appear in the allowed intents list; otherwise an empty list.\n")
	b.WriteString("- reason: a short natural-language explanation of your decision (at most 20 words).\n\n")

	b.WriteString("The JSON must:\n")
	b.WriteString("- use double quotes for all keys and string values (standard JSON).\n")
	b.WriteString("- NOT include any markdown, code fences, or backticks.\n")
	b.WriteString("- NOT include any extra commentary before or after the JSON.\n")
	b.WriteString(`The JSON must have exactly these keys: "is_supported", "matched_intent", "candidates", "reason".`)
	return b.String()
}
