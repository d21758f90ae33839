package describe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"capgen/internal/capability"
	"capgen/internal/grammar"
)

type mockClient struct {
	responses []mockResponse
	prompts   []string
}

type mockResponse struct {
	text string
	err  error
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if len(m.responses) == 0 {
		return "", errors.New("no queued response")
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next.text, next.err
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return m.Complete(ctx, user)
}

func testGenerator(mock *mockClient) *Generator {
	g := NewGenerator(mock, zap.NewNop())
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func sleepCapability(t *testing.T) *capability.Capability {
	t.Helper()
	m, err := grammar.ParseMethod(`public void deleteAllSleepsTest() {
        onView(withContentDescription("More options")).perform(click());
        onView(withText("Delete all sleeps")).perform(click());
        onView(withText("YES")).perform(click());
    }`)
	require.NoError(t, err)
	c, err := capability.NewCompiler().Compile("hu.vmiklos.plees_tracker", m)
	require.NoError(t, err)
	return c
}

func TestDescribeReady(t *testing.T) {
	mock := &mockClient{responses: []mockResponse{{text: `{
		"summary": "Deletes every recorded sleep entry.",
		"intents": ["Delete all sleep records", "Clear my sleep history"]
	}`}}}
	g := testGenerator(mock)

	d := g.Describe(context.Background(), sleepCapability(t), "A sleep tracking app.")
	assert.Equal(t, StatusReady, d.Status)
	assert.Equal(t, "Deletes every recorded sleep entry.", d.Summary)
	assert.Equal(t, []string{"Delete all sleep records", "Clear my sleep history"}, d.Intents)
	assert.Equal(t, "deleteAllSleeps", d.Capability.Name)

	require.Len(t, mock.prompts, 1)
	assert.Contains(t, mock.prompts[0], "A sleep tracking app.")
	assert.Contains(t, mock.prompts[0], `withText("Delete all sleeps")`)
}

func TestDescribeRetriesThenSucceeds(t *testing.T) {
	mock := &mockClient{responses: []mockResponse{
		{err: errors.New("transient")},
		{text: `{"summary": "s", "intents": ["Do the thing"]}`},
	}}
	g := testGenerator(mock)

	d := g.Describe(context.Background(), sleepCapability(t), "")
	assert.Equal(t, StatusReady, d.Status)
	assert.Len(t, mock.prompts, 2)
}

func TestDescribePendingAfterSecondFailure(t *testing.T) {
	mock := &mockClient{responses: []mockResponse{
		{err: errors.New("down")},
		{text: `{"summary": "s", "intents": []}`},
	}}
	g := testGenerator(mock)

	d := g.Describe(context.Background(), sleepCapability(t), "")
	assert.Equal(t, StatusPending, d.Status)
	assert.Empty(t, d.Intents)
	assert.Empty(t, d.Summary)
}

func TestAppSummarySkipsPendingDescriptors(t *testing.T) {
	mock := &mockClient{responses: []mockResponse{{text: "You can track and delete sleeps."}}}
	g := testGenerator(mock)

	descriptors := []SkillDescriptor{
		{Status: StatusReady, Intents: []string{"Start sleep tracking"}},
		{Status: StatusPending},
		{Status: StatusReady, Intents: []string{"Delete all sleep records"}},
	}
	summary, err := g.AppSummary(context.Background(), "hu.vmiklos.plees_tracker", "", descriptors)
	require.NoError(t, err)
	assert.Equal(t, "You can track and delete sleeps.", summary)
	assert.Contains(t, mock.prompts[0], "- Start sleep tracking")
	assert.Contains(t, mock.prompts[0], "- Delete all sleep records")
}

func TestAppSummaryNoReadyDescriptors(t *testing.T) {
	g := testGenerator(&mockClient{})
	_, err := g.AppSummary(context.Background(), "app", "", []SkillDescriptor{{Status: StatusPending}})
	assert.Error(t, err)
}
