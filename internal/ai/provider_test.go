package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/browser"
	"github.com/v0xg/steprec/internal/locator"
)

// scripted answers each call with the next reply
type scripted struct {
	replies []string
	err     error
	prompts []string
}

func (s *scripted) Name() string { return "fake" }

func (s *scripted) Complete(ctx context.Context, system, user string) (string, error) {
	s.prompts = append(s.prompts, user)
	if s.err != nil {
		return "", s.err
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

var outline = &browser.Outline{
	URL:   "https://shop.test/",
	Title: "Shop",
	Elements: []browser.OutlineElement{
		{Selector: locator.ForCSS("#q"), Type: "text", Placeholder: "Search"},
	},
}

func TestDraft(t *testing.T) {
	p := &scripted{replies: []string{`Sure! Here you go:
[
  {"type": "input", "selector": {"type": "css", "value": "#q"}, "value": "boots"},
  {"type": "keyPress", "selector": {"type": "css", "value": "#q"}, "key": "Enter", "code": "Enter"},
  {"type": "waitForNavigation"}
]`}}

	actions, err := Draft(context.Background(), p, outline, "search for boots")
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, action.Input{Value: "boots"}, actions[0].Step)
	assert.Equal(t, locator.ForCSS("#q"), actions[0].Locator)
	assert.Equal(t, action.KeyPress{Key: "Enter", Code: "Enter"}, actions[1].Step)
	for _, a := range actions {
		assert.NotEmpty(t, a.ID)
	}
	assert.NotEqual(t, actions[0].ID, actions[1].ID)

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], `"value": "#q"`)
	assert.True(t, strings.HasSuffix(p.prompts[0], "User request: search for boots"))
}

func TestDraftRetriesInvalidAnswer(t *testing.T) {
	p := &scripted{replies: []string{
		`[{"type": "input", "selector": {"type": "window"}, "value": "x"}]`,
		`[{"type": "click", "selector": {"type": "css", "value": "#q"}}]`,
	}}

	actions, err := Draft(context.Background(), p, outline, "click search")
	require.NoError(t, err)
	require.Len(t, actions, 1)

	require.Len(t, p.prompts, 2)
	assert.Contains(t, p.prompts[1], "could not be used")
	assert.Contains(t, p.prompts[1], "action 1")
}

func TestDraftGivesUp(t *testing.T) {
	p := &scripted{replies: []string{"I can't help with that", "[]"}}

	_, err := Draft(context.Background(), p, outline, "x")
	assert.ErrorContains(t, err, "no actions")
	assert.Len(t, p.prompts, Attempts)
}

func TestDraftProviderError(t *testing.T) {
	p := &scripted{err: errors.New("rate limited")}

	_, err := Draft(context.Background(), p, outline, "x")
	assert.ErrorContains(t, err, "fake API error: rate limited")
	assert.Len(t, p.prompts, 1)
}

func TestParseRejectsUnknownKinds(t *testing.T) {
	_, err := parse(`[{"type": "teleport"}]`)
	assert.ErrorIs(t, err, action.ErrInvalid)
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider("bard", "")
	assert.ErrorContains(t, err, "unknown provider")

	t.Setenv("STEPREC_OPENAI_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	_, err = NewProvider("openai", "")
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	t.Setenv("OPENAI_API_KEY", "sk-test")
	p, err := NewProvider("gpt", "")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI", p.Name())
}
