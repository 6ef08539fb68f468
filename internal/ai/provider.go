// Package ai drafts action sequences from a natural-language request.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/browser"
)

// Provider is a chat model that answers one system + user prompt
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(name, model string) (Provider, error) {
	switch name {
	case "claude", "anthropic":
		return NewClaudeProvider(model)
	case "openai", "gpt":
		return NewOpenAIProvider(model)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}

// Attempts bounds how often Draft asks again after an unusable answer
const Attempts = 2

// Draft asks p for actions fulfilling prompt on the outlined page. Every
// returned action is valid and carries a fresh ID.
func Draft(ctx context.Context, p Provider, outline *browser.Outline, prompt string) ([]action.Action, error) {
	outlineJSON, err := json.MarshalIndent(outline, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal page outline: %w", err)
	}

	user := buildUserPrompt(string(outlineJSON), prompt)
	var problem error
	for attempt := 0; attempt < Attempts; attempt++ {
		if problem != nil {
			user = buildRetryPrompt(string(outlineJSON), prompt, problem)
		}

		text, err := p.Complete(ctx, systemPrompt, user)
		if err != nil {
			return nil, fmt.Errorf("%s API error: %w", p.Name(), err)
		}

		actions, err := parse(text)
		if err == nil {
			return actions, nil
		}
		problem = err
	}
	return nil, fmt.Errorf("failed to draft actions with %s: %w", p.Name(), problem)
}

// parse decodes and validates a model answer
func parse(text string) ([]action.Action, error) {
	if text == "" {
		return nil, errors.New("empty response")
	}
	actions, err := action.ParseList(text)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, errors.New("no actions in response")
	}

	var errs []error
	for i := range actions {
		if actions[i].ID == "" {
			actions[i].ID = uuid.NewString()
		}
		if err := actions[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("action %d: %w", i+1, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return actions, nil
}

func apiKey(names ...string) (string, error) {
	for _, name := range names {
		if key := os.Getenv(name); key != "" {
			return key, nil
		}
	}
	if len(names) == 2 {
		return "", fmt.Errorf("%s or %s environment variable required", names[0], names[1])
	}
	return "", fmt.Errorf("%v environment variable required", names)
}
