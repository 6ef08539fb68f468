package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/v0xg/steprec/internal/ai"
	"github.com/v0xg/steprec/internal/session"
)

func draftCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "draft <url> <prompt>",
		Short: "Draft a sequence from a natural-language description using AI",
		Long: `draft outlines the interactive elements of url, asks the configured model
for the steps that fulfil prompt, validates them and saves them under --name
(or prints them as JSON).

Example:
  steprec draft "https://myapp.com" "fill email with test@example.com and submit" --name signup`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"bindings": "provider=ai.provider,model=ai.model"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.draft(args[0], args[1], name)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Save the drafted sequence under this name")
	cmd.Flags().String("provider", "", "AI provider: claude, openai (default from config)")
	cmd.Flags().String("model", "", "Specific model override")
	return cmd
}

func (a *app) draft(url, prompt, name string) error {
	ctx, stop := interruptible()
	defer stop()

	a.log.Debug("Draft: url=%s provider=%s prompt=%q", url, a.cfg.AI.Provider, prompt)

	provider, err := ai.NewProvider(a.cfg.AI.Provider, a.cfg.AI.Model)
	if err != nil {
		return fmt.Errorf("AI provider init failed: %w", err)
	}

	b, err := a.launch(true)
	if err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}
	defer b.Close()

	p, err := a.open(ctx, b, url)
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}

	a.log.Progress("Outlining page")
	outline, err := p.Outline(ctx)
	if err != nil {
		a.log.Fail()
		return fmt.Errorf("outline failed: %w", err)
	}
	a.log.Done("found %d interactive elements", len(outline.Elements))

	a.log.Progress("Drafting actions via %s", provider.Name())
	actions, err := ai.Draft(ctx, provider, outline, prompt)
	if err != nil {
		a.log.Fail()
		return fmt.Errorf("draft failed: %w", err)
	}
	a.log.Done("%d actions", len(actions))

	sess := a.session(session.Options{})
	defer sess.Close()
	if err := sess.Start(outline.URL); err != nil {
		return err
	}
	if err := sess.SetActions(actions); err != nil {
		return err
	}
	sess.Stop()

	for i, act := range actions {
		a.log.Println("  [%d] %s", i+1, act)
	}

	if name == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess.Snapshot())
	}
	if err := sess.Save(context.Background(), name); err != nil {
		return fmt.Errorf("save failed: %w", err)
	}
	a.log.Success("Saved %s, try: steprec replay %s", name, name)
	return nil
}
