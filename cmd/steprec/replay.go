package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/v0xg/steprec/internal/dom"
	"github.com/v0xg/steprec/internal/gifgen"
	"github.com/v0xg/steprec/internal/replay"
	"github.com/v0xg/steprec/internal/session"
)

const replayBindings = "poll-interval=replay.poll_interval,element-timeout=replay.element_timeout,step-delay=replay.step_delay"

func replayFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("poll-interval", 0, "How often waitForElement polls (default 100ms)")
	cmd.Flags().Duration("element-timeout", 0, "How long waitForElement waits (default 30s, negative waits forever)")
	cmd.Flags().Duration("step-delay", 0, "Pause between steps")
}

func replayCmd(a *app) *cobra.Command {
	var url, gifPath string
	var tween int

	cmd := &cobra.Command{
		Use:   "replay <name>",
		Short: "Replay a saved sequence in a browser",
		Long: `replay opens the URL the sequence was recorded on (or --url) and performs
every step in order. Steps whose element is missing are skipped; a failed
assertion stops the replay. --gif records a frame per step with the pointer
drawn in.`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"bindings": replayBindings},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.replayLive(args[0], url, gifPath, tween)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Start page (default: where recording started)")
	cmd.Flags().StringVarP(&gifPath, "gif", "o", "", "Write an animated GIF of the replay")
	cmd.Flags().IntVar(&tween, "tween", 6, "In-between frames for each pointer move in the GIF")
	replayFlags(cmd)
	return cmd
}

func replayHTMLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay-html <name> <file.html>",
		Short: "Replay a saved sequence against a local HTML file without a browser",
		Long: `replay-html loads the file into an in-memory document and replays the
sequence against it. Scripts are not executed; navigation follows file://
and http(s) links. Useful to check that locators still match after a
markup change.`,
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"bindings": replayBindings},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.replayHTML(args[0], args[1])
		},
	}
	replayFlags(cmd)
	return cmd
}

func (a *app) interpreter(observer func(replay.StepResult)) *replay.Interpreter {
	return replay.New(replay.Options{
		PollInterval:   a.cfg.Replay.PollInterval,
		ElementTimeout: a.cfg.Replay.ElementTimeout,
		StepDelay:      a.cfg.Replay.StepDelay,
		Logger:         a.log,
		Observer:       observer,
	})
}

// load reads the sequence name into a fresh session
func (a *app) load(ctx context.Context, name string) (*session.Controller, error) {
	sess := a.session(session.Options{})
	if err := sess.Load(ctx, name); err != nil {
		sess.Close()
		return nil, fmt.Errorf("failed to load %q: %w", name, err)
	}
	return sess, nil
}

func (a *app) replayLive(name, url, gifPath string, tween int) error {
	ctx, stop := interruptible()
	defer stop()

	sess, err := a.load(ctx, name)
	if err != nil {
		return err
	}
	defer sess.Close()

	if url == "" {
		url = sess.Snapshot().Origin
	}
	if url == "" {
		return fmt.Errorf("%q has no start page, pass --url", name)
	}

	b, err := a.launch(a.cfg.Browser.Headless || gifPath != "")
	if err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}
	defer b.Close()

	p, err := a.open(ctx, b, url)
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}

	var film *gifgen.Film
	if gifPath != "" {
		film = gifgen.NewFilm(ctx, p)
	}
	observer := func(r replay.StepResult) {
		a.logStep(r)
		if film != nil {
			film.Observe(r)
		}
	}

	a.log.Println("→ Replaying %s (%d actions)", name, sess.Len())
	out, replayErr := sess.Replay(ctx, p, a.interpreter(observer))

	if film != nil && film.Len() > 0 {
		a.log.Progress("Generating GIF (%d frames)", film.Len())
		size, err := film.Write(gifPath, tween, gifgen.Options{})
		if err != nil {
			a.log.Fail()
			return fmt.Errorf("GIF generation failed: %w", err)
		}
		a.log.Done("%.1f MB", float64(size)/(1024*1024))
		for _, err := range film.Errors() {
			a.log.Warn("Missing frame: %v", err)
		}
	}
	return a.report(out, replayErr)
}

func (a *app) replayHTML(name, file string) error {
	ctx, stop := interruptible()
	defer stop()

	sess, err := a.load(ctx, name)
	if err != nil {
		return err
	}
	defer sess.Close()

	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	doc, err := dom.Open(ctx, "file://"+abs, dom.HTTPLoader{})
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", file, err)
	}

	a.log.Println("→ Replaying %s against %s (%d actions)", name, file, sess.Len())
	out, replayErr := sess.Replay(ctx, doc, a.interpreter(a.logStep))
	if replayErr == nil {
		a.log.Println("  %d DOM events, ended on %s", len(doc.Events()), doc.URL())
	}
	return a.report(out, replayErr)
}

func (a *app) logStep(r replay.StepResult) {
	switch {
	case r.Err != nil:
		a.log.Println("  [%d] %s ✗", r.Index+1, r.Action)
	case r.Skipped:
		a.log.Println("  [%d] %s (skipped, element not found)", r.Index+1, r.Action)
	default:
		a.log.Println("  [%d] %s", r.Index+1, r.Action)
	}
}

// report prints the outcome; a failed or canceled replay is an error
func (a *app) report(out *replay.Outcome, err error) error {
	if out == nil {
		return err
	}
	skipped := len(out.Skipped())
	switch out.Status {
	case replay.Completed:
		a.log.Success("Replayed %d steps (%d skipped)", len(out.Steps), skipped)
		return nil
	case replay.Canceled:
		a.log.Warn("Replay canceled before step %d", out.FailedAt+1)
		return err
	default:
		return fmt.Errorf("replay failed: %w", err)
	}
}
