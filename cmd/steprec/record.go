package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/v0xg/steprec/internal/action"
	"github.com/v0xg/steprec/internal/browser"
	"github.com/v0xg/steprec/internal/capture"
	"github.com/v0xg/steprec/internal/session"
)

// bindLocal binds "flag=key" pairs from a command annotation
func bindLocal(v *viper.Viper, cmd *cobra.Command, bindings string) error {
	for _, pair := range strings.Split(bindings, ",") {
		flag, key, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("bad flag binding %q", pair)
		}
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}

func recordCmd(a *app) *cobra.Command {
	var name string
	var script bool

	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record interactions in a browser until Ctrl-C",
		Long: `record opens url in a browser window and records every click, input, hover,
drag and drop, selection, file choice, key press and scroll you make. Press
Ctrl-C to stop. The sequence is saved under --name and/or printed as a
Playwright script with --script.`,
		Args: cobra.ExactArgs(1),
		Annotations: map[string]string{
			"bindings": "input-quiet=capture.input_quiet,hover-quiet=capture.hover_quiet,screenshots=screenshots.enabled",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.record(args[0], name, script)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Save the sequence under this name")
	cmd.Flags().BoolVar(&script, "script", false, "Print the Playwright script when done")
	cmd.Flags().Duration("input-quiet", 0, "Quiet period before an input is recorded (default 300ms)")
	cmd.Flags().Duration("hover-quiet", 0, "Quiet period before a hover is recorded (default 100ms)")
	cmd.Flags().Bool("screenshots", true, "Attach a thumbnail to every recorded step")
	return cmd
}

func (a *app) record(url, name string, script bool) error {
	if name == "" && !script {
		script = true
	}

	ctx, stop := interruptible()
	defer stop()

	b, err := a.launch(a.cfg.Browser.Headless)
	if err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}
	defer b.Close()

	p, err := a.open(ctx, b, url)
	if err != nil {
		return fmt.Errorf("open failed: %w", err)
	}

	opts := session.Options{}
	if a.cfg.Screenshots.Enabled {
		opts.Screenshots = p
	}
	sess := a.session(opts)
	defer sess.Close()

	// screenshot attachments also report a change; print each action once
	var mu sync.Mutex
	printed, failures := 0, 0
	sess.OnChange(func(actions []action.Action) {
		mu.Lock()
		defer mu.Unlock()
		for ; printed < len(actions); printed++ {
			a.log.Println("  [%d] %s", printed+1, actions[printed])
		}
	})
	sess.OnError(func(err error) {
		mu.Lock()
		failures++
		mu.Unlock()
	})

	rec, err := browser.NewRecorder(p)
	if err != nil {
		return fmt.Errorf("failed to install recorder: %w", err)
	}
	defer rec.Close()

	pipe := capture.New(rec, sess, sess, capture.Options{
		InputQuiet: a.cfg.Capture.InputQuiet,
		HoverQuiet: a.cfg.Capture.HoverQuiet,
		Logger:     a.log,
	})
	pipe.Attach()
	if err := sess.Start(p.URL()); err != nil {
		return err
	}

	a.log.Println("→ Recording on %s, press Ctrl-C to stop", url)
	<-ctx.Done()

	sess.Stop()
	pipe.Detach()
	sess.Wait()
	a.log.Println("")

	mu.Lock()
	if failures > 0 {
		a.log.Warn("%d capture problems, see the log above", failures)
	}
	mu.Unlock()
	if sess.Len() == 0 {
		a.log.Warn("Nothing recorded")
		return nil
	}

	if name != "" {
		a.log.Progress("Saving %q", name)
		// the interrupt canceled ctx; saving must still go through
		if err := sess.Save(context.Background(), name); err != nil {
			a.log.Fail()
			return fmt.Errorf("save failed: %w", err)
		}
		a.log.Done("%d actions", sess.Len())
	}
	if script {
		fmt.Print(sess.Compile(""))
	}
	if name != "" {
		a.log.Success("Saved %s", name)
	}
	return nil
}
