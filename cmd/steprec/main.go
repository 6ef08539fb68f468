package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/v0xg/steprec/internal/browser"
	"github.com/v0xg/steprec/internal/config"
	"github.com/v0xg/steprec/internal/log"
	"github.com/v0xg/steprec/internal/session"
	"github.com/v0xg/steprec/internal/store"
)

// app is what every command needs once flags and config are resolved
type app struct {
	v     *viper.Viper
	cfg   *config.Config
	log   *log.Logger
	store store.Store
}

var configDir string

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	a := &app{log: log.New()}

	rootCmd := &cobra.Command{
		Use:   "steprec",
		Short: "Record, replay and export browser interaction sequences",
		Long: `steprec records what you do in a browser as a sequence of steps, stores it,
replays it against a live page, and compiles it into a Playwright script.

Example:
  steprec record https://myapp.com --name signup
  steprec replay signup --gif signup.gif
  steprec compile signup > signup.js`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config", "", "Directory containing steprec.yaml")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("store", "sqlite", "Store driver: sqlite, yaml")
	flags.String("store-path", "", "Database file or flow directory (default under ~/.steprec)")
	flags.Bool("headless", false, "Run the browser without a window")
	flags.Int("width", 1280, "Viewport width")
	flags.Int("height", 720, "Viewport height")
	flags.String("profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")

	rootCmd.AddCommand(
		recordCmd(a),
		replayCmd(a),
		replayHTMLCmd(a),
		compileCmd(a),
		showCmd(a),
		listCmd(a),
		deleteCmd(a),
		draftCmd(a),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// persistent flag name -> config key
var rootBindings = map[string]string{
	"log-level":  "log.level",
	"store":      "store.driver",
	"store-path": "store.path",
	"headless":   "browser.headless",
	"width":      "browser.width",
	"height":     "browser.height",
	"profile":    "browser.profile",
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if configDir != "" {
		a.v = config.New(configDir)
	} else {
		a.v = config.New()
	}

	for flag, key := range rootBindings {
		if err := a.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	if b, ok := cmd.Annotations["bindings"]; ok {
		if err := bindLocal(a.v, cmd, b); err != nil {
			return err
		}
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if err := a.log.SetLevelName(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	a.log.Debug("Config: store=%s:%s headless=%v", cfg.Store.Driver, cfg.Store.Path, cfg.Browser.Headless)

	a.store, err = store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("Failed to close store: %v", err)
		}
	}
}

// session returns a controller bound to the store
func (a *app) session(opts session.Options) *session.Controller {
	opts.Store = a.store
	opts.Logger = a.log
	if opts.MaxWidth == 0 {
		opts.MaxWidth = a.cfg.Screenshots.MaxWidth
	}
	return session.New(opts)
}

// launch starts a browser configured from the browser.* keys
func (a *app) launch(headless bool) (*browser.Browser, error) {
	a.log.Progress("Launching browser")
	b, err := browser.Launch(browser.Options{
		Headless:      headless,
		Width:         a.cfg.Browser.Width,
		Height:        a.cfg.Browser.Height,
		ProfileDir:    a.cfg.Browser.Profile,
		ActionTimeout: a.cfg.Replay.ElementTimeout,
		Logger:        a.log,
	})
	if err != nil {
		a.log.Fail()
		return nil, err
	}
	a.log.Done("")
	return b, nil
}

// open opens url in a new tab
func (a *app) open(ctx context.Context, b *browser.Browser, url string) (*browser.Page, error) {
	a.log.Progress("Opening %s", url)
	p, err := b.Open(ctx, url)
	if err != nil {
		a.log.Fail()
		return nil, err
	}
	a.log.Done("")
	return p, nil
}

// interruptible returns a context canceled by Ctrl-C or SIGTERM
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
