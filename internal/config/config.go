package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the CLI uses
type Config struct {
	LogLevel    string
	Browser     Browser
	Capture     Capture
	Replay      Replay
	Store       Store
	Screenshots Screenshots
	AI          AI
}

type Browser struct {
	Headless bool
	Width    int
	Height   int
	Profile  string // Chrome/Chromium profile directory for authenticated sessions
}

type Capture struct {
	InputQuiet time.Duration
	HoverQuiet time.Duration
}

type Replay struct {
	PollInterval   time.Duration
	ElementTimeout time.Duration
	StepDelay      time.Duration
}

type Store struct {
	Driver string // sqlite or yaml
	Path   string
}

type Screenshots struct {
	Enabled  bool
	MaxWidth uint
}

type AI struct {
	Provider string // claude or openai
	Model    string
}

// DefaultPaths are searched for steprec.yaml
var DefaultPaths = []string{".", "$HOME/.steprec", "/etc/steprec"}

// New returns a viper instance with defaults, STEPREC_ environment
// variables, and the config search paths set up
func New(paths ...string) *viper.Viper {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.profile", "")
	v.SetDefault("capture.input_quiet", 300*time.Millisecond)
	v.SetDefault("capture.hover_quiet", 100*time.Millisecond)
	v.SetDefault("replay.poll_interval", 100*time.Millisecond)
	v.SetDefault("replay.element_timeout", 30*time.Second)
	v.SetDefault("replay.step_delay", time.Duration(0))
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "")
	v.SetDefault("screenshots.enabled", true)
	v.SetDefault("screenshots.max_width", 320)
	v.SetDefault("ai.provider", "claude")
	v.SetDefault("ai.model", "")

	v.SetEnvPrefix("STEPREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("steprec")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, path := range paths {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	return v
}

// Load reads the config file if one exists and resolves every setting
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		LogLevel: v.GetString("log.level"),
		Browser: Browser{
			Headless: v.GetBool("browser.headless"),
			Width:    v.GetInt("browser.width"),
			Height:   v.GetInt("browser.height"),
			Profile:  v.GetString("browser.profile"),
		},
		Capture: Capture{
			InputQuiet: v.GetDuration("capture.input_quiet"),
			HoverQuiet: v.GetDuration("capture.hover_quiet"),
		},
		Replay: Replay{
			PollInterval:   v.GetDuration("replay.poll_interval"),
			ElementTimeout: v.GetDuration("replay.element_timeout"),
			StepDelay:      v.GetDuration("replay.step_delay"),
		},
		Store: Store{
			Driver: v.GetString("store.driver"),
			Path:   v.GetString("store.path"),
		},
		Screenshots: Screenshots{
			Enabled:  v.GetBool("screenshots.enabled"),
			MaxWidth: v.GetUint("screenshots.max_width"),
		},
		AI: AI{
			Provider: v.GetString("ai.provider"),
			Model:    v.GetString("ai.model"),
		},
	}

	if cfg.Store.Path == "" {
		path, err := defaultStorePath(cfg.Store.Driver)
		if err != nil {
			return nil, err
		}
		cfg.Store.Path = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "yaml":
	default:
		return fmt.Errorf("store.driver must be sqlite or yaml, got %q", c.Store.Driver)
	}
	switch c.AI.Provider {
	case "claude", "openai":
	default:
		return fmt.Errorf("ai.provider must be claude or openai, got %q", c.AI.Provider)
	}
	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser size must be positive, got %dx%d", c.Browser.Width, c.Browser.Height)
	}
	for name, d := range map[string]time.Duration{
		"capture.input_quiet":  c.Capture.InputQuiet,
		"capture.hover_quiet":  c.Capture.HoverQuiet,
		"replay.poll_interval": c.Replay.PollInterval,
		"replay.step_delay":    c.Replay.StepDelay,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func defaultStorePath(driver string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	if driver == "yaml" {
		return filepath.Join(home, ".steprec", "flows"), nil
	}
	return filepath.Join(home, ".steprec", "steprec.db"), nil
}
