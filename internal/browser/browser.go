// Package browser drives a real Chromium through go-rod and exposes its
// pages as live documents for capture and replay.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"github.com/v0xg/steprec/internal/log"
)

// Options configures the browser
type Options struct {
	Headless      bool
	Width         int
	Height        int
	Timeout       time.Duration // page load timeout, default 30s
	ActionTimeout time.Duration // how long a click waits for its element to be interactable, default 30s
	ProfileDir    string        // Chrome/Chromium profile directory for authenticated sessions
	Logger        *log.Logger
}

// Browser owns one Chromium process
type Browser struct {
	opts    Options
	browser *rod.Browser
	log     *logrus.Entry
}

// Launch starts Chromium and connects to it
func Launch(opts Options) (b *Browser, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during launch: %v", r)
		}
	}()

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = 30 * time.Second
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}

	path, _ := launcher.LookPath()
	l := launcher.New().Bin(path).Headless(opts.Headless)
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	rb := rod.New().ControlURL(u)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Browser{opts: opts, browser: rb, log: opts.Logger.WithField("component", "browser")}, nil
}

// Close cleans up browser resources
func (b *Browser) Close() {
	if b.browser != nil {
		b.browser.Close()
	}
}

// Open creates a tab on url and waits for it to settle
func (b *Browser) Open(ctx context.Context, url string) (p *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic opening %s: %v", url, r)
		}
	}()

	rp, err := b.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", url, err)
	}

	err = rp.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		rp.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	p = newPage(rp, b.log.WithField("url", url))
	p.ActionTimeout = b.opts.ActionTimeout
	if err := p.settle(ctx, b.opts.Timeout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// settle waits for load, then briefly for network quiet and for something
// interactive to render, so SPAs are usable before the first step
func (p *Page) settle(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.rp.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("page did not load: %w", err)
	}

	// don't hang on persistent connections
	p.rp.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()

	waitForInteractiveElements(ctx, p.rp, 5*time.Second)
	return nil
}

// waitForInteractiveElements polls until interactive elements appear or timeout
func waitForInteractiveElements(ctx context.Context, rp *rod.Page, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	checkInterval := 200 * time.Millisecond

	for time.Now().Before(deadline) {
		res, err := rp.Context(ctx).Eval(`() => {
			const found = document.querySelectorAll('button, [role="button"], input:not([type="hidden"]), textarea, select, a[href]');
			let visible = 0;
			found.forEach(el => { if (el.offsetParent) visible++; });
			return visible;
		}`)
		if err != nil {
			return
		}
		if res.Value.Int() > 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(checkInterval):
		}
	}
}
