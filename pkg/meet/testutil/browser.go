// Package testutil drives conference participants in Chrome through Rod.
//
// Each participant gets its own browser process so that participants do
// not share media devices, storage or network state. The Fixture keeps
// track of the two long-lived participants (owner and second participant)
// that most scenarios start from.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserConfig configures Chrome launch options.
type BrowserConfig struct {
	Headless bool          // Run in headless mode (default: true)
	Timeout  time.Duration // Default operation timeout (default: 30s)
	Bin      string        // Chrome binary; empty lets Rod find or download one
}

// DefaultBrowserConfig returns sensible defaults for E2E testing.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless: true,
		Timeout:  30 * time.Second,
	}
}

// BrowserClient is one Chrome instance with a single page.
type BrowserClient struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

// NewBrowserClient creates a Chrome ready for conferencing:
//   - Fake media streams (no real camera/mic required)
//   - Auto-granted media permissions
//   - Desktop capture auto-accepted
//   - No sandbox (for container compatibility)
//   - Autoplay without user gesture
func NewBrowserClient(cfg BrowserConfig) (*BrowserClient, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("no-sandbox").
		Set("disable-gpu").
		Set("use-fake-device-for-media-stream").
		Set("use-fake-ui-for-media-stream").
		Set("auto-accept-this-tab-capture").
		Set("auto-select-desktop-capture-source", "Entire screen").
		Set("autoplay-policy", "no-user-gesture-required")
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}

	return &BrowserClient{
		launcher: l,
		browser:  browser,
		timeout:  cfg.Timeout,
	}, nil
}

// Navigate opens a URL with timeout.
// Returns the page for further interaction.
func (c *BrowserClient) Navigate(url string) (*rod.Page, error) {
	if c.page == nil {
		page, err := c.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("failed to open page: %w", err)
		}
		c.page = page
	}

	if err := c.page.Timeout(c.timeout).Navigate(url); err != nil {
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return c.page, nil
}

// Page returns the current page, or nil if none open.
func (c *BrowserClient) Page() *rod.Page {
	return c.page
}

// Eval evaluates a JavaScript expression and returns the decoded result.
// Requires Navigate() to have been called first.
func (c *BrowserClient) Eval(ctx context.Context, expr string) (any, error) {
	if c.page == nil {
		return nil, errors.New("no page open, call Navigate first")
	}
	res, err := c.page.Context(ctx).Eval(`() => (` + expr + `)`)
	if err != nil {
		return nil, fmt.Errorf("eval failed: %w", err)
	}
	return res.Value.Val(), nil
}

// WaitStable waits for the page to be stable (no DOM changes).
func (c *BrowserClient) WaitStable() error {
	if c.page == nil {
		return errors.New("no page open")
	}
	return c.page.WaitStable(time.Second)
}

// Timeout returns the default operation timeout.
func (c *BrowserClient) Timeout() time.Duration {
	return c.timeout
}

// Close cleans up browser resources.
// Always call this (via defer) to prevent orphaned Chrome processes.
func (c *BrowserClient) Close() error {
	var err error
	if c.browser != nil {
		err = c.browser.Close()
	}
	if c.launcher != nil {
		c.launcher.Kill()
	}
	return err
}
