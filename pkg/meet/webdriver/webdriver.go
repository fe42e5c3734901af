// Package webdriver runs participants through a Selenium/WebDriver
// endpoint instead of the Chrome DevTools protocol. It lets the timing
// suite measure browsers that Rod cannot launch, such as a remote
// Selenium grid node running Firefox.
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/thesyncim/meettorture/pkg/timing"
)

// JoinedExpr is true once the page has joined its room.
const JoinedExpr = `typeof APP !== 'undefined' && !!APP.conference && APP.conference.isJoined()`

// Config describes how to reach the WebDriver endpoint.
type Config struct {
	// HubURL is the remote endpoint, e.g. http://localhost:4444/wd/hub.
	HubURL string

	// Browser is "chrome" or "firefox".
	Browser string

	Headless bool
}

// newRemote connects to the hub; tests replace it.
var newRemote = selenium.NewRemote

// Session is a participant driven through WebDriver.
type Session struct {
	name string
	wd   selenium.WebDriver
}

// Open starts a browser on the hub and loads url.
func Open(cfg Config, name, url string) (*Session, error) {
	caps := selenium.Capabilities{"browserName": cfg.Browser}
	switch cfg.Browser {
	case "chrome":
		args := []string{
			"--use-fake-device-for-media-stream",
			"--use-fake-ui-for-media-stream",
			"--autoplay-policy=no-user-gesture-required",
			"--no-sandbox",
		}
		if cfg.Headless {
			args = append(args, "--headless=new")
		}
		caps.AddChrome(chrome.Capabilities{Args: args})
	case "firefox":
		ff := firefox.Capabilities{Prefs: map[string]interface{}{
			"media.navigator.streams.fake":        true,
			"media.navigator.permission.disabled": true,
		}}
		if cfg.Headless {
			ff.Args = append(ff.Args, "-headless")
		}
		caps.AddFirefox(ff)
	default:
		return nil, fmt.Errorf("unsupported browser %q", cfg.Browser)
	}

	wd, err := newRemote(caps, cfg.HubURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s on %s: %w", cfg.Browser, cfg.HubURL, err)
	}
	if err := wd.Get(url); err != nil {
		wd.Quit()
		return nil, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return &Session{name: name, wd: wd}, nil
}

// Name returns the participant role.
func (s *Session) Name() string {
	return s.name
}

// Driver exposes the underlying WebDriver.
func (s *Session) Driver() selenium.WebDriver {
	return s.wd
}

// Quit ends the browser session.
func (s *Session) Quit() error {
	return s.wd.Quit()
}

// WaitForBoolean polls expr until it returns true.
func (s *Session) WaitForBoolean(expr string, timeout time.Duration) error {
	return s.wd.WaitWithTimeout(func(wd selenium.WebDriver) (bool, error) {
		v, err := wd.ExecuteScript(script(expr), nil)
		if err != nil {
			return false, err
		}
		b, _ := v.(bool)
		return b, nil
	}, timeout)
}

// Evaluator runs checkpoint expressions through WebDriver.
type Evaluator struct{}

var _ timing.Evaluator = Evaluator{}

// Eval executes expr in s, which must be a *Session. WebDriver returns
// numbers as float64, matching what the timing package expects.
func (Evaluator) Eval(ctx context.Context, s timing.Session, expr string) (any, error) {
	ws, ok := s.(*Session)
	if !ok {
		return nil, fmt.Errorf("session %q is %T, not a webdriver session", s.Name(), s)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ws.wd.ExecuteScript(script(expr), nil)
}

func script(expr string) string {
	return "return (" + expr + ");"
}

// Provider restarts a WebDriver participant for the timing collector.
type Provider struct {
	cfg  Config
	url  string
	name string
	cur  *Session
}

var _ timing.SessionProvider = (*Provider)(nil)

// NewProvider returns a Provider that joins url on each restart.
func NewProvider(cfg Config, url string) *Provider {
	return &Provider{cfg: cfg, url: url, name: "secondParticipant"}
}

// Secondary returns the current participant.
func (p *Provider) Secondary(context.Context) (timing.Session, error) {
	if p.cur == nil {
		return nil, errors.New("participant not started")
	}
	return p.cur, nil
}

// RestartSecondary quits the current participant and opens a new one.
func (p *Provider) RestartSecondary(ctx context.Context) (timing.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.cur != nil {
		p.cur.Quit()
		p.cur = nil
	}
	s, err := Open(p.cfg, p.name, p.url)
	if err != nil {
		return nil, err
	}
	p.cur = s
	return s, nil
}

// Close quits s.
func (p *Provider) Close(s timing.Session) error {
	ws, ok := s.(*Session)
	if !ok {
		return fmt.Errorf("session %T is not a webdriver session", s)
	}
	if ws == p.cur {
		p.cur = nil
	}
	return ws.Quit()
}
