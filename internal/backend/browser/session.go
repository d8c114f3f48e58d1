// Package browser implements the Inspector and Actuator on top of a Chrome
// session driven by rod. One Session serves one entity group; it owns the
// browser process and its profile directory.
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"building_monitor/internal/config"
	"building_monitor/internal/logger"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var errSessionClosed = errors.New("browser session is closed")

// Session is an explicit handle on one browser. Open it once per group and
// Close it on every exit path.
type Session struct {
	cfg config.BrowserConfig
	log *logger.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Open launches Chrome with the configured profile directory and opens the
// working tab.
func Open(ctx context.Context, cfg config.BrowserConfig, log *logger.Logger) (*Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		Leakless(true)
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	log.Infow("browser_opened", "profile", cfg.UserDataDir, "headless", cfg.Headless)
	return &Session{cfg: cfg, log: log, launcher: l, browser: b, page: page}, nil
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.launcher.Kill()
	s.browser, s.page = nil, nil
	s.log.Infow("browser_closed", "profile", s.cfg.UserDataDir)
	return err
}

// do runs fn with exclusive use of the working tab. The tab is bound to ctx
// and to the configured element timeout.
func (s *Session) do(ctx context.Context, fn func(p *rod.Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return errSessionClosed
	}
	p := s.page.Context(ctx).Timeout(s.cfg.Timeout)
	return fn(p)
}

func (s *Session) visit(p *rod.Page, url string) error {
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	s.settle(p)
	return nil
}

// settle gives client-side rendering time to fill in the page.
func (s *Session) settle(p *rod.Page) {
	if s.cfg.Settle <= 0 {
		return
	}
	t := time.NewTimer(s.cfg.Settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.GetContext().Done():
	}
}

func (s *Session) entityURL(id string) string {
	return strings.ReplaceAll(s.cfg.EntityURL, "{id}", id)
}

// loggedOut reports whether the login marker is on the page.
func (s *Session) loggedOut(p *rod.Page) (bool, error) {
	if s.cfg.Selectors.LoginMarker == "" {
		return false, nil
	}
	has, _, err := p.Has(s.cfg.Selectors.LoginMarker)
	return has, err
}

// textOf returns the trimmed text of the first element matching selector.
// An empty selector or a missing element yields found == false.
func textOf(p *rod.Page, selector string) (text string, found bool, err error) {
	if selector == "" {
		return "", false, nil
	}
	has, el, err := p.Has(selector)
	if err != nil || !has {
		return "", false, err
	}
	t, err := el.Text()
	if err != nil {
		return "", true, err
	}
	return strings.TrimSpace(t), true, nil
}

// button finds a clickable element by its visible label.
func button(p *rod.Page, label string) (*rod.Element, bool, error) {
	if label == "" {
		return nil, false, nil
	}
	has, el, err := p.HasR("button", "^\\s*"+regexp.QuoteMeta(label)+"\\s*$")
	if err != nil || !has {
		return nil, false, err
	}
	return el, true, nil
}

func click(el *rod.Element) error {
	return el.Click(proto.InputMouseButtonLeft, 1)
}
