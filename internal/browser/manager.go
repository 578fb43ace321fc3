// CLAUDE:SUMMARY Manages the Chrome lifecycle: launch with profile/stealth flags or attach to a remote instance, open pages, shut down without destroying persistent profiles.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/tabkeeper/internal/config"
)

// Manager owns the single browser connection. All pages are opened through
// it; closing it tears down every page.
type Manager struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu         sync.RWMutex
	browser    *rod.Browser
	lnch       *launcher.Launcher
	controlURL string
	closed     bool
}

// NewManager creates a browser Manager. Call Start to launch or attach.
func NewManager(cfg config.BrowserConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Start launches Chrome, or attaches to the instance at cfg.Remote when
// set. Safe to call once; restarting requires a new Manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return fmt.Errorf("browser: already started")
	}

	wsURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect %s: %w", wsURL, err)
	}

	// Ignore certificate errors for dev/testing.
	if err := b.IgnoreCertErrors(true); err != nil {
		m.logger.Warn("browser: ignore cert errors failed", "error", err)
	}

	m.browser = b
	m.controlURL = wsURL
	m.logger.Info("browser: connected", "url", wsURL, "mode", m.cfg.Mode, "stealth", m.cfg.Stealth)
	return nil
}

func (m *Manager) resolveControlURL() (string, error) {
	if m.cfg.Remote != "" {
		if strings.HasPrefix(m.cfg.Remote, "ws://") || strings.HasPrefix(m.cfg.Remote, "wss://") {
			m.logger.Info("browser: attaching to remote", "url", m.cfg.Remote)
			return m.cfg.Remote, nil
		}
		// http://host:port or host:port — resolve via /json/version.
		u, err := launcher.ResolveURL(m.cfg.Remote)
		if err != nil {
			return "", fmt.Errorf("browser: resolve remote %s: %w", m.cfg.Remote, err)
		}
		m.logger.Info("browser: attaching to remote", "url", u)
		return u, nil
	}

	l := launcher.New().
		Headless(m.cfg.Mode == config.ModeHeadless).
		Set("disable-blink-features", "AutomationControlled").
		Set("remote-debugging-port", strconv.Itoa(m.cfg.DebugPort))
	if m.cfg.ProfileDir != "" {
		l = l.UserDataDir(m.cfg.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("browser: launch: %w", err)
	}
	m.lnch = l
	m.logger.Info("browser: launched local chrome", "url", u, "profile", m.cfg.ProfileDir)
	return u, nil
}

// Browser returns the Rod browser handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// ControlURL returns the WebSocket URL of the browser connection, or ""
// before Start.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// Alive reports whether the browser still answers CDP calls.
func (m *Manager) Alive(ctx context.Context) bool {
	b := m.Browser()
	if b == nil {
		return false
	}
	_, err := b.Context(ctx).Version()
	return err == nil
}

// NewPage opens a blank page, with the stealth script injected when
// configured.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	m.mu.RLock()
	b := m.browser
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	b = b.Context(ctx)
	var (
		page *rod.Page
		err  error
	)
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	return &Page{
		p:          page,
		navTimeout: m.cfg.NavTimeout(),
		logger:     m.logger,
	}, nil
}

// Stop closes the browser connection and, for locally launched Chrome,
// kills the process. A persistent profile dir is left intact; only
// throwaway profiles are cleaned up.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("browser: close failed", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Kill()
		if m.cfg.ProfileDir == "" {
			m.lnch.Cleanup()
		}
		m.lnch = nil
	}
	return nil
}
