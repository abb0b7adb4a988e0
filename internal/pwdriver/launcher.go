package pwdriver

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/obs"
)

const (
	DefaultActionTimeout     = 5 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720
)

// Options configures the browser launch.
type Options struct {
	Headless bool
	// Install downloads the driver and browsers before starting.
	Install bool
	// ActionTimeout bounds individual Playwright calls (clicks, reads).
	ActionTimeout     time.Duration
	NavigationTimeout time.Duration
}

// Launcher owns the Playwright driver process and one Chromium browser.
// Sessions opened from it are isolated browser contexts. Safe for
// concurrent use.
type Launcher struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
	closed  bool
}

// Launch starts Playwright and Chromium. A missing driver or browser is
// reported as errs.Unavailable.
func Launch(ctx context.Context, opts Options) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, errs.Wrap(errs.Unavailable, "failed to install playwright", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "playwright not available", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "could not launch browser", err)
	}

	obs.From(ctx).Info("browser launched", "pkg", "pwdriver", "browser", "chromium", "version", browser.Version(), "headless", opts.Headless)
	return &Launcher{pw: pw, browser: browser, opts: opts}, nil
}

// SessionOptions configures one browser context.
type SessionOptions struct {
	// BaseURL resolves relative navigations.
	BaseURL        string
	ViewportWidth  int
	ViewportHeight int
}

// Session is one isolated browser context with a single page.
type Session struct {
	Context playwright.BrowserContext
	Page    playwright.Page

	doc *Document
}

// NewSession opens a fresh browser context and page.
func (l *Launcher) NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errs.New(errs.Unavailable, "browser already closed")
	}

	if opts.ViewportWidth <= 0 || opts.ViewportHeight <= 0 {
		opts.ViewportWidth, opts.ViewportHeight = DefaultViewportWidth, DefaultViewportHeight
	}
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	}
	if opts.BaseURL != "" {
		contextOpts.BaseURL = playwright.String(opts.BaseURL)
	}

	bctx, err := l.browser.NewContext(contextOpts)
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "could not create browser context", err)
	}
	bctx.SetDefaultTimeout(float64(l.opts.ActionTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(l.opts.NavigationTimeout.Milliseconds()))

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, errs.Wrap(errs.Unavailable, "could not create page", err)
	}

	return &Session{
		Context: bctx,
		Page:    page,
		doc:     NewDocument(page, l.opts.NavigationTimeout),
	}, nil
}

// Document returns the session page as a locator.Document.
func (s *Session) Document() *Document {
	return s.doc
}

// Close closes the page and its context.
func (s *Session) Close() error {
	return errors.Join(s.Page.Close(), s.Context.Close())
}

// Close shuts down the browser and the driver. Calling it again is a no-op.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.browser.Close(), l.pw.Stop())
}
