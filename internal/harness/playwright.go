package harness

import (
	"context"

	"github.com/kuitang/e2ekit/internal/config"
	"github.com/kuitang/e2ekit/internal/locator"
	"github.com/kuitang/e2ekit/internal/pwdriver"
)

// LaunchPlaywright starts headless (or headed) Chromium as configured.
func LaunchPlaywright(ctx context.Context, cfg *config.Config) (BrowserDriver, error) {
	l, err := pwdriver.Launch(ctx, pwdriver.Options{
		Headless:          cfg.Headless,
		NavigationTimeout: cfg.NavigationTimeout,
	})
	if err != nil {
		return nil, err
	}
	return playwrightDriver{l}, nil
}

type playwrightDriver struct {
	launcher *pwdriver.Launcher
}

func (d playwrightDriver) Open(ctx context.Context, baseURL string) (Session, error) {
	s, err := d.launcher.NewSession(ctx, pwdriver.SessionOptions{BaseURL: baseURL})
	if err != nil {
		return nil, err
	}
	return playwrightSession{s}, nil
}

func (d playwrightDriver) Close() error {
	return d.launcher.Close()
}

type playwrightSession struct {
	*pwdriver.Session
}

func (s playwrightSession) Document() locator.Document {
	return s.Session.Document()
}
