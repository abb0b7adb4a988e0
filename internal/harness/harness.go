// Package harness registers the standard browser fixtures: config, browser,
// artifacts, page, testUser and authenticatedPage.
package harness

import (
	"context"
	"errors"

	"github.com/kuitang/e2ekit/internal/artifacts"
	"github.com/kuitang/e2ekit/internal/clock"
	"github.com/kuitang/e2ekit/internal/config"
	"github.com/kuitang/e2ekit/internal/fixture"
	"github.com/kuitang/e2ekit/internal/locator"
	"github.com/kuitang/e2ekit/internal/obs"
	"github.com/kuitang/e2ekit/internal/page"
	"github.com/kuitang/e2ekit/internal/retry"
	"github.com/kuitang/e2ekit/internal/wait"
)

// Fixture names.
const (
	Config            = "config"
	Browser           = "browser"
	Artifacts         = "artifacts"
	Page              = "page"
	TestUser          = "testUser"
	AuthenticatedPage = "authenticatedPage"
)

// BrowserDriver opens isolated sessions. One instance is shared by every
// page in an execution.
type BrowserDriver interface {
	Open(ctx context.Context, baseURL string) (Session, error)
	Close() error
}

// Session is one isolated browser context with a single document.
type Session interface {
	Document() locator.Document
	Close() error
}

// LaunchFunc starts a BrowserDriver.
type LaunchFunc func(ctx context.Context, cfg *config.Config) (BrowserDriver, error)

// Options customizes the standard fixtures.
type Options struct {
	// Config is used as is; nil loads and validates from the environment.
	Config *config.Config
	// Launch starts the browser; nil launches Chromium through Playwright.
	Launch LaunchFunc
	// Store receives screenshots; nil picks S3 or a directory from Config.
	Store artifacts.Store
	// Clock drives waits, retries and artifact names; nil is the wall clock.
	Clock clock.Clock
}

// BrowserPage is the value of the page and authenticatedPage fixtures.
type BrowserPage struct {
	*page.Base
	Session Session
}

// User is the value of the testUser fixture.
type User struct {
	Email    string
	Password string
	Name     string
}

// Register adds the standard fixtures to r.
func Register(r *fixture.Registry, opts Options) error {
	if opts.Launch == nil {
		opts.Launch = LaunchPlaywright
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	defs := []fixture.Definition{
		fixture.Define(Config, nil, func(context.Context, fixture.Values) (*config.Config, error) {
			if opts.Config != nil {
				return opts.Config, opts.Config.Validate()
			}
			return config.LoadAndValidate()
		}, nil),

		fixture.Define(Browser, []string{Config}, func(ctx context.Context, deps fixture.Values) (BrowserDriver, error) {
			cfg, err := fixture.Get[*config.Config](deps, Config)
			if err != nil {
				return nil, err
			}
			return opts.Launch(ctx, cfg)
		}, func(_ context.Context, b BrowserDriver) error {
			return b.Close()
		}),

		fixture.Define(Artifacts, []string{Config}, func(ctx context.Context, deps fixture.Values) (*artifacts.Recorder, error) {
			cfg, err := fixture.Get[*config.Config](deps, Config)
			if err != nil {
				return nil, err
			}
			store := opts.Store
			if store == nil {
				if store, err = newStore(ctx, cfg); err != nil {
					return nil, err
				}
			}
			return artifacts.NewRecorder(store, artifacts.RecorderConfig{
				UploadRPS: cfg.ArtifactUploadRPS,
				Clock:     opts.Clock,
			}), nil
		}, nil),

		fixture.Define(Page, []string{Config, Browser, Artifacts}, func(ctx context.Context, deps fixture.Values) (*BrowserPage, error) {
			cfg, err := fixture.Get[*config.Config](deps, Config)
			if err != nil {
				return nil, err
			}
			browser, err := fixture.Get[BrowserDriver](deps, Browser)
			if err != nil {
				return nil, err
			}
			recorder, err := fixture.Get[*artifacts.Recorder](deps, Artifacts)
			if err != nil {
				return nil, err
			}
			session, err := browser.Open(ctx, cfg.BaseURL)
			if err != nil {
				return nil, err
			}
			base := page.New(session.Document(), page.Options{
				BaseURL:   cfg.BaseURL,
				Attribute: cfg.TestIDAttribute,
				Waits:     wait.NewEngine(opts.Clock, cfg.WaitConfig()),
				Retrier:   retry.New(opts.Clock),
				Policy:    cfg.RetryPolicy(),
				Recorder:  recorder,
			})
			return &BrowserPage{Base: base, Session: session}, nil
		}, func(_ context.Context, p *BrowserPage) error {
			return p.Session.Close()
		}),

		fixture.Define(TestUser, []string{Config}, func(_ context.Context, deps fixture.Values) (User, error) {
			cfg, err := fixture.Get[*config.Config](deps, Config)
			if err != nil {
				return User{}, err
			}
			return User{Email: cfg.Login.Email, Password: cfg.Login.Password, Name: cfg.Login.Name}, nil
		}, nil),

		fixture.Define(AuthenticatedPage, []string{Config, Page, TestUser}, func(ctx context.Context, deps fixture.Values) (*BrowserPage, error) {
			cfg, err := fixture.Get[*config.Config](deps, Config)
			if err != nil {
				return nil, err
			}
			p, err := fixture.Get[*BrowserPage](deps, Page)
			if err != nil {
				return nil, err
			}
			user, err := fixture.Get[User](deps, TestUser)
			if err != nil {
				return nil, err
			}
			if err := Login(ctx, p.Base, cfg.Login, user); err != nil {
				return nil, err
			}
			return p, nil
		}, nil),
	}

	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// NewGraph registers the standard fixtures in a fresh registry and freezes it.
func NewGraph(opts Options) (*fixture.Graph, error) {
	r := fixture.NewRegistry()
	if err := Register(r, opts); err != nil {
		return nil, err
	}
	return r.Graph()
}

func newStore(ctx context.Context, cfg *config.Config) (artifacts.Store, error) {
	if !cfg.S3Enabled() {
		return artifacts.NewDirStore(cfg.ArtifactDir), nil
	}
	store, err := artifacts.NewS3Store(ctx, artifacts.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		BucketName:      cfg.S3.Bucket,
		Prefix:          cfg.S3.Prefix,
		UsePathStyle:    cfg.S3.Endpoint != "",
	})
	if err != nil {
		return nil, err
	}
	obs.From(ctx).Info("artifact store ready", "pkg", "harness", "bucket", store.BucketName())
	return store, nil
}

// Login signs user in through the login form at login.Path and waits for
// the landing page to show the user menu.
func Login(ctx context.Context, p *page.Base, login config.LoginConfig, user User) error {
	if user.Email == "" || user.Password == "" {
		return errors.New("harness: test user needs an email and a password")
	}
	if err := p.Goto(ctx, login.Path); err != nil {
		return err
	}
	if _, err := p.WaitVisible(ctx, "login-form"); err != nil {
		return err
	}
	if err := p.FillForm(ctx,
		page.Field{ID: "email-input", Value: user.Email},
		page.Field{ID: "password-input", Value: user.Password},
	); err != nil {
		return err
	}
	if err := p.ClickAndNavigate(ctx, "login-button", page.PathPrefix(login.LandingPath)); err != nil {
		return err
	}
	if _, err := p.WaitVisible(ctx, page.NavUserMenuID); err != nil {
		return err
	}
	obs.From(ctx).Info("logged in", "pkg", "harness", "email", user.Email)
	return nil
}
