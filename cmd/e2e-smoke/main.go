// Command e2e-smoke opens each page of a running application in Chromium,
// waits for the expected test ids and stores a full-page screenshot. A
// page that fails its checks is captured with a "-failed" label; with
// -artifact-retain failed, screenshots of a fully passing run are deleted.
//
// Usage:
//
//	go run ./cmd/e2e-smoke -base-url http://localhost:3000 -path / -path /login -expect navbar
//
// Configuration comes from E2E_* environment variables and the optional
// E2E_CONFIG_FILE; flags override both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kuitang/e2ekit/internal/artifacts"
	"github.com/kuitang/e2ekit/internal/config"
	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/fixture"
	"github.com/kuitang/e2ekit/internal/harness"
	"github.com/kuitang/e2ekit/internal/obs"
)

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	obs.Init()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, harness.LaunchPlaywright)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "e2e-smoke: %v\n", err)
		os.Exit(errs.ExitCode(errs.CodeOf(err)))
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, launch harness.LaunchFunc) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("e2e-smoke", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var paths, expects stringList
	fs.Var(&paths, "path", "page to open, relative to the base URL (repeatable, default /)")
	fs.Var(&expects, "expect", "test id that must become visible on every page (repeatable)")
	screenshot := fs.Bool("screenshot", true, "store a full-page screenshot of every page")
	login := fs.Bool("login", false, "sign in with the configured test user first")
	printConfig := fs.Bool("print-config", false, "print the effective configuration and exit")
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errs.Wrap(errs.InvalidArgument, "invalid flags", err)
	}
	if fs.NArg() > 0 {
		return errs.New(errs.InvalidArgument, "unexpected arguments: "+strings.Join(fs.Args(), " "))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	obs.SetLevel(cfg.LogLevel)
	if *printConfig {
		cfg.PrintSummary(stderr)
		return nil
	}
	if len(paths) == 0 {
		paths = stringList{"/"}
	}

	g, err := harness.NewGraph(harness.Options{Config: cfg, Launch: launch})
	if err != nil {
		return err
	}
	target := harness.Page
	if *login {
		target = harness.AuthenticatedPage
	}

	keep := cfg.ArtifactRetain == config.RetainAll
	return g.Run(ctx, []string{target, harness.Artifacts}, func(ctx context.Context, values fixture.Values) error {
		p, err := fixture.Get[*harness.BrowserPage](values, target)
		if err != nil {
			return err
		}
		rec, err := fixture.Get[*artifacts.Recorder](values, harness.Artifacts)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if err := check(ctx, p, path, expects); err != nil {
				if *screenshot {
					captureFailure(ctx, p, path, stderr)
				}
				return err
			}
			if !*screenshot {
				fmt.Fprintf(stdout, "%s\tok\n", path)
				continue
			}
			shot, err := p.Screenshot(ctx, screenshotLabel(path))
			if err != nil {
				return err
			}
			if keep {
				fmt.Fprintf(stdout, "%s\t%s\n", path, shot.Location)
			} else {
				fmt.Fprintf(stdout, "%s\tok\n", path)
			}
		}
		if *screenshot && !keep {
			return rec.Discard(ctx)
		}
		return nil
	})
}

func check(ctx context.Context, p *harness.BrowserPage, path string, expects []string) error {
	if err := p.Goto(ctx, path); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := p.AssertVisible(ctx, expects...); err != nil {
		return fmt.Errorf("check %s: %w", path, err)
	}
	return nil
}

// captureFailure stores a screenshot of a page that failed its checks. The
// check error is what the run reports, so a failed capture is only printed.
func captureFailure(ctx context.Context, p *harness.BrowserPage, path string, stderr io.Writer) {
	shot, err := p.Screenshot(ctx, screenshotLabel(path)+"-failed")
	if err != nil {
		fmt.Fprintf(stderr, "%s\tscreenshot failed: %v\n", path, err)
		return
	}
	fmt.Fprintf(stderr, "%s\tfailed\t%s\n", path, shot.Location)
}

// screenshotLabel turns a path into a file-name friendly label.
func screenshotLabel(path string) string {
	path, _, _ = strings.Cut(path, "?")
	label := strings.Trim(path, "/")
	if label == "" {
		return "home"
	}
	return label
}
