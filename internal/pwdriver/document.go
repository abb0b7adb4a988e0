// Package pwdriver implements locator.Document and locator.Element on top of
// Playwright, and manages the Playwright driver and browser lifecycle.
//
// Playwright calls do not take a context; every method checks ctx before
// calling into the driver and relies on the page's default timeout to bound
// the call itself.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/locator"
)

// Document adapts a playwright.Page.
type Document struct {
	page       playwright.Page
	navTimeout time.Duration
}

var (
	_ locator.Document       = (*Document)(nil)
	_ locator.ResponseWaiter = (*Document)(nil)
)

// NewDocument wraps page. navTimeout bounds Goto, Reload, Back and Forward.
func NewDocument(page playwright.Page, navTimeout time.Duration) *Document {
	return &Document{page: page, navTimeout: navTimeout}
}

// Page returns the underlying Playwright page for operations outside the
// locator interfaces.
func (d *Document) Page() playwright.Page {
	return d.page
}

func (d *Document) Query(selector string) locator.Element {
	return &element{loc: d.page.Locator(selector), selector: selector}
}

func (d *Document) navTimeoutMS() *float64 {
	if d.navTimeout <= 0 {
		return nil
	}
	return playwright.Float(float64(d.navTimeout.Milliseconds()))
}

// Goto navigates and waits for DOMContentLoaded.
func (d *Document) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   d.navTimeoutMS(),
	})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Document) URL() string {
	return d.page.URL()
}

func (d *Document) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.Title()
}

func (d *Document) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.Content()
}

func (d *Document) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   d.navTimeoutMS(),
	})
	return err
}

func (d *Document) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   d.navTimeoutMS(),
	})
	return err
}

func (d *Document) Forward(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.GoForward(playwright.PageGoForwardOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   d.navTimeoutMS(),
	})
	return err
}

// Screenshot captures the full page as PNG.
func (d *Document) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

// WaitForResponse runs action and returns the body of the first response
// whose URL matches the glob pattern. The page default timeout bounds the
// wait; running out of it is a deadline_exceeded error.
func (d *Document) WaitForResponse(ctx context.Context, pattern string, action func(ctx context.Context) error) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := d.page.ExpectResponse(pattern, func() error {
		return action(ctx)
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return nil, errs.Wrap(errs.DeadlineExceeded, fmt.Sprintf("no response matching %q", pattern), err)
	}
	if err != nil {
		return nil, err
	}
	body, err := resp.Body()
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", resp.URL(), err)
	}
	return body, nil
}
