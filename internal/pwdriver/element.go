package pwdriver

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/e2ekit/internal/locator"
)

// element adapts a playwright.Locator. Single-element reads and actions use
// the first match; Playwright's strict mode would otherwise reject multiple
// matches.
type element struct {
	loc      playwright.Locator
	selector string
}

func (e *element) Identifier() string {
	return e.selector
}

func (e *element) Query(selector string) locator.Element {
	return &element{loc: e.loc.Locator(selector), selector: e.selector + " " + selector}
}

func (e *element) Filter(text string) locator.Element {
	return &element{
		loc:      e.loc.Filter(playwright.LocatorFilterOptions{HasText: text}),
		selector: fmt.Sprintf("%s >> has-text=%q", e.selector, text),
	}
}

func (e *element) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return e.loc.Count()
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.First().IsVisible()
}

// present reports ErrNotFound instead of letting Playwright auto-wait for a
// missing element. Reads and actions never wait.
func (e *element) present(ctx context.Context) error {
	n, err := e.Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", locator.ErrNotFound, e.selector)
	}
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := e.present(ctx); err != nil {
		return "", err
	}
	return e.loc.First().TextContent()
}

func (e *element) Texts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.loc.AllTextContents()
}

func (e *element) Checked(ctx context.Context) (bool, error) {
	if err := e.present(ctx); err != nil {
		return false, err
	}
	return e.loc.First().IsChecked()
}

func (e *element) Click(ctx context.Context) error {
	if err := e.present(ctx); err != nil {
		return err
	}
	return e.loc.First().Click()
}

func (e *element) Fill(ctx context.Context, value string) error {
	if err := e.present(ctx); err != nil {
		return err
	}
	return e.loc.First().Fill(value)
}

func (e *element) Select(ctx context.Context, value string) error {
	if err := e.present(ctx); err != nil {
		return err
	}
	_, err := e.loc.First().SelectOption(playwright.SelectOptionValues{Values: &[]string{value}})
	return err
}

func (e *element) SetFiles(ctx context.Context, paths ...string) error {
	if err := e.present(ctx); err != nil {
		return err
	}
	return e.loc.First().SetInputFiles(paths)
}

func (e *element) Press(ctx context.Context, key string) error {
	if err := e.present(ctx); err != nil {
		return err
	}
	return e.loc.First().Press(key)
}
