// Package page provides the page-object building blocks: Base, a capability
// struct that page objects embed, and Component for container-scoped groups
// of elements such as modals and navigation bars.
//
// Every Base operation resolves elements by test id, waits for the state the
// operation needs and then acts; nothing is retried unless the method name
// says so.
package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kuitang/e2ekit/internal/artifacts"
	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/locator"
	"github.com/kuitang/e2ekit/internal/logutil"
	"github.com/kuitang/e2ekit/internal/obs"
	"github.com/kuitang/e2ekit/internal/retry"
	"github.com/kuitang/e2ekit/internal/urlutil"
	"github.com/kuitang/e2ekit/internal/wait"
)

const contentPreviewChars = 500

// Options configures a Base. Nil engines get wall-clock defaults.
type Options struct {
	BaseURL   string
	Attribute string
	Waits     *wait.Engine
	Retrier   *retry.Retrier
	Policy    retry.Policy
	Recorder  *artifacts.Recorder
}

// Base is the shared capability set of all page objects.
type Base struct {
	doc      locator.Document
	resolver *locator.Resolver
	waits    *wait.Engine
	retrier  *retry.Retrier
	policy   retry.Policy
	recorder *artifacts.Recorder
	baseURL  string
	timeout  wait.Options
}

// New returns a Base bound to doc.
func New(doc locator.Document, opts Options) *Base {
	if opts.Waits == nil {
		opts.Waits = wait.NewEngine(nil, wait.Config{})
	}
	if opts.Retrier == nil {
		opts.Retrier = retry.New(opts.Waits.Clock())
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy
	}
	return &Base{
		doc:      doc,
		resolver: locator.NewResolver(doc, opts.Attribute),
		waits:    opts.Waits,
		retrier:  opts.Retrier,
		policy:   opts.Policy,
		recorder: opts.Recorder,
		baseURL:  opts.BaseURL,
	}
}

// WithTimeout returns a copy of b whose strict waits use d.
func (b *Base) WithTimeout(d time.Duration) *Base {
	c := *b
	c.timeout = wait.Options{Timeout: d}
	return &c
}

func (b *Base) Document() locator.Document  { return b.doc }
func (b *Base) Resolver() *locator.Resolver { return b.resolver }
func (b *Base) Waits() *wait.Engine         { return b.waits }

// Element returns the handle for id without waiting.
func (b *Base) Element(id string) locator.Element {
	return b.resolver.Resolve(id)
}

// URL resolves path against the base URL. Absolute URLs pass through.
func (b *Base) URL(path string) string {
	return urlutil.BuildAbsolute(b.baseURL, path)
}

func (b *Base) logger(ctx context.Context) *slog.Logger {
	return obs.From(ctx).With("pkg", "page")
}

// Goto navigates to path and waits for DOMContentLoaded.
func (b *Base) Goto(ctx context.Context, path string) error {
	target := b.URL(path)
	if err := b.doc.Goto(ctx, target); err != nil {
		return err
	}
	b.logger(ctx).Debug("navigated", "url", target)
	return nil
}

// until waits for cond on el and logs page diagnostics on timeout.
func (b *Base) until(ctx context.Context, el locator.Element, cond wait.Condition) error {
	err := b.waits.Until(ctx, el, cond, b.timeout)
	if wait.IsTimeout(err) {
		b.logDiagnostics(ctx, err)
	}
	return err
}

func (b *Base) logDiagnostics(ctx context.Context, cause error) {
	title, _ := b.doc.Title(context.WithoutCancel(ctx))
	content, _ := b.doc.Content(context.WithoutCancel(ctx))
	b.logger(ctx).Warn("wait failed",
		"error", cause,
		"url", b.doc.URL(),
		"title", title,
		"content_preview", logutil.TruncateForLog(content, contentPreviewChars))
}

// WaitVisible waits until id is visible and returns its handle.
func (b *Base) WaitVisible(ctx context.Context, id string) (locator.Element, error) {
	el := b.Element(id)
	if err := b.until(ctx, el, wait.Visible()); err != nil {
		return nil, err
	}
	return el, nil
}

// WaitHidden waits until id is hidden or gone.
func (b *Base) WaitHidden(ctx context.Context, id string) error {
	return b.until(ctx, b.Element(id), wait.Hidden())
}

// WaitText waits until id's trimmed text equals want.
func (b *Base) WaitText(ctx context.Context, id, want string) error {
	return b.until(ctx, b.Element(id), wait.TextEquals(want))
}

// IsVisible soft-checks id within the short soft timeout. Only a timeout
// yields false; driver errors are returned.
func (b *Base) IsVisible(ctx context.Context, id string) (bool, error) {
	return b.waits.IsVisible(ctx, b.Element(id))
}

// AssertVisible waits for every id and reports all that never became visible.
func (b *Base) AssertVisible(ctx context.Context, ids ...string) error {
	var failed []error
	for _, id := range ids {
		if _, err := b.WaitVisible(ctx, id); err != nil {
			if !wait.IsTimeout(err) {
				return err
			}
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

// Click waits for id to be visible and clicks it.
func (b *Base) Click(ctx context.Context, id string) error {
	el, err := b.WaitVisible(ctx, id)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// ClickWithRetry retries Click under the configured policy. The wait inside
// each attempt still applies.
func (b *Base) ClickWithRetry(ctx context.Context, id string) error {
	return b.retrier.Do(ctx, b.policy, func(ctx context.Context) error {
		return b.Click(ctx, id)
	})
}

// Fill waits for id to be visible and replaces its value.
func (b *Base) Fill(ctx context.Context, id, value string) error {
	el, err := b.WaitVisible(ctx, id)
	if err != nil {
		return err
	}
	if err := el.Fill(ctx, value); err != nil {
		return err
	}
	b.logger(ctx).Debug("filled", "field", id, "value", logutil.RedactValue(id, value))
	return nil
}

// Field is one input of FillForm.
type Field struct {
	ID    string
	Value string
}

// FillForm fills fields in order and stops at the first failure.
func (b *Base) FillForm(ctx context.Context, fields ...Field) error {
	logged := make([]logutil.KeyValue, 0, len(fields))
	for _, f := range fields {
		el, err := b.WaitVisible(ctx, f.ID)
		if err != nil {
			return fmt.Errorf("fill form field %q: %w", f.ID, err)
		}
		if err := el.Fill(ctx, f.Value); err != nil {
			return fmt.Errorf("fill form field %q: %w", f.ID, err)
		}
		logged = append(logged, logutil.KeyValue{Key: f.ID, Value: f.Value})
	}
	b.logger(ctx).Debug("form filled", "fields", logutil.FormatFieldsForLog(logged))
	return nil
}

// Press waits for id to be visible and presses key on it.
func (b *Base) Press(ctx context.Context, id, key string) error {
	el, err := b.WaitVisible(ctx, id)
	if err != nil {
		return err
	}
	return el.Press(ctx, key)
}

// Text waits for id to be attached and returns its trimmed text.
func (b *Base) Text(ctx context.Context, id string) (string, error) {
	el := b.Element(id)
	if err := b.until(ctx, el, wait.Attached()); err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// AllTexts waits for the first match to be visible and returns the text of
// every match.
func (b *Base) AllTexts(ctx context.Context, id string) ([]string, error) {
	el, err := b.WaitVisible(ctx, id)
	if err != nil {
		return nil, err
	}
	return el.Texts(ctx)
}

// Count returns the current number of matches without waiting.
func (b *Base) Count(ctx context.Context, id string) (int, error) {
	return b.Element(id).Count(ctx)
}

// SelectOption waits for the select to be visible and picks value.
func (b *Base) SelectOption(ctx context.Context, id, value string) error {
	el, err := b.WaitVisible(ctx, id)
	if err != nil {
		return err
	}
	return el.Select(ctx, value)
}

// SetChecked clicks the checkbox only when its state differs from checked,
// then waits for the new state.
func (b *Base) SetChecked(ctx context.Context, id string, checked bool) error {
	el, err := b.WaitVisible(ctx, id)
	if err != nil {
		return err
	}
	current, err := el.Checked(ctx)
	if err != nil {
		return err
	}
	if current == checked {
		return nil
	}
	if err := el.Click(ctx); err != nil {
		return err
	}
	return b.until(ctx, el, wait.Checked(checked))
}

// UploadFile waits for the input to be attached (file inputs are often
// hidden) and sets its files.
func (b *Base) UploadFile(ctx context.Context, id string, paths ...string) error {
	el := b.Element(id)
	if err := b.until(ctx, el, wait.Attached()); err != nil {
		return err
	}
	return el.SetFiles(ctx, paths...)
}

// URLMatcher reports whether a URL is the expected navigation target.
type URLMatcher func(rawURL string) bool

// PathIs matches URLs whose path equals path.
func PathIs(path string) URLMatcher {
	return func(rawURL string) bool {
		p, ok := urlutil.Path(rawURL)
		return ok && p == path
	}
}

// PathPrefix matches URLs whose path starts with prefix.
func PathPrefix(prefix string) URLMatcher {
	return func(rawURL string) bool {
		p, ok := urlutil.Path(rawURL)
		return ok && strings.HasPrefix(p, prefix)
	}
}

// ClickAndNavigate clicks id and waits until the URL matches. A nil matcher
// waits for the URL to differ from the one before the click.
func (b *Base) ClickAndNavigate(ctx context.Context, id string, match URLMatcher) error {
	before := b.doc.URL()
	description := "navigate away from " + before
	if match == nil {
		match = func(u string) bool { return u != before }
	} else {
		description = "navigate to the expected URL"
	}
	if err := b.Click(ctx, id); err != nil {
		return err
	}
	return b.pollURL(ctx, description, match)
}

// WaitURL waits until the current URL matches.
func (b *Base) WaitURL(ctx context.Context, match URLMatcher) error {
	return b.pollURL(ctx, "reach the expected URL", match)
}

func (b *Base) pollURL(ctx context.Context, description string, match URLMatcher) error {
	err := b.waits.Poll(ctx, description, func(context.Context) (bool, error) {
		return match(b.doc.URL()), nil
	}, b.timeout)
	if wait.IsTimeout(err) {
		b.logDiagnostics(ctx, err)
	}
	return err
}

// WaitForResponse runs action and returns the body of the first response it
// triggers whose URL matches pattern (e.g. "**/api/todos"). The driver's
// default timeout bounds the wait.
func (b *Base) WaitForResponse(ctx context.Context, pattern string, action func(ctx context.Context) error) ([]byte, error) {
	rw, ok := b.doc.(locator.ResponseWaiter)
	if !ok {
		return nil, errs.New(errs.Unavailable, "page: document cannot observe network responses")
	}
	body, err := rw.WaitForResponse(ctx, pattern, action)
	if err != nil {
		return nil, fmt.Errorf("page: wait for response %s: %w", pattern, err)
	}
	b.logger(ctx).Debug("response received", "pattern", pattern, "bytes", len(body))
	return body, nil
}

// ClickForJSON clicks id and decodes the JSON body of the first response
// matching pattern that the click triggers.
func ClickForJSON[T any](ctx context.Context, b *Base, id, pattern string) (T, error) {
	var out T
	body, err := b.WaitForResponse(ctx, pattern, func(ctx context.Context) error {
		return b.Click(ctx, id)
	})
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("page: decode response %s: %w", pattern, err)
	}
	return out, nil
}

// CurrentURL returns the page URL.
func (b *Base) CurrentURL() string {
	return b.doc.URL()
}

func (b *Base) Reload(ctx context.Context) error    { return b.doc.Reload(ctx) }
func (b *Base) GoBack(ctx context.Context) error    { return b.doc.Back(ctx) }
func (b *Base) GoForward(ctx context.Context) error { return b.doc.Forward(ctx) }

// Screenshot stores a full-page screenshot named after label.
func (b *Base) Screenshot(ctx context.Context, label string) (artifacts.Record, error) {
	if b.recorder == nil {
		return artifacts.Record{}, errors.New("page: no artifact recorder configured")
	}
	return b.recorder.Capture(ctx, b.doc, label)
}
