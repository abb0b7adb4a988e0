// Package locatortest provides an in-memory locator.Document whose nodes are
// scripted by tests. Handles are lazy like driver locators: state is read on
// every call, so a node can appear, change or disappear between polls.
package locatortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gobwas/glob"

	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/locator"
)

// Document is a scriptable locator.Document. Safe for concurrent use.
type Document struct {
	mu          sync.Mutex
	nodes       map[string]*Node
	history     []string
	pos         int
	screenshots int
	content     string
	title       string
	responses   []response

	// NavigateErr, when set, is returned by Goto.
	NavigateErr error
}

var (
	_ locator.Document       = (*Document)(nil)
	_ locator.ResponseWaiter = (*Document)(nil)
)

type response struct {
	url  string
	body []byte
}

// NewDocument returns an empty document positioned at url.
func NewDocument(url string) *Document {
	return &Document{
		nodes:   make(map[string]*Node),
		history: []string{url},
	}
}

// Node returns the node registered under selector, creating an empty
// (zero-match) node on first use.
func (d *Document) Node(selector string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nodeLocked(selector)
}

func (d *Document) nodeLocked(selector string) *Node {
	n, ok := d.nodes[selector]
	if !ok {
		n = &Node{}
		d.nodes[selector] = n
	}
	return n
}

// TestID returns the node for the default test-id selector of id.
func (d *Document) TestID(id string) *Node {
	return d.Node(locator.Selector(locator.DefaultAttribute, id))
}

// Replace marks the node under selector stale and installs a fresh empty one.
// Handles bound before the call return locator.ErrStale.
func (d *Document) Replace(selector string) *Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.nodes[selector]; ok {
		old.mu.Lock()
		old.stale = true
		old.mu.Unlock()
	}
	n := &Node{}
	d.nodes[selector] = n
	return n
}

// SetURL replaces the current history entry, as a client-side redirect would.
func (d *Document) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history[d.pos] = url
}

// SetPage sets the title and HTML content returned to diagnostics.
func (d *Document) SetPage(title, content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title = title
	d.content = content
}

// Screenshots returns how many screenshots were taken.
func (d *Document) Screenshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screenshots
}

// History returns the navigation history.
func (d *Document) History() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Document) Query(selector string) locator.Element {
	return &element{doc: d, selector: selector, node: d.Node(selector)}
}

func (d *Document) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.history = append(d.history[:d.pos+1], url)
	d.pos = len(d.history) - 1
	return nil
}

func (d *Document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history[d.pos]
}

func (d *Document) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title, ctx.Err()
}

func (d *Document) Content(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.content, ctx.Err()
}

func (d *Document) Reload(ctx context.Context) error {
	return ctx.Err()
}

func (d *Document) Back(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos > 0 {
		d.pos--
	}
	return ctx.Err()
}

func (d *Document) Forward(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pos < len(d.history)-1 {
		d.pos++
	}
	return ctx.Err()
}

func (d *Document) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screenshots++
	return []byte(fmt.Sprintf("PNG %s #%d", d.history[d.pos], d.screenshots)), nil
}

type element struct {
	doc      *Document
	selector string
	node     *Node
}

func (e *element) Identifier() string {
	return e.selector
}

func (e *element) Query(selector string) locator.Element {
	return e.doc.Query(e.selector + " " + selector)
}

func (e *element) Filter(text string) locator.Element {
	return e.doc.Query(fmt.Sprintf("%s >> has-text=%q", e.selector, text))
}

func (e *element) Count(ctx context.Context) (int, error) {
	var n int
	err := e.node.read(ctx, func(s *Node) error {
		n = s.count
		return nil
	})
	return n, err
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var v bool
	err := e.node.read(ctx, func(s *Node) error {
		v = s.count > 0 && s.visible
		return nil
	})
	return v, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.node.read(ctx, func(s *Node) error {
		if s.count == 0 {
			return fmt.Errorf("%w: %s", locator.ErrNotFound, e.selector)
		}
		if len(s.texts) > 0 {
			text = s.texts[0]
		}
		return nil
	})
	return text, err
}

func (e *element) Texts(ctx context.Context) ([]string, error) {
	var texts []string
	err := e.node.read(ctx, func(s *Node) error {
		texts = append(texts, s.texts...)
		return nil
	})
	return texts, err
}

func (e *element) Checked(ctx context.Context) (bool, error) {
	var c bool
	err := e.node.read(ctx, func(s *Node) error {
		if s.count == 0 {
			return fmt.Errorf("%w: %s", locator.ErrNotFound, e.selector)
		}
		c = s.checked
		return nil
	})
	return c, err
}

func (e *element) Click(ctx context.Context) error {
	return e.node.act(ctx, e.selector, func(s *Node) {
		s.clicks++
		if s.checkable {
			s.checked = !s.checked
		}
	})
}

func (e *element) Fill(ctx context.Context, value string) error {
	return e.node.act(ctx, e.selector, func(s *Node) { s.value = value })
}

func (e *element) Select(ctx context.Context, value string) error {
	return e.node.act(ctx, e.selector, func(s *Node) { s.value = value })
}

func (e *element) SetFiles(ctx context.Context, paths ...string) error {
	return e.node.act(ctx, e.selector, func(s *Node) { s.files = append([]string(nil), paths...) })
}

func (e *element) Press(ctx context.Context, key string) error {
	return e.node.act(ctx, e.selector, func(s *Node) { s.keys = append(s.keys, key) })
}

// Respond records a network response, typically from an OnAction hook.
func (d *Document) Respond(url string, body []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = append(d.responses, response{url: url, body: body})
}

// WaitForResponse runs action and returns the first response recorded while
// it ran whose URL matches pattern. No match is a deadline_exceeded error, as
// a driver would report once its timeout elapsed.
func (d *Document) WaitForResponse(ctx context.Context, pattern string, action func(ctx context.Context) error) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid URL pattern %q: %w", pattern, err)
	}
	d.mu.Lock()
	start := len(d.responses)
	d.mu.Unlock()

	if err := action(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.responses[start:] {
		if g.Match(r.url) {
			return r.body, nil
		}
	}
	return nil, errs.New(errs.DeadlineExceeded, fmt.Sprintf("no response matching %q", pattern))
}
