// Package locator maps opaque element identifiers to queryable handles in the
// controlled document. It never waits and never interprets identifiers beyond
// the attribute convention used to build a selector.
package locator

import (
	"context"
	"errors"
	"strings"
)

// DefaultAttribute is the stable test-identifier attribute used to build selectors.
const DefaultAttribute = "data-testid"

var (
	// ErrNotFound is returned by reads and actions that need a matching
	// element when the handle currently matches none.
	ErrNotFound = errors.New("locator: no matching element")
	// ErrStale is returned when the node a handle was bound to has been
	// replaced. Callers must resolve again.
	ErrStale = errors.New("locator: element handle is stale")
)

// Element is a handle to zero or more matching elements. Reads observe the
// first match unless stated otherwise.
type Element interface {
	// Identifier describes the handle in diagnostics.
	Identifier() string
	// Query narrows the handle to descendants matching selector.
	Query(selector string) Element
	// Filter narrows the handle to matches containing text.
	Filter(text string) Element

	Count(ctx context.Context) (int, error)
	Visible(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
	Texts(ctx context.Context) ([]string, error)
	Checked(ctx context.Context) (bool, error)

	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Select(ctx context.Context, value string) error
	SetFiles(ctx context.Context, paths ...string) error
	Press(ctx context.Context, key string) error
}

// Document is the controlled page as seen by the driver.
type Document interface {
	Query(selector string) Element
	Goto(ctx context.Context, url string) error
	URL() string
	Title(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// ResponseWaiter is implemented by documents that can observe network
// traffic. WaitForResponse runs action and returns the body of the first
// response it triggers whose URL matches pattern, a glob in which ** spans
// path segments and * does not.
type ResponseWaiter interface {
	WaitForResponse(ctx context.Context, pattern string, action func(ctx context.Context) error) ([]byte, error)
}

var selectorEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Selector builds the attribute selector for id, e.g. [data-testid="login-form"].
func Selector(attribute, id string) string {
	if attribute == "" {
		attribute = DefaultAttribute
	}
	return "[" + attribute + `="` + selectorEscaper.Replace(id) + `"]`
}

// Resolver resolves identifiers against one Document.
type Resolver struct {
	doc       Document
	attribute string
}

// NewResolver returns a Resolver using attribute (DefaultAttribute when empty).
func NewResolver(doc Document, attribute string) *Resolver {
	if attribute == "" {
		attribute = DefaultAttribute
	}
	return &Resolver{doc: doc, attribute: attribute}
}

// Document returns the underlying document.
func (r *Resolver) Document() Document {
	return r.doc
}

// Attribute returns the identifier attribute in use.
func (r *Resolver) Attribute() string {
	return r.attribute
}

// Resolve returns a handle for id. A handle matching nothing is valid.
func (r *Resolver) Resolve(id string) Element {
	return r.doc.Query(Selector(r.attribute, id))
}

// Within resolves id among the descendants of scope.
func (r *Resolver) Within(scope Element, id string) Element {
	return scope.Query(Selector(r.attribute, id))
}
