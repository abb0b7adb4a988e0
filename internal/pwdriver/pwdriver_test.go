package pwdriver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/e2ekit/internal/locator"
)

var (
	launchOnce sync.Once
	launcher   *Launcher
	launchErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if launcher != nil {
		_ = launcher.Close()
	}
	os.Exit(code)
}

func newSession(t *testing.T, html string) *Session {
	t.Helper()
	launchOnce.Do(func() {
		launcher, launchErr = Launch(context.Background(), Options{Headless: true})
	})
	if launchErr != nil {
		t.Skip("Playwright not available:", launchErr)
	}
	s, err := launcher.NewSession(t.Context(), SessionOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Page.SetContent(html))
	return s
}

func TestLaunch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Launch(ctx, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestElement_ReadsFirstMatch(t *testing.T) {
	s := newSession(t, `
		<ul>
		  <li data-testid="item">  alpha </li>
		  <li data-testid="item">beta</li>
		  <li data-testid="item" hidden>gamma</li>
		</ul>
		<input data-testid="agree" type="checkbox" checked>`)
	doc := s.Document()
	r := locator.NewResolver(doc, "")
	ctx := t.Context()

	items := r.Resolve("item")
	n, err := items.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	visible, err := items.Visible(ctx)
	require.NoError(t, err)
	require.True(t, visible)

	text, err := items.Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "  alpha ", text)

	texts, err := items.Texts(ctx)
	require.NoError(t, err)
	require.Len(t, texts, 3)

	n, err = items.Filter("beta").Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	checked, err := r.Resolve("agree").Checked(ctx)
	require.NoError(t, err)
	require.True(t, checked)
}

func TestElement_MissingElementIsNotFound(t *testing.T) {
	s := newSession(t, `<p>empty</p>`)
	r := locator.NewResolver(s.Document(), "")
	ctx := t.Context()

	missing := r.Resolve("nope")
	visible, err := missing.Visible(ctx)
	require.NoError(t, err)
	require.False(t, visible)

	_, err = missing.Text(ctx)
	require.ErrorIs(t, err, locator.ErrNotFound)
	require.ErrorIs(t, missing.Click(ctx), locator.ErrNotFound)
}

func TestElement_ActionsAndCancellation(t *testing.T) {
	s := newSession(t, `
		<form data-testid="form">
		  <input data-testid="name">
		  <select data-testid="size"><option value="s">S</option><option value="l">L</option></select>
		</form>`)
	r := locator.NewResolver(s.Document(), "")
	ctx := t.Context()

	name := r.Within(r.Resolve("form"), "name")
	require.Equal(t, `[data-testid="form"] [data-testid="name"]`, name.Identifier())
	require.NoError(t, name.Fill(ctx, "Ada"))
	value, err := s.Page.Locator(`[data-testid="name"]`).InputValue()
	require.NoError(t, err)
	require.Equal(t, "Ada", value)

	require.NoError(t, r.Resolve("size").Select(ctx, "l"))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = name.Fill(canceled, "ignored")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestDocument_Screenshot(t *testing.T) {
	s := newSession(t, `<h1>hello</h1>`)
	data, err := s.Document().Screenshot(t.Context())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	title, err := s.Document().Title(t.Context())
	require.NoError(t, err)
	require.Empty(t, title)
}
