// Package browser runs the page objects and standard fixtures against a
// small login application in real Chromium. Tests skip when Playwright or
// its browsers are not installed.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/kuitang/e2ekit/internal/config"
	"github.com/kuitang/e2ekit/internal/fixture"
	"github.com/kuitang/e2ekit/internal/harness"
	"github.com/kuitang/e2ekit/internal/obs"
)

const (
	// Never introduce a larger timeout anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second

	sessionCookie = "e2e_session"
)

var (
	sharedMu      sync.Mutex
	sharedBrowser harness.BrowserDriver
	sharedErr     error
)

// sharedDriver lends the process-wide browser to one execution. Closing it
// only ends the loan; TestMain closes the browser.
type sharedDriver struct {
	harness.BrowserDriver
}

func (sharedDriver) Close() error { return nil }

func launchShared(ctx context.Context, cfg *config.Config) (harness.BrowserDriver, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedBrowser == nil && sharedErr == nil {
		sharedBrowser, sharedErr = harness.LaunchPlaywright(ctx, cfg)
	}
	if sharedErr != nil {
		return nil, sharedErr
	}
	return sharedDriver{sharedBrowser}, nil
}

func closeSharedBrowser() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedBrowser != nil {
		_ = sharedBrowser.Close()
		sharedBrowser = nil
	}
}

// BrowserTestEnv is one test application plus a fixture graph pointed at it.
type BrowserTestEnv struct {
	Server *httptest.Server
	Config *config.Config
	Graph  *fixture.Graph
}

// SetupBrowserTestEnv starts the test application and skips the test when
// no browser can be launched.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	server := httptest.NewServer(newTestApp())
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.WaitTimeout = browserMaxTimeout
	cfg.NavigationTimeout = browserMaxTimeout
	cfg.ArtifactDir = t.TempDir()

	if _, err := launchShared(t.Context(), &cfg); err != nil {
		t.Skip("Playwright not available:", err)
	}
	g, err := harness.NewGraph(harness.Options{Config: &cfg, Launch: launchShared})
	if err != nil {
		t.Fatalf("failed to build fixture graph: %v", err)
	}
	return &BrowserTestEnv{Server: server, Config: &cfg, Graph: g}
}

// Page resolves a fresh, anonymous page for the test.
func (env *BrowserTestEnv) Page(t *testing.T) *harness.BrowserPage {
	t.Helper()
	return fixture.MustGet[*harness.BrowserPage](t, fixture.Use(t, env.Graph, harness.Page), harness.Page)
}

// AuthenticatedPage resolves a page logged in as the configured test user.
func (env *BrowserTestEnv) AuthenticatedPage(t *testing.T) *harness.BrowserPage {
	t.Helper()
	values := fixture.Use(t, env.Graph, harness.AuthenticatedPage)
	return fixture.MustGet[*harness.BrowserPage](t, values, harness.AuthenticatedPage)
}

// =============================================================================
// Test application
// =============================================================================

const loginPageHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Sign In</title></head>
<body>
  <form data-testid="login-form" method="post" action="/login">
    <input data-testid="email-input" name="email" type="email">
    <input data-testid="password-input" name="password" type="password">
    <button data-testid="login-button" type="submit">Sign in</button>
    %s
  </form>
</body>
</html>`

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Dashboard</title></head>
<body>
  <nav data-testid="navbar">
    <a data-testid="logo" href="/dashboard">Notes</a>
    <a data-testid="menu-item" href="/settings">Settings</a>
    <a data-testid="menu-item" href="/reports">Reports</a>
    <input data-testid="search-bar" type="search"
      onkeydown="if (event.key === 'Enter') { location.href = '/search?q=' + encodeURIComponent(this.value) }">
    <button data-testid="user-menu" type="button">%s</button>
  </nav>
  <main>
    <ul>
      <li data-testid="todo">milk</li>
      <li data-testid="todo">eggs</li>
      <li data-testid="todo">bread</li>
    </ul>
    <button data-testid="load-todos" type="button"
      onclick="fetch('/api/todos').then(r => r.json()).then(d => { document.querySelector('[data-testid=todo-total]').textContent = d.todos.length + ' todos' })">Refresh</button>
    <span data-testid="todo-total"></span>
    <label><input data-testid="remember-me" type="checkbox"> Remember me</label>
    <select data-testid="country-select">
      <option value="us">United States</option>
      <option value="nz">New Zealand</option>
    </select>
    <input data-testid="avatar-upload" type="file" multiple style="display:none"
      onchange="document.querySelector('[data-testid=upload-count]').textContent = this.files.length + ' file(s)'">
    <span data-testid="upload-count">0 file(s)</span>

    <button data-testid="save" type="button"
      onclick="setTimeout(() => { document.querySelector('[data-testid=saved-banner]').hidden = false }, 300)">Save</button>
    <div data-testid="saved-banner" hidden>Saved</div>

    <button data-testid="open-modal" type="button" onclick="document.getElementById('modal').hidden = false">Delete</button>
    <div id="modal" data-testid="modal-dialog" hidden>
      <h2 data-testid="modal-title">  Delete note?  </h2>
      <button data-testid="modal-confirm" type="button" onclick="document.getElementById('modal').hidden = true">Delete</button>
      <button data-testid="modal-cancel" type="button" onclick="document.getElementById('modal').hidden = true">Cancel</button>
      <button data-testid="modal-close" type="button" onclick="document.getElementById('modal').remove()">Close</button>
    </div>
  </main>
</body>
</html>`

const simplePageHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%[1]s</title></head>
<body><h1 data-testid="page-title">%[1]s</h1><p data-testid="page-body">%[2]s</p></body>
</html>`

// newTestApp serves a login form that accepts the default test user and a
// dashboard exercising every page-object operation.
func newTestApp() http.Handler {
	defaults := config.Default()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		message := ""
		if r.URL.Query().Get("error") != "" {
			message = `<p data-testid="login-error">Invalid email or password</p>`
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, loginPageHTML, message)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("email") != defaults.Login.Email || r.FormValue("password") != defaults.Login.Password {
			http.Redirect(w, r, "/login?error=1", http.StatusSeeOther)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: url.QueryEscape(defaults.Login.Name), Path: "/"})
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	requireSession := func(next func(w http.ResponseWriter, r *http.Request, user string)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookie)
			if err != nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			user, _ := url.QueryUnescape(cookie.Value)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			next(w, r, user)
		}
	}
	mux.HandleFunc("GET /dashboard", requireSession(func(w http.ResponseWriter, _ *http.Request, user string) {
		fmt.Fprintf(w, dashboardHTML, html.EscapeString(user))
	}))
	mux.HandleFunc("GET /api/todos", requireSession(func(w http.ResponseWriter, _ *http.Request, _ string) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string][]string{"todos": {"milk", "eggs", "bread"}})
	}))
	mux.HandleFunc("GET /settings", requireSession(func(w http.ResponseWriter, _ *http.Request, user string) {
		fmt.Fprintf(w, simplePageHTML, "Settings", "Signed in as "+html.EscapeString(user))
	}))
	mux.HandleFunc("GET /reports", requireSession(func(w http.ResponseWriter, _ *http.Request, _ string) {
		fmt.Fprintf(w, simplePageHTML, "Reports", "No reports yet")
	}))
	mux.HandleFunc("GET /search", requireSession(func(w http.ResponseWriter, r *http.Request, _ string) {
		fmt.Fprintf(w, simplePageHTML, "Search", "Results for "+html.EscapeString(r.URL.Query().Get("q")))
	}))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
	return obs.AccessLog("testapp", mux)
}
