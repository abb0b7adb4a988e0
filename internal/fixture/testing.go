package fixture

import (
	"testing"

	"github.com/kuitang/e2ekit/internal/obs"
)

// Use resolves names for the calling test and tears them down in
// t.Cleanup. Setup failures are fatal to the test.
func Use(t testing.TB, g *Graph, names ...string) Values {
	t.Helper()
	ctx := obs.WithCorrelation(t.Context(), obs.Correlation{Test: t.Name()})
	exec := g.NewExecution(ctx)
	t.Cleanup(func() {
		if err := exec.Teardown(ctx); err != nil {
			t.Errorf("%v", err)
		}
	})

	values, err := exec.Resolve(ctx, names...)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return values
}

// Test runs body with the named fixtures resolved.
func Test(t *testing.T, g *Graph, names []string, body func(t *testing.T, values Values)) {
	t.Helper()
	body(t, Use(t, g, names...))
}

// MustGet is Get for tests: a missing or mistyped value is fatal.
func MustGet[T any](t testing.TB, v Values, name string) T {
	t.Helper()
	value, err := Get[T](v, name)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return value
}
