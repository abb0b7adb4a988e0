package fixture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/e2ekit/internal/errs"
)

// recorder logs setup and teardown calls in order.
type recorder struct {
	mu        sync.Mutex
	setups    []string
	teardowns []string
}

func (r *recorder) def(name string, deps ...string) Definition {
	return Definition{
		Name:      name,
		DependsOn: deps,
		Setup: func(ctx context.Context, _ Values) (any, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.setups = append(r.setups, name)
			return name + "-instance", nil
		},
		Teardown: func(ctx context.Context, instance any) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.teardowns = append(r.teardowns, name)
			return nil
		},
	}
}

func mustGraph(t testing.TB, defs ...Definition) *Graph {
	t.Helper()
	reg := NewRegistry()
	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}
	g, err := reg.Graph()
	require.NoError(t, err)
	return g
}

func TestResolve_DependencyOrderAndSingleSetup(t *testing.T) {
	rec := &recorder{}
	g := mustGraph(t,
		rec.def("authenticatedPage", "page", "testUser"),
		rec.def("config"),
		rec.def("browser", "config"),
		rec.def("page", "browser"),
		rec.def("testUser", "config"),
	)

	exec := g.NewExecution(context.Background())
	values, err := exec.Resolve(context.Background(), "authenticatedPage", "page")
	require.NoError(t, err)
	require.Equal(t, []string{"config", "browser", "page", "testUser", "authenticatedPage"}, rec.setups)

	page, err := Get[string](values, "page")
	require.NoError(t, err)
	require.Equal(t, "page-instance", page)

	_, err = exec.Resolve(context.Background(), "page", "config")
	require.NoError(t, err)
	require.Len(t, rec.setups, 5, "already resolved fixtures are not set up again")

	require.NoError(t, exec.Teardown(context.Background()))
	require.Equal(t, []string{"authenticatedPage", "testUser", "page", "browser", "config"}, rec.teardowns)
}

func TestResolve_SetupSeesOnlyDeclaredDependencies(t *testing.T) {
	var sawBrowser string
	g := mustGraph(t,
		Define("config", nil, func(context.Context, Values) (string, error) { return "cfg", nil }, nil),
		Define("browser", []string{"config"}, func(context.Context, Values) (string, error) { return "chromium", nil }, nil),
		Define("page", []string{"browser"}, func(_ context.Context, deps Values) (int, error) {
			var err error
			sawBrowser, err = Get[string](deps, "browser")
			if err != nil {
				return 0, err
			}
			_, err = deps.Lookup("config")
			return 0, err
		}, nil),
	)

	err := g.Run(context.Background(), []string{"page"}, func(context.Context, Values) error {
		t.Fatal("body must not run")
		return nil
	})
	require.Equal(t, "chromium", sawBrowser)
	require.ErrorIs(t, err, ErrUndeclared)

	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	require.Equal(t, "page", setupErr.Fixture)
	require.Equal(t, errs.SetupFailed, errs.CodeOf(err))
}

func TestValues_BodySeesOnlyRequestedNames(t *testing.T) {
	rec := &recorder{}
	g := mustGraph(t, rec.def("config"), rec.def("page", "config"))

	err := g.Run(context.Background(), []string{"page"}, func(_ context.Context, values Values) error {
		require.Equal(t, []string{"page"}, values.Names())
		_, err := values.Lookup("config")
		require.ErrorIs(t, err, ErrUndeclared)

		_, err = Get[int](values, "page")
		require.ErrorContains(t, err, "not int")
		return nil
	})
	require.NoError(t, err)
}

func TestRun_SetupFailureStopsAndTearsDownCompleted(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("login rejected")
	failing := rec.def("testUser", "config")
	failing.Setup = func(context.Context, Values) (any, error) { return nil, boom }
	g := mustGraph(t,
		rec.def("config"),
		rec.def("browser", "config"),
		failing,
		rec.def("page", "browser"),
	)

	bodyRan := false
	err := g.Run(context.Background(), []string{"browser", "testUser", "page"}, func(context.Context, Values) error {
		bodyRan = true
		return nil
	})
	require.False(t, bodyRan)
	require.ErrorIs(t, err, boom)
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	require.Equal(t, "testUser", setupErr.Fixture)

	require.Equal(t, []string{"config", "browser"}, rec.setups, "page is never set up after testUser fails")
	require.Equal(t, []string{"browser", "config"}, rec.teardowns)
}

func TestRun_JoinsBodyAndTeardownErrors(t *testing.T) {
	rec := &recorder{}
	closeErr := errors.New("browser already closed")
	flushErr := errors.New("artifact flush failed")
	browser := rec.def("browser")
	browser.Teardown = func(context.Context, any) error { return closeErr }
	artifacts := rec.def("artifacts", "browser")
	artifacts.Teardown = func(context.Context, any) error { return flushErr }
	g := mustGraph(t, browser, artifacts, rec.def("page", "browser"))

	bodyErr := errors.New("assertion failed")
	err := g.Run(context.Background(), []string{"artifacts", "page"}, func(context.Context, Values) error {
		return bodyErr
	})
	require.ErrorIs(t, err, bodyErr)
	require.ErrorIs(t, err, closeErr)
	require.ErrorIs(t, err, flushErr)

	var tdErr *TeardownError
	require.ErrorAs(t, err, &tdErr)
	require.Equal(t, []TeardownFailure{
		{Fixture: "artifacts", Err: flushErr},
		{Fixture: "browser", Err: closeErr},
	}, tdErr.Failures)
	require.Equal(t, []string{"page"}, rec.teardowns, "page still torn down between failing teardowns")
}

func TestTeardown_RunsAfterCancellationAndIsIdempotent(t *testing.T) {
	rec := &recorder{}
	var teardownCtxErr error
	page := rec.def("page")
	page.Teardown = func(ctx context.Context, _ any) error {
		teardownCtxErr = ctx.Err()
		return nil
	}
	g := mustGraph(t, page)

	ctx, cancel := context.WithCancel(context.Background())
	exec := g.NewExecution(ctx)
	_, err := exec.Resolve(ctx, "page")
	require.NoError(t, err)
	cancel()

	require.NoError(t, exec.Teardown(ctx))
	require.NoError(t, teardownCtxErr)
	require.NoError(t, exec.Teardown(ctx))

	_, err = exec.Resolve(context.Background(), "page")
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestResolve_PanicsBecomeErrors(t *testing.T) {
	rec := &recorder{}
	config := rec.def("config")
	config.Teardown = func(context.Context, any) error { panic("double close") }
	page := rec.def("page", "config")
	page.Setup = func(context.Context, Values) (any, error) { panic("nil page") }
	g := mustGraph(t, config, page)

	err := g.Run(context.Background(), []string{"page"}, func(context.Context, Values) error { return nil })
	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	require.Equal(t, "page", setupErr.Fixture)
	require.ErrorContains(t, err, "panic: nil page")

	var tdErr *TeardownError
	require.ErrorAs(t, err, &tdErr)
	require.Len(t, tdErr.Failures, 1)
	require.Equal(t, "config", tdErr.Failures[0].Fixture)
	require.ErrorContains(t, tdErr.Failures[0].Err, "panic: double close")
}

func TestRun_GoexitStillTearsDown(t *testing.T) {
	rec := &recorder{}
	g := mustGraph(t, rec.def("browser"), rec.def("page", "browser"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Run(context.Background(), []string{"page"}, func(context.Context, Values) error {
			runtime.Goexit()
			return nil
		})
	}()
	<-done
	require.Equal(t, []string{"page", "browser"}, rec.teardowns)
}

func TestExecutions_AreIsolated(t *testing.T) {
	var created atomic.Int64
	g := mustGraph(t, Define("testUser", nil, func(context.Context, Values) (string, error) {
		return fmt.Sprintf("user-%d@example.com", created.Add(1)), nil
	}, nil))

	first := g.NewExecution(context.Background())
	second := g.NewExecution(context.Background())
	require.NotEqual(t, first.ID(), second.ID())

	a, err := first.Resolve(context.Background(), "testUser")
	require.NoError(t, err)
	b, err := second.Resolve(context.Background(), "testUser")
	require.NoError(t, err)
	require.NotEqual(t, MustGet[string](t, a, "testUser"), MustGet[string](t, b, "testUser"))
}

func TestRun_ParallelExecutions(t *testing.T) {
	var setups, teardowns atomic.Int64
	g := mustGraph(t,
		Define("browser", nil, func(context.Context, Values) (*atomic.Int64, error) {
			setups.Add(1)
			return new(atomic.Int64), nil
		}, func(context.Context, *atomic.Int64) error {
			teardowns.Add(1)
			return nil
		}),
	)

	const workers = 16
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Run(context.Background(), []string{"browser"}, func(_ context.Context, v Values) error {
				counter, err := Get[*atomic.Int64](v, "browser")
				if err != nil {
					return err
				}
				if counter.Add(1) != 1 {
					return errors.New("instance shared between executions")
				}
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, workers, setups.Load())
	require.EqualValues(t, workers, teardowns.Load())
}

func TestUse_TearsDownInCleanup(t *testing.T) {
	rec := &recorder{}
	g := mustGraph(t, rec.def("config"), rec.def("page", "config"))

	t.Run("inner", func(t *testing.T) {
		values := Use(t, g, "page")
		require.Equal(t, "page-instance", MustGet[string](t, values, "page"))
		require.Empty(t, rec.teardowns)
	})
	require.Equal(t, []string{"page", "config"}, rec.teardowns)

	Test(t, g, []string{"config"}, func(t *testing.T, values Values) {
		require.Equal(t, "config-instance", MustGet[string](t, values, "config"))
	})
}

func TestRegister_Rejections(t *testing.T) {
	rec := &recorder{}

	t.Run("cycle", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(rec.def("a", "b")))
		err := reg.Register(rec.def("b", "a"))
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		require.Equal(t, []string{"b", "a", "b"}, cycle.Path)
		require.EqualError(t, err, "fixture: dependency cycle b -> a -> b")
		require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	})

	t.Run("long cycle", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(rec.def("a", "b")))
		require.NoError(t, reg.Register(rec.def("b", "c")))
		err := reg.Register(rec.def("c", "x", "a"))
		require.EqualError(t, err, "fixture: dependency cycle c -> a -> b -> c")
	})

	t.Run("self", func(t *testing.T) {
		err := NewRegistry().Register(rec.def("a", "a"))
		require.EqualError(t, err, "fixture: dependency cycle a -> a")
	})

	t.Run("duplicate", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(rec.def("page")))
		require.ErrorContains(t, reg.Register(rec.def("page")), "already registered")
	})

	t.Run("invalid", func(t *testing.T) {
		reg := NewRegistry()
		require.Error(t, reg.Register(Definition{Setup: rec.def("x").Setup}))
		require.ErrorContains(t, reg.Register(Definition{Name: "x"}), "setup is required")
		require.ErrorContains(t, reg.Register(rec.def("y", "z", "z")), "listed twice")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(rec.def("page", "browser")))
		_, err := reg.Graph()
		require.ErrorContains(t, err, `depends on unregistered fixture "browser"`)
	})

	t.Run("frozen", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Graph()
		require.NoError(t, err)
		require.ErrorContains(t, reg.Register(rec.def("late")), "frozen")
	})

	t.Run("resolve unknown", func(t *testing.T) {
		g := mustGraph(t, rec.def("page"))
		_, err := g.NewExecution(context.Background()).Resolve(context.Background(), "nope")
		require.ErrorContains(t, err, `"nope": not registered`)
	})
}

func TestMustRegister_Panics(t *testing.T) {
	rec := &recorder{}
	require.Panics(t, func() {
		NewRegistry().MustRegister(rec.def("a"), rec.def("a"))
	})
}

// randomGraph draws a DAG where fixture i may depend on any j < i, then
// registers the definitions in a random order.
func randomGraph(t *rapid.T, rec *recorder, failAt string) *Graph {
	n := rapid.IntRange(1, 8).Draw(t, "n")
	defs := make([]Definition, n)
	for i := range n {
		var deps []string
		for j := range i {
			if rapid.Bool().Draw(t, fmt.Sprintf("edge_%d_%d", i, j)) {
				deps = append(deps, fmt.Sprintf("f%d", j))
			}
		}
		defs[i] = rec.def(fmt.Sprintf("f%d", i), deps...)
	}
	perm := rapid.Permutation(defs).Draw(t, "registration_order")

	reg := NewRegistry()
	for _, def := range perm {
		if def.Name == failAt {
			def.Setup = func(context.Context, Values) (any, error) { return nil, errors.New("boom") }
		}
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	g, err := reg.Graph()
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	return g
}

func testReverseTeardown(t *rapid.T) {
	rec := &recorder{}
	failAt := ""
	if rapid.Bool().Draw(t, "fail") {
		failAt = fmt.Sprintf("f%d", rapid.IntRange(0, 7).Draw(t, "fail_at"))
	}
	g := randomGraph(t, rec, failAt)
	names := g.Names()
	requested := rapid.SliceOfNDistinct(rapid.SampledFrom(names), 1, len(names), rapid.ID[string]).Draw(t, "requested")

	err := g.Run(context.Background(), requested, func(context.Context, Values) error { return nil })

	order, orderErr := g.Order(requested...)
	if orderErr != nil {
		t.Fatalf("order: %v", orderErr)
	}
	failIdx := slices.Index(order, failAt)
	if (failIdx >= 0) != (err != nil) {
		t.Fatalf("failAt=%q order=%v err=%v", failAt, order, err)
	}
	wantSetups := order
	if failIdx >= 0 {
		wantSetups = order[:failIdx]
	}
	if !slices.Equal(rec.setups, wantSetups) {
		t.Fatalf("setups = %v, want %v", rec.setups, wantSetups)
	}

	// Every dependency is set up before its dependent.
	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	for _, name := range order {
		for _, dep := range g.defs[name].DependsOn {
			if pos[dep] >= pos[name] {
				t.Fatalf("%s set up before its dependency %s in %v", name, dep, order)
			}
		}
	}

	wantTeardowns := slices.Clone(rec.setups)
	slices.Reverse(wantTeardowns)
	if !slices.Equal(rec.teardowns, wantTeardowns) {
		t.Fatalf("teardowns = %v, want %v", rec.teardowns, wantTeardowns)
	}
}

func TestReverseTeardown(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testReverseTeardown)
}

func FuzzReverseTeardown(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testReverseTeardown))
}
