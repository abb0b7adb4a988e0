package fixture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/obs"
)

// Graph is an immutable set of definitions. Safe for concurrent use.
type Graph struct {
	defs  map[string]Definition
	names []string
}

// Names returns every fixture name in registration order.
func (g *Graph) Names() []string {
	return slices.Clone(g.names)
}

// Order returns the setup order for names: each name after all of its
// transitive dependencies, dependencies visited in declaration order and
// each fixture listed once.
func (g *Graph) Order(names ...string) ([]string, error) {
	var order []string
	placed := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if placed[name] {
			return nil
		}
		def, ok := g.defs[name]
		if !ok {
			return errs.New(errs.InvalidArgument, fmt.Sprintf("fixture %q: not registered", name))
		}
		for _, dep := range def.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		placed[name] = true
		order = append(order, name)
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// NewExecution starts an execution with no instances.
func (g *Graph) NewExecution(ctx context.Context) *Execution {
	id := uuid.NewString()
	obs.From(ctx).Debug("fixture execution started", "pkg", "fixture", "execution_id", id)
	return &Execution{
		graph:     g,
		id:        id,
		instances: make(map[string]any),
	}
}

// Run resolves names, runs body and always tears down. The result joins
// the setup or body error with any teardown error.
func (g *Graph) Run(ctx context.Context, names []string, body func(ctx context.Context, values Values) error) (err error) {
	exec := g.NewExecution(ctx)
	ctx = exec.Context(ctx)
	defer func() {
		err = errors.Join(err, exec.Teardown(ctx))
	}()

	values, err := exec.Resolve(ctx, names...)
	if err != nil {
		return err
	}
	return body(ctx, values)
}

// Execution holds the instances of one test execution. Not safe for
// concurrent use.
type Execution struct {
	graph     *Graph
	id        string
	instances map[string]any
	stack     []string
	closed    bool
}

// ID returns the execution id used as the execution_id log field.
func (e *Execution) ID() string {
	return e.id
}

// Context returns ctx carrying this execution's correlation id.
func (e *Execution) Context(ctx context.Context) context.Context {
	return obs.WithCorrelation(ctx, obs.Correlation{ExecutionID: e.id})
}

// Resolve sets up names and their transitive dependencies that this
// execution has not set up yet. Setup stops at the first failure, which is
// returned as a *SetupError; fixtures already set up stay on the teardown
// stack.
func (e *Execution) Resolve(ctx context.Context, names ...string) (Values, error) {
	if e.closed {
		return Values{}, errs.New(errs.InvalidArgument, "fixture: execution already torn down")
	}
	order, err := e.graph.Order(names...)
	if err != nil {
		return Values{}, err
	}
	ctx = e.Context(ctx)

	for _, name := range order {
		if _, done := e.instances[name]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Values{}, &SetupError{Fixture: name, Err: err}
		}
		def := e.graph.defs[name]
		instance, err := e.setup(ctx, def)
		if err != nil {
			return Values{}, &SetupError{Fixture: name, Err: err}
		}
		e.instances[name] = instance
		e.stack = append(e.stack, name)
	}
	return e.values("", names), nil
}

func (e *Execution) setup(ctx context.Context, def Definition) (instance any, err error) {
	ctx = obs.WithCorrelation(ctx, obs.Correlation{Fixture: def.Name})
	logger := obs.From(ctx).With("pkg", "fixture")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			logger.Warn("fixture setup failed", "error", err, "duration", time.Since(start))
			return
		}
		logger.Debug("fixture ready", "duration", time.Since(start))
	}()
	return def.Setup(ctx, e.values(def.Name, def.DependsOn))
}

func (e *Execution) values(owner string, visible []string) Values {
	vals := make(map[string]any, len(visible))
	for _, name := range visible {
		vals[name] = e.instances[name]
	}
	return Values{owner: owner, values: vals, visible: slices.Clone(visible)}
}

// Teardown releases every instance in reverse creation order. Every
// teardown runs even if earlier ones fail; failures are collected into a
// *TeardownError. Cancellation of ctx does not skip teardowns. Calling
// Teardown again is a no-op.
func (e *Execution) Teardown(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true
	ctx = e.Context(context.WithoutCancel(ctx))

	var failures []TeardownFailure
	for i := len(e.stack) - 1; i >= 0; i-- {
		name := e.stack[i]
		if err := e.teardown(ctx, e.graph.defs[name], e.instances[name]); err != nil {
			failures = append(failures, TeardownFailure{Fixture: name, Err: err})
		}
	}
	e.stack = nil
	clear(e.instances)

	if len(failures) == 0 {
		return nil
	}
	return &TeardownError{Failures: failures}
}

func (e *Execution) teardown(ctx context.Context, def Definition, instance any) (err error) {
	if def.Teardown == nil {
		return nil
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{Fixture: def.Name})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			obs.From(ctx).Warn("fixture teardown failed", "pkg", "fixture", "error", err)
		}
	}()
	return def.Teardown(ctx, instance)
}
