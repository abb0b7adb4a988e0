// Package fixture resolves named setup/teardown units in dependency order.
//
// Definitions are registered once in a Registry and frozen into a Graph.
// Every test execution gets its own Execution: each fixture it needs is set
// up at most once, and everything that was set up is torn down in reverse
// creation order when the execution ends, whether or not setup or the test
// body failed.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// ErrUndeclared is returned when a setup reads a fixture it does not depend on.
var ErrUndeclared = errors.New("fixture: undeclared dependency")

// SetupFunc produces a fixture instance from its resolved dependencies.
type SetupFunc func(ctx context.Context, deps Values) (any, error)

// TeardownFunc releases an instance produced by the matching SetupFunc.
type TeardownFunc func(ctx context.Context, instance any) error

// Definition describes one fixture. Teardown may be nil.
type Definition struct {
	Name      string
	DependsOn []string
	Setup     SetupFunc
	Teardown  TeardownFunc
}

// Define builds a Definition from typed setup and teardown functions.
func Define[T any](name string, dependsOn []string, setup func(ctx context.Context, deps Values) (T, error), teardown func(ctx context.Context, instance T) error) Definition {
	def := Definition{
		Name:      name,
		DependsOn: dependsOn,
		Setup: func(ctx context.Context, deps Values) (any, error) {
			return setup(ctx, deps)
		},
	}
	if teardown != nil {
		def.Teardown = func(ctx context.Context, instance any) error {
			typed, ok := instance.(T)
			if !ok {
				return fmt.Errorf("fixture %q: teardown got %T, want %s", name, instance, reflect.TypeFor[T]())
			}
			return teardown(ctx, typed)
		}
	}
	return def
}

// Values exposes resolved instances to a setup function or test body.
// Only the names the reader declared are visible.
type Values struct {
	owner   string
	values  map[string]any
	visible []string
}

// Lookup returns the instance registered under name.
func (v Values) Lookup(name string) (any, error) {
	if !slices.Contains(v.visible, name) {
		owner := v.owner
		if owner == "" {
			owner = "the request"
		}
		return nil, fmt.Errorf("%w: %q is not declared by %s", ErrUndeclared, name, owner)
	}
	return v.values[name], nil
}

// Names returns the visible fixture names in declaration order.
func (v Values) Names() []string {
	return slices.Clone(v.visible)
}

// Get returns the instance registered under name as a T.
func Get[T any](v Values, name string) (T, error) {
	var zero T
	raw, err := v.Lookup(name)
	if err != nil {
		return zero, err
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("fixture %q is %T, not %s", name, raw, reflect.TypeFor[T]())
	}
	return typed, nil
}
