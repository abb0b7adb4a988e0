package fixture

import (
	"fmt"
	"strings"

	"github.com/kuitang/e2ekit/internal/errs"
)

// CycleError rejects a registration that would close a dependency cycle.
// Path starts and ends with the same name.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "fixture: dependency cycle " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) ErrorCode() errs.Code {
	return errs.InvalidArgument
}

// SetupError identifies the fixture whose setup failed.
type SetupError struct {
	Fixture string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("fixture %q: setup failed: %v", e.Fixture, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func (e *SetupError) ErrorCode() errs.Code {
	return errs.SetupFailed
}

// TeardownFailure is one failed teardown.
type TeardownFailure struct {
	Fixture string
	Err     error
}

// TeardownError aggregates every teardown that failed in one execution,
// in the order the teardowns ran.
type TeardownError struct {
	Failures []TeardownFailure
}

func (e *TeardownError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fixture: %d teardown(s) failed", len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %q: %v", f.Fixture, f.Err)
	}
	return b.String()
}

func (e *TeardownError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

func (e *TeardownError) ErrorCode() errs.Code {
	return errs.TeardownFailed
}
