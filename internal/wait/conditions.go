package wait

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/e2ekit/internal/locator"
)

// Condition is a restartable predicate over an element's observable state.
// Description is a verb phrase used in timeout diagnostics ("become visible").
type Condition struct {
	Description string
	Check       func(ctx context.Context, el locator.Element) (bool, error)
}

// Visible holds when the first match is visible.
func Visible() Condition {
	return Condition{
		Description: "become visible",
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			return el.Visible(ctx)
		},
	}
}

// Hidden holds when nothing matches or the first match is not visible.
func Hidden() Condition {
	return Condition{
		Description: "become hidden",
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			n, err := el.Count(ctx)
			if err != nil || n == 0 {
				return n == 0, err
			}
			visible, err := el.Visible(ctx)
			return !visible, err
		},
	}
}

// Attached holds when at least one element matches, visible or not.
func Attached() Condition {
	return Condition{
		Description: "become attached",
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			n, err := el.Count(ctx)
			return n > 0, err
		},
	}
}

// Detached holds when nothing matches.
func Detached() Condition {
	return Condition{
		Description: "become detached",
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			n, err := el.Count(ctx)
			return n == 0, err
		},
	}
}

// TextEquals holds when the first match's trimmed text equals want.
func TextEquals(want string) Condition {
	return Condition{
		Description: fmt.Sprintf("have text %q", want),
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			text, ok, err := firstText(ctx, el)
			return ok && strings.TrimSpace(text) == want, err
		},
	}
}

// TextContains holds when the first match's text contains substr.
func TextContains(substr string) Condition {
	return Condition{
		Description: fmt.Sprintf("contain text %q", substr),
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			text, ok, err := firstText(ctx, el)
			return ok && strings.Contains(text, substr), err
		},
	}
}

// CountEquals holds when exactly n elements match.
func CountEquals(n int) Condition {
	return Condition{
		Description: fmt.Sprintf("reach count %d", n),
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			got, err := el.Count(ctx)
			return got == n, err
		},
	}
}

// Checked holds when the first match's checked state equals want.
func Checked(want bool) Condition {
	desc := "become checked"
	if !want {
		desc = "become unchecked"
	}
	return Condition{
		Description: desc,
		Check: func(ctx context.Context, el locator.Element) (bool, error) {
			n, err := el.Count(ctx)
			if err != nil || n == 0 {
				return false, err
			}
			got, err := el.Checked(ctx)
			return got == want, err
		},
	}
}

// firstText reads the first match's text; ok is false when nothing matches,
// which is a "not yet" rather than an error for text conditions.
func firstText(ctx context.Context, el locator.Element) (string, bool, error) {
	n, err := el.Count(ctx)
	if err != nil || n == 0 {
		return "", false, err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}
