package locator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/e2ekit/internal/locator"
	"github.com/kuitang/e2ekit/internal/locator/locatortest"
)

func TestSelector(t *testing.T) {
	t.Parallel()
	require.Equal(t, `[data-testid="login-form"]`, locator.Selector("", "login-form"))
	require.Equal(t, `[data-qa="a\"b\\c"]`, locator.Selector("data-qa", `a"b\c`))
}

func testSelector_QuotesAreBalanced(t *rapid.T) {
	id := rapid.String().Draw(t, "id")
	sel := locator.Selector(locator.DefaultAttribute, id)

	body := sel[len(`[data-testid="`) : len(sel)-len(`"]`)]
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\\':
			i++
			if i >= len(body) {
				t.Fatalf("dangling escape in %q", sel)
			}
		case '"':
			t.Fatalf("unescaped quote in %q", sel)
		}
	}
}

func TestSelector_QuotesAreBalanced(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSelector_QuotesAreBalanced)
}

func TestResolver_ResolveNeverFailsForMissing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	doc := locatortest.NewDocument("http://app.test/")
	r := locator.NewResolver(doc, "")

	el := r.Resolve("not-there-yet")
	n, err := el.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	doc.TestID("not-there-yet").Show("hello")
	n, err = el.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestResolver_WithinScopesToContainer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	doc := locatortest.NewDocument("http://app.test/")
	r := locator.NewResolver(doc, "data-qa")
	require.Equal(t, "data-qa", r.Attribute())

	modal := r.Resolve("modal-dialog")
	title := r.Within(modal, "modal-title")
	require.Equal(t, `[data-qa="modal-dialog"] [data-qa="modal-title"]`, title.Identifier())

	doc.Node(title.Identifier()).Show("Confirm delete")
	text, err := title.Text(ctx)
	require.NoError(t, err)
	require.Equal(t, "Confirm delete", text)
}
