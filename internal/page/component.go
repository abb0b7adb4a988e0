package page

import (
	"context"
	"strings"

	"github.com/kuitang/e2ekit/internal/locator"
	"github.com/kuitang/e2ekit/internal/wait"
)

// Component scopes element lookups to a container identified by test id.
type Component struct {
	base      *Base
	id        string
	container locator.Element
}

// Component returns the component rooted at containerID.
func (b *Base) Component(containerID string) *Component {
	return &Component{base: b, id: containerID, container: b.Element(containerID)}
}

func (c *Component) ID() string                 { return c.id }
func (c *Component) Container() locator.Element { return c.container }

// Element resolves id among the container's descendants.
func (c *Component) Element(id string) locator.Element {
	return c.base.resolver.Within(c.container, id)
}

// WaitVisible waits for the container to be visible.
func (c *Component) WaitVisible(ctx context.Context) error {
	return c.base.until(ctx, c.container, wait.Visible())
}

// WaitHidden waits for the container to be hidden or removed.
func (c *Component) WaitHidden(ctx context.Context) error {
	return c.base.until(ctx, c.container, wait.Hidden())
}

// IsVisible soft-checks the container.
func (c *Component) IsVisible(ctx context.Context) (bool, error) {
	return c.base.waits.IsVisible(ctx, c.container)
}

// Click waits for the container and then for id inside it, and clicks.
func (c *Component) Click(ctx context.Context, id string) error {
	el, err := c.waitChild(ctx, c.Element(id))
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// Fill waits for the container and id inside it, and fills value.
func (c *Component) Fill(ctx context.Context, id, value string) error {
	el, err := c.waitChild(ctx, c.Element(id))
	if err != nil {
		return err
	}
	return el.Fill(ctx, value)
}

// Text returns the trimmed text of id inside the container.
func (c *Component) Text(ctx context.Context, id string) (string, error) {
	el, err := c.waitChild(ctx, c.Element(id))
	if err != nil {
		return "", err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Component) waitChild(ctx context.Context, el locator.Element) (locator.Element, error) {
	if err := c.WaitVisible(ctx); err != nil {
		return nil, err
	}
	if err := c.base.until(ctx, el, wait.Visible()); err != nil {
		return nil, err
	}
	return el, nil
}

// Test ids of the stock modal dialog.
const (
	ModalID        = "modal-dialog"
	ModalTitleID   = "modal-title"
	ModalCloseID   = "modal-close"
	ModalConfirmID = "modal-confirm"
	ModalCancelID  = "modal-cancel"
)

// Modal is a dialog that disappears once closed, confirmed or cancelled.
type Modal struct {
	*Component
}

// Modal returns the modal dialog component.
func (b *Base) Modal() *Modal {
	return &Modal{Component: b.Component(ModalID)}
}

func (m *Modal) Title(ctx context.Context) (string, error) {
	return m.Text(ctx, ModalTitleID)
}

func (m *Modal) Close(ctx context.Context) error   { return m.dismiss(ctx, ModalCloseID) }
func (m *Modal) Confirm(ctx context.Context) error { return m.dismiss(ctx, ModalConfirmID) }
func (m *Modal) Cancel(ctx context.Context) error  { return m.dismiss(ctx, ModalCancelID) }

func (m *Modal) dismiss(ctx context.Context, buttonID string) error {
	if err := m.Click(ctx, buttonID); err != nil {
		return err
	}
	return m.WaitHidden(ctx)
}

// Test ids of the stock navigation bar.
const (
	NavBarID       = "navbar"
	NavLogoID      = "logo"
	NavMenuItemID  = "menu-item"
	NavUserMenuID  = "user-menu"
	NavSearchBarID = "search-bar"
)

// NavBar is the top navigation bar.
type NavBar struct {
	*Component
}

// NavBar returns the navigation bar component.
func (b *Base) NavBar() *NavBar {
	return &NavBar{Component: b.Component(NavBarID)}
}

func (n *NavBar) ClickLogo(ctx context.Context) error {
	return n.Click(ctx, NavLogoID)
}

// ClickMenuItem clicks the first menu item whose text contains name.
func (n *NavBar) ClickMenuItem(ctx context.Context, name string) error {
	el, err := n.waitChild(ctx, n.Element(NavMenuItemID).Filter(name))
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (n *NavBar) OpenUserMenu(ctx context.Context) error {
	return n.Click(ctx, NavUserMenuID)
}

// Search types query into the search bar and submits with Enter.
func (n *NavBar) Search(ctx context.Context, query string) error {
	el, err := n.waitChild(ctx, n.Element(NavSearchBarID))
	if err != nil {
		return err
	}
	if err := el.Fill(ctx, query); err != nil {
		return err
	}
	return el.Press(ctx, "Enter")
}
