package locatortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kuitang/e2ekit/internal/locator"
)

// Node is the scripted state behind one selector.
type Node struct {
	mu        sync.Mutex
	count     int
	visible   bool
	texts     []string
	checked   bool
	checkable bool
	value     string
	files     []string
	keys      []string
	clicks    int
	reads     int
	stale     bool
	readErr   error

	onRead   func(reads int)
	onAction func()
}

// Show makes the node a single visible match with the given text (if any).
func (n *Node) Show(text ...string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count = 1
	n.visible = true
	if len(text) > 0 {
		n.texts = append([]string(nil), text...)
		n.count = len(text)
	}
	return n
}

// Attach makes the node present but not visible.
func (n *Node) Attach() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.count == 0 {
		n.count = 1
	}
	n.visible = false
	return n
}

// Hide keeps the node attached but not visible.
func (n *Node) Hide() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = false
	return n
}

// Remove detaches every match.
func (n *Node) Remove() *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count = 0
	n.visible = false
	n.texts = nil
	return n
}

// SetTexts replaces the text of every match; count follows len(texts).
func (n *Node) SetTexts(texts ...string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append([]string(nil), texts...)
	n.count = len(texts)
	return n
}

// SetCount sets the number of matches.
func (n *Node) SetCount(count int) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count = count
	return n
}

// Checkbox makes clicks toggle the checked state, starting from checked.
func (n *Node) Checkbox(checked bool) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.checkable = true
	n.checked = checked
	return n
}

// FailReads makes every state read return err (nil clears it).
func (n *Node) FailReads(err error) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.readErr = err
	return n
}

// OnRead registers a hook called after each state read with the number of
// reads so far. The hook may mutate the node.
func (n *Node) OnRead(fn func(reads int)) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onRead = fn
	return n
}

// OnAction registers a hook called after each successful action.
func (n *Node) OnAction(fn func()) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onAction = fn
	return n
}

func (n *Node) Clicks() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clicks
}

func (n *Node) Reads() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reads
}

func (n *Node) Value() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value
}

func (n *Node) Files() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.files...)
}

func (n *Node) Keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.keys...)
}

func (n *Node) IsChecked() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.checked
}

func (n *Node) read(ctx context.Context, fn func(*Node) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	if n.stale {
		n.mu.Unlock()
		return locator.ErrStale
	}
	n.reads++
	reads := n.reads
	hook := n.onRead
	err := n.readErr
	if err == nil {
		err = fn(n)
	}
	n.mu.Unlock()

	if hook != nil {
		hook(reads)
	}
	return err
}

func (n *Node) act(ctx context.Context, selector string, fn func(*Node)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	if n.stale {
		n.mu.Unlock()
		return locator.ErrStale
	}
	if n.count == 0 {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", locator.ErrNotFound, selector)
	}
	fn(n)
	hook := n.onAction
	n.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}
