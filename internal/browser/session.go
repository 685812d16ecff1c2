// Package browser is the boundary between the orchestration core and the
// rendered game client. Every remote effect passes through the Session
// interface; its failures are what the connection guard classifies. The
// chromedp adapter is the only code in the repository that knows it is
// driving a real browser.
package browser

import (
	"context"

	"github.com/chromedp/cdproto/cdp"

	"github.com/mrz1836/legion/internal/domain"
)

// ActionKind enumerates the element interactions a Session supports.
type ActionKind string

// Action kind constants.
const (
	// ActionClick clicks the element.
	ActionClick ActionKind = "click"

	// ActionType types text into the element.
	ActionType ActionKind = "type"

	// ActionClear empties the element's value.
	ActionClear ActionKind = "clear"

	// ActionSubmit submits the element's enclosing form.
	ActionSubmit ActionKind = "submit"
)

// Action is one interaction with a resolved element. Text is only meaningful
// for ActionType.
type Action struct {
	Kind ActionKind
	Text string
}

// Click returns a click action.
func Click() Action { return Action{Kind: ActionClick} }

// TypeText returns a typing action carrying the text to enter.
func TypeText(text string) Action { return Action{Kind: ActionType, Text: text} }

// Clear returns a clear action.
func Clear() Action { return Action{Kind: ActionClear} }

// Submit returns a form-submit action.
func Submit() Action { return Action{Kind: ActionSubmit} }

// Element is a resolved page element. The locator that produced it is kept
// for follow-up actions; the node handle is adapter-internal and may be nil
// for fake sessions in tests.
type Element struct {
	// Locator is the expression that resolved to this element.
	Locator string

	// Tag is the lowercase element tag name ("input", "button").
	Tag string

	node *cdp.Node
}

// Session is the browser surface the core consumes. Resolve has exactly-one
// semantics: zero matches is ErrElementNotFound, more than one is
// ErrAmbiguousLocator. Transport-level failures wrap ErrConnectionFailure so
// the guard's classifier short-circuits on them.
type Session interface {
	// Navigate loads the URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Resolve finds the single element matching the locator.
	Resolve(ctx context.Context, locator string) (Element, error)

	// Count returns how many elements match the locator.
	Count(ctx context.Context, locator string) (int, error)

	// Perform runs the action against a previously resolved element.
	Perform(ctx context.Context, action Action, el Element) error

	// ReadText returns the element's visible text.
	ReadText(ctx context.Context, el Element) (string, error)

	// Snapshot captures the current page for healing or archival.
	Snapshot(ctx context.Context) (domain.Snapshot, error)

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// CurrentURL returns the page address.
	CurrentURL(ctx context.Context) (string, error)

	// Close shuts the browser down. The session is unusable afterwards.
	Close(ctx context.Context) error
}
