// Package browser defines the automation capability the login flow is
// written against, plus a chromedp-backed implementation. The login and
// enrollment code depends only on these interfaces, never on a concrete
// engine.
package browser

import (
	"context"
	"errors"
	"net/url"
)

// ErrNoElement is returned by Query when the selector matches nothing.
// Waits time out instead of returning this.
var ErrNoElement = errors.New("browser: no matching element")

// Cookie is an engine-neutral cookie snapshot.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
	SameSite string `json:"sameSite,omitempty"`
}

// Locator is the element lookup surface shared by the top-level page and
// embedded frames.
type Locator interface {
	// WaitVisible blocks until the selector matches a visible element and
	// returns it. Comma-separated selectors race; the first match wins.
	WaitVisible(ctx context.Context, selector string) (Element, error)

	// Query returns the first match without waiting, or ErrNoElement.
	Query(ctx context.Context, selector string) (Element, error)

	// QueryAll returns every current match, possibly none.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Driver drives one browser page.
type Driver interface {
	Locator

	Navigate(ctx context.Context, rawURL string) error
	URL(ctx context.Context) (string, error)

	// WaitNavigation blocks until the page commits its next navigation.
	WaitNavigation(ctx context.Context) error

	// WaitReady blocks until document.readyState is "complete".
	WaitReady(ctx context.Context) error

	// WaitFrame blocks until an embedded frame whose URL satisfies match
	// exists, and returns a Locator scoped to it.
	WaitFrame(ctx context.Context, match func(*url.URL) bool) (Frame, error)

	// HTML returns the serialized document, for callers that parse the
	// page outside the browser.
	HTML(ctx context.Context) (string, error)

	Cookies(ctx context.Context, rawURL string) ([]Cookie, error)
	SetCookies(ctx context.Context, rawURL string, cookies []Cookie) error
}

// Frame is a Locator scoped to one embedded frame. Its URL reports the
// frame's own location, which may belong to a different origin than the
// page that embeds it. Close releases the handle's resources; the frame
// itself stays in the page.
type Frame interface {
	Locator

	URL(ctx context.Context) (string, error)
	Close()
}

// Element is a handle to one located element.
type Element interface {
	Text(ctx context.Context) (string, error)
	Attr(ctx context.Context, name string) (string, error)

	// Tag returns the upper-case tag name ("IFRAME", "DIV", ...).
	Tag(ctx context.Context) (string, error)

	// HasClass reports whether the element's class list contains name.
	HasClass(ctx context.Context, name string) (bool, error)

	Type(ctx context.Context, text string) error
	Press(ctx context.Context, key string) error
	Click(ctx context.Context) error

	// SelectOption sets a <select> element's value and fires its change
	// event.
	SelectOption(ctx context.Context, value string) error
}
