// Package session provides the live browser connection the scraper drives.
//
// The source UI exposes no stable API: everything is inferred from the
// currently focused element, the page URL and keyboard navigation. The
// Session interface captures exactly that surface so the walking logic can
// be tested against a scripted fake.
package session

import (
	"context"
	"time"
)

// FocusedItem describes the element currently holding keyboard focus
type FocusedItem struct {
	// Href is the element's link target, if any
	Href string
	// Text is the element's visible inner text
	Text string
}

// Session is a stateful connection to the source UI
type Session interface {
	// Navigate loads the given URL
	Navigate(ctx context.Context, url string) error
	// WaitLoaded blocks until the current page reports DOM content loaded
	WaitLoaded(ctx context.Context) error
	// Reload reloads the current page
	Reload(ctx context.Context) error
	// CurrentURL returns the page's current location
	CurrentURL(ctx context.Context) (string, error)
	// SendKey dispatches a keyboard key ("ArrowRight", "Enter", or a single
	// character) and then sleeps for postDelay to let the UI settle
	SendKey(ctx context.Context, key string, postDelay time.Duration) error
	// FocusedItem reads the currently focused element
	FocusedItem(ctx context.Context) (*FocusedItem, error)
	// VisibleTexts returns the inner text of each visible element matching
	// the CSS selector. When containing is non-empty only the innermost
	// elements whose text includes it are returned.
	VisibleTexts(ctx context.Context, selector, containing string) ([]string, error)
	// FirstAttribute polls for an element matching the selector and returns
	// the named attribute of the first match, or "" if none appears within
	// the timeout.
	FirstAttribute(ctx context.Context, selector, attr string, timeout time.Duration) (string, error)
}
