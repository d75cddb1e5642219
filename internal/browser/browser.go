// Package browser defines the renderer session the crawl loop drives and
// provides a headless Chrome implementation of it.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Find when a locator does not resolve in time.
	ErrNotFound = errors.New("element not found")

	// ErrSessionClosed is returned by any operation on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Response is the outcome of a top-level navigation.
type Response struct {
	Status   int
	Content  string
	FinalURL string
}

// Renderer opens browser sessions.
type Renderer interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one exclusively owned browser page.
type Session interface {
	// Navigate loads url and returns the main document's status and markup.
	Navigate(ctx context.Context, url string, timeout time.Duration) (*Response, error)

	// Find resolves a locator to an element, returning ErrNotFound when it
	// does not appear within timeout.
	Find(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)

	// Evaluate runs script in the page. out may be nil.
	Evaluate(ctx context.Context, script string, out any) error

	// WaitQuiescent blocks until no network requests are in flight or timeout elapses.
	WaitQuiescent(ctx context.Context, timeout time.Duration) error

	// Content returns the current document markup.
	Content(ctx context.Context) (string, error)

	// URL returns the current document location.
	URL(ctx context.Context) (string, error)

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Element is a resolved page element.
type Element interface {
	Fill(ctx context.Context, text string) error
	Click(ctx context.Context) error
	Select(ctx context.Context, value string) error
	Press(ctx context.Context, key string) error
}
