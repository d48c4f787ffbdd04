// Package page defines the page query capability consumed by the extraction
// engine, together with a goquery-backed DOM snapshot and a plain HTTP driver.
package page

import (
	"context"
	"errors"
)

// ErrWaitTimeout is returned by Page.WaitFor when the selector did not appear
// before the context ended.
var ErrWaitTimeout = errors.New("wait for selector timed out")

// Node is one element of a page.
type Node interface {
	// Text returns the rendered text of the node, keeping line and paragraph
	// breaks between block elements.
	Text() string
	// Attr returns the value of an attribute and whether it is present.
	Attr(name string) (string, bool)
	// Find returns descendants matching a CSS selector in document order.
	Find(selector string) []Node
	// HTML returns the outer HTML of the node.
	HTML() string
}

// Page is a navigated page handle. Every blocking call honours ctx, which is
// how callers bound each step with a timeout.
type Page interface {
	URL() string
	WaitFor(ctx context.Context, selector string) error
	Query(ctx context.Context, selector string) ([]Node, error)
	Close() error
}

// Opener navigates to a URL and returns a page handle.
type Opener interface {
	Open(ctx context.Context, url string) (Page, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) (Page, error)

func (f OpenerFunc) Open(ctx context.Context, url string) (Page, error) { return f(ctx, url) }
