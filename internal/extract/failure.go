package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperifyio/gomag/internal/page"
	"github.com/hyperifyio/gomag/internal/registry"
)

// Kind classifies why an article could not be extracted.
type Kind string

const (
	// KindTimeout means no article container appeared in time, including
	// pages that never loaded. TimedOut tells the two apart.
	KindTimeout Kind = "timeout"
	// KindContentMissing means a container was found but it had no text.
	KindContentMissing Kind = "content_missing"
	// KindAuthRequired means the page is behind a login wall and no
	// authenticated session was supplied.
	KindAuthRequired Kind = "auth_required"
)

// Steps of one extraction attempt, recorded on failures for diagnosis.
const (
	StepOpen   = "open"
	StepWait   = "wait"
	StepLocate = "locate"
	StepText   = "text"
)

var (
	// ErrRestricted is wrapped by auth_required failures.
	ErrRestricted = errors.New("page requires login")
	// ErrNoContainer is wrapped when no locator produced a container.
	ErrNoContainer = errors.New("no article container matched")
	// ErrNavigation is wrapped when the page could not be opened for a
	// reason other than a deadline, such as DNS or connection errors.
	ErrNavigation = errors.New("page did not load")
	// ErrEmptyText is wrapped when every text strategy came back empty.
	ErrEmptyText = errors.New("article text is empty")
)

// Failure is the typed extraction error. It is attached to a ref and never
// aborts a run on its own.
type Failure struct {
	Kind     Kind
	Ref      registry.ArticleRef
	Step     string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extract %s: %s at %s after %d attempt(s): %v", f.Ref.StatusID, f.Kind, f.Step, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// TimedOut reports whether the failure came from a deadline rather than from
// a page that failed to load or render.
func (f *Failure) TimedOut() bool {
	return errors.Is(f.Err, context.DeadlineExceeded) || errors.Is(f.Err, page.ErrWaitTimeout)
}

// Retryable reports whether another attempt could change the outcome.
func (f *Failure) Retryable() bool { return f.Kind != KindAuthRequired }

// KindOf returns the failure kind carried by err, or "" when err is not an
// extraction failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
