// Package automation defines the browser capability surface the core
// consumes, plus its go-rod implementation. The interfaces keep the rest of
// the service independent of the concrete engine and let tests swap in a
// scripted driver.
package automation

import (
	"context"
	"errors"
	"time"

	"github.com/anveshgarg/courtscout/pkg/models"
)

// ErrElementNotFound means a lookup found no matching element. This is the
// expected, non-fatal outcome for optional DOM lookups and is distinct from
// a collaborator failure.
var ErrElementNotFound = errors.New("element not found")

// Driver is one exclusively owned browser handle. The engine does not
// support concurrent commands against the same handle; callers serialize.
type Driver interface {
	// Navigate loads the given URL and waits for the page load event.
	Navigate(ctx context.Context, url string) error

	// Find returns the first element matching the selector without
	// waiting. Absence yields ErrElementNotFound.
	Find(ctx context.Context, selector string) (Element, error)

	// WaitFor blocks until the selector matches or the timeout expires.
	// Expiry yields models.ErrAutomationTimeout.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// Close releases the browser and every resource behind it.
	Close() error
}

// Element is a handle to a live DOM node.
type Element interface {
	Attribute(ctx context.Context, name string) (string, bool, error)
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	ScreenshotPNG(ctx context.Context) ([]byte, error)

	// Options lists a select element's options, skipping valueless ones.
	Options(ctx context.Context) ([]models.Option, error)
	// SelectByValue picks the option with the given value attribute.
	SelectByValue(ctx context.Context, value string) error
}

// Factory creates one Driver per session.
type Factory interface {
	NewDriver(ctx context.Context) (Driver, error)
}
