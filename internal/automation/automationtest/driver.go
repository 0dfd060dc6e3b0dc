// Package automationtest provides a scripted in-memory Driver for tests.
package automationtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anveshgarg/courtscout/internal/automation"
	"github.com/anveshgarg/courtscout/pkg/models"
)

// Driver is a scripted automation.Driver. Selectors are stubbed ahead of
// time; lookups for anything else report element-not-found (Find) or a
// timeout (WaitFor), mirroring the real engine.
type Driver struct {
	mu        sync.Mutex
	elements  map[string]*Element
	failures  map[string]error
	Navigated []string
	Closed    bool
}

// NewDriver creates an empty scripted driver.
func NewDriver() *Driver {
	return &Driver{
		elements: make(map[string]*Element),
		failures: make(map[string]error),
	}
}

// Stub registers an element for a selector.
func (d *Driver) Stub(selector string, el *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[selector] = el
}

// Unstub removes a selector, making later lookups miss.
func (d *Driver) Unstub(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, selector)
}

// FailWith makes lookups for a selector return the given error.
func (d *Driver) FailWith(selector string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[selector] = err
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Navigated = append(d.Navigated, url)
	return nil
}

func (d *Driver) Find(ctx context.Context, selector string) (automation.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures[selector]; ok {
		return nil, err
	}
	el, ok := d.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: %q", automation.ErrElementNotFound, selector)
	}
	return el, nil
}

func (d *Driver) WaitFor(ctx context.Context, selector string, timeout time.Duration) (automation.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures[selector]; ok {
		return nil, err
	}
	el, ok := d.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%w: waiting for %q", models.ErrAutomationTimeout, selector)
	}
	return el, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// Element is a scripted automation.Element.
type Element struct {
	mu         sync.Mutex
	Attrs      map[string]string
	TextValue  string
	HTMLValue  string
	Screenshot []byte
	Opts       []models.Option

	Selected string
	Typed    []string
	Clicks   int
	Cleared  int

	// OnClick runs on every click, letting a test mutate page state the
	// way a real submit would.
	OnClick func()
	// OnSelect runs after SelectByValue with the chosen value.
	OnSelect func(value string)

	Err error // returned by every call when set
}

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if e.Err != nil {
		return "", false, e.Err
	}
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if e.Err != nil {
		return "", e.Err
	}
	return e.TextValue, nil
}

func (e *Element) HTML(ctx context.Context) (string, error) {
	if e.Err != nil {
		return "", e.Err
	}
	return e.HTMLValue, nil
}

func (e *Element) Click(ctx context.Context) error {
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	e.Clicks++
	cb := e.OnClick
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Cleared++
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Typed = append(e.Typed, text)
	return nil
}

func (e *Element) ScreenshotPNG(ctx context.Context) ([]byte, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Screenshot, nil
}

func (e *Element) Options(ctx context.Context) ([]models.Option, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Opts, nil
}

func (e *Element) SelectByValue(ctx context.Context, value string) error {
	if e.Err != nil {
		return e.Err
	}
	e.mu.Lock()
	e.Selected = value
	cb := e.OnSelect
	e.mu.Unlock()
	if cb != nil {
		cb(value)
	}
	return nil
}

// Factory hands out pre-built drivers in order, or fresh empty ones when
// exhausted.
type Factory struct {
	mu      sync.Mutex
	queue   []*Driver
	Created []*Driver
	Err     error
}

// NewFactory queues the given drivers.
func NewFactory(drivers ...*Driver) *Factory {
	return &Factory{queue: drivers}
}

func (f *Factory) NewDriver(ctx context.Context) (automation.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var d *Driver
	if len(f.queue) > 0 {
		d = f.queue[0]
		f.queue = f.queue[1:]
	} else {
		d = NewDriver()
	}
	f.Created = append(f.Created, d)
	return d, nil
}
