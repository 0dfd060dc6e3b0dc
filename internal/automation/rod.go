package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/config"
	"github.com/anveshgarg/courtscout/pkg/models"
)

// RodFactory creates rod-backed drivers. Each driver owns its own Chrome
// instance so closing one session can never disturb another.
type RodFactory struct {
	launcher Launcher
	cfg      config.AutomationConfig
	log      *zap.Logger
}

// NewRodFactory builds a factory over the configured launcher mode.
func NewRodFactory(ctx context.Context, cfg config.AutomationConfig, log *zap.Logger) (*RodFactory, error) {
	l, err := NewLauncher(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &RodFactory{launcher: l, cfg: cfg, log: log}, nil
}

// NewDriver launches a browser and opens its single page.
func (f *RodFactory) NewDriver(ctx context.Context) (Driver, error) {
	controlURL, cleanup, err := f.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: launch browser: %v", models.ErrAutomationFailure, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: connect to browser: %v", models.ErrAutomationFailure, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		cleanup()
		return nil, fmt.Errorf("%w: open page: %v", models.ErrAutomationFailure, err)
	}

	return &rodDriver{
		browser: browser,
		page:    page,
		cleanup: cleanup,
		nav:     f.cfg.NavTimeout,
		log:     f.log,
	}, nil
}

type rodDriver struct {
	browser *rod.Browser
	page    *rod.Page
	cleanup func()
	nav     time.Duration
	log     *zap.Logger
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.nav)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("%w: navigate %s: %v", models.ErrAutomationFailure, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("%w: wait load %s: %v", models.ErrAutomationTimeout, url, err)
	}
	return nil
}

func (d *rodDriver) Find(ctx context.Context, selector string) (Element, error) {
	has, el, err := d.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %v", models.ErrAutomationFailure, selector, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %q", ErrElementNotFound, selector)
	}
	return &rodElement{el: el}, nil
}

func (d *rodDriver) WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	el, err := d.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for %q: %v", models.ErrAutomationTimeout, selector, err)
	}
	return &rodElement{el: el}, nil
}

func (d *rodDriver) Close() error {
	err := d.browser.Close()
	if d.cleanup != nil {
		d.cleanup()
	}
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	val, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, fmt.Errorf("%w: attribute %q: %v", models.ErrAutomationFailure, name, err)
	}
	if val == nil {
		return "", false, nil
	}
	return *val, true, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("%w: element text: %v", models.ErrAutomationFailure, err)
	}
	return strings.TrimSpace(text), nil
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	html, err := e.el.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("%w: element html: %v", models.ErrAutomationFailure, err)
	}
	return html, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("%w: scroll into view: %v", models.ErrAutomationFailure, err)
	}
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: click: %v", models.ErrAutomationFailure, err)
	}
	return nil
}

func (e *rodElement) Clear(ctx context.Context) error {
	if err := e.el.Context(ctx).SelectAllText(); err != nil {
		return fmt.Errorf("%w: select text: %v", models.ErrAutomationFailure, err)
	}
	if err := e.el.Context(ctx).Input(""); err != nil {
		return fmt.Errorf("%w: clear input: %v", models.ErrAutomationFailure, err)
	}
	return nil
}

func (e *rodElement) SendKeys(ctx context.Context, text string) error {
	if err := e.el.Context(ctx).Input(text); err != nil {
		return fmt.Errorf("%w: input: %v", models.ErrAutomationFailure, err)
	}
	return nil
}

func (e *rodElement) ScreenshotPNG(ctx context.Context) ([]byte, error) {
	data, err := e.el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: screenshot: %v", models.ErrAutomationFailure, err)
	}
	return data, nil
}

func (e *rodElement) Options(ctx context.Context) ([]models.Option, error) {
	res, err := e.el.Context(ctx).Eval(`() =>
		Array.from(this.options || []).map(o => ({
			value: o.value,
			label: (o.textContent || "").trim(),
		}))`)
	if err != nil {
		return nil, fmt.Errorf("%w: read options: %v", models.ErrAutomationFailure, err)
	}

	var options []models.Option
	for _, item := range res.Value.Arr() {
		value := item.Get("value").Str()
		if value == "" {
			continue
		}
		options = append(options, models.Option{
			Value: value,
			Label: item.Get("label").Str(),
		})
	}
	return options, nil
}

func (e *rodElement) SelectByValue(ctx context.Context, value string) error {
	selector := fmt.Sprintf(`option[value=%q]`, value)
	if err := e.el.Context(ctx).Select([]string{selector}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("%w: select value %q: %v", models.ErrAutomationFailure, value, err)
	}
	return nil
}
