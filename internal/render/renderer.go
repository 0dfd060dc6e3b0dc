package render

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/automation"
	"github.com/anveshgarg/courtscout/pkg/models"
)

// Renderer turns a composed HTML document into a PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
	Close() error
}

// PDFRenderer prints documents through a dedicated headless browser, shared
// across renders and launched on first use. Session handles are never
// borrowed for rendering.
type PDFRenderer struct {
	launcher automation.Launcher
	log      *zap.Logger

	mu      sync.Mutex
	browser *rod.Browser
	cleanup func()
}

func NewPDFRenderer(launcher automation.Launcher, log *zap.Logger) *PDFRenderer {
	return &PDFRenderer{launcher: launcher, log: log}
}

// RenderHTML prints one document. Each call gets its own page, so renders
// for different sessions run concurrently; only the lazy browser launch is
// serialized.
func (r *PDFRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	browser, err := r.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("%w: open render page: %v", models.ErrAutomationFailure, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.log.Warn("render page close failed", zap.Error(err))
		}
	}()

	page = page.Context(ctx)
	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("%w: set document content: %v", models.ErrAutomationFailure, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: wait for document: %v", models.ErrAutomationFailure, err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("%w: print to pdf: %v", models.ErrAutomationFailure, err)
	}
	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf stream: %v", models.ErrAutomationFailure, err)
	}
	return pdf, nil
}

func (r *PDFRenderer) ensureBrowser(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}
	controlURL, cleanup, err := r.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: launch render browser: %v", models.ErrAutomationFailure, err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		cleanup()
		return nil, fmt.Errorf("%w: connect render browser: %v", models.ErrAutomationFailure, err)
	}
	r.browser = browser
	r.cleanup = cleanup
	r.log.Info("render browser launched", zap.String("control_url", controlURL))
	return browser, nil
}

// Close releases the shared render browser, if one was ever launched.
func (r *PDFRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	if r.cleanup != nil {
		r.cleanup()
	}
	r.browser = nil
	r.cleanup = nil
	return err
}
