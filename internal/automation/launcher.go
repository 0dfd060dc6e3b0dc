package automation

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/config"
)

// Launcher provisions one Chrome instance and returns its DevTools control
// URL plus a cleanup that tears the instance down.
type Launcher interface {
	Launch(ctx context.Context) (controlURL string, cleanup func(), err error)
}

// NewLauncher picks the provisioning mode: a locally launched Chrome by
// default, or one container per session when configured for Docker. In
// Docker mode the Chrome image is pulled up front so the first session
// doesn't fail on a missing image.
func NewLauncher(ctx context.Context, cfg config.AutomationConfig, log *zap.Logger) (Launcher, error) {
	switch cfg.Launch {
	case "", "local":
		return &localLauncher{headless: cfg.Headless}, nil
	case "docker":
		pool, err := NewChromePool(cfg.ChromeImage, log)
		if err != nil {
			return nil, fmt.Errorf("create chrome pool: %w", err)
		}
		if err := pool.EnsureImage(ctx); err != nil {
			if cerr := pool.Close(); cerr != nil {
				log.Warn("closing docker client failed", zap.Error(cerr))
			}
			return nil, fmt.Errorf("ensure chrome image %q: %w", cfg.ChromeImage, err)
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown automation launch mode %q", cfg.Launch)
	}
}

// localLauncher starts Chrome through the rod launcher.
type localLauncher struct {
	headless bool
}

func (l *localLauncher) Launch(ctx context.Context) (string, func(), error) {
	lc := launcher.New().Headless(l.headless).Context(ctx)
	url, err := lc.Launch()
	if err != nil {
		return "", nil, fmt.Errorf("launch chrome: %w", err)
	}
	return url, lc.Kill, nil
}
