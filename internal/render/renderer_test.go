package render

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/pkg/models"
)

type failingLauncher struct {
	mu       sync.Mutex
	attempts int
}

func (l *failingLauncher) Launch(context.Context) (string, func(), error) {
	l.mu.Lock()
	l.attempts++
	l.mu.Unlock()
	return "", nil, errors.New("no chrome here")
}

func (l *failingLauncher) launchAttempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

func TestRendererSurfacesLaunchFailure(t *testing.T) {
	r := NewPDFRenderer(&failingLauncher{}, zap.NewNop())
	_, err := r.RenderHTML(context.Background(), "<html></html>")
	assert.ErrorIs(t, err, models.ErrAutomationFailure)
}

func TestRendererRetriesLaunchPerRender(t *testing.T) {
	// A failed launch must not poison the renderer; concurrent renders
	// each attempt their own launch and return instead of blocking on a
	// render-wide lock.
	launcher := &failingLauncher{}
	r := NewPDFRenderer(launcher, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.RenderHTML(context.Background(), "<html></html>")
			assert.ErrorIs(t, err, models.ErrAutomationFailure)
		}()
	}
	wg.Wait()

	require.Equal(t, 3, launcher.launchAttempts())
}

func TestRendererCloseWithoutLaunch(t *testing.T) {
	r := NewPDFRenderer(&failingLauncher{}, zap.NewNop())
	assert.NoError(t, r.Close())
}
