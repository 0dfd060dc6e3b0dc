package session

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/automation/automationtest"
	"github.com/anveshgarg/courtscout/internal/captcha"
	"github.com/anveshgarg/courtscout/internal/config"
	"github.com/anveshgarg/courtscout/internal/history"
	"github.com/anveshgarg/courtscout/internal/monitoring"
	"github.com/anveshgarg/courtscout/pkg/models"
)

const originURL = "https://court.example/search"

type fakeEngine struct {
	name string
	text string
}

func (f *fakeEngine) Name() string { return f.name }
func (f *fakeEngine) Recognize(context.Context, []byte, string) (string, error) {
	return f.text, nil
}

func captchaPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 10))
	for x := 0; x < 30; x++ {
		for y := 0; y < 10; y++ {
			c := color.RGBA{255, 255, 255, 255}
			if (x+y)%3 == 0 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// scriptedDriver stubs the full search page so registry operations succeed
// end to end.
func scriptedDriver(t *testing.T, fragment string) *automationtest.Driver {
	t.Helper()
	d := automationtest.NewDriver()

	court := &automationtest.Element{Opts: []models.Option{
		{Value: "1", Label: "District Court A"},
	}}
	court.OnSelect = func(string) {
		d.Stub("select#case_type option", &automationtest.Element{})
		d.Stub("select#case_type", &automationtest.Element{Opts: []models.Option{
			{Value: "CS", Label: "Civil Suit"},
		}})
	}
	d.Stub("select#court_establishment", court)
	d.Stub("#siwp_captcha_image_0", &automationtest.Element{
		Attrs:      map[string]string{"src": originURL + "/captcha.png"},
		Screenshot: captchaPNG(t),
	})
	d.Stub("input#reg_no", &automationtest.Element{})
	d.Stub("input#reg_year", &automationtest.Element{})
	d.Stub("input#siwp_captcha_value_0", &automationtest.Element{})

	submit := &automationtest.Element{}
	submit.OnClick = func() {
		d.Stub("div.resultsHolder.servicesResultsContainer",
			&automationtest.Element{HTMLValue: fragment})
	}
	d.Stub("input[type=submit]", submit)
	return d
}

func newTestRegistry(t *testing.T, factory *automationtest.Factory, cfg config.SessionConfig) (*Registry, *history.Ledger) {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.ReaperInterval == 0 {
		cfg.ReaperInterval = time.Hour
	}

	ledger := history.NewLedger(filepath.Join(t.TempDir(), "history.json"), zap.NewNop())
	solver := captcha.NewSolver(
		&fakeEngine{name: "neural", text: "aB3x9"},
		&fakeEngine{name: "tesseract", text: "aB3x9"},
		5, 1, zap.NewNop(), monitoring.New(),
	)
	registry := NewRegistry(factory, solver, ledger, monitoring.New(), cfg, time.Second, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		registry.Shutdown(ctx)
	})
	return registry, ledger
}

func searchRequest() models.SearchRequest {
	return models.SearchRequest{
		CourtValue:    "1",
		CaseTypeValue: "CS",
		RegNo:         "123",
		RegYear:       "2020",
		Captcha:       "aB3x9",
	}
}

func TestCreateAndGet(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, info.Status)
	assert.Equal(t, originURL, info.OriginURL)
	assert.Equal(t, []string{originURL}, d.Navigated)

	got, err := registry.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
}

func TestCreateRequiresURL(t *testing.T) {
	registry, _ := newTestRegistry(t, automationtest.NewFactory(), config.SessionConfig{})
	_, err := registry.Create(context.Background(), "")
	assert.Error(t, err)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	registry, _ := newTestRegistry(t, automationtest.NewFactory(), config.SessionConfig{})
	_, err := registry.Get("no-such-id")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	_, err = registry.Results("no-such-id")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestCloseReleasesHandleAndBlocksFurtherOps(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)
	require.NoError(t, registry.Close(info.ID))

	assert.True(t, d.Closed)

	_, err = registry.Results(info.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	// The terminal status stays visible.
	got, err := registry.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
}

func TestSearchRecordsHistory(t *testing.T) {
	d := scriptedDriver(t, `<div class="r">one result</div>`)
	registry, ledger := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	outcome, err := registry.Search(context.Background(), info.ID, searchRequest())
	require.NoError(t, err)
	assert.Equal(t, "District Court A", outcome.CourtName)

	entry, err := ledger.FindBySession(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "District Court A", entry.CourtName)
	assert.Equal(t, "Civil Suit", entry.CaseType)
	assert.Equal(t, "123", entry.RegNo)
	assert.Equal(t, 1, entry.ResultsCount)

	results, err := registry.Results(info.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{`<div class="r">one result</div>`}, results)
}

func TestGetIsSafeDuringSearch(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	// Poll the session snapshot while searches mutate the form state; the
	// race detector flags any unguarded access.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				got, err := registry.Get(info.ID)
				assert.NoError(t, err)
				assert.Equal(t, info.ID, got.ID)
			}
		}
	}()

	for i := 0; i < 5; i++ {
		_, err := registry.Search(context.Background(), info.ID, searchRequest())
		require.NoError(t, err)
	}
	close(stop)
	<-done

	got, err := registry.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Results)
	assert.Equal(t, "RESULTS_AVAILABLE", got.State)
}

func TestSessionsAreIsolated(t *testing.T) {
	d1 := scriptedDriver(t, "<div>first</div>")
	d2 := scriptedDriver(t, "<div>second</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d1, d2), config.SessionConfig{})

	s1, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)
	s2, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	_, err = registry.Search(context.Background(), s1.ID, searchRequest())
	require.NoError(t, err)

	r1, err := registry.Results(s1.ID)
	require.NoError(t, err)
	r2, err := registry.Results(s2.ID)
	require.NoError(t, err)
	assert.Len(t, r1, 1)
	assert.Empty(t, r2)

	// Closing one session leaves the other untouched.
	require.NoError(t, registry.Close(s1.ID))
	assert.False(t, d2.Closed)
	_, err = registry.Results(s2.ID)
	assert.NoError(t, err)
}

func TestSolveCaptcha(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	text, err := registry.SolveCaptcha(context.Background(), info.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "aB3x9", text)
}

func TestReaperEvictsIdleSessions(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{
		TTL:            20 * time.Millisecond,
		ReaperInterval: 10 * time.Millisecond,
	})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := registry.Get(info.ID)
		return err == nil && got.Status == models.StatusReaped
	}, time.Second, 5*time.Millisecond)
	assert.True(t, d.Closed)

	_, err = registry.Results(info.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestReaperSkipsRecentlyActiveSessions(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{
		TTL:            time.Hour,
		ReaperInterval: 10 * time.Millisecond,
	})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	got, err := registry.Get(info.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestWatchReceivesTransitions(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	events, cancel, err := registry.Subscribe(info.ID)
	require.NoError(t, err)
	defer cancel()

	_, err = registry.Search(context.Background(), info.ID, searchRequest())
	require.NoError(t, err)

	var states []string
	deadline := time.After(time.Second)
drain:
	for {
		select {
		case e := <-events:
			states = append(states, e.State)
			if e.State == "RESULTS_AVAILABLE" {
				break drain
			}
		case <-deadline:
			break drain
		}
	}
	assert.Contains(t, states, "SUBMITTED")
	assert.Contains(t, states, "RESULTS_AVAILABLE")
}

func TestWatchStreamClosesWithSession(t *testing.T) {
	d := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})

	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	events, cancel, err := registry.Subscribe(info.ID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, registry.Close(info.ID))

	sawClose := false
	for {
		e, ok := <-events
		if !ok {
			break
		}
		if e.State == string(models.StatusClosed) {
			sawClose = true
		}
	}
	assert.True(t, sawClose, "expected a CLOSED event before the stream ended")
}

func TestShutdownClosesEverySession(t *testing.T) {
	d1 := scriptedDriver(t, "<div>r</div>")
	d2 := scriptedDriver(t, "<div>r</div>")
	registry, _ := newTestRegistry(t, automationtest.NewFactory(d1, d2), config.SessionConfig{})

	_, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)
	_, err = registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	registry.Shutdown(ctx)

	assert.True(t, d1.Closed)
	assert.True(t, d2.Closed)
}

func TestCaseDetailFlow(t *testing.T) {
	fragment := `<div>results</div>`
	d := scriptedDriver(t, fragment)

	detail := `<table class="data-table-1"><caption>Case Details</caption>
<tr><th>Case No</th></tr><tr><td>123/2020</td></tr></table>`
	link := &automationtest.Element{}
	link.OnClick = func() {
		d.Stub("table.data-table-1", &automationtest.Element{})
		d.Stub("body", &automationtest.Element{HTMLValue: detail})
	}
	d.Stub(fmt.Sprintf(`a.viewCnrDetails[data-cno=%q]`, "CNR100"), link)

	registry, _ := newTestRegistry(t, automationtest.NewFactory(d), config.SessionConfig{})
	info, err := registry.Create(context.Background(), originURL)
	require.NoError(t, err)

	set, err := registry.CaseDetail(context.Background(), info.ID, "CNR100")
	require.NoError(t, err)
	section, ok := set.Section("Case Details")
	require.True(t, ok)
	assert.Equal(t, "123/2020", section.Records[0]["Case No"])

	cached, err := registry.CachedDetail(info.ID, "CNR100")
	require.NoError(t, err)
	assert.Equal(t, set, cached)

	_, err = registry.CachedDetail(info.ID, "CNR999")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
