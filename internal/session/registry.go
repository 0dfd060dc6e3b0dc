// Package session owns the live browser sessions: creation, per-session
// serialization, idle reaping, and the operations the HTTP layer exposes.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/automation"
	"github.com/anveshgarg/courtscout/internal/captcha"
	"github.com/anveshgarg/courtscout/internal/config"
	"github.com/anveshgarg/courtscout/internal/extract"
	"github.com/anveshgarg/courtscout/internal/form"
	"github.com/anveshgarg/courtscout/internal/history"
	"github.com/anveshgarg/courtscout/internal/monitoring"
	"github.com/anveshgarg/courtscout/pkg/models"
)

// Session pairs one exclusively owned browser handle with the form
// controller driving it. All automation work runs under mu; the registry
// and HTTP layer never touch the handle directly.
type Session struct {
	ID        string
	OriginURL string
	StartedAt time.Time

	mu     sync.Mutex
	driver automation.Driver
	form   *form.Controller
	events *broadcaster

	metaMu     sync.Mutex
	status     models.SessionStatus
	lastActive time.Time
}

// Info snapshots the externally visible session state.
func (s *Session) Info() models.SessionInfo {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return models.SessionInfo{
		ID:         s.ID,
		OriginURL:  s.OriginURL,
		Status:     s.status,
		State:      string(s.form.State()),
		StartedAt:  s.StartedAt,
		LastActive: s.lastActive,
		Results:    len(s.form.Results()),
	}
}

func (s *Session) touch() {
	s.metaMu.Lock()
	s.lastActive = time.Now()
	s.metaMu.Unlock()
}

func (s *Session) currentStatus() models.SessionStatus {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.status
}

func (s *Session) idleSince() time.Time {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.lastActive
}

// Registry tracks every session and runs the idle reaper. Registry-wide
// state is only held long enough to look a session up; automation calls
// always run under the individual session's mutex.
type Registry struct {
	factory automation.Factory
	solver  *captcha.Solver
	ledger  *history.Ledger
	metrics *monitoring.Metrics
	log     *zap.Logger

	ttl         time.Duration
	sweepEvery  time.Duration
	waitTimeout time.Duration

	sessions sync.Map
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewRegistry(
	factory automation.Factory,
	solver *captcha.Solver,
	ledger *history.Ledger,
	metrics *monitoring.Metrics,
	cfg config.SessionConfig,
	waitTimeout time.Duration,
	log *zap.Logger,
) *Registry {
	r := &Registry{
		factory:     factory,
		solver:      solver,
		ledger:      ledger,
		metrics:     metrics,
		log:         log,
		ttl:         cfg.TTL,
		sweepEvery:  cfg.ReaperInterval,
		waitTimeout: waitTimeout,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go r.reapLoop()
	return r
}

// Create launches a fresh browser handle and opens the search form.
func (r *Registry) Create(ctx context.Context, url string) (models.SessionInfo, error) {
	if url == "" {
		return models.SessionInfo{}, fmt.Errorf("url is required")
	}

	driver, err := r.factory.NewDriver(ctx)
	if err != nil {
		return models.SessionInfo{}, fmt.Errorf("launch session browser: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:         uuid.New().String(),
		OriginURL:  url,
		StartedAt:  now,
		driver:     driver,
		form:       form.NewController(driver, r.waitTimeout, r.log),
		events:     newBroadcaster(),
		status:     models.StatusActive,
		lastActive: now,
	}
	s.form.OnTransition(func(state form.State) {
		s.events.Publish(Event{SessionID: s.ID, State: string(state), At: time.Now()})
	})

	if err := s.form.Open(ctx, url); err != nil {
		if cerr := driver.Close(); cerr != nil {
			r.log.Warn("closing failed session browser", zap.Error(cerr))
		}
		return models.SessionInfo{}, err
	}

	r.sessions.Store(s.ID, s)
	r.metrics.SessionOpened()
	r.log.Info("session created",
		zap.String("session_id", s.ID), zap.String("url", url))
	return s.Info(), nil
}

// Get returns the session's visible state; closed and reaped sessions are
// still reported here so callers can see why an operation stopped working.
func (r *Registry) Get(id string) (models.SessionInfo, error) {
	value, ok := r.sessions.Load(id)
	if !ok {
		return models.SessionInfo{}, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	return value.(*Session).Info(), nil
}

// active looks up a session that can still run automation work.
func (r *Registry) active(id string) (*Session, error) {
	value, ok := r.sessions.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	s := value.(*Session)
	if s.currentStatus() != models.StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", models.ErrSessionNotFound, id, s.currentStatus())
	}
	return s, nil
}

// withSession serializes one automation operation against the handle.
func (r *Registry) withSession(id string, fn func(s *Session) error) error {
	s, err := r.active(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()
	return fn(s)
}

// LoadForm reads the first dropdown and captcha reference.
func (r *Registry) LoadForm(ctx context.Context, id, mode string) (models.FormSnapshot, error) {
	var snap models.FormSnapshot
	err := r.withSession(id, func(s *Session) error {
		var err error
		snap, err = s.form.LoadForm(ctx, mode)
		return err
	})
	return snap, err
}

// Cascade selects a court and returns the dependent case-type options.
func (r *Registry) Cascade(ctx context.Context, id string, req models.CascadeRequest) ([]models.Option, error) {
	var opts []models.Option
	err := r.withSession(id, func(s *Session) error {
		var err error
		opts, err = s.form.SelectCourt(ctx, req.CourtValue, req.Mode)
		return err
	})
	return opts, err
}

// Reload re-reads the first dropdown, keeping accumulated results.
func (r *Registry) Reload(ctx context.Context, id, mode string) (models.FormSnapshot, error) {
	var snap models.FormSnapshot
	err := r.withSession(id, func(s *Session) error {
		var err error
		snap, err = s.form.Reload(ctx, mode)
		return err
	})
	return snap, err
}

// CaptchaImage screenshots the current captcha.
func (r *Registry) CaptchaImage(ctx context.Context, id string) ([]byte, error) {
	var png []byte
	err := r.withSession(id, func(s *Session) error {
		var err error
		png, err = s.form.CaptchaImage(ctx)
		return err
	})
	return png, err
}

// SolveCaptcha screenshots and auto-solves the current captcha. The engine
// preference is advisory; the fallback order still applies.
func (r *Registry) SolveCaptcha(ctx context.Context, id, engine string) (string, error) {
	var text string
	err := r.withSession(id, func(s *Session) error {
		png, err := s.form.CaptchaImage(ctx)
		if err != nil {
			return err
		}
		text, err = r.solver.SolveWith(ctx, png, engine)
		return err
	})
	return text, err
}

// Search submits the form and, on success, records the search in the
// history ledger. Ledger failures are logged, never surfaced to the caller.
func (r *Registry) Search(ctx context.Context, id string, req models.SearchRequest) (form.SubmitOutcome, error) {
	var outcome form.SubmitOutcome
	err := r.withSession(id, func(s *Session) error {
		var err error
		outcome, err = s.form.Submit(ctx, req)
		if err != nil {
			return err
		}

		r.metrics.SearchCompleted()
		entry := models.HistoryEntry{
			SessionID:    s.ID,
			URL:          s.OriginURL,
			CourtName:    outcome.CourtName,
			CaseType:     outcome.CaseTypeName,
			RegNo:        req.RegNo,
			RegYear:      req.RegYear,
			ResultsCount: outcome.ResultsCount,
		}
		if err := r.ledger.Append(entry); err != nil {
			r.log.Error("recording search history failed",
				zap.String("session_id", s.ID), zap.Error(err))
		}
		return nil
	})
	return outcome, err
}

// Results lists the session's accumulated raw result fragments.
func (r *Registry) Results(id string) ([]string, error) {
	var fragments []string
	err := r.withSession(id, func(s *Session) error {
		fragments = s.form.Results()
		return nil
	})
	return fragments, err
}

// CaseDetail expands one result's detail view and extracts it.
func (r *Registry) CaseDetail(ctx context.Context, id, cno string) (*extract.RecordSet, error) {
	var set *extract.RecordSet
	err := r.withSession(id, func(s *Session) error {
		var err error
		set, err = s.form.ViewCaseDetail(ctx, cno)
		if err == nil && set.Degraded {
			r.metrics.ExtractionFellBack()
		}
		return err
	})
	return set, err
}

// CachedDetail returns an already-extracted detail without driving the
// browser again.
func (r *Registry) CachedDetail(id, cno string) (*extract.RecordSet, error) {
	var set *extract.RecordSet
	err := r.withSession(id, func(s *Session) error {
		cached, ok := s.form.Detail(cno)
		if !ok {
			return fmt.Errorf("%w: no detail for case %q", models.ErrNotFound, cno)
		}
		set = cached
		return nil
	})
	return set, err
}

// Subscribe attaches a watch listener to the session's event stream.
func (r *Registry) Subscribe(id string) (<-chan Event, func(), error) {
	s, err := r.active(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.events.Subscribe()
	return ch, cancel, nil
}

// Close shuts the session's browser and marks it closed. The session stays
// listed so its terminal status remains visible; history is unaffected.
func (r *Registry) Close(id string) error {
	s, err := r.active(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.shutdownSession(s, models.StatusClosed)
	return nil
}

// shutdownSession finalizes a session. Callers hold s.mu.
func (r *Registry) shutdownSession(s *Session, status models.SessionStatus) {
	s.metaMu.Lock()
	if s.status != models.StatusActive {
		s.metaMu.Unlock()
		return
	}
	s.status = status
	s.metaMu.Unlock()

	if err := s.driver.Close(); err != nil {
		r.log.Warn("closing session browser failed",
			zap.String("session_id", s.ID), zap.Error(err))
	}
	s.events.Publish(Event{SessionID: s.ID, State: string(status), At: time.Now()})
	s.events.Close()
	r.metrics.SessionClosed(status == models.StatusReaped)
	r.log.Info("session closed",
		zap.String("session_id", s.ID), zap.String("status", string(status)))
}

// Shutdown stops the reaper and closes every active session. Safe to call
// more than once.
func (r *Registry) Shutdown(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
	case <-ctx.Done():
	}

	r.sessions.Range(func(_, value any) bool {
		s := value.(*Session)
		s.mu.Lock()
		r.shutdownSession(s, models.StatusClosed)
		s.mu.Unlock()
		return true
	})
}

// reapLoop sweeps for idle sessions. A session whose handle is mid-operation
// is skipped for this sweep rather than waited on.
func (r *Registry) reapLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.ttl)
	r.sessions.Range(func(_, value any) bool {
		s := value.(*Session)
		if s.currentStatus() != models.StatusActive || s.idleSince().After(cutoff) {
			return true
		}
		if !s.mu.TryLock() {
			return true
		}
		defer s.mu.Unlock()
		// Re-check under the lock: an operation may have finished between
		// the idle check and acquiring the mutex.
		if s.idleSince().After(cutoff) {
			return true
		}
		r.log.Info("reaping idle session",
			zap.String("session_id", s.ID),
			zap.Time("last_active", s.idleSince()))
		r.shutdownSession(s, models.StatusReaped)
		return true
	})
}
