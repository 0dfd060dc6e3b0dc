// Package form drives the court-search page: dependent dropdowns, captcha
// field, submission, and case-detail expansion. One Controller owns one
// browser handle; callers serialize operations, but the read accessors are
// safe to call while an operation is in flight.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/automation"
	"github.com/anveshgarg/courtscout/internal/extract"
	"github.com/anveshgarg/courtscout/pkg/models"
)

// State tracks how far the controller has driven the form.
type State string

const (
	StateInitialized      State = "INITIALIZED"
	StateCourtSelected    State = "COURT_SELECTED"
	StateCaseTypeSelected State = "CASE_TYPE_SELECTED"
	StateSubmitted        State = "SUBMITTED"
	StateResultsAvailable State = "RESULTS_AVAILABLE"
	StateError            State = "ERROR"
)

// Page selectors for the target form.
const (
	selCourtComplex       = "select#est_code"
	selCourtEstablishment = "select#court_establishment"
	selCaseType           = "select#case_type"
	selCaseTypeOption     = "select#case_type option"
	selRegNo              = "input#reg_no"
	selRegYear            = "input#reg_year"
	selCaptchaInput       = "input#siwp_captcha_value_0"
	selSubmit             = "input[type=submit]"
	selCaptchaImage       = "#siwp_captcha_image_0"
	selResults            = "div.resultsHolder.servicesResultsContainer"
	selDetailLink         = `a.viewCnrDetails[data-cno=%q]`
	selDetailTable        = "table.data-table-1"
)

// ModeComplex searches by court complex; anything else searches by
// establishment.
const ModeComplex = "complex"

// SubmitOutcome carries what the history ledger needs from one search.
type SubmitOutcome struct {
	Fragment     string
	CourtName    string
	CaseTypeName string
	ResultsCount int
}

// Controller is the per-session form state machine. When an operation fails
// the state moves to StateError but the last successfully reached state is
// retained, so a retry resumes from there instead of restarting the flow.
type Controller struct {
	driver  automation.Driver
	origin  string
	timeout time.Duration
	log     *zap.Logger

	// mu covers the fields below so Info-style reads don't race the
	// operation that is mutating them.
	mu       sync.RWMutex
	state    State
	lastGood State
	results  []string
	details  map[string]*extract.RecordSet
	onChange func(State)
}

func NewController(driver automation.Driver, waitTimeout time.Duration, log *zap.Logger) *Controller {
	return &Controller{
		driver:   driver,
		timeout:  waitTimeout,
		log:      log,
		state:    StateInitialized,
		lastGood: StateInitialized,
		details:  make(map[string]*extract.RecordSet),
	}
}

// OnTransition registers a state-change callback. It fires synchronously
// from the operation goroutine; keep it fast.
func (c *Controller) OnTransition(fn func(State)) { c.onChange = fn }

// State reports the current state, which is StateError after a failed
// operation until a retry succeeds.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastReachedState is the furthest state a successful operation reached.
// After a failure it tells the caller where a retry resumes from.
func (c *Controller) LastReachedState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastGood
}

func (c *Controller) transition(s State) {
	c.mu.Lock()
	c.state = s
	c.lastGood = s
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange(s)
	}
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	c.state = StateError
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange(StateError)
	}
	return err
}

// Open navigates the handle to the form's origin URL.
func (c *Controller) Open(ctx context.Context, url string) error {
	if err := c.driver.Navigate(ctx, url); err != nil {
		return c.fail(fmt.Errorf("open form at %s: %w", url, err))
	}
	c.origin = url
	c.transition(StateInitialized)
	return nil
}

// LoadForm reads the first dropdown's options and the captcha image URL.
func (c *Controller) LoadForm(ctx context.Context, mode string) (models.FormSnapshot, error) {
	sel, err := c.driver.WaitFor(ctx, courtSelector(mode), c.timeout)
	if err != nil {
		return models.FormSnapshot{}, c.fail(fmt.Errorf("locate court dropdown: %w", err))
	}
	opts, err := sel.Options(ctx)
	if err != nil {
		return models.FormSnapshot{}, c.fail(fmt.Errorf("read court options: %w", err))
	}

	snap := models.FormSnapshot{Options: opts}
	if img, err := c.driver.Find(ctx, selCaptchaImage); err == nil {
		if src, ok, err := img.Attribute(ctx, "src"); err == nil && ok {
			snap.CaptchaURL = src
		}
	}
	return snap, nil
}

// SelectCourt picks a court and waits for the dependent case-type dropdown
// to populate, returning its options.
func (c *Controller) SelectCourt(ctx context.Context, value, mode string) ([]models.Option, error) {
	sel, err := c.driver.WaitFor(ctx, courtSelector(mode), c.timeout)
	if err != nil {
		return nil, c.fail(fmt.Errorf("locate court dropdown: %w", err))
	}
	if err := sel.SelectByValue(ctx, value); err != nil {
		return nil, c.fail(fmt.Errorf("select court %q: %w", value, err))
	}

	// The site fills case types asynchronously after the court change event.
	if _, err := c.driver.WaitFor(ctx, selCaseTypeOption, c.timeout); err != nil {
		return nil, c.fail(fmt.Errorf("case types did not populate for court %q: %w", value, err))
	}
	caseSel, err := c.driver.Find(ctx, selCaseType)
	if err != nil {
		return nil, c.fail(fmt.Errorf("locate case-type dropdown: %w", err))
	}
	opts, err := caseSel.Options(ctx)
	if err != nil {
		return nil, c.fail(fmt.Errorf("read case-type options: %w", err))
	}

	c.transition(StateCourtSelected)
	return opts, nil
}

// Reload re-navigates to the origin and re-reads the first dropdown and
// captcha. Accumulated results and cached details survive.
func (c *Controller) Reload(ctx context.Context, mode string) (models.FormSnapshot, error) {
	if err := c.driver.Navigate(ctx, c.origin); err != nil {
		return models.FormSnapshot{}, c.fail(fmt.Errorf("reload form: %w", err))
	}
	snap, err := c.LoadForm(ctx, mode)
	if err != nil {
		return models.FormSnapshot{}, err
	}
	c.transition(StateInitialized)
	return snap, nil
}

// Submit fills every field, submits, and waits for the results container.
// On success the raw results fragment is appended to the session's
// accumulated list; on failure the list is untouched.
func (c *Controller) Submit(ctx context.Context, req models.SearchRequest) (SubmitOutcome, error) {
	courtName, err := c.selectWithLabel(ctx, courtSelector(mode(req.Mode)), req.CourtValue)
	if err != nil {
		return SubmitOutcome{}, c.fail(fmt.Errorf("select court: %w", err))
	}
	if _, err := c.driver.WaitFor(ctx, selCaseTypeOption, c.timeout); err != nil {
		return SubmitOutcome{}, c.fail(fmt.Errorf("case types did not populate: %w", err))
	}
	caseTypeName, err := c.selectWithLabel(ctx, selCaseType, req.CaseTypeValue)
	if err != nil {
		return SubmitOutcome{}, c.fail(fmt.Errorf("select case type: %w", err))
	}
	c.transition(StateCaseTypeSelected)

	if err := c.fill(ctx, selRegNo, req.RegNo); err != nil {
		return SubmitOutcome{}, c.fail(err)
	}
	if err := c.fill(ctx, selRegYear, req.RegYear); err != nil {
		return SubmitOutcome{}, c.fail(err)
	}
	if err := c.fill(ctx, selCaptchaInput, req.Captcha); err != nil {
		return SubmitOutcome{}, c.fail(err)
	}

	submit, err := c.driver.Find(ctx, selSubmit)
	if err != nil {
		return SubmitOutcome{}, c.fail(fmt.Errorf("locate submit button: %w", err))
	}
	if err := submit.Click(ctx); err != nil {
		return SubmitOutcome{}, c.fail(fmt.Errorf("click submit: %w", err))
	}
	c.transition(StateSubmitted)

	holder, err := c.driver.WaitFor(ctx, selResults, c.timeout)
	if err != nil {
		return SubmitOutcome{}, c.fail(fmt.Errorf("results did not appear: %w", err))
	}
	fragment, err := holder.HTML(ctx)
	if err != nil {
		return SubmitOutcome{}, c.fail(fmt.Errorf("read results fragment: %w", err))
	}

	c.mu.Lock()
	c.results = append(c.results, fragment)
	count := len(c.results)
	c.mu.Unlock()
	c.transition(StateResultsAvailable)
	return SubmitOutcome{
		Fragment:     fragment,
		CourtName:    courtName,
		CaseTypeName: caseTypeName,
		ResultsCount: count,
	}, nil
}

// ViewCaseDetail expands one result's detail view and extracts its tables
// and party lists. Re-invocation for the same cno overwrites the cache.
func (c *Controller) ViewCaseDetail(ctx context.Context, cno string) (*extract.RecordSet, error) {
	link, err := c.driver.Find(ctx, fmt.Sprintf(selDetailLink, cno))
	if err != nil {
		if errors.Is(err, automation.ErrElementNotFound) {
			return nil, fmt.Errorf("%w: case %q", models.ErrNotFound, cno)
		}
		return nil, c.fail(fmt.Errorf("locate detail link for %q: %w", cno, err))
	}
	if err := link.Click(ctx); err != nil {
		return nil, c.fail(fmt.Errorf("open detail for %q: %w", cno, err))
	}
	if _, err := c.driver.WaitFor(ctx, selDetailTable, c.timeout); err != nil {
		return nil, c.fail(fmt.Errorf("detail tables did not appear for %q: %w", cno, err))
	}

	body, err := c.driver.Find(ctx, "body")
	if err != nil {
		return nil, c.fail(fmt.Errorf("read detail page: %w", err))
	}
	html, err := body.HTML(ctx)
	if err != nil {
		return nil, c.fail(fmt.Errorf("read detail page: %w", err))
	}
	set, err := extract.Document(html)
	if err != nil {
		return nil, c.fail(fmt.Errorf("extract detail for %q: %w", cno, err))
	}

	c.mu.Lock()
	c.details[cno] = &set
	c.mu.Unlock()
	return &set, nil
}

// CaptchaImage screenshots the captcha element.
func (c *Controller) CaptchaImage(ctx context.Context) ([]byte, error) {
	img, err := c.driver.WaitFor(ctx, selCaptchaImage, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCaptchaImageUnavailable, err)
	}
	png, err := img.ScreenshotPNG(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCaptchaImageUnavailable, err)
	}
	return png, nil
}

// Results returns the accumulated raw fragments, oldest first.
func (c *Controller) Results() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.results))
	copy(out, c.results)
	return out
}

// Detail returns the cached record set for cno, if any.
func (c *Controller) Detail(cno string) (*extract.RecordSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set, ok := c.details[cno]
	return set, ok
}

func (c *Controller) fill(ctx context.Context, selector, value string) error {
	el, err := c.driver.Find(ctx, selector)
	if err != nil {
		return fmt.Errorf("locate %s: %w", selector, err)
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("clear %s: %w", selector, err)
	}
	if err := el.SendKeys(ctx, value); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// selectWithLabel picks an option by value and returns its display label,
// falling back to the raw value when the label cannot be resolved.
func (c *Controller) selectWithLabel(ctx context.Context, selector, value string) (string, error) {
	sel, err := c.driver.WaitFor(ctx, selector, c.timeout)
	if err != nil {
		return "", err
	}
	label := value
	if opts, err := sel.Options(ctx); err == nil {
		for _, o := range opts {
			if o.Value == value {
				label = o.Label
				break
			}
		}
	}
	if err := sel.SelectByValue(ctx, value); err != nil {
		return "", err
	}
	return label, nil
}

func courtSelector(m string) string {
	if m == ModeComplex {
		return selCourtComplex
	}
	return selCourtEstablishment
}

func mode(m string) string {
	if m == "" {
		return ModeComplex
	}
	return m
}
