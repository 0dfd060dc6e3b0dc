package models

import "time"

// SessionStatus represents the current state of a scraping session
type SessionStatus string

const (
	StatusActive SessionStatus = "ACTIVE"
	StatusClosed SessionStatus = "CLOSED"
	StatusReaped SessionStatus = "REAPED"
)

// SessionInfo is the externally visible view of a session. The automation
// handle itself never leaves the registry.
type SessionInfo struct {
	ID         string        `json:"id"`
	OriginURL  string        `json:"originUrl"`
	Status     SessionStatus `json:"status"`
	State      string        `json:"state"`
	StartedAt  time.Time     `json:"startedAt"`
	LastActive time.Time     `json:"lastActive"`
	Results    int           `json:"results"`
}

// Option is a single dropdown option scraped from the target form.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FormSnapshot is returned by the dropdown/reload operations: the current
// option set plus a reference to the captcha image.
type FormSnapshot struct {
	Options    []Option `json:"options"`
	CaptchaURL string   `json:"captchaUrl"`
}

// CreateSessionRequest is the payload for starting a new session
type CreateSessionRequest struct {
	URL string `json:"url"`
}

// CascadeRequest selects a court and asks for the dependent case-type options.
type CascadeRequest struct {
	CourtValue string `json:"courtValue"`
	Mode       string `json:"mode,omitempty"`
}

// ReloadRequest re-reads the first dropdown after a mode switch.
type ReloadRequest struct {
	Mode string `json:"mode,omitempty"`
}

// SolveCaptchaRequest asks the pipeline to auto-solve the current captcha.
type SolveCaptchaRequest struct {
	Engine string `json:"engine,omitempty"` // "neural" or "classical"
}

// SearchRequest is the payload for submitting the search form.
type SearchRequest struct {
	CourtValue    string `json:"courtValue"`
	CaseTypeValue string `json:"caseTypeValue"`
	RegNo         string `json:"regNo"`
	RegYear       string `json:"regYear"`
	Captcha       string `json:"captcha"`
	Mode          string `json:"mode,omitempty"`
}
