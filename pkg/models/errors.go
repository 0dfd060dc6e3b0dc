package models

import "errors"

// Sentinel errors shared across the service. Callers wrap these with %w and
// the API layer maps them to response codes with errors.Is.
var (
	// ErrSessionNotFound covers unknown, closed, and reaped session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrAutomationFailure means a browser collaborator call failed. The
	// session state is unchanged and the operation may be retried.
	ErrAutomationFailure = errors.New("automation failure")

	// ErrAutomationTimeout is a bounded condition wait that expired.
	ErrAutomationTimeout = errors.New("automation timeout")

	// ErrCaptchaUnresolved means the pipeline ran but no candidate passed
	// validation. Distinct from an automation failure so callers can fall
	// back to manual entry.
	ErrCaptchaUnresolved = errors.New("captcha unresolved")

	// ErrCaptchaImageUnavailable means the captcha image could not be
	// fetched or decoded at all.
	ErrCaptchaImageUnavailable = errors.New("captcha image unavailable")

	// ErrInvalidArtifact covers path-traversal attempts and other malformed
	// artifact references.
	ErrInvalidArtifact = errors.New("invalid artifact reference")

	// ErrNotFound is a generic missing-record error (history entries,
	// stored artifacts).
	ErrNotFound = errors.New("not found")
)
