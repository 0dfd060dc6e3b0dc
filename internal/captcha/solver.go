// Package captcha resolves the target form's image captcha: deterministic
// preprocessing, a primary/fallback pair of recognition engines, and a
// validation window over the candidate text.
package captcha

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/anveshgarg/courtscout/internal/monitoring"
	"github.com/anveshgarg/courtscout/pkg/models"
)

// Allowlist is the character set both engines are constrained to.
const Allowlist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// minPrimaryLength is the shortest primary-engine output accepted before the
// classical fallback kicks in.
const minPrimaryLength = 4

// Engine is one text-recognition collaborator.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, pngImage []byte, allow string) (string, error)
}

// Solver runs the full pipeline. Recognition is CPU-bound and potentially
// multi-second, so engine calls go through a weighted semaphore sized
// independently of the session count.
type Solver struct {
	neural    Engine
	classical Engine
	expected  int
	slots     *semaphore.Weighted
	log       *zap.Logger
	metrics   *monitoring.Metrics
}

// NewSolver wires the two engines. workers bounds concurrent recognitions.
func NewSolver(neural, classical Engine, expected, workers int, log *zap.Logger, metrics *monitoring.Metrics) *Solver {
	if workers < 1 {
		workers = 1
	}
	return &Solver{
		neural:    neural,
		classical: classical,
		expected:  expected,
		slots:     semaphore.NewWeighted(int64(workers)),
		log:       log,
		metrics:   metrics,
	}
}

// Solve runs the default order: neural primary, classical fallback.
func (s *Solver) Solve(ctx context.Context, raw []byte) (string, error) {
	return s.SolveWith(ctx, raw, "")
}

// SolveWith lets the caller prefer an engine order. "classical" swaps the
// primary; anything else keeps the neural engine first.
func (s *Solver) SolveWith(ctx context.Context, raw []byte, preference string) (string, error) {
	if len(raw) == 0 {
		return "", models.ErrCaptchaImageUnavailable
	}

	processed, err := Preprocess(raw)
	if err != nil {
		s.log.Warn("captcha preprocessing failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", models.ErrCaptchaImageUnavailable, err)
	}
	encoded, err := encodePNG(processed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCaptchaImageUnavailable, err)
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCaptchaUnresolved, err)
	}
	defer s.slots.Release(1)

	primary, fallback := s.neural, s.classical
	if preference == "classical" {
		primary, fallback = s.classical, s.neural
	}

	candidate := s.recognize(ctx, primary, encoded)
	if len(candidate) < minPrimaryLength {
		s.log.Debug("primary engine output too short, falling back",
			zap.String("engine", primary.Name()),
			zap.String("candidate", candidate))
		if fb := s.recognize(ctx, fallback, encoded); fb != "" {
			candidate = fb
		}
	}

	if !Validate(candidate, s.expected) {
		s.metrics.CaptchaSolve("pipeline", "unresolved")
		return "", fmt.Errorf("%w: candidate %q outside validation window", models.ErrCaptchaUnresolved, candidate)
	}

	s.metrics.CaptchaSolve("pipeline", "solved")
	return candidate, nil
}

func (s *Solver) recognize(ctx context.Context, engine Engine, pngImage []byte) string {
	text, err := engine.Recognize(ctx, pngImage, Allowlist)
	if err != nil {
		s.log.Warn("recognition engine failed",
			zap.String("engine", engine.Name()), zap.Error(err))
		s.metrics.CaptchaSolve(engine.Name(), "error")
		return ""
	}
	s.metrics.CaptchaSolve(engine.Name(), "ok")
	return CleanCandidate(text)
}

// Validate accepts a candidate only when it is non-empty, purely
// alphanumeric, and within [expected-1, expected+2]. The asymmetric window
// tolerates one dropped glyph but up to two spuriously recognized extras.
func Validate(candidate string, expected int) bool {
	if candidate == "" {
		return false
	}
	if len(candidate) < expected-1 || len(candidate) > expected+2 {
		return false
	}
	for _, r := range candidate {
		if !isAlnum(r) {
			return false
		}
	}
	return true
}

// CleanCandidate strips everything outside the allowlist.
func CleanCandidate(text string) string {
	return strings.Map(func(r rune) rune {
		if isAlnum(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(text))
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode processed image: %w", err)
	}
	return buf.Bytes(), nil
}
