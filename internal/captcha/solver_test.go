package captcha

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/monitoring"
	"github.com/anveshgarg/courtscout/pkg/models"
)

type fakeEngine struct {
	name  string
	text  string
	err   error
	calls int
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Recognize(ctx context.Context, pngImage []byte, allow string) (string, error) {
	f.calls++
	return f.text, f.err
}

// captchaBytes produces a decodable PNG standing in for the scraped image.
func captchaBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 14))
	for x := 0; x < 40; x++ {
		for y := 0; y < 14; y++ {
			c := color.RGBA{255, 255, 255, 255}
			if (x/5+y/3)%2 == 0 {
				c = color.RGBA{20, 20, 20, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestSolver(neural, classical Engine) *Solver {
	return NewSolver(neural, classical, 5, 2, zap.NewNop(), monitoring.New())
}

func TestSolvePrimarySucceeds(t *testing.T) {
	neural := &fakeEngine{name: "neural", text: "aB3x9"}
	classical := &fakeEngine{name: "tesseract", text: "zzzzz"}

	got, err := newTestSolver(neural, classical).Solve(context.Background(), captchaBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "aB3x9", got)
	assert.Equal(t, 1, neural.calls)
	assert.Zero(t, classical.calls, "fallback should not run when primary output is long enough")
}

func TestSolveFallsBackOnShortPrimaryOutput(t *testing.T) {
	neural := &fakeEngine{name: "neural", text: "aB"}
	classical := &fakeEngine{name: "tesseract", text: "xY7w2"}

	got, err := newTestSolver(neural, classical).Solve(context.Background(), captchaBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "xY7w2", got)
	assert.Equal(t, 1, classical.calls)
}

func TestSolveFallsBackOnPrimaryError(t *testing.T) {
	neural := &fakeEngine{name: "neural", err: errors.New("endpoint down")}
	classical := &fakeEngine{name: "tesseract", text: "pQ81k"}

	got, err := newTestSolver(neural, classical).Solve(context.Background(), captchaBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "pQ81k", got)
}

func TestSolveUnresolvedWhenBothEnginesFail(t *testing.T) {
	neural := &fakeEngine{name: "neural", text: "ab"}
	classical := &fakeEngine{name: "tesseract", text: ""}

	_, err := newTestSolver(neural, classical).Solve(context.Background(), captchaBytes(t))
	assert.ErrorIs(t, err, models.ErrCaptchaUnresolved)
}

func TestSolveRejectsEmptyImage(t *testing.T) {
	_, err := newTestSolver(&fakeEngine{}, &fakeEngine{}).Solve(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrCaptchaImageUnavailable)
}

func TestSolveRejectsUndecodableImage(t *testing.T) {
	_, err := newTestSolver(&fakeEngine{}, &fakeEngine{}).Solve(context.Background(), []byte("not an image"))
	assert.ErrorIs(t, err, models.ErrCaptchaImageUnavailable)
}

func TestSolveWithClassicalPreference(t *testing.T) {
	neural := &fakeEngine{name: "neural", text: "nnnnn"}
	classical := &fakeEngine{name: "tesseract", text: "cCcC7"}

	got, err := newTestSolver(neural, classical).SolveWith(context.Background(), captchaBytes(t), "classical")
	require.NoError(t, err)
	assert.Equal(t, "cCcC7", got)
	assert.Zero(t, neural.calls)
}

func TestValidateWindow(t *testing.T) {
	tests := []struct {
		candidate string
		want      bool
	}{
		{"", false},
		{"abc", false},       // below expected-1
		{"abcd", true},       // expected-1
		{"abcde", true},      // expected
		{"abcdef", true},     // expected+1
		{"abcdefg", true},    // expected+2
		{"abcdefgh", false},  // above expected+2
		{"abc!e", false},     // non-alphanumeric
		{"ab de", false},     // whitespace
		{"Ab3De", true},
	}
	for _, tc := range tests {
		assert.Equalf(t, tc.want, Validate(tc.candidate, 5), "candidate %q", tc.candidate)
	}
}

func TestCleanCandidate(t *testing.T) {
	assert.Equal(t, "aB3x9", CleanCandidate("  a B-3.x 9 \n"))
	assert.Equal(t, "", CleanCandidate("!@#$"))
}

func TestPreprocessDoublesDimensions(t *testing.T) {
	processed, err := Preprocess(captchaBytes(t))
	require.NoError(t, err)
	assert.Equal(t, 80, processed.Bounds().Dx())
	assert.Equal(t, 28, processed.Bounds().Dy())
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}

func TestAdaptiveThresholdBinarizesAgainstLocalMean(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 11, 11))
	for y := 0; y < 11; y++ {
		for x := 0; x < 11; x++ {
			src.SetGray(x, y, color.Gray{Y: 100})
		}
	}
	src.SetGray(5, 5, color.Gray{Y: 20})

	got := AdaptiveThreshold(src, 5, 10)

	// The dark pixel sits well below its local mean; everything else is
	// near it and stays white.
	assert.Equal(t, uint8(0), got.GrayAt(5, 5).Y)
	assert.Equal(t, uint8(255), got.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), got.GrayAt(4, 5).Y)
	for y := 0; y < 11; y++ {
		for x := 0; x < 11; x++ {
			v := got.GrayAt(x, y).Y
			assert.Truef(t, v == 0 || v == 255, "pixel (%d,%d) = %d is not binary", x, y, v)
		}
	}
}

func TestAdaptiveThresholdSurvivesUnevenBackground(t *testing.T) {
	// Half dim, half bright. A global cut wipes out the dim half; the
	// local mean keeps both halves white.
	src := image.NewGray(image.Rect(0, 0, 20, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(60)
			if x >= 10 {
				v = 200
			}
			src.SetGray(x, y, color.Gray{Y: v})
		}
	}

	global := threshold(src, otsuLevel(src))
	assert.Equal(t, uint8(0), global.GrayAt(2, 4).Y)

	adaptive := AdaptiveThreshold(src, 5, 10)
	assert.Equal(t, uint8(255), adaptive.GrayAt(2, 4).Y)
	assert.Equal(t, uint8(255), adaptive.GrayAt(17, 4).Y)
}

func TestAdaptiveThresholdNormalizesEvenBlock(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 9, 9))
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			src.SetGray(x, y, color.Gray{Y: 100})
		}
	}
	src.SetGray(4, 4, color.Gray{Y: 20})

	// An even block size rounds up to the next odd size.
	assert.Equal(t, AdaptiveThreshold(src, 5, 10), AdaptiveThreshold(src, 4, 10))
}
