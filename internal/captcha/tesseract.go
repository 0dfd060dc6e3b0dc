package captcha

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs a sweep of Tesseract configurations over the same
// image and keeps the longest cleaned output. Short captcha strips trip up
// any single page-segmentation mode often enough that the sweep pays for
// itself.
type TesseractEngine struct {
	tessdataPrefix string
}

type tessVariant struct {
	psm gosseract.PageSegMode
	oem string
}

var tessVariants = []tessVariant{
	{psm: gosseract.PSM_SINGLE_LINE, oem: "3"},
	{psm: gosseract.PSM_SINGLE_WORD, oem: "3"},
	{psm: gosseract.PSM_SINGLE_BLOCK, oem: "3"},
	{psm: gosseract.PSM_SINGLE_LINE, oem: "1"},
}

func NewTesseractEngine(tessdataPrefix string) *TesseractEngine {
	return &TesseractEngine{tessdataPrefix: tessdataPrefix}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, pngImage []byte, allow string) (string, error) {
	best := ""
	var lastErr error
	for _, v := range tessVariants {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := e.runVariant(pngImage, allow, v)
		if err != nil {
			lastErr = err
			continue
		}
		if cleaned := CleanCandidate(text); len(cleaned) > len(best) {
			best = cleaned
		}
	}
	if best == "" && lastErr != nil {
		return "", fmt.Errorf("tesseract sweep: %w", lastErr)
	}
	return best, nil
}

func (e *TesseractEngine) runVariant(pngImage []byte, allow string, v tessVariant) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			return "", err
		}
	}
	if err := client.SetLanguage("eng"); err != nil {
		return "", err
	}
	if err := client.SetPageSegMode(v.psm); err != nil {
		return "", err
	}
	if err := client.SetVariable("tessedit_ocr_engine_mode", v.oem); err != nil {
		return "", err
	}
	if err := client.SetWhitelist(allow); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(pngImage); err != nil {
		return "", err
	}
	return client.Text()
}
