package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// NeuralEngine delegates recognition to a remote neural OCR service. The
// service accepts a base64 PNG and the character allowlist and returns its
// best reading.
type NeuralEngine struct {
	client   *resty.Client
	endpoint string
}

type neuralRequest struct {
	Image     string `json:"image"`
	Allowlist string `json:"allowlist"`
}

type neuralResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewNeuralEngine builds a client for endpoint. The endpoint may be empty;
// Recognize then fails fast so the classical fallback takes over.
func NewNeuralEngine(endpoint string) *NeuralEngine {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &NeuralEngine{client: client, endpoint: endpoint}
}

func (e *NeuralEngine) Name() string { return "neural" }

func (e *NeuralEngine) Recognize(ctx context.Context, pngImage []byte, allow string) (string, error) {
	if e.endpoint == "" {
		return "", fmt.Errorf("neural engine not configured")
	}

	var out neuralResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(neuralRequest{
			Image:     base64.StdEncoding.EncodeToString(pngImage),
			Allowlist: allow,
		}).
		SetResult(&out).
		Post(e.endpoint)
	if err != nil {
		return "", fmt.Errorf("neural recognition request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("neural recognition: status %s", resp.Status())
	}
	if out.Error != "" {
		return "", fmt.Errorf("neural recognition: %s", out.Error)
	}
	return out.Text, nil
}
