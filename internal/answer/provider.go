// Package answer resolves free-form questions against an external
// answer-generation endpoint. The resolver owns the retry budget and
// the tolerant parsing of provider-dependent response shapes; the
// provider owns only the wire call.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/durkdan/messenger-gpt/internal/config"
	"github.com/durkdan/messenger-gpt/internal/httpkit"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Provider performs one answer-generation call. A non-nil error means
// a transport-level failure (timeout, connection error) and is
// retryable; any returned body, including provider error documents on
// non-2xx statuses, is handed to the shape matchers instead.
type Provider interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// GeminiProvider calls the Gemini generateContent REST endpoint.
type GeminiProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiProvider builds a provider from configuration. The
// per-attempt deadline comes from the resolver's context, so the
// underlying client carries no overall timeout of its own.
func NewGeminiProvider(cfg config.GeminiConfig, logger *slog.Logger) *GeminiProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiProvider{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    baseURL,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
		logger:     logger,
	}
}

// geminiRequest is the generateContent request envelope.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// Generate posts the prompt and returns the raw response body. Non-2xx
// statuses still return the body: Gemini reports quota and validation
// problems as a JSON error document, which the resolver classifies as
// a terminal semantic error rather than a retryable fault.
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) ([]byte, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Debug("provider returned non-OK status",
			"status", resp.StatusCode,
			"body_size", len(body),
		)
	}
	return body, nil
}
