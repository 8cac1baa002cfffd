// Package anthropic adapts the Anthropic Messages API to the completion
// contract. Embeddings stay on the OpenAI-compatible transport; this package
// only serves completions.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

const providerLabel = "anthropic"

// defaultMaxTokens applies when the caller leaves MaxTokens unset; the
// Messages API rejects requests without a positive value.
const defaultMaxTokens = 1024

// Completer is a chat completion provider using the Anthropic Messages API.
type Completer struct {
	client anthropic.Client
	model  anthropic.Model
}

// CompleterConfig holds the completion provider settings.
type CompleterConfig struct {
	APIKey  string
	BaseURL string // empty: api.anthropic.com
	Model   string
	Timeout time.Duration // zero: no client-side cap
}

// NewCompleter creates an Anthropic chat completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	return &Completer{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(cfg.Model),
	}
}

// Complete implements domain.Completer. A zero temperature is omitted from
// the request, leaving the choice to the provider.
func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	start := time.Now()

	resp, err := c.client.Messages.New(ctx, params)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("complete", providerLabel, "error").Inc()
		return domain.CompletionResult{}, parseAPIError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		metrics.LLMRequestsTotal.WithLabelValues("complete", providerLabel, "error").Inc()
		return domain.CompletionResult{}, fmt.Errorf("empty completion response: %w", domain.ErrBackendUnavailable)
	}

	promptTokens := int(resp.Usage.InputTokens)
	totalTokens := promptTokens + int(resp.Usage.OutputTokens)

	metrics.LLMRequestsTotal.WithLabelValues("complete", providerLabel, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues("complete", providerLabel).Observe(duration.Seconds())
	if totalTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues("complete", providerLabel).Add(float64(totalTokens))
	}

	return domain.CompletionResult{
		Text:         text,
		PromptTokens: promptTokens,
		TotalTokens:  totalTokens,
	}, nil
}

// HealthCheck verifies API availability by listing models.
func (c *Completer) HealthCheck(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError wraps a Messages API failure with the sentinel matching the
// failure class. Rate limits get their own sentinel so callers can back off;
// other 4xx mean the provider rejected the content, anything else is an
// availability problem.
func parseAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		sentinel := domain.ErrBackendUnavailable
		switch {
		case apiErr.StatusCode == 429:
			sentinel = domain.ErrRateLimited
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			sentinel = domain.ErrProviderContent
		}
		return fmt.Errorf("completion API error %d: %w", apiErr.StatusCode, sentinel)
	}

	return fmt.Errorf("completion request failed: %w", domain.ErrBackendUnavailable)
}
