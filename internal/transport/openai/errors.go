package openai

import (
	"encoding/json"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/ragline/internal/domain"
)

// parseAPIError extracts a human-readable error from the API response and
// wraps it with the sentinel matching the failure class, so the transport
// layer can map it to the right status code.
func parseAPIError(op string, err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			op, reqErr.HTTPStatusCode, detail, sentinelFor(reqErr.HTTPStatusCode))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		// An exhausted billing quota arrives as 429 with its own error
		// code; back-off won't help, so it gets its own sentinel.
		if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
			return fmt.Errorf("%s API error %d: %s: %w",
				op, apiErr.HTTPStatusCode, apiErr.Message, domain.ErrQuotaExceeded)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			op, apiErr.HTTPStatusCode, apiErr.Message, sentinelFor(apiErr.HTTPStatusCode))
	}

	return fmt.Errorf("%s request failed: %w", op, domain.ErrBackendUnavailable)
}

// sentinelFor maps an HTTP status to the domain sentinel. Rate limits get
// their own sentinel so callers can back off; other 4xx mean the provider
// rejected the content, anything else is an availability problem.
func sentinelFor(status int) error {
	switch {
	case status == 429:
		return domain.ErrRateLimited
	case status >= 400 && status < 500:
		return domain.ErrProviderContent
	default:
		return domain.ErrBackendUnavailable
	}
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
