package domain

import "errors"

var (
	// ErrBackendUnavailable signals a transient LLM, embedding, or index outage.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrProviderContent signals a non-retryable provider rejection (malformed prompt, policy).
	ErrProviderContent = errors.New("provider rejected request")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded signals an exhausted token budget.
	ErrQuotaExceeded = errors.New("token quota exceeded")
	// ErrInvalidRequest signals a malformed caller request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized signals a missing or invalid API key.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
)

// KeyPrefix namespaces every ragline key and index in the store.
const KeyPrefix = "ragline:"
