package ragline

import "github.com/kailas-cloud/ragline/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrBackendUnavailable = domain.ErrBackendUnavailable
	ErrProviderContent    = domain.ErrProviderContent
	ErrRateLimited        = domain.ErrRateLimited
	ErrQuotaExceeded      = domain.ErrQuotaExceeded
	ErrInvalidRequest     = domain.ErrInvalidRequest
	ErrNotFound           = domain.ErrNotFound
)
