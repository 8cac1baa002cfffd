package domain

import "context"

type usageKey struct{}

// Usage collects LLM token consumption for a single request.
// The transport puts a mutable pointer into the context before calling the
// pipeline; gateways write after each call; the transport reads it back for
// response headers.
type Usage struct {
	TotalTokens int
	Calls       int
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddTokens records consumed tokens. Safe on a nil receiver.
func (u *Usage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Calls++
	}
}
