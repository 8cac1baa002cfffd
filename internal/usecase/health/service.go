// Package health aggregates readiness probes over the vector store and
// the model providers.
package health

import "context"

// Status is the aggregated readiness verdict.
type Status string

const (
	// Healthy means every probed component answered.
	Healthy Status = "ok"
	// Degraded means some probed components failed.
	Degraded Status = "degraded"
	// Unhealthy means every probed component failed.
	Unhealthy Status = "error"
)

// CheckResult is an individual probe outcome.
type CheckResult string

const (
	// CheckOK indicates a passing probe.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing probe.
	CheckError CheckResult = "error"
)

// Report aggregates probe results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service runs the readiness probes.
type Service struct {
	store     StorePinger
	embedder  ProviderChecker
	completer ProviderChecker
}

// New creates the health service. embedder and completer may be nil when
// the corresponding provider is not wired.
func New(store StorePinger, embedder, completer ProviderChecker) *Service {
	return &Service{store: store, embedder: embedder, completer: completer}
}

// Check probes every wired component.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["store"] = probe(s.store.Ping(ctx))
	if s.embedder != nil {
		checks["embeddings"] = probe(s.embedder.HealthCheck(ctx))
	}
	if s.completer != nil {
		checks["llm"] = probe(s.completer.HealthCheck(ctx))
	}

	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}

	status := Healthy
	switch {
	case failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}

func probe(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
