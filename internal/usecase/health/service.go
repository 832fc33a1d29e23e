package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks over the metadata store and the
// configured embedding providers.
type Service struct {
	store     StorePinger
	embedders map[string]EmbeddingChecker
}

// New creates a Service. Embedders that do not expose a health check (or
// modes left unconfigured) are simply absent from the map.
func New(store StorePinger, embedders map[string]EmbeddingChecker) *Service {
	return &Service{store: store, embedders: embedders}
}

// Check runs health checks against all components. A failing embedding
// provider degrades the report but the API stays up: lexical search works
// without it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.store.Ping(ctx); err != nil {
		checks["metadata"] = CheckError
	} else {
		checks["metadata"] = CheckOK
	}

	for name, emb := range s.embedders {
		if err := emb.HealthCheck(ctx); err != nil {
			checks["embedding_"+name] = CheckError
		} else {
			checks["embedding_"+name] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
