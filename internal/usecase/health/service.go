package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means objects can be read by id but find and search cannot run.
	Degraded Status = "degraded"
	// Unhealthy means the store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckMissing indicates an absent resource.
	CheckMissing CheckResult = "missing"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	indexes IndexChecker
	index   string
}

// New creates a Service. indexes can be nil to skip the index check.
func New(db DBPinger, indexes IndexChecker, index string) *Service {
	return &Service{db: db, indexes: indexes, index: index}
}

// Check pings the store, then verifies the saved-objects index.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		return Report{Status: Unhealthy, Checks: checks}
	}
	checks["database"] = CheckOK

	status := Healthy
	if s.indexes != nil {
		ok, err := s.indexes.IndexExists(ctx, s.index)
		switch {
		case err != nil:
			checks["index"] = CheckError
			status = Degraded
		case !ok:
			checks["index"] = CheckMissing
			status = Degraded
		default:
			checks["index"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
