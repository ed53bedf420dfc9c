// Package chi serves the saved-objects and search HTTP API.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/savedobjects/internal/domain"
	logpkg "github.com/kailas-cloud/savedobjects/internal/logger"
	healthuc "github.com/kailas-cloud/savedobjects/internal/usecase/health"
	objectuc "github.com/kailas-cloud/savedobjects/internal/usecase/savedobject"
	searchuc "github.com/kailas-cloud/savedobjects/internal/usecase/search"
)

const maxBodyBytes = 10 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers. Routes are mounted by HandlerWithOptions.
type Server struct {
	objects       *objectuc.Service
	search        *searchuc.Registry
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	objects *objectuc.Service,
	search *searchuc.Registry,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		objects: objects,
		search:  search,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		revisionConflictHandler,
		sentinelHandler(domain.ErrObjectNotFound, http.StatusNotFound, CodeObjectNotFound),
		sentinelHandler(domain.ErrTypeNotFound, http.StatusNotFound, CodeTypeNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrStrategyNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrSearchSessionNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, CodeConflict),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
	}
	return s
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) requestLogger(ctx context.Context) *zap.Logger {
	return logpkg.FromContextOr(ctx, s.logger)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r.Context())
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func setETag(w http.ResponseWriter, version int) {
	if version > 0 {
		w.Header().Set("ETag", strconv.Quote(strconv.Itoa(version)))
	}
}

var domainSentinels = []error{
	domain.ErrObjectNotFound,
	domain.ErrTypeNotFound,
	domain.ErrNotFound,
	domain.ErrAlreadyExists,
	domain.ErrRevisionConflict,
	domain.ErrInvalidInput,
	domain.ErrStrategyNotFound,
	domain.ErrSearchSessionNotFound,
	domain.ErrNotImplemented,
}

func safeDomainMessage(err error) string {
	for _, s := range domainSentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// itemStatus maps a per-item error to the status a standalone request would get.
func itemStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrObjectNotFound),
		errors.Is(err, domain.ErrTypeNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrRevisionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func revisionConflictHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrRevisionConflict) {
		return false
	}
	var rce *domain.RevisionConflictError
	if errors.As(err, &rce) {
		setETag(w, rce.CurrentRevision)
		writeJSON(w, http.StatusConflict, map[string]any{
			"code":             CodeRevisionConflict,
			"message":          msg,
			"current_revision": rce.CurrentRevision,
		})
		return true
	}
	writeError(w, http.StatusConflict, CodeRevisionConflict, msg)
	return true
}
