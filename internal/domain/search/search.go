// Package search defines the request, response and error shapes shared by
// search strategies and the search route.
package search

import (
	"maps"
	"net/http"
)

// Request is one search call. ID is set when polling or resuming an async search.
type Request struct {
	ID     string
	Params map[string]any
}

// Response is a strategy reply. RawResponse is backend-shaped and passed
// through to the caller.
type Response struct {
	ID          string
	IsRunning   bool
	IsPartial   bool
	Total       int
	Loaded      int
	RawResponse map[string]any
	// WithLongNumeralsSupport marks RawResponse numbers as json.Number.
	WithLongNumeralsSupport bool
}

// Session is a persisted async search outcome.
type Session struct {
	Response Response
	Err      *Error
}

// Error is a strategy failure carrying the HTTP status to report.
type Error struct {
	StatusCode int
	Message    string
	// Reason is the backend error body; Message is used when empty.
	Reason string
}

// NewError creates a search error.
func NewError(statusCode int, message, reason string) *Error {
	return &Error{StatusCode: statusCode, Message: message, Reason: reason}
}

func (e *Error) Error() string { return e.Message }

// Status returns StatusCode, or 500 when unset.
func (e *Error) Status() int {
	if e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

// ErrorReason returns Reason, falling back to Message.
func (e *Error) ErrorReason() string {
	if e.Reason != "" {
		return e.Reason
	}
	return e.Message
}

// ShimHitsTotal flattens an object-valued hits.total ({value, relation}) into
// its value. The input is not modified. A missing hits object becomes empty.
func ShimHitsTotal(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := maps.Clone(raw)

	hits := map[string]any{}
	if h, ok := raw["hits"].(map[string]any); ok {
		hits = maps.Clone(h)
	}
	if total, ok := hits["total"].(map[string]any); ok {
		if v, ok := total["value"]; ok && v != nil {
			hits["total"] = v
		}
	}
	out["hits"] = hits
	return out
}
