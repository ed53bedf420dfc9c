package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/savedobjects/internal/domain"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
	logpkg "github.com/kailas-cloud/savedobjects/internal/logger"
)

// Search handles POST /internal/search/{strategy}[/{id}]. The body carries
// params and optionally the id of a running search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request, strategy, id string) {
	r = s.withStrategy(r, strategy)
	body := map[string]any{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeSearchError(w, r, domsearch.NewError(http.StatusBadRequest, "Invalid request body", err.Error()))
		return
	}

	req := domsearch.Request{ID: id, Params: map[string]any{}}
	if p, ok := body["params"].(map[string]any); ok {
		req.Params = p
	}
	if req.ID == "" {
		if v, ok := body["id"].(string); ok {
			req.ID = v
		}
	}

	resp, err := s.search.Search(r.Context(), strategy, req)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponseToBody(resp))
}

// CancelSearch handles DELETE /internal/search/{strategy}/{id}.
func (s *Server) CancelSearch(w http.ResponseWriter, r *http.Request, strategy, id string) {
	r = s.withStrategy(r, strategy)
	if err := s.search.Cancel(r.Context(), strategy, id); err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// withStrategy tags the request logger with the strategy name.
func (s *Server) withStrategy(r *http.Request, strategy string) *http.Request {
	l := s.requestLogger(r.Context()).With(zap.String("strategy", strategy))
	return r.WithContext(logpkg.ContextWithLogger(r.Context(), l))
}

// writeSearchError replies {message, attributes:{error}} with the status the
// strategy reported.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r.Context())

	status := http.StatusInternalServerError
	message := "internal error"
	reason := message

	var se *domsearch.Error
	switch {
	case errors.As(err, &se):
		status, message, reason = se.Status(), se.Message, se.ErrorReason()
		log.Warn("search error", zap.Int("status", status), zap.Error(err))
	case errors.Is(err, domain.ErrStrategyNotFound), errors.Is(err, domain.ErrSearchSessionNotFound):
		status = http.StatusNotFound
		message = safeDomainMessage(err)
		reason = message
		log.Warn("search error", zap.Int("status", status), zap.Error(err))
	default:
		log.Error("search failed", zap.Error(err))
	}

	writeJSON(w, status, searchErrorResponse{
		Message:    message,
		Attributes: searchErrorAttributes{Error: reason},
	})
}
