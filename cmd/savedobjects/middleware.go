package main

import (
	"encoding/json"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/savedobjects/internal/logger"
	chiTransport "github.com/kailas-cloud/savedobjects/internal/transport/chi"
)

// jsonRecoverer turns a handler panic into a JSON 500 instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logger.Error("panic recovered",
					zap.Any("panic", rvr),
					zap.String("path", r.URL.Path),
					zap.Stack("stacktrace"),
				)
				writeJSONError(w, http.StatusInternalServerError, chiTransport.CodeInternalError, "internal error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits one canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// set by chiMiddleware.RequestID
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

// invalidParamHandler answers path and query parameters that failed to bind.
func invalidParamHandler(w http.ResponseWriter, r *http.Request, err error) {
	logpkg.FromContext(r.Context()).Debug("invalid request parameter", zap.Error(err))
	writeJSONError(w, http.StatusBadRequest, chiTransport.CodeBadRequest, err.Error())
}

func writeJSONError(w http.ResponseWriter, status int, code chiTransport.ErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(code),
		"message": msg,
	})
}
