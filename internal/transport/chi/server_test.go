package chi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/savedobjects/internal/domain"
)

func decodeJSON(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out), body)
	return out
}

// --- Saved objects ---

func TestCreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/saved_objects/config/c1",
		`{"attributes":{"title":"Sales","big":12345678901234567890},"references":[{"name":"r","type":"dashboard","id":"d1"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, `"1"`, rr.Header().Get("ETag"))

	created := decodeJSON(t, rr.Body.String())
	assert.Equal(t, "c1", created["id"])
	assert.Equal(t, "config", created["type"])
	assert.Equal(t, "1", created["version"])
	assert.Equal(t, "2024-03-01T12:00:00.000Z", created["updated_at"])

	rr = env.do(t, http.MethodGet, "/api/saved_objects/config/c1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "12345678901234567890", "large integers must be written verbatim")
}

func TestCreate_GeneratedID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/saved_objects/dashboard", `{"attributes":{}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeJSON(t, rr.Body.String())
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, map[string]any{}, body["attributes"])
	assert.Equal(t, []any{}, body["references"])
}

func TestCreate_Conflict(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/saved_objects/config/c1", `{"attributes":{}}`).Code)
	rr := env.do(t, http.MethodPost, "/api/saved_objects/config/c1", `{"attributes":{}}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, string(CodeConflict), decodeJSON(t, rr.Body.String())["code"])

	rr = env.do(t, http.MethodPost, "/api/saved_objects/config/c1?overwrite=true", `{"attributes":{"a":1}}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2", decodeJSON(t, rr.Body.String())["version"])
}

func TestCreate_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		target string
		body   string
		code   ErrorCode
	}{
		{"invalid json", "/api/saved_objects/config/c1", `{`, CodeBadRequest},
		{"empty body", "/api/saved_objects/config/c1", "", CodeBadRequest},
		{"missing attributes", "/api/saved_objects/config/c1", `{}`, CodeValidationFailed},
		{"invalid id", "/api/saved_objects/config/bad%20id", `{"attributes":{}}`, CodeValidationFailed},
		{"bad overwrite", "/api/saved_objects/config/c1?overwrite=maybe", `{"attributes":{}}`, CodeBadRequest},
		{"bad namespace", "/api/saved_objects/config/c1?namespace=Team%20A", `{"attributes":{}}`, CodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, string(tt.code), decodeJSON(t, rr.Body.String())["code"])
		})
	}
}

func TestGet_UnknownAndHiddenTypes(t *testing.T) {
	env := newTestEnv(t)

	for _, target := range []string{"/api/saved_objects/nope/x", "/api/saved_objects/secret/x"} {
		rr := env.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, target)
		assert.Equal(t, string(CodeTypeNotFound), decodeJSON(t, rr.Body.String())["code"])
	}
}

func TestGet_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/saved_objects/config/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeJSON(t, rr.Body.String())
	assert.Equal(t, string(CodeObjectNotFound), body["code"])
	assert.Equal(t, domain.ErrObjectNotFound.Error(), body["message"])
}

func TestGet_Fields(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/saved_objects/config/c1", `{"attributes":{"a":1,"b":2,"c":3}}`)

	rr := env.do(t, http.MethodGet, "/api/saved_objects/config/c1?fields=a,b", "")
	require.Equal(t, http.StatusOK, rr.Code)
	attrs := decodeJSON(t, rr.Body.String())["attributes"].(map[string]any)
	assert.Len(t, attrs, 2)

	rr = env.do(t, http.MethodGet, "/api/saved_objects/config/c1?fields=a&fields=c", "")
	require.Equal(t, http.StatusOK, rr.Code)
	attrs = decodeJSON(t, rr.Body.String())["attributes"].(map[string]any)
	assert.Contains(t, attrs, "a")
	assert.Contains(t, attrs, "c")
	assert.NotContains(t, attrs, "b")
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/saved_objects/config/c1", `{"attributes":{"a":1}}`)

	rr := env.do(t, http.MethodPut, "/api/saved_objects/config/c1", `{"attributes":{"b":2},"version":"1"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeJSON(t, rr.Body.String())
	assert.Equal(t, "2", body["version"])
	assert.Equal(t, map[string]any{"a": float64(1), "b": float64(2)}, body["attributes"])
}

func TestUpdate_RevisionConflict(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/saved_objects/config/c1", `{"attributes":{}}`)
	env.do(t, http.MethodPut, "/api/saved_objects/config/c1", `{"attributes":{"x":1}}`)

	rr := env.do(t, http.MethodPut, "/api/saved_objects/config/c1", `{"attributes":{"y":1},"version":"1"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, `"2"`, rr.Header().Get("ETag"))
	body := decodeJSON(t, rr.Body.String())
	assert.Equal(t, string(CodeRevisionConflict), body["code"])
	assert.Equal(t, float64(2), body["current_revision"])
}

func TestUpdate_InvalidVersion(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPut, "/api/saved_objects/config/c1", `{"attributes":{},"version":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/saved_objects/config/c1", `{"attributes":{}}`)

	rr := env.do(t, http.MethodDelete, "/api/saved_objects/config/c1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{}`, rr.Body.String())

	rr = env.do(t, http.MethodDelete, "/api/saved_objects/config/c1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBulkGet(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/saved_objects/config/c1", `{"attributes":{"a":1,"b":2}}`)

	rr := env.do(t, http.MethodPost, "/api/saved_objects/_bulk_get",
		`[{"type":"config","id":"c1","fields":["a"]},{"type":"config","id":"nope"},{"type":"secret","id":"s"}]`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	items := decodeJSON(t, rr.Body.String())["saved_objects"].([]any)
	require.Len(t, items, 3)

	first := items[0].(map[string]any)
	assert.Equal(t, map[string]any{"a": float64(1)}, first["attributes"])

	missing := items[1].(map[string]any)["error"].(map[string]any)
	assert.Equal(t, float64(404), missing["statusCode"])
	assert.Equal(t, "Not Found", missing["error"])

	hidden := items[2].(map[string]any)["error"].(map[string]any)
	assert.Equal(t, domain.ErrTypeNotFound.Error(), hidden["message"])
}

func TestBulkGet_MissingID(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodPost, "/api/saved_objects/_bulk_get", `[{"type":"config"}]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFind(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"a", "b", "c"} {
		env.do(t, http.MethodPost, "/api/saved_objects/config/"+id, `{"attributes":{}}`)
	}
	env.do(t, http.MethodPost, "/api/saved_objects/dashboard/d", `{"attributes":{}}`)

	rr := env.do(t, http.MethodGet, "/api/saved_objects/_find?type=config&per_page=2&page=2", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeJSON(t, rr.Body.String())
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(2), body["per_page"])
	assert.Equal(t, float64(3), body["total"])
	objs := body["saved_objects"].([]any)
	require.Len(t, objs, 1)
	assert.Equal(t, "c", objs[0].(map[string]any)["id"])

	rr = env.do(t, http.MethodGet, "/api/saved_objects/_find", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(4), decodeJSON(t, rr.Body.String())["total"])
}

func TestFind_InvalidPage(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/saved_objects/_find?page=x", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, string(CodeBadRequest), decodeJSON(t, rr.Body.String())["code"])
}

// --- Search ---

func TestSearch_ShimsTotalAndDropsFlag(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/internal/search/echo", `{"params":{"query":"*","size":5}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "withLongNumeralsSupport")

	body := decodeJSON(t, rr.Body.String())
	hits := body["rawResponse"].(map[string]any)["hits"].(map[string]any)
	assert.Equal(t, float64(2), hits["total"])
	assert.Equal(t, false, body["isRunning"])

	assert.Equal(t, "*", env.lastReq.Params["query"])
	assert.Equal(t, json.Number("5"), env.lastReq.Params["size"])
}

func TestSearch_IDFromPathAndBody(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/internal/search/echo/abc", `{}`)
	assert.Equal(t, "abc", env.lastReq.ID)

	env.do(t, http.MethodPost, "/internal/search/echo", `{"id":"def"}`)
	assert.Equal(t, "def", env.lastReq.ID)

	rr := env.do(t, http.MethodPost, "/internal/search/echo", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, env.lastReq.ID)
}

func TestSearch_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		target  string
		body    string
		status  int
		message string
		reason  string
	}{
		{"unknown strategy", "/internal/search/nope", `{}`, http.StatusNotFound,
			domain.ErrStrategyNotFound.Error(), domain.ErrStrategyNotFound.Error()},
		{"strategy error", "/internal/search/broken", `{}`, http.StatusBadRequest, "bad query", "parse_exception"},
		{"internal error", "/internal/search/crash", `{}`, http.StatusInternalServerError, "internal error", "internal error"},
		{"invalid body", "/internal/search/echo", `[`, http.StatusBadRequest, "Invalid request body", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rr.Code)
			body := decodeJSON(t, rr.Body.String())
			assert.Equal(t, tt.message, body["message"])
			if tt.reason != "" {
				assert.Equal(t, tt.reason, body["attributes"].(map[string]any)["error"])
			}
			assert.NotContains(t, rr.Body.String(), "connection reset")
		})
	}
}

func TestCancelSearch(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodDelete, "/internal/search/echo/abc", "")
	assert.Equal(t, http.StatusOK, rr.Code, "strategy without cancel accepts the call")

	rr = env.do(t, http.MethodDelete, "/internal/search/async/abc", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"abc"}, env.canceler.canceled)

	env.canceler.cancelErr = domain.ErrSearchSessionNotFound
	rr = env.do(t, http.MethodDelete, "/internal/search/async/gone", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodDelete, "/internal/search/nope/abc", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- Health & metrics ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeJSON(t, rr.Body.String())["status"])

	env.pinger.err = assert.AnError
	rr = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decodeJSON(t, rr.Body.String())
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "error", body["checks"].(map[string]any)["database"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "# HELP") || rr.Body.Len() == 0)
}

func TestHandlerWithOptions_Middlewares(t *testing.T) {
	env := newTestEnv(t)
	var hits int
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			next.ServeHTTP(w, r)
		})
	}
	srvEnv := HandlerWithOptions(
		NewServer(nil, env.search, nil, nil),
		ServerOptions{Middlewares: []func(http.Handler) http.Handler{mw}},
	)

	rr := httptestDo(srvEnv, http.MethodDelete, "/internal/search/echo/x")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, hits)
}
