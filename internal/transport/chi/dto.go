package chi

import (
	"net/http"
	"strconv"

	"github.com/kailas-cloud/savedobjects/internal/domain/batch"
	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
)

// ErrorCode is the machine-readable part of an error body.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeObjectNotFound   ErrorCode = "saved_object_not_found"
	CodeTypeNotFound     ErrorCode = "type_not_found"
	CodeNotFound         ErrorCode = "not_found"
	CodeConflict         ErrorCode = "conflict"
	CodeRevisionConflict ErrorCode = "revision_conflict"
	CodeNotImplemented   ErrorCode = "not_implemented"
	CodeInternalError    ErrorCode = "internal_error"
)

// updatedAtLayout matches the stored updated_at format.
const updatedAtLayout = "2006-01-02T15:04:05.000Z07:00"

type errorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// CreateParams are the query parameters of POST /api/saved_objects/{type}[/{id}].
type CreateParams struct {
	Namespace *string
	Overwrite *bool
}

// GetParams are the query parameters of GET /api/saved_objects/{type}/{id}.
type GetParams struct {
	Namespace *string
	Fields    *[]string
}

// NamespaceParams carry only the target namespace.
type NamespaceParams struct {
	Namespace *string
}

// FindParams are the query parameters of GET /api/saved_objects/_find.
type FindParams struct {
	Namespace *string
	Type      *[]string
	Fields    *[]string
	Page      *int
	PerPage   *int
}

type createRequest struct {
	Attributes       map[string]any    `json:"attributes"`
	References       []domso.Reference `json:"references"`
	MigrationVersion map[string]string `json:"migrationVersion"`
	OriginID         string            `json:"originId"`
	Workspaces       []string          `json:"workspaces"`
	Permissions      domso.Permissions `json:"permissions"`
}

type updateRequest struct {
	Attributes map[string]any    `json:"attributes"`
	References []domso.Reference `json:"references"`
	Version    string            `json:"version"`
}

type bulkGetItem struct {
	Type   string   `json:"type"`
	ID     string   `json:"id"`
	Fields []string `json:"fields"`
}

type itemError struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

type savedObjectResponse struct {
	ID               string            `json:"id"`
	Type             string            `json:"type"`
	Namespaces       []string          `json:"namespaces,omitempty"`
	UpdatedAt        string            `json:"updated_at,omitempty"`
	Version          string            `json:"version,omitempty"`
	Attributes       map[string]any    `json:"attributes"`
	References       []domso.Reference `json:"references"`
	MigrationVersion map[string]string `json:"migrationVersion,omitempty"`
	OriginID         string            `json:"originId,omitempty"`
	Workspaces       []string          `json:"workspaces,omitempty"`
	Permissions      domso.Permissions `json:"permissions,omitempty"`
}

type bulkGetErrorItem struct {
	ID    string    `json:"id"`
	Type  string    `json:"type"`
	Error itemError `json:"error"`
}

// bulkGetResponse items are savedObjectResponse or bulkGetErrorItem.
type bulkGetResponse struct {
	SavedObjects []any `json:"saved_objects"`
}

type findResponse struct {
	Page         int                   `json:"page"`
	PerPage      int                   `json:"per_page"`
	Total        int                   `json:"total"`
	SavedObjects []savedObjectResponse `json:"saved_objects"`
}

type searchResponse struct {
	ID          string         `json:"id,omitempty"`
	IsRunning   bool           `json:"isRunning"`
	IsPartial   bool           `json:"isPartial"`
	Total       int            `json:"total,omitempty"`
	Loaded      int            `json:"loaded,omitempty"`
	RawResponse map[string]any `json:"rawResponse,omitempty"`
}

type searchErrorAttributes struct {
	Error string `json:"error"`
}

type searchErrorResponse struct {
	Message    string                `json:"message"`
	Attributes searchErrorAttributes `json:"attributes"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func savedObjectToResponse(o domso.SavedObject) savedObjectResponse {
	attrs := o.Attributes()
	if attrs == nil {
		attrs = map[string]any{}
	}
	refs := o.References()
	if refs == nil {
		refs = []domso.Reference{}
	}
	resp := savedObjectResponse{
		ID:               o.ID(),
		Type:             o.Type(),
		Namespaces:       o.Namespaces(),
		Attributes:       attrs,
		References:       refs,
		MigrationVersion: o.MigrationVersion(),
		OriginID:         o.OriginID(),
		Workspaces:       o.Workspaces(),
		Permissions:      o.Permissions(),
	}
	if !o.UpdatedAt().IsZero() {
		resp.UpdatedAt = o.UpdatedAt().UTC().Format(updatedAtLayout)
	}
	if o.Version() > 0 {
		resp.Version = strconv.Itoa(o.Version())
	}
	return resp
}

func batchResultToResponse(r batch.Result[domso.SavedObject]) any {
	if r.Status() == batch.StatusOK {
		return savedObjectToResponse(r.Value())
	}
	status := itemStatus(r.Err())
	return bulkGetErrorItem{
		ID:   r.ID(),
		Type: r.Type(),
		Error: itemError{
			StatusCode: status,
			Error:      http.StatusText(status),
			Message:    safeDomainMessage(r.Err()),
		},
	}
}

// searchResponseToBody flattens hits.total and drops the long-numerals flag.
func searchResponseToBody(resp domsearch.Response) searchResponse {
	return searchResponse{
		ID:          resp.ID,
		IsRunning:   resp.IsRunning,
		IsPartial:   resp.IsPartial,
		Total:       resp.Total,
		Loaded:      resp.Loaded,
		RawResponse: domsearch.ShimHitsTotal(resp.RawResponse),
	}
}
