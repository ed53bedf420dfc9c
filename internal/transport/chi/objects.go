package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	domso "github.com/kailas-cloud/savedobjects/internal/domain/savedobject"
	"github.com/kailas-cloud/savedobjects/internal/domain/savedobject/fields"
)

// CreateObject handles POST /api/saved_objects/{type}[/{id}].
func (s *Server) CreateObject(w http.ResponseWriter, r *http.Request, typ, id string, params CreateParams) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Attributes == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "attributes is required")
		return
	}

	opts := []domso.Option{
		domso.WithReferences(req.References),
		domso.WithMigrationVersion(req.MigrationVersion),
		domso.WithOriginID(req.OriginID),
		domso.WithWorkspaces(req.Workspaces),
		domso.WithPermissions(req.Permissions),
	}
	obj, err := s.objects.Create(r.Context(), deref(params.Namespace), typ, id, req.Attributes,
		deref(params.Overwrite), opts...)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, obj.Version())
	writeJSON(w, http.StatusOK, savedObjectToResponse(obj))
}

// GetObject handles GET /api/saved_objects/{type}/{id}.
func (s *Server) GetObject(w http.ResponseWriter, r *http.Request, typ, id string, params GetParams) {
	obj, err := s.objects.Get(r.Context(), deref(params.Namespace), typ, id, selector(params.Fields))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, obj.Version())
	writeJSON(w, http.StatusOK, savedObjectToResponse(obj))
}

// UpdateObject handles PUT /api/saved_objects/{type}/{id}.
func (s *Server) UpdateObject(w http.ResponseWriter, r *http.Request, typ, id string, params NamespaceParams) {
	var req updateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	version, err := parseVersion(req.Version)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	obj, err := s.objects.Update(r.Context(), deref(params.Namespace), typ, id, domso.Update{
		Attributes: req.Attributes,
		References: req.References,
		Version:    version,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setETag(w, obj.Version())
	writeJSON(w, http.StatusOK, savedObjectToResponse(obj))
}

// DeleteObject handles DELETE /api/saved_objects/{type}/{id}.
func (s *Server) DeleteObject(w http.ResponseWriter, r *http.Request, typ, id string, params NamespaceParams) {
	if err := s.objects.Delete(r.Context(), deref(params.Namespace), typ, id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// BulkGetObjects handles POST /api/saved_objects/_bulk_get.
func (s *Server) BulkGetObjects(w http.ResponseWriter, r *http.Request, params NamespaceParams) {
	var items []bulkGetItem
	if err := decodeBody(w, r, &items); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	reqs := make([]domso.GetRequest, len(items))
	for i, it := range items {
		if it.Type == "" || it.ID == "" {
			writeError(w, http.StatusBadRequest, CodeValidationFailed,
				fmt.Sprintf("item %d: type and id are required", i))
			return
		}
		reqs[i] = domso.GetRequest{Type: it.Type, ID: it.ID}
		if it.Fields != nil {
			reqs[i].Fields = fields.Selector(it.Fields)
		}
	}

	results, err := s.objects.BulkGet(r.Context(), deref(params.Namespace), reqs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := bulkGetResponse{SavedObjects: make([]any, len(results))}
	for i, res := range results {
		resp.SavedObjects[i] = batchResultToResponse(res)
	}
	writeJSON(w, http.StatusOK, resp)
}

// FindObjects handles GET /api/saved_objects/_find.
func (s *Server) FindObjects(w http.ResponseWriter, r *http.Request, params FindParams) {
	res, err := s.objects.Find(r.Context(), domso.FindQuery{
		Namespace: deref(params.Namespace),
		Types:     selector(params.Type),
		Fields:    selector(params.Fields),
		Page:      deref(params.Page),
		PerPage:   deref(params.PerPage),
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := findResponse{
		Page:         res.Page,
		PerPage:      res.PerPage,
		Total:        res.Total,
		SavedObjects: make([]savedObjectResponse, len(res.Objects)),
	}
	for i, o := range res.Objects {
		resp.SavedObjects[i] = savedObjectToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads a JSON body keeping numbers as json.Number.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

// selector turns repeated and comma-separated query values into a selector.
// An absent parameter yields nil.
func selector(values *[]string) fields.Selector {
	if values == nil {
		return nil
	}
	out := fields.Selector{}
	for _, v := range *values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseVersion(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("version %q must be a positive integer", v)
	}
	return n, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
