package chi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerOptions configures HandlerWithOptions.
type ServerOptions struct {
	BaseRouter       chi.Router
	Middlewares      []func(http.Handler) http.Handler
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// InvalidParamFormatError reports a path or query parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// Handler mounts s on a new chi router with default options.
func Handler(s *Server) http.Handler {
	return HandlerWithOptions(s, ServerOptions{})
}

// HandlerWithOptions mounts every route of s on opts.BaseRouter.
func HandlerWithOptions(s *Server, opts ServerOptions) http.Handler {
	r := opts.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	errFn := opts.ErrorHandlerFunc
	if errFn == nil {
		errFn = func(w http.ResponseWriter, _ *http.Request, err error) {
			writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		}
	}
	b := &binder{s: s, errFn: errFn}

	r.Group(func(r chi.Router) {
		r.Use(opts.Middlewares...)

		r.Get("/health", s.HealthCheck)
		r.Get("/metrics", s.Metrics)

		r.Post("/api/saved_objects/_bulk_get", b.bulkGet)
		r.Get("/api/saved_objects/_find", b.find)
		r.Post("/api/saved_objects/{type}", b.create)
		r.Post("/api/saved_objects/{type}/{id}", b.create)
		r.Get("/api/saved_objects/{type}/{id}", b.get)
		r.Put("/api/saved_objects/{type}/{id}", b.update)
		r.Delete("/api/saved_objects/{type}/{id}", b.delete)

		r.Post("/internal/search/{strategy}", b.search)
		r.Post("/internal/search/{strategy}/{id}", b.search)
		r.Delete("/internal/search/{strategy}/{id}", b.cancelSearch)
	})
	return r
}

// binder decodes path and query parameters before calling the Server.
type binder struct {
	s     *Server
	errFn func(w http.ResponseWriter, r *http.Request, err error)
}

func (b *binder) create(w http.ResponseWriter, r *http.Request) {
	typ, ok := b.path(w, r, "type", true)
	if !ok {
		return
	}
	id, ok := b.path(w, r, "id", false)
	if !ok {
		return
	}
	var params CreateParams
	if !b.query(w, r, "namespace", &params.Namespace) || !b.query(w, r, "overwrite", &params.Overwrite) {
		return
	}
	b.s.CreateObject(w, r, typ, id, params)
}

func (b *binder) get(w http.ResponseWriter, r *http.Request) {
	typ, id, ok := b.typeAndID(w, r)
	if !ok {
		return
	}
	var params GetParams
	if !b.query(w, r, "namespace", &params.Namespace) || !b.query(w, r, "fields", &params.Fields) {
		return
	}
	b.s.GetObject(w, r, typ, id, params)
}

func (b *binder) update(w http.ResponseWriter, r *http.Request) {
	typ, id, ok := b.typeAndID(w, r)
	if !ok {
		return
	}
	var params NamespaceParams
	if !b.query(w, r, "namespace", &params.Namespace) {
		return
	}
	b.s.UpdateObject(w, r, typ, id, params)
}

func (b *binder) delete(w http.ResponseWriter, r *http.Request) {
	typ, id, ok := b.typeAndID(w, r)
	if !ok {
		return
	}
	var params NamespaceParams
	if !b.query(w, r, "namespace", &params.Namespace) {
		return
	}
	b.s.DeleteObject(w, r, typ, id, params)
}

func (b *binder) bulkGet(w http.ResponseWriter, r *http.Request) {
	var params NamespaceParams
	if !b.query(w, r, "namespace", &params.Namespace) {
		return
	}
	b.s.BulkGetObjects(w, r, params)
}

func (b *binder) find(w http.ResponseWriter, r *http.Request) {
	var params FindParams
	if !b.query(w, r, "namespace", &params.Namespace) ||
		!b.query(w, r, "type", &params.Type) ||
		!b.query(w, r, "fields", &params.Fields) ||
		!b.query(w, r, "page", &params.Page) ||
		!b.query(w, r, "per_page", &params.PerPage) {
		return
	}
	b.s.FindObjects(w, r, params)
}

func (b *binder) search(w http.ResponseWriter, r *http.Request) {
	strategy, ok := b.path(w, r, "strategy", true)
	if !ok {
		return
	}
	id, ok := b.path(w, r, "id", false)
	if !ok {
		return
	}
	b.s.Search(w, r, strategy, id)
}

func (b *binder) cancelSearch(w http.ResponseWriter, r *http.Request) {
	strategy, ok := b.path(w, r, "strategy", true)
	if !ok {
		return
	}
	id, ok := b.path(w, r, "id", true)
	if !ok {
		return
	}
	b.s.CancelSearch(w, r, strategy, id)
}

func (b *binder) typeAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	typ, ok := b.path(w, r, "type", true)
	if !ok {
		return "", "", false
	}
	id, ok := b.path(w, r, "id", true)
	if !ok {
		return "", "", false
	}
	return typ, id, true
}

// path binds a simple-style path parameter. Optional parameters absent from
// the matched route yield "".
func (b *binder) path(w http.ResponseWriter, r *http.Request, name string, required bool) (string, bool) {
	raw := chi.URLParam(r, name)
	if raw == "" && !required {
		return "", true
	}
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, raw, &v, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      required,
	})
	if err != nil {
		b.errFn(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return "", false
	}
	return v, true
}

// query binds an optional form-style exploded query parameter into dest.
func (b *binder) query(w http.ResponseWriter, r *http.Request, name string, dest any) bool {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		b.errFn(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}
