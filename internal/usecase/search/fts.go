package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kailas-cloud/savedobjects/internal/db"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
)

// Default page bounds of the fts strategy.
const (
	defaultSize = 10
	defaultMax  = 1000
)

// FTS runs FT.SEARCH query strings against the saved-objects index and
// replies in the hits/total shape search clients expect.
type FTS struct {
	searcher IndexSearcher
	index    string
	prefix   string
	maxSize  int
}

// NewFTS creates the fts strategy. Hit ids are document keys with prefix removed.
func NewFTS(s IndexSearcher, index, prefix string) *FTS {
	return &FTS{searcher: s, index: index, prefix: prefix, maxSize: defaultMax}
}

// WithMaxSize caps the page size a request may ask for.
func (f *FTS) WithMaxSize(n int) *FTS {
	if n > 0 {
		f.maxSize = n
	}
	return f
}

// Search implements Strategy. Params: index, query, types, from, size,
// withLongNumeralsSupport. types narrows query to those saved-object types.
func (f *FTS) Search(ctx context.Context, req domsearch.Request) (domsearch.Response, error) {
	index := stringParam(req.Params, "index", f.index)
	query := stringParam(req.Params, "query", "")
	if types := stringsParam(req.Params, "types"); len(types) > 0 {
		query = db.And(db.TagQuery("type", types...), db.Group(query))
	} else if query == "" {
		query = "*"
	}
	from := intParam(req.Params, "from", 0)
	size := intParam(req.Params, "size", defaultSize)
	longNumerals := boolParam(req.Params, "withLongNumeralsSupport")

	if from < 0 || size < 0 {
		return domsearch.Response{}, domsearch.NewError(http.StatusBadRequest,
			"from and size must be non-negative", "illegal_argument_exception")
	}
	if size > f.maxSize {
		return domsearch.Response{}, domsearch.NewError(http.StatusBadRequest,
			fmt.Sprintf("size must be at most %d", f.maxSize), "illegal_argument_exception")
	}

	start := time.Now()
	res, err := f.query(ctx, index, query, from, size)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return domsearch.Response{}, domsearch.NewError(http.StatusNotFound,
				fmt.Sprintf("no such index [%s]", index), "index_not_found_exception")
		}
		if ctx.Err() != nil {
			return domsearch.Response{}, ctx.Err()
		}
		return domsearch.Response{}, domsearch.NewError(http.StatusBadGateway,
			"search backend error", "search_phase_execution_exception")
	}

	hits := make([]any, 0, len(res.Entries))
	for _, e := range res.Entries {
		src, err := decodeSource(e.Fields["$"], longNumerals)
		if err != nil {
			return domsearch.Response{}, fmt.Errorf("decode hit %s: %w", e.Key, err)
		}
		hits = append(hits, map[string]any{
			"_index":  index,
			"_id":     strings.TrimPrefix(e.Key, f.prefix),
			"_source": src,
		})
	}

	return domsearch.Response{
		// one shard, fully loaded
		Total:  1,
		Loaded: 1,
		RawResponse: map[string]any{
			"took":      time.Since(start).Milliseconds(),
			"timed_out": false,
			"hits": map[string]any{
				"total": map[string]any{"value": res.Total, "relation": "eq"},
				"hits":  hits,
			},
		},
		WithLongNumeralsSupport: longNumerals,
	}, nil
}

// query fetches one page of documents. A zero size only counts matches.
func (f *FTS) query(ctx context.Context, index, query string, from, size int) (*db.SearchResult, error) {
	if size == 0 {
		total, err := f.searcher.SearchCount(ctx, index, query)
		if err != nil {
			return nil, err
		}
		return &db.SearchResult{Total: total}, nil
	}
	return f.searcher.SearchList(ctx, index, query, from, size, []string{"$"})
}

// decodeSource parses a stored document, dropping store bookkeeping fields.
func decodeSource(raw string, longNumerals bool) (map[string]any, error) {
	src := map[string]any{}
	if raw == "" {
		return src, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if longNumerals {
		dec.UseNumber()
	}
	if err := dec.Decode(&src); err != nil {
		return nil, fmt.Errorf("unmarshal source: %w", err)
	}
	for k := range src {
		if strings.HasPrefix(k, "__") {
			delete(src, k)
		}
	}
	return src, nil
}
