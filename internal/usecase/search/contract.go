package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/savedobjects/internal/db"
	domsearch "github.com/kailas-cloud/savedobjects/internal/domain/search"
)

// Strategy runs one kind of search.
type Strategy interface {
	Search(ctx context.Context, req domsearch.Request) (domsearch.Response, error)
}

// Canceler is implemented by strategies whose searches can be stopped by id.
type Canceler interface {
	Cancel(ctx context.Context, id string) error
}

// SessionStore persists async search outcomes.
type SessionStore interface {
	Save(ctx context.Context, id string, s domsearch.Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (domsearch.Session, error)
	Delete(ctx context.Context, id string) error
}

// IndexSearcher runs FT.SEARCH queries.
type IndexSearcher interface {
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}
