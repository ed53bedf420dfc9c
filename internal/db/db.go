package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
//
//nolint:interfacebloat // consumers depend on the narrow sub-interfaces
type Store interface {
	Pinger
	JSONStore
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JSONStore provides JSON document operations.
type JSONStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	// JSONSetNX stores the document only if the key is absent. Returns false if it existed.
	JSONSetNX(ctx context.Context, key string, data []byte) (bool, error)
	// JSONCompareAndSet replaces the document at $ only if the JSON.GET reply
	// for path equals expected, in one server-side step.
	JSONCompareAndSet(ctx context.Context, key, path string, expected, data []byte) (bool, error)
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	// JSONGetMulti runs one JSON.GET per request in a single round-trip.
	// Missing keys yield a nil entry.
	JSONGetMulti(ctx context.Context, reqs []JSONGetRequest) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides search operations over FT indexes.
type Searcher interface {
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// JSONGetRequest is one JSON.GET of a pipelined read.
type JSONGetRequest struct {
	Key   string
	Paths []string
}
