package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/savedobjects/internal/db"
)

// SearchList returns one page of matches via FT.SEARCH. An empty query
// matches every document; fields limits the returned attributes.
func (s *Store) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	var args []string
	if len(fields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	}
	args = append(args, "LIMIT", strconv.Itoa(offset), strconv.Itoa(limit))

	raw, err := s.search(ctx, index, query, args...)
	if err != nil {
		return nil, err
	}
	return parseListResult(raw)
}

// SearchCount returns the number of matches without fetching documents.
func (s *Store) SearchCount(ctx context.Context, index, query string) (int, error) {
	raw, err := s.search(ctx, index, query, "LIMIT", "0", "0")
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

func (s *Store) search(ctx context.Context, index, query string, opts ...string) ([]rueidis.RedisMessage, error) {
	if index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if query == "" {
		query = "*"
	}
	args := make([]string, 0, len(opts)+4)
	args = append(args, index, query)
	args = append(args, opts...)
	args = append(args, "DIALECT", "2")

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isMissingIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return raw, nil
}

// --- Result parsing ---

func parseListResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, len(raw)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
