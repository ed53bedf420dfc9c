package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/savedobjects/internal/db"
)

// JSONSet stores a JSON document at the given key and path.
func (s *Store) JSONSet(ctx context.Context, key, path string, data []byte) error {
	cmd := s.b().Arbitrary("JSON.SET").Keys(key).Args(path, string(data)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpJSONSet, Err: err}
	}
	return nil
}

// JSONSetNX stores a JSON document at the root only if the key does not exist.
func (s *Store) JSONSetNX(ctx context.Context, key string, data []byte) (bool, error) {
	cmd := s.b().Arbitrary("JSON.SET").Keys(key).Args("$", string(data), "NX").Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpJSONSet, Err: err}
	}
	return true, nil
}

// compareAndSetScript replaces the document at KEYS[1] only while the
// JSON.GET reply for ARGV[1] equals ARGV[2]. Replies: 1 written, 0 mismatch,
// -1 missing key.
const compareAndSetScript = `local cur = redis.call('JSON.GET', KEYS[1], ARGV[1])
if not cur then return -1 end
if cur ~= ARGV[2] then return 0 end
redis.call('JSON.SET', KEYS[1], '$', ARGV[3])
return 1`

// JSONCompareAndSet atomically replaces the document when the value at path
// still matches expected. Returns false on mismatch and ErrKeyNotFound when
// the key is gone.
func (s *Store) JSONCompareAndSet(ctx context.Context, key, path string, expected, data []byte) (bool, error) {
	cmd := s.b().Eval().Script(compareAndSetScript).Numkeys(1).Key(key).
		Arg(path, string(expected), string(data)).Build()
	res, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpJSONSet, Err: err}
	}
	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, db.ErrKeyNotFound
	}
}

// JSONGet retrieves a JSON document by key and optional paths.
func (s *Store) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	cmd := s.b().Arbitrary("JSON.GET").Keys(key).Args(paths...).Build()
	raw, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpJSONGet, Err: err}
	}
	if raw == "" {
		return nil, db.ErrKeyNotFound
	}
	return []byte(raw), nil
}

// JSONGetMulti runs JSON.GET for every request in a single DoMulti round-trip.
func (s *Store) JSONGetMulti(ctx context.Context, reqs []db.JSONGetRequest) ([][]byte, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(reqs))
	for i, req := range reqs {
		cmds[i] = s.b().Arbitrary("JSON.GET").Keys(req.Key).Args(req.Paths...).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([][]byte, len(results))
	for i, res := range results {
		raw, err := res.ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, &db.Error{Op: db.OpJSONGet, Err: fmt.Errorf("key %s: %w", reqs[i].Key, err)}
		}
		if raw != "" {
			out[i] = []byte(raw)
		}
	}
	return out, nil
}
