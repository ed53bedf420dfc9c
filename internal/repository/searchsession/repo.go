// Package searchsession persists async search outcomes with a TTL.
package searchsession

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/savedobjects/internal/db"
	"github.com/kailas-cloud/savedobjects/internal/domain"
	"github.com/kailas-cloud/savedobjects/internal/domain/search"
)

// store is the consumer interface for search sessions (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Repo implements usecase/search session storage over plain keys.
type Repo struct {
	store  store
	prefix string
}

// New creates a session repository. Keys live under prefix.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

type responseDTO struct {
	ID                      string         `json:"id,omitempty"`
	IsRunning               bool           `json:"isRunning"`
	IsPartial               bool           `json:"isPartial"`
	Total                   int            `json:"total,omitempty"`
	Loaded                  int            `json:"loaded,omitempty"`
	RawResponse             map[string]any `json:"rawResponse,omitempty"`
	WithLongNumeralsSupport bool           `json:"withLongNumeralsSupport,omitempty"`
}

type errorDTO struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
}

type sessionDTO struct {
	Response responseDTO `json:"response"`
	Error    *errorDTO   `json:"error,omitempty"`
}

// Save stores a session outcome for ttl.
func (r *Repo) Save(ctx context.Context, id string, s search.Session, ttl time.Duration) error {
	dto := sessionDTO{Response: responseDTO{
		ID:                      s.Response.ID,
		IsRunning:               s.Response.IsRunning,
		IsPartial:               s.Response.IsPartial,
		Total:                   s.Response.Total,
		Loaded:                  s.Response.Loaded,
		RawResponse:             s.Response.RawResponse,
		WithLongNumeralsSupport: s.Response.WithLongNumeralsSupport,
	}}
	if s.Err != nil {
		dto.Error = &errorDTO{StatusCode: s.Err.StatusCode, Message: s.Err.Message, Reason: s.Err.Reason}
	}

	data, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.store.SetWithTTL(ctx, r.key(id), data, ttl); err != nil {
		return fmt.Errorf("set session %s: %w", id, err)
	}
	return nil
}

// Load returns a stored session outcome.
func (r *Repo) Load(ctx context.Context, id string) (search.Session, error) {
	data, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return search.Session{}, fmt.Errorf("session %s: %w", id, domain.ErrSearchSessionNotFound)
		}
		return search.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}

	// numbers stay json.Number so long numerals survive the round-trip
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var dto sessionDTO
	if err := dec.Decode(&dto); err != nil {
		return search.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}

	s := search.Session{Response: search.Response{
		ID:                      dto.Response.ID,
		IsRunning:               dto.Response.IsRunning,
		IsPartial:               dto.Response.IsPartial,
		Total:                   dto.Response.Total,
		Loaded:                  dto.Response.Loaded,
		RawResponse:             dto.Response.RawResponse,
		WithLongNumeralsSupport: dto.Response.WithLongNumeralsSupport,
	}}
	if dto.Error != nil {
		s.Err = search.NewError(dto.Error.StatusCode, dto.Error.Message, dto.Error.Reason)
	}
	return s, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("del session %s: %w", id, err)
	}
	return nil
}

func (r *Repo) key(id string) string {
	return r.prefix + id
}
