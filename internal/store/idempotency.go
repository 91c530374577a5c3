package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrIdempotencyConflict signals a concurrent insert raced us; the caller
// should re-read the stored response.
var ErrIdempotencyConflict = errors.New("idempotency key already recorded")

// LookupIdempotencyKey returns the stored response body for a key, or
// (nil, nil) when the key is unknown.
func (s *Store) LookupIdempotencyKey(ctx context.Context, key string) (json.RawMessage, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT response FROM idempotency_keys WHERE key = $1 AND expires_at > now()
	`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return body, nil
}

// SaveIdempotencyKey records the response for a key. The uniqueness
// constraint is the idempotency guarantee: a duplicate insert surfaces as
// ErrIdempotencyConflict instead of silently winning.
func (s *Store) SaveIdempotencyKey(ctx context.Context, key string, response json.RawMessage, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, response, expires_at)
		VALUES ($1, $2, $3)
	`, key, []byte(response), time.Now().UTC().Add(ttl))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("save idempotency key: %w", err)
	}
	return nil
}

// PruneIdempotencyKeys evicts expired keys; called opportunistically by the
// publish flow rather than by a scheduler.
func (s *Store) PruneIdempotencyKeys(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM idempotency_keys WHERE expires_at < now()
	`)
	if err != nil {
		return 0, fmt.Errorf("prune idempotency keys: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
