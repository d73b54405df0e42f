package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis hash fields for a credential record.
const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldExpiresAt    = "expires_at"
)

// RedisStore persists credential records in Redis, one hash per user. It is
// the backend for deployments where the process restarts must not force
// every user to reauthorize.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed credential store. The prefix
// namespaces keys so the store can share a database with other data.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "claudia:tokens"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Get returns the record for a user, or ErrNoRecord.
func (s *RedisStore) Get(ctx context.Context, userID string) (*CredentialRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get credentials: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNoRecord
	}
	return recordFromFields(userID, fields)
}

// Put overwrites the record for rec.UserID unconditionally.
func (s *RedisStore) Put(ctx context.Context, rec *CredentialRecord) error {
	if err := s.client.HSet(ctx, s.key(rec.UserID), recordFields(rec)).Err(); err != nil {
		return fmt.Errorf("redis put credentials: %w", err)
	}
	return nil
}

// CompareAndSwap overwrites the record only if the stored refresh token
// still equals prevRefreshToken. The check-and-set runs under WATCH so a
// concurrent refresh aborts the transaction instead of being overwritten.
func (s *RedisStore) CompareAndSwap(ctx context.Context, prevRefreshToken string, rec *CredentialRecord) error {
	key := s.key(rec.UserID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.HGet(ctx, key, fieldRefreshToken).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNoRecord
		}
		if err != nil {
			return err
		}
		if stored != prevRefreshToken {
			return ErrSwapConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, recordFields(rec))
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrSwapConflict
	}
	if errors.Is(err, ErrNoRecord) || errors.Is(err, ErrSwapConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("redis swap credentials: %w", err)
	}
	return nil
}

// Delete removes the record for a user.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete credentials: %w", err)
	}
	return nil
}

func recordFields(rec *CredentialRecord) map[string]any {
	return map[string]any{
		fieldAccessToken:  rec.AccessToken,
		fieldRefreshToken: rec.RefreshToken,
		fieldExpiresAt:    rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

func recordFromFields(userID string, fields map[string]string) (*CredentialRecord, error) {
	rec := &CredentialRecord{
		UserID:       userID,
		AccessToken:  fields[fieldAccessToken],
		RefreshToken: fields[fieldRefreshToken],
	}
	if raw := fields[fieldExpiresAt]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("parse stored expiry %q: %w", raw, err)
		}
		rec.ExpiresAt = t
	}
	return rec, nil
}
