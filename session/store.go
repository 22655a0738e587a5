package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when no live record exists for a handle.
var ErrSessionNotFound = errors.New("session not found")

// ErrRefreshHashMismatch is returned when the presented refresh secret does
// not match the stored hash. The record is destroyed before this is
// returned: a mismatch after rotation means the old token is being replayed.
var ErrRefreshHashMismatch = errors.New("refresh hash mismatch")

// ErrRedisUnavailable wraps backend connectivity failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

const rotateMaxRetries = 4

// Store is a Redis-backed session store handling persistence, expiry,
// atomic refresh rotation, payload merges, and revocation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ags"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(handle string) string {
	return s.prefix + ":" + handle
}

func (s *Store) identityKey(identityID string) string {
	return s.prefix + "i:" + identityID
}

// Save persists a session and indexes it under its identity. TTL is derived
// from the record's absolute expiry.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	sessionKey := s.key(sess.Handle)
	identityKey := s.identityKey(sess.IdentityID)

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey, data, ttl)
		pipe.SAdd(ctx, identityKey, sess.Handle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a live session by handle. Expired records are removed and
// reported as not found.
func (s *Store) Get(ctx context.Context, handle string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.Handle = handle

	if time.Now().Unix() >= sess.ExpiresAt {
		if err := s.deleteSessionAndIndex(ctx, sess.IdentityID, handle); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Delete revokes a session. Deleting a missing handle is not an error.
func (s *Store) Delete(ctx context.Context, handle string) error {
	data, err := s.redis.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return err
	}

	return s.deleteSessionAndIndex(ctx, sess.IdentityID, handle)
}

// DeleteAllForIdentity revokes every session of an identity.
//
// ATOMICITY NOTE: the read of the identity's handle set and the delete run
// as separate steps. A session created between them is not captured by this
// call; it expires naturally or is caught by the next invocation.
func (s *Store) DeleteAllForIdentity(ctx context.Context, identityID string) error {
	identityKey := s.identityKey(identityID)

	handles, err := s.redis.SMembers(ctx, identityKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, handle := range handles {
			pipe.Del(ctx, s.key(handle))
		}
		pipe.Del(ctx, identityKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ActiveHandles returns the indexed session handles for an identity.
func (s *Store) ActiveHandles(ctx context.Context, identityID string) ([]string, error) {
	handles, err := s.redis.SMembers(ctx, s.identityKey(identityID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return handles, nil
}

// RotateRefreshHash atomically replaces the stored refresh hash, provided
// the presented hash matches. On mismatch the whole session family is
// destroyed and [ErrRefreshHashMismatch] is returned: a concurrent loser or
// a replayed token must not keep the session alive.
func (s *Store) RotateRefreshHash(
	ctx context.Context,
	handle string,
	providedHash [32]byte,
	nextHash [32]byte,
) (*Session, error) {
	key := s.key(handle)

	for i := 0; i < rotateMaxRetries; i++ {
		var rotated *Session
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return err
			}
			sess.Handle = handle

			now := time.Now()
			if now.Unix() >= sess.ExpiresAt {
				if err := s.txDeleteWithIndex(ctx, tx, sess.IdentityID, handle); err != nil {
					return err
				}
				return ErrSessionNotFound
			}

			if subtle.ConstantTimeCompare(sess.RefreshHash[:], providedHash[:]) != 1 {
				if err := s.txDeleteWithIndex(ctx, tx, sess.IdentityID, handle); err != nil {
					return err
				}
				return ErrRefreshHashMismatch
			}

			sess.RefreshHash = nextHash
			sess.LastRefreshedAt = now.Unix()

			updated, err := Encode(sess)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			rotated = sess
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrSessionNotFound
			}
			if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrRefreshHashMismatch) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return rotated, nil
	}

	// Contention exhausted the retry budget; the competing rotation won and
	// this token is now a replay.
	return nil, ErrRefreshHashMismatch
}

// MergePayload applies a merge patch to the session payload in a single
// atomic record update. An empty-string value removes the key.
func (s *Store) MergePayload(ctx context.Context, handle string, patch map[string]string) (*Session, error) {
	key := s.key(handle)

	for i := 0; i < rotateMaxRetries; i++ {
		var merged *Session
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return err
			}
			sess.Handle = handle

			if time.Now().Unix() >= sess.ExpiresAt {
				if err := s.txDeleteWithIndex(ctx, tx, sess.IdentityID, handle); err != nil {
					return err
				}
				return ErrSessionNotFound
			}

			if sess.Payload == nil {
				sess.Payload = make(map[string]string, len(patch))
			}
			for k, v := range patch {
				if v == "" {
					delete(sess.Payload, k)
					continue
				}
				sess.Payload[k] = v
			}

			updated, err := Encode(sess)
			if err != nil {
				return err
			}

			ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}

			merged = sess
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrSessionNotFound
			}
			if errors.Is(err, ErrSessionNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return merged, nil
	}

	return nil, ErrSessionNotFound
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, identityID, handle string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(handle))
		pipe.SRem(ctx, s.identityKey(identityID), handle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *Store) txDeleteWithIndex(ctx context.Context, tx *redis.Tx, identityID, handle string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(handle))
		pipe.SRem(ctx, s.identityKey(identityID), handle)
		return nil
	})
	return err
}
