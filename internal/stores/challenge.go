package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	ErrChallengeNotFound = errors.New("code challenge not found")
	ErrChallengeExpired  = errors.New("code challenge expired")
	ErrChallengeBackend  = errors.New("code challenge backend unavailable")
)

// ConsumeStatus is the closed set of outcomes a consume attempt can take.
type ConsumeStatus uint8

const (
	// ConsumeOK means the code matched and the challenge was destroyed.
	ConsumeOK ConsumeStatus = iota
	// ConsumeIncorrect means the code did not match; the attempt counter
	// was incremented and the challenge remains pending.
	ConsumeIncorrect
	// ConsumeExpired means the challenge outlived its expiry and was removed.
	ConsumeExpired
	// ConsumeRestart means the challenge is gone (already consumed, attempt
	// ceiling reached, or never existed) and the flow must start over.
	ConsumeRestart
)

// ConsumeResult reports the outcome of one consume attempt together with the
// attempt counts the caller surfaces to the client.
type ConsumeResult struct {
	Status         ConsumeStatus
	Challenge      *Challenge
	FailedAttempts int
	MaxAttempts    int
}

// Challenge is one outstanding passwordless attempt, keyed by its pre-auth
// session id. Codes are stored only as SHA-256 hashes.
type Challenge struct {
	DeviceID     string
	Email        string
	CodeHash     [32]byte
	LinkCodeHash [32]byte
	CreatedAt    int64
	ExpiresAt    int64
	Attempts     uint16
}

// ChallengeStore persists code challenges in Redis. All mutations are
// single-record atomic: WATCH/MULTI with retry on contention.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "agc"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChallengeStore) key(preAuthSessionID string) string {
	return s.prefix + ":" + preAuthSessionID
}

// Save persists a fresh challenge under its pre-auth session id with a TTL
// matching its expiry.
func (s *ChallengeStore) Save(ctx context.Context, preAuthSessionID string, record *Challenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(preAuthSessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Get returns the pending challenge, removing it when expired.
func (s *ChallengeStore) Get(ctx context.Context, preAuthSessionID string) (*Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(preAuthSessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(preAuthSessionID)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Consume attempts to redeem a challenge with the hash of the submitted
// code. viaLink selects the magic-link code hash instead of the user-input
// code hash. Exactly one of two concurrent correct submissions wins; the
// loser observes ConsumeRestart.
func (s *ChallengeStore) Consume(
	ctx context.Context,
	preAuthSessionID string,
	deviceID string,
	submittedHash [32]byte,
	viaLink bool,
	maxAttempts int,
) (ConsumeResult, error) {
	const maxRetries = 4
	key := s.key(preAuthSessionID)

	restart := ConsumeResult{Status: ConsumeRestart, MaxAttempts: maxAttempts}

	for i := 0; i < maxRetries; i++ {
		var result ConsumeResult
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			if time.Now().Unix() > record.ExpiresAt {
				result = ConsumeResult{
					Status:         ConsumeExpired,
					FailedAttempts: int(record.Attempts),
					MaxAttempts:    maxAttempts,
				}
				return txDelete(ctx, tx, key)
			}

			// Device mismatch is indistinguishable from a missing challenge
			// to the caller: the correlation pair no longer scopes a live
			// attempt.
			if subtle.ConstantTimeCompare([]byte(record.DeviceID), []byte(deviceID)) != 1 {
				result = restart
				return txDelete(ctx, tx, key)
			}

			stored := record.CodeHash
			if viaLink {
				stored = record.LinkCodeHash
			}

			if subtle.ConstantTimeCompare(stored[:], submittedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					result = ConsumeResult{
						Status:         ConsumeRestart,
						FailedAttempts: int(record.Attempts),
						MaxAttempts:    maxAttempts,
					}
					return txDelete(ctx, tx, key)
				}

				result = ConsumeResult{
					Status:         ConsumeIncorrect,
					FailedAttempts: int(record.Attempts),
					MaxAttempts:    maxAttempts,
				}

				ttl := time.Until(time.Unix(record.ExpiresAt, 0))
				if ttl <= 0 {
					result = ConsumeResult{
						Status:         ConsumeExpired,
						FailedAttempts: int(record.Attempts),
						MaxAttempts:    maxAttempts,
					}
					return txDelete(ctx, tx, key)
				}

				updated, err := encodeChallenge(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				return err
			}

			result = ConsumeResult{
				Status:         ConsumeOK,
				Challenge:      record,
				FailedAttempts: int(record.Attempts),
				MaxAttempts:    maxAttempts,
			}
			return txDelete(ctx, tx, key)
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return restart, nil
			}
			return ConsumeResult{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return result, nil
	}

	// Contention exhausted the retry budget; the competing writer consumed
	// or destroyed the record.
	return restart, nil
}

// Resend replaces the code hashes of a pending challenge in place, resetting
// its expiry and attempt counter while preserving the correlation ids.
func (s *ChallengeStore) Resend(
	ctx context.Context,
	preAuthSessionID string,
	deviceID string,
	codeHash [32]byte,
	linkCodeHash [32]byte,
	ttl time.Duration,
) error {
	const maxRetries = 4
	key := s.key(preAuthSessionID)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}
			if time.Now().Unix() > record.ExpiresAt {
				if err := txDelete(ctx, tx, key); err != nil {
					return err
				}
				return ErrChallengeExpired
			}
			if subtle.ConstantTimeCompare([]byte(record.DeviceID), []byte(deviceID)) != 1 {
				return ErrChallengeNotFound
			}

			now := time.Now()
			record.CodeHash = codeHash
			record.LinkCodeHash = linkCodeHash
			record.CreatedAt = now.Unix()
			record.ExpiresAt = now.Add(ttl).Unix()
			record.Attempts = 0

			updated, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrChallengeNotFound
			}
			if errors.Is(err, ErrChallengeNotFound) || errors.Is(err, ErrChallengeExpired) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return nil
	}

	return ErrChallengeNotFound
}

// Delete removes a challenge unconditionally.
func (s *ChallengeStore) Delete(ctx context.Context, preAuthSessionID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(preAuthSessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

func txDelete(ctx context.Context, tx *redis.Tx, key string) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		return nil
	})
	return err
}

func encodeChallenge(record *Challenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	buf.Write(record.CodeHash[:])
	buf.Write(record.LinkCodeHash[:])

	if len(record.DeviceID) > 65535 || len(record.Email) > 65535 {
		return nil, errors.New("challenge field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.DeviceID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.DeviceID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid challenge record version")
	}

	record := &Challenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.LinkCodeHash[:]); err != nil {
		return nil, err
	}

	var deviceLen uint16
	if err := binary.Read(reader, binary.BigEndian, &deviceLen); err != nil {
		return nil, err
	}
	device := make([]byte, deviceLen)
	if _, err := io.ReadFull(reader, device); err != nil {
		return nil, err
	}
	record.DeviceID = string(device)

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	return record, nil
}
