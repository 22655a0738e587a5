package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *ChallengeStore {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewChallengeStore(client, "")
}

func testChallenge(codeHash, linkHash [32]byte, ttl time.Duration) *Challenge {
	now := time.Now()
	return &Challenge{
		DeviceID:     "device-1",
		Email:        "bob@example.com",
		CodeHash:     codeHash,
		LinkCodeHash: linkHash,
		CreatedAt:    now.Unix(),
		ExpiresAt:    now.Add(ttl).Unix(),
	}
}

func TestConsumeCorrectCode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codeHash := sha256.Sum256([]byte("123456"))
	if err := store.Save(ctx, "pas-1", testChallenge(codeHash, [32]byte{}, time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := store.Consume(ctx, "pas-1", "device-1", codeHash, false, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if result.Status != ConsumeOK {
		t.Fatalf("expected ConsumeOK, got %v", result.Status)
	}
	if result.Challenge == nil || result.Challenge.Email != "bob@example.com" {
		t.Fatal("expected the consumed challenge")
	}

	// Single use: the record is gone.
	if _, err := store.Get(ctx, "pas-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected record destroyed, got %v", err)
	}
}

func TestConsumeWrongCodeIncrementsAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codeHash := sha256.Sum256([]byte("123456"))
	wrongHash := sha256.Sum256([]byte("000000"))
	if err := store.Save(ctx, "pas-1", testChallenge(codeHash, [32]byte{}, time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i := 1; i <= 2; i++ {
		result, err := store.Consume(ctx, "pas-1", "device-1", wrongHash, false, 5)
		if err != nil {
			t.Fatalf("Consume failed: %v", err)
		}
		if result.Status != ConsumeIncorrect {
			t.Fatalf("expected ConsumeIncorrect, got %v", result.Status)
		}
		if result.FailedAttempts != i {
			t.Fatalf("expected %d failed attempts, got %d", i, result.FailedAttempts)
		}
	}

	// The correct code still wins while under the ceiling.
	result, err := store.Consume(ctx, "pas-1", "device-1", codeHash, false, 5)
	if err != nil || result.Status != ConsumeOK {
		t.Fatalf("expected ConsumeOK, got %v err=%v", result.Status, err)
	}
}

func TestConsumeAttemptCeilingDestroys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codeHash := sha256.Sum256([]byte("123456"))
	wrongHash := sha256.Sum256([]byte("000000"))
	if err := store.Save(ctx, "pas-1", testChallenge(codeHash, [32]byte{}, time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var last ConsumeResult
	for i := 0; i < 3; i++ {
		var err error
		last, err = store.Consume(ctx, "pas-1", "device-1", wrongHash, false, 3)
		if err != nil {
			t.Fatalf("Consume failed: %v", err)
		}
	}
	if last.Status != ConsumeRestart {
		t.Fatalf("expected ConsumeRestart at ceiling, got %v", last.Status)
	}
	if last.FailedAttempts != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", last.FailedAttempts)
	}

	result, err := store.Consume(ctx, "pas-1", "device-1", codeHash, false, 3)
	if err != nil || result.Status != ConsumeRestart {
		t.Fatalf("destroyed challenge must restart, got %v err=%v", result.Status, err)
	}
}

func TestConsumeExpiredChallenge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codeHash := sha256.Sum256([]byte("123456"))
	record := testChallenge(codeHash, [32]byte{}, time.Minute)
	record.ExpiresAt = time.Now().Add(-time.Second).Unix()
	// Give redis a positive TTL so the expired record is still readable.
	if err := store.Save(ctx, "pas-1", record, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := store.Consume(ctx, "pas-1", "device-1", codeHash, false, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if result.Status != ConsumeExpired {
		t.Fatalf("expected ConsumeExpired, got %v", result.Status)
	}
}

func TestConsumeDeviceMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codeHash := sha256.Sum256([]byte("123456"))
	if err := store.Save(ctx, "pas-1", testChallenge(codeHash, [32]byte{}, time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	result, err := store.Consume(ctx, "pas-1", "evil-device", codeHash, false, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if result.Status != ConsumeRestart {
		t.Fatalf("expected ConsumeRestart, got %v", result.Status)
	}
	if _, err := store.Get(ctx, "pas-1"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("mismatch must destroy the challenge, got %v", err)
	}
}

func TestConsumeViaLink(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codeHash := sha256.Sum256([]byte("123456"))
	linkHash := sha256.Sum256([]byte("link-code"))
	if err := store.Save(ctx, "pas-1", testChallenge(codeHash, linkHash, time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The user-input hash does not redeem the link path.
	result, err := store.Consume(ctx, "pas-1", "device-1", codeHash, true, 5)
	if err != nil || result.Status != ConsumeIncorrect {
		t.Fatalf("expected ConsumeIncorrect, got %v err=%v", result.Status, err)
	}

	result, err = store.Consume(ctx, "pas-1", "device-1", linkHash, true, 5)
	if err != nil || result.Status != ConsumeOK {
		t.Fatalf("expected ConsumeOK, got %v err=%v", result.Status, err)
	}
}

func TestConsumeUnknownChallenge(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Consume(context.Background(), "missing", "device-1", [32]byte{}, false, 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if result.Status != ConsumeRestart {
		t.Fatalf("expected ConsumeRestart, got %v", result.Status)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codeHash := sha256.Sum256([]byte("123456"))
	if err := store.Save(ctx, "pas-1", testChallenge(codeHash, [32]byte{}, time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	statuses := make([]ConsumeStatus, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			result, err := store.Consume(ctx, "pas-1", "device-1", codeHash, false, 5)
			if err != nil {
				t.Errorf("racer %d: %v", slot, err)
				return
			}
			statuses[slot] = result.Status
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, status := range statuses {
		if status == ConsumeOK {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestResendResetsRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	oldHash := sha256.Sum256([]byte("111111"))
	wrongHash := sha256.Sum256([]byte("000000"))
	if err := store.Save(ctx, "pas-1", testChallenge(oldHash, [32]byte{}, time.Minute), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Burn an attempt first.
	if _, err := store.Consume(ctx, "pas-1", "device-1", wrongHash, false, 5); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	newHash := sha256.Sum256([]byte("222222"))
	newLink := sha256.Sum256([]byte("new-link"))
	if err := store.Resend(ctx, "pas-1", "device-1", newHash, newLink, time.Minute); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}

	record, err := store.Get(ctx, "pas-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record.Attempts != 0 {
		t.Fatalf("resend must reset attempts, got %d", record.Attempts)
	}
	if record.CodeHash != newHash || record.LinkCodeHash != newLink {
		t.Fatal("resend must replace both hashes")
	}
	if record.DeviceID != "device-1" {
		t.Fatal("resend must preserve the device id")
	}

	// Old code is dead, new code wins.
	result, err := store.Consume(ctx, "pas-1", "device-1", oldHash, false, 5)
	if err != nil || result.Status != ConsumeIncorrect {
		t.Fatalf("expected old code rejected, got %v err=%v", result.Status, err)
	}
	result, err = store.Consume(ctx, "pas-1", "device-1", newHash, false, 5)
	if err != nil || result.Status != ConsumeOK {
		t.Fatalf("expected new code accepted, got %v err=%v", result.Status, err)
	}
}

func TestResendMissingChallenge(t *testing.T) {
	store := newTestStore(t)

	err := store.Resend(context.Background(), "missing", "device-1", [32]byte{}, [32]byte{}, time.Minute)
	if !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}
