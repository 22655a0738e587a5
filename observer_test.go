package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/vireosec/authgate/internal/observer"
)

func TestObserverReceivesLifecycleEvents(t *testing.T) {
	sink := observer.NewChannelSink(32)

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	engine, err := New().
		WithConfig(testConfig(t)).
		WithRedis(rdb).
		WithDirectory(NewMemoryDirectory()).
		WithObserverSinks(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := context.Background()
	res, err := engine.SignUp(ctx, "alice@example.com", "correct-horse", nil)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := engine.SignIn(ctx, "alice@example.com", "wrong-password", nil); err == nil {
		t.Fatal("expected signin failure")
	}
	engine.Close()

	types := map[string]int{}
	var events []ObserverEvent
	for {
		select {
		case ev := <-sink.Events():
			types[ev.EventType]++
			events = append(events, ev)
			continue
		default:
		}
		break
	}

	if types[eventSignUpSuccess] != 1 {
		t.Fatalf("expected a signup event, got %v", types)
	}
	if types[eventSessionCreated] != 1 {
		t.Fatalf("expected a session event, got %v", types)
	}
	if types[eventSignInFailure] != 1 {
		t.Fatalf("expected a signin failure event, got %v", types)
	}

	for _, ev := range events {
		if ev.Timestamp.IsZero() || time.Since(ev.Timestamp) > time.Minute {
			t.Fatalf("suspicious timestamp on %v", ev)
		}
		// Secrets never ride events.
		for _, v := range ev.Metadata {
			if v == "correct-horse" || v == res.Tokens.RefreshToken || v == res.Tokens.AccessToken {
				t.Fatalf("secret leaked into event metadata: %v", ev)
			}
		}
	}

	failure := events[len(events)-1]
	for _, ev := range events {
		if ev.EventType == eventSignInFailure {
			failure = ev
		}
	}
	if failure.Error != "wrong_credentials" {
		t.Fatalf("expected stable error code, got %q", failure.Error)
	}
}
