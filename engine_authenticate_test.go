package authgate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vireosec/authgate/oauth"
)

type stubExchanger struct {
	identity oauth.ExternalIdentity
	err      error
}

func (s stubExchanger) ExchangeCode(context.Context, string) (oauth.ExternalIdentity, error) {
	return s.identity, s.err
}

func TestAuthenticateEmptyRequest(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)

	_, err := engine.Authenticate(context.Background(), AuthRequest{})
	if !errors.Is(err, ErrContactRequired) {
		t.Fatalf("expected ErrContactRequired, got %v", err)
	}
}

func TestAuthenticatePasswordFlow(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)
	ctx := context.Background()

	signup, err := engine.Authenticate(ctx, AuthRequest{
		Email:    "alice@example.com",
		Password: "correct-horse",
		SignUp:   true,
	})
	if err != nil {
		t.Fatalf("signup dispatch failed: %v", err)
	}
	if signup.Step != StepSession || !signup.Session.CreatedNewUser {
		t.Fatal("expected session outcome with new user")
	}

	signin, err := engine.Authenticate(ctx, AuthRequest{
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("signin dispatch failed: %v", err)
	}
	if signin.Step != StepSession || signin.Session.CreatedNewUser {
		t.Fatal("expected session outcome for existing user")
	}
}

func TestAuthenticateEmailAloneCreatesCode(t *testing.T) {
	sender := &captureSender{}
	engine, _ := newTestEngine(t, testConfig(t), sender)

	outcome, err := engine.Authenticate(context.Background(), AuthRequest{Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.Step != StepCodeSent || outcome.Challenge == nil {
		t.Fatal("expected code-sent outcome")
	}
}

func TestAuthenticateCodeWinsOverPassword(t *testing.T) {
	sender := &captureSender{}
	engine, _ := newTestEngine(t, testConfig(t), sender)
	ctx := context.Background()

	challenge, err := engine.CreateCode(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("CreateCode failed: %v", err)
	}
	code := sender.wait(t, 1)[0].UserInputCode

	// Both a code triple and a password present: the code is consumed, the
	// password ignored.
	outcome, err := engine.Authenticate(ctx, AuthRequest{
		Email:            "bob@example.com",
		Password:         "ignored-password",
		Code:             code,
		DeviceID:         challenge.DeviceID,
		PreAuthSessionID: challenge.PreAuthSessionID,
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.Step != StepSession {
		t.Fatal("expected session outcome")
	}
	if outcome.Session.Identity.Email != "bob@example.com" {
		t.Fatalf("unexpected identity %q", outcome.Session.Identity.Email)
	}
}

func TestAuthenticateInvalidEmailRejectedEarly(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)

	_, err := engine.Authenticate(context.Background(), AuthRequest{Email: "junk"})
	if !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestAuthenticateProviderRedirect(t *testing.T) {
	registry := oauth.NewRegistry()
	registry.Register(oauth.Google("client-id", "https://app.example.com/callback"), stubExchanger{})

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	engine, err := New().
		WithConfig(testConfig(t)).
		WithRedis(rdb).
		WithDirectory(NewMemoryDirectory()).
		WithProviders(registry).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	outcome, err := engine.Authenticate(context.Background(), AuthRequest{Provider: "google"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if outcome.Step != StepRedirect {
		t.Fatal("expected redirect outcome")
	}
	if !strings.Contains(outcome.RedirectURL, "accounts.google.com") {
		t.Fatalf("unexpected redirect %q", outcome.RedirectURL)
	}
	if !strings.Contains(outcome.RedirectURL, "state=") {
		t.Fatal("redirect must carry a state value")
	}
}

func TestAuthenticateUnknownProvider(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)

	_, err := engine.Authenticate(context.Background(), AuthRequest{Provider: "nope"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestCompleteThirdParty(t *testing.T) {
	registry := oauth.NewRegistry()
	registry.Register(
		oauth.GitHub("client-id", "https://app.example.com/callback"),
		stubExchanger{identity: oauth.ExternalIdentity{ProviderUserID: "gh-1", Email: "carol@example.com"}},
	)

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	engine, err := New().
		WithConfig(testConfig(t)).
		WithRedis(rdb).
		WithDirectory(NewMemoryDirectory()).
		WithProviders(registry).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	res, err := engine.CompleteThirdParty(ctx, "github", "auth-code", nil)
	if err != nil {
		t.Fatalf("CompleteThirdParty failed: %v", err)
	}
	if !res.CreatedNewUser {
		t.Fatal("first federated signin must create the identity")
	}
	if res.Identity.Email != "carol@example.com" {
		t.Fatalf("unexpected identity %q", res.Identity.Email)
	}

	// Second round resolves the same identity.
	again, err := engine.CompleteThirdParty(ctx, "github", "auth-code", nil)
	if err != nil {
		t.Fatalf("second CompleteThirdParty failed: %v", err)
	}
	if again.CreatedNewUser || again.Identity.ID != res.Identity.ID {
		t.Fatal("expected the existing identity")
	}
}

func TestCompleteThirdPartyExchangeFailure(t *testing.T) {
	registry := oauth.NewRegistry()
	registry.Register(
		oauth.GitHub("client-id", "https://app.example.com/callback"),
		stubExchanger{err: errors.New("provider said no")},
	)

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	engine, err := New().
		WithConfig(testConfig(t)).
		WithRedis(rdb).
		WithDirectory(NewMemoryDirectory()).
		WithProviders(registry).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	_, err = engine.CompleteThirdParty(context.Background(), "github", "bad-code", nil)
	if !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("expected ErrWrongCredentials, got %v", err)
	}
}
