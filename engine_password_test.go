package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestSignUpCreatesIdentityAndSession(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)

	res, err := engine.SignUp(context.Background(), "alice@example.com", "correct-horse", nil)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if !res.CreatedNewUser {
		t.Fatal("expected CreatedNewUser")
	}
	if res.Identity.ID == "" {
		t.Fatal("expected identity id")
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected full token bundle")
	}

	cred, err := engine.directory.Credential(context.Background(), res.Identity.ID)
	if err != nil {
		t.Fatalf("Credential failed: %v", err)
	}
	if cred.PasswordHash == "" || cred.PasswordHash == "correct-horse" {
		t.Fatal("expected stored password to be hashed")
	}
}

func TestSignUpRejectsInvalidInput(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)
	ctx := context.Background()

	if _, err := engine.SignUp(ctx, "not-an-email", "correct-horse", nil); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := engine.SignUp(ctx, "alice@nodot", "correct-horse", nil); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail for dotless domain, got %v", err)
	}
	if _, err := engine.SignUp(ctx, "alice@example.com", "short", nil); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if KindOf(ErrWeakPassword) != KindValidation {
		t.Fatal("expected validation kind for weak password")
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)
	ctx := context.Background()

	if _, err := engine.SignUp(ctx, "alice@example.com", "correct-horse", nil); err != nil {
		t.Fatalf("first SignUp failed: %v", err)
	}
	_, err := engine.SignUp(ctx, "alice@example.com", "other-password", nil)
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %v", KindOf(err))
	}
}

func TestSignInSuccess(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)
	ctx := context.Background()

	if _, err := engine.SignUp(ctx, "alice@example.com", "correct-horse", nil); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	res, err := engine.SignIn(ctx, "alice@example.com", "correct-horse", map[string]string{"role": "admin"})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if res.CreatedNewUser {
		t.Fatal("signin must not report a new user")
	}

	info, err := engine.Validate(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if info.Payload["role"] != "admin" {
		t.Fatalf("expected payload to survive, got %v", info.Payload)
	}
}

func TestSignInFailuresAreIndistinguishable(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)
	ctx := context.Background()

	if _, err := engine.SignUp(ctx, "alice@example.com", "correct-horse", nil); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	_, wrongPass := engine.SignIn(ctx, "alice@example.com", "wrong-password", nil)
	_, unknownUser := engine.SignIn(ctx, "nobody@example.com", "correct-horse", nil)

	if !errors.Is(wrongPass, ErrWrongCredentials) {
		t.Fatalf("expected ErrWrongCredentials for wrong password, got %v", wrongPass)
	}
	if !errors.Is(unknownUser, ErrWrongCredentials) {
		t.Fatalf("expected ErrWrongCredentials for unknown email, got %v", unknownUser)
	}
	if wrongPass.Error() != unknownUser.Error() {
		t.Fatal("failure messages must not reveal which part was wrong")
	}
}

func TestHasIdentity(t *testing.T) {
	engine, _ := newTestEngine(t, testConfig(t), nil)
	ctx := context.Background()

	ok, err := engine.HasIdentity(ctx, "alice@example.com")
	if err != nil || ok {
		t.Fatalf("expected no identity, ok=%v err=%v", ok, err)
	}

	if _, err := engine.SignUp(ctx, "alice@example.com", "correct-horse", nil); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	ok, err = engine.HasIdentity(ctx, "alice@example.com")
	if err != nil || !ok {
		t.Fatalf("expected identity, ok=%v err=%v", ok, err)
	}
}
