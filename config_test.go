package authgate

import (
	"testing"
	"time"
)

func TestDefaultConfigValidatesWithKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("secret")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with keys must validate: %v", err)
	}
}

func TestConfigValidationFailures(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		cfg.JWT.SigningMethod = "hs256"
		cfg.JWT.PrivateKey = []byte("secret")
		return cfg
	}

	cases := map[string]func(*Config){
		"zero access ttl":       func(c *Config) { c.JWT.AccessTTL = 0 },
		"unknown method":        func(c *Config) { c.JWT.SigningMethod = "none" },
		"missing hmac key":      func(c *Config) { c.JWT.PrivateKey = nil },
		"refresh under access":  func(c *Config) { c.Session.RefreshTTL = time.Minute },
		"zero code ttl":         func(c *Config) { c.Passwordless.CodeTTL = 0 },
		"zero max attempts":     func(c *Config) { c.Passwordless.MaxAttempts = 0 },
		"otp digits too small":  func(c *Config) { c.Passwordless.OTPDigits = 2 },
		"otp digits too large":  func(c *Config) { c.Passwordless.OTPDigits = 12 },
		"tiny argon memory":     func(c *Config) { c.Password.Memory = 1 },
		"zero store timeout":    func(c *Config) { c.StoreTimeout = 0 },
		"zero password minimum": func(c *Config) { c.Password.MinLength = 0 },
	}

	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	cfg := testConfig(t)

	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected error without redis")
	}

	mr, rdb := newTestRedis(t)
	t.Cleanup(func() { mr.Close() })

	if _, err := New().WithConfig(cfg).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without directory")
	}

	builder := New().WithConfig(cfg).WithRedis(rdb).WithDirectory(NewMemoryDirectory())
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := builder.Build(); err == nil {
		t.Fatal("expected error reusing a builder")
	}
}

func TestKindOf(t *testing.T) {
	cases := map[Kind][]error{
		KindValidation:     {ErrInvalidEmail, ErrWeakPassword, ErrContactRequired, ErrUnknownProvider},
		KindAuthentication: {ErrWrongCredentials, ErrIncorrectCode, ErrCodeExpired, ErrUnauthorized, ErrRefreshInvalid, ErrSessionNotFound},
		KindConflict:       {ErrEmailExists},
		KindState:          {ErrRestartFlow, ErrRefreshReuse},
		KindTransient:      {ErrStoreUnavailable, ErrCodeRateLimited},
		KindFatal:          {ErrInternal, ErrEngineNotReady},
	}

	for want, errs := range cases {
		for _, err := range errs {
			if got := KindOf(err); got != want {
				t.Errorf("KindOf(%v) = %v, want %v", err, got, want)
			}
		}
	}

	// Wrapped errors classify by their sentinel.
	wrapped := newCodeAttemptError(ErrIncorrectCode, 2, 5)
	if KindOf(wrapped) != KindAuthentication {
		t.Fatal("CodeAttemptError must classify as authentication")
	}
	if KindOf(nil) != KindUnknown {
		t.Fatal("nil classifies as unknown")
	}
}
