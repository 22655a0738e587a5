package authgate

import (
	"errors"
	"time"
)

// Config defines every tunable the engine reads. All settings live here;
// the engine never consults environment variables or other ambient state.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	JWT          JWTConfig
	Session      SessionConfig
	Passwordless PasswordlessConfig
	Password     PasswordConfig
	Delivery     DeliveryConfig
	Observer     ObserverConfig
	Metrics      MetricsConfig
	// StoreTimeout bounds every individual store round trip. Operations
	// exceeding it surface ErrStoreUnavailable.
	StoreTimeout time.Duration
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds access-token issuance and verification parameters.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig holds session persistence parameters.
type SessionConfig struct {
	RedisPrefix string
	RefreshTTL  time.Duration
}

/*
====================================
PASSWORDLESS CONFIG
====================================
*/

// PasswordlessConfig holds one-time-code challenge parameters.
type PasswordlessConfig struct {
	CodeTTL     time.Duration
	MaxAttempts int
	OTPDigits   int
	// MagicLinkBase is prepended to generated link codes. Empty disables
	// magic links; challenges then carry only the user-input code.
	MagicLinkBase string
	// MaxCodesPerContact bounds challenge creation per contact inside
	// ContactWindow. Zero disables the check.
	MaxCodesPerContact int
	ContactWindow      time.Duration
	// ResendCooldown is the minimum gap between resends for one device.
	// Zero disables the check.
	ResendCooldown time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id hashing parameters and the signup policy.
type PasswordConfig struct {
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	UpgradeOnLogin bool
}

/*
====================================
DELIVERY CONFIG
====================================
*/

// DeliveryConfig bounds the retry budget for out-of-band code delivery.
type DeliveryConfig struct {
	BaseBackoff time.Duration
	MaxRetries  uint64
	MaxElapsed  time.Duration
}

/*
====================================
OBSERVER CONFIG
====================================
*/

// ObserverConfig controls the async event dispatcher.
type ObserverConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration. Key material must still
// be supplied before Build.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     1 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        5 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "ags",
			RefreshTTL:  100 * 24 * time.Hour,
		},
		Passwordless: PasswordlessConfig{
			CodeTTL:            15 * time.Minute,
			MaxAttempts:        5,
			OTPDigits:          6,
			MaxCodesPerContact: 5,
			ContactWindow:      15 * time.Minute,
			ResendCooldown:     15 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Delivery: DeliveryConfig{
			BaseBackoff: 500 * time.Millisecond,
			MaxRetries:  4,
			MaxElapsed:  30 * time.Second,
		},
		Observer: ObserverConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		StoreTimeout: 3 * time.Second,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Session
	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("Session RefreshTTL must exceed JWT AccessTTL")
	}

	// Passwordless
	if c.Passwordless.CodeTTL <= 0 {
		return errors.New("Passwordless CodeTTL must be > 0")
	}
	if c.Passwordless.MaxAttempts <= 0 {
		return errors.New("Passwordless MaxAttempts must be > 0")
	}
	if c.Passwordless.OTPDigits < 4 || c.Passwordless.OTPDigits > 10 {
		return errors.New("Passwordless OTPDigits must be between 4 and 10")
	}
	if c.Passwordless.MaxCodesPerContact > 0 && c.Passwordless.ContactWindow <= 0 {
		return errors.New("Passwordless ContactWindow must be > 0 when MaxCodesPerContact is set")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	// Observer
	if c.Observer.Enabled && c.Observer.BufferSize <= 0 {
		return errors.New("Observer BufferSize must be > 0 when enabled")
	}

	// Store timeout
	if c.StoreTimeout <= 0 {
		return errors.New("StoreTimeout must be > 0")
	}

	return nil
}
