package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// Handle is the stable identifier of a session record, independent of the
// rotating token values derived from it.
type Handle [16]byte

const (
	refreshTokenRawSize = 48
	refreshSecretSize   = 32
	correlationIDSize   = 16
	linkCodeSize        = 32
)

func NewHandle() (Handle, error) {
	var h Handle
	_, err := rand.Read(h[:])
	return h, err
}

func (h Handle) Bytes() []byte {
	return h[:]
}

func (h Handle) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(h[:])
}

func ParseHandle(handle string) (Handle, error) {
	var h Handle

	raw, err := base64.RawURLEncoding.DecodeString(handle)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, errors.New("invalid session handle size")
	}

	copy(h[:], raw)
	return h, nil
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken binds a refresh secret to its session handle. Only the
// hash of the secret is ever persisted; the encoded token is the single copy
// of the clear secret.
func EncodeRefreshToken(handle string, secret [refreshSecretSize]byte) (string, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:len(h)], h[:])
	copy(raw[len(h):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeRefreshToken(token string) (string, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, errors.New("invalid refresh token size")
	}

	var h Handle
	copy(h[:], raw[:len(h)])
	copy(secret[:], raw[len(h):])

	return h.String(), secret, nil
}

// NewCorrelationID produces an opaque device id or pre-auth session id used
// to scope one passwordless attempt across create/resend/consume calls.
func NewCorrelationID() (string, error) {
	var raw [correlationIDSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewLinkCode produces the secret embedded in a magic-link URL. It is
// consumed through the same challenge as the user-input code.
func NewLinkCode() (string, error) {
	var raw [linkCodeSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode hashes a one-time code or link code for storage. The clear value
// is never persisted.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}
