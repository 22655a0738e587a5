package authgate

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned when an Engine method runs before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidEmail is returned for a contact that does not match the
	// local@domain.tld shape.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrWeakPassword is returned when a signup password is shorter than the
	// configured minimum.
	ErrWeakPassword = errors.New("password below minimum length")
	// ErrContactRequired is returned when a payload carries neither a
	// provider nor a contact address.
	ErrContactRequired = errors.New("contact address required")
	// ErrUnknownProvider is returned for a federated payload naming an
	// unregistered provider.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrEmailExists is returned when a password signup targets an email
	// that already has a password credential.
	ErrEmailExists = errors.New("email already exists")
	// ErrWrongCredentials is returned for any password signin failure.
	// Unknown email and wrong password are deliberately indistinguishable.
	ErrWrongCredentials = errors.New("wrong credentials")
	// ErrIncorrectCode is returned when a submitted one-time code does not
	// match. Wrapped by [CodeAttemptError] carrying the attempt counts.
	ErrIncorrectCode = errors.New("incorrect code")
	// ErrCodeExpired is returned when the challenge outlived its expiry.
	ErrCodeExpired = errors.New("code expired")
	// ErrRestartFlow is returned when no live challenge backs the submitted
	// correlation pair: already consumed, attempt ceiling reached, or never
	// created. The client must request a fresh code.
	ErrRestartFlow = errors.New("restart flow required")
	// ErrCodeRateLimited is returned when code creation or resend exceeds
	// its throttle budget.
	ErrCodeRateLimited = errors.New("code requests rate limited")
	// ErrUnauthorized is returned for any access-token validation failure.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionNotFound is returned when a session handle maps to no live
	// record.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshInvalid is returned for a refresh token that cannot be
	// decoded or maps to no live session.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is returned when a rotated refresh token is presented
	// again. The session family is already destroyed when this surfaces.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrIdentityNotFound is returned when a referenced identity does not
	// exist in the directory.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrStoreUnavailable wraps store timeouts and connectivity failures.
	// Safe to retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInternal is the opaque fault surfaced when an unexpected internal
	// error occurs. Details never leak to the caller.
	ErrInternal = errors.New("internal error")
)

// CodeAttemptError wraps an incorrect or expired code failure with the
// attempt counts the client surfaces to the user.
type CodeAttemptError struct {
	FailedAttempts int
	MaxAttempts    int
	err            error
}

func newCodeAttemptError(sentinel error, failed, max int) *CodeAttemptError {
	return &CodeAttemptError{
		FailedAttempts: failed,
		MaxAttempts:    max,
		err:            sentinel,
	}
}

func (e *CodeAttemptError) Error() string {
	return fmt.Sprintf("%v (attempt %d of %d)", e.err, e.FailedAttempts, e.MaxAttempts)
}

func (e *CodeAttemptError) Unwrap() error {
	return e.err
}

// Kind is the closed classification every engine failure maps onto. Callers
// branch on Kind for transport status mapping instead of matching message
// strings.
type Kind uint8

const (
	// KindUnknown covers errors that did not originate in the engine.
	KindUnknown Kind = iota
	// KindValidation — malformed input; always caller-fixable.
	KindValidation
	// KindAuthentication — wrong credentials, code, or token; re-attempt
	// with new input.
	KindAuthentication
	// KindConflict — duplicate signup.
	KindConflict
	// KindState — the flow must restart; retrying the same call cannot
	// succeed.
	KindState
	// KindTransient — store timeout or throttle; safe to retry with backoff.
	KindTransient
	// KindFatal — unexpected internal fault.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// KindOf classifies an engine error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrContactRequired),
		errors.Is(err, ErrUnknownProvider):
		return KindValidation
	case errors.Is(err, ErrWrongCredentials),
		errors.Is(err, ErrIncorrectCode),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrIdentityNotFound):
		return KindAuthentication
	case errors.Is(err, ErrEmailExists):
		return KindConflict
	case errors.Is(err, ErrRestartFlow),
		errors.Is(err, ErrRefreshReuse):
		return KindState
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrCodeRateLimited):
		return KindTransient
	case errors.Is(err, ErrInternal),
		errors.Is(err, ErrEngineNotReady):
		return KindFatal
	default:
		return KindUnknown
	}
}
