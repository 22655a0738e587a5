package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/vireosec/authgate/internal/observer"
)

const (
	eventSignUpSuccess      = "signup_success"
	eventSignUpDuplicate    = "signup_duplicate"
	eventSignInSuccess      = "signin_success"
	eventSignInFailure      = "signin_failure"
	eventCodeCreated        = "code_created"
	eventCodeResent         = "code_resent"
	eventCodeConsumed       = "code_consumed"
	eventCodeIncorrect      = "code_incorrect"
	eventCodeExpired        = "code_expired"
	eventCodeRestart        = "code_restart_required"
	eventCodeRateLimited    = "code_rate_limited"
	eventThirdPartySuccess  = "thirdparty_success"
	eventThirdPartyFailure  = "thirdparty_failure"
	eventSessionCreated     = "session_created"
	eventSessionRevoked     = "session_revoked"
	eventSessionRevokedAll  = "session_revoked_all"
	eventRefreshSuccess     = "refresh_success"
	eventRefreshInvalid     = "refresh_invalid"
	eventRefreshReuse       = "refresh_reuse_detected"
	eventValidateFailure    = "validate_failure"
	eventPayloadUpdated     = "payload_updated"
)

const (
	methodPassword     = "password"
	methodPasswordless = "passwordless"
	methodThirdParty   = "thirdparty"
)

// observerErrorCode maps engine errors to the stable codes carried on
// events. Never the raw message; messages may change, codes may not.
func observerErrorCode(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrWrongCredentials):
		return "wrong_credentials"
	case errors.Is(err, ErrEmailExists):
		return "email_exists"
	case errors.Is(err, ErrIncorrectCode):
		return "incorrect_code"
	case errors.Is(err, ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, ErrRestartFlow):
		return "restart_flow"
	case errors.Is(err, ErrCodeRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrRefreshInvalid):
		return "refresh_invalid"
	case errors.Is(err, ErrRefreshReuse):
		return "refresh_reuse"
	case errors.Is(err, ErrIdentityNotFound):
		return "identity_not_found"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrContactRequired):
		return "invalid_input"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitEvent(
	ctx context.Context,
	eventType string,
	method string,
	success bool,
	identityID string,
	handle string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.observer == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := observer.Event{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		AuthMethod: method,
		IdentityID: identityID,
		Handle:     handle,
		Success:    success,
		Metadata:   metadata,
	}
	if code := observerErrorCode(err); code != "" {
		event.Error = code
	}

	e.observer.Emit(ctx, event)
}

// ObserverDropped reports how many events the dispatcher shed under
// backpressure.
func (e *Engine) ObserverDropped() uint64 {
	if e == nil || e.observer == nil {
		return 0
	}
	return e.observer.Dropped()
}
