package authgate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vireosec/authgate/internal"
	"github.com/vireosec/authgate/internal/delivery"
	"github.com/vireosec/authgate/internal/rate"
	"github.com/vireosec/authgate/internal/stores"
)

// CreateCode starts a passwordless flow for the contact: a fresh challenge
// keyed by a new device id and pre-auth session id, with a short numeric
// code and a magic-link code. The clear codes travel only through the
// delivery transport; the engine stores hashes.
func (e *Engine) CreateCode(ctx context.Context, email string) (*CodeChallengeInfo, error) {
	if e == nil || e.challengeStore == nil {
		return nil, ErrEngineNotReady
	}
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}

	email = normalizeEmail(email)

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.rateLimiter.CheckCreate(sctx, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricCodeRateLimited)
			e.emitEvent(ctx, eventCodeRateLimited, methodPasswordless, false, "", "", ErrCodeRateLimited, nil)
			return nil, ErrCodeRateLimited
		}
		return nil, mapStoreErr(err)
	}

	deviceID, err := internal.NewCorrelationID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	preAuthSessionID, err := internal.NewCorrelationID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	code, linkCode, err := e.newCodePair()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(e.config.Passwordless.CodeTTL)

	record := &stores.Challenge{
		DeviceID:     deviceID,
		Email:        email,
		CodeHash:     internal.HashCode(code),
		LinkCodeHash: internal.HashCode(linkCode),
		CreatedAt:    now.Unix(),
		ExpiresAt:    expiresAt.Unix(),
	}

	if err := e.challengeStore.Save(sctx, preAuthSessionID, record, e.config.Passwordless.CodeTTL); err != nil {
		return nil, mapStoreErr(err)
	}

	e.dispatchCode(email, code, linkCode, preAuthSessionID, expiresAt)

	e.metricInc(MetricCodeCreated)
	e.emitEvent(ctx, eventCodeCreated, methodPasswordless, true, "", "", nil, func() map[string]string {
		return map[string]string{"pre_auth_session_id": preAuthSessionID}
	})

	return &CodeChallengeInfo{
		DeviceID:         deviceID,
		PreAuthSessionID: preAuthSessionID,
		FlowType:         FlowTypeCodeAndLink,
		ExpiresAt:        expiresAt,
	}, nil
}

// ResendCode replaces the codes of an existing challenge in place: new code
// values, fresh expiry, attempt counter back to zero. The device id and
// pre-auth session id stay stable so the client keeps its correlation
// state.
func (e *Engine) ResendCode(ctx context.Context, deviceID, preAuthSessionID string) (*CodeChallengeInfo, error) {
	if e == nil || e.challengeStore == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.rateLimiter.CheckResend(sctx, deviceID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricCodeRateLimited)
			e.emitEvent(ctx, eventCodeRateLimited, methodPasswordless, false, "", "", ErrCodeRateLimited, nil)
			return nil, ErrCodeRateLimited
		}
		return nil, mapStoreErr(err)
	}

	record, err := e.challengeStore.Get(sctx, preAuthSessionID)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrChallengeExpired):
			return nil, ErrRestartFlow
		default:
			return nil, mapStoreErr(err)
		}
	}
	if record.DeviceID != deviceID {
		return nil, ErrRestartFlow
	}

	code, linkCode, err := e.newCodePair()
	if err != nil {
		return nil, err
	}

	err = e.challengeStore.Resend(
		sctx,
		preAuthSessionID,
		deviceID,
		internal.HashCode(code),
		internal.HashCode(linkCode),
		e.config.Passwordless.CodeTTL,
	)
	if err != nil {
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound), errors.Is(err, stores.ErrChallengeExpired):
			return nil, ErrRestartFlow
		default:
			return nil, mapStoreErr(err)
		}
	}

	expiresAt := time.Now().Add(e.config.Passwordless.CodeTTL)
	e.dispatchCode(record.Email, code, linkCode, preAuthSessionID, expiresAt)

	e.metricInc(MetricCodeResent)
	e.emitEvent(ctx, eventCodeResent, methodPasswordless, true, "", "", nil, func() map[string]string {
		return map[string]string{"pre_auth_session_id": preAuthSessionID}
	})

	return &CodeChallengeInfo{
		DeviceID:         deviceID,
		PreAuthSessionID: preAuthSessionID,
		FlowType:         FlowTypeCodeAndLink,
		ExpiresAt:        expiresAt,
	}, nil
}

// ConsumeCode redeems a user-input code. A correct code destroys the
// challenge and signs the contact in, creating the identity on first use.
// A wrong code burns one attempt; reaching the attempt ceiling or
// resubmitting a consumed code requires a restart.
func (e *Engine) ConsumeCode(ctx context.Context, deviceID, preAuthSessionID, code string, payload map[string]string) (*AuthResult, error) {
	return e.consume(ctx, deviceID, preAuthSessionID, code, false, payload)
}

// ConsumeLinkCode redeems a magic-link code. It shares the challenge's
// attempt budget: an incorrect link code burns an attempt like a wrong
// user-input code.
func (e *Engine) ConsumeLinkCode(ctx context.Context, deviceID, preAuthSessionID, linkCode string, payload map[string]string) (*AuthResult, error) {
	return e.consume(ctx, deviceID, preAuthSessionID, linkCode, true, payload)
}

func (e *Engine) consume(ctx context.Context, deviceID, preAuthSessionID, submitted string, viaLink bool, payload map[string]string) (*AuthResult, error) {
	if e == nil || e.challengeStore == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	result, err := e.challengeStore.Consume(
		sctx,
		preAuthSessionID,
		deviceID,
		internal.HashCode(submitted),
		viaLink,
		e.config.Passwordless.MaxAttempts,
	)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	switch result.Status {
	case stores.ConsumeIncorrect:
		e.metricInc(MetricCodeIncorrect)
		attemptErr := newCodeAttemptError(ErrIncorrectCode, result.FailedAttempts, result.MaxAttempts)
		e.emitEvent(ctx, eventCodeIncorrect, methodPasswordless, false, "", "", ErrIncorrectCode, nil)
		return nil, attemptErr
	case stores.ConsumeExpired:
		e.metricInc(MetricCodeExpired)
		attemptErr := newCodeAttemptError(ErrCodeExpired, result.FailedAttempts, result.MaxAttempts)
		e.emitEvent(ctx, eventCodeExpired, methodPasswordless, false, "", "", ErrCodeExpired, nil)
		return nil, attemptErr
	case stores.ConsumeRestart:
		e.metricInc(MetricCodeRestart)
		e.emitEvent(ctx, eventCodeRestart, methodPasswordless, false, "", "", ErrRestartFlow, nil)
		return nil, ErrRestartFlow
	}

	identity, createdNew, err := e.resolvePasswordlessIdentity(ctx, result.Challenge.Email)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricCodeConsumed)
	e.emitEvent(ctx, eventCodeConsumed, methodPasswordless, true, identity.ID, "", nil, nil)

	return e.authResult(ctx, identity, createdNew, payload)
}

// resolvePasswordlessIdentity attaches the passwordless method to the
// identity owning the email, creating the identity on first signin.
func (e *Engine) resolvePasswordlessIdentity(ctx context.Context, email string) (*Identity, bool, error) {
	method := LoginMethod{Method: methodPasswordless, Email: email, AddedAt: time.Now().UTC()}

	identity, err := e.directory.ByEmail(ctx, email)
	if err == nil {
		if err := e.directory.AddLoginMethod(ctx, identity.ID, method); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		return identity, false, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, false, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	identity, err = e.directory.Create(ctx, email, method)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			// Lost a concurrent first-signin race; the other creator won.
			identity, err = e.directory.ByEmail(ctx, email)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %v", ErrInternal, err)
			}
			return identity, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return identity, true, nil
}

func (e *Engine) newCodePair() (code, linkCode string, err error) {
	code, err = internal.NewOTP(e.config.Passwordless.OTPDigits)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	linkCode, err = internal.NewLinkCode()
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return code, linkCode, nil
}

func (e *Engine) dispatchCode(email, code, linkCode, preAuthSessionID string, expiresAt time.Time) {
	if e.delivery == nil {
		return
	}
	e.delivery.Dispatch(delivery.Message{
		Email:         email,
		UserInputCode: code,
		MagicLink:     e.magicLink(preAuthSessionID, linkCode),
		ExpiresAt:     expiresAt,
	})
}

// magicLink assembles base?preAuthSessionID=...#linkCode. The link code
// rides the fragment so it never reaches server logs on click.
func (e *Engine) magicLink(preAuthSessionID, linkCode string) string {
	base := e.config.Passwordless.MagicLinkBase
	if base == "" {
		return ""
	}
	return base + "?preAuthSessionId=" + url.QueryEscape(preAuthSessionID) + "#" + linkCode
}
