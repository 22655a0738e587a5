package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vireosec/authgate/internal"
)

// BeginThirdParty returns the authorization redirect for a registered
// provider, with a fresh random state value baked into the URL.
func (e *Engine) BeginThirdParty(ctx context.Context, providerID string) (string, error) {
	if e == nil || e.providers == nil {
		return "", ErrEngineNotReady
	}

	provider, ok := e.providers.Provider(providerID)
	if !ok {
		return "", ErrUnknownProvider
	}

	state, err := internal.NewCorrelationID()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return provider.AuthorizationURL(state), nil
}

// CompleteThirdParty exchanges a provider authorization code for an
// external identity, resolves or creates the local identity, and mints a
// session.
func (e *Engine) CompleteThirdParty(ctx context.Context, providerID, authorizationCode string, payload map[string]string) (*AuthResult, error) {
	if e == nil || e.providers == nil {
		return nil, ErrEngineNotReady
	}

	exchanger, ok := e.providers.Exchanger(providerID)
	if !ok {
		return nil, ErrUnknownProvider
	}

	external, err := exchanger.ExchangeCode(ctx, authorizationCode)
	if err != nil {
		e.metricInc(MetricThirdPartyFailure)
		e.emitEvent(ctx, eventThirdPartyFailure, methodThirdParty, false, "", "", ErrWrongCredentials, func() map[string]string {
			return map[string]string{"provider": providerID}
		})
		return nil, fmt.Errorf("%w: provider exchange failed", ErrWrongCredentials)
	}
	if !validEmail(external.Email) {
		return nil, ErrInvalidEmail
	}

	method := LoginMethod{
		Method:   providerID,
		Email:    normalizeEmail(external.Email),
		AddedAt:  time.Now().UTC(),
		Provider: providerID,
	}

	identity, createdNew, err := e.resolveExternalIdentity(ctx, external.Email, method)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricThirdPartySuccess)
	e.emitEvent(ctx, eventThirdPartySuccess, methodThirdParty, true, identity.ID, "", nil, func() map[string]string {
		return map[string]string{"provider": providerID}
	})

	return e.authResult(ctx, identity, createdNew, payload)
}

func (e *Engine) resolveExternalIdentity(ctx context.Context, email string, method LoginMethod) (*Identity, bool, error) {
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
