package authgate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Matches local@domain.tld with a non-empty local part and a dotted domain.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SignUp creates a password identity. The email must be well formed and the
// password at least the configured minimum length. A signup against an
// email that already holds a password credential fails with
// [ErrEmailExists].
func (e *Engine) SignUp(ctx context.Context, email, plainPassword string, payload map[string]string) (*AuthResult, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(plainPassword) < e.config.Password.MinLength {
		return nil, ErrWeakPassword
	}

	hash, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	existing, err := e.directory.ByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrIdentityNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	method := LoginMethod{Method: methodPassword, Email: normalizeEmail(email), AddedAt: time.Now().UTC()}

	var identity *Identity
	createdNew := false
	switch {
	case existing == nil:
		identity, err = e.directory.Create(ctx, email, method)
		if err != nil {
			if errors.Is(err, ErrEmailExists) {
				e.metricInc(MetricSignUpDuplicate)
				e.emitEvent(ctx, eventSignUpDuplicate, methodPassword, false, "", "", ErrEmailExists, nil)
				return nil, ErrEmailExists
			}
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		createdNew = true
	case hasPasswordMethod(existing):
		e.metricInc(MetricSignUpDuplicate)
		e.emitEvent(ctx, eventSignUpDuplicate, methodPassword, false, existing.ID, "", ErrEmailExists, nil)
		return nil, ErrEmailExists
	default:
		// Identity exists via another method; attach the password.
		identity = existing
		if err := e.directory.AddLoginMethod(ctx, identity.ID, method); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}

	if err := e.directory.SetCredential(ctx, identity.ID, Credential{PasswordHash: hash, HashVersion: 1}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitEvent(ctx, eventSignUpSuccess, methodPassword, true, identity.ID, "", nil, nil)

	return e.authResult(ctx, identity, createdNew, payload)
}

// SignIn verifies an email and password and mints a session. Unknown email
// and wrong password both return [ErrWrongCredentials]; the two are not
// distinguishable from outside, and the hash comparison runs either way.
func (e *Engine) SignIn(ctx context.Context, email, plainPassword string, payload map[string]string) (*AuthResult, error) {
	if e == nil || e.directory == nil {
		return nil, ErrEngineNotReady
	}

	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}

	identity, lookupErr := e.directory.ByEmail(ctx, email)

	hash := decoyHash
	var cred *Credential
	if lookupErr == nil {
		cred, lookupErr = e.directory.Credential(ctx, identity.ID)
		if lookupErr == nil {
			hash = cred.PasswordHash
		}
	}

	ok, err := e.passwordHash.Verify(plainPassword, hash)
	if err != nil || !ok || cred == nil || identity == nil {
		e.metricInc(MetricSignInFailure)
		e.emitEvent(ctx, eventSignInFailure, methodPassword, false, "", "", ErrWrongCredentials, nil)
		return nil, ErrWrongCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		if upgrade, upErr := e.passwordHash.NeedsUpgrade(cred.PasswordHash); upErr == nil && upgrade {
			if newHash, hashErr := e.passwordHash.Hash(plainPassword); hashErr == nil {
				_ = e.directory.SetCredential(ctx, identity.ID, Credential{
					PasswordHash: newHash,
					HashVersion:  cred.HashVersion + 1,
				})
			}
		}
	}

	e.metricInc(MetricSignInSuccess)
	e.emitEvent(ctx, eventSignInSuccess, methodPassword, true, identity.ID, "", nil, nil)

	return e.authResult(ctx, identity, false, payload)
}

// HasIdentity reports whether any identity owns the email, without
// revealing which methods it holds.
func (e *Engine) HasIdentity(ctx context.Context, email string) (bool, error) {
	if e == nil || e.directory == nil {
		return false, ErrEngineNotReady
	}
	if !validEmail(email) {
		return false, ErrInvalidEmail
	}

	_, err := e.directory.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return true, nil
}

func hasPasswordMethod(identity *Identity) bool {
	for _, m := range identity.LoginMethods {
		if m.Method == methodPassword {
			return true
		}
	}
	return false
}

// decoyHash keeps signin timing flat when the email is unknown: the argon2
// verification runs against this fixed hash instead of short-circuiting.
const decoyHash = "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
