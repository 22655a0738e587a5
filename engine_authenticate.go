package authgate

import "context"

// Authenticate is the single unified entry point. The populated fields of
// the request select the flow, checked in a fixed order:
//
//  1. Provider set: federated flow. Returns a redirect outcome.
//  2. Email set but malformed: ErrInvalidEmail.
//  3. Code, DeviceID and PreAuthSessionID all set: code consumption. The
//     code fields win even when a password is also present.
//  4. Email and Password set: password signin, or signup when SignUp is set.
//  5. Email alone: create a code challenge. Returns a code-sent outcome.
//
// A request with none of these fields fails with ErrContactRequired.
func (e *Engine) Authenticate(ctx context.Context, req AuthRequest) (*AuthOutcome, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	if req.Provider != "" {
		redirect, err := e.BeginThirdParty(ctx, req.Provider)
		if err != nil {
			return nil, err
		}
		return &AuthOutcome{Step: StepRedirect, RedirectURL: redirect}, nil
	}

	hasCodeTriple := req.Code != "" && req.DeviceID != "" && req.PreAuthSessionID != ""

	if req.Email != "" && !validEmail(req.Email) {
		return nil, ErrInvalidEmail
	}

	if hasCodeTriple {
		result, err := e.ConsumeCode(ctx, req.DeviceID, req.PreAuthSessionID, req.Code, req.Payload)
		if err != nil {
			return nil, err
		}
		return &AuthOutcome{Step: StepSession, Session: result}, nil
	}

	if req.Email != "" && req.Password != "" {
		var result *AuthResult
		var err error
		if req.SignUp {
			result, err = e.SignUp(ctx, req.Email, req.Password, req.Payload)
		} else {
			result, err = e.SignIn(ctx, req.Email, req.Password, req.Payload)
		}
		if err != nil {
			return nil, err
		}
		return &AuthOutcome{Step: StepSession, Session: result}, nil
	}

	if req.Email != "" {
		challenge, err := e.CreateCode(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		return &AuthOutcome{Step: StepCodeSent, Challenge: challenge}, nil
	}

	return nil, ErrContactRequired
}
