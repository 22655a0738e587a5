package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vireosec/authgate/internal"
	"github.com/vireosec/authgate/internal/delivery"
	"github.com/vireosec/authgate/internal/observer"
	"github.com/vireosec/authgate/internal/rate"
	"github.com/vireosec/authgate/internal/stores"
	"github.com/vireosec/authgate/jwt"
	"github.com/vireosec/authgate/oauth"
	"github.com/vireosec/authgate/password"
	"github.com/vireosec/authgate/session"
)

// Engine is the auth gateway core. Build one with [Builder], share it
// freely; every method is safe for concurrent use.
type Engine struct {
	config         Config
	directory      UserDirectory
	jwtManager     *jwt.Manager
	passwordHash   *password.Argon2
	sessionStore   *session.Store
	challengeStore *stores.ChallengeStore
	rateLimiter    *rate.Limiter
	delivery       *delivery.Dispatcher
	observer       *observer.Dispatcher
	providers      *oauth.Registry
	metrics        *Metrics
}

// Close drains the observer dispatcher and waits for in-flight code
// deliveries.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.observer != nil {
		e.observer.Close()
	}
	if e.delivery != nil {
		e.delivery.Close()
	}
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeCtx bounds one store round trip with the configured timeout.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, stores.ErrChallengeBackend),
		errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

/*
====================================
SESSION LIFECYCLE
====================================
*/

// CreateSession mints a session for the identity: a durable record, an
// access token and a single-use refresh token. The refresh secret appears
// only in the returned bundle.
func (e *Engine) CreateSession(ctx context.Context, identityID string, payload map[string]string) (SessionTokens, error) {
	if e == nil || e.sessionStore == nil {
		return SessionTokens{}, ErrEngineNotReady
	}

	handle, err := internal.NewHandle()
	if err != nil {
		return SessionTokens{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return SessionTokens{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	now := time.Now()
	expiresAt := now.Add(e.config.Session.RefreshTTL)

	sess := &session.Session{
		Handle:          handle.String(),
		IdentityID:      identityID,
		Payload:         payload,
		RefreshHash:     internal.HashRefreshSecret(secret),
		CreatedAt:       now.Unix(),
		LastRefreshedAt: now.Unix(),
		ExpiresAt:       expiresAt.Unix(),
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.sessionStore.Save(sctx, sess); err != nil {
		return SessionTokens{}, mapStoreErr(err)
	}

	accessToken, accessExp, err := e.jwtManager.CreateAccess(identityID, sess.Handle, payload)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	refreshToken, err := internal.EncodeRefreshToken(sess.Handle, secret)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitEvent(ctx, eventSessionCreated, "", true, identityID, sess.Handle, nil, nil)

	return SessionTokens{
		Handle:           sess.Handle,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// Validate checks an access token and confirms the session behind it is
// still live. A revoked session fails validation even while the token's own
// expiry has not passed; the session store is always consulted.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		e.emitEvent(ctx, eventValidateFailure, "", false, "", "", ErrUnauthorized, nil)
		return nil, ErrUnauthorized
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	sess, err := e.sessionStore.Get(sctx, claims.Handle)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, session.ErrSessionNotFound) {
			e.emitEvent(ctx, eventValidateFailure, "", false, claims.IdentityID, claims.Handle, ErrUnauthorized, nil)
			return nil, ErrUnauthorized
		}
		return nil, mapStoreErr(err)
	}

	if sess.IdentityID != claims.IdentityID {
		e.metricInc(MetricValidateFailure)
		return nil, ErrUnauthorized
	}

	e.metricInc(MetricValidateSuccess)
	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	return sessionInfo(sess), nil
}

// Refresh rotates a refresh token: the presented secret is retired and a
// new one issued in a single atomic store update. Presenting an already
// rotated token destroys the session and returns [ErrRefreshReuse].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (SessionTokens, error) {
	if e == nil || e.sessionStore == nil {
		return SessionTokens{}, ErrEngineNotReady
	}

	handle, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitEvent(ctx, eventRefreshInvalid, "", false, "", "", ErrRefreshInvalid, nil)
		return SessionTokens{}, ErrRefreshInvalid
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return SessionTokens{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	sess, err := e.sessionStore.RotateRefreshHash(
		sctx,
		handle,
		internal.HashRefreshSecret(secret),
		internal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.emitEvent(ctx, eventRefreshReuse, "", false, "", handle, ErrRefreshReuse, nil)
			return SessionTokens{}, ErrRefreshReuse
		case errors.Is(err, session.ErrSessionNotFound):
			e.metricInc(MetricRefreshFailure)
			e.emitEvent(ctx, eventRefreshInvalid, "", false, "", handle, ErrRefreshInvalid, nil)
			return SessionTokens{}, ErrRefreshInvalid
		default:
			return SessionTokens{}, mapStoreErr(err)
		}
	}

	accessToken, accessExp, err := e.jwtManager.CreateAccess(sess.IdentityID, sess.Handle, sess.Payload)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	newRefresh, err := internal.EncodeRefreshToken(sess.Handle, nextSecret)
	if err != nil {
		return SessionTokens{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitEvent(ctx, eventRefreshSuccess, "", true, sess.IdentityID, sess.Handle, nil, nil)

	return SessionTokens{
		Handle:           sess.Handle,
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     newRefresh,
		RefreshExpiresAt: time.Unix(sess.ExpiresAt, 0),
	}, nil
}

// Revoke destroys one session. Idempotent: revoking an unknown or already
// revoked handle is not an error.
func (e *Engine) Revoke(ctx context.Context, handle string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.sessionStore.Delete(sctx, handle); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitEvent(ctx, eventSessionRevoked, "", true, "", handle, nil, nil)
	return nil
}

// RevokeAllForIdentity destroys every live session the identity holds.
func (e *Engine) RevokeAllForIdentity(ctx context.Context, identityID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.sessionStore.DeleteAllForIdentity(sctx, identityID); err != nil {
		return mapStoreErr(err)
	}

	e.metricInc(MetricSessionRevokedAll)
	e.emitEvent(ctx, eventSessionRevokedAll, "", true, identityID, "", nil, nil)
	return nil
}

// SessionInfo inspects a live session by handle.
func (e *Engine) SessionInfo(ctx context.Context, handle string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	sess, err := e.sessionStore.Get(sctx, handle)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, mapStoreErr(err)
	}

	return sessionInfo(sess), nil
}

// ActiveSessions lists the live handles an identity holds.
func (e *Engine) ActiveSessions(ctx context.Context, identityID string) ([]string, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	handles, err := e.sessionStore.ActiveHandles(sctx, identityID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return handles, nil
}

// UpdatePayload merge-patches the session payload in one atomic store
// update. An empty-string value removes the key. Already issued access
// tokens keep the payload they were minted with until refresh.
func (e *Engine) UpdatePayload(ctx context.Context, handle string, patch map[string]string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	sess, err := e.sessionStore.MergePayload(sctx, handle, patch)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, mapStoreErr(err)
	}

	e.emitEvent(ctx, eventPayloadUpdated, "", true, sess.IdentityID, handle, nil, nil)
	return sessionInfo(sess), nil
}

func sessionInfo(sess *session.Session) *SessionInfo {
	payload := make(map[string]string, len(sess.Payload))
	for k, v := range sess.Payload {
		payload[k] = v
	}
	return &SessionInfo{
		Handle:          sess.Handle,
		IdentityID:      sess.IdentityID,
		Payload:         payload,
		CreatedAt:       time.Unix(sess.CreatedAt, 0),
		LastRefreshedAt: time.Unix(sess.LastRefreshedAt, 0),
		ExpiresAt:       time.Unix(sess.ExpiresAt, 0),
	}
}

func (e *Engine) authResult(ctx context.Context, identity *Identity, createdNew bool, payload map[string]string) (*AuthResult, error) {
	tokens, err := e.CreateSession(ctx, identity.ID, payload)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Identity:       identity,
		CreatedNewUser: createdNew,
		Tokens:         tokens,
	}, nil
}
