package authgate

import (
	"context"
	"time"

	"github.com/vireosec/authgate/internal/delivery"
	"github.com/vireosec/authgate/internal/observer"
)

// Identity is one end user known to the directory. An identity accrues login
// methods over time: a passwordless signin against an email that already has
// a password credential attaches to the same identity.
type Identity struct {
	ID           string
	Email        string
	TimeJoined   time.Time
	LoginMethods []LoginMethod
}

// LoginMethod records one way an identity has authenticated.
type LoginMethod struct {
	Method   string // "password", "passwordless", or a provider id
	Email    string
	AddedAt  time.Time
	Provider string // set only for federated methods
}

// Credential is the stored password material for an identity. The engine
// only ever sees the PHC-encoded hash.
type Credential struct {
	PasswordHash string
	HashVersion  int
}

// UserDirectory is the identity persistence collaborator. Implementations
// must be safe for concurrent use. The engine treats lookups returning
// [ErrIdentityNotFound] as a normal miss, not a fault.
type UserDirectory interface {
	// ByEmail returns the identity owning the email, or ErrIdentityNotFound.
	ByEmail(ctx context.Context, email string) (*Identity, error)
	// ByID returns the identity, or ErrIdentityNotFound.
	ByID(ctx context.Context, id string) (*Identity, error)
	// Create persists a new identity and returns it with its assigned ID.
	Create(ctx context.Context, email string, method LoginMethod) (*Identity, error)
	// AddLoginMethod appends a login method to an existing identity.
	AddLoginMethod(ctx context.Context, id string, method LoginMethod) error
	// Credential returns the password credential for an identity, or
	// ErrIdentityNotFound when none is stored.
	Credential(ctx context.Context, id string) (*Credential, error)
	// SetCredential stores or replaces the password credential.
	SetCredential(ctx context.Context, id string, cred Credential) error
}

// CodeDelivery is the out-of-band transport collaborator for one-time codes
// and magic links.
type CodeDelivery = delivery.Sender

// CodeMessage is the payload handed to a [CodeDelivery] transport.
type CodeMessage = delivery.Message

// ObserverEvent is the event model handed to observer sinks.
type ObserverEvent = observer.Event

// ObserverSink receives engine events in registration order.
type ObserverSink = observer.Sink

// SessionTokens is the full token bundle returned whenever a session is
// created or refreshed. The refresh token appears exactly once, here; the
// engine retains only its hash.
type SessionTokens struct {
	Handle           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is the successful end state of any authentication flow.
type AuthResult struct {
	Identity       *Identity
	CreatedNewUser bool
	Tokens         SessionTokens
}

// SessionInfo is the inspection view of a live session. It never exposes
// refresh material.
type SessionInfo struct {
	Handle          string
	IdentityID      string
	Payload         map[string]string
	CreatedAt       time.Time
	LastRefreshedAt time.Time
	ExpiresAt       time.Time
}

// CodeChallengeInfo describes a freshly created or resent code challenge.
// The clear code and link code travel only through the delivery transport.
type CodeChallengeInfo struct {
	DeviceID         string
	PreAuthSessionID string
	FlowType         string
	ExpiresAt        time.Time
}

// FlowTypeCodeAndLink is the flow type reported for challenges that carry
// both a user-input code and a magic link.
const FlowTypeCodeAndLink = "USER_INPUT_CODE_AND_MAGIC_LINK"

// AuthRequest is the single unified authentication payload. Which fields
// are set selects the flow; see [Engine.Authenticate] for the dispatch
// order.
type AuthRequest struct {
	// Provider selects a federated flow when non-empty.
	Provider string
	// Email is the contact address for password and passwordless flows.
	Email string
	// Password selects the password flow when set alongside Email.
	Password string
	// Code, DeviceID and PreAuthSessionID together select code consumption.
	Code             string
	DeviceID         string
	PreAuthSessionID string
	// SignUp forces the password flow into signup instead of signin.
	SignUp bool
	// Payload seeds the session payload on success.
	Payload map[string]string
}

// OutcomeStep discriminates the [AuthOutcome] union.
type OutcomeStep uint8

const (
	// StepSession means authentication completed and Session is set.
	StepSession OutcomeStep = iota
	// StepCodeSent means a challenge was created and Challenge is set.
	StepCodeSent
	// StepRedirect means the caller must redirect and RedirectURL is set.
	StepRedirect
)

// AuthOutcome is the closed result union of [Engine.Authenticate]. Exactly
// one branch is populated, selected by Step.
type AuthOutcome struct {
	Step        OutcomeStep
	Session     *AuthResult
	Challenge   *CodeChallengeInfo
	RedirectURL string
}
