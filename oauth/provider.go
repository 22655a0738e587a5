package oauth

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownProvider is returned when a provider id has no registration.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// ExternalIdentity is what a completed code exchange proves: who the
// provider says the user is.
type ExternalIdentity struct {
	ProviderUserID string
	Email          string
}

// Exchanger completes the authorization-code leg of a federated login.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (ExternalIdentity, error)
}

// Provider describes one federated sign-on target. AuthorizationURL is pure
// construction; no network call, no stored state.
type Provider struct {
	ID                string
	AuthorizeEndpoint string
	ClientID          string
	Scopes            []string
	RedirectURI       string
}

// AuthorizationURL builds the provider's authorization redirect target,
// embedding the caller's opaque state value.
func (p Provider) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	if p.RedirectURI != "" {
		q.Set("redirect_uri", p.RedirectURI)
	}
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	if state != "" {
		q.Set("state", state)
	}
	return p.AuthorizeEndpoint + "?" + q.Encode()
}

// Registry maps provider ids to their configuration and exchanger. Lookup is
// case-insensitive on the provider id.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	exchangers map[string]Exchanger
}

func NewRegistry() *Registry {
	return &Registry{
		providers:  make(map[string]Provider),
		exchangers: make(map[string]Exchanger),
	}
}

// Register adds or replaces a provider. exchanger may be nil for providers
// that only ever hand out redirect URLs.
func (r *Registry) Register(p Provider, exchanger Exchanger) {
	id := strings.ToLower(p.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[id] = p
	if exchanger != nil {
		r.exchangers[id] = exchanger
	}
}

func (r *Registry) Provider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(id)]
	return p, ok
}

func (r *Registry) Exchanger(id string) (Exchanger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	x, ok := r.exchangers[strings.ToLower(id)]
	return x, ok
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Google returns the standard Google OAuth provider configuration.
func Google(clientID, redirectURI string) Provider {
	return Provider{
		ID:                "google",
		AuthorizeEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
		ClientID:          clientID,
		Scopes:            []string{"openid", "email"},
		RedirectURI:       redirectURI,
	}
}

// GitHub returns the standard GitHub OAuth provider configuration.
func GitHub(clientID, redirectURI string) Provider {
	return Provider{
		ID:                "github",
		AuthorizeEndpoint: "https://github.com/login/oauth/authorize",
		ClientID:          clientID,
		Scopes:            []string{"read:user", "user:email"},
		RedirectURI:       redirectURI,
	}
}

// Apple returns the standard Sign in with Apple provider configuration.
func Apple(clientID, redirectURI string) Provider {
	return Provider{
		ID:                "apple",
		AuthorizeEndpoint: "https://appleid.apple.com/auth/authorize",
		ClientID:          clientID,
		Scopes:            []string{"name", "email"},
		RedirectURI:       redirectURI,
	}
}
