package authgate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-process [UserDirectory] for tests, examples and
// single-node deployments. Production deployments supply a directory backed
// by their own user store.
type MemoryDirectory struct {
	mu          sync.RWMutex
	byID        map[string]*Identity
	byEmail     map[string]string // normalized email -> identity id
	credentials map[string]Credential
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:        make(map[string]*Identity),
		byEmail:     make(map[string]string),
		credentials: make(map[string]Credential),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneIdentity(id *Identity) *Identity {
	out := *id
	out.LoginMethods = make([]LoginMethod, len(id.LoginMethods))
	copy(out.LoginMethods, id.LoginMethods)
	return &out
}

func (d *MemoryDirectory) ByEmail(_ context.Context, email string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return cloneIdentity(d.byID[id]), nil
}

func (d *MemoryDirectory) ByID(_ context.Context, id string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	identity, ok := d.byID[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return cloneIdentity(identity), nil
}

func (d *MemoryDirectory) Create(_ context.Context, email string, method LoginMethod) (*Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	normalized := normalizeEmail(email)
	if _, exists := d.byEmail[normalized]; exists {
		return nil, ErrEmailExists
	}

	identity := &Identity{
		ID:           uuid.NewString(),
		Email:        normalized,
		TimeJoined:   time.Now().UTC(),
		LoginMethods: []LoginMethod{method},
	}
	d.byID[identity.ID] = identity
	d.byEmail[normalized] = identity.ID

	return cloneIdentity(identity), nil
}

func (d *MemoryDirectory) AddLoginMethod(_ context.Context, id string, method LoginMethod) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	identity, ok := d.byID[id]
	if !ok {
		return ErrIdentityNotFound
	}

	for _, existing := range identity.LoginMethods {
		if existing.Method == method.Method && existing.Provider == method.Provider {
			return nil
		}
	}
	identity.LoginMethods = append(identity.LoginMethods, method)

	return nil
}

func (d *MemoryDirectory) Credential(_ context.Context, id string) (*Credential, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cred, ok := d.credentials[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return &cred, nil
}

func (d *MemoryDirectory) SetCredential(_ context.Context, id string, cred Credential) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byID[id]; !ok {
		return ErrIdentityNotFound
	}
	d.credentials[id] = cred

	return nil
}
