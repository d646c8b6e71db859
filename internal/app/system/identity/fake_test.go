package identity

import (
	"context"
	"sync"
	"time"

	userstore "github.com/dalemusser/stratabook/internal/app/store/users"
	"github.com/dalemusser/stratabook/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memDirectory is an in-memory Directory enforcing the same uniqueness rules
// as the users collection indexes.
type memDirectory struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
	err   error // returned by every call when set
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: map[primitive.ObjectID]*models.User{}}
}

func (m *memDirectory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memDirectory) find(match func(*models.User) bool) (*models.User, error) {
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, userstore.ErrNotFound
}

func (m *memDirectory) GetByProvider(_ context.Context, provider, providerID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.find(func(u *models.User) bool {
		return u.IdentityProvider == provider && u.IdentityProviderID != nil && *u.IdentityProviderID == providerID
	})
}

func (m *memDirectory) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memDirectory) EmailTakenByOther(_ context.Context, email string, excludeID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.find(func(u *models.User) bool { return u.Email == email && u.ID != excludeID })
	return err == nil, nil
}

func (m *memDirectory) UsernameExists(_ context.Context, username string, excludeID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.find(func(u *models.User) bool { return u.UsernameOrEmpty() == username && u.ID != excludeID })
	return err == nil, nil
}

func (m *memDirectory) UpdateEmail(_ context.Context, id primitive.ObjectID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(func(u *models.User) bool { return u.Email == email && u.ID != id }); err == nil {
		return userstore.ErrDuplicateEmail
	}
	u, ok := m.users[id]
	if !ok {
		return userstore.ErrNotFound
	}
	u.Email = email
	return nil
}

func (m *memDirectory) ClaimInvited(_ context.Context, id primitive.ObjectID, c userstore.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.IsInvitedPlaceholder() {
		return userstore.ErrNotFound
	}
	username := c.Username
	u.Username = &username
	u.Name = c.Name
	u.IdentityProvider = c.Provider
	if c.ProviderID != "" {
		pid := c.ProviderID
		u.IdentityProviderID = &pid
	}
	at := c.VerifiedAt
	u.EmailVerified = &at
	return nil
}

func (m *memDirectory) MarkEmailVerified(_ context.Context, id primitive.ObjectID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok && u.EmailVerified == nil {
		u.EmailVerified = &at
	}
	return nil
}

func (m *memDirectory) Create(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.User{}, m.err
	}
	for _, o := range m.users {
		switch {
		case o.Email == u.Email:
			return models.User{}, userstore.ErrDuplicateEmail
		case u.Username != nil && o.UsernameOrEmpty() == *u.Username:
			return models.User{}, userstore.ErrDuplicateUsername
		case u.IdentityProviderID != nil && o.IdentityProviderID != nil &&
			o.IdentityProvider == u.IdentityProvider && *o.IdentityProviderID == *u.IdentityProviderID:
			return models.User{}, userstore.ErrDuplicateIdentity
		}
	}
	u.ID = primitive.NewObjectID()
	u.ApplyDefaults()
	cp := u
	m.users[u.ID] = &cp
	return u, nil
}

// add inserts a user directly, bypassing uniqueness checks.
func (m *memDirectory) add(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = primitive.NewObjectID()
	m.users[u.ID] = &u
	cp := u
	return &cp
}

func (m *memDirectory) get(id primitive.ObjectID) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.users[id]
	return &cp
}

type accountKey struct{ provider, id string }

// memAccounts is an in-memory AccountLinker with upsert semantics.
type memAccounts struct {
	mu    sync.Mutex
	links map[accountKey]primitive.ObjectID
	err   error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{links: map[accountKey]primitive.ObjectID{}}
}

func (m *memAccounts) Link(_ context.Context, a models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	k := accountKey{a.Provider, a.ProviderAccountID}
	if _, ok := m.links[k]; !ok {
		m.links[k] = a.UserID
	}
	return nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *memAccounts) owner(provider, id string) (primitive.ObjectID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.links[accountKey{provider, id}]
	return uid, ok
}
