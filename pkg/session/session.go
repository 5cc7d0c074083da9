// Package session issues and resolves opaque bearer sessions.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/doseidotio/doseid/pkg/store"
)

const (
	// cacheLifespan is how long a resolved session stays cached.
	cacheLifespan = 3600 * time.Second

	tokenLength   = 96
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Manager caches token lookups in front of the store.
type Manager struct {
	store *store.Store
	cache *gocache.Cache
}

// NewManager creates a session manager backed by the given store.
func NewManager(st *store.Store) *Manager {
	return &Manager{
		store: st,
		cache: gocache.New(cacheLifespan, 10*time.Minute),
	}
}

// New creates and persists a session for an account and primes the cache.
func (m *Manager) New(ctx context.Context, accountID uuid.UUID) (*store.Session, error) {
	now := time.Now().UTC()
	session := &store.Session{
		Token:        newToken(),
		RefreshToken: newToken(),
		AccountID:    accountID,
		UpdatedAt:    now,
		CreatedAt:    now,
	}
	created, err := m.store.CreateSession(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	m.cache.Set(created.Token, created, cacheLifespan)
	return created, nil
}

// SSHNew returns an in-memory session for a request that authenticated by
// SSH bearer. It is never persisted: the operator tool sends one bearer per
// API call and writing a session row for each would be pure churn.
func (m *Manager) SSHNew(accountID uuid.UUID) *store.Session {
	now := time.Now().UTC()
	return &store.Session{
		ID:           uuid.New(),
		Token:        newToken(),
		RefreshToken: newToken(),
		AccountID:    accountID,
		UpdatedAt:    now,
		CreatedAt:    now,
	}
}

// Lookup resolves a token to its session, consulting the cache first. A
// store hit refreshes the cache entry.
func (m *Manager) Lookup(ctx context.Context, token string) (*store.Session, error) {
	if cached, ok := m.cache.Get(token); ok {
		session := cached.(*store.Session)
		m.cache.Set(token, session, cacheLifespan)
		return session, nil
	}
	session, err := m.store.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	m.cache.Set(token, session, cacheLifespan)
	return session, nil
}

// Delete removes a session from the cache and the store.
func (m *Manager) Delete(ctx context.Context, token string) error {
	m.cache.Delete(token)
	if err := m.store.DeleteSessionByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// newToken draws 96 characters from [A-Za-z0-9] using crypto/rand.
func newToken() string {
	max := big.NewInt(int64(len(tokenAlphabet)))
	token := make([]byte, tokenLength)
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("failed to read random bytes: %v", err))
		}
		token[i] = tokenAlphabet[n.Int64()]
	}
	return string(token)
}
