package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory credential store. It backs tests and
// credential-less development runs; each instance is independent so
// tests never share state.
type Memory struct {
	mu   sync.Mutex
	cred *Credential
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// SetClock replaces the store's time source. Tests use it to pin
// LastUpdated to a known instant.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Save upserts the singleton credential.
func (m *Memory) Save(_ context.Context, accessToken, refreshToken string, expiresIn int, tokenType string) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cred = &Credential{
		UserID:       PublicUserID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    tokenType,
		IsActive:     true,
		LastUpdated:  m.now(),
	}
	cred := *m.cred
	return &cred, nil
}

// Get returns the active credential.
func (m *Memory) Get(_ context.Context) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil || !m.cred.IsActive {
		return nil, ErrNotFound
	}
	cred := *m.cred
	return &cred, nil
}

// UpdateAccess merges a refreshed access token into the active record.
func (m *Memory) UpdateAccess(_ context.Context, upd AccessUpdate) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil || !m.cred.IsActive {
		return nil, ErrNotFound
	}
	m.cred.AccessToken = upd.AccessToken
	m.cred.ExpiresIn = upd.ExpiresIn
	m.cred.TokenType = upd.TokenType
	m.cred.LastUpdated = m.now()
	cred := *m.cred
	return &cred, nil
}

// Deactivate soft-deletes the credential.
func (m *Memory) Deactivate(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred == nil {
		return ErrNotFound
	}
	m.cred.IsActive = false
	m.cred.LastUpdated = m.now()
	return nil
}
