// Package store provides durable storage for the singleton Spotify
// credential record.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	// ErrNotFound is returned when no active credential exists.
	ErrNotFound = errors.New("credential not found")

	// ErrUnavailable is returned when the storage backend cannot be
	// reached. Callers treat it differently from ErrNotFound: the
	// record may well exist, the store just cannot say.
	ErrUnavailable = errors.New("credential store unavailable")
)

// PublicUserID is the fixed synthetic identity the singleton credential
// is keyed by. The service holds one credential per deployment, not one
// per end user.
const PublicUserID = 5

// Credential is the stored OAuth token pair for the Spotify account the
// site displays. Absolute expiry is always derived as
// LastUpdated + ExpiresIn seconds; it is never stored directly.
type Credential struct {
	UserID       int
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	TokenType    string
	IsActive     bool
	LastUpdated  time.Time
}

// ExpiresAt returns the absolute expiry of the access token.
func (c *Credential) ExpiresAt() time.Time {
	return c.LastUpdated.Add(time.Duration(c.ExpiresIn) * time.Second)
}

// AccessUpdate carries the fields a token refresh changes. The refresh
// token itself only changes on re-authorization, which goes through Save.
type AccessUpdate struct {
	AccessToken string
	ExpiresIn   int
	TokenType   string
}

// Store is the credential persistence interface.
type Store interface {
	// Save upserts the singleton credential, marking it active and
	// bumping LastUpdated. The write is all-or-nothing.
	Save(ctx context.Context, accessToken, refreshToken string, expiresIn int, tokenType string) (*Credential, error)

	// Get returns the active credential, ErrNotFound when none exists
	// or the record has been deactivated.
	Get(ctx context.Context) (*Credential, error)

	// UpdateAccess merges a refreshed access token into the existing
	// record and bumps LastUpdated. ErrNotFound when no active record
	// exists.
	UpdateAccess(ctx context.Context, upd AccessUpdate) (*Credential, error)

	// Deactivate soft-deletes the credential. The record is kept so a
	// later Save can reactivate the same row.
	Deactivate(ctx context.Context) error
}
