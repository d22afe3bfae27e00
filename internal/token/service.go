// Package token produces currently-valid Spotify access tokens,
// refreshing them transparently before expiry.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/farukhdev/spotify-now-playing/internal/spotify"
	"github.com/farukhdev/spotify-now-playing/internal/store"
)

// DefaultBuffer is how long before actual expiry a refresh is triggered.
const DefaultBuffer = 5 * time.Minute

// Sentinel errors.
var (
	// ErrNotAuthenticated is returned when no active credential exists.
	// The user must run the authorization flow; retrying does not help.
	ErrNotAuthenticated = errors.New("not authenticated with Spotify")

	// ErrRefreshFailed is returned when a refresh failed transiently and
	// the stored access token is already past its expiry.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// Refresher mints a new access token from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*spotify.TokenSet, error)
}

// Token is an access token with its remaining validity.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int

	// Refreshed reports whether this token was minted during the call
	// rather than read from the store. The HTTP layer uses it to hand
	// the new token back to polling clients.
	Refreshed bool
}

// Service orchestrates the credential store and the refresher.
type Service struct {
	store     store.Store
	refresher Refresher
	buffer    time.Duration
	now       func() time.Time

	// group collapses concurrent refreshes into one provider call.
	group singleflight.Group
}

// NewService creates a token service with the default refresh buffer.
func NewService(st store.Store, refresher Refresher) *Service {
	return &Service{
		store:     st,
		refresher: refresher,
		buffer:    DefaultBuffer,
		now:       time.Now,
	}
}

// SetBuffer overrides the refresh buffer window.
func (s *Service) SetBuffer(buffer time.Duration) {
	s.buffer = buffer
}

// SetClock replaces the service's time source for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AccessToken returns a currently-valid access token, refreshing when
// the stored one expires within the buffer window. Concurrent callers
// during a refresh share a single provider call.
func (s *Service) AccessToken(ctx context.Context) (*Token, error) {
	cred, err := s.store.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		// Store unreachable: fail closed rather than guessing.
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	now := s.now()
	expiry := cred.ExpiresAt()
	if cred.AccessToken != "" && now.Before(expiry.Add(-s.buffer)) {
		return &Token{
			AccessToken: cred.AccessToken,
			TokenType:   cred.TokenType,
			ExpiresIn:   int(expiry.Sub(now) / time.Second),
		}, nil
	}

	refreshed, err := s.refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, spotify.ErrInvalidRefreshToken) {
			return nil, err
		}
		// Transient failure: the stale token is still usable until its
		// actual expiry.
		if cred.AccessToken != "" && now.Before(expiry) {
			return &Token{
				AccessToken: cred.AccessToken,
				TokenType:   cred.TokenType,
				ExpiresIn:   int(expiry.Sub(now) / time.Second),
			}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	return refreshed, nil
}

// ForceRefresh mints a fresh access token regardless of the stored
// expiry. The playback endpoint's 401-triggered retry uses it.
func (s *Service) ForceRefresh(ctx context.Context) (*Token, error) {
	cred, err := s.store.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	refreshed, err := s.refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, spotify.ErrInvalidRefreshToken) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	return refreshed, nil
}

// refresh performs the provider call and write-back, collapsed across
// concurrent callers by the credential's singleton key. Whichever write
// completes last wins; both used the same refresh token so the results
// are equivalent.
func (s *Service) refresh(ctx context.Context, refreshToken string) (*Token, error) {
	key := strconv.Itoa(store.PublicUserID)
	result, err, _ := s.group.Do(key, func() (any, error) {
		set, err := s.refresher.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, err
		}

		if _, err := s.store.UpdateAccess(ctx, store.AccessUpdate{
			AccessToken: set.AccessToken,
			ExpiresIn:   set.ExpiresIn,
			TokenType:   set.TokenType,
		}); err != nil {
			return nil, fmt.Errorf("storing refreshed token: %w", err)
		}

		return &Token{
			AccessToken: set.AccessToken,
			TokenType:   set.TokenType,
			ExpiresIn:   set.ExpiresIn,
			Refreshed:   true,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Token), nil
}
