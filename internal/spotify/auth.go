// Package spotify provides the Spotify OAuth flow and Web API access
// for the now-playing service.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

// Sentinel errors for token operations.
var (
	// ErrInvalidRefreshToken is returned when the provider rejects the
	// refresh token itself. Retrying is pointless; the user has to run
	// the authorization flow again.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrExchangeFailed is returned when the provider rejects the
	// authorization code exchange.
	ErrExchangeFailed = errors.New("token exchange failed")
)

// TokenSet is a token response from the provider's token endpoint.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	TokenType    string
}

// AuthConfig configures an Authenticator. AuthURL and TokenURL default
// to Spotify's endpoints and exist so tests can point at a fake provider.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
}

// Authenticator handles the authorization-code grant and refresh grant
// against the provider's token endpoint. The client is confidential:
// both grants authenticate with HTTP Basic auth from the client id and
// secret.
type Authenticator struct {
	cfg oauth2.Config
}

// NewAuthenticator creates an Authenticator with the scope set the
// now-playing feature needs.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = spotifyauth.AuthURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	return &Authenticator{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes: []string{
				spotifyauth.ScopeUserReadCurrentlyPlaying,
				spotifyauth.ScopeUserReadPlaybackState,
				spotifyauth.ScopeUserReadRecentlyPlayed,
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:   authURL,
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

// AuthCodeURL builds the provider authorization URL. Deterministic for a
// given state, no side effects.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// Exchange trades an authorization code for the initial token pair. The
// redirect URI sent with the request is the one the code was obtained
// with; the provider requires an exact match. On provider rejection the
// returned error wraps ErrExchangeFailed and carries the raw error body
// for diagnostic display.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	tok, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			return nil, fmt.Errorf("%w: provider returned %d: %s", ErrExchangeFailed, rErr.Response.StatusCode, rErr.Body)
		}
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	set := tokenSetFrom(tok)
	if set.AccessToken == "" || set.RefreshToken == "" {
		return nil, fmt.Errorf("%w: incomplete token response", ErrExchangeFailed)
	}
	return set, nil
}

// Refresh mints a new access token from a refresh token. A provider 400
// means the refresh token itself is invalid and is surfaced as
// ErrInvalidRefreshToken; any other failure is transient and safe to
// retry with backoff.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	tok, err := a.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) && rErr.Response.StatusCode == 400 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRefreshToken, rErr.Body)
		}
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}

	set := tokenSetFrom(tok)
	// The provider does not rotate refresh tokens; keep the one we have.
	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}
	return set, nil
}

// tokenSetFrom converts an oauth2 token, recovering the wire-format
// expires_in from the absolute expiry.
func tokenSetFrom(tok *oauth2.Token) *TokenSet {
	expiresIn := 0
	if !tok.Expiry.IsZero() {
		expiresIn = int(time.Until(tok.Expiry).Round(time.Second) / time.Second)
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
		TokenType:    tokenType,
	}
}
