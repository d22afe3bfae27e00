package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/farukhdev/spotify-now-playing/internal/spotify"
	"github.com/farukhdev/spotify-now-playing/internal/store"
	"github.com/farukhdev/spotify-now-playing/internal/token"
)

// Machine-readable error codes for the authorization callback redirect.
const (
	errAuthFailed          = "auth_failed"
	errNoCode              = "no_code"
	errTokenExchangeFailed = "token_exchange_failed"
)

// Machine-readable error codes for the now-playing endpoint.
const (
	codeAuthRequired        = "AUTH_REQUIRED"
	codeTokenFailed         = "TOKEN_FAILED"
	codeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
)

// Response headers carrying a transparently minted access token back to
// polling clients.
const (
	headerNewAccessToken  = "x-new-access-token"
	headerAccessExpiresIn = "x-access-token-expires-in"
	headerLegacyToken     = "x-token"
	headerLegacyTokenType = "x-token-type"
)

// Handlers contains the HTTP handlers for the service.
type Handlers struct {
	store        store.Store
	tokens       *token.Service
	auth         *spotify.Authenticator
	spotify      *spotify.Client
	redirectPath string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st store.Store, tokens *token.Service, auth *spotify.Authenticator, client *spotify.Client, redirectPath string) *Handlers {
	return &Handlers{
		store:        st,
		tokens:       tokens,
		auth:         auth,
		spotify:      client,
		redirectPath: redirectPath,
	}
}

// AuthStart initiates the Spotify authorization flow (GET /auth/start).
func (h *Handlers) AuthStart(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate state")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// AuthCallback handles the provider redirect (GET /auth/callback). Both
// outcomes are terminal: the browser lands back on the site with a
// spotify=success or spotify=error&code=... query.
func (h *Handlers) AuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errMsg := query.Get("error"); errMsg != "" {
		// User cancelled or the provider refused authorization.
		h.redirectResult(w, r, errAuthFailed)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectResult(w, r, errNoCode)
		return
	}

	if cookie, err := r.Cookie("oauth_state"); err != nil || cookie.Value != query.Get("state") {
		h.redirectResult(w, r, errAuthFailed)
		return
	}
	clearStateCookie(w)

	set, err := h.auth.Exchange(r.Context(), code)
	if err != nil {
		h.redirectResult(w, r, errTokenExchangeFailed)
		return
	}

	if _, err := h.store.Save(r.Context(), set.AccessToken, set.RefreshToken, set.ExpiresIn, set.TokenType); err != nil {
		h.redirectResult(w, r, errTokenExchangeFailed)
		return
	}

	h.redirectResult(w, r, "")
}

// AuthDisconnect deactivates the stored credential (POST /auth/disconnect).
func (h *Handlers) AuthDisconnect(w http.ResponseWriter, r *http.Request) {
	err := h.store.Deactivate(r.Context())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to disconnect")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// TokenExchange trades an authorization code for a token pair and
// persists it (POST /token/exchange).
func (h *Handlers) TokenExchange(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "Authorization code is required")
		return
	}

	set, err := h.auth.Exchange(r.Context(), body.Code)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.Save(r.Context(), set.AccessToken, set.RefreshToken, set.ExpiresIn, set.TokenType); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist credential")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":      set.AccessToken,
		"refreshToken":     set.RefreshToken,
		"expiresInSeconds": set.ExpiresIn,
		"tokenType":        set.TokenType,
	})
}

// NowPlaying serves the authenticated playback read model
// (GET /now-playing). It accepts either a bearer access token or the
// legacy x-token/x-token-type presentation, refreshes transparently on
// 401 and answers 304 when the ETag matches.
func (h *Handlers) NowPlaying(w http.ResponseWriter, r *http.Request) {
	accessToken, refreshMode, ok := presentedToken(r)
	if !ok {
		writeAuthError(w, codeAuthRequired)
		return
	}

	ctx := r.Context()

	// The refresh-token presentation means the client has no usable
	// access token; mint or reuse one server-side and hand it back.
	if refreshMode {
		tok, err := h.tokens.AccessToken(ctx)
		if err != nil {
			writeAuthError(w, authCode(err))
			return
		}
		accessToken = tok.AccessToken
		if tok.Refreshed {
			setNewTokenHeaders(w, tok)
		}
	}

	state, err := h.spotify.CurrentlyPlaying(ctx, accessToken)
	if errors.Is(err, spotify.ErrTokenExpired) {
		// Refresh and retry exactly once before giving up.
		tok, refreshErr := h.tokens.ForceRefresh(ctx)
		if refreshErr != nil {
			writeAuthError(w, authCode(refreshErr))
			return
		}
		setNewTokenHeaders(w, tok)
		state, err = h.spotify.CurrentlyPlaying(ctx, tok.AccessToken)
		if errors.Is(err, spotify.ErrTokenExpired) {
			writeAuthError(w, codeTokenFailed)
			return
		}
	}
	if err != nil {
		writeProviderError(w, err)
		return
	}

	etag := playbackETag(state)
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

// PublicNowPlaying serves the unauthenticated read of the singleton
// credential's playback state (GET /now-playing/public).
func (h *Handlers) PublicNowPlaying(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tok, err := h.tokens.AccessToken(ctx)
	if err != nil {
		writeError(w, http.StatusNotFound, "No active Spotify token found")
		return
	}

	state, err := h.spotify.CurrentlyPlaying(ctx, tok.AccessToken)
	if errors.Is(err, spotify.ErrTokenExpired) {
		refreshed, refreshErr := h.tokens.ForceRefresh(ctx)
		if refreshErr != nil {
			writeError(w, http.StatusNotFound, "No active Spotify token found")
			return
		}
		state, err = h.spotify.CurrentlyPlaying(ctx, refreshed.AccessToken)
	}
	if err != nil {
		writeProviderError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"isPlaying": state.IsPlaying,
		"track":     state.Track,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// TokenStatus reports whether the stored credential can serve API calls
// without user interaction (GET /token/status). The frontend uses it to
// decide whether to prompt for re-authorization.
func (h *Handlers) TokenStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	cred, err := h.store.Get(r.Context())
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check token status")
		return
	}

	accessValid := false
	hasRefresh := false
	var expiry any
	if err == nil {
		accessValid = cred.AccessToken != "" && now.Before(cred.ExpiresAt())
		hasRefresh = cred.RefreshToken != ""
		if accessValid {
			expiry = cred.ExpiresAt().UTC().Format(time.RFC3339)
		}
	}

	status := "no_tokens"
	httpStatus := http.StatusUnauthorized
	switch {
	case accessValid:
		status = "ready"
		httpStatus = http.StatusOK
	case hasRefresh:
		status = "needs_refresh"
		httpStatus = http.StatusOK
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":               status,
		"hasValidAccessToken":  accessValid,
		"hasValidRefreshToken": hasRefresh,
		"accessTokenExpiry":    expiry,
		"timestamp":            now.Format(time.RFC3339),
	})
}

// RecentlyPlayed serves the user's recent listening history
// (GET /recently-played?limit=).
func (h *Handlers) RecentlyPlayed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tok, err := h.tokens.AccessToken(ctx)
	if err != nil {
		writeAuthError(w, authCode(err))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tracks, err := h.spotify.RecentlyPlayed(ctx, tok.AccessToken, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to fetch recently played tracks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

// redirectResult sends the browser back to the site with the flow
// outcome in the query string.
func (h *Handlers) redirectResult(w http.ResponseWriter, r *http.Request, errCode string) {
	values := url.Values{}
	if errCode == "" {
		values.Set("spotify", "success")
	} else {
		values.Set("spotify", "error")
		values.Set("code", errCode)
	}
	http.Redirect(w, r, h.redirectPath+"?"+values.Encode(), http.StatusTemporaryRedirect)
}

// presentedToken extracts the credential from the request. The bearer
// header wins; the legacy x-token headers remain supported for clients
// that predate it.
func presentedToken(r *http.Request) (tokenValue string, refreshMode bool, ok bool) {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:], false, true
	}
	if legacy := r.Header.Get(headerLegacyToken); legacy != "" {
		return legacy, r.Header.Get(headerLegacyTokenType) == "refresh", true
	}
	return "", false, false
}

// authCode maps token service failures to the wire-level machine codes.
func authCode(err error) string {
	switch {
	case errors.Is(err, spotify.ErrInvalidRefreshToken):
		return codeInvalidRefreshToken
	case errors.Is(err, token.ErrNotAuthenticated):
		return codeAuthRequired
	case errors.Is(err, store.ErrUnavailable):
		// Fail closed: an unreachable store reads as not authenticated.
		return codeAuthRequired
	default:
		return codeTokenFailed
	}
}

func setNewTokenHeaders(w http.ResponseWriter, tok *token.Token) {
	w.Header().Set(headerNewAccessToken, tok.AccessToken)
	w.Header().Set(headerAccessExpiresIn, strconv.Itoa(tok.ExpiresIn))
}

// playbackETag derives a cache validator from the fields a consumer can
// observe, so identical payloads collapse into 304s.
func playbackETag(state *spotify.PlaybackState) string {
	hash := fnv.New64a()
	fmt.Fprintf(hash, "%t\x00%s", state.IsPlaying, state.Track.Identity())
	if state.Track != nil {
		fmt.Fprintf(hash, "\x00%s\x00%s", state.Track.ImageURL, state.Track.SongURL)
	}
	return fmt.Sprintf("%q", strconv.FormatUint(hash.Sum64(), 16))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeAuthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": code})
}

// writeProviderError passes an unexpected provider status through,
// anything else becomes a 502.
func writeProviderError(w http.ResponseWriter, err error) {
	var pErr *spotify.ProviderError
	if errors.As(err, &pErr) {
		writeError(w, pErr.Status, "Failed to get current playing track from Spotify")
		return
	}
	writeError(w, http.StatusBadGateway, "Failed to get current playing track from Spotify")
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
