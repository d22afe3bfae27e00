// Package pollclient maintains a fresh playback state for display by
// polling the now-playing endpoint with caching and backoff.
package pollclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farukhdev/spotify-now-playing/internal/spotify"
)

// State is the polling loop's position in its lifecycle.
type State int

const (
	// StateIdle: not polling. The initial state, and the terminal one
	// after an authorization failure that retrying cannot fix.
	StateIdle State = iota

	// StatePolling: healthy, timer armed for the next cycle.
	StatePolling

	// StateBackoff: last cycle failed, timer armed with an error delay.
	StateBackoff

	// StateSuspended: the hosting surface is hidden; no network calls
	// until Resume.
	StateSuspended
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateBackoff:
		return "backoff"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Default scheduling parameters.
const (
	DefaultActiveInterval = 10 * time.Second
	DefaultIdleInterval   = 45 * time.Second
	DefaultBackoffBase    = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
	DefaultMaxRetries     = 5
)

// Snapshot is the observable result of the polling loop. The client
// never returns errors to its consumer; every failure resolves into
// this triple.
type Snapshot struct {
	Payload *spotify.PlaybackState
	Loading bool
	Err     string
}

// Config configures a polling client.
type Config struct {
	// BaseURL is the root of the now-playing service.
	BaseURL string

	// RefreshToken enables the fallback credential presentation when
	// the cached access token is missing or rejected.
	RefreshToken string

	// AccessToken seeds the bearer presentation; the client keeps it
	// current from the x-new-access-token response header.
	AccessToken string

	HTTPClient *http.Client

	ActiveInterval time.Duration
	IdleInterval   time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	MaxRetries     int
}

// Client is a long-lived, cancellable polling loop. All methods are
// safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu           sync.Mutex
	state        State
	seq          uint64
	inFlight     bool
	etag         string
	lastIdentity string
	lastPlaying  bool
	errCount     int
	snapshot     Snapshot
	accessToken  string
	timer        *time.Timer
	cancelFetch  context.CancelFunc
	closed       bool

	updates chan Snapshot
}

// New creates a polling client. Call Start to begin polling.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.ActiveInterval <= 0 {
		cfg.ActiveInterval = DefaultActiveInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	return &Client{
		cfg:         cfg,
		httpClient:  cfg.HTTPClient,
		accessToken: cfg.AccessToken,
		snapshot:    Snapshot{Loading: true},
		updates:     make(chan Snapshot, 16),
	}
}

// Start begins polling with an immediate fetch. No-op unless Idle.
func (c *Client) Start() {
	c.mu.Lock()
	if c.closed || c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StatePolling
	c.mu.Unlock()

	go c.fetchCycle()
}

// Suspend halts polling while the hosting surface is hidden: the
// pending timer is cancelled and any in-flight request aborted. No
// state mutation happens after suspension is requested.
func (c *Client) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == StateSuspended {
		return
	}
	c.state = StateSuspended
	c.stopTimerLocked()
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
}

// Resume restarts polling after Suspend, firing an immediate fetch.
func (c *Client) Resume() {
	c.mu.Lock()
	if c.closed || c.state != StateSuspended {
		c.mu.Unlock()
		return
	}
	c.state = StatePolling
	c.mu.Unlock()

	go c.fetchCycle()
}

// Close tears the client down. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.state = StateIdle
	c.stopTimerLocked()
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	close(c.updates)
}

// Snapshot returns the current observable state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// State returns the loop's lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Updates delivers a snapshot whenever the displayed state changes.
// Slow receivers drop updates rather than stall the loop; Snapshot
// always has the latest value.
func (c *Client) Updates() <-chan Snapshot {
	return c.updates
}

// resultKind classifies one fetch cycle's outcome.
type resultKind int

const (
	resultSuccess resultKind = iota
	resultNotModified
	resultTransientError
	resultTerminalError
	resultCancelled
)

// fetchResult carries everything a completed cycle learned.
type fetchResult struct {
	kind           resultKind
	payload        *spotify.PlaybackState
	etag           string
	newAccessToken string
	errMsg         string
}

// fetchCycle runs one poll cycle and schedules the next. The timer only
// re-arms after the cycle completes, so the timer itself can never
// overlap requests; the in-flight flag additionally guards against a
// manual Resume racing a timer-triggered cycle.
func (c *Client) fetchCycle() {
	c.mu.Lock()
	if c.closed || c.state == StateSuspended || c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	c.seq++
	seq := c.seq
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelFetch = cancel
	accessToken := c.accessToken
	etag := c.etag
	c.snapshot.Loading = true
	c.mu.Unlock()

	result := c.doFetch(ctx, accessToken, etag)
	cancel()
	c.apply(seq, result)
}

// apply folds a cycle result into the client state. A result whose
// sequence number has been superseded by a newer cycle is discarded:
// out-of-order network replies must not overwrite fresher state.
func (c *Client) apply(seq uint64, res fetchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.inFlight = false

	if c.closed || c.state == StateSuspended || seq != c.seq || res.kind == resultCancelled {
		// Resume can race an in-flight cycle: its immediate fetch was
		// swallowed by the in-flight guard, so discarding this result
		// must re-arm the loop or it stalls with no timer and no cycle.
		if !c.closed && c.state == StatePolling && c.timer == nil {
			c.scheduleLocked(0)
		}
		return
	}

	if res.newAccessToken != "" {
		c.accessToken = res.newAccessToken
	}

	switch res.kind {
	case resultSuccess:
		c.errCount = 0
		c.etag = res.etag
		c.snapshot.Loading = false
		c.snapshot.Err = ""

		identity := res.payload.Track.Identity()
		if identity != c.lastIdentity || res.payload.IsPlaying != c.lastPlaying || c.snapshot.Payload == nil {
			c.lastIdentity = identity
			c.lastPlaying = res.payload.IsPlaying
			c.snapshot.Payload = res.payload
			c.publishLocked()
		}

		c.state = StatePolling
		if res.payload.IsPlaying {
			c.scheduleLocked(c.cfg.ActiveInterval)
		} else {
			c.scheduleLocked(c.cfg.IdleInterval)
		}

	case resultNotModified:
		// Unchanged state counts as a success for backoff purposes.
		c.errCount = 0
		c.snapshot.Loading = false
		c.snapshot.Err = ""
		c.state = StatePolling
		c.scheduleLocked(c.cfg.IdleInterval)

	case resultTransientError:
		if c.errCount < c.cfg.MaxRetries {
			c.errCount++
		}
		c.snapshot.Loading = false
		c.snapshot.Err = res.errMsg
		c.publishLocked()
		c.state = StateBackoff
		c.scheduleLocked(c.backoffDelayLocked())

	case resultTerminalError:
		// Re-authorization requires user action; polling on is useless.
		c.snapshot.Loading = false
		c.snapshot.Err = res.errMsg
		c.publishLocked()
		c.state = StateIdle
		c.stopTimerLocked()
	}
}

// backoffDelayLocked computes min(base * 2^(k-1), max) for the current
// consecutive-error count k.
func (c *Client) backoffDelayLocked() time.Duration {
	delay := c.cfg.BackoffBase << (c.errCount - 1)
	if delay > c.cfg.BackoffMax || delay <= 0 {
		delay = c.cfg.BackoffMax
	}
	return delay
}

func (c *Client) scheduleLocked(delay time.Duration) {
	c.stopTimerLocked()
	c.timer = time.AfterFunc(delay, c.fetchCycle)
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Client) publishLocked() {
	select {
	case c.updates <- c.snapshot:
	default:
	}
}

// doFetch performs the HTTP request for one cycle. The bearer
// presentation is tried first; a 401/400 answer falls back once, within
// the same cycle, to the refresh-token presentation so the server can
// mint a fresh access token transparently.
func (c *Client) doFetch(ctx context.Context, accessToken, etag string) fetchResult {
	if accessToken == "" && c.cfg.RefreshToken != "" {
		return c.doRequest(ctx, c.cfg.RefreshToken, true, etag).fetchResult
	}

	res := c.doRequest(ctx, accessToken, false, etag)
	if !res.authRejected || c.cfg.RefreshToken == "" {
		return res.fetchResult
	}
	return c.doRequest(ctx, c.cfg.RefreshToken, true, etag).fetchResult
}

// requestResult adds the auth-rejection marker doFetch needs to decide
// on the fallback presentation.
type requestResult struct {
	fetchResult
	authRejected bool
}

func (c *Client) doRequest(ctx context.Context, tokenValue string, refreshMode bool, etag string) requestResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/now-playing", nil)
	if err != nil {
		return requestResult{fetchResult: fetchResult{kind: resultTransientError, errMsg: err.Error()}}
	}

	if refreshMode {
		req.Header.Set("x-token", tokenValue)
		req.Header.Set("x-token-type", "refresh")
	} else if tokenValue != "" {
		req.Header.Set("Authorization", "Bearer "+tokenValue)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return requestResult{fetchResult: fetchResult{kind: resultCancelled}}
		}
		return requestResult{fetchResult: fetchResult{kind: resultTransientError, errMsg: err.Error()}}
	}
	defer resp.Body.Close()

	newAccessToken := resp.Header.Get("x-new-access-token")

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return requestResult{fetchResult: fetchResult{kind: resultNotModified, newAccessToken: newAccessToken}}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		kind := resultTransientError
		if body.Error == "AUTH_REQUIRED" || body.Error == "INVALID_REFRESH_TOKEN" {
			kind = resultTerminalError
		}
		return requestResult{
			fetchResult:  fetchResult{kind: kind, errMsg: fmt.Sprintf("authorization rejected: %s", body.Error)},
			authRejected: true,
		}

	case resp.StatusCode != http.StatusOK:
		return requestResult{fetchResult: fetchResult{
			kind:   resultTransientError,
			errMsg: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}}
	}

	var payload spotify.PlaybackState
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return requestResult{fetchResult: fetchResult{kind: resultTransientError, errMsg: "parsing payload: " + err.Error()}}
	}

	return requestResult{fetchResult: fetchResult{
		kind:           resultSuccess,
		payload:        &payload,
		etag:           resp.Header.Get("ETag"),
		newAccessToken: newAccessToken,
	}}
}
