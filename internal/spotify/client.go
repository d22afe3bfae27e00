package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	apiBaseURL = "https://api.spotify.com/v1"
	userAgent  = "spotify-now-playing/1.0"
)

// ErrTokenExpired is returned when the provider answers 401. The caller
// must refresh the access token and retry exactly once before giving up.
var ErrTokenExpired = errors.New("access token expired")

// ProviderError is an unexpected status from the playback endpoint.
type ProviderError struct {
	Status int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("spotify API error: status %d", e.Status)
}

// Client calls the Spotify Web API playback endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Spotify Web API client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: apiBaseURL,
	}
}

// NewClientWithBaseURL creates a client against a different API root.
// Tests point it at a fake provider.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = baseURL
	return c
}

// CurrentlyPlaying fetches and normalizes the currently-playing track.
// A 204 from the provider means nothing is playing and is a success,
// not an error.
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*PlaybackState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/player/currently-playing", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return &PlaybackState{IsPlaying: false, Track: nil}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrTokenExpired
	case resp.StatusCode != http.StatusOK:
		return nil, &ProviderError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var playing currentlyPlayingResponse
	if err := json.Unmarshal(body, &playing); err != nil {
		return nil, fmt.Errorf("parsing currently playing response: %w", err)
	}

	return normalize(&playing), nil
}

// normalize reduces the provider payload to the simplified shape. A null
// item or is_playing=false is "not playing" regardless of payload noise.
func normalize(playing *currentlyPlayingResponse) *PlaybackState {
	if !playing.IsPlaying || playing.Item == nil {
		return &PlaybackState{IsPlaying: false, Track: nil}
	}

	item := playing.Item
	artists := make([]string, len(item.Artists))
	for i, a := range item.Artists {
		artists[i] = a.Name
	}

	imageURL := ""
	if len(item.Album.Images) > 0 {
		imageURL = item.Album.Images[0].URL
	}

	return &PlaybackState{
		IsPlaying: true,
		Track: &Track{
			Title:    item.Name,
			Artist:   strings.Join(artists, ", "),
			Album:    item.Album.Name,
			ImageURL: imageURL,
			SongURL:  item.ExternalURLs.Spotify,
		},
	}
}
