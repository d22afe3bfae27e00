package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const playingJSON = `{
	"is_playing": true,
	"item": {
		"name": "Paranoid Android",
		"artists": [{"name": "Radiohead"}],
		"album": {
			"name": "OK Computer",
			"images": [
				{"url": "https://i.scdn.co/image/large"},
				{"url": "https://i.scdn.co/image/small"}
			]
		},
		"external_urls": {"spotify": "https://open.spotify.com/track/abc"}
	}
}`

func newTestClient(server *httptest.Server) *Client {
	return &Client{
		httpClient: server.Client(),
		baseURL:    server.URL,
	}
}

func TestCurrentlyPlaying(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		want       *PlaybackState
		wantErr    error
		wantStatus int
	}{
		{
			name:   "playing track",
			status: http.StatusOK,
			body:   playingJSON,
			want: &PlaybackState{
				IsPlaying: true,
				Track: &Track{
					Title:    "Paranoid Android",
					Artist:   "Radiohead",
					Album:    "OK Computer",
					ImageURL: "https://i.scdn.co/image/large",
					SongURL:  "https://open.spotify.com/track/abc",
				},
			},
		},
		{
			name:   "multiple artists joined in provider order",
			status: http.StatusOK,
			body: `{
				"is_playing": true,
				"item": {
					"name": "Us Against the World",
					"artists": [{"name": "Jade"}, {"name": "Kalin"}, {"name": "Myles"}],
					"album": {"name": "Singles", "images": []},
					"external_urls": {"spotify": "https://open.spotify.com/track/def"}
				}
			}`,
			want: &PlaybackState{
				IsPlaying: true,
				Track: &Track{
					Title:   "Us Against the World",
					Artist:  "Jade, Kalin, Myles",
					Album:   "Singles",
					SongURL: "https://open.spotify.com/track/def",
				},
			},
		},
		{
			name:   "not playing with null item",
			status: http.StatusOK,
			body:   `{"is_playing": false, "item": null}`,
			want:   &PlaybackState{IsPlaying: false, Track: nil},
		},
		{
			name:   "paused track with payload noise",
			status: http.StatusOK,
			body:   `{"is_playing": false, "item": {"name": "Something"}, "progress_ms": 1234}`,
			want:   &PlaybackState{IsPlaying: false, Track: nil},
		},
		{
			name:   "204 no content is a success",
			status: http.StatusNoContent,
			want:   &PlaybackState{IsPlaying: false, Track: nil},
		},
		{
			name:    "401 surfaces token expiry",
			status:  http.StatusUnauthorized,
			body:    `{"error": {"status": 401, "message": "The access token expired"}}`,
			wantErr: ErrTokenExpired,
		},
		{
			name:       "unexpected status becomes ProviderError",
			status:     http.StatusTooManyRequests,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "server error becomes ProviderError",
			status:     http.StatusBadGateway,
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
					t.Errorf("Authorization header = %q, want %q", got, "Bearer test-token")
				}
				w.WriteHeader(tt.status)
				if tt.body != "" {
					w.Write([]byte(tt.body))
				}
			}))
			defer server.Close()

			state, err := newTestClient(server).CurrentlyPlaying(context.Background(), "test-token")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CurrentlyPlaying() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if tt.wantStatus != 0 {
				var pErr *ProviderError
				if !errors.As(err, &pErr) {
					t.Fatalf("CurrentlyPlaying() error = %v, want ProviderError", err)
				}
				if pErr.Status != tt.wantStatus {
					t.Errorf("ProviderError.Status = %d, want %d", pErr.Status, tt.wantStatus)
				}
				return
			}
			if err != nil {
				t.Fatalf("CurrentlyPlaying() error = %v", err)
			}

			if state.IsPlaying != tt.want.IsPlaying {
				t.Errorf("IsPlaying = %v, want %v", state.IsPlaying, tt.want.IsPlaying)
			}
			if (state.Track == nil) != (tt.want.Track == nil) {
				t.Fatalf("Track = %+v, want %+v", state.Track, tt.want.Track)
			}
			if state.Track != nil && *state.Track != *tt.want.Track {
				t.Errorf("Track = %+v, want %+v", *state.Track, *tt.want.Track)
			}
		})
	}
}

func TestTrackIdentity(t *testing.T) {
	a := &Track{Title: "Song", Artist: "Artist", Album: "Album", ImageURL: "x"}
	b := &Track{Title: "Song", Artist: "Artist", Album: "Album", ImageURL: "y"}
	c := &Track{Title: "Song", Artist: "Other", Album: "Album"}

	if a.Identity() != b.Identity() {
		t.Error("tracks differing only in image must share identity")
	}
	if a.Identity() == c.Identity() {
		t.Error("tracks with different artists must not share identity")
	}

	var nilTrack *Track
	if nilTrack.Identity() != "" {
		t.Error("nil track identity must be empty")
	}
}
