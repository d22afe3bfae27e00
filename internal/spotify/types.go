package spotify

// Track is the simplified track shape exposed to consumers.
type Track struct {
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	ImageURL string `json:"imageUrl"`
	SongURL  string `json:"songUrl"`
}

// Identity returns the de-duplication key for a track. Two tracks with
// the same title, artist and album are treated as the same track; the
// provider's opaque id is deliberately not part of the simplified shape.
func (t *Track) Identity() string {
	if t == nil {
		return ""
	}
	return t.Title + "\x00" + t.Artist + "\x00" + t.Album
}

// PlaybackState is the normalized now-playing value. It is derived fresh
// on every successful fetch and never persisted.
type PlaybackState struct {
	IsPlaying bool   `json:"isPlaying"`
	Track     *Track `json:"track"`
}

// RecentTrack is a simplified recently-played entry.
type RecentTrack struct {
	Track
	PlayedAt string `json:"playedAt"`
}

// currentlyPlayingResponse is the provider wire format for the
// currently-playing endpoint, reduced to the fields we read.
type currentlyPlayingResponse struct {
	IsPlaying bool       `json:"is_playing"`
	Item      *trackItem `json:"item"`
}

type trackItem struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}
