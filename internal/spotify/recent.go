package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	spotifyapi "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// RecentlyPlayed fetches the user's most recently played tracks,
// normalized to the simplified track shape. limit is clamped to the
// provider maximum of 50.
func (c *Client) RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]RecentTrack, error) {
	if limit <= 0 {
		limit = 5
	}
	if limit > 50 {
		limit = 50
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	httpClient.Timeout = c.httpClient.Timeout
	api := spotifyapi.New(httpClient)

	items, err := api.PlayerRecentlyPlayedOpt(ctx, &spotifyapi.RecentlyPlayedOptions{Limit: spotifyapi.Numeric(limit)})
	if err != nil {
		return nil, fmt.Errorf("fetching recently played: %w", err)
	}

	tracks := make([]RecentTrack, 0, len(items))
	for _, item := range items {
		artists := make([]string, len(item.Track.Artists))
		for i, a := range item.Track.Artists {
			artists[i] = a.Name
		}

		imageURL := ""
		if len(item.Track.Album.Images) > 0 {
			imageURL = item.Track.Album.Images[0].URL
		}

		tracks = append(tracks, RecentTrack{
			Track: Track{
				Title:    item.Track.Name,
				Artist:   strings.Join(artists, ", "),
				Album:    item.Track.Album.Name,
				ImageURL: imageURL,
				SongURL:  item.Track.ExternalURLs["spotify"],
			},
			PlayedAt: item.PlayedAt.UTC().Format(time.RFC3339),
		})
	}
	return tracks, nil
}
