// Command now-playing-watch tails a now-playing service from the
// terminal, printing each track transition as it happens.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farukhdev/spotify-now-playing/internal/pollclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	baseURL := flag.String("url", "http://127.0.0.1:8080", "base URL of the now-playing service")
	accessToken := flag.String("access-token", os.Getenv("SPOTIFY_ACCESS_TOKEN"), "access token for the bearer presentation")
	refreshToken := flag.String("refresh-token", os.Getenv("SPOTIFY_REFRESH_TOKEN"), "refresh token for the fallback presentation")
	active := flag.Duration("active-interval", pollclient.DefaultActiveInterval, "poll interval while a track is playing")
	idle := flag.Duration("idle-interval", pollclient.DefaultIdleInterval, "poll interval while nothing is playing")
	flag.Parse()

	if *accessToken == "" && *refreshToken == "" {
		return fmt.Errorf("set SPOTIFY_ACCESS_TOKEN or SPOTIFY_REFRESH_TOKEN (or the matching flags)")
	}

	client := pollclient.New(pollclient.Config{
		BaseURL:        *baseURL,
		AccessToken:    *accessToken,
		RefreshToken:   *refreshToken,
		ActiveInterval: *active,
		IdleInterval:   *idle,
	})
	defer client.Close()
	client.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("watching %s\n", *baseURL)
	for {
		select {
		case snap, ok := <-client.Updates():
			if !ok {
				return nil
			}
			printSnapshot(snap)
			if client.State() == pollclient.StateIdle {
				// Terminal authorization failure; polling has stopped.
				return fmt.Errorf("%s", snap.Err)
			}
		case <-stop:
			fmt.Println("\nstopping")
			return nil
		}
	}
}

func printSnapshot(snap pollclient.Snapshot) {
	stamp := time.Now().Format("15:04:05")

	if snap.Err != "" {
		fmt.Printf("%s  error: %s\n", stamp, snap.Err)
		return
	}
	if snap.Payload == nil || !snap.Payload.IsPlaying {
		fmt.Printf("%s  nothing playing\n", stamp)
		return
	}

	t := snap.Payload.Track
	fmt.Printf("%s  %s by %s (%s)\n", stamp, t.Title, t.Artist, t.Album)
}
