// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// MaxCollectionTracks caps how many tracks a playlist or album expands to.
const MaxCollectionTracks = 50

// Track is the subset of Spotify track metadata used to search for audio.
type Track struct {
	ID       string
	Name     string
	Artists  []string
	Duration time.Duration
}

// Query returns the "artist - title" search query for the track.
func (t Track) Query() string {
	if len(t.Artists) == 0 {
		return t.Name
	}
	return fmt.Sprintf("%s - %s", t.Artists[0], t.Name)
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
}

// New creates a new Spotify client authenticated with client credentials.
// Only public catalog data is available.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if _, err := auth.Token(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to obtain spotify token")
	}

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     spotify.New(auth.Client(ctx)),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, input string) (*Track, error) {
	id := extractID(input, "track")
	if id == "" {
		return nil, errors.New("invalid track URL")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	t := convertTrack(result.SimpleTrack)
	return &t, nil
}

// GetPlaylistTracks retrieves up to limit tracks of a playlist, in playlist
// order. Episodes are skipped.
func (c *Client) GetPlaylistTracks(ctx context.Context, input string, limit int) ([]Track, error) {
	playlistID := extractID(input, "playlist")
	if playlistID == "" {
		return nil, errors.New("invalid playlist URL")
	}

	var tracks []Track
	offset := 0
	pageSize := 100

	for len(tracks) < limit {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get playlist items")
		}

		for _, item := range page.Items {
			// Only process tracks (exclude episodes)
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, convertTrack(item.Track.Track.SimpleTrack))
			}
		}

		if len(page.Items) < pageSize {
			break
		}
		offset += pageSize
	}

	if len(tracks) > limit {
		tracks = tracks[:limit]
	}
	return tracks, nil
}

// GetAlbumTracks retrieves up to limit tracks of an album.
func (c *Client) GetAlbumTracks(ctx context.Context, input string, limit int) ([]Track, error) {
	albumID := extractID(input, "album")
	if albumID == "" {
		return nil, errors.New("invalid album URL")
	}

	var page *spotify.SimpleTrackPage
	err := c.retry(ctx, func() error {
		p, err := c.client.GetAlbumTracks(ctx, spotify.ID(albumID),
			spotify.Limit(50),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album tracks")
	}

	tracks := make([]Track, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		if len(tracks) >= limit {
			break
		}
		tracks = append(tracks, convertTrack(t))
	}
	return tracks, nil
}

// TrackQuery returns the search query for a track link.
func (c *Client) TrackQuery(ctx context.Context, link string) (string, error) {
	t, err := c.GetTrack(ctx, link)
	if err != nil {
		return "", err
	}
	return t.Query(), nil
}

// CollectionQueries returns the search queries for every track of a
// playlist or album link, capped at MaxCollectionTracks.
func (c *Client) CollectionQueries(ctx context.Context, link string) ([]string, error) {
	var (
		tracks []Track
		err    error
	)
	switch Kind(link) {
	case KindPlaylist:
		tracks, err = c.GetPlaylistTracks(ctx, link, MaxCollectionTracks)
	case KindAlbum:
		tracks, err = c.GetAlbumTracks(ctx, link, MaxCollectionTracks)
	default:
		return nil, errors.Newf("not a playlist or album link: %s", link)
	}
	if err != nil {
		return nil, err
	}

	queries := make([]string, len(tracks))
	for i, t := range tracks {
		queries[i] = t.Query()
	}
	return queries, nil
}

// convertTrack converts a Spotify track to Track.
func convertTrack(t spotify.SimpleTrack) Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}
	return Track{
		ID:       string(t.ID),
		Name:     t.Name,
		Artists:  artists,
		Duration: time.Duration(t.Duration) * time.Millisecond,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
