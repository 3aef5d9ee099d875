// Package resolve turns user queries into playable songs: it searches,
// consults the content cache and downloads on a miss.
package resolve

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/guildbox/internal/app/cache"
	"github.com/osa030/guildbox/internal/domain/song"
	"github.com/osa030/guildbox/internal/infra/spotify"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

var (
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("empty query")
	// ErrNotFound is returned when a search finds nothing.
	ErrNotFound = errors.New("no matching song found")
	// ErrSpotifyDisabled is returned for Spotify links without credentials.
	ErrSpotifyDisabled = errors.New("spotify links are not enabled")
	// ErrNotVideoURL is returned by Fetch for anything but a YouTube video link.
	ErrNotVideoURL = errors.New("not a youtube video url")
)

// Query is a single song request.
type Query struct {
	Text        string // Free text, YouTube URL or Spotify track link
	RequestedBy string
}

// Searcher finds a video for free text.
type Searcher interface {
	Search(ctx context.Context, query string) (*youtube.Result, error)
}

// Downloader fetches the audio of a URL into a temporary file.
type Downloader interface {
	Download(ctx context.Context, url string) (*youtube.Download, error)
}

// Catalog maps Spotify links to search queries.
type Catalog interface {
	TrackQuery(ctx context.Context, link string) (string, error)
	CollectionQueries(ctx context.Context, link string) ([]string, error)
}

// Cache is the content cache keyed by source URL.
type Cache interface {
	Lookup(key string) (*cache.Entry, bool)
	Store(key, tmpPath, title string) *cache.Entry
}

// Config holds resolver configuration.
type Config struct {
	DownloadTimeout time.Duration // Bound on a single download; zero waits forever
}

// Resolver resolves queries to songs.
type Resolver struct {
	searcher   Searcher
	downloader Downloader
	catalog    Catalog // nil when Spotify is not configured
	cache      Cache
	config     Config

	downloads singleflight.Group
}

// New creates a resolver. catalog may be nil.
func New(searcher Searcher, downloader Downloader, catalog Catalog, c Cache, cfg Config) *Resolver {
	return &Resolver{
		searcher:   searcher,
		downloader: downloader,
		catalog:    catalog,
		cache:      c,
		config:     cfg,
	}
}

// fetched is the shared result of one download.
type fetched struct {
	entry    *cache.Entry
	duration time.Duration
}

// Resolve returns a playable song for q. A cached file is reused while it is
// fresh; otherwise the audio is downloaded once no matter how many callers
// ask for the same URL concurrently.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*song.Request, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	var (
		sourceURL string
		title     string
		duration  time.Duration
	)

	switch {
	case spotify.Kind(text) == spotify.KindTrack:
		if r.catalog == nil {
			return nil, ErrSpotifyDisabled
		}
		query, err := r.catalog.TrackQuery(ctx, text)
		if err != nil {
			return nil, errors.Wrap(err, "spotify lookup")
		}
		res, err := r.search(ctx, query)
		if err != nil {
			return nil, err
		}
		sourceURL, title, duration = res.URL, res.Title, res.Duration

	case spotify.IsCollection(text):
		return nil, errors.Newf("collections must be expanded first: %s", text)

	case youtube.IsURL(text):
		sourceURL = youtube.CanonicalURL(text)

	default:
		res, err := r.search(ctx, text)
		if err != nil {
			return nil, err
		}
		sourceURL, title, duration = res.URL, res.Title, res.Duration
	}

	if e, ok := r.cache.Lookup(sourceURL); ok {
		zlog.Debug().Msgf("resolve: cache hit: url=%s", sourceURL)
		if title == "" {
			title = e.Title
		}
		return r.song(q, sourceURL, title, e.FilePath, duration), nil
	}

	f, err := r.download(ctx, sourceURL, title)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = f.entry.Title
	}
	if duration == 0 {
		duration = f.duration
	}
	return r.song(q, sourceURL, title, f.entry.FilePath, duration), nil
}

// Fetch makes the audio of a YouTube link available in the cache without
// queueing it anywhere.
func (r *Resolver) Fetch(ctx context.Context, link string) (*cache.Entry, error) {
	id := youtube.VideoID(link)
	if id == "" {
		return nil, errors.Wrapf(ErrNotVideoURL, "%q", link)
	}
	sourceURL := youtube.WatchURL(id)

	if e, ok := r.cache.Lookup(sourceURL); ok {
		zlog.Debug().Msgf("resolve: cache hit: url=%s", sourceURL)
		return e, nil
	}
	f, err := r.download(ctx, sourceURL, "")
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("resolve: fetched: url=%s title=%s", sourceURL, f.entry.Title)
	return f.entry, nil
}

// Expand splits text into the queries it stands for: the tracks of a
// Spotify playlist or album in order, or text itself.
func (r *Resolver) Expand(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	if !spotify.IsCollection(text) {
		return []string{text}, nil
	}
	if r.catalog == nil {
		return nil, ErrSpotifyDisabled
	}

	queries, err := r.catalog.CollectionQueries(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "spotify lookup")
	}
	if len(queries) == 0 {
		return nil, ErrNotFound
	}
	zlog.Info().Msgf("resolve: expanded collection: link=%s tracks=%d", text, len(queries))
	return queries, nil
}

func (r *Resolver) search(ctx context.Context, query string) (*youtube.Result, error) {
	res, err := r.searcher.Search(ctx, query)
	if errors.Is(err, youtube.ErrNoResults) {
		return nil, errors.Wrapf(ErrNotFound, "query=%s", query)
	}
	if err != nil {
		return nil, errors.Wrap(err, "search")
	}
	return res, nil
}

// download fetches url once per concurrent burst. The download itself is
// detached from ctx so that one impatient caller does not fail the others.
func (r *Resolver) download(ctx context.Context, url, title string) (*fetched, error) {
	ch := r.downloads.DoChan(url, func() (any, error) {
		dctx := context.WithoutCancel(ctx)
		if r.config.DownloadTimeout > 0 {
			var cancel context.CancelFunc
			dctx, cancel = context.WithTimeout(dctx, r.config.DownloadTimeout)
			defer cancel()
		}

		// Another burst may have finished while this one was queued.
		if e, ok := r.cache.Lookup(url); ok {
			return &fetched{entry: e}, nil
		}

		dl, err := r.downloader.Download(dctx, url)
		if err != nil {
			return nil, err
		}
		name := title
		if name == "" {
			name = dl.Title
		}
		if name == "" {
			name = url
		}
		return &fetched{entry: r.cache.Store(url, dl.Path, name), duration: dl.Duration}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, errors.Wrap(res.Err, "download")
		}
		if res.Shared {
			zlog.Debug().Msgf("resolve: shared download: url=%s", url)
		}
		return res.Val.(*fetched), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resolver) song(q Query, url, title, path string, duration time.Duration) *song.Request {
	return &song.Request{
		Title:       title,
		SourceURL:   url,
		FilePath:    path,
		Duration:    duration,
		RequestedBy: q.RequestedBy,
	}
}
