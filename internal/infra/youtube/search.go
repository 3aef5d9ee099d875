package youtube

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	zlog "github.com/rs/zerolog/log"
)

// ErrNoResults is returned when no search backend found a video.
var ErrNoResults = errors.New("no search results")

// Result is a single search hit.
type Result struct {
	URL      string
	Title    string
	Duration time.Duration
}

// Searcher finds videos for free-text queries. YouTube search is tried
// first, YouTube Music second.
type Searcher struct {
	httpClient *http.Client
	timeout    time.Duration
}

// SearcherConfig represents search configuration.
type SearcherConfig struct {
	Proxy   string
	Timeout time.Duration
}

// NewSearcher creates a searcher.
func NewSearcher(cfg SearcherConfig) (*Searcher, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Proxy != "" {
		proxy, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, errors.Wrap(err, "invalid proxy url")
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}
	return &Searcher{httpClient: httpClient, timeout: cfg.Timeout}, nil
}

// Search returns the best match for query.
func (s *Searcher) Search(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.searchVideos(ctx, query)
	if err == nil {
		return res, nil
	}
	zlog.Debug().Msgf("youtube: video search failed, trying music search: query=%s err=%v", query, err)

	res, merr := s.searchMusic(ctx, query)
	if merr != nil {
		return nil, errors.CombineErrors(err, merr)
	}
	return res, nil
}

func (s *Searcher) searchVideos(ctx context.Context, query string) (*Result, error) {
	c := ytsearch.NewClient(s.httpClient)
	res, err := c.Search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "youtube search")
	}
	for _, r := range res.Results {
		if r.VideoID == "" {
			continue
		}
		return &Result{
			URL:      WatchURL(r.VideoID),
			Title:    r.Title,
			Duration: parseDurationColon(r.Duration),
		}, nil
	}
	return nil, ErrNoResults
}

// searchMusic runs the YouTube Music search, which takes no context, on its
// own goroutine.
func (s *Searcher) searchMusic(ctx context.Context, query string) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			done <- outcome{err: errors.Wrap(err, "youtube music search")}
			return
		}
		if r == nil {
			done <- outcome{err: ErrNoResults}
			return
		}
		for _, t := range r.Tracks {
			if t.VideoID == "" {
				continue
			}
			title := t.Title
			if len(t.Artists) > 0 {
				title = t.Artists[0].Name + " - " + t.Title
			}
			done <- outcome{res: &Result{
				URL:      WatchURL(t.VideoID),
				Title:    title,
				Duration: time.Duration(t.Duration) * time.Second,
			}}
			return
		}
		done <- outcome{err: ErrNoResults}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
