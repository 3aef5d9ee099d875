package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/app/cache"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

type fakeSearcher struct {
	results map[string]*youtube.Result
	queries []string
	mu      sync.Mutex
}

func (s *fakeSearcher) Search(ctx context.Context, query string) (*youtube.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if r, ok := s.results[query]; ok {
		return r, nil
	}
	return nil, youtube.ErrNoResults
}

type fakeDownloader struct {
	dir     string
	calls   atomic.Int32
	release chan struct{} // nil downloads immediately
	err     error
}

func (d *fakeDownloader) Download(ctx context.Context, url string) (*youtube.Download, error) {
	n := d.calls.Add(1)
	if d.release != nil {
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	path := filepath.Join(d.dir, "dl-"+string(rune('a'+n))+".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return nil, err
	}
	return &youtube.Download{Path: path, Title: "Downloaded Title", Duration: 200 * time.Second}, nil
}

type fakeCatalog struct{}

func (fakeCatalog) TrackQuery(ctx context.Context, link string) (string, error) {
	return "YOASOBI - Idol", nil
}

func (fakeCatalog) CollectionQueries(ctx context.Context, link string) ([]string, error) {
	return []string{"A - One", "B - Two", "C - Three"}, nil
}

func newTestResolver(t *testing.T, catalog Catalog) (*Resolver, *fakeSearcher, *fakeDownloader, *cache.Cache) {
	t.Helper()
	c, err := cache.New(cache.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	s := &fakeSearcher{results: map[string]*youtube.Result{
		"idol":           {URL: "https://www.youtube.com/watch?v=ZRtdQ81jPUQ", Title: "YOASOBI - Idol", Duration: 213 * time.Second},
		"YOASOBI - Idol": {URL: "https://www.youtube.com/watch?v=ZRtdQ81jPUQ", Title: "YOASOBI - Idol (Official Video)"},
	}}
	d := &fakeDownloader{dir: t.TempDir()}
	return New(s, d, catalog, c, Config{DownloadTimeout: time.Minute}), s, d, c
}

func TestResolver_SearchDownloadsAndCaches(t *testing.T) {
	r, _, d, c := newTestResolver(t, nil)
	ctx := context.Background()

	req, err := r.Resolve(ctx, Query{Text: "idol", RequestedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "YOASOBI - Idol", req.Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=ZRtdQ81jPUQ", req.SourceURL)
	assert.Equal(t, 213*time.Second, req.Duration)
	assert.Equal(t, "alice", req.RequestedBy)
	assert.Equal(t, c.Dir(), filepath.Dir(req.FilePath))
	assert.FileExists(t, req.FilePath)

	again, err := r.Resolve(ctx, Query{Text: "idol", RequestedBy: "bob"})
	require.NoError(t, err)
	assert.Equal(t, req.FilePath, again.FilePath)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestResolver_DirectURL(t *testing.T) {
	r, s, d, _ := newTestResolver(t, nil)

	req, err := r.Resolve(context.Background(), Query{Text: "https://youtu.be/ZRtdQ81jPUQ"})
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/watch?v=ZRtdQ81jPUQ", req.SourceURL)
	assert.Equal(t, "Downloaded Title", req.Title)
	assert.Equal(t, 200*time.Second, req.Duration)
	assert.Empty(t, s.queries)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestResolver_ConcurrentResolutionsShareDownload(t *testing.T) {
	r, _, d, _ := newTestResolver(t, nil)
	d.release = make(chan struct{})

	var wg sync.WaitGroup
	paths := make([]string, 5)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := r.Resolve(context.Background(), Query{Text: "idol"})
			if assert.NoError(t, err) {
				paths[i] = req.FilePath
			}
		}(i)
	}

	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(d.release)
	wg.Wait()

	assert.Equal(t, int32(1), d.calls.Load())
	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
}

func TestResolver_CallerCancelDoesNotFailDownload(t *testing.T) {
	r, _, d, c := newTestResolver(t, nil)
	d.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, Query{Text: "idol"})
		errCh <- err
	}()

	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(d.release)
	require.Eventually(t, func() bool {
		_, ok := c.Lookup("https://www.youtube.com/watch?v=ZRtdQ81jPUQ")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestResolver_Errors(t *testing.T) {
	r, _, d, _ := newTestResolver(t, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = r.Resolve(ctx, Query{Text: "nothing matches this"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(ctx, Query{Text: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"})
	assert.ErrorIs(t, err, ErrSpotifyDisabled)

	d.err = errors.New("yt-dlp exploded")
	_, err = r.Resolve(ctx, Query{Text: "idol"})
	assert.ErrorContains(t, err, "yt-dlp exploded")
}

func TestResolver_SpotifyTrack(t *testing.T) {
	r, s, _, _ := newTestResolver(t, fakeCatalog{})

	req, err := r.Resolve(context.Background(), Query{Text: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"})
	require.NoError(t, err)
	assert.Equal(t, []string{"YOASOBI - Idol"}, s.queries)
	assert.Equal(t, "YOASOBI - Idol (Official Video)", req.Title)
	assert.Equal(t, 200*time.Second, req.Duration, "download duration fills in a missing search duration")
}

func TestResolver_Expand(t *testing.T) {
	r, _, _, _ := newTestResolver(t, nil)
	ctx := context.Background()

	queries, err := r.Expand(ctx, "idol")
	require.NoError(t, err)
	assert.Equal(t, []string{"idol"}, queries)

	_, err = r.Expand(ctx, "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M")
	assert.ErrorIs(t, err, ErrSpotifyDisabled)

	r, _, _, _ = newTestResolver(t, fakeCatalog{})
	queries, err = r.Expand(ctx, "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M")
	require.NoError(t, err)
	assert.Equal(t, []string{"A - One", "B - Two", "C - Three"}, queries)
}

func TestResolver_Fetch(t *testing.T) {
	r, s, d, c := newTestResolver(t, nil)
	ctx := context.Background()

	e, err := r.Fetch(ctx, "https://youtu.be/ZRtdQ81jPUQ")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/watch?v=ZRtdQ81jPUQ", e.Key)
	assert.Equal(t, "Downloaded Title", e.Title)
	assert.Equal(t, c.Dir(), filepath.Dir(e.FilePath))
	assert.FileExists(t, e.FilePath)

	again, err := r.Fetch(ctx, "https://www.youtube.com/watch?v=ZRtdQ81jPUQ")
	require.NoError(t, err)
	assert.Equal(t, e.FilePath, again.FilePath)
	assert.Equal(t, int32(1), d.calls.Load())
	assert.Empty(t, s.queries)

	for _, link := range []string{"", "idol", "https://open.spotify.com/track/abc"} {
		_, err := r.Fetch(ctx, link)
		assert.ErrorIs(t, err, ErrNotVideoURL, link)
	}
}
