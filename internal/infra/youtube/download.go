package youtube

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"
)

// Download is a finished audio download in the temp directory.
type Download struct {
	Path     string
	Title    string
	Duration time.Duration
}

// DownloaderConfig represents yt-dlp configuration.
type DownloaderConfig struct {
	TempDir     string // Defaults to the OS temp directory
	AudioFormat string // mp3, m4a, opus or webm
	Proxy       string
	Binary      string // yt-dlp executable; looked up in PATH when empty
}

// Downloader extracts audio with yt-dlp.
type Downloader struct {
	config DownloaderConfig
}

// NewDownloader creates a downloader, creating the temp directory if needed.
func NewDownloader(cfg DownloaderConfig) (*Downloader, error) {
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "guildbox")
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create temp directory")
	}
	return &Downloader{config: cfg}, nil
}

// printTemplate makes yt-dlp report the final file once post-processing is
// done, tab separated with the title and duration.
const printTemplate = "after_move:%(filepath)s\t%(title)s\t%(duration)s"

// Download fetches the audio of a single video.
func (d *Downloader) Download(ctx context.Context, videoURL string) (*Download, error) {
	base := uuid.New().String()

	cmd := ytdlp.New().
		NoWarnings().
		NoPlaylist().
		ExtractAudio().
		AudioFormat(d.config.AudioFormat).
		Output(filepath.Join(d.config.TempDir, base+".%(ext)s")).
		Print(printTemplate)

	if d.config.Proxy != "" {
		cmd.Proxy(d.config.Proxy)
	}
	if d.config.Binary != "" {
		cmd.SetExecutable(d.config.Binary)
	}

	start := time.Now()
	res, err := cmd.Run(ctx, videoURL)
	if err != nil {
		d.removePartial(base)
		return nil, errors.Wrapf(err, "yt-dlp failed: url=%s", videoURL)
	}

	dl, ok := parsePrintOutput(res.Stdout)
	if !ok {
		dl, ok = d.find(base)
	}
	if !ok {
		return nil, errors.Newf("yt-dlp produced no file: url=%s", videoURL)
	}

	zlog.Info().Msgf("youtube: downloaded: url=%s file=%s took=%s", videoURL, filepath.Base(dl.Path), time.Since(start).Round(time.Millisecond))
	return dl, nil
}

// parsePrintOutput reads the last line printed with printTemplate.
func parsePrintOutput(stdout string) (*Download, bool) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		parts := strings.Split(strings.TrimSpace(lines[i]), "\t")
		if len(parts) < 3 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		return &Download{
			Path:     parts[0],
			Title:    parts[1],
			Duration: parseSeconds(parts[2]),
		}, true
	}
	return nil, false
}

// find locates the output file when yt-dlp printed nothing usable.
func (d *Downloader) find(base string) (*Download, bool) {
	matches, _ := filepath.Glob(filepath.Join(d.config.TempDir, base+".*"))
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") {
			continue
		}
		return &Download{Path: m}, true
	}
	return nil, false
}

func (d *Downloader) removePartial(base string) {
	matches, _ := filepath.Glob(filepath.Join(d.config.TempDir, base+".*"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			zlog.Warn().Msgf("youtube: failed to remove partial download: file=%s err=%v", m, err)
		}
	}
}
