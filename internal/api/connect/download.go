package connect

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/cache"
	"github.com/osa030/guildbox/internal/app/resolve"
)

const downloadChunkSize = 256 << 10

var errURLRequired = errors.New("url is required")

// Fetcher makes the audio of a video link available locally.
type Fetcher interface {
	Fetch(ctx context.Context, link string) (*cache.Entry, error)
}

// DownloadRequest asks for the audio file of a YouTube link.
type DownloadRequest struct {
	URL string `json:"url"`
}

// DownloadChunk is one piece of a downloaded file. Only the first chunk
// carries the file metadata.
type DownloadChunk struct {
	Title    string `json:"title,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Data     []byte `json:"data"`
}

// Download streams the audio of a YouTube link to the caller without
// queueing it.
func (s *QueueService) Download(
	ctx context.Context,
	req *connect.Request[DownloadRequest],
	stream *connect.ServerStream[DownloadChunk],
) error {
	if req.Msg.URL == "" {
		return connect.NewError(connect.CodeInvalidArgument, errURLRequired)
	}

	entry, err := s.fetcher.Fetch(ctx, req.Msg.URL)
	if err != nil {
		if errors.Is(err, resolve.ErrNotVideoURL) {
			return connect.NewError(connect.CodeInvalidArgument, err)
		}
		zlog.Warn().Msgf("api: download failed: url=%s err=%v", req.Msg.URL, err)
		return connect.NewError(connect.CodeUnavailable, errors.New("download failed"))
	}

	f, err := os.Open(entry.FilePath)
	if err != nil {
		zlog.Error().Msgf("api: failed to open downloaded file: path=%s err=%v", entry.FilePath, err)
		return connect.NewError(connect.CodeInternal, errors.New("downloaded file is gone"))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}

	chunk := DownloadChunk{
		Title:    entry.Title,
		FileName: filepath.Base(entry.FilePath),
		Size:     info.Size(),
	}
	buf := make([]byte, downloadChunkSize)
	sent := false
	for {
		n, rerr := f.Read(buf)
		if n > 0 || (!sent && rerr == io.EOF) {
			chunk.Data = buf[:n]
			if err := stream.Send(&chunk); err != nil {
				return err
			}
			chunk = DownloadChunk{}
			sent = true
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return connect.NewError(connect.CodeInternal, rerr)
		}
	}

	zlog.Info().Msgf("api: download served: url=%s title=%s bytes=%d", req.Msg.URL, entry.Title, info.Size())
	return nil
}
