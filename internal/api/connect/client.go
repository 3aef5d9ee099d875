package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/guildbox/internal/app/notification"
)

// QueueServiceClient is a client for the QueueService.
type QueueServiceClient struct {
	play        *connect.Client[PlayRequest, PlayResponse]
	queue       *connect.Client[TenantRequest, QueueResponse]
	nowPlaying  *connect.Client[TenantRequest, TenantStatus]
	skip        *connect.Client[TenantRequest, ActionResponse]
	pause       *connect.Client[TenantRequest, ActionResponse]
	resume      *connect.Client[TenantRequest, ActionResponse]
	togglePause *connect.Client[TenantRequest, ActionResponse]
	stop        *connect.Client[TenantRequest, ActionResponse]
	setVolume   *connect.Client[SetVolumeRequest, VolumeResponse]
	adjustVol   *connect.Client[AdjustVolumeRequest, VolumeResponse]
	stats       *connect.Client[TenantRequest, StatsResponse]
	subscribe   *connect.Client[SubscribeRequest, notification.Notification]
	download    *connect.Client[DownloadRequest, DownloadChunk]
}

// NewQueueServiceClient creates a QueueService client for the server at baseURL.
func NewQueueServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *QueueServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &QueueServiceClient{
		play:        connect.NewClient[PlayRequest, PlayResponse](httpClient, baseURL+playProcedure, opts...),
		queue:       connect.NewClient[TenantRequest, QueueResponse](httpClient, baseURL+queueProcedure, opts...),
		nowPlaying:  connect.NewClient[TenantRequest, TenantStatus](httpClient, baseURL+nowPlayingProcedure, opts...),
		skip:        connect.NewClient[TenantRequest, ActionResponse](httpClient, baseURL+skipProcedure, opts...),
		pause:       connect.NewClient[TenantRequest, ActionResponse](httpClient, baseURL+pauseProcedure, opts...),
		resume:      connect.NewClient[TenantRequest, ActionResponse](httpClient, baseURL+resumeProcedure, opts...),
		togglePause: connect.NewClient[TenantRequest, ActionResponse](httpClient, baseURL+togglePauseProcedure, opts...),
		stop:        connect.NewClient[TenantRequest, ActionResponse](httpClient, baseURL+stopProcedure, opts...),
		setVolume:   connect.NewClient[SetVolumeRequest, VolumeResponse](httpClient, baseURL+setVolumeProcedure, opts...),
		adjustVol:   connect.NewClient[AdjustVolumeRequest, VolumeResponse](httpClient, baseURL+adjustVolProcedure, opts...),
		stats:       connect.NewClient[TenantRequest, StatsResponse](httpClient, baseURL+statsProcedure, opts...),
		subscribe:   connect.NewClient[SubscribeRequest, notification.Notification](httpClient, baseURL+subscribeProcedure, opts...),
		download:    connect.NewClient[DownloadRequest, DownloadChunk](httpClient, baseURL+downloadProcedure, opts...),
	}
}

// Play calls QueueService.Play.
func (c *QueueServiceClient) Play(ctx context.Context, req *connect.Request[PlayRequest]) (*connect.Response[PlayResponse], error) {
	return c.play.CallUnary(ctx, req)
}

// Queue calls QueueService.Queue.
func (c *QueueServiceClient) Queue(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[QueueResponse], error) {
	return c.queue.CallUnary(ctx, req)
}

// NowPlaying calls QueueService.NowPlaying.
func (c *QueueServiceClient) NowPlaying(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[TenantStatus], error) {
	return c.nowPlaying.CallUnary(ctx, req)
}

// Skip calls QueueService.Skip.
func (c *QueueServiceClient) Skip(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[ActionResponse], error) {
	return c.skip.CallUnary(ctx, req)
}

// Pause calls QueueService.Pause.
func (c *QueueServiceClient) Pause(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[ActionResponse], error) {
	return c.pause.CallUnary(ctx, req)
}

// Resume calls QueueService.Resume.
func (c *QueueServiceClient) Resume(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[ActionResponse], error) {
	return c.resume.CallUnary(ctx, req)
}

// TogglePause calls QueueService.TogglePause.
func (c *QueueServiceClient) TogglePause(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[ActionResponse], error) {
	return c.togglePause.CallUnary(ctx, req)
}

// Stop calls QueueService.Stop.
func (c *QueueServiceClient) Stop(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[ActionResponse], error) {
	return c.stop.CallUnary(ctx, req)
}

// SetVolume calls QueueService.SetVolume.
func (c *QueueServiceClient) SetVolume(ctx context.Context, req *connect.Request[SetVolumeRequest]) (*connect.Response[VolumeResponse], error) {
	return c.setVolume.CallUnary(ctx, req)
}

// AdjustVolume calls QueueService.AdjustVolume.
func (c *QueueServiceClient) AdjustVolume(ctx context.Context, req *connect.Request[AdjustVolumeRequest]) (*connect.Response[VolumeResponse], error) {
	return c.adjustVol.CallUnary(ctx, req)
}

// Stats calls QueueService.Stats.
func (c *QueueServiceClient) Stats(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[StatsResponse], error) {
	return c.stats.CallUnary(ctx, req)
}

// Subscribe calls QueueService.Subscribe.
func (c *QueueServiceClient) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest]) (*connect.ServerStreamForClient[notification.Notification], error) {
	return c.subscribe.CallServerStream(ctx, req)
}

// Download calls QueueService.Download.
func (c *QueueServiceClient) Download(ctx context.Context, req *connect.Request[DownloadRequest]) (*connect.ServerStreamForClient[DownloadChunk], error) {
	return c.download.CallServerStream(ctx, req)
}

// AdminServiceClient is a client for the AdminService.
type AdminServiceClient struct {
	status      *connect.Client[StatusRequest, StatusResponse]
	cacheStats  *connect.Client[CacheStatsRequest, CacheStatsResponse]
	cacheClear  *connect.Client[CacheClearRequest, CacheClearResponse]
	stopSession *connect.Client[TenantRequest, ActionResponse]
}

// NewAdminServiceClient creates an AdminService client for the server at baseURL.
func NewAdminServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AdminServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &AdminServiceClient{
		status:      connect.NewClient[StatusRequest, StatusResponse](httpClient, baseURL+statusProcedure, opts...),
		cacheStats:  connect.NewClient[CacheStatsRequest, CacheStatsResponse](httpClient, baseURL+cacheStatsProcedure, opts...),
		cacheClear:  connect.NewClient[CacheClearRequest, CacheClearResponse](httpClient, baseURL+cacheClearProcedure, opts...),
		stopSession: connect.NewClient[TenantRequest, ActionResponse](httpClient, baseURL+stopSessionProcedure, opts...),
	}
}

// Status calls AdminService.Status.
func (c *AdminServiceClient) Status(ctx context.Context, req *connect.Request[StatusRequest]) (*connect.Response[StatusResponse], error) {
	return c.status.CallUnary(ctx, req)
}

// CacheStats calls AdminService.CacheStats.
func (c *AdminServiceClient) CacheStats(ctx context.Context, req *connect.Request[CacheStatsRequest]) (*connect.Response[CacheStatsResponse], error) {
	return c.cacheStats.CallUnary(ctx, req)
}

// CacheClear calls AdminService.CacheClear.
func (c *AdminServiceClient) CacheClear(ctx context.Context, req *connect.Request[CacheClearRequest]) (*connect.Response[CacheClearResponse], error) {
	return c.cacheClear.CallUnary(ctx, req)
}

// StopSession calls AdminService.StopSession.
func (c *AdminServiceClient) StopSession(ctx context.Context, req *connect.Request[TenantRequest]) (*connect.Response[ActionResponse], error) {
	return c.stopSession.CallUnary(ctx, req)
}
