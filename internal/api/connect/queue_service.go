// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/playback"
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/app/request"
	"github.com/osa030/guildbox/internal/domain/song"
	"github.com/osa030/guildbox/internal/domain/stats"
)

var (
	errTenantRequired = errors.New("tenant id is required")
	errQueryRequired  = errors.New("query is required")
	errStreamClosed   = errors.New("notification stream closed")
)

// Player is the part of the queue coordinator exposed over RPC.
type Player interface {
	Status(ctx context.Context, tenantID string) queue.Status
	Queue(ctx context.Context, tenantID string) []song.Request
	Skip(ctx context.Context, tenantID string) bool
	Pause(ctx context.Context, tenantID string) bool
	Resume(ctx context.Context, tenantID string) bool
	TogglePause(ctx context.Context, tenantID string) (playback.State, bool)
	Stop(ctx context.Context, tenantID string) bool
	SetVolume(ctx context.Context, tenantID string, fraction float64) (float64, bool)
	AdjustVolume(ctx context.Context, tenantID string, delta float64) (float64, bool)
	Stats(ctx context.Context, tenantID string) stats.Guild
}

// Requester accepts song requests.
type Requester interface {
	Play(ctx context.Context, tenantID, requestedBy, query string) (request.Ticket, error)
	Message(err error) string
}

// Subscriptions registers notification streams.
type Subscriptions interface {
	Subscribe(tenantID string, stream notification.Stream) string
	Unsubscribe(subscriptionID string)
	SequenceNo() uint64
}

// QueueService implements the QueueService RPC.
type QueueService struct {
	player    Player
	requester Requester
	fetcher   Fetcher
	notifier  Subscriptions
	step      float64

	done      chan struct{}
	closeOnce sync.Once
}

// NewQueueService creates a new QueueService. volumeStep is the fraction
// applied per AdjustVolume step.
func NewQueueService(player Player, requester Requester, fetcher Fetcher, notifier Subscriptions, volumeStep float64) *QueueService {
	return &QueueService{
		player:    player,
		requester: requester,
		fetcher:   fetcher,
		notifier:  notifier,
		step:      volumeStep,
		done:      make(chan struct{}),
	}
}

// Close ends every open Subscribe stream.
func (s *QueueService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Play handles song requests.
func (s *QueueService) Play(
	ctx context.Context,
	req *connect.Request[PlayRequest],
) (*connect.Response[PlayResponse], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}
	if req.Msg.Query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errQueryRequired)
	}

	ticket, err := s.requester.Play(ctx, req.Msg.TenantID, req.Msg.RequestedBy, req.Msg.Query)
	if err != nil {
		zlog.Debug().Msgf("api: play refused: tenant=%s requester=%s err=%v", req.Msg.TenantID, req.Msg.RequestedBy, err)
		return connect.NewResponse(&PlayResponse{
			Success: false,
			Code:    request.Code(err),
			Message: s.requester.Message(err),
		}), nil
	}

	message := "Request accepted"
	if len(ticket.Queries) > 1 {
		message = "Collection accepted"
	}
	return connect.NewResponse(&PlayResponse{
		Success: true,
		Message: message,
		Queries: ticket.Queries,
	}), nil
}

// Queue returns the waiting songs.
func (s *QueueService) Queue(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[QueueResponse], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}

	waiting := s.player.Queue(ctx, req.Msg.TenantID)
	songs := make([]Song, len(waiting))
	for i := range waiting {
		songs[i] = *toSong(&waiting[i])
	}
	return connect.NewResponse(&QueueResponse{Songs: songs}), nil
}

// NowPlaying returns the playback state of a tenant.
func (s *QueueService) NowPlaying(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[TenantStatus], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}

	st := toTenantStatus(s.player.Status(ctx, req.Msg.TenantID))
	return connect.NewResponse(&st), nil
}

// Skip skips the current song.
func (s *QueueService) Skip(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[ActionResponse], error) {
	return s.control(ctx, req, s.player.Skip, "Track skipped", "Nothing is playing")
}

// Pause pauses the current song.
func (s *QueueService) Pause(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[ActionResponse], error) {
	return s.control(ctx, req, s.player.Pause, "Playback paused", "Nothing is playing")
}

// Resume resumes a paused song.
func (s *QueueService) Resume(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[ActionResponse], error) {
	return s.control(ctx, req, s.player.Resume, "Playback resumed", "Nothing is paused")
}

// Stop stops playback and clears the queue.
func (s *QueueService) Stop(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[ActionResponse], error) {
	return s.control(ctx, req, s.player.Stop, "Session stopped", "No active session")
}

// TogglePause pauses or resumes depending on the current state.
func (s *QueueService) TogglePause(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[ActionResponse], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}

	state, ok := s.player.TogglePause(ctx, req.Msg.TenantID)
	if !ok {
		return connect.NewResponse(&ActionResponse{
			Success: false,
			Message: "Nothing is playing",
		}), nil
	}

	message := "Playback resumed"
	if state == playback.StatePaused {
		message = "Playback paused"
	}
	return connect.NewResponse(&ActionResponse{
		Success: true,
		Message: message,
		State:   state.String(),
	}), nil
}

// SetVolume sets the volume of a tenant.
func (s *QueueService) SetVolume(
	ctx context.Context,
	req *connect.Request[SetVolumeRequest],
) (*connect.Response[VolumeResponse], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}
	if req.Msg.Percent < 0 || req.Msg.Percent > 100 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.Newf("volume must be between 0 and 100: %d", req.Msg.Percent))
	}

	applied, ok := s.player.SetVolume(ctx, req.Msg.TenantID, float64(req.Msg.Percent)/100)
	if !ok {
		return connect.NewResponse(&VolumeResponse{
			Success: false,
			Message: "No active session",
		}), nil
	}
	return connect.NewResponse(&VolumeResponse{
		Success: true,
		Message: "Volume set",
		Percent: toPercent(applied),
	}), nil
}

// AdjustVolume raises or lowers the volume by a number of steps.
func (s *QueueService) AdjustVolume(
	ctx context.Context,
	req *connect.Request[AdjustVolumeRequest],
) (*connect.Response[VolumeResponse], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}

	applied, ok := s.player.AdjustVolume(ctx, req.Msg.TenantID, float64(req.Msg.Steps)*s.step)
	if !ok {
		return connect.NewResponse(&VolumeResponse{
			Success: false,
			Message: "No active session",
		}), nil
	}
	return connect.NewResponse(&VolumeResponse{
		Success: true,
		Message: "Volume set",
		Percent: toPercent(applied),
	}), nil
}

// Stats returns the request statistics of a tenant.
func (s *QueueService) Stats(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[StatsResponse], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}
	return connect.NewResponse(toStats(s.player.Stats(ctx, req.Msg.TenantID))), nil
}

// Subscribe streams the notifications of a tenant until the client goes
// away or the service is closed.
func (s *QueueService) Subscribe(
	ctx context.Context,
	req *connect.Request[SubscribeRequest],
	stream *connect.ServerStream[notification.Notification],
) error {
	// The greeting flushes the response headers before any tenant message.
	if err := stream.Send(&notification.Notification{
		Type:       notification.TypeSubscribed,
		SequenceNo: s.notifier.SequenceNo(),
		TenantID:   req.Msg.TenantID,
		Message:    "Subscribed",
		Time:       time.Now(),
	}); err != nil {
		return err
	}

	adapter := &notificationStream{stream: stream}
	subscriptionID := s.notifier.Subscribe(req.Msg.TenantID, adapter)
	zlog.Debug().Msgf("api: subscribed: tenant=%s subscription=%s", req.Msg.TenantID, subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.done:
	}

	s.notifier.Unsubscribe(subscriptionID)
	adapter.close()
	zlog.Debug().Msgf("api: unsubscribed: subscription=%s", subscriptionID)
	return nil
}

func (s *QueueService) control(
	ctx context.Context,
	req *connect.Request[TenantRequest],
	fn func(context.Context, string) bool,
	success, failure string,
) (*connect.Response[ActionResponse], error) {
	if req.Msg.TenantID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errTenantRequired)
	}
	if !fn(ctx, req.Msg.TenantID) {
		return connect.NewResponse(&ActionResponse{Success: false, Message: failure}), nil
	}
	return connect.NewResponse(&ActionResponse{Success: true, Message: success}), nil
}

// notificationStream adapts connect.ServerStream to notification.Stream.
// Sends after the handler returned are refused.
type notificationStream struct {
	mu     sync.Mutex
	stream *connect.ServerStream[notification.Notification]
	closed bool
}

func (a *notificationStream) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errStreamClosed
	}
	return a.stream.Send(n)
}

func (a *notificationStream) close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}
