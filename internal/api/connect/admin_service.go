package connect

import (
	"context"
	"fmt"
	"time"

	"connectrpc.com/connect"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/guildbox/internal/app/cache"
	"github.com/osa030/guildbox/internal/app/queue"
)

// Sessions is the part of the queue coordinator used by administrators.
type Sessions interface {
	Tenants(ctx context.Context) []queue.Status
	Stop(ctx context.Context, tenantID string) bool
}

// ContentCache is the administrative view of the content cache.
type ContentCache interface {
	Stats() cache.Stats
	ClearAll() int
	TTL() time.Duration
	SweepInterval() time.Duration
	Dir() string
}

// SubscriberCounter reports the number of notification subscribers.
type SubscriberCounter interface {
	SubscriberCount() int
}

// AdminService implements the AdminService RPC.
type AdminService struct {
	sessions    Sessions
	cache       ContentCache
	subscribers SubscriberCounter
}

// NewAdminService creates a new AdminService.
func NewAdminService(sessions Sessions, c ContentCache, subscribers SubscriberCounter) *AdminService {
	return &AdminService{
		sessions:    sessions,
		cache:       c,
		subscribers: subscribers,
	}
}

// Status returns every tenant with a session.
func (s *AdminService) Status(
	ctx context.Context,
	req *connect.Request[StatusRequest],
) (*connect.Response[StatusResponse], error) {
	tenants := s.sessions.Tenants(ctx)
	res := &StatusResponse{Tenants: make([]TenantStatus, len(tenants))}
	for i, st := range tenants {
		res.Tenants[i] = toTenantStatus(st)
	}
	if s.subscribers != nil {
		res.Subscribers = s.subscribers.SubscriberCount()
	}
	return connect.NewResponse(res), nil
}

// CacheStats returns the content cache statistics.
func (s *AdminService) CacheStats(
	ctx context.Context,
	req *connect.Request[CacheStatsRequest],
) (*connect.Response[CacheStatsResponse], error) {
	st := s.cache.Stats()
	return connect.NewResponse(&CacheStatsResponse{
		TotalIndexed:         st.TotalIndexed,
		Valid:                st.Valid,
		Expired:              st.Expired,
		TotalBytes:           st.TotalBytes,
		TTLSeconds:           s.cache.TTL().Seconds(),
		SweepIntervalSeconds: s.cache.SweepInterval().Seconds(),
		Dir:                  s.cache.Dir(),
	}), nil
}

// CacheClear deletes every cached file.
func (s *AdminService) CacheClear(
	ctx context.Context,
	req *connect.Request[CacheClearRequest],
) (*connect.Response[CacheClearResponse], error) {
	deleted := s.cache.ClearAll()
	zlog.Info().Msgf("api: cache cleared: deleted=%d", deleted)
	return connect.NewResponse(&CacheClearResponse{Deleted: deleted}), nil
}

// StopSession stops the session of a tenant, or of every tenant when no
// tenant is given.
func (s *AdminService) StopSession(
	ctx context.Context,
	req *connect.Request[TenantRequest],
) (*connect.Response[ActionResponse], error) {
	if req.Msg.TenantID != "" {
		if !s.sessions.Stop(ctx, req.Msg.TenantID) {
			return connect.NewResponse(&ActionResponse{
				Success: false,
				Message: "No active session",
			}), nil
		}
		return connect.NewResponse(&ActionResponse{
			Success: true,
			Message: "Session stopped",
		}), nil
	}

	var stopped int
	for _, st := range s.sessions.Tenants(ctx) {
		if s.sessions.Stop(ctx, st.TenantID) {
			stopped++
		}
	}
	return connect.NewResponse(&ActionResponse{
		Success: true,
		Message: fmt.Sprintf("%d session(s) stopped", stopped),
	}), nil
}
