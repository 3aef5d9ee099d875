// Package request accepts song requests from users: it rate limits
// requesters, expands collections, resolves and filters each song and hands
// it to the queue coordinator in request order.
package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/app/resolve"
	"github.com/osa030/guildbox/internal/domain/song"
)

// ErrCooldown is returned when a requester asks again too soon.
var ErrCooldown = errors.New("request cooldown")

// RejectedError reports a song refused by a filter.
type RejectedError struct {
	Code  string
	Title string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("request rejected: code=%s title=%s", e.Code, e.Title)
}

// Code returns the message code for err.
func Code(err error) string {
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		return rejected.Code
	case errors.Is(err, ErrCooldown):
		return "cooldown"
	case errors.Is(err, resolve.ErrNotFound):
		return "track_not_found"
	case errors.Is(err, queue.ErrResolveTimeout):
		return "resolve_timeout"
	default:
		return "default_error"
	}
}

// Coordinator is the part of the queue coordinator the service uses.
type Coordinator interface {
	EnqueueOrdered(tenantID string, p *queue.Pending)
	Status(ctx context.Context, tenantID string) queue.Status
	Queue(ctx context.Context, tenantID string) []song.Request
}

// Resolver resolves queries to songs.
type Resolver interface {
	Resolve(ctx context.Context, q resolve.Query) (*song.Request, error)
	Expand(ctx context.Context, text string) ([]string, error)
}

// MessageFunc returns the user-facing text for a message code.
type MessageFunc func(code string) string

// Config holds request service configuration.
type Config struct {
	Cooldown time.Duration // Minimum time between requests of one requester; zero disables
}

// Ticket describes an accepted request. The songs are resolved in the
// background; results arrive as notifications.
type Ticket struct {
	Queries []string
}

// Service accepts song requests.
type Service struct {
	coordinator Coordinator
	resolver    Resolver
	chain       *filter.Chain
	message     MessageFunc
	config      Config

	// ctx outlives individual requests; resolutions run under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// reserved holds accepted songs the coordinator has not handled yet,
	// by tenant and song ID. Filters see them as queued.
	reserveMu sync.Mutex
	reserved  map[string]map[string]song.Request
}

// NewService creates a request service. chain may be nil.
func NewService(coordinator Coordinator, resolver Resolver, chain *filter.Chain, message MessageFunc, cfg Config) *Service {
	if chain == nil {
		chain = filter.NewChain()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		coordinator: coordinator,
		resolver:    resolver,
		chain:       chain,
		message:     message,
		config:      cfg,
		ctx:         ctx,
		cancel:      cancel,
		limiters:    make(map[string]*rate.Limiter),
		reserved:    make(map[string]map[string]song.Request),
	}
}

// Play accepts query for tenantID. It returns once the request is queued
// for resolution; each song is appended in request order when it resolves.
func (s *Service) Play(ctx context.Context, tenantID, requestedBy, query string) (Ticket, error) {
	if !s.allow(tenantID, requestedBy) {
		zlog.Info().Msgf("song request: tenant=%s requester=%s query=%s result=false code=cooldown", tenantID, requestedBy, query)
		return Ticket{}, ErrCooldown
	}

	queries, err := s.resolver.Expand(ctx, query)
	if err != nil {
		return Ticket{}, errors.Wrap(err, "failed to expand request")
	}

	for _, q := range queries {
		id := uuid.New().String()
		p := queue.Resolve(s.ctx, q, requestedBy, func(ctx context.Context) (*song.Request, error) {
			return s.resolve(ctx, tenantID, requestedBy, q, id)
		})
		go s.releaseWhenHandled(tenantID, id, p)
		s.coordinator.EnqueueOrdered(tenantID, p)
	}

	zlog.Info().Msgf("song request: tenant=%s requester=%s query=%s songs=%d", tenantID, requestedBy, query, len(queries))
	return Ticket{Queries: queries}, nil
}

// resolve resolves q and runs the filter chain against the tenant queue and
// the songs accepted for it but not queued yet. An accepted song is reserved
// under id until the coordinator handles it.
func (s *Service) resolve(ctx context.Context, tenantID, requestedBy, q, id string) (*song.Request, error) {
	req, err := s.resolver.Resolve(ctx, resolve.Query{Text: q, RequestedBy: requestedBy})
	if err != nil {
		return nil, err
	}
	req.ID = id

	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	st := s.coordinator.Status(ctx, tenantID)
	snap := filter.Snapshot{
		Current: st.Current,
		Queued:  s.coordinator.Queue(ctx, tenantID),
	}
	snap.Queued = append(snap.Queued, s.reservedLocked(tenantID, snap)...)
	fr := filter.Request{TenantID: tenantID, RequestedBy: requestedBy, Query: q}

	result := s.chain.Execute(ctx, fr, *req, snap)
	zlog.Info().Msgf("song request: tenant=%s requester=%s title=%s result=%t code=%s", tenantID, requestedBy, req.Title, result.Accepted, result.Code)
	if !result.Accepted {
		return nil, &RejectedError{Code: result.Code, Title: req.Title}
	}

	if s.reserved[tenantID] == nil {
		s.reserved[tenantID] = make(map[string]song.Request)
	}
	s.reserved[tenantID][id] = *req
	return req, nil
}

// reservedLocked returns the reserved songs of tenantID that snap does not
// already show. Must be called with reserveMu held.
func (s *Service) reservedLocked(tenantID string, snap filter.Snapshot) []song.Request {
	visible := make(map[string]struct{}, len(snap.Queued)+1)
	if snap.Current != nil {
		visible[snap.Current.ID] = struct{}{}
	}
	for _, r := range snap.Queued {
		visible[r.ID] = struct{}{}
	}

	var out []song.Request
	for id, r := range s.reserved[tenantID] {
		if _, ok := visible[id]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// releaseWhenHandled drops the reservation of id once the coordinator is
// done with p.
func (s *Service) releaseWhenHandled(tenantID, id string, p *queue.Pending) {
	select {
	case <-p.Handled():
	case <-s.ctx.Done():
	}

	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()
	delete(s.reserved[tenantID], id)
	if len(s.reserved[tenantID]) == 0 {
		delete(s.reserved, tenantID)
	}
}

// FailureMessage renders the notification for a failed resolution. It is
// installed on the coordinator.
func (s *Service) FailureMessage(p *queue.Pending, err error) string {
	return s.Message(err)
}

// Message returns the user-facing text for err.
func (s *Service) Message(err error) string {
	if s.message == nil {
		return err.Error()
	}
	return s.message(Code(err))
}

// allow applies the per-requester cooldown.
func (s *Service) allow(tenantID, requestedBy string) bool {
	if s.config.Cooldown <= 0 || requestedBy == "" {
		return true
	}

	key := tenantID + "/" + requestedBy

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.limiters) > 1024 {
		s.pruneLocked()
	}
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.config.Cooldown), 1)
		s.limiters[key] = l
	}
	return l.Allow()
}

// pruneLocked drops limiters that are back to a full bucket.
func (s *Service) pruneLocked() {
	for key, l := range s.limiters {
		if l.Tokens() >= 1 {
			delete(s.limiters, key)
		}
	}
}

// Close cancels outstanding resolutions.
func (s *Service) Close() {
	s.cancel()
}
