package connect

import (
	"time"

	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/domain/song"
	"github.com/osa030/guildbox/internal/domain/stats"
)

// Procedure names.
const (
	QueueServiceName     = "guildbox.v1.QueueService"
	AdminServiceName     = "guildbox.v1.AdminService"
	playProcedure        = "/" + QueueServiceName + "/Play"
	queueProcedure       = "/" + QueueServiceName + "/Queue"
	nowPlayingProcedure  = "/" + QueueServiceName + "/NowPlaying"
	skipProcedure        = "/" + QueueServiceName + "/Skip"
	pauseProcedure       = "/" + QueueServiceName + "/Pause"
	resumeProcedure      = "/" + QueueServiceName + "/Resume"
	togglePauseProcedure = "/" + QueueServiceName + "/TogglePause"
	stopProcedure        = "/" + QueueServiceName + "/Stop"
	setVolumeProcedure   = "/" + QueueServiceName + "/SetVolume"
	adjustVolProcedure   = "/" + QueueServiceName + "/AdjustVolume"
	statsProcedure       = "/" + QueueServiceName + "/Stats"
	subscribeProcedure   = "/" + QueueServiceName + "/Subscribe"
	downloadProcedure    = "/" + QueueServiceName + "/Download"
	statusProcedure      = "/" + AdminServiceName + "/Status"
	cacheStatsProcedure  = "/" + AdminServiceName + "/CacheStats"
	cacheClearProcedure  = "/" + AdminServiceName + "/CacheClear"
	stopSessionProcedure = "/" + AdminServiceName + "/StopSession"
)

// TenantRequest addresses one tenant.
type TenantRequest struct {
	TenantID string `json:"tenantId"`
}

// PlayRequest asks for a song (or a collection link) to be queued.
type PlayRequest struct {
	TenantID    string `json:"tenantId"`
	RequestedBy string `json:"requestedBy"`
	Query       string `json:"query"`
}

// PlayResponse reports whether the request was accepted for resolution.
type PlayResponse struct {
	Success bool     `json:"success"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message"`
	Queries []string `json:"queries,omitempty"`
}

// ActionResponse is the result of a playback control.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	State   string `json:"state,omitempty"`
}

// SetVolumeRequest sets the volume of a tenant, in percent.
type SetVolumeRequest struct {
	TenantID string `json:"tenantId"`
	Percent  int    `json:"percent"`
}

// AdjustVolumeRequest moves the volume of a tenant by Steps volume steps;
// negative values lower it.
type AdjustVolumeRequest struct {
	TenantID string `json:"tenantId"`
	Steps    int    `json:"steps"`
}

// VolumeResponse reports the applied volume.
type VolumeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// Song is a queued or playing song.
type Song struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	RequestedBy     string    `json:"requestedBy"`
	RequestedAt     time.Time `json:"requestedAt"`
	Position        int       `json:"position"`
	DurationSeconds float64   `json:"durationSeconds,omitempty"`
}

// QueueResponse lists the waiting songs in play order.
type QueueResponse struct {
	Songs []Song `json:"songs"`
}

// TenantStatus is the playback state of one tenant.
type TenantStatus struct {
	TenantID       string  `json:"tenantId"`
	State          string  `json:"state"`
	Current        *Song   `json:"current,omitempty"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	VolumePercent  int     `json:"volumePercent"`
	QueueLength    int     `json:"queueLength"`
	Pending        int     `json:"pending"`
}

// RequesterCount is one entry of the top requesters.
type RequesterCount struct {
	Requester string `json:"requester"`
	Count     int    `json:"count"`
}

// StatsResponse holds the request statistics of a tenant.
type StatsResponse struct {
	TotalSongsPlayed int              `json:"totalSongsPlayed"`
	TotalRequests    int              `json:"totalRequests"`
	LastActivity     time.Time        `json:"lastActivity,omitzero"`
	TopRequesters    []RequesterCount `json:"topRequesters"`
}

// SubscribeRequest selects the notifications of one tenant; empty receives all.
type SubscribeRequest struct {
	TenantID string `json:"tenantId"`
}

// StatusRequest is the admin status request.
type StatusRequest struct{}

// StatusResponse lists every tenant with a session.
type StatusResponse struct {
	Tenants     []TenantStatus `json:"tenants"`
	Subscribers int            `json:"subscribers"`
}

// CacheStatsRequest is the admin cache stats request.
type CacheStatsRequest struct{}

// CacheStatsResponse describes the content cache.
type CacheStatsResponse struct {
	TotalIndexed         int     `json:"totalIndexed"`
	Valid                int     `json:"valid"`
	Expired              int     `json:"expired"`
	TotalBytes           int64   `json:"totalBytes"`
	TTLSeconds           float64 `json:"ttlSeconds"`
	SweepIntervalSeconds float64 `json:"sweepIntervalSeconds"`
	Dir                  string  `json:"dir"`
}

// CacheClearRequest is the admin cache clear request.
type CacheClearRequest struct{}

// CacheClearResponse reports how many files were deleted.
type CacheClearResponse struct {
	Deleted int `json:"deleted"`
}

func toSong(r *song.Request) *Song {
	if r == nil {
		return nil
	}
	return &Song{
		ID:              r.ID,
		Title:           r.Title,
		URL:             r.SourceURL,
		RequestedBy:     r.RequestedBy,
		RequestedAt:     r.RequestedAt,
		Position:        r.QueuePosition,
		DurationSeconds: r.Duration.Seconds(),
	}
}

func toTenantStatus(st queue.Status) TenantStatus {
	state := st.State.String()
	if !st.HasSession {
		state = "none"
	}
	return TenantStatus{
		TenantID:       st.TenantID,
		State:          state,
		Current:        toSong(st.Current),
		ElapsedSeconds: st.Elapsed.Seconds(),
		VolumePercent:  toPercent(st.Volume),
		QueueLength:    st.QueueLength,
		Pending:        st.Pending,
	}
}

func toStats(g stats.Guild) *StatsResponse {
	res := &StatsResponse{
		TotalSongsPlayed: g.TotalSongsPlayed,
		TotalRequests:    g.TotalRequests,
		LastActivity:     g.LastActivity,
		TopRequesters:    []RequesterCount{},
	}
	for _, rc := range g.Top(10) {
		res.TopRequesters = append(res.TopRequesters, RequesterCount{Requester: rc.Requester, Count: rc.Count})
	}
	return res
}

func toPercent(fraction float64) int {
	return int(fraction*100 + 0.5)
}
