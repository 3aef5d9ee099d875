package connect

import (
	"net/http"

	"connectrpc.com/connect"
)

// NewQueueServiceHandler builds an HTTP handler for the QueueService and
// returns the path to mount it on.
func NewQueueServiceHandler(svc *QueueService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	handlers := map[string]http.Handler{
		playProcedure:        connect.NewUnaryHandler(playProcedure, svc.Play, opts...),
		queueProcedure:       connect.NewUnaryHandler(queueProcedure, svc.Queue, opts...),
		nowPlayingProcedure:  connect.NewUnaryHandler(nowPlayingProcedure, svc.NowPlaying, opts...),
		skipProcedure:        connect.NewUnaryHandler(skipProcedure, svc.Skip, opts...),
		pauseProcedure:       connect.NewUnaryHandler(pauseProcedure, svc.Pause, opts...),
		resumeProcedure:      connect.NewUnaryHandler(resumeProcedure, svc.Resume, opts...),
		togglePauseProcedure: connect.NewUnaryHandler(togglePauseProcedure, svc.TogglePause, opts...),
		stopProcedure:        connect.NewUnaryHandler(stopProcedure, svc.Stop, opts...),
		setVolumeProcedure:   connect.NewUnaryHandler(setVolumeProcedure, svc.SetVolume, opts...),
		adjustVolProcedure:   connect.NewUnaryHandler(adjustVolProcedure, svc.AdjustVolume, opts...),
		statsProcedure:       connect.NewUnaryHandler(statsProcedure, svc.Stats, opts...),
		subscribeProcedure:   connect.NewServerStreamHandler(subscribeProcedure, svc.Subscribe, opts...),
		downloadProcedure:    connect.NewServerStreamHandler(downloadProcedure, svc.Download, opts...),
	}
	return "/" + QueueServiceName + "/", route(handlers)
}

// NewAdminServiceHandler builds an HTTP handler for the AdminService and
// returns the path to mount it on.
func NewAdminServiceHandler(svc *AdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	handlers := map[string]http.Handler{
		statusProcedure:      connect.NewUnaryHandler(statusProcedure, svc.Status, opts...),
		cacheStatsProcedure:  connect.NewUnaryHandler(cacheStatsProcedure, svc.CacheStats, opts...),
		cacheClearProcedure:  connect.NewUnaryHandler(cacheClearProcedure, svc.CacheClear, opts...),
		stopSessionProcedure: connect.NewUnaryHandler(stopSessionProcedure, svc.StopSession, opts...),
	}
	return "/" + AdminServiceName + "/", route(handlers)
}

func route(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}
