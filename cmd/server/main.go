// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
	"github.com/osa030/guildbox/internal/app/cache"
	"github.com/osa030/guildbox/internal/app/filter"
	"github.com/osa030/guildbox/internal/app/notification"
	"github.com/osa030/guildbox/internal/app/queue"
	"github.com/osa030/guildbox/internal/app/request"
	"github.com/osa030/guildbox/internal/app/resolve"
	"github.com/osa030/guildbox/internal/infra/config"
	"github.com/osa030/guildbox/internal/infra/logger"
	"github.com/osa030/guildbox/internal/infra/spotify"
	"github.com/osa030/guildbox/internal/infra/store"
	"github.com/osa030/guildbox/internal/infra/transport"
	"github.com/osa030/guildbox/internal/infra/youtube"
)

var (
	app        = kingpin.New("guildbox-server", "guildbox multi-tenant music queue server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	noRestore  = app.Flag("no-restore", "Do not restore persisted queues on startup").Bool()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := filter.Build(cfg.EnabledFilters())
	if err != nil {
		return errors.Wrap(err, "invalid filter config")
	}

	contentCache, err := cache.New(cache.Config{
		Dir:            cfg.Cache.Dir,
		TTL:            cfg.Cache.TTL,
		SweepInterval:  cfg.Cache.SweepInterval,
		MaxTitleLength: cfg.Cache.MaxTitleLength,
		Extensions:     cfg.Cache.Extensions,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create content cache")
	}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go contentCache.Run(sweepCtx)

	persisted, err := store.Open(ctx, store.Config{
		Type:     cfg.Store.Type,
		Path:     cfg.Store.Path,
		RedisURL: cfg.Store.RedisURL,
		Key:      cfg.Store.Key,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open store")
	}
	defer func() {
		if err := persisted.Close(); err != nil {
			zlog.Warn().Msgf("Failed to close store: %v", err)
		}
	}()

	player, err := transport.New(transport.Config{
		Type:             cfg.Playback.Transport,
		PlayerCommand:    cfg.Playback.PlayerCommand,
		FallbackDuration: cfg.Playback.FallbackDuration,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create transport")
	}

	resolver, err := newResolver(ctx, cfg, contentCache)
	if err != nil {
		return err
	}

	notifier := notification.NewManager()
	defer notifier.Close()

	// Failed resolutions are reported with the request service messages.
	var requests *request.Service
	coordinator := queue.New(player, queue.Config{
		DefaultVolume:  cfg.Playback.DefaultVolume,
		ResolveTimeout: cfg.ResolveTimeout(),
		Messages: queue.Messages{
			NowPlaying:    cfg.Messages.NowPlaying,
			Added:         cfg.Messages.Added,
			PlaybackError: cfg.Messages.PlaybackError,
			Stopped:       cfg.Messages.Stopped,
			DefaultError:  cfg.Messages.DefaultError,
		},
	},
		queue.WithStore(persisted),
		queue.WithNotifier(notifier),
		queue.WithPinner(contentCache),
		queue.WithFailureMessage(func(p *queue.Pending, err error) string {
			return requests.FailureMessage(p, err)
		}),
	)

	requests = request.NewService(coordinator, resolver, chain, cfg.GetMessage, request.Config{
		Cooldown: cfg.Request.Cooldown,
	})

	if !*noRestore {
		restoreSessions(ctx, coordinator)
	}

	queueService := apiconnect.NewQueueService(coordinator, requests, resolver, notifier, cfg.Playback.VolumeStep)
	adminService := apiconnect.NewAdminService(coordinator, contentCache, notifier)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	queuePath, queueHandler := apiconnect.NewQueueServiceHandler(queueService)
	adminAuthInterceptor := apiconnect.NewAdminAuthInterceptor(cfg.Admin.Token)
	adminPath, adminHandler := apiconnect.NewAdminServiceHandler(
		adminService,
		connect.WithInterceptors(adminAuthInterceptor),
	)
	router.Mount(queuePath, queueHandler)
	router.Mount(adminPath, adminHandler)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")
	defer executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	select {
	case <-ctx.Done():
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		requests.Close()
		coordinator.Close()
		return errors.Wrap(err, "server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close streams first so Shutdown does not wait on subscribers
	queueService.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	requests.Close()
	coordinator.Close()

	zlog.Info().Msg("Server stopped")
	return nil
}

// newResolver wires search, download and the optional Spotify catalog.
func newResolver(ctx context.Context, cfg *config.Config, c *cache.Cache) (*resolve.Resolver, error) {
	searcher, err := youtube.NewSearcher(youtube.SearcherConfig{
		Proxy:   cfg.Download.Proxy,
		Timeout: cfg.Download.SearchTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create searcher")
	}

	downloader, err := youtube.NewDownloader(youtube.DownloaderConfig{
		TempDir:     cfg.Download.TempDir,
		AudioFormat: cfg.Download.AudioFormat,
		Proxy:       cfg.Download.Proxy,
		Binary:      cfg.Download.Binary,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create downloader")
	}

	var catalog resolve.Catalog
	if cfg.Spotify.Enabled() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Spotify client")
		}
		catalog = client
	} else {
		zlog.Info().Msg("Spotify not configured, Spotify links will be refused")
	}

	return resolve.New(searcher, downloader, catalog, c, resolve.Config{
		DownloadTimeout: cfg.Download.Timeout,
	}), nil
}

// restoreSessions rebuilds persisted queues and starts their playback.
func restoreSessions(ctx context.Context, coordinator *queue.Coordinator) {
	restored := coordinator.RestoreAll(ctx)
	for tenantID, n := range restored {
		zlog.Info().Msgf("Restored queue: tenant=%s songs=%d", tenantID, n)
		if !coordinator.PlayNext(ctx, tenantID) {
			zlog.Warn().Msgf("Failed to start restored queue: tenant=%s", tenantID)
		}
	}
}

// printFilters prints available filters.
func printFilters() {
	registry := filter.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registry[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// sh -c allows redirection and pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
