// Package main provides the user CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
	"github.com/osa030/guildbox/internal/app/notification"
)

var (
	app    = kingpin.New("guildbox-usercli", "guildbox music queue client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	tenant = app.Flag("tenant", "Tenant (guild) ID").Short('t').Envar("GUILDBOX_TENANT").Required().String()
	user   = app.Flag("user", "Requester name").Short('u').Envar("GUILDBOX_USER").String()

	// play command
	playCmd   = app.Command("play", "Request a song by name, YouTube URL or Spotify link")
	playQuery = playCmd.Arg("query", "Search text or link").Required().String()

	queueCmd      = app.Command("queue", "Show the queue")
	nowPlayingCmd = app.Command("nowplaying", "Show the current song").Alias("np")
	skipCmd       = app.Command("skip", "Skip the current song")
	pauseCmd      = app.Command("pause", "Pause playback")
	resumeCmd     = app.Command("resume", "Resume playback")
	toggleCmd     = app.Command("toggle", "Pause or resume playback")
	stopCmd       = app.Command("stop", "Stop playback and clear the queue")
	statsCmd      = app.Command("stats", "Show request statistics")

	// volume command
	volumeCmd     = app.Command("volume", "Set the volume")
	volumePercent = volumeCmd.Arg("percent", "Volume (0-100)").Required().Int()
	volumeUpCmd   = app.Command("volume-up", "Raise the volume by one step")
	volumeDownCmd = app.Command("volume-down", "Lower the volume by one step")

	// download command
	downloadCmd    = app.Command("download", "Download the audio of a YouTube URL without queueing it")
	downloadURL    = downloadCmd.Arg("url", "YouTube URL").Required().String()
	downloadOutput = downloadCmd.Flag("output", "Directory to save the file in").Short('o').Default(".").ExistingDir()

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to notifications")
	subscribeAll = subscribeCmd.Flag("all", "Receive notifications of every tenant").Bool()
)

var (
	okColor    = color.New(color.FgHiGreen)
	failColor  = color.New(color.FgHiRed)
	titleColor = color.New(color.FgHiCyan, color.Bold)
	dimColor   = color.New(color.FgHiBlack)
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewQueueServiceClient(
		http.DefaultClient,
		*server,
	)

	ctx := context.Background()

	switch command {
	case playCmd.FullCommand():
		play(ctx, client, *playQuery)
	case queueCmd.FullCommand():
		showQueue(ctx, client)
	case nowPlayingCmd.FullCommand():
		nowPlaying(ctx, client)
	case skipCmd.FullCommand():
		printAction(client.Skip(ctx, tenantRequest()))
	case pauseCmd.FullCommand():
		printAction(client.Pause(ctx, tenantRequest()))
	case resumeCmd.FullCommand():
		printAction(client.Resume(ctx, tenantRequest()))
	case toggleCmd.FullCommand():
		printAction(client.TogglePause(ctx, tenantRequest()))
	case stopCmd.FullCommand():
		printAction(client.Stop(ctx, tenantRequest()))
	case volumeCmd.FullCommand():
		printVolume(client.SetVolume(ctx, connect.NewRequest(&apiconnect.SetVolumeRequest{
			TenantID: *tenant,
			Percent:  *volumePercent,
		})))
	case volumeUpCmd.FullCommand():
		printVolume(client.AdjustVolume(ctx, connect.NewRequest(&apiconnect.AdjustVolumeRequest{TenantID: *tenant, Steps: 1})))
	case volumeDownCmd.FullCommand():
		printVolume(client.AdjustVolume(ctx, connect.NewRequest(&apiconnect.AdjustVolumeRequest{TenantID: *tenant, Steps: -1})))
	case statsCmd.FullCommand():
		showStats(ctx, client)
	case subscribeCmd.FullCommand():
		subscribe(ctx, client)
	case downloadCmd.FullCommand():
		download(ctx, client, *downloadURL, *downloadOutput)
	}
}

func tenantRequest() *connect.Request[apiconnect.TenantRequest] {
	return connect.NewRequest(&apiconnect.TenantRequest{TenantID: *tenant})
}

func fail(err error) {
	failColor.Printf("Error: %v\n", err)
	os.Exit(1)
}

func play(ctx context.Context, client *apiconnect.QueueServiceClient, query string) {
	resp, err := client.Play(ctx, connect.NewRequest(&apiconnect.PlayRequest{
		TenantID:    *tenant,
		RequestedBy: *user,
		Query:       query,
	}))
	if err != nil {
		fail(err)
	}

	if !resp.Msg.Success {
		failColor.Printf("Rejected [%s]: %s\n", resp.Msg.Code, resp.Msg.Message)
		return
	}
	okColor.Printf("%s\n", resp.Msg.Message)
	if len(resp.Msg.Queries) > 1 {
		for i, q := range resp.Msg.Queries {
			fmt.Printf("  %2d. %s\n", i+1, q)
		}
	}
}

func showQueue(ctx context.Context, client *apiconnect.QueueServiceClient) {
	resp, err := client.Queue(ctx, tenantRequest())
	if err != nil {
		fail(err)
	}

	if len(resp.Msg.Songs) == 0 {
		fmt.Println("The queue is empty")
		return
	}
	titleColor.Printf("Queue (%d):\n", len(resp.Msg.Songs))
	for i, s := range resp.Msg.Songs {
		fmt.Printf("  %2d. %s %s\n", i+1, s.Title, dimColor.Sprintf("(%s, by %s)", formatSeconds(s.DurationSeconds), s.RequestedBy))
	}
}

func nowPlaying(ctx context.Context, client *apiconnect.QueueServiceClient) {
	resp, err := client.NowPlaying(ctx, tenantRequest())
	if err != nil {
		fail(err)
	}

	st := resp.Msg
	if st.Current == nil {
		fmt.Printf("Nothing is playing (state: %s)\n", st.State)
		return
	}
	titleColor.Printf("%s %s\n", formatState(st.State), st.Current.Title)
	fmt.Printf("  URL: %s\n", st.Current.URL)
	fmt.Printf("  Requested by: %s\n", st.Current.RequestedBy)
	fmt.Printf("  Progress: %s / %s\n", formatSeconds(st.ElapsedSeconds), formatSeconds(st.Current.DurationSeconds))
	fmt.Printf("  Volume: %d%%\n", st.VolumePercent)
	fmt.Printf("  Queue: %d (resolving: %d)\n", st.QueueLength, st.Pending)
}

func showStats(ctx context.Context, client *apiconnect.QueueServiceClient) {
	resp, err := client.Stats(ctx, tenantRequest())
	if err != nil {
		fail(err)
	}

	s := resp.Msg
	titleColor.Println("Music statistics")
	fmt.Printf("  Songs played: %d\n", s.TotalSongsPlayed)
	fmt.Printf("  Requests: %d\n", s.TotalRequests)
	if !s.LastActivity.IsZero() {
		fmt.Printf("  Last activity: %s\n", s.LastActivity.Local().Format(time.DateTime))
	}
	for i, rc := range s.TopRequesters {
		fmt.Printf("  %2d. %s (%d)\n", i+1, rc.Requester, rc.Count)
	}
}

func printAction(resp *connect.Response[apiconnect.ActionResponse], err error) {
	if err != nil {
		fail(err)
	}
	if resp.Msg.Success {
		okColor.Println(resp.Msg.Message)
	} else {
		failColor.Printf("Failed: %s\n", resp.Msg.Message)
	}
}

func printVolume(resp *connect.Response[apiconnect.VolumeResponse], err error) {
	if err != nil {
		fail(err)
	}
	if resp.Msg.Success {
		okColor.Printf("Volume: %d%%\n", resp.Msg.Percent)
	} else {
		failColor.Printf("Failed: %s\n", resp.Msg.Message)
	}
}

func subscribe(ctx context.Context, client *apiconnect.QueueServiceClient) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tenantID := *tenant
	if *subscribeAll {
		tenantID = ""
	}
	stream, err := client.Subscribe(ctx, connect.NewRequest(&apiconnect.SubscribeRequest{TenantID: tenantID}))
	if err != nil {
		fail(err)
	}
	defer stream.Close()

	for stream.Receive() {
		if stream.Msg().Type == notification.TypeSubscribed {
			fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")
			continue
		}
		printNotification(stream.Msg())
	}

	if ctx.Err() != nil {
		fmt.Println("\nUnsubscribing...")
		return
	}
	if err := stream.Err(); err != nil {
		failColor.Printf("Stream error: %v\n", err)
	}
}

func download(ctx context.Context, client *apiconnect.QueueServiceClient, url, dir string) {
	stream, err := client.Download(ctx, connect.NewRequest(&apiconnect.DownloadRequest{URL: url}))
	if err != nil {
		fail(err)
	}
	defer stream.Close()

	fmt.Println("Downloading your file, please wait...")

	var (
		f       *os.File
		path    string
		written int64
	)
	for stream.Receive() {
		chunk := stream.Msg()
		if f == nil {
			path = filepath.Join(dir, filepath.Base(chunk.FileName))
			if f, err = os.Create(path); err != nil {
				fail(err)
			}
			defer f.Close()
		}
		n, err := f.Write(chunk.Data)
		if err != nil {
			fail(err)
		}
		written += int64(n)
	}
	if err := stream.Err(); err != nil {
		if f != nil {
			_ = os.Remove(path)
		}
		fail(err)
	}
	if f == nil {
		fail(errors.New("server sent no data"))
	}

	okColor.Printf("Download complete: %s ", path)
	dimColor.Printf("(%d bytes)\n", written)
}

func printNotification(n *notification.Notification) {
	fmt.Printf("%s %s %s\n",
		dimColor.Sprintf("[%d %s]", n.SequenceNo, n.Time.Local().Format(time.TimeOnly)),
		titleColor.Sprint(n.TenantID),
		n.Message)
}

func formatState(state string) string {
	switch state {
	case "playing":
		return "▶️ "
	case "paused":
		return "⏸ "
	case "resolving":
		return "⏳"
	default:
		return "❓"
	}
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "?:??"
	}
	d := time.Duration(seconds) * time.Second
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
