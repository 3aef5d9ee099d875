// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/guildbox/internal/api/connect"
)

var (
	app    = kingpin.New("guildbox-admincli", "guildbox admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "List active sessions")

	// cache commands
	cacheStatsCmd = app.Command("cache-stats", "Show content cache statistics")
	cacheClearCmd = app.Command("cache-clear", "Delete every cached file")

	// stop command
	stopCmd    = app.Command("stop", "Stop a session, or every session without a tenant")
	stopTenant = stopCmd.Arg("tenant", "Tenant (guild) ID").String()
)

var (
	okColor     = color.New(color.FgHiGreen)
	failColor   = color.New(color.FgHiRed)
	headerColor = color.New(color.FgHiCyan, color.Bold)
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		failColor.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewAdminServiceClient(
		http.DefaultClient,
		*server,
	)

	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		status(ctx, client, *token)
	case cacheStatsCmd.FullCommand():
		cacheStats(ctx, client, *token)
	case cacheClearCmd.FullCommand():
		cacheClear(ctx, client, *token)
	case stopCmd.FullCommand():
		stopSession(ctx, client, *token, *stopTenant)
	}
}

func status(ctx context.Context, client *apiconnect.AdminServiceClient, token string) {
	req := connect.NewRequest(&apiconnect.StatusRequest{})
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	resp, err := client.Status(ctx, req)
	if err != nil {
		failColor.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	headerColor.Println("\n=== ACTIVE SESSIONS ===")
	fmt.Printf("Subscribers: %d\n", resp.Msg.Subscribers)

	if len(resp.Msg.Tenants) == 0 {
		fmt.Println("\nNo active sessions")
		fmt.Println()
		return
	}

	for _, t := range resp.Msg.Tenants {
		fmt.Printf("\nTenant: %s\n", t.TenantID)
		fmt.Printf("  State: %s\n", t.State)
		fmt.Printf("  Volume: %d%%\n", t.VolumePercent)
		fmt.Printf("  Queue: %d (resolving: %d)\n", t.QueueLength, t.Pending)
		if t.Current != nil {
			fmt.Printf("  Now playing: %s\n", t.Current.Title)
			fmt.Printf("  Requested by: %s\n", t.Current.RequestedBy)
			fmt.Printf("  Elapsed: %.0f seconds\n", t.ElapsedSeconds)
		}
	}
	fmt.Println()
}

func cacheStats(ctx context.Context, client *apiconnect.AdminServiceClient, token string) {
	req := connect.NewRequest(&apiconnect.CacheStatsRequest{})
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	resp, err := client.CacheStats(ctx, req)
	if err != nil {
		failColor.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	s := resp.Msg
	headerColor.Println("\n=== CONTENT CACHE ===")
	fmt.Printf("Directory: %s\n", s.Dir)
	fmt.Printf("Indexed: %d (valid: %d, expired: %d)\n", s.TotalIndexed, s.Valid, s.Expired)
	fmt.Printf("Size: %.1f MB\n", float64(s.TotalBytes)/(1024*1024))
	fmt.Printf("TTL: %.0f minutes\n", s.TTLSeconds/60)
	fmt.Printf("Sweep interval: %.0f minutes\n", s.SweepIntervalSeconds/60)
	fmt.Println()
}

func cacheClear(ctx context.Context, client *apiconnect.AdminServiceClient, token string) {
	req := connect.NewRequest(&apiconnect.CacheClearRequest{})
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	resp, err := client.CacheClear(ctx, req)
	if err != nil {
		failColor.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	okColor.Printf("Deleted %d cached file(s)\n", resp.Msg.Deleted)
}

func stopSession(ctx context.Context, client *apiconnect.AdminServiceClient, token, tenantID string) {
	req := connect.NewRequest(&apiconnect.TenantRequest{TenantID: tenantID})
	req.Header().Set(apiconnect.AdminTokenHeader, token)
	resp, err := client.StopSession(ctx, req)
	if err != nil {
		failColor.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.Msg.Success {
		okColor.Println(resp.Msg.Message)
	} else {
		failColor.Printf("Failed: %s\n", resp.Msg.Message)
	}
}
