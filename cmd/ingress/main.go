// Command conduit-ingress runs Conduit's HTTP ingress: the surface
// described in spec §6 that accepts generation/transcription submissions,
// exposes job state and delivery confirmation, and administers channel
// overrides and the denylist.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/conduit/internal/blob"
	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/config"
	"github.com/aceteam-ai/conduit/internal/dedup"
	"github.com/aceteam-ai/conduit/internal/queue"
	"github.com/aceteam-ai/conduit/internal/server"
	"github.com/aceteam-ai/conduit/internal/store/postgres"
	"github.com/aceteam-ai/conduit/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "conduit-ingress",
	Short: "Conduit's HTTP ingress: dedup, rate limiting, and the durable job queue's front door",
	Run:   runIngress,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML overlay on top of the environment")
}

func runIngress(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingress: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingress: parse REDIS_URL: %v\n", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	pg, err := postgres.New(ctx, cfg.DatabaseURL, "")
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	// The invalidation bus itself has no ingress-side subscriber — ingress
	// doesn't resolve personality/config cascades, cmd/worker does — but
	// internal/dedup and internal/telemetry share rdb directly, and ingress
	// still needs a live Postgres LISTEN/NOTIFY bridge running somewhere so
	// writes made through its own channel/denylist routes propagate to
	// worker-side caches without waiting for their own TTL to expire.
	bus := cache.NewBus(rdb, logger)
	bridge := cache.NewDBBridge(cfg.DatabaseURL, bus, logger)
	go bridge.Run(ctx)

	queueClient, err := queue.NewClient(ctx, queue.ClientConfig{URL: cfg.RedisURL})
	if err != nil {
		logger.Error("connect job queue", "error", err)
		os.Exit(1)
	}
	events := queue.NewEvents(queueClient)

	blobStore, err := blob.NewStore(cfg.AvatarDir, cfg.TempAttachmentDir, cfg.PublicGatewayURL, logger)
	if err != nil {
		logger.Error("init blob store", "error", err)
		os.Exit(1)
	}
	if err := blobStore.SyncAvatars(ctx, pg, blob.HTTPAvatarFetcher{}); err != nil {
		logger.Warn("avatar sync failed at startup", "error", err)
	}

	deduplicator := dedup.NewDeduplicator(rdb, 10*time.Minute)
	limiter := dedup.NewLimiter(rdb, 20, time.Minute)
	stopSeqs := telemetry.NewStopSequenceRecorder(rdb)

	srv := server.NewServer(server.Config{
		Addr:                  cfg.HTTPAddr,
		InternalServiceSecret: cfg.InternalServiceSecret,
		CORSOrigins:           cfg.CORSOrigins,
	}, server.Dependencies{
		Dedup:       deduplicator,
		RateLimiter: limiter,
		Queue:       queueClient,
		Events:      events,
		Channels:    pg,
		Denylist:    pg,
		Delivery:    pg,
		Telemetry:   stopSeqs,
		Attachments: blobStore,
		Avatars:     blobStore,
	}, logger)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ingress listening", "addr", cfg.HTTPAddr)
	if err := srv.Start(sigCtx); err != nil {
		logger.Error("ingress stopped", "error", err)
		os.Exit(1)
	}
}

