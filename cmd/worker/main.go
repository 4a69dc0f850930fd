// Command conduit-worker runs Conduit's queue consumers: one Runner per
// job type (LLMGeneration, AudioTranscription, ImageDescription), each
// driving the twelve-stage generation pipeline or a single-call job
// handler to completion.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aceteam-ai/conduit/internal/cache"
	"github.com/aceteam-ai/conduit/internal/config"
	"github.com/aceteam-ai/conduit/internal/jobs"
	"github.com/aceteam-ai/conduit/internal/llm"
	"github.com/aceteam-ai/conduit/internal/memory"
	"github.com/aceteam-ai/conduit/internal/pipeline"
	"github.com/aceteam-ai/conduit/internal/queue"
	"github.com/aceteam-ai/conduit/internal/resolvers"
	"github.com/aceteam-ai/conduit/internal/store/postgres"
	"github.com/aceteam-ai/conduit/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "conduit-worker",
	Short: "Conduit's job queue consumers: LLMGeneration, AudioTranscription, ImageDescription",
	Run:   runWorker,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML overlay on top of the environment")
}

func runWorker(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("parse REDIS_URL", "error", err)
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

	bus := cache.NewBus(rdb, logger)
	bridge := cache.NewDBBridge(cfg.DatabaseURL, bus, logger)
	go bridge.Run(ctx)

	var encKey []byte
	if cfg.APIKeyEncryptionKey != "" {
		encKey, err = hex.DecodeString(cfg.APIKeyEncryptionKey)
		if err != nil {
			logger.Error("decode API_KEY_ENCRYPTION_KEY", "error", err)
			os.Exit(1)
		}
	}

	// Each cache subscribes itself to bus at construction; order only
	// matters here because CascadeResolver takes the other two as
	// dependencies.
	llmConfigs := resolvers.NewLLMConfigCache(ctx, bus, pg, resolvers.DefaultTTL)
	personas := resolvers.NewPersonaCache(ctx, bus, pg, resolvers.DefaultTTL)
	credentials := resolvers.NewCredentialCache(ctx, bus, pg, encKey, resolvers.DefaultTTL)
	configResolver := resolvers.NewCascadeResolver(ctx, bus, pg, pg, llmConfigs, personas, resolvers.DefaultTTL)
	authResolver := resolvers.NewAuthResolver(credentials)

	memStore, err := memory.New(ctx, cfg.MilvusAddr, memory.HashEmbedder{})
	if err != nil {
		logger.Error("connect milvus", "error", err)
		os.Exit(1)
	}
	defer memStore.Close()
	memRetriever := memory.NewRetriever(memStore)
	memWriter := memory.NewWriter(pg, memStore)

	provider := llm.NewOpenAICompatibleProvider(cfg.LLMProviderBaseURL, &http.Client{Timeout: 2 * time.Minute})

	queueClient, err := queue.NewClient(ctx, queue.ClientConfig{URL: cfg.RedisURL})
	if err != nil {
		logger.Error("connect job queue", "error", err)
		os.Exit(1)
	}
	defer queueClient.Close()

	genDeps := pipeline.Dependencies{
		ConfigResolver:     configResolver,
		AuthResolver:       authResolver,
		MemoryRetriever:    memRetriever,
		MemoryWriter:       memWriter,
		DeliveryStore:      pg,
		Provider:           provider,
		MaxContextTokens:   8192,
		MemoryBudget:       512,
		ChannelBudgetRatio: 0.5,
		StopSequences:      []string{"[[STOP]]", "<|endofmessage|>"},
	}
	llmHandler := &jobs.LLMGenerationHandler{
		Deps:      genDeps,
		Telemetry: telemetry.NewStopSequenceRecorder(rdb),
	}
	transcriptionHandler := jobs.NewAudioTranscriptionHandler(cfg.AudioTranscriptionEndpoint, cfg.AudioTranscriptionAPIKey, &http.Client{Timeout: 2 * time.Minute})
	imageHandler := jobs.NewImageDescriptionHandler(cfg.ImageDescriptionEndpoint, cfg.ImageDescriptionAPIKey, &http.Client{Timeout: time.Minute})

	runners := []*queue.Runner{
		mustRunner(ctx, queueClient, queue.TypeLLMGeneration, llmHandler, cfg.WorkerConcurrency, logger, jobs.IsPermanent),
		mustRunner(ctx, queueClient, queue.TypeAudioTranscription, transcriptionHandler, cfg.WorkerConcurrency, logger, nil),
		mustRunner(ctx, queueClient, queue.TypeImageDescription, imageHandler, cfg.WorkerConcurrency, logger, nil),
	}

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *queue.Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				logger.Error("runner stopped", "error", err)
			}
		}(r)
	}

	logger.Info("worker started", "concurrency", cfg.WorkerConcurrency)
	wg.Wait()
	logger.Info("worker shutdown complete")
}

// mustRunner binds a RedisSource to jobType, ensures its consumer group
// exists (the one setup step Source.Connect doesn't perform lazily on
// first Next), and wraps it in a Runner. Exits the process on the one
// error that can't be handled per-job: the consumer group itself failing
// to create.
func mustRunner(ctx context.Context, client *queue.Client, jobType string, handler queue.Handler, concurrency int, logger *slog.Logger, classifier func(error) bool) *queue.Runner {
	source := queue.NewRedisSource(client, jobType)
	if err := source.Connect(ctx); err != nil {
		logger.Error("ensure consumer group", "jobType", jobType, "error", err)
		os.Exit(1)
	}
	runner := queue.NewRunner(source, handler, concurrency, logger.With("jobType", jobType))
	runner.PermanentClassifier = classifier
	return runner
}
