// Package main wires together the sitebrain service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/sitebrain/sitebrain/internal/api"
	"github.com/sitebrain/sitebrain/internal/chat"
	"github.com/sitebrain/sitebrain/internal/clock/system"
	"github.com/sitebrain/sitebrain/internal/config"
	"github.com/sitebrain/sitebrain/internal/contexts"
	"github.com/sitebrain/sitebrain/internal/core"
	"github.com/sitebrain/sitebrain/internal/crawl"
	"github.com/sitebrain/sitebrain/internal/embedding"
	"github.com/sitebrain/sitebrain/internal/fetch"
	"github.com/sitebrain/sitebrain/internal/generation"
	"github.com/sitebrain/sitebrain/internal/id/uuid"
	"github.com/sitebrain/sitebrain/internal/logging"
	"github.com/sitebrain/sitebrain/internal/markdown"
	"github.com/sitebrain/sitebrain/internal/metrics"
	queuememory "github.com/sitebrain/sitebrain/internal/queue/memory"
	queuepubsub "github.com/sitebrain/sitebrain/internal/queue/pubsub"
	"github.com/sitebrain/sitebrain/internal/retrieval"
	"github.com/sitebrain/sitebrain/internal/sitemap"
	"github.com/sitebrain/sitebrain/internal/storage/gcs"
	"github.com/sitebrain/sitebrain/internal/storage/local"
	memorystorage "github.com/sitebrain/sitebrain/internal/storage/memory"
	"github.com/sitebrain/sitebrain/internal/storage/postgres"
)

// stores groups the persistence interfaces selected by config.
type stores struct {
	sites    core.SiteStore
	pages    core.PageStore
	contexts core.ContextStore
	chats    core.ChatStore
	runs     core.RunStore
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	idGen := uuid.New()

	st, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	queue, queueClose, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer queueClose()

	embedder, err := buildEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	generator, err := generation.NewGenAIClient(ctx, cfg.Generation.APIKey, cfg.Generation.Model)
	if err != nil {
		return fmt.Errorf("init generation client: %w", err)
	}

	resolver := sitemap.New(sitemap.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.SitemapTimeout(),
		MaxDepth:     cfg.Crawl.SitemapMaxDepth,
		MaxBodyBytes: int64(cfg.Fetch.MaxBodyBytes),
	}, logger.Named("sitemap"))

	probe := fetch.NewColly(fetch.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})
	var headless core.Fetcher
	var detector core.PromotionDetector
	if cfg.Headless.Enabled {
		renderer, err := fetch.NewHeadless(fetch.HeadlessConfig{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			defer renderer.Close()
			headless = renderer
			detector = fetch.NewHeuristic(cfg.Headless.PromotionThresh)
		}
	}

	pipeline := crawl.NewPipeline(
		st.pages, probe, headless, detector,
		markdown.New(), embedder, logger.Named("pipeline"),
	)
	orchestrator := crawl.NewOrchestrator(
		st.sites, st.pages, st.runs, resolver, pipeline,
		clock, idGen,
		crawl.Config{PageConcurrency: cfg.Crawl.PageConcurrency},
		logger.Named("crawl"),
	)

	var workers []*crawl.Worker
	for i := 0; i < cfg.Crawl.Workers; i++ {
		workers = append(workers, crawl.NewWorker(
			queue, orchestrator,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatcher := crawl.NewDispatcher(queue, workers)

	engine := retrieval.NewEngine(st.pages, st.contexts)
	contextSvc := contexts.NewService(st.contexts, blobs, embedder, clock, idGen, logger.Named("contexts"))
	responder := chat.NewResponder(
		st.chats, st.sites, embedder, engine, generator,
		clock, idGen, chat.Config{TopK: cfg.Retrieval.TopK}, logger.Named("chat"),
	)

	apiServer := api.NewServer(
		st.sites, st.pages, contextSvc, responder, dispatcher,
		idGen, clock, cfg, logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Crawl.Workers))
		dispatcher.Run(ctx)
	}()

	// Crawls interrupted by the previous process restart from their last
	// checkpoint before new work is accepted.
	go func() {
		if err := orchestrator.ResumePending(ctx); err != nil {
			logger.Error("resume pending runs failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	contextSvc.Wait()
	responder.Wait()
	logger.Info("shutdown complete")
	return nil
}

func buildStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.DB.DSN == "" {
		return stores{
			sites:    memorystorage.NewSiteStore(),
			pages:    memorystorage.NewPageStore(),
			contexts: memorystorage.NewContextStore(),
			chats:    memorystorage.NewChatStore(),
			runs:     memorystorage.NewRunStore(),
		}, nil
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return stores{}, err
	}
	if err := postgres.InitSchema(ctx, pool); err != nil {
		return stores{}, err
	}
	return stores{
		sites:    postgres.NewSiteStore(pool),
		pages:    postgres.NewPageStore(pool),
		contexts: postgres.NewContextStore(pool),
		chats:    postgres.NewChatStore(pool),
		runs:     postgres.NewRunStore(pool),
	}, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (core.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		})
	case "local":
		return local.New(cfg.Storage.LocalDir)
	default:
		return memorystorage.NewBlobStore(), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (core.Queue, func(), error) {
	if cfg.Queue.Provider == "pubsub" {
		q, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:    cfg.Queue.ProjectID,
			Topic:        cfg.Queue.Topic,
			Subscription: cfg.Queue.Subscription,
		}, logger.Named("queue"))
		if err != nil {
			return nil, nil, fmt.Errorf("init pubsub queue: %w", err)
		}
		return q, func() {
			if err := q.Close(); err != nil {
				logger.Warn("close pubsub queue failed", zap.Error(err))
			}
		}, nil
	}
	return queuememory.New(cfg.Crawl.QueueDepth), func() {}, nil
}

func buildEmbedder(ctx context.Context, cfg config.Config, logger *zap.Logger) (core.Embedder, error) {
	engine, err := embedding.NewGenAIEngine(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model)
	if err != nil {
		return nil, fmt.Errorf("init embedding engine: %w", err)
	}
	return embedding.NewRetry(engine, embedding.RetryConfig{
		MaxAttempts: cfg.Embedding.MaxAttempts,
		BackoffBase: cfg.EmbeddingBackoffBase(),
	}, logger.Named("embedding")), nil
}
