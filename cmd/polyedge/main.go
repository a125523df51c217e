package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/polyedge/internal/cache"
	"github.com/rewired-gh/polyedge/internal/config"
	"github.com/rewired-gh/polyedge/internal/dedup"
	"github.com/rewired-gh/polyedge/internal/evaluator"
	"github.com/rewired-gh/polyedge/internal/gate"
	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/oracle"
	"github.com/rewired-gh/polyedge/internal/pipeline"
	"github.com/rewired-gh/polyedge/internal/polymarket"
	"github.com/rewired-gh/polyedge/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	testMode   = flag.Bool("test", false, "Analyze recent channel posts once and exit")
	hours      = flag.Float64("hours", 0, "Backfill window in hours for -test (overrides pipeline.backfill_window)")
)

var errFeedStopped = errors.New("news feed stopped unexpectedly")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	polyClient := polymarket.NewClient(
		cfg.Polymarket.GammaAPIURL,
		cfg.Polymarket.Timeout,
		polymarket.ClientConfig{
			MaxRetries:         cfg.Polymarket.MaxRetries,
			RetryDelayBase:     cfg.Polymarket.RetryDelayBase,
			RateLimitPerSecond: cfg.Polymarket.RateLimit,
		},
	)
	marketCache := cache.New(polyClient, cfg.Pipeline.CacheTTL, cfg.Polymarket.Timeout)

	oracleClient := oracle.NewClient(
		cfg.Oracle.APIURL,
		cfg.Oracle.APIKey,
		cfg.Oracle.Model,
		cfg.Oracle.MaxTokens,
		cfg.Oracle.Timeout,
	)
	ev := evaluator.New(oracleClient, evaluator.Config{
		Threshold:  cfg.Pipeline.MinEdgeThreshold,
		MaxMarkets: cfg.Oracle.MaxMarkets,
		Timeout:    cfg.Oracle.Timeout,
	})

	var notifier *telegram.Client
	var sink pipeline.Sink = pipeline.LogSink{}
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			cfg.Polymarket.MarketURLBase,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		sink = notifier
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Info("Telegram alerts disabled, opportunities will only be logged")
	}

	listener, err := telegram.NewListener(cfg.Telegram.BotToken, cfg.Telegram.SourceChannels, cfg.Telegram.PollTimeout)
	if err != nil {
		logger.Fatal("Failed to initialize news feed: %v", err)
	}

	dedupStore := dedup.New(cfg.Pipeline.DedupTTL)
	orch := pipeline.New(marketCache, gate.New(cfg.Pipeline.Concurrency), ev, dedupStore, sink, pipeline.Options{
		Limit: cfg.Polymarket.Limit,
		Pause: cfg.Pipeline.BackfillPause,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if *testMode {
		window := cfg.Pipeline.BackfillWindow
		if *hours > 0 {
			window = time.Duration(*hours * float64(time.Hour))
		}
		if err := runBackfill(ctx, listener, orch, window); err != nil {
			reportError(notifier, err)
			logger.Fatal("Backfill failed: %v", err)
		}
		return
	}

	if err := runLive(ctx, cfg, listener, orch, marketCache, dedupStore, notifier); err != nil {
		reportError(notifier, err)
		logger.Fatal("Service failed: %v", err)
	}
	logger.Info("Service stopped")
}

func runBackfill(ctx context.Context, listener *telegram.Listener, orch *pipeline.Orchestrator, window time.Duration) error {
	logger.Info("Test mode: analyzing channel posts from the last %v", window)

	events, err := listener.FetchRecent(ctx, window)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		logger.Info("No news in the last %v", window)
		return nil
	}

	report, err := orch.RunBackfill(ctx, events)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Test mode finished: %d events, %d candidates, %d delivered, %d suppressed, %d failed",
		report.Events, report.Candidates, report.Delivered, report.Suppressed, report.Failed)
	return nil
}

func runLive(
	ctx context.Context,
	cfg *config.Config,
	listener *telegram.Listener,
	orch *pipeline.Orchestrator,
	marketCache *cache.MarketCache,
	dedupStore *dedup.Store,
	notifier *telegram.Client,
) error {
	logger.Debug("Warming market cache")
	markets := marketCache.Get(ctx, cfg.Polymarket.Limit)
	logger.Info("Market cache warmed with %d markets", len(markets))

	if notifier != nil {
		if err := notifier.SendStartup(ctx, listener.Channels(), cfg.Pipeline.MinEdgeThreshold); err != nil {
			logger.Warn("Failed to send startup notification to Telegram: %v", err)
		}
	}

	logger.Info("Starting live monitoring (channels: %v, min edge: %.1f%%, concurrency: %d)",
		listener.Channels(), cfg.Pipeline.MinEdgeThreshold*100, cfg.Pipeline.Concurrency)

	g, gctx := errgroup.WithContext(ctx)

	events := listener.Subscribe(gctx)
	g.Go(func() error {
		if err := orch.RunLive(gctx, events); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errFeedStopped
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Pipeline.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snap := marketCache.Peek()
				logger.Info("Status: %d markets cached (age %v), %d alerts in dedup window",
					len(snap.Markets), snap.Age(time.Now()).Round(time.Second), dedupStore.Len())
			}
		}
	})

	return g.Wait()
}

func reportError(notifier *telegram.Client, err error) {
	if notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if sendErr := notifier.SendError(ctx, err); sendErr != nil {
		logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
	}
}
