package main

import (
	"context"
	"time"

	"sjsage522/placereview/config"
	"sjsage522/placereview/internal"
	"sjsage522/placereview/internal/browser"
	"sjsage522/placereview/internal/dates"
	"sjsage522/placereview/internal/scraper"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
	"sjsage522/placereview/services/analyzer"
	"sjsage522/placereview/services/cache"
	"sjsage522/placereview/services/proxy"
	"sjsage522/placereview/services/queue"
	"sjsage522/placereview/services/store"
)

type component uint8

const (
	withStore component = 1 << iota
	withQueue
	withCache
	withBrowser
	withAnalyzer
)

// initializeServices connects the requested components
func initializeServices(ctx context.Context, cfg *config.Config, want component) (*internal.Dependencies, error) {
	deps := &internal.Dependencies{}
	ok := false
	defer func() {
		if !ok {
			deps.Cleanup()
		}
	}()

	if want&withStore != 0 {
		st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		deps.Store = st
		logger.Info("Connected to PostgreSQL")
	}

	if want&withQueue != 0 {
		q, err := queue.NewRedisQueue(ctx, queue.RedisOptions{
			Addr:          cfg.RedisAddr,
			DB:            cfg.RedisDB,
			Stream:        cfg.RedisStream,
			Group:         cfg.RedisGroup,
			Consumer:      cfg.RedisConsumer,
			MaxDeliveries: cfg.JobMaxDeliveries,
			ReclaimIdle:   cfg.JobReclaimIdle,
		})
		if err != nil {
			return nil, err
		}
		deps.Queue = q
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	if want&withCache != 0 {
		deps.Progress = newProgressCache(cfg)
	}

	if want&withBrowser != 0 {
		deps.Proxies = proxy.NewManager(cfg.BrowserProxies)
		if deps.Proxies.Len() > 0 {
			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			stats := deps.Proxies.Check(checkCtx)
			cancel()
			logger.Default.Info().Interface("proxy_stats", stats).Msg("Proxy stats")
		}

		var launcher browser.Launcher = browser.NewChromedpLauncher()
		if cfg.BrowserDriver == "rod" {
			launcher = browser.NewRodLauncher()
		}
		deps.Browsers = browser.NewPool(launcher, browser.PoolOptions{
			Capacity:  cfg.BrowserSessions,
			ChromeBin: cfg.ChromeBin,
			Headless:  true,
			Proxies:   deps.Proxies,
		})

		sc, err := scraper.New(deps.Browsers, scraperConfig(cfg), dates.New())
		if err != nil {
			return nil, err
		}
		deps.Scraper = sc
	}

	if want&withAnalyzer != 0 {
		p, err := analyzer.NewProvider(cfg.AnalyzerProvider, cfg.AnalyzerModel, cfg.AnalyzerEndpoint, cfg.OpenAIAPIKey)
		if err != nil {
			return nil, errors.NewConfiguration("sentiment analyzer", err)
		}
		deps.Analyzer = analyzer.NewLLMAnalyzer(p)
	}

	ok = true
	return deps, nil
}

// newProgressCache returns a snapshot cache, or a disabled one when
// memcached does not answer
func newProgressCache(cfg *config.Config) *cache.ProgressCache {
	mc := cache.NewMemcacheService(cfg.MemcacheAddr)
	if err := mc.Ping(); err != nil {
		logger.Default.Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable, progress snapshots disabled")
		return cache.NewProgressCache(nil, cfg.ProgressCacheTTL)
	}
	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	return cache.NewProgressCache(mc, cfg.ProgressCacheTTL)
}

func scraperConfig(cfg *config.Config) scraper.Config {
	sc := scraper.DefaultConfig()
	sc.URLTemplate = cfg.PlaceReviewURLTemplate
	sc.NavTimeout = cfg.NavTimeout
	sc.NavRetries = cfg.NavRetries
	sc.NavRetryDelay = cfg.NavRetryDelay
	if cfg.IsProduction() {
		// the feed keeps polling longer behind the proxy pool
		sc.IdleTimeout = 20 * time.Second
	}
	sc.Scroll = scraper.ScrollConfig{
		Settle:        cfg.ScrollSettle,
		MaxIterations: cfg.ScrollMaxIterations,
		StableRounds:  cfg.ScrollStableRounds,
	}
	return sc
}
