package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"magicbag/internal/caching"
	"magicbag/internal/config"
	"magicbag/internal/geocoding"
	"magicbag/internal/marketplace"
	"magicbag/internal/repositories"
	"magicbag/internal/services"
	"magicbag/pkg/database"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	store       *repositories.PersistenceStore
	cache       caching.CacheService
	marketplace *marketplace.Client
	locations   services.LocationService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	store := repositories.NewPersistenceStore(pool, repositories.Options{DedupeLocations: cfg.DedupeLocations}, logger)
	if err := store.Initialize(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var cache caching.CacheService
	if cfg.RedisAddr != "" {
		cache = newRedisCache(cfg)
	} else {
		logger.Warn("REDIS_ADDR not set, using in-memory cache; notification history is lost on restart")
		cache = caching.NewMemoryCacheService()
	}

	geocoder := geocoding.NewNominatimClient(cfg.NominatimURL, cfg.UserAgent, logger)

	return &app{
		cfg:         cfg,
		pool:        pool,
		store:       store,
		cache:       cache,
		marketplace: newMarketplaceClient(cfg, cache),
		locations:   services.NewLocationService(geocoder, store.Locations, logger),
	}, nil
}

func newRedisCache(cfg *config.Config) caching.CacheService {
	return caching.NewRedisCacheService(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
}

func newMarketplaceClient(cfg *config.Config, cache caching.CacheService) *marketplace.Client {
	opts := marketplace.Options{
		BaseURL:       cfg.MarketplaceURL,
		Email:         cfg.MarketplaceEmail,
		UserAgent:     cfg.UserAgent,
		PageSize:      cfg.PageSize,
		PageTimeout:   cfg.PageTimeout,
		FetchTimeout:  cfg.FetchTimeout,
		RatePerSecond: cfg.RatePerSecond,
		Cache:         cache,
		Logger:        logger,
	}
	if cfg.Credentials.AccessToken != "" {
		opts.Credentials = &marketplace.Credentials{
			AccessToken:  cfg.Credentials.AccessToken,
			RefreshToken: cfg.Credentials.RefreshToken,
			UserID:       cfg.Credentials.UserID,
			Cookie:       cfg.Credentials.Cookie,
		}
	}
	return marketplace.NewClient(opts)
}

func (a *app) pollService(notifier services.Notifier) services.PollService {
	return services.NewPollService(a.store, a.marketplace, notifier, a.cache, services.PollOptions{
		RadiusKM: a.cfg.SearchRadiusKM,
		Logger:   logger,
	})
}

func (a *app) Close() {
	a.pool.Close()
}
