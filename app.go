package main

import (
	"context"
	"errors"

	"pennytrack/apperrors"
	"pennytrack/cache"
	"pennytrack/classifier"
	"pennytrack/config"
	"pennytrack/database"
	"pennytrack/logger"
	"pennytrack/publisher"
	"pennytrack/repository"
	"pennytrack/scheduler"
	"pennytrack/scraper"
)

// app holds the services shared by every command
type app struct {
	store     repository.Store
	prices    *scraper.PriceFetcher
	catalog   *scraper.CatalogFetcher
	publisher publisher.Publisher
	tracker   *scheduler.Tracker
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.ForComponent("app")

	c, err := loadClassifier(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	pub, err := openPublisher(ctx, cfg.Redis)
	if err != nil {
		store.Close()
		return nil, err
	}

	sessions := &scraper.RodSessions{Browser: cfg.Browser, StoreID: cfg.StoreID, Profile: scraper.RodStealth{}}
	prices := scraper.NewPriceFetcher(sessions, cfg.Browser)
	catalog := scraper.NewCatalogFetcher(sessions, cfg.StoreID, cfg.Browser, cfg.Discovery)

	tracker := scheduler.NewTracker(store, prices, catalog, c, pub, openCooldown(cfg.Memcache), scheduler.TrackerConfig{
		StoreID:        cfg.StoreID,
		ItemDelay:      cfg.Sync.ItemDelay,
		BlockedDelay:   cfg.Sync.BlockedDelay,
		Categories:     cfg.Discovery.Categories,
		MaxPerCategory: cfg.Discovery.MaxPerCategory,
	})

	log.Info().
		Str("store", cfg.StoreID).
		Str("backend", cfg.Store.Backend).
		Str("policy", c.PolicyVersion()).
		Int("categories", len(cfg.Discovery.Categories)).
		Msg("Services initialized")

	return &app{store: store, prices: prices, catalog: catalog, publisher: pub, tracker: tracker}, nil
}

// Close releases the store and publisher connections
func (a *app) Close() error {
	return errors.Join(a.publisher.Close(), a.store.Close())
}

func loadClassifier(path string) (*classifier.Classifier, error) {
	if path == "" {
		return classifier.NewDefault(), nil
	}
	policy, err := classifier.LoadPolicy(path)
	if err != nil {
		return nil, apperrors.NewConfiguration("load markdown policy", err)
	}
	return classifier.New(policy), nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	if cfg.Backend != config.BackendPostgres {
		return repository.NewCSVStore(cfg.TrackedItemsPath, cfg.PriceHistoryPath)
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.CreateTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return repository.NewPostgresStore(db), nil
}

func openPublisher(ctx context.Context, cfg config.RedisConfig) (publisher.Publisher, error) {
	if cfg.Addr == "" {
		return publisher.Nop{}, nil
	}
	pub := publisher.NewRedisPublisher(ctx, cfg.Addr, cfg.DB, cfg.Stream, cfg.StreamMaxLength)
	if err := pub.Ping(); err != nil {
		pub.Close()
		return nil, apperrors.NewConfiguration("connect to redis at "+cfg.Addr, err)
	}
	return pub, nil
}

// openCooldown keeps the pause in memcached when it answers, in memory otherwise
func openCooldown(cfg config.MemcacheConfig) *cache.Cooldown {
	if cfg.Addr != "" {
		mc := cache.NewMemcacheService(cfg.Addr)
		if err := mc.Ping(); err == nil {
			return cache.NewCooldown(mc, cfg.BlockCooldown)
		}
		logger.ForComponent("app").Warn().Str("addr", cfg.Addr).Msg("Memcached unavailable, keeping cooldown in memory")
	}
	return cache.NewCooldown(cache.NewMemoryCache(), cfg.BlockCooldown)
}
