package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/paycart/internal/cache"
	"github.com/fjod/paycart/internal/cart"
	"github.com/fjod/paycart/internal/catalog"
	"github.com/fjod/paycart/internal/config"
	"github.com/fjod/paycart/internal/gateway"
	storehttp "github.com/fjod/paycart/internal/http"
	"github.com/fjod/paycart/internal/publisher"
	"github.com/fjod/paycart/internal/repository"
	"github.com/fjod/paycart/internal/service"
	"github.com/fjod/paycart/pkg/circuitbreaker"
	"github.com/fjod/paycart/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, os.Stdout)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Cart storage
	storage, closeStorage, err := openCartStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	registry := cart.NewRegistry(storage, cart.Config{
		TTL:             cfg.Cart.TTL,
		ConfirmationTTL: cfg.Cart.ConfirmationTTL,
		WriteTimeout:    5 * time.Second,
	}, cfg.Cart.IdleTimeout, log.With(slog.String("component", "cart")))
	defer registry.Close()

	// Catalog
	products, err := catalog.NewRepository(cfg.Catalog.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}

	// Order ledger
	orders, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer func() {
		if err := orders.Close(); err != nil {
			log.Error("failed to close order ledger", slog.Any("error", err))
		}
	}()
	log.Info("order ledger ready", slog.String("driver", cfg.Ledger.Driver))

	// Payment gateway
	gwLog := log.With(slog.String("component", "gateway"))
	gw, err := gateway.NewClient(gateway.Config{
		BaseURL:           cfg.Gateway.BaseURL,
		Timeout:           cfg.Gateway.Timeout,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		Burst:             cfg.Gateway.Burst,
		Breaker:           circuitbreaker.DefaultConfig(),
	}, gwLog)
	if err != nil {
		return err
	}
	readiness := gateway.NewReadiness(gw, cfg.Gateway.IPNURL, cfg.Gateway.NotificationType)

	// Events
	events, err := openPublisher(ctx, cfg.Events, log.With(slog.String("component", "events")))
	if err != nil {
		return err
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Error("failed to close event publisher", slog.Any("error", err))
		}
	}()

	checkout := service.NewCheckoutService(orders, gw, readiness, service.CheckoutConfig{
		CallbackURL:        cfg.Gateway.CallbackURL,
		Currency:           cfg.Gateway.Currency,
		Description:        cfg.Gateway.Description,
		DefaultCountryCode: cfg.Gateway.DefaultCountryCode,
	}, log.With(slog.String("component", "checkout")))
	reconciler := service.NewReconciler(orders, gw, events, log.With(slog.String("component", "reconciler")))

	timeout := cfg.HTTP.RequestTimeout
	router := storehttp.NewRouter(storehttp.Handlers{
		Cart:     storehttp.NewCartHandler(registry, products, timeout),
		Products: storehttp.NewProductHandler(products, timeout),
		Checkout: storehttp.NewCheckoutHandler(registry, checkout, timeout),
		Payments: storehttp.NewPaymentHandler(registry, reconciler, timeout),
		Orders:   storehttp.NewOrdersHandler(orders, timeout),
	}, storehttp.RouterConfig{
		RequestTimeout:     timeout,
		MaxRequestBodySize: cfg.HTTP.MaxRequestBodySize,
		SecureCookies:      cfg.HTTP.SecureCookies,
		SessionMaxAge:      cfg.Cart.TTL,
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("storefront starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down server", slog.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// deferred closes flush every cart store before the storage goes away
	log.Info("server exited")
	return nil
}

func openCartStorage(ctx context.Context, cfg *config.Config) (cache.CartStore, func(), error) {
	if cfg.Cart.Storage == "memory" {
		return cache.NewMemoryCache(), func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return cache.NewRedisCache(redisClient), func() { _ = redisClient.Close() }, nil
}

func openLedger(ctx context.Context, cfg config.LedgerConfig) (repository.OrderRepository, error) {
	switch cfg.Driver {
	case "postgres":
		cred := &repository.Credentials{
			Host:              cfg.PostgresHost,
			Port:              cfg.PostgresPort,
			User:              cfg.PostgresUser,
			Password:          cfg.PostgresPassword,
			DBName:            cfg.PostgresDB,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		repo, err := repository.NewPostgresRepository(cred)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := repo.RunMigrations(cred); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("migrate orders: %w", err)
		}
		return repo, nil
	case "mongo":
		db, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		repo := repository.NewMongoRepository(db)
		if err := repo.CreateIndexes(ctx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("create order indexes: %w", err)
		}
		return repo, nil
	case "bolt":
		repo, err := repository.NewBoltRepository(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt ledger: %w", err)
		}
		return repo, nil
	default:
		return repository.NewMemoryRepository(), nil
	}
}

func openPublisher(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (publisher.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		return publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log), nil
	case "nats":
		p, err := publisher.NewNatsPublisher(ctx, cfg.NatsURL, cfg.NatsSubject, log)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		return p, nil
	default:
		return publisher.Noop{}, nil
	}
}
