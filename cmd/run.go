package cmd

import (
	"context"
	"errors"
	"fmt"

	"insightquest/api"
	"insightquest/config"
	"insightquest/database"
	"insightquest/events"
	"insightquest/infrastructure"
	"insightquest/infrastructure/observability"
	"insightquest/ledger"
	"insightquest/repository"
	"insightquest/service"
	"insightquest/wallet"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	cfg := config.Get()
	ConfigureLogging(cfg)

	log.WithField("environment", cfg.Environment).Info("Starting insightquest...")

	// Initialize database connection
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	// Initialize metrics
	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to shut down metrics provider")
		}
	}()

	// NATS is connected before the bus so the bus drains into it on shutdown
	var natsClient *infrastructure.NATSClient
	if cfg.NATSServers != "" {
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers, cfg.OTelServiceName)
		if err := natsClient.Connect(ctx); err != nil {
			return err
		}
		defer natsClient.Close()

		if err := natsClient.EnsureStream(infrastructure.EventStreamName, infrastructure.EventSubjects()); err != nil {
			return err
		}
	}

	eventBus := events.NewBus()
	defer eventBus.Close()

	if natsClient != nil {
		forwarder := infrastructure.NewEventForwarder(natsClient, cfg.OTelServiceName)
		// eventBus.Close drains the forwarder before NATS is closed
		forwarder.Attach(eventBus)
		log.Info("Forwarding session events to NATS")
	}

	memory, closeMemory, err := newSessionMemory(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeMemory()

	bridge := wallet.NewBridge(cfg.WalletBridgeURL)
	if err := bridge.Connect(ctx); err != nil {
		// connect reports WalletUnavailable until the bridge is reachable
		log.WithError(err).Warn("Wallet bridge unavailable")
	}
	defer bridge.Close()

	ledgerClient, err := ledger.Dial(ctx, cfg.LedgerRPCURL, cfg.TokenContractAddress, cfg.TokenDecimals, cfg.LedgerRateLimit)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger client: %w", err)
	}
	defer ledgerClient.Close()

	sessions := service.NewSessionManager(service.SessionManagerConfig{
		Wallet:       bridge,
		Store:        repository.NewUserRepository(db),
		Ledger:       ledgerClient,
		Memory:       memory,
		Publisher:    eventBus,
		Metrics:      metrics,
		Network:      cfg.Network(),
		Token:        cfg.Token(),
		PollInterval: cfg.BalancePollInterval,
	})
	defer sessions.Close()

	if _, err := sessions.RestoreSession(ctx); err != nil && !errors.Is(err, service.ErrNoRememberedSession) {
		log.WithError(err).Warn("Could not restore remembered session")
	}

	server := api.NewServer(cfg.HTTPAddr, api.NewRouter(sessions, eventBus), cfg.ShutdownTimeout)
	if err := server.Run(ctx); err != nil {
		return err
	}

	log.Info("Shutting down insightquest...")
	return nil
}

// newSessionMemory selects Redis when configured, otherwise the Postgres table
func newSessionMemory(ctx context.Context, cfg *config.Config, db *database.DB) (service.SessionMemory, func(), error) {
	if cfg.RedisURL == "" {
		return repository.NewSessionMemoryRepository(db, cfg.ClientID), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.WithField("addr", opts.Addr).Info("Remembering sessions in Redis")
	return repository.NewRedisSessionMemory(client, cfg.ClientID), func() { _ = client.Close() }, nil
}
