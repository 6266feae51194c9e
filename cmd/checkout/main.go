package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"fanpay/internal/api"
	"fanpay/internal/chain"
	"fanpay/internal/checkout"
	"fanpay/internal/common/database"
	commonnats "fanpay/internal/common/nats"
	"fanpay/internal/events"
	"fanpay/internal/payments"
	"fanpay/internal/store"
	"fanpay/internal/verify"
	"fanpay/internal/wallet"
)

// Config holds service configuration
type Config struct {
	Port        int      `envconfig:"CHECKOUT_PORT" default:"8080"`
	Environment string   `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"json"`
	StateDir    string   `envconfig:"STATE_DIR" default:"./data"`
	Storage     string   `envconfig:"STORAGE" default:"memory"` // memory or postgres
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	PaymentTimeout time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"2m"`

	Database database.Config
	NATS     commonnats.Config
	Chain    chain.Config
	Wallet   verify.WalletConfig
	KYC      verify.KYCConfig
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Storage backend
	var st store.Store
	switch cfg.Storage {
	case "postgres":
		db, err := database.New(ctx, cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := database.Migrate(store.Migrations(), cfg.Database.URL, logger); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		st = store.NewPostgresStore(db)
	default:
		st = store.NewSeededMemoryStore()
		logger.Info("using in-memory store with demo assets")
	}

	// Event publisher
	var publisher events.Publisher = events.NewNoopPublisher(logger)
	if cfg.NATS.Enabled {
		nc, err := commonnats.New(cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		publisher = events.NewNATSPublisher(nc)
	}

	gateway := store.NewGateway(st, publisher, logger)

	// Chain adapter: real EVM when a signing key is configured, otherwise
	// the deterministic simulator.
	var adapter chain.Adapter
	if cfg.Chain.PrivateKey != "" {
		evm, err := chain.NewEVMAdapter(cfg.Chain, logger)
		if err != nil {
			logger.Error("failed to create chain adapter", "error", err)
			os.Exit(1)
		}
		adapter = evm
	} else {
		adapter = chain.NewSimAdapter(chain.ValidatorAddress, decimal.NewFromInt(100000))
		logger.Info("no signing key configured, using simulated chain")
	}

	// Wallet connection store
	persister, err := wallet.NewFilePersister(cfg.StateDir)
	if err != nil {
		logger.Error("failed to create state directory", "error", err)
		os.Exit(1)
	}
	walletStore := wallet.NewStore(adapter, persister, logger)
	walletStore.Initialize(ctx)

	// Verification services
	walletSvc := verify.NewWalletService(cfg.Wallet, st, publisher, logger)
	kycSvc := verify.NewKYCService(cfg.KYC, st, logger)
	affordSvc := verify.NewAffordabilityService(st, logger)

	// Payment router and checkout sessions
	router := payments.NewRouter(logger, cfg.PaymentTimeout,
		payments.NewChainHandler(adapter, gateway, logger),
		payments.NewDemoHandler(gateway, logger),
		payments.NewCardHandler(gateway, logger),
	)
	sessions := api.NewSessionHandler(checkout.Deps{
		Wallet:        walletSvc,
		KYC:           kycSvc,
		Affordability: affordSvc,
		Router:        router,
		Gateway:       gateway,
		Chain:         adapter,
		Logger:        logger,
	})

	handler := api.NewHandler(gateway, walletSvc, kycSvc, affordSvc, logger).
		WithSessions(sessions).
		WithWalletConnection(api.NewWalletHandler(walletStore, walletSvc))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler.Routes(cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting checkout service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"storage", cfg.Storage,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
