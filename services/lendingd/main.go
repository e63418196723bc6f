package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	genesisconfig "nftlend/config"
	"nftlend/core/events"
	"nftlend/native/lending"
	"nftlend/observability"
	"nftlend/observability/logging"
	telemetry "nftlend/observability/otel"
	"nftlend/services/lendingd/config"
	"nftlend/services/lendingd/indexer"
	"nftlend/services/lendingd/ledger"
	"nftlend/services/lendingd/server"
	"nftlend/storage"
)

func main() {
	var (
		cfgPath    string
		issueFor   string
		issueTTL   time.Duration
		readHeader time.Duration
	)
	flag.StringVar(&cfgPath, "config", "", "path to lendingd config (defaults apply when empty)")
	flag.StringVar(&issueFor, "issue-token", "", "print a bearer token for this address and exit")
	flag.DurationVar(&issueTTL, "token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.DurationVar(&readHeader, "read-header-timeout", 10*time.Second, "HTTP read header timeout")
	flag.Parse()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.SetupWithOptions("lendingd", cfg.Environment, logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})

	if issueFor != "" {
		if err := issueToken(cfg, issueFor, issueTTL); err != nil {
			logger.Error("issue token", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger, readHeader); err != nil {
		logger.Error("lendingd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default()
	}
	return config.Load(path)
}

func issueToken(cfg config.Config, raw string, ttl time.Duration) error {
	if !common.IsHexAddress(raw) {
		return fmt.Errorf("invalid address %q", raw)
	}
	auth := server.NewAuthenticator(authConfig(cfg), nil)
	token, err := auth.IssueToken(common.HexToAddress(raw), ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func authConfig(cfg config.Config) server.AuthConfig {
	return server.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew,
	}
}

func run(cfg config.Config, logger *slog.Logger, readHeader time.Duration) error {
	logger.Info("starting lendingd", slog.Any("config", cfg.Sanitized()))

	genesis, err := genesisconfig.Load(cfg.Genesis)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "lendingd",
		Environment: cfg.Environment,
		Network:     genesis.NetworkName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	store := lending.NewStore(db)

	hub := server.NewHub()
	emitters := events.Fanout{hub, observability.Events().Emitter()}
	var idx *indexer.Indexer
	if cfg.Indexer.DSN != "" {
		idx, err = indexer.Open(cfg.Indexer.DSN, logger.With(slog.String("component", "indexer")))
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer idx.Close()
		emitters = append(emitters, idx)
	}

	world, err := ledger.Bootstrap(genesis, ledger.Options{
		Emitter: emitters,
		Store:   store,
		Logger:  logger.With(slog.String("component", "lending")),
	})
	if err != nil {
		return fmt.Errorf("bootstrap ledger: %w", err)
	}
	logger.Info("ledger ready",
		slog.String("network", genesis.NetworkName),
		slog.String("registry", world.Registry.Address().Hex()),
		slog.String("owner", world.Registry.Owner().Hex()),
		slog.Int("tokens", len(world.Tokens)),
		slog.Int("collections", len(world.Collections)))

	srv, err := server.New(server.Options{
		Ledger:  world,
		Store:   store,
		Indexer: idx,
		Hub:     hub,
		Auth:    authConfig(cfg),
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Devnet: cfg.Devnet,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeader,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", slog.String("address", cfg.ListenAddress), slog.Bool("devnet", cfg.Devnet))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Kind {
	case config.StorageLevelDB:
		return storage.NewLevelDB(cfg.Path)
	case config.StorageBolt:
		return storage.NewBoltDB(cfg.Path, nil)
	default:
		return storage.NewMemDB(), nil
	}
}
