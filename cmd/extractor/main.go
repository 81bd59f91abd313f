package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spextract/application"
	"spextract/database"
	"spextract/domain/contracts"
	"spextract/domain/extraction"
	"spextract/infrastructure/config"
	"spextract/infrastructure/repositories"
	"spextract/infrastructure/spclient"
	"spextract/infrastructure/tablewriter"
	"spextract/infrastructure/tokenstore"
	"spextract/logging"
)

func main() {
	loadEnvironment()
	cfg := config.LoadAppConfigFromEnv()

	configPath := flag.String("config", cfg.ConfigPath, "path to the job configuration file (JSON or YAML)")
	flag.Parse()
	cfg.ConfigPath = *configPath

	logger := initializeLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Extraction failed", "error", err.Error())
		stop()
		os.Exit(1)
	}
}

func loadEnvironment() {
	if err := godotenv.Load(); err != nil {
		println("No .env file found, using environment variables")
	} else {
		println("Loaded configuration from .env file")
	}
}

func initializeLogging(cfg *config.AppConfig) *logging.Logger {
	logger := logging.NewLogger(cfg.Logging)
	logging.SetDefault(logger)

	logger.Info("Extractor starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"log_format", cfg.Logging.Format,
		"config_path", cfg.ConfigPath,
		"data_dir", cfg.DataDir,
		"state_backend", cfg.StateBackend,
	)

	return logger
}

// run executes one extraction and records it in the run log.
func run(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) error {
	job, err := config.LoadJobConfig(cfg.ConfigPath)
	if err != nil {
		return err
	}
	if job.Parameters.Debug {
		cfg.Logging.Level = "debug"
		logger = logging.NewLogger(cfg.Logging)
		logging.SetDefault(logger)
		logger.Debug("Debug logging enabled by job configuration")
	}

	db, err := database.New(ctx, *cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	health, err := db.Health(ctx)
	if err != nil {
		return fmt.Errorf("check database: %w", err)
	}
	logger.Database("State database ready", "path", cfg.Database.Path, "open_connections", health["open_connections"])

	store, closeStore, err := openTokenStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	runs := repositories.NewSqliteRunRepository(db)
	switch prev, err := runs.LastRun(ctx, cfg.StateKey); {
	case err == nil:
		logger.Info("Previous run", "run_id", prev.ID, "status", prev.Status, "started_at", prev.StartedAt.Format(time.RFC3339))
	case !errors.Is(err, contracts.ErrRunNotFound):
		logger.Warn("Failed to read previous run", "error", err.Error())
	}

	record := &extraction.Run{
		StateKey:  cfg.StateKey,
		Status:    extraction.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := runs.StartRun(ctx, record); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	logger.Info("Run started", "run_id", record.ID)

	stats, runErr := extract(ctx, cfg, job, store, logger)

	// The run is recorded even after cancellation.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	record.Finish(time.Now().UTC(), stats, runErr)
	if err := runs.FinishRun(finishCtx, record); err != nil {
		logger.Warn("Failed to record run result", "run_id", record.ID, "error", err.Error())
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("Run finished", "run_id", record.ID, "duration", record.Duration().String())
	return nil
}

// extract authenticates, builds the Graph client and runs every configured list.
func extract(ctx context.Context, cfg *config.AppConfig, job *extraction.JobConfig, store contracts.TokenStore, logger *logging.Logger) (extraction.RunStats, error) {
	retry := spclient.NewRetryTransport(nil, cfg.Graph.Retry)

	gate, err := authenticate(ctx, cfg, job.Authorization, store, retry, logger)
	if err != nil {
		return extraction.RunStats{}, err
	}

	client := spclient.NewClient(spclient.Config{
		BaseURL:       cfg.Graph.BaseURL,
		ItemsPageSize: cfg.Graph.ItemsPageSize,
	}, gate)

	sink := application.NewDirectorySink(tablewriter.NewDirectory(cfg.DataDir))
	service := application.NewExtractionService(client, sink)

	metrics, err := service.Run(ctx, job.Parameters)
	metrics.TokenRefreshes = gate.Refreshes()
	metrics.LogPerformanceMetrics(logger, job.Parameters.BaseHostName)
	return metrics.Stats(), err
}

// authenticate builds the token gate. With a static api_token there is no
// exchange; otherwise the stored refresh token is tried before the configured
// one, and every newly issued refresh token is persisted.
func authenticate(ctx context.Context, cfg *config.AppConfig, auth extraction.Authorization, store contracts.TokenStore, retry http.RoundTripper, logger *logging.Logger) (*spclient.TokenGate, error) {
	cred := auth.Credential()
	if auth.UsesStaticToken() {
		logger.Security("Using static access token, refresh disabled")
		return spclient.NewStaticTokenGate(retry, cred), nil
	}

	stored, err := store.LoadRefreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}

	exchanger := spclient.NewOAuthExchanger(cfg.Graph.TokenURL, &http.Client{Transport: retry})
	gate, err := spclient.Authenticate(ctx, retry, exchanger, cred, stored, auth.RefreshToken)
	if err != nil {
		return nil, err
	}

	if err := store.SaveRefreshToken(ctx, gate.Credential().RefreshToken); err != nil {
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	gate.OnRefresh(func(c extraction.Credential) {
		if err := store.SaveRefreshToken(context.WithoutCancel(ctx), c.RefreshToken); err != nil {
			logger.Warn("Failed to persist refreshed token", "error", err.Error())
		}
	})

	logger.Security("Authenticated", "stored_token_present", stored != "")
	return gate, nil
}

// openTokenStore returns the configured refresh token store and its closer.
func openTokenStore(ctx context.Context, cfg *config.AppConfig, db *database.Database) (contracts.TokenStore, func(), error) {
	switch cfg.StateBackend {
	case config.StateBackendSQLite:
		return tokenstore.NewSQLiteStore(db, cfg.StateKey), func() {}, nil
	case config.StateBackendRedis:
		store, err := tokenstore.NewRedisStore(ctx, *cfg.Redis, cfg.StateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("connect token store: %w", err)
		}
		return store, func() { closeQuietly(store) }, nil
	default:
		return nil, nil, &extraction.ConfigurationError{
			Field:  "STATE_BACKEND",
			Reason: fmt.Sprintf("unknown backend %q", cfg.StateBackend),
		}
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logging.Warn("Close failed", "error", err.Error())
	}
}
