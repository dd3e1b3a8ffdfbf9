package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/hatchpad/connector-engine/pkg/adapters/platform"
	"github.com/hatchpad/connector-engine/pkg/adapters/platform/openapi"
	"github.com/hatchpad/connector-engine/pkg/adapters/platform/supabase"
	"github.com/hatchpad/connector-engine/pkg/adapters/platform/vercel"
	"github.com/hatchpad/connector-engine/pkg/config"
	"github.com/hatchpad/connector-engine/pkg/crypto"
	"github.com/hatchpad/connector-engine/pkg/database"
	"github.com/hatchpad/connector-engine/pkg/handlers"
	"github.com/hatchpad/connector-engine/pkg/logging"
	"github.com/hatchpad/connector-engine/pkg/middleware"
	"github.com/hatchpad/connector-engine/pkg/repositories"
	"github.com/hatchpad/connector-engine/pkg/services"
	"github.com/hatchpad/connector-engine/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Host))

	// Migrations run over database/sql; the pool below uses pgx natively.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.ConnectionString(),
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime(),
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	cipher, err := crypto.NewSecretCipher(cfg.CredentialsKey)
	if err != nil {
		logger.Fatal("Failed to initialize secret cipher", zap.Error(err))
	}

	registry := platform.NewRegistry()
	supabase.Register(registry, logger)
	vercel.Register(registry, logger)
	openapi.Register(registry, logger)

	connectionRepo := repositories.NewConnectionRepository(db)
	assetRepo := repositories.NewAssetRepository(db)
	runRepo := repositories.NewSyncRunRepository(db)

	queue := workqueue.New(logger)
	connectorService := services.NewConnectorService(connectionRepo, assetRepo, runRepo, registry, cipher, &cfg.Connector, logger)
	syncService := services.NewSyncService(connectionRepo, assetRepo, runRepo, registry, cipher, queue, &cfg.Connector, logger)

	// Settle runs orphaned by a previous process before serving traffic,
	// then keep sweeping on a timer.
	if demoted, err := syncService.SweepStaleRuns(ctx); err != nil {
		logger.Warn("Startup stale-run sweep failed", zap.Error(err))
	} else if demoted > 0 {
		logger.Info("Demoted stale sync runs at startup", zap.Int("count", demoted))
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go runSweeper(sweepCtx, syncService, cfg.Connector.SweepInterval(), logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewConnectorsHandler(connectorService, syncService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("Starting connector-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	stopSweeper()
	queue.Cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// runSweeper periodically demotes stuck runs. In-flight work marks its run
// terminal on every path, so anything the sweeper catches was orphaned by a
// crashed or wedged worker, either mid-execution or still waiting in the
// queue that died with it.
func runSweeper(ctx context.Context, syncService services.SyncService, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			demoted, err := syncService.SweepStaleRuns(ctx)
			if err != nil {
				logger.Warn("Stale-run sweep failed", zap.Error(err))
				continue
			}
			if demoted > 0 {
				logger.Info("Demoted stale sync runs", zap.Int("count", demoted))
			}
		}
	}
}
