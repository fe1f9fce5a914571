// Package server initializes and runs the qrpass server: the verifier gRPC
// endpoint, the principal HTTP endpoint and the maintenance loops.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/cryptox"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/blobstore"
	"github.com/dmitrijs2005/qrpass/internal/server/config"
	"github.com/dmitrijs2005/qrpass/internal/server/httpapi"
	"github.com/dmitrijs2005/qrpass/internal/server/limiter"
	"github.com/dmitrijs2005/qrpass/internal/server/maintenance"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/memory"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/qrpass/internal/server/services"
	"github.com/dmitrijs2005/qrpass/internal/server/telemetry"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	gs "github.com/dmitrijs2005/qrpass/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	telemetry  *telemetry.Provider
	redis      redis.UniversalClient
	secrets    *services.SecretService
	tokens     *services.TokenService
	ledger     *services.LedgerService
	reconciler *services.Reconciler
	caches     *services.SecretCacheService
	ipLimiter  limiter.Limiter
	failures   limiter.Limiter
}

// OpenStore returns the database handle and repository manager for dsn.
// The memory store still needs a handle to open transactions on, so it
// gets an in-memory SQLite connection.
func OpenStore(ctx context.Context, dsn string) (*sql.DB, repomanager.RepositoryManager, error) {
	if dsn == config.MemoryDSN {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, nil, err
		}
		return db, memory.NewManager(), nil
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	m, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, m, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	tp, err := telemetry.New(ctx, telemetry.Options{Endpoint: c.TelemetryEndpoint, ServiceName: "qrpass-server"}, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init error: %w", err)
	}

	db, rm, err := OpenStore(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	masterKey := cryptox.DeriveMasterKey([]byte(c.MasterPassphrase), []byte(c.MasterSalt))

	app := &App{config: c, logger: logger, db: db, telemetry: tp}
	app.secrets = services.NewSecretService(db, rm, masterKey, c.StoreTimeout, logger)
	registry := services.NewRegistryService(db, rm, c.StoreTimeout, logger)
	app.ledger = services.NewLedgerService(db, rm, c.StoreTimeout, logger)
	app.tokens = services.NewTokenService(app.secrets, app.ledger, registry, logger)
	app.reconciler = services.NewReconciler(db, rm, c.SyncBatchSize, c.StoreTimeout, logger)

	blobs := blobstore.NewS3Store(blobstore.Options{
		Region:       c.S3Region,
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		BaseEndpoint: c.S3BaseEndpoint,
		Bucket:       c.S3Bucket,
	})
	app.caches = services.NewSecretCacheService(app.secrets, blobs, c.SecretCacheTTL, logger)

	switch c.LimiterBackend {
	case "redis":
		app.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{c.RedisAddr}})
		app.ipLimiter = limiter.NewRedisLimiter(app.redis, "qrpass:http", c.RateLimitPerMinute, time.Minute)
		app.failures = limiter.NewRedisLimiter(app.redis, "qrpass:badauth", common.MaxFailedAttempts, common.FailedAttemptsLock)
	default:
		app.ipLimiter = limiter.NewPerMinute(c.RateLimitPerMinute)
		app.failures = limiter.NewMemoryLimiter(common.MaxFailedAttempts, common.FailedAttemptsLock, common.MaxFailedAttempts)
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context) error {
	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.tokens, app.reconciler,
		app.secrets, app.caches, app.failures, app.config.SecretKey)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

func (app *App) startHTTPServer(ctx context.Context) error {
	router := httpapi.NewRouter(app.tokens, []byte(app.config.SecretKey), app.ipLimiter, app.logger)
	return httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger).Run(ctx)
}

// Run serves until a signal arrives or one component fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.startGRPCServer(ctx) })
	g.Go(func() error { return app.startHTTPServer(ctx) })
	g.Go(func() error {
		return maintenance.RunRotationLoop(ctx, app.secrets, app.config.RotationCheckInterval, app.config.RotationLead, app.logger)
	})
	g.Go(func() error {
		return maintenance.RunBacklogMonitor(ctx, app.ledger, app.config.BacklogCheckInterval, app.config.BacklogAge, app.logger)
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error(ctx, "app stopped", "error", err)
	}
	app.close()
	return err
}

func (app *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.telemetry.Shutdown(ctx); err != nil {
		app.logger.Error(ctx, "telemetry shutdown", "error", err)
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
	_ = app.db.Close()
	app.logger.Info(ctx, "App stopped")
}
