// Package server wires the vault together: database, storage engine,
// services and the HTTP and gRPC endpoints, and runs them until a
// termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	gs "github.com/dmitrijs2005/filevault/internal/server/grpc"
	"github.com/dmitrijs2005/filevault/internal/server/httpapi"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/dmitrijs2005/filevault/internal/storage"
	"github.com/dmitrijs2005/filevault/internal/storage/local"
	"github.com/dmitrijs2005/filevault/internal/storage/s3store"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	healthInterval = 15 * time.Second
	janitorPeriod  = time.Hour
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	db           *sql.DB
	userService  *services.UserService
	vaultService *services.VaultService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(slog.LevelInfo)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrations: %w", err)
	}

	engine, err := newEngine(ctx, c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cache := services.NewPublicCache(c.PublicCacheSize, c.PublicCacheTTL)
	us := services.NewUserService(db, rm, c, services.NewLogResetNotifier(logger))
	vs := services.NewVaultService(db, rm, engine, cache, logger, c.MaxUploadSize)

	return &App{config: c, logger: logger, db: db, userService: us, vaultService: vs}, nil
}

// newEngine builds the sealer and the configured backend. The decoded key
// is wiped once the cipher holds it.
func newEngine(ctx context.Context, c *config.Config, logger logging.Logger) (*storage.Engine, error) {
	key, err := cryptox.ParseHexKey(c.EncryptionKey)
	if err != nil {
		return nil, err
	}
	sealer, err := cryptox.NewSealer(cryptox.Algorithm(c.Cipher), key)
	common.WipeByteArray(key)
	if err != nil {
		return nil, err
	}

	var backend storage.Backend
	switch c.StorageBackend {
	case config.StorageS3:
		backend, err = s3store.New(ctx, s3store.Config{
			Endpoint:  c.S3BaseEndpoint,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Region:    c.S3Region,
			Prefix:    c.StoragePath,
		}, logger)
	default:
		backend, err = local.New(c.StoragePath)
	}
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	logger.Info(ctx, "storage ready", "backend", backend.Type(), "cipher", sealer.Algorithm())
	return storage.NewEngine(backend, sealer, logger), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.userService, app.vaultService, app.config.MaxUploadSize)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db.PingContext, healthInterval)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeTokens drops expired refresh tokens every period until ctx ends.
func (app *App) purgeTokens(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := app.userService.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Warn(ctx, "refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "purged expired refresh tokens", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeTokens(ctx, janitorPeriod)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "close db", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
