// Package server wires the GophVault server: it opens PostgreSQL, applies
// migrations, loads the server key, and runs the gRPC endpoint until a
// shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/server/services"

	gs "github.com/dmitrijs2005/gophvault/internal/server/grpc"
)

const tokenPurgeInterval = time.Hour

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	userService   *services.UserService
	cipherService *services.CipherService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	db, err := repomanager.OpenDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	key, generated, err := loadServerKey(c.ServerPrivateKey)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if generated {
		logger.Warn(ctx, "No server key configured, generated an ephemeral one. Existing accounts will not be able to log in after a restart")
	}

	us := services.NewUserService(db, rm, c, key)
	cs := services.NewCipherService(db, rm)

	return &App{config: c, logger: logger, db: db, userService: us, cipherService: cs}, nil
}

// loadServerKey decodes the configured X25519 private key. An empty value
// yields a random key and generated = true.
func loadServerKey(hexKey string) (kp *cryptox.KeyPair, generated bool, err error) {
	var secret []byte
	if hexKey == "" {
		secret = common.GenerateRandByteArray(32)
		generated = true
	} else {
		secret, err = hex.DecodeString(hexKey)
		if err != nil {
			return nil, false, fmt.Errorf("malformed server key: %w", err)
		}
	}
	defer common.WipeByteArray(secret)

	kp, err = cryptox.KeyPairFromSecret(secret)
	if err != nil {
		return nil, false, fmt.Errorf("server key: %w", err)
	}
	return kp, generated, nil
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.userService, app.cipherService,
		app.config.SecretKey, app.config.RateLimit, app.config.RateBurst)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeTokens removes expired refresh tokens until ctx is done.
func (app *App) purgeTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := app.userService.PurgeExpiredTokens(ctx)
			if err != nil {
				app.logger.Error(ctx, "token purge failed", "error", err.Error())
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "Purged expired refresh tokens", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeTokens(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err.Error())
	}

	app.logger.Info(context.Background(), "App stopped")
}
