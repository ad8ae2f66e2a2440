package cli

import (
	"bufio"
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/config"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/client/sealer"
	"github.com/dmitrijs2005/gophvault/internal/client/services"
	"github.com/dmitrijs2005/gophvault/internal/client/session"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type authService interface {
	Register(ctx context.Context, email string, password, confirm []byte, hint string) error
	Login(ctx context.Context, email string, password []byte) error
	Unlock(ctx context.Context, password []byte) error
	UnlockWithSealer(ctx context.Context) error
	Logout(ctx context.Context) error
	EnableBiometric(ctx context.Context, password []byte) error
	HasCredentials(ctx context.Context) (bool, error)
	Ping(ctx context.Context) error
}

type vaultService interface {
	List(ctx context.Context) (services.View, error)
	Get(ctx context.Context, id string) (*models.VaultRecord, error)
	Save(ctx context.Context, r *models.VaultRecord) (*models.VaultRecord, error)
	Delete(ctx context.Context, id string) error
}

type syncService interface {
	Sync(ctx context.Context) (*services.SyncResult, error)
}

type locker interface {
	State() session.State
	Lock()
}

type App struct {
	config *config.Config

	authService  authService
	vaultService vaultService
	syncService  syncService
	session      locker

	closers []io.Closer

	Mode   Mode
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database, dials the server and wires the services.
func NewApp(c *config.Config) (*App, error) {
	ctx := context.Background()

	db, err := repomanager.OpenDatabase(ctx, c.DatabaseFile)
	if err != nil {
		log.Printf("error initializing database: %s", err.Error())
		return nil, err
	}

	apiClient, err := client.NewGophVaultClientService(c.ServerEndpointAddr)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger := logging.NewTextLogger(os.Stderr, slog.LevelWarn)

	repos := repomanager.NewSQLiteRepositoryManager()
	sess := session.New(repos.Credentials(db), apiClient, logger)
	keyring := sealer.NewKeyringSealer(c.KeyringService)

	return &App{
		config:       c,
		authService:  services.NewAuthService(db, repos, apiClient, sess, keyring, logger),
		vaultService: services.NewVaultService(db, repos, apiClient, sess, logger),
		syncService:  services.NewSyncEngine(db, repos, apiClient, sess, logger),
		session:      sess,
		closers:      []io.Closer{apiClient, db},
		reader:       bufio.NewReader(os.Stdin),
		out:          os.Stdout,
	}, nil
}

func (app *App) setMode(mode Mode) {
	if app.Mode != mode {
		app.Mode = mode
		log.Printf("Switched to %s mode\n", mode)
	}
}

// Run starts the connectivity watcher and the REPL and blocks until the
// user exits.
func (a *App) Run(ctx context.Context) {
	defer a.close()
	defer a.session.Lock()
	a.Root(ctx)
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	if a.session == nil {
		return false
	}
	switch a.session.State() {
	case session.Unlocked, session.Stale, session.Refreshing:
		return true
	default:
		return false
	}
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := a.authService.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}
