package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/client/client"
	"github.com/dmitrijs2005/qrpass/internal/client/config"
	"github.com/dmitrijs2005/qrpass/internal/client/services"
	"github.com/dmitrijs2005/qrpass/internal/logging"
)

type App struct {
	config  *config.Config
	scanner services.ScannerService
	log     logging.Logger
}

// NewApp opens the local database and prepares the connection to the
// verifier service. The device credential is prompted for when the
// configuration carries none.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	l, err := logging.New(c.LogBackend, c.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}

	if c.AccessToken == "" {
		c.AccessToken, err = GetSecret("Device credential", os.Stdout)
		if err != nil {
			return nil, fmt.Errorf("error reading credential: %w", err)
		}
	}
	verifierID, err := services.VerifierIDFromToken(c.AccessToken)
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken, c.DeviceID, c.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := services.NewScannerService(apiClient, db, services.Options{
		VerifierID:   verifierID,
		VerifierName: c.VerifierName,
		Location:     c.Location,
		BatchSize:    c.SyncBatchSize,
	}, l.With("verifier_id", verifierID))

	return &App{config: c, scanner: s, log: l}, nil
}

func (a *App) mode() string {
	if a.scanner.Online() {
		return "(online)"
	}
	return "(offline)"
}

// Run starts the background loops and the console. It returns when the
// console ends or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.scanner.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printlnFn("qrpass scanner (type 'help' for commands)")
	a.checkOnline(ctx)

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	go a.StartSyncLoop(ctx, a.config.SyncInterval)

	runREPL(ctx, a, a.mode, bufio.NewScanner(os.Stdin))
	return nil
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = a.scanner.Ping(ctx)
}

// StartOnlineStatusWatcher pings the server on every tick until ctx ends.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
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

// StartSyncLoop syncs the ledger on every tick while the scanner is online.
func (a *App) StartSyncLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !a.scanner.Online() {
				continue
			}
			if _, err := a.scanner.Sync(ctx); err != nil {
				a.log.Warn(ctx, "background sync failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
