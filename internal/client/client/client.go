package client

import (
	"context"

	"github.com/dmitrijs2005/qrpass/internal/client/models"
	"github.com/dmitrijs2005/qrpass/internal/wire"
)

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Validate(ctx context.Context, payload, verifierName, location string) (*wire.ValidateResponse, error)
	SyncLedger(ctx context.Context, entries []*models.ScanEntry) ([]wire.SyncResult, error)
	SecretCache(ctx context.Context) (*wire.SecretCacheResponse, error)
}
