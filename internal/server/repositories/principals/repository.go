// Package principals is the principal registry backed by PostgreSQL.
package principals

import (
	"context"

	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, p *models.Principal) error
	Get(ctx context.Context, id string) (*models.Principal, error)
	// Lock takes a row lock on the principal for the rest of the transaction.
	Lock(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	ListActive(ctx context.Context) ([]*models.Principal, error)
}
