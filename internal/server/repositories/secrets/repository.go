// Package secrets persists principal secrets. Rows hold ciphertext only;
// encryption is the service's concern.
package secrets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Secret) error
	// GetActive returns the non-revoked secret of principalID that has not
	// expired at now, or common.ErrorNotFound.
	GetActive(ctx context.Context, principalID string, now time.Time) (*models.Secret, error)
	// RevokeActive revokes every non-revoked secret of principalID and
	// returns how many were revoked.
	RevokeActive(ctx context.Context, principalID string, at time.Time) (int64, error)
	ListActive(ctx context.Context, now time.Time) ([]*models.Secret, error)
	// DueForRotation lists active principals without a secret valid past before.
	DueForRotation(ctx context.Context, before time.Time) ([]string, error)
}
