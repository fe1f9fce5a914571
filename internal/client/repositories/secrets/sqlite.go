package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/client/models"
	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) ReplaceAll(ctx context.Context, snapshot []models.CachedSecret) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cached_secrets`); err != nil {
			return fmt.Errorf("failed to clear secret cache: %w", err)
		}
		for _, s := range snapshot {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cached_secrets (principal_id, display_name, secret, expires_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT(principal_id) DO UPDATE SET display_name = excluded.display_name,
				   secret = excluded.secret, expires_at = excluded.expires_at`,
				s.PrincipalID, s.DisplayName, s.Key, s.ExpiresAt.UnixMilli())
			if err != nil {
				return fmt.Errorf("failed to cache secret %s: %w", s.PrincipalID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) Get(ctx context.Context, principalID string) (*models.CachedSecret, error) {
	s := &models.CachedSecret{PrincipalID: principalID}
	var expiresAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT display_name, secret, expires_at FROM cached_secrets WHERE principal_id = ?`, principalID).
		Scan(&s.DisplayName, &s.Key, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached secret: %w", err)
	}
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return s, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM cached_secrets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cached secrets: %w", err)
	}
	return n, nil
}
