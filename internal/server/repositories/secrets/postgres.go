package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const secretColumns = `id, principal_id, ciphertext, nonce, created_at, expires_at, revoked, rotated_at, created_by`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecret(row rowScanner) (*models.Secret, error) {
	s := &models.Secret{}
	var rotatedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.PrincipalID, &s.Ciphertext, &s.Nonce, &s.CreatedAt, &s.ExpiresAt,
		&s.Revoked, &rotatedAt, &s.CreatedBy); err != nil {
		return nil, err
	}
	if rotatedAt.Valid {
		t := rotatedAt.Time
		s.RotatedAt = &t
	}
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Secret) error {
	query :=
		`INSERT INTO qr_secrets (id, principal_id, ciphertext, nonce, created_at, expires_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query, s.ID, s.PrincipalID, s.Ciphertext, s.Nonce, s.CreatedAt, s.ExpiresAt, s.CreatedBy)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: active secret for %s", common.ErrorAlreadyExists, s.PrincipalID)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetActive(ctx context.Context, principalID string, now time.Time) (*models.Secret, error) {
	query := `SELECT ` + secretColumns + ` FROM qr_secrets
		 WHERE principal_id = $1 AND NOT revoked AND expires_at > $2`

	s, err := scanSecret(r.db.QueryRowContext(ctx, query, principalID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) RevokeActive(ctx context.Context, principalID string, at time.Time) (int64, error) {
	query :=
		`UPDATE qr_secrets SET revoked = TRUE, rotated_at = $2
		 WHERE principal_id = $1 AND NOT revoked`

	res, err := r.db.ExecContext(ctx, query, principalID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context, now time.Time) ([]*models.Secret, error) {
	query := `SELECT ` + secretColumns + ` FROM qr_secrets
		 WHERE NOT revoked AND expires_at > $1
		 ORDER BY principal_id`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Secret
	for rows.Next() {
		s, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) DueForRotation(ctx context.Context, before time.Time) ([]string, error) {
	query :=
		`SELECT p.id FROM principals p
		 WHERE p.active AND NOT EXISTS (
		     SELECT 1 FROM qr_secrets s
		     WHERE s.principal_id = p.id AND NOT s.revoked AND s.expires_at > $1
		 )
		 ORDER BY p.id`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}
