package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/auth"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/repomanager"
)

// RegistryService resolves identifiers to principals. It never checks
// credentials.
type RegistryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	timeout     time.Duration
	log         logging.Logger
}

func NewRegistryService(db *sql.DB, m repomanager.RepositoryManager, timeout time.Duration, log logging.Logger) *RegistryService {
	return &RegistryService{db: db, repomanager: m, timeout: timeout, log: log}
}

func (s *RegistryService) Lookup(ctx context.Context, id string) (*models.Principal, error) {
	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repomanager.Principals(s.db).Get(ctx, id)
}

// Enroll creates or updates a principal and marks it active.
func (s *RegistryService) Enroll(ctx context.Context, id, displayName string, role auth.Role) (*models.Principal, error) {
	if id == "" || len(id) > 100 || len(displayName) > 100 {
		return nil, fmt.Errorf("%w: principal id or name", common.ErrorValidation)
	}
	if _, ok := auth.ParseRole(string(role)); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorValidation, role)
	}

	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()

	p := &models.Principal{ID: id, DisplayName: displayName, Role: string(role), Active: true}
	if err := s.repomanager.Principals(s.db).Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("error enrolling principal: %w", err)
	}
	s.log.Info(ctx, "principal enrolled", "principal_id", id, "role", role)
	return p, nil
}
