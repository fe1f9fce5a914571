// Package memory keeps principals, secrets and the scan ledger in process
// memory. It backs the "memory" database mode and service tests; the
// constraints of the PostgreSQL schema are enforced under a single mutex.
package memory

import (
	"context"
	"database/sql"
	"sync"

	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/principals"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/secrets"
)

// Store is the shared state of all repositories vended by a Manager.
type Store struct {
	mu         sync.Mutex
	principals map[string]*models.Principal
	secrets    []*models.Secret
	entries    []*models.ScanEntry
}

func NewStore() *Store {
	return &Store{principals: make(map[string]*models.Principal)}
}

// Manager vends repositories over one Store. The DBTX handle is ignored, so
// transactions opened by services commit nothing and roll back nothing here.
type Manager struct {
	store *Store
}

func NewManager() *Manager {
	return &Manager{store: NewStore()}
}

func (m *Manager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *Manager) Principals(db dbx.DBTX) principals.Repository {
	return &PrincipalRepository{s: m.store}
}

func (m *Manager) Secrets(db dbx.DBTX) secrets.Repository {
	return &SecretRepository{s: m.store}
}

func (m *Manager) Ledger(db dbx.DBTX) ledger.Repository {
	return &LedgerRepository{s: m.store}
}
