package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/principals"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/secrets"
)

// RepositoryManager vends repositories bound to a DBTX, so services can
// run the same repository code inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Principals(db dbx.DBTX) principals.Repository
	Secrets(db dbx.DBTX) secrets.Repository
	Ledger(db dbx.DBTX) ledger.Repository
}
