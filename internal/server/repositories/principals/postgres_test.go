package principals

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock, db
}

func TestUpsert(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+principals.*ON\s+CONFLICT\s+\(id\)\s+DO\s+UPDATE`).
		WithArgs("STU0007", "Ada", "student", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Principal{ID: "STU0007", DisplayName: "Ada", Role: "student", Active: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	q := `(?s)^SELECT\s+id,\s*display_name,\s*role,\s*active,\s*created_at\s+FROM\s+principals\s+WHERE\s+id\s*=\s*\$1$`
	now := time.Now()

	mock.ExpectQuery(q).WithArgs("STU0007").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "role", "active", "created_at"}).
			AddRow("STU0007", "Ada", "student", true, now))

	p, err := repo.Get(context.Background(), "STU0007")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.True(t, p.Active)

	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(q).WithArgs("x").WillReturnError(errors.New("db down"))
	_, err = repo.Get(context.Background(), "x")
	assert.ErrorContains(t, err, "db error: db down")
}

func TestLock(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	q := `(?s)^SELECT\s+id\s+FROM\s+principals\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`

	mock.ExpectQuery(q).WithArgs("STU0007").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("STU0007"))
	require.NoError(t, repo.Lock(context.Background(), "STU0007"))

	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	assert.ErrorIs(t, repo.Lock(context.Background(), "ghost"), common.ErrorNotFound)
}

func TestSetActive(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	q := `^UPDATE\s+principals\s+SET\s+active\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1$`

	mock.ExpectExec(q).WithArgs("STU0007", false).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetActive(context.Background(), "STU0007", false))

	mock.ExpectExec(q).WithArgs("ghost", false).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SetActive(context.Background(), "ghost", false), common.ErrorNotFound)
}

func TestListActive(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+principals\s+WHERE\s+active\s+ORDER\s+BY\s+id$`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "role", "active", "created_at"}).
			AddRow("STU0007", "Ada", "student", true, now).
			AddRow("STU0008", "Alan", "student", true, now))

	got, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "STU0008", got[1].ID)
}
