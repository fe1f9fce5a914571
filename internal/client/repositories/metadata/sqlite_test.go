package metadata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB NOT NULL, updated_at INTEGER NOT NULL);`)
	require.NoError(t, err)
	return db
}

func TestSQLiteRepository_SetGetUpsert(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	v, err := r.Get(ctx, "verifier_name")
	require.NoError(t, err)
	assert.Nil(t, v)

	r.now = func() time.Time { return time.UnixMilli(1000) }
	require.NoError(t, r.Set(ctx, "verifier_name", []byte("gate-1")))
	r.now = func() time.Time { return time.UnixMilli(2000) }
	require.NoError(t, r.Set(ctx, "verifier_name", []byte("gate-2")))

	v, err = r.Get(ctx, "verifier_name")
	require.NoError(t, err)
	assert.Equal(t, []byte("gate-2"), v)

	var updated int64
	require.NoError(t, db.QueryRow(`SELECT updated_at FROM metadata WHERE key = 'verifier_name'`).Scan(&updated))
	assert.Equal(t, int64(2000), updated)
}

func TestSQLiteRepository_ClosedDBErrors(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `error reading metadata "k"`)

	err = r.Set(ctx, "k", []byte("v"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `error writing metadata "k"`)
}

func TestTimeHelpers(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	got, err := GetTime(ctx, r, KeyLastSyncAt)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, SetTime(ctx, r, KeyLastSyncAt, at))

	got, err = GetTime(ctx, r, KeyLastSyncAt)
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	require.NoError(t, r.Set(ctx, KeySecretsRefreshed, []byte{1, 2}))
	_, err = GetTime(ctx, r, KeySecretsRefreshed)
	assert.Error(t, err)
}
