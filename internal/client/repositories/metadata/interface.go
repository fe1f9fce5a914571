// Package metadata keeps small scanner bookkeeping values such as the time
// of the last successful sync.
package metadata

import (
	"context"
)

const (
	KeyLastSyncAt       = "last_sync_at"
	KeySecretsRefreshed = "secrets_refreshed_at"
)

type Repository interface {
	// Get returns nil, nil for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
