package metadata

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"
)

// SetTime stores t as big-endian unix milliseconds.
func SetTime(ctx context.Context, r Repository, key string, t time.Time) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixMilli()))
	return r.Set(ctx, key, buf)
}

// GetTime returns the zero time when key has never been set.
func GetTime(ctx context.Context, r Repository, key string) (time.Time, error) {
	v, err := r.Get(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	if v == nil {
		return time.Time{}, nil
	}
	if len(v) != 8 {
		return time.Time{}, fmt.Errorf("metadata[%s]: unexpected length %d", key, len(v))
	}
	return time.UnixMilli(int64(binary.BigEndian.Uint64(v))).UTC(), nil
}
