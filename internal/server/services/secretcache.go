package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/cryptox"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/blobstore"
)

// BlobStore is the object storage used for sealed secret caches.
type BlobStore interface {
	Put(ctx context.Context, key string, body []byte) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// SecretCache tells a verifying device where to fetch the sealed snapshot
// and how to open it.
type SecretCache struct {
	URL       string
	Key       []byte
	Nonce     []byte
	Count     int
	ExpiresAt time.Time
}

// SecretCacheService publishes snapshots of active secrets for offline
// validation. Each snapshot is sealed under a fresh key that only travels
// in the authenticated response.
type SecretCacheService struct {
	secrets *SecretService
	blobs   BlobStore
	ttl     time.Duration
	log     logging.Logger
	now     func() time.Time
}

func NewSecretCacheService(secrets *SecretService, blobs BlobStore, ttl time.Duration, log logging.Logger) *SecretCacheService {
	return &SecretCacheService{secrets: secrets, blobs: blobs, ttl: ttl, log: log, now: time.Now}
}

func (s *SecretCacheService) Publish(ctx context.Context, actor string) (*SecretCache, error) {
	snapshot, err := s.secrets.ActiveSecrets(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, c := range snapshot {
			common.WipeByteArray(c.Key)
		}
	}()

	sealed, err := cryptox.SealJSON(snapshot)
	if err != nil {
		return nil, fmt.Errorf("error sealing secret cache: %w", err)
	}

	now := s.now()
	key := blobstore.RandomKey("secret-caches", now)
	if err := s.blobs.Put(ctx, key, sealed.Ciphertext); err != nil {
		return nil, fmt.Errorf("error uploading secret cache: %w", err)
	}
	url, err := s.blobs.PresignGet(ctx, key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("error presigning secret cache: %w", err)
	}

	s.log.Info(ctx, "secret cache published", "actor", actor, "principals", len(snapshot), "object", key)
	return &SecretCache{
		URL:       url,
		Key:       sealed.Key,
		Nonce:     sealed.Nonce,
		Count:     len(snapshot),
		ExpiresAt: now.Add(s.ttl),
	}, nil
}
