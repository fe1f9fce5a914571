package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/qrpass/internal/client/models"
	"github.com/dmitrijs2005/qrpass/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/cryptox"
	"github.com/dmitrijs2005/qrpass/internal/netx"
)

// RefreshCache replaces the local secret cache with the snapshot the server
// publishes and returns the number of cached principals.
func (s *scannerService) RefreshCache(ctx context.Context) (int, error) {
	resp, err := s.client.SecretCache(ctx)
	if err != nil {
		return 0, err
	}
	defer common.WipeByteArray(resp.Key)

	blob, err := netx.DownloadFromPresignedURL(ctx, resp.URL)
	if err != nil {
		return 0, fmt.Errorf("error downloading secret cache: %w", err)
	}

	var snapshot []models.CachedSecret
	if err := cryptox.OpenJSON(blob, resp.Key, resp.Nonce, &snapshot); err != nil {
		return 0, fmt.Errorf("error opening secret cache: %w", err)
	}
	defer func() {
		for _, c := range snapshot {
			common.WipeByteArray(c.Key)
		}
	}()

	if err := s.secrets.ReplaceAll(ctx, snapshot); err != nil {
		return 0, err
	}
	if err := metadata.SetTime(ctx, s.metadata, metadata.KeySecretsRefreshed, s.now()); err != nil {
		return 0, err
	}

	s.log.Info(ctx, "secret cache refreshed", "principals", len(snapshot))
	return len(snapshot), nil
}
