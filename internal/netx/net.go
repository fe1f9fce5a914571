// Package netx contains the plain HTTP transfers the scanner performs
// against presigned object storage URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxDownloadSize bounds DownloadFromPresignedURL.
const MaxDownloadSize = 16 << 20

// HTTPClient is the http.Client used for transfers. Tests may replace it.
var HTTPClient = &http.Client{Timeout: 30 * time.Second}

// DownloadFromPresignedURL fetches the object behind a presigned GET URL.
func DownloadFromPresignedURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxDownloadSize {
		return nil, fmt.Errorf("download failed: object larger than %d bytes", MaxDownloadSize)
	}
	return body, nil
}
