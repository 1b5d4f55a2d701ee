package marketplace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Downloader fetches archives from arbitrary HTTP(S) URLs without
// credentials. It backs URL installs and GitHub updates when the
// marketplace itself is disabled.
type Downloader struct {
	client *http.Client
}

// NewDownloader builds a Downloader; timeout <= 0 uses the client default.
func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Downloader{client: &http.Client{Timeout: timeout}}
}

// Download opens rawURL. The caller closes the body.
func (d *Downloader) Download(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("download: invalid url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, 0, fmt.Errorf("download: unsupported scheme %q", target.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("download: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download: %w", err)
	}
	if err := statusError(resp); err != nil {
		_ = resp.Body.Close()
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}
