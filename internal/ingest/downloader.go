package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	downloadTimeout = 30 * time.Second
	maxImageBytes   = 32 << 20
	downloaderAgent = "mtl-archives-search/1.0"
)

// Downloader fetches archival images over HTTP.
type Downloader struct {
	client       *http.Client
	publicDomain string
}

// NewDownloader creates an image downloader. publicDomain, when set, serves
// images by object key; otherwise records fall back to their external URL.
func NewDownloader(publicDomain string) *Downloader {
	return &Downloader{
		client:       &http.Client{Timeout: downloadTimeout},
		publicDomain: publicDomain,
	}
}

// ImageURL resolves the download URL for a record. The external archive URL
// wins; the bucket domain is the fallback for records without one.
func (d *Downloader) ImageURL(rec *ManifestRecord) string {
	if rec.ExternalURL != "" {
		return rec.ExternalURL
	}
	if d.publicDomain != "" && rec.ImageKey() != "" {
		return fmt.Sprintf("https://%s/%s", d.publicDomain, rec.ImageKey())
	}
	return ""
}

// Fetch downloads the image bytes for a record. A record with no resolvable
// URL returns an error so the caller can count it as skipped.
func (d *Downloader) Fetch(ctx context.Context, rec *ManifestRecord) ([]byte, error) {
	url := d.ImageURL(rec)
	if url == "" {
		return nil, fmt.Errorf("record %s has no image source", rec.ID())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", downloaderAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}
