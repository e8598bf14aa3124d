package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// HTTPDownloader fetches audio into a local directory.
type HTTPDownloader struct {
	Dir    string
	Client *http.Client
}

// NewHTTPDownloader returns a downloader writing into dir.
func NewHTTPDownloader(dir string) *HTTPDownloader {
	return &HTTPDownloader{Dir: dir, Client: &http.Client{Timeout: 5 * time.Minute}}
}

// Download streams url into Dir/filename, replacing any existing file atomically.
func (d *HTTPDownloader) Download(ctx context.Context, url, filename string) error {
	if d.Dir == "" {
		return errors.New("download directory not configured")
	}
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fetch audio: unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(d.Dir, ".songify-*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(d.Dir, name)); err != nil {
		return fmt.Errorf("finalize audio: %w", err)
	}
	return nil
}
