package tagger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// FetchThumbnail downloads a video thumbnail into destDir, keyed by video ID.
// An already-present file is reused without a network round trip.
func FetchThumbnail(ctx context.Context, client *http.Client, thumbnailURL, destDir, videoID string) (string, error) {
	if thumbnailURL == "" {
		return "", nil
	}

	if client == nil {
		client = http.DefaultClient
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(destDir, videoID+".jpg")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnail fetch: unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}

	return path, f.Close()
}
