// Package extractor defines the narrow contract with the external media
// extraction tool and provides the yt-dlp implementation of it.
package extractor

import (
	"context"
	"fmt"
)

// Metadata is the result of a metadata-only probe; no media is fetched.
type Metadata struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Uploader      string `json:"uploader"`
	Duration      int    `json:"-"`
	Thumbnail     string `json:"thumbnail"`
	WebpageURL    string `json:"webpage_url"`
	UploadDate    string `json:"upload_date"`
	PlaylistTitle string `json:"playlist_title"`
}

// FetchOptions configures a fetch-and-transcode invocation.
type FetchOptions struct {
	OutputDir      string
	QualityKbps    int
	RateLimitKBps  int
	TranscoderPath string // ffmpeg location; empty means the tool's default
}

// Extractor resolves a source URL to metadata and to a transcoded artifact.
// Implementations must honor ctx for cancellation and timeouts.
type Extractor interface {
	Probe(ctx context.Context, url string) (*Metadata, error)
	FetchAndTranscode(ctx context.Context, url string, opts FetchOptions) (string, error)
}

// ExtractionError wraps a probe or fetch failure from the external tool.
// These are retryable.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// TranscodeError means the fetch ran but no artifact was produced. Not
// retried: the tool already succeeded at the network step.
type TranscodeError struct {
	URL  string
	Path string
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("no artifact produced for %s (expected %q)", e.URL, e.Path)
}
