package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// YtDlp invokes the local yt-dlp binary. The binary handles site protocol
// negotiation and drives ffmpeg for transcoding; this adapter only builds
// arguments and parses output.
type YtDlp struct {
	binaryPath string
}

func NewYtDlp(binaryPath string) *YtDlp {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}

	return &YtDlp{binaryPath: binaryPath}
}

// Probe fetches metadata without downloading media (yt-dlp -J).
func (y *YtDlp) Probe(ctx context.Context, url string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, y.binaryPath,
		"-J", "--no-warnings", "--no-playlist", url)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ExtractionError{
			URL: url,
			Err: fmt.Errorf("yt-dlp probe: %w, stderr: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	meta, err := ParseProbeOutput(out.Bytes())
	if err != nil {
		return nil, &ExtractionError{URL: url, Err: err}
	}

	return meta, nil
}

// FetchAndTranscode downloads the media and converts it to MP3 at the
// requested bitrate, returning the produced artifact path.
func (y *YtDlp) FetchAndTranscode(ctx context.Context, url string, opts FetchOptions) (string, error) {
	args := []string{
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", fmt.Sprintf("%dK", opts.QualityKbps),
		"-o", filepath.Join(opts.OutputDir, "%(title)s.%(ext)s"),
		"--no-warnings",
		"--no-playlist",
		"--no-simulate",
		"--print", "after_move:filepath",
	}

	if opts.TranscoderPath != "" {
		args = append(args, "--ffmpeg-location", opts.TranscoderPath)
	}
	if opts.RateLimitKBps > 0 {
		args = append(args, "--limit-rate", fmt.Sprintf("%dK", opts.RateLimitKBps))
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, y.binaryPath, args...)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &ExtractionError{
			URL: url,
			Err: fmt.Errorf("yt-dlp fetch: %w, stderr: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	artifact := lastLine(out.String())
	if artifact == "" {
		return "", &TranscodeError{URL: url, Path: opts.OutputDir}
	}

	if _, err := os.Stat(artifact); err != nil {
		return "", &TranscodeError{URL: url, Path: artifact}
	}

	return artifact, nil
}

// ExpandPlaylist resolves a playlist URL to its individual video URLs using
// a flat (metadata-only) extraction.
func (y *YtDlp) ExpandPlaylist(ctx context.Context, url string) ([]string, error) {
	cmd := exec.CommandContext(ctx, y.binaryPath,
		"-J", "--flat-playlist", "--no-warnings", url)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ExtractionError{
			URL: url,
			Err: fmt.Errorf("yt-dlp playlist: %w, stderr: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	return ParsePlaylistOutput(out.Bytes())
}

type probePayload struct {
	Metadata
	Duration json.Number `json:"duration"`
}

// ParseProbeOutput decodes the -J JSON document. yt-dlp emits duration as
// either an integer or a float depending on the site.
func ParseProbeOutput(data []byte) (*Metadata, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	meta := payload.Metadata
	if payload.Duration != "" {
		if f, err := payload.Duration.Float64(); err == nil {
			meta.Duration = int(f)
		}
	}

	if meta.Title == "" {
		meta.Title = "Unknown"
	}
	if meta.Uploader == "" {
		meta.Uploader = "Unknown"
	}

	return &meta, nil
}

type playlistPayload struct {
	Entries []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"entries"`
}

// ParsePlaylistOutput extracts video URLs from a flat-playlist JSON document.
func ParsePlaylistOutput(data []byte) ([]string, error) {
	var payload playlistPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse playlist output: %w", err)
	}

	urls := make([]string, 0, len(payload.Entries))
	for _, entry := range payload.Entries {
		switch {
		case entry.URL != "":
			urls = append(urls, entry.URL)
		case entry.ID != "":
			urls = append(urls, "https://www.youtube.com/watch?v="+entry.ID)
		}
	}

	return urls, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}

	return ""
}
