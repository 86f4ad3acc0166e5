// Package tagger writes audio metadata tags and album art onto produced
// artifacts. Tagging is best effort: a failure here never fails the task.
package tagger

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ripqueue/ripqueue/internal/extractor"
)

// Writer applies metadata to an artifact. thumbnailPath may be empty.
type Writer interface {
	Write(ctx context.Context, artifactPath string, meta *extractor.Metadata, thumbnailPath string) error
}

// FFmpegWriter re-muxes the artifact through ffmpeg to attach ID3 frames and
// optional cover art. The streams are copied, not re-encoded.
type FFmpegWriter struct {
	binaryPath string
}

func NewFFmpegWriter(binaryPath string) *FFmpegWriter {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}

	return &FFmpegWriter{binaryPath: binaryPath}
}

func (w *FFmpegWriter) Write(ctx context.Context, artifactPath string, meta *extractor.Metadata, thumbnailPath string) error {
	tmpPath := artifactPath + ".tagged.mp3"

	args := []string{"-y", "-i", artifactPath}
	if thumbnailPath != "" {
		args = append(args, "-i", thumbnailPath, "-map", "0:a", "-map", "1:v")
	}
	args = append(args, "-c", "copy", "-id3v2_version", "3")
	args = append(args, metadataArgs(meta)...)
	if thumbnailPath != "" {
		args = append(args,
			"-metadata:s:v", "title=Album cover",
			"-metadata:s:v", "comment=Cover (front)")
	}
	args = append(args, tmpPath)

	cmd := exec.CommandContext(ctx, w.binaryPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg tagging: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return os.Rename(tmpPath, artifactPath)
}

func metadataArgs(meta *extractor.Metadata) []string {
	var args []string

	add := func(key, value string) {
		if value != "" {
			args = append(args, "-metadata", fmt.Sprintf("%s=%s", key, value))
		}
	}

	add("title", meta.Title)
	add("artist", meta.Uploader)
	add("album", meta.PlaylistTitle)
	if len(meta.UploadDate) >= 4 {
		add("date", meta.UploadDate[:4])
	}

	return args
}
