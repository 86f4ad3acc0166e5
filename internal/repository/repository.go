// Package repository provides PostgreSQL persistence for the download log:
// completed downloads, failure records that drive resume, and aggregate stats.
package repository

import (
	"context"
	"time"

	"github.com/ripqueue/ripqueue/internal/history"
)

// FailureRecord is one permanently failed source URL. The resume workflow
// resubmits these as a fresh batch.
type FailureRecord struct {
	URL        string    `json:"url"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
	TaskID     string    `json:"task_id"`
	FailedAt   time.Time `json:"failed_at"`
}

// Stats summarizes the download log.
type Stats struct {
	TotalDownloads  int `json:"total_downloads"`
	CompletedCount  int `json:"completed_count"`
	FailedCount     int `json:"failed_count"`
	PendingFailures int `json:"pending_failures"`
}

type DownloadRepository interface {
	SaveDownload(ctx context.Context, e *history.Entry, taskID string) error
	LogFailure(ctx context.Context, rec FailureRecord) error
	ListFailures(ctx context.Context, limit int) ([]FailureRecord, error)
	ClearFailure(ctx context.Context, url string) error
	GetStats(ctx context.Context) (Stats, error)
	Close() error
}
