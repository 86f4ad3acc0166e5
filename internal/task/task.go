// Package task defines the download task domain model shared by the registry,
// dispatcher, and API layers. It contains task metadata, status definitions,
// and serialization helpers.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the task still has work in flight.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusDownloading
}

// FailedDownload records one source URL that exhausted its retries.
// Retained so a later session can resubmit exactly the failed inputs.
type FailedDownload struct {
	URL              string    `json:"url"`
	Error            string    `json:"error"`
	Timestamp        time.Time `json:"timestamp"`
	RetriesAttempted int       `json:"retries_attempted"`
}

// Task is one user-initiated unit of work: a single URL or a batch.
// It is mutated only by the worker pool executing it and read by any
// number of status-polling callers through the registry.
type Task struct {
	ID              string           `json:"task_id"`
	URLs            []string         `json:"urls"`
	Quality         int              `json:"quality"`
	Mode            string           `json:"mode"`
	OutputDir       string           `json:"output_dir"`
	MaxWorkers      int              `json:"max_workers"`
	Status          Status           `json:"status"`
	Progress        float64          `json:"progress"`
	CurrentFile     string           `json:"current_file,omitempty"`
	DownloadedFiles []string         `json:"downloaded_files"`
	FailedDownloads []FailedDownload `json:"failed_downloads,omitempty"`
	SkippedCount    int              `json:"skipped_count"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

func New(urls []string, quality int, mode, outputDir string, maxWorkers int) *Task {
	return &Task{
		ID:              uuid.New().String(),
		URLs:            urls,
		Quality:         quality,
		Mode:            mode,
		OutputDir:       outputDir,
		MaxWorkers:      maxWorkers,
		Status:          StatusPending,
		DownloadedFiles: []string{},
		CreatedAt:       time.Now(),
	}
}

func (t *Task) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func FromJSON(data string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}

	return &t, nil
}
