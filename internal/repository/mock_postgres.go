package repository

import (
	"context"
	"sync"

	"github.com/ripqueue/ripqueue/internal/history"
)

// MockDownloadRepository is an in-memory DownloadRepository for tests.
type MockDownloadRepository struct {
	mu                sync.Mutex
	Downloads         map[string]*history.Entry
	Failures          []FailureRecord
	SaveDownloadCalls int
	LogFailureCalls   int
	SaveDownloadError error
	LogFailureError   error
	ListFailuresError error
	GetStatsError     error
}

func NewMockDownloadRepository() *MockDownloadRepository {
	return &MockDownloadRepository{
		Downloads: make(map[string]*history.Entry),
		Failures:  make([]FailureRecord, 0),
	}
}

func (m *MockDownloadRepository) SaveDownload(ctx context.Context, e *history.Entry, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveDownloadCalls++
	if m.SaveDownloadError != nil {
		return m.SaveDownloadError
	}

	copied := *e
	m.Downloads[e.VideoID] = &copied
	return nil
}

func (m *MockDownloadRepository) LogFailure(ctx context.Context, rec FailureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LogFailureCalls++
	if m.LogFailureError != nil {
		return m.LogFailureError
	}

	m.Failures = append(m.Failures, rec)
	return nil
}

func (m *MockDownloadRepository) ListFailures(ctx context.Context, limit int) ([]FailureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListFailuresError != nil {
		return nil, m.ListFailuresError
	}

	if limit > len(m.Failures) {
		limit = len(m.Failures)
	}

	out := make([]FailureRecord, limit)
	copy(out, m.Failures[:limit])
	return out, nil
}

func (m *MockDownloadRepository) ClearFailure(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.Failures[:0]
	for _, rec := range m.Failures {
		if rec.URL != url {
			kept = append(kept, rec)
		}
	}
	m.Failures = kept

	return nil
}

func (m *MockDownloadRepository) GetStats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetStatsError != nil {
		return Stats{}, m.GetStatsError
	}

	stats := Stats{
		TotalDownloads:  len(m.Downloads),
		PendingFailures: len(m.Failures),
	}
	for _, e := range m.Downloads {
		switch e.Status {
		case history.StatusCompleted:
			stats.CompletedCount++
		case history.StatusFailed:
			stats.FailedCount++
		}
	}

	return stats, nil
}

func (m *MockDownloadRepository) WasDownloadSaved(videoID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.Downloads[videoID]
	return ok
}

func (m *MockDownloadRepository) Close() error {
	return nil
}
