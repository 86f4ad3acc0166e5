package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/ripqueue/ripqueue/internal/history"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(connectionString string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	r := &PostgresRepository{db: db}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return r, nil
}

// NewPostgresRepositoryWithDB wraps an existing connection; used by tests.
func NewPostgresRepositoryWithDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) initSchema() error {
	query := `
		CREATE TABLE IF NOT EXISTS download_history (
			video_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			title TEXT,
			uploader TEXT,
			duration_seconds INTEGER,
			file_path TEXT,
			content_hash TEXT,
			status TEXT NOT NULL,
			task_id TEXT,
			downloaded_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS failure_log (
			id SERIAL PRIMARY KEY,
			url TEXT NOT NULL,
			error_message TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			task_id TEXT,
			failed_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_download_history_content_hash
			ON download_history(content_hash);
	`
	_, err := r.db.Exec(query)

	return err
}

func (r *PostgresRepository) SaveDownload(ctx context.Context, e *history.Entry, taskID string) error {
	query := `
		INSERT INTO download_history (
			video_id, url, title, uploader, duration_seconds,
			file_path, content_hash, status, task_id, downloaded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (video_id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			uploader = EXCLUDED.uploader,
			duration_seconds = EXCLUDED.duration_seconds,
			file_path = EXCLUDED.file_path,
			content_hash = EXCLUDED.content_hash,
			status = EXCLUDED.status,
			task_id = EXCLUDED.task_id,
			downloaded_at = EXCLUDED.downloaded_at
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		e.VideoID,
		e.URL,
		e.Title,
		e.Uploader,
		e.DurationSeconds,
		e.FilePath,
		e.ContentHash,
		e.Status,
		taskID,
		e.DownloadedAt,
	)

	return err
}

func (r *PostgresRepository) LogFailure(ctx context.Context, rec FailureRecord) error {
	query := `
		INSERT INTO failure_log (url, error_message, retry_count, task_id, failed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, rec.URL, rec.Error, rec.RetryCount, rec.TaskID, rec.FailedAt)

	return err
}

func (r *PostgresRepository) ListFailures(ctx context.Context, limit int) ([]FailureRecord, error) {
	query := `
		SELECT url, COALESCE(error_message, ''), retry_count, COALESCE(task_id, ''), failed_at
		FROM failure_log
		ORDER BY failed_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var records []FailureRecord
	for rows.Next() {
		var rec FailureRecord
		if err := rows.Scan(&rec.URL, &rec.Error, &rec.RetryCount, &rec.TaskID, &rec.FailedAt); err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *PostgresRepository) ClearFailure(ctx context.Context, url string) error {
	query := `DELETE FROM failure_log WHERE url = $1`
	_, err := r.db.ExecContext(ctx, query, url)

	return err
}

func (r *PostgresRepository) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM download_history
	`
	if err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalDownloads,
		&stats.CompletedCount,
		&stats.FailedCount,
	); err != nil {
		return Stats{}, err
	}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failure_log`).Scan(&stats.PendingFailures); err != nil {
		return Stats{}, err
	}

	return stats, nil
}

func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
