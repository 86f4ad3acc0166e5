// Package dispatcher runs download batches on a bounded worker pool, keeping
// the task registry and download history up to date as items complete.
package dispatcher

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/ripqueue/ripqueue/internal/config"
	"github.com/ripqueue/ripqueue/internal/extractor"
	"github.com/ripqueue/ripqueue/internal/fingerprint"
	"github.com/ripqueue/ripqueue/internal/history"
	"github.com/ripqueue/ripqueue/internal/metrics"
	"github.com/ripqueue/ripqueue/internal/registry"
	"github.com/ripqueue/ripqueue/internal/repository"
	"github.com/ripqueue/ripqueue/internal/retry"
	"github.com/ripqueue/ripqueue/internal/tagger"
	"github.com/ripqueue/ripqueue/internal/task"
)

// ErrNoURLs is returned when a batch is submitted with an empty source list.
var ErrNoURLs = errors.New("no URLs to download")

// Options configures one batch submission.
type Options struct {
	Quality       int
	Mode          string
	OutputDir     string
	MaxWorkers    int
	RateLimitKBps int
	MaxRetries    int
	ItemTimeout   time.Duration
	FFmpegPath    string
}

// BatchListener is notified after a batch reaches a terminal state.
type BatchListener func(t *task.Task)

// Dispatcher owns the worker pool. It is safe for concurrent submissions.
type Dispatcher struct {
	registry  *registry.Registry
	history   *history.Store
	repo      repository.DownloadRepository
	extractor extractor.Extractor
	tagger    tagger.Writer

	httpClient *http.Client
	onComplete BatchListener
}

// New creates a dispatcher. repo and tag may be nil; the corresponding steps
// are skipped.
func New(reg *registry.Registry, hist *history.Store, repo repository.DownloadRepository, ext extractor.Extractor, tag tagger.Writer) *Dispatcher {
	return &Dispatcher{
		registry:   reg,
		history:    hist,
		repo:       repo,
		extractor:  ext,
		tagger:     tag,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetBatchListener registers a callback invoked once per finished batch.
func (d *Dispatcher) SetBatchListener(fn BatchListener) {
	d.onComplete = fn
}

// SubmitBatch validates the request, creates the task, and starts the worker
// pool in the background. It returns the task ID immediately; status is
// observable through the registry.
func (d *Dispatcher) SubmitBatch(ctx context.Context, urls []string, opts Options) (string, error) {
	if len(urls) == 0 {
		return "", ErrNoURLs
	}
	if err := config.ValidateQuality(opts.Quality); err != nil {
		return "", err
	}
	if err := config.ValidateMode(opts.Mode); err != nil {
		return "", err
	}
	if err := config.ValidateWorkers(opts.MaxWorkers); err != nil {
		return "", err
	}

	t := task.New(urls, opts.Quality, opts.Mode, opts.OutputDir, opts.MaxWorkers)
	d.registry.Add(t)
	metrics.RecordTaskSubmitted(opts.Mode)

	go d.run(ctx, t.ID, urls, opts)

	return t.ID, nil
}

// ResumeFailed resubmits every persisted failure record as a new batch.
func (d *Dispatcher) ResumeFailed(ctx context.Context, opts Options) (string, error) {
	if d.repo == nil {
		return "", errors.New("no repository configured, nothing to resume")
	}

	records, err := d.repo.ListFailures(ctx, 1000)
	if err != nil {
		return "", err
	}

	seen := make(map[string]struct{}, len(records))
	urls := make([]string, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		urls = append(urls, rec.URL)
	}

	if len(urls) == 0 {
		return "", ErrNoURLs
	}

	return d.SubmitBatch(ctx, urls, opts)
}

func (d *Dispatcher) run(ctx context.Context, taskID string, urls []string, opts Options) {
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		d.finishFailed(taskID, "could not create output directory: "+err.Error())
		return
	}

	d.mustUpdate(taskID, func(t *task.Task) {
		t.Status = task.StatusDownloading
	})

	workers := opts.MaxWorkers
	if workers > len(urls) {
		workers = len(urls)
	}

	jobs := make(chan string)
	total := int64(len(urls))
	var processed int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			metrics.WorkersActive.Inc()
			defer metrics.WorkersActive.Dec()

			for url := range jobs {
				d.processItem(ctx, taskID, workerID, url, opts)

				done := atomic.AddInt64(&processed, 1)
				progress := float64(done) / float64(total) * 100
				d.mustUpdate(taskID, func(t *task.Task) {
					if progress > t.Progress {
						t.Progress = progress
					}
				})
			}
		}(i)
	}

	for _, url := range urls {
		jobs <- url
	}
	close(jobs)
	wg.Wait()

	// Item failures never fail the batch; the failure list is the signal.
	now := time.Now()
	d.mustUpdate(taskID, func(t *task.Task) {
		t.Status = task.StatusCompleted
		t.Progress = 100
		t.CurrentFile = ""
		t.CompletedAt = &now
	})

	d.history.Persist(ctx)
	d.notifyComplete(taskID)
}

func (d *Dispatcher) processItem(ctx context.Context, taskID string, workerID int, url string, opts Options) {
	start := time.Now()
	log.Printf("[worker %d] processing %s", workerID, url)

	d.mustUpdate(taskID, func(t *task.Task) {
		t.CurrentFile = url
	})

	probePolicy := retry.Policy{MaxRetries: opts.MaxRetries, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
	var meta *extractor.Metadata
	err := probePolicy.Do(ctx, func() error {
		var probeErr error
		meta, probeErr = d.extractor.Probe(ctx, url)
		return probeErr
	})
	if err != nil {
		d.recordFailure(ctx, taskID, url, err, opts)
		metrics.RecordDownloadFailed(opts.Mode, time.Since(start))
		return
	}

	videoID := meta.ID
	if videoID == "" {
		videoID = fingerprint.VideoID(url)
	}
	contentHash := fingerprint.ContentHash(meta.Title, meta.Duration, meta.Uploader)

	if opts.Mode == "smart" {
		if existing, reason := d.findDuplicate(videoID, contentHash, meta); existing != nil {
			if _, statErr := os.Stat(existing.FilePath); statErr == nil {
				log.Printf("[worker %d] duplicate skipped (%s): %s", workerID, reason, meta.Title)
				d.mustUpdate(taskID, func(t *task.Task) {
					t.SkippedCount++
					t.DownloadedFiles = append(t.DownloadedFiles, existing.FilePath)
				})
				metrics.RecordDownloadSkipped(opts.Mode)
				return
			}
			log.Printf("[worker %d] duplicate artifact missing, downloading again: %s", workerID, meta.Title)
		}
	}

	outputDir := opts.OutputDir
	if dir := playlistDir(opts.OutputDir, meta.PlaylistTitle); dir != opts.OutputDir {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			log.Printf("[worker %d] could not create playlist folder: %v", workerID, mkErr)
		} else {
			outputDir = dir
		}
	}

	itemCtx := ctx
	if opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, opts.ItemTimeout)
		defer cancel()
	}

	fetchPolicy := retry.Policy{MaxRetries: opts.MaxRetries, BaseDelay: 3 * time.Second, MaxDelay: 60 * time.Second}
	var artifact string
	var transcodeFailure *extractor.TranscodeError
	err = fetchPolicy.Do(itemCtx, func() error {
		var fetchErr error
		artifact, fetchErr = d.extractor.FetchAndTranscode(itemCtx, url, extractor.FetchOptions{
			OutputDir:      outputDir,
			QualityKbps:    opts.Quality,
			RateLimitKBps:  opts.RateLimitKBps,
			TranscoderPath: opts.FFmpegPath,
		})

		// A missing artifact after a successful fetch will not improve on
		// retry; surface it as an item failure immediately.
		var transcodeErr *extractor.TranscodeError
		if errors.As(fetchErr, &transcodeErr) {
			transcodeFailure = transcodeErr
			artifact = ""
			return nil
		}

		return fetchErr
	})
	if err != nil {
		d.recordFailure(ctx, taskID, url, err, opts)
		metrics.RecordDownloadFailed(opts.Mode, time.Since(start))
		return
	}
	if artifact == "" {
		var cause error = &extractor.TranscodeError{URL: url, Path: outputDir}
		if transcodeFailure != nil {
			cause = transcodeFailure
		}
		d.recordFailure(ctx, taskID, url, cause, opts)
		metrics.RecordDownloadFailed(opts.Mode, time.Since(start))
		return
	}

	if opts.Mode != "basic" {
		d.applyTags(itemCtx, workerID, artifact, videoID, meta, opts)
	}

	entry := &history.Entry{
		VideoID:         videoID,
		URL:             url,
		Title:           meta.Title,
		Uploader:        meta.Uploader,
		DurationSeconds: meta.Duration,
		FilePath:        artifact,
		ContentHash:     contentHash,
		DownloadedAt:    time.Now(),
		Status:          history.StatusCompleted,
	}
	d.history.Record(entry)

	if d.repo != nil {
		if err := d.repo.SaveDownload(ctx, entry, taskID); err != nil {
			log.Printf("[worker %d] could not persist download record: %v", workerID, err)
		}
		if err := d.repo.ClearFailure(ctx, url); err != nil {
			log.Printf("[worker %d] could not clear failure record: %v", workerID, err)
		}
	}

	d.mustUpdate(taskID, func(t *task.Task) {
		t.DownloadedFiles = append(t.DownloadedFiles, artifact)
	})
	metrics.RecordDownloadCompleted(opts.Mode, time.Since(start))
	log.Printf("[worker %d] completed %s -> %s", workerID, url, filepath.Base(artifact))
}

// playlistDir returns the per-playlist subfolder for an item that carries a
// playlist title, or base when there is no title worth a folder. Titles are
// reduced to letters, digits, spaces, dashes and underscores and capped at
// 100 characters so they are always usable as a directory name.
func playlistDir(base, playlistTitle string) string {
	var b strings.Builder
	for _, r := range playlistTitle {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	clean := strings.TrimSpace(b.String())
	if clean == "" {
		return base
	}
	if runes := []rune(clean); len(runes) > 100 {
		clean = strings.TrimSpace(string(runes[:100]))
	}

	return filepath.Join(base, "playlists", clean)
}

// findDuplicate applies the three duplicate rules in order: identity match,
// exact fingerprint match, then near-match similarity.
func (d *Dispatcher) findDuplicate(videoID, contentHash string, meta *extractor.Metadata) (*history.Entry, string) {
	if existing, ok := d.history.Lookup(videoID); ok && existing.Status == history.StatusCompleted {
		return existing, "same video ID"
	}

	if existing, ok := d.history.LookupByFingerprint(contentHash); ok {
		return existing, "same content fingerprint"
	}

	if existing, ok := d.history.FindSimilar(meta.Title, meta.Duration, meta.Uploader); ok {
		return existing, "similar title and duration"
	}

	return nil, ""
}

func (d *Dispatcher) applyTags(ctx context.Context, workerID int, artifact, videoID string, meta *extractor.Metadata, opts Options) {
	if d.tagger == nil {
		return
	}

	thumbnailPath := ""
	if meta.Thumbnail != "" {
		path, err := tagger.FetchThumbnail(ctx, d.httpClient, meta.Thumbnail, filepath.Join(opts.OutputDir, "thumbnails"), videoID)
		if err != nil {
			log.Printf("[worker %d] could not fetch thumbnail: %v", workerID, err)
		} else {
			thumbnailPath = path
		}
	}

	if err := d.tagger.Write(ctx, artifact, meta, thumbnailPath); err != nil {
		log.Printf("[worker %d] could not apply tags: %v", workerID, err)
	}
}

func (d *Dispatcher) recordFailure(ctx context.Context, taskID, url string, cause error, opts Options) {
	log.Printf("download failed permanently: %s: %v", url, cause)

	failure := task.FailedDownload{
		URL:              url,
		Error:            cause.Error(),
		Timestamp:        time.Now(),
		RetriesAttempted: opts.MaxRetries,
	}

	d.mustUpdate(taskID, func(t *task.Task) {
		t.FailedDownloads = append(t.FailedDownloads, failure)
	})

	if d.repo != nil {
		rec := repository.FailureRecord{
			URL:        url,
			Error:      cause.Error(),
			RetryCount: opts.MaxRetries,
			TaskID:     taskID,
			FailedAt:   failure.Timestamp,
		}
		if err := d.repo.LogFailure(ctx, rec); err != nil {
			log.Printf("could not persist failure record: %v", err)
		}
	}
}

func (d *Dispatcher) finishFailed(taskID, message string) {
	now := time.Now()
	d.mustUpdate(taskID, func(t *task.Task) {
		t.Status = task.StatusFailed
		t.ErrorMessage = message
		t.CompletedAt = &now
	})
	d.notifyComplete(taskID)
}

func (d *Dispatcher) notifyComplete(taskID string) {
	if d.onComplete == nil {
		return
	}

	t, err := d.registry.Get(taskID)
	if err != nil {
		return
	}
	d.onComplete(t)
}

func (d *Dispatcher) mustUpdate(taskID string, mutate func(*task.Task)) {
	if err := d.registry.Update(taskID, mutate); err != nil {
		log.Printf("registry update for task %s: %v", taskID, err)
	}
}
