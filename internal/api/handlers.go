// Package api exposes the REST surface: batch submission, status polling,
// probe info, file listing, and favorites.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ripqueue/ripqueue/internal/config"
	"github.com/ripqueue/ripqueue/internal/dispatcher"
	"github.com/ripqueue/ripqueue/internal/extractor"
	"github.com/ripqueue/ripqueue/internal/history"
	"github.com/ripqueue/ripqueue/internal/httputil"
	"github.com/ripqueue/ripqueue/internal/registry"
	"github.com/ripqueue/ripqueue/internal/repository"
	"github.com/ripqueue/ripqueue/internal/task"
)

type API struct {
	dispatcher *dispatcher.Dispatcher
	registry   *registry.Registry
	history    *history.Store
	repo       repository.DownloadRepository
	extractor  extractor.Extractor
	defaults   dispatcher.Options
	mux        *http.ServeMux
}

type DownloadRequest struct {
	URL       string  `json:"url"`
	Quality   *int    `json:"quality"`
	Mode      *string `json:"mode"`
	OutputDir *string `json:"output_dir"`
}

type BatchDownloadRequest struct {
	URLs       []string `json:"urls"`
	Quality    *int     `json:"quality"`
	Mode       *string  `json:"mode"`
	OutputDir  *string  `json:"output_dir"`
	MaxWorkers *int     `json:"max_workers"`
}

type DownloadResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

type FavoriteRequest struct {
	VideoID string `json:"video_id"`
}

// NewAPI wires the handler routes. repo may be nil; the stats endpoint then
// reports in-memory state only.
func NewAPI(d *dispatcher.Dispatcher, reg *registry.Registry, hist *history.Store, repo repository.DownloadRepository, ext extractor.Extractor, defaults dispatcher.Options) *API {
	a := &API{
		dispatcher: d,
		registry:   reg,
		history:    hist,
		repo:       repo,
		extractor:  ext,
		defaults:   defaults,
		mux:        http.NewServeMux(),
	}

	a.setupRoutes()
	return a
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/download", a.handleDownload)
	a.mux.HandleFunc("/api/batch-download", a.handleBatchDownload)
	a.mux.HandleFunc("/api/resume", a.handleResume)
	a.mux.HandleFunc("/api/status/", a.handleStatus)
	a.mux.HandleFunc("/api/tasks", a.handleTasks)
	a.mux.HandleFunc("/api/info", a.handleInfo)
	a.mux.HandleFunc("/api/files", a.handleFiles)
	a.mux.HandleFunc("/api/files/", a.handleFile)
	a.mux.HandleFunc("/api/upload-urls", a.handleUploadURLs)
	a.mux.HandleFunc("/api/favorites", a.handleFavorites)
	a.mux.HandleFunc("/api/stats", a.handleStats)
	a.mux.HandleFunc("/health", a.handleHealth)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	defer closeBody(r)

	if !validURL(req.URL) {
		httputil.WriteJSONError(w, "A valid http(s) url is required", http.StatusBadRequest)
		return
	}

	opts := a.defaults
	applyOverrides(&opts, req.Quality, req.Mode, req.OutputDir, nil)

	// The batch outlives this request; it must not die with the request context.
	taskID, err := a.dispatcher.SubmitBatch(context.Background(), []string{req.URL}, opts)
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, DownloadResponse{
		TaskID:  taskID,
		Status:  string(task.StatusPending),
		Message: "Download task started",
		URL:     req.URL,
	})
}

func (a *API) handleBatchDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BatchDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	defer closeBody(r)

	if len(req.URLs) == 0 {
		httputil.WriteJSONError(w, "At least one url is required", http.StatusBadRequest)
		return
	}
	for _, u := range req.URLs {
		if !validURL(u) {
			httputil.WriteJSONError(w, "Invalid url: "+u, http.StatusBadRequest)
			return
		}
	}

	opts := a.defaults
	applyOverrides(&opts, req.Quality, req.Mode, req.OutputDir, req.MaxWorkers)

	taskID, err := a.dispatcher.SubmitBatch(context.Background(), req.URLs, opts)
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, DownloadResponse{
		TaskID:  taskID,
		Status:  string(task.StatusPending),
		Message: "Batch download task started",
	})
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskID, err := a.dispatcher.ResumeFailed(context.Background(), a.defaults)
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, DownloadResponse{
		TaskID:  taskID,
		Status:  string(task.StatusPending),
		Message: "Resume task started for previously failed downloads",
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/status/")
	if taskID == "" {
		httputil.WriteJSONError(w, "Task ID is required", http.StatusBadRequest)
		return
	}

	t, err := a.registry.Get(taskID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
			return
		}
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, t)
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tasks := a.registry.ListAll()

	active, completed, failed := 0, 0, 0
	for _, t := range tasks {
		switch t.Status {
		case task.StatusPending, task.StatusDownloading:
			active++
		case task.StatusCompleted:
			completed++
		case task.StatusFailed:
			failed++
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tasks":     tasks,
		"total":     len(tasks),
		"active":    active,
		"completed": completed,
		"failed":    failed,
	})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rawURL := r.URL.Query().Get("url")
	if !validURL(rawURL) {
		httputil.WriteJSONError(w, "A valid http(s) url query parameter is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	meta, err := a.extractor.Probe(ctx, rawURL)
	if err != nil {
		httputil.WriteJSONError(w, "Video not found or unavailable", http.StatusNotFound)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"id":               meta.ID,
		"title":            meta.Title,
		"uploader":         meta.Uploader,
		"duration_seconds": meta.Duration,
		"thumbnail":        meta.Thumbnail,
		"upload_date":      meta.UploadDate,
	})
}

type fileInfo struct {
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

func (a *API) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = a.defaults.OutputDir
	}

	files := []fileInfo{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp3") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}

		files = append(files, fileInfo{
			Filename: d.Name(),
			Path:     rel,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified.After(files[j].Modified)
	})

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"files":     files,
		"total":     len(files),
		"directory": dir,
	})
}

// handleFile serves or deletes a single downloaded mp3 by filename. The
// filename is the last path segment; nested paths are rejected so requests
// cannot escape the download directory.
func (a *API) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/files/")
	if name == "" || name != filepath.Base(name) {
		httputil.WriteJSONError(w, "A file name is required", http.StatusBadRequest)
		return
	}

	dir := r.URL.Query().Get("dir")
	if dir == "" {
		dir = a.defaults.OutputDir
	}
	path := filepath.Join(dir, name)

	switch r.Method {
	case http.MethodGet:
		if !strings.EqualFold(filepath.Ext(name), ".mp3") {
			httputil.WriteJSONError(w, "File not found", http.StatusNotFound)
			return
		}
		if _, err := os.Stat(path); err != nil {
			httputil.WriteJSONError(w, "File not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		http.ServeFile(w, r, path)
	case http.MethodDelete:
		if _, err := os.Stat(path); err != nil {
			httputil.WriteJSONError(w, "File not found", http.StatusNotFound)
			return
		}
		if err := os.Remove(path); err != nil {
			httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"message": "File " + name + " deleted successfully",
		})
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUploadURLs extracts download candidates from an uploaded .txt or .csv
// file. It only parses and previews; the caller submits the batch separately.
func (a *API) handleUploadURLs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteJSONError(w, "A file form field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".txt" && ext != ".csv" {
		httputil.WriteJSONError(w, "Only .txt and .csv files are supported", http.StatusBadRequest)
		return
	}

	urls := []string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if validURL(line) {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		httputil.WriteJSONError(w, "Could not read uploaded file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	preview := urls
	if len(preview) > 10 {
		preview = preview[:10]
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"filename":   header.Filename,
		"urls_found": len(urls),
		"urls":       preview,
		"message":    fmt.Sprintf("Found %d valid URLs in %s", len(urls), header.Filename),
	})
}

func (a *API) handleFavorites(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"favorites": a.history.Favorites(),
		})
	case http.MethodPost:
		var req FavoriteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		defer closeBody(r)

		if req.VideoID == "" {
			httputil.WriteJSONError(w, "video_id is required", http.StatusBadRequest)
			return
		}

		a.history.AddFavorite(req.VideoID)
		a.history.Persist(r.Context())
		httputil.WriteJSON(w, http.StatusCreated, map[string]string{
			"message": "Added to favorites",
		})
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]any{
		"history_entries": a.history.Len(),
		"favorites":       len(a.history.Favorites()),
	}

	if a.repo != nil {
		repoStats, err := a.repo.GetStats(r.Context())
		if err != nil {
			log.Printf("api: could not load repository stats: %v", err)
		} else {
			stats["total_downloads"] = repoStats.TotalDownloads
			stats["completed"] = repoStats.CompletedCount
			stats["failed"] = repoStats.FailedCount
			stats["pending_failures"] = repoStats.PendingFailures
		}
	}

	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := 0
	for _, t := range a.registry.ListAll() {
		if t.Status == task.StatusDownloading {
			active++
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"timestamp":        time.Now().Format(time.RFC3339),
		"active_downloads": active,
	})
}

func applyOverrides(opts *dispatcher.Options, quality *int, mode, outputDir *string, workers *int) {
	if quality != nil {
		opts.Quality = *quality
	}
	if mode != nil {
		opts.Mode = *mode
	}
	if outputDir != nil && *outputDir != "" {
		opts.OutputDir = *outputDir
	}
	if workers != nil {
		opts.MaxWorkers = *workers
	}
}

func writeSubmitError(w http.ResponseWriter, err error) {
	var validationErr *config.ValidationError
	switch {
	case errors.As(err, &validationErr):
		httputil.WriteJSONError(w, validationErr.Error(), http.StatusBadRequest)
	case errors.Is(err, dispatcher.ErrNoURLs):
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func closeBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		log.Printf("failed to close request body: %v", err)
	}
}
