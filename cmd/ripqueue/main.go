package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ripqueue/ripqueue/internal/config"
	"github.com/ripqueue/ripqueue/internal/dispatcher"
	"github.com/ripqueue/ripqueue/internal/extractor"
	"github.com/ripqueue/ripqueue/internal/history"
	"github.com/ripqueue/ripqueue/internal/registry"
	"github.com/ripqueue/ripqueue/internal/repository"
	"github.com/ripqueue/ripqueue/internal/tagger"
	"github.com/ripqueue/ripqueue/internal/task"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	var (
		outputDir   = flag.String("o", "downloads", "output directory")
		quality     = flag.Int("q", config.DefaultQuality, "audio quality in kbps (64, 128, 192, 256, 320)")
		urlsFile    = flag.String("f", "", "read URLs from a text file, one per line")
		workers     = flag.Int("w", config.DefaultMaxWorkers, "number of parallel download workers (1-10)")
		rateLimit   = flag.Int("rate-limit", 0, "rate limit in KB/s per download (0 = unlimited)")
		mode        = flag.String("mode", config.DefaultMode, "downloader mode: basic, advanced, or smart")
		maxRetries  = flag.Int("max-retries", 3, "maximum retries per failed item")
		itemTimeout = flag.Duration("timeout", 10*time.Minute, "per-item download timeout")
		playlist    = flag.Bool("playlist", false, "treat the URL as a playlist and download every entry")
		resume      = flag.Bool("resume", false, "resubmit previously failed downloads")
		stats       = flag.Bool("stats", false, "show download statistics and exit")
		addFavorite = flag.String("add-favorite", "", "add a video ID to favorites and exit")
		info        = flag.Bool("info", false, "show video information without downloading")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var snap history.Snapshotter
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisSnap, err := history.NewRedisSnapshotter(addr)
		if err != nil {
			log.Printf("history snapshots disabled: %v", err)
		} else {
			snap = redisSnap
			defer redisSnap.Close()
		}
	}

	hist := history.NewStore(snap)
	hist.Load(ctx)

	var repo repository.DownloadRepository
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		pgRepo, err := repository.NewPostgresRepository(dsn)
		if err != nil {
			log.Printf("download log disabled: %v", err)
		} else {
			repo = pgRepo
			defer pgRepo.Close()
		}
	}

	ext := extractor.NewYtDlp(os.Getenv("YTDLP_PATH"))

	if *stats {
		showStats(ctx, hist, repo)
		return
	}

	if *addFavorite != "" {
		hist.AddFavorite(*addFavorite)
		hist.Persist(ctx)
		fmt.Printf("Added %s to favorites\n", *addFavorite)
		return
	}

	if *info {
		showInfo(ctx, ext, flag.Arg(0))
		return
	}

	urls, err := collectURLs(ctx, ext, *urlsFile, *playlist, flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	if len(urls) == 0 && !*resume {
		flag.Usage()
		log.Fatal("provide a URL, a -f url file, or -resume")
	}

	reg := registry.New(0)
	tag := tagger.NewFFmpegWriter(os.Getenv("FFMPEG_PATH"))
	disp := dispatcher.New(reg, hist, repo, ext, tag)

	opts := dispatcher.Options{
		Quality:       *quality,
		Mode:          *mode,
		OutputDir:     *outputDir,
		MaxWorkers:    *workers,
		RateLimitKBps: *rateLimit,
		MaxRetries:    *maxRetries,
		ItemTimeout:   *itemTimeout,
		FFmpegPath:    os.Getenv("FFMPEG_PATH"),
	}

	var taskID string
	if *resume {
		taskID, err = disp.ResumeFailed(ctx, opts)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("resuming previously failed downloads")
	} else {
		taskID, err = disp.SubmitBatch(ctx, urls, opts)
		if err != nil {
			log.Fatal(err)
		}
	}

	final := waitForTask(ctx, reg, taskID)
	printSummary(final)

	if final == nil || final.Status == task.StatusFailed || len(final.FailedDownloads) > 0 {
		os.Exit(1)
	}
}

func collectURLs(ctx context.Context, ext *extractor.YtDlp, urlsFile string, playlist bool, arg string) ([]string, error) {
	if urlsFile != "" {
		f, err := os.Open(urlsFile)
		if err != nil {
			return nil, fmt.Errorf("could not open url file: %w", err)
		}
		defer f.Close()

		var urls []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				urls = append(urls, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}

		log.Printf("loaded %d URLs from %s", len(urls), urlsFile)
		return urls, nil
	}

	if arg == "" {
		return nil, nil
	}

	if playlist || strings.Contains(arg, "playlist?") {
		urls, err := ext.ExpandPlaylist(ctx, arg)
		if err != nil {
			return nil, err
		}

		log.Printf("found %d videos in playlist", len(urls))
		return urls, nil
	}

	return []string{arg}, nil
}

func waitForTask(ctx context.Context, reg *registry.Registry, taskID string) *task.Task {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastProgress := -1.0
	for {
		select {
		case <-ctx.Done():
			log.Println("interrupted, waiting for in-flight items to stop")
			return nil
		case <-ticker.C:
			t, err := reg.Get(taskID)
			if err != nil {
				log.Printf("task lookup: %v", err)
				return nil
			}

			if t.Progress != lastProgress {
				fmt.Printf("\rprogress: %5.1f%% (%d downloaded, %d failed, %d skipped)",
					t.Progress, len(t.DownloadedFiles), len(t.FailedDownloads), t.SkippedCount)
				lastProgress = t.Progress
			}

			if t.Status.IsTerminal() {
				fmt.Println()
				return t
			}
		}
	}
}

func printSummary(t *task.Task) {
	if t == nil {
		return
	}

	fmt.Println("\nDownload Summary")
	fmt.Printf("  status:     %s\n", t.Status)
	fmt.Printf("  downloaded: %d\n", len(t.DownloadedFiles))
	fmt.Printf("  failed:     %d\n", len(t.FailedDownloads))
	fmt.Printf("  skipped:    %d duplicates\n", t.SkippedCount)

	if t.ErrorMessage != "" {
		fmt.Printf("  error:      %s\n", t.ErrorMessage)
	}

	if len(t.FailedDownloads) > 0 {
		fmt.Println("\nFailed URLs (use -resume to retry):")
		for _, f := range t.FailedDownloads {
			fmt.Printf("  %s - %s\n", f.URL, f.Error)
		}
	}
}

func showStats(ctx context.Context, hist *history.Store, repo repository.DownloadRepository) {
	fmt.Println("Download Statistics")
	fmt.Printf("  history entries: %d\n", hist.Len())
	fmt.Printf("  favorites:       %d\n", len(hist.Favorites()))

	if repo == nil {
		return
	}

	stats, err := repo.GetStats(ctx)
	if err != nil {
		log.Printf("could not load repository stats: %v", err)
		return
	}

	fmt.Printf("  total downloads: %d\n", stats.TotalDownloads)
	fmt.Printf("  completed:       %d\n", stats.CompletedCount)
	fmt.Printf("  failed:          %d\n", stats.FailedCount)
	fmt.Printf("  pending retries: %d\n", stats.PendingFailures)
}

func showInfo(ctx context.Context, ext *extractor.YtDlp, url string) {
	if url == "" {
		log.Fatal("provide a URL to inspect")
	}

	meta, err := ext.Probe(ctx, url)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Title:    %s\n", meta.Title)
	fmt.Printf("Uploader: %s\n", meta.Uploader)
	fmt.Printf("Duration: %s\n", formatDuration(meta.Duration))
	if meta.UploadDate != "" {
		fmt.Printf("Uploaded: %s\n", meta.UploadDate)
	}
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "unknown"
	}

	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}

	return fmt.Sprintf("%02d:%02d", m, s)
}
