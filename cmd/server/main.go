package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ripqueue/ripqueue/internal/api"
	"github.com/ripqueue/ripqueue/internal/config"
	"github.com/ripqueue/ripqueue/internal/dispatcher"
	"github.com/ripqueue/ripqueue/internal/extractor"
	"github.com/ripqueue/ripqueue/internal/history"
	"github.com/ripqueue/ripqueue/internal/middleware"
	"github.com/ripqueue/ripqueue/internal/notify"
	"github.com/ripqueue/ripqueue/internal/registry"
	"github.com/ripqueue/ripqueue/internal/repository"
	"github.com/ripqueue/ripqueue/internal/tagger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var snap history.Snapshotter
	if cfg.RedisAddr != "" {
		redisSnap, err := history.NewRedisSnapshotter(cfg.RedisAddr)
		if err != nil {
			log.Printf("history snapshots disabled: %v", err)
		} else {
			snap = redisSnap
			defer func() {
				if err := redisSnap.Close(); err != nil {
					log.Printf("failed to close Redis snapshotter: %v", err)
				}
			}()
		}
	}

	hist := history.NewStore(snap)
	hist.Load(context.Background())

	var repo repository.DownloadRepository
	if cfg.PostgresDSN != "" {
		pgRepo, err := repository.NewPostgresRepository(cfg.PostgresDSN)
		if err != nil {
			log.Printf("download log disabled: %v", err)
		} else {
			repo = pgRepo
			defer func() {
				if err := pgRepo.Close(); err != nil {
					log.Printf("failed to close Postgres repository: %v", err)
				}
			}()
		}
	}

	reg := registry.New(cfg.TaskRetention)
	reg.StartJanitor(10 * time.Minute)
	defer reg.Stop()

	ext := extractor.NewYtDlp(cfg.YtDlpPath)
	tag := tagger.NewFFmpegWriter(cfg.FFmpegPath)

	disp := dispatcher.New(reg, hist, repo, ext, tag)
	if cfg.SendGridAPIKey != "" && cfg.NotifyFrom != "" && cfg.NotifyTo != "" {
		notifier := notify.NewEmailNotifier(cfg.SendGridAPIKey, cfg.NotifyFrom, cfg.NotifyTo)
		disp.SetBatchListener(notifier.NotifyBatchComplete)
	}

	defaults := dispatcher.Options{
		Quality:       cfg.Quality,
		Mode:          cfg.Mode,
		OutputDir:     cfg.OutputDir,
		MaxWorkers:    cfg.MaxWorkers,
		RateLimitKBps: cfg.RateLimitKBps,
		MaxRetries:    cfg.MaxRetries,
		ItemTimeout:   cfg.ItemTimeout,
		FFmpegPath:    cfg.FFmpegPath,
	}

	apiHandler := api.NewAPI(disp, reg, hist, repo, ext, defaults)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", middleware.MetricsMiddleware(apiHandler))

	go startMetricsCollector(reg)

	log.Printf("Server starting on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatal(err)
	}
}
