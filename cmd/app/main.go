package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"ocr-batch-sync/internal/application"
	"ocr-batch-sync/internal/config"
	"ocr-batch-sync/internal/domain/model"
	"ocr-batch-sync/internal/domain/ports/adapter"
	mistral "ocr-batch-sync/internal/infra/adapters/mistral"
	pg "ocr-batch-sync/internal/infra/db/postgres"
	httpapi "ocr-batch-sync/internal/infra/http"
	"ocr-batch-sync/internal/infra/logging"
	"ocr-batch-sync/internal/infra/metrics"
	red "ocr-batch-sync/internal/infra/redis"
	"ocr-batch-sync/internal/infra/retry"
	"ocr-batch-sync/internal/infra/sched"
	"ocr-batch-sync/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, verbose)")
	docName := flag.String("document", "", "document name for submit")
	docID := flag.String("document-id", "", "document id for submit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	statusCache := red.NewStatusCache(redisClient, cfg.Redis.TTL, log)

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	docRepo := pg.NewDocumentRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Batch API adapter ----
	var api adapter.BatchAPIAdapter
	if cfg.API.Mock {
		log.Info().Msg("mock mode: no remote calls will be made")
		api = mistral.NewNoopClient(mistral.NewSequence(), log)
	} else {
		api = mistral.NewClient(cfg.API.BaseURL, cfg.API.Key, cfg.API.Timeout,
			rateLimiter, cfg.Sync.RateLimit, cfg.Sync.RateWindow, log)
	}

	// ---- Use cases ----
	policy := retry.Policy{
		MaxRetries:      cfg.Retry.MaxRetries,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		ExponentialBase: cfg.Retry.ExponentialBase,
		Jitter:          cfg.Retry.Jitter,
	}
	syncUC := usecase.NewJobSyncUseCase(jobRepo, docRepo, txManager, api, statusCache,
		policy, cfg.Sync.Concurrency, cfg.API.Mock, log)
	submitUC := usecase.NewSubmitUseCase(jobRepo, docRepo, api, policy,
		cfg.Sync.BatchMaxFiles, cfg.API.Model, log)

	facade := application.NewClientFacade(submitUC, syncUC)

	// One-shot command mode: run the command and exit.
	if args := flag.Args(); len(args) > 0 {
		if err := runCommand(ctx, facade, args, *docName, *docID); err != nil {
			log.Error().Err(err).Msg("command failed")
			os.Exit(1)
		}
		return
	}

	// ---- Service mode ----
	worker := sched.NewRefreshWorker(syncUC, locker, cfg.Sync.RefreshInterval, log)
	go worker.Start(ctx)

	srv := httpapi.NewServer(cfg, syncUC, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("admin server stopped")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin server shutdown")
	}
}

func runCommand(ctx context.Context, facade *application.ClientFacade, args []string, docName, docID string) error {
	out := func(s string) { fmt.Println(s) }

	switch cmd, rest := args[0], args[1:]; cmd {
	case "submit":
		if len(rest) == 0 {
			return fmt.Errorf("submit: at least one file path required")
		}
		files, err := collectFiles(rest)
		if err != nil {
			return err
		}
		msg, err := facade.HandleSubmit(ctx, files, usecase.SubmitOptions{
			DocumentName: docName,
			DocumentID:   docID,
		})
		if err != nil {
			return err
		}
		out(msg)
	case "status":
		if len(rest) != 1 {
			return fmt.Errorf("status: exactly one job id required")
		}
		msg, err := facade.HandleStatus(ctx, rest[0])
		if err != nil {
			return err
		}
		out(msg)
	case "details":
		if len(rest) != 1 {
			return fmt.Errorf("details: exactly one job id required")
		}
		msg, err := facade.HandleDetails(ctx, rest[0])
		if err != nil {
			return err
		}
		out(msg)
	case "cancel":
		if len(rest) != 1 {
			return fmt.Errorf("cancel: exactly one job id required")
		}
		out(facade.HandleCancel(ctx, rest[0]))
	case "list":
		msg, err := facade.HandleList(ctx)
		if err != nil {
			return err
		}
		out(msg)
	case "document":
		if len(rest) != 1 {
			return fmt.Errorf("document: exactly one name or id required")
		}
		msg, err := facade.HandleDocumentQuery(ctx, rest[0])
		if err != nil {
			return err
		}
		out(msg)
	case "refresh":
		msg, err := facade.HandleRefreshAll(ctx, func(completed, total int) {
			fmt.Printf("\rrefreshed %d/%d", completed, total)
			if completed == total {
				fmt.Println()
			}
		})
		if err != nil {
			return err
		}
		out(msg)
	default:
		return fmt.Errorf("unknown command %q (want submit|status|details|cancel|list|document|refresh)", cmd)
	}
	return nil
}

// collectFiles expands the given paths into file references; directories
// contribute their regular files, non-recursively.
func collectFiles(paths []string) ([]model.FileRef, error) {
	var files []model.FileRef
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, model.FileRef{Path: p, Name: filepath.Base(p)})
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, model.FileRef{
				Path: filepath.Join(p, e.Name()),
				Name: e.Name(),
			})
		}
	}
	return files, nil
}
