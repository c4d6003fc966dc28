package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"inspector-report/internal/config"
	"inspector-report/internal/logger"
	"inspector-report/internal/metrics"
	"inspector-report/internal/server"
	"inspector-report/internal/storage"
	"inspector-report/internal/worker"

	"github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// CPU
	// ====================================================================
	//
	// Container CPU quotas are not visible to the Go runtime. GOMAXPROCS
	// from the task definition wins; otherwise 2 procs, since a PDF render
	// is CPU bound and one proc would serialise concurrent downloads.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(min(2, runtime.NumCPU()))
	}

	// ====================================================================
	// Config, logging, metrics
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	// ====================================================================
	// Audit sinks
	// ====================================================================
	//
	//  - SQLite (ENABLE_DB): one report_requests row per report
	//  - S3 (AUDIT_BUCKET): JSONL.gz batches, local DLQ when S3 is down
	//
	// A sink that cannot start is logged and skipped; report generation
	// never depends on the audit trail.
	// ====================================================================
	var sinks []worker.Sink

	var store *storage.Store
	if cfg.EnableDB {
		s, err := storage.Open(cfg.DBPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.DBPath).Msg("audit db init failed, continuing without it")
		} else {
			store = s
			sinks = append(sinks, worker.NewDBSink(store, m))
		}
	}

	if cfg.S3Enabled() {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err := worker.NewS3Client(initCtx, cfg)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("aws config failed, s3 audit disabled")
		} else if sink, err := worker.NewS3Sink(cfg, m, client); err != nil {
			log.Error().Err(err).Msg("s3 audit sink failed, s3 audit disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}

	mgr := worker.NewManager(cfg, m, sinks...)
	mgr.Start()

	// ====================================================================
	// HTTP
	// ====================================================================
	//
	// WriteTimeout covers rendering: the PDF is built before the first
	// byte is written.
	// ====================================================================
	h := server.NewHandler(cfg, m, mgr)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// ====================================================================
	// Graceful shutdown
	// ====================================================================
	//
	// On SIGTERM/SIGINT:
	//   1) stop accepting requests and let in-flight renders finish
	//   2) flush the audit manager (last batch included)
	//   3) close the database
	// ====================================================================
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Int("audit_sinks", len(sinks)).
		Msg("inspector report server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server terminated")
	}
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("audit flush incomplete")
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("audit db close")
		}
	}
	log.Info().Msg("shutdown complete")
}
