package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Clark-Hu/usbest/internal/auth"
	"github.com/Clark-Hu/usbest/internal/config"
	httpserver "github.com/Clark-Hu/usbest/internal/http"
	"github.com/Clark-Hu/usbest/internal/live"
	"github.com/Clark-Hu/usbest/internal/metrics"
	"github.com/Clark-Hu/usbest/internal/repository"
	"github.com/Clark-Hu/usbest/internal/results"
	"github.com/Clark-Hu/usbest/internal/rpc"
	"github.com/Clark-Hu/usbest/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.New(os.Stdout, "[usbest-api] ", log.LstdFlags|log.Lshortfile)

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.Open(dbCtx, cfg, logger)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repo := repository.New(st)
	stepTimeout := time.Duration(cfg.AggregateTimeoutSecs) * time.Second

	// The precomputed aggregate comes from the remote procedure when one is
	// configured and from the database function otherwise.
	var rows results.RowFetcher = repo.Surveys
	if cfg.AggregateRPCURL != "" {
		client, err := rpc.NewHTTPClient(cfg.AggregateRPCURL, cfg.AggregateRPCKey, stepTimeout, logger)
		if err != nil {
			log.Fatalf("init aggregate rpc client: %v", err)
		}
		rows = client
		logger.Printf("precomputed results from %s", cfg.AggregateRPCURL)
	}
	aggregator := results.New(rows, repo.Surveys, results.Options{
		StepTimeout: stepTimeout,
		Logger:      logger,
		Metrics:     m,
	})

	hub := live.NewHub(logger, m, live.WithAllowedOrigins(cfg.LiveAllowedOrigins...))
	go hub.Run(ctx)

	server := httpserver.New(cfg, httpserver.Deps{
		Store:    st,
		Repo:     repo,
		Results:  aggregator,
		Hub:      hub,
		Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience),
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger,
	})

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("graceful shutdown error: %v", err)
	}
}
