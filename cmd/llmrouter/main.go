// Package main is the entry point for the llmrouter gateway: load config,
// wire every registry and the plugin pipeline, and serve until a signal
// asks for graceful shutdown (§6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/howard-nolan/llmrouter/internal/bootstrap"
	"github.com/howard-nolan/llmrouter/internal/config"
	"github.com/howard-nolan/llmrouter/internal/logging"
	"github.com/howard-nolan/llmrouter/internal/metrics"
	"github.com/howard-nolan/llmrouter/internal/server"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on clean shutdown, 1 on startup or
// fatal error (§6's exit-code contract).
func run() int {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "llmrouter: loading config: %v\n", err)
		return 1
	}

	log := logging.New(cfg.Logging)

	adapters := bootstrap.BuildAdapters()

	models, providers, err := bootstrap.BuildModels(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("wiring models")
		return 1
	}

	_, engine, err := bootstrap.BuildPipeline(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("wiring plugin pipeline")
		return 1
	}

	reg := metrics.New(prometheus.DefaultRegisterer)

	srv := server.New(server.Deps{
		Adapters:  adapters,
		Providers: providers,
		Models:    models,
		Engine:    engine,
		Metrics:   reg,
		Log:       log,
		CORS:      cfg.Server.CORS,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("llmrouter listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			return 1
		}
		return 0
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		return 1
	}
	return 0
}
