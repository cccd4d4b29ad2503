package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whisperflow/internal/config"
	"whisperflow/internal/engine"
	"whisperflow/internal/httpapi"
	"whisperflow/internal/lease"
	"whisperflow/internal/observability"
	"whisperflow/internal/pipeline"
	"whisperflow/internal/transcription"
	"whisperflow/internal/upstream/whisper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	engineHTTPClient := &http.Client{Timeout: cfg.EngineTimeout + 5*time.Second, Transport: transport}
	engineClient := whisper.New(cfg.EngineBaseURL, cfg.EngineAPIKey, engineHTTPClient, whisper.WithObserver(metrics.ObserveEngine))

	defaults := engine.Parameters{
		Language:                  cfg.Language,
		InitialPrompt:             cfg.InitialPrompt,
		BeamSize:                  cfg.BeamSize,
		VADFilter:                 cfg.VADFilter,
		NoSpeechThreshold:         cfg.NoSpeechThreshold,
		CompressionRatioThreshold: cfg.CompressionRatioThreshold,
		LogProbThreshold:          cfg.LogProbThreshold,
		RepetitionPenalty:         cfg.RepetitionPenalty,
		ConditionOnPreviousText:   cfg.ConditionOnPreviousText,
	}

	leaseStore := lease.NewStore(cfg.TempDir, logger)
	transcriptionService := transcription.New(engineClient, defaults, cfg.EngineTimeout)
	pipelineService := pipeline.New(leaseStore, transcriptionService, pipeline.Settings{
		MaxPayloadBytes:  cfg.MaxUploadBytes,
		MaxConcurrent:    cfg.MaxConcurrent,
		AdmissionTimeout: cfg.AdmissionTimeout,
		BeamSize:         cfg.BeamSize,
		RetryBeamSize:    cfg.RetryBeamSize,
		RetryThreshold:   cfg.RetryThreshold,
	})

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Pipeline:       pipelineService,
		Engine:         engineClient,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.EngineTimeout*2 + cfg.AdmissionTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr, "engine", cfg.EngineBaseURL, "max_concurrent", cfg.MaxConcurrent)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
