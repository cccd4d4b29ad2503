package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"whisperflow/internal/config"
	"whisperflow/internal/model"
	"whisperflow/internal/pipeline"
	"whisperflow/internal/upstream/whisper"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type PipelineService interface {
	Process(ctx context.Context, in pipeline.ProcessInput) (pipeline.Result, error)
}

type EngineChecker interface {
	CheckHealth(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	IncEngineRetry()
	IncRetryFallback()
}

type Dependencies struct {
	Pipeline       PipelineService
	Engine         EngineChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	pipeline     PipelineService
	engine       EngineChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	requestIDContext = ctxKey("request_id")
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Pipeline == nil || deps.Engine == nil {
		panic("httpapi: pipeline and engine dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		pipeline:     deps.Pipeline,
		engine:       deps.Engine,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Post("/transcribe", s.handleTranscribe)
	r.Post("/transcribe_file", s.handleTranscribeFile)

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.engine.CheckHealth(ctx); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "engine check failed", detailsForError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.ReadyResponse{OK: true, ServiceName: "whisperflow"})
}

// handleTranscribe accepts the raw audio bytes as the request body, the way
// the realtime runtime sends them: Content-Type names the container format.
func (s *server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	defer func() { _ = r.Body.Close() }()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.process(w, r, pipeline.ProcessInput{
		Payload:     payload,
		ContentType: r.Header.Get("Content-Type"),
		Language:    strings.TrimSpace(r.URL.Query().Get("language")),
		Prompt:      strings.TrimSpace(r.URL.Query().Get("prompt")),
	})
}

// handleTranscribeFile accepts a multipart upload with a "file" field.
func (s *server) handleTranscribeFile(w http.ResponseWriter, r *http.Request) {
	file, header, form, err := s.readMultipartAudio(w, r)
	if err != nil {
		s.handleMultipartReadError(w, r, err)
		return
	}
	defer cleanupMultipartForm(form)
	defer func() { _ = file.Close() }()

	payload, err := io.ReadAll(file)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.process(w, r, pipeline.ProcessInput{
		Payload:     payload,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    header.Filename,
		Language:    strings.TrimSpace(r.URL.Query().Get("language")),
		Prompt:      strings.TrimSpace(r.URL.Query().Get("prompt")),
	})
}

func (s *server) process(w http.ResponseWriter, r *http.Request, in pipeline.ProcessInput) {
	result, err := s.pipeline.Process(r.Context(), in)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	if s.metrics != nil {
		if result.RetryTriggered {
			s.metrics.IncEngineRetry()
		}
		if result.RetryFailed {
			s.metrics.IncRetryFallback()
		}
	}

	s.logger.Info("transcription_completed",
		"request_id", requestIDFromContext(r.Context()),
		"bytes", len(in.Payload),
		"language", result.Language,
		"language_probability", result.LanguageProbability,
		"audio_duration", result.AudioDuration,
		"confidence", result.Confidence,
		"engine_calls", result.EngineCalls,
		"retry_triggered", result.RetryTriggered,
		"retry_improved", result.RetryImproved,
		"first_attempt_ms", result.Timings.FirstAttempt.Milliseconds(),
		"retry_ms", result.Timings.Retry.Milliseconds(),
	)

	writeJSON(w, http.StatusOK, model.TranscribeResponse{
		Text:       result.Text,
		AvgLogprob: roundTo4(result.Confidence),
	})
}

func (s *server) readMultipartAudio(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, *multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(minInt64(s.cfg.MaxUploadBytes, 8<<20)); err != nil {
		return nil, nil, nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, r.MultipartForm, err
	}
	return file, header, r.MultipartForm, nil
}

func (s *server) handleMultipartReadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("request exceeds %d bytes", s.cfg.MaxUploadBytes), nil)
		return
	}
	if strings.Contains(strings.ToLower(err.Error()), "no such file") || strings.Contains(strings.ToLower(err.Error()), "missing") {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "multipart field 'file' is required", nil)
		return
	}
	s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid multipart form data", nil)
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "transcription failed"
	details := detailsForError(err)

	var maxErr *http.MaxBytesError
	var engineErr *whisper.Error
	switch {
	case errors.Is(err, pipeline.ErrEmptyPayload):
		status = http.StatusBadRequest
		code = "empty_payload"
		message = "empty request body"
	case errors.Is(err, pipeline.ErrPayloadTooLarge), errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
		code = "payload_too_large"
		message = fmt.Sprintf("audio payload exceeds %d bytes", s.cfg.MaxUploadBytes)
	case errors.Is(err, pipeline.ErrLeaseFailed):
		status = http.StatusInternalServerError
		code = "lease_failed"
		message = "could not stage audio payload"
	case errors.As(err, &engineErr):
		status = http.StatusBadGateway
		code = "engine_request_failed"
		message = "engine request failed"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
		message = "request timed out"
	case errors.Is(err, context.Canceled):
		status = 499
		code = "canceled"
		message = "request canceled"
	}

	s.writeError(w, r, status, code, message, details)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func cleanupMultipartForm(form *multipart.Form) {
	if form != nil {
		_ = form.RemoveAll()
	}
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var engineErr *whisper.Error
	if errors.As(err, &engineErr) {
		details["engine_status"] = engineErr.StatusCode
		if engineErr.Body != "" {
			details["engine_body"] = engineErr.Body
		}
	}
	return details
}

func roundTo4(value float64) float64 {
	return math.Round(value*10000) / 10000
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
