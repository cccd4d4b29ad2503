package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"whisperflow/internal/config"
	"whisperflow/internal/model"
	"whisperflow/internal/pipeline"
	"whisperflow/internal/upstream/whisper"
)

type fakePipeline struct {
	input  pipeline.ProcessInput
	result pipeline.Result
	err    error
}

func (f *fakePipeline) Process(_ context.Context, in pipeline.ProcessInput) (pipeline.Result, error) {
	f.input = in
	return f.result, f.err
}

type fakeEngineChecker struct {
	err error
}

func (f *fakeEngineChecker) CheckHealth(context.Context) error {
	return f.err
}

type fakeMetrics struct {
	retries   int
	fallbacks int
}

func (f *fakeMetrics) ObserveHTTP(string, string, int, time.Duration) {}
func (f *fakeMetrics) IncEngineRetry()                               { f.retries++ }
func (f *fakeMetrics) IncRetryFallback()                             { f.fallbacks++ }

func testConfig() config.Config {
	return config.Config{
		ListenAddr:     ":0",
		EngineBaseURL:  "http://engine",
		MaxUploadBytes: 1 << 20,
	}
}

func newTestServer(p PipelineService, e EngineChecker, m MetricsObserver) http.Handler {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	return NewServer(testConfig(), logger, Dependencies{Pipeline: p, Engine: e, Metrics: m})
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakePipeline{}, &fakeEngineChecker{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadyzFailsWhenEngineDown(t *testing.T) {
	srv := newTestServer(&fakePipeline{}, &fakeEngineChecker{err: errors.New("engine down")}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTranscribeRawBody(t *testing.T) {
	p := &fakePipeline{result: pipeline.Result{Text: "Hello there.", Confidence: -0.123456}}
	srv := newTestServer(p, &fakeEngineChecker{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/transcribe?language=lt&prompt=Voicemail", strings.NewReader("raw-audio"))
	req.Header.Set("Content-Type", "audio/webm;codecs=opus")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp model.TranscribeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Text != "Hello there." {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.AvgLogprob != -0.1235 {
		t.Fatalf("expected confidence rounded to 4 decimals, got %v", resp.AvgLogprob)
	}

	if string(p.input.Payload) != "raw-audio" {
		t.Fatalf("unexpected payload: %q", p.input.Payload)
	}
	if p.input.ContentType != "audio/webm;codecs=opus" {
		t.Fatalf("unexpected content type: %q", p.input.ContentType)
	}
	if p.input.Language != "lt" || p.input.Prompt != "Voicemail" {
		t.Fatalf("unexpected overrides: %+v", p.input)
	}
}

func TestTranscribeFileMultipart(t *testing.T) {
	p := &fakePipeline{result: pipeline.Result{Text: "ok", Confidence: -0.2}}
	srv := newTestServer(p, &fakeEngineChecker{}, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "call.ogg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte("ogg-bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/transcribe_file", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if p.input.Filename != "call.ogg" {
		t.Fatalf("unexpected filename: %q", p.input.Filename)
	}
	if string(p.input.Payload) != "ogg-bytes" {
		t.Fatalf("unexpected payload: %q", p.input.Payload)
	}
}

func TestTranscribeFileMissingField(t *testing.T) {
	srv := newTestServer(&fakePipeline{}, &fakeEngineChecker{}, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("other", "value")
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/transcribe_file", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty payload", pipeline.ErrEmptyPayload, http.StatusBadRequest, "empty_payload"},
		{"payload too large", pipeline.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "payload_too_large"},
		{"lease failed", pipeline.ErrLeaseFailed, http.StatusInternalServerError, "lease_failed"},
		{"engine failure", &whisper.Error{StatusCode: 503}, http.StatusBadGateway, "engine_request_failed"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"canceled", context.Canceled, 499, "canceled"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		srv := newTestServer(&fakePipeline{err: tc.err}, &fakeEngineChecker{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("audio"))
		req.Header.Set("Content-Type", "audio/wav")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tc.name, rec.Code, tc.wantStatus)
		}
		var resp model.ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if resp.Error.Code != tc.wantCode {
			t.Fatalf("%s: code = %q, want %q", tc.name, resp.Error.Code, tc.wantCode)
		}
	}
}

func TestRetryMetricsIncrements(t *testing.T) {
	metrics := &fakeMetrics{}
	p := &fakePipeline{result: pipeline.Result{
		Text:           "ok",
		Confidence:     -0.3,
		RetryTriggered: true,
		RetryFailed:    true,
	}}
	srv := newTestServer(p, &fakeEngineChecker{}, metrics)

	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("audio"))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if metrics.retries != 1 || metrics.fallbacks != 1 {
		t.Fatalf("metrics = %+v", metrics)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestServer(&fakePipeline{result: pipeline.Result{Text: "ok"}}, &fakeEngineChecker{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/transcribe", strings.NewReader("audio"))
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("X-Request-Id", "req-abc")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-abc" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}
