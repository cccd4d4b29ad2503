// Package whisper is the HTTP client for the whisperd inference sidecar. It
// uploads a stored audio object with the attempt's parameters and parses the
// segment-level verbose JSON response.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"whisperflow/internal/engine"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	observer   ObserverFunc
}

type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine request failed with status %d", e.StatusCode)
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL, apiKey string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type transcribeResponse struct {
	Language            string              `json:"language"`
	LanguageProbability float64             `json:"language_probability"`
	Duration            float64             `json:"duration"`
	Segments            []transcribeSegment `json:"segments"`
}

type transcribeSegment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Transcribe posts the stored audio object to whisperd and returns the raw
// engine output. One call, no internal retries.
func (c *Client) Transcribe(ctx context.Context, audioPath string, params engine.Parameters) (engine.Output, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("transcribe", statusCode, time.Since(started)) }()

	audio, err := os.Open(audioPath)
	if err != nil {
		return engine.Output{}, fmt.Errorf("open audio object: %w", err)
	}
	defer func() { _ = audio.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"response_format":             "verbose_json",
		"beam_size":                   strconv.Itoa(params.BeamSize),
		"vad_filter":                  strconv.FormatBool(params.VADFilter),
		"no_speech_threshold":         formatFloat(params.NoSpeechThreshold),
		"compression_ratio_threshold": formatFloat(params.CompressionRatioThreshold),
		"log_prob_threshold":          formatFloat(params.LogProbThreshold),
		"repetition_penalty":          formatFloat(params.RepetitionPenalty),
		"condition_on_previous_text":  strconv.FormatBool(params.ConditionOnPreviousText),
	}
	if params.Language != "" {
		fields["language"] = params.Language
	}
	if params.InitialPrompt != "" {
		fields["initial_prompt"] = params.InitialPrompt
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return engine.Output{}, err
		}
	}

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return engine.Output{}, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return engine.Output{}, err
	}
	if err := writer.Close(); err != nil {
		return engine.Output{}, err
	}

	url := c.baseURL + "/transcribe"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return engine.Output{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return engine.Output{}, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return engine.Output{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return engine.Output{}, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(respBody))}
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return engine.Output{}, fmt.Errorf("parse engine response: %w", err)
	}

	out := engine.Output{
		Language:            parsed.Language,
		LanguageProbability: parsed.LanguageProbability,
		Duration:            parsed.Duration,
		Segments:            make([]engine.Segment, 0, len(parsed.Segments)),
	}
	for _, seg := range parsed.Segments {
		out.Segments = append(out.Segments, engine.Segment{
			Start:        seg.Start,
			End:          seg.End,
			Text:         seg.Text,
			AvgLogprob:   seg.AvgLogprob,
			NoSpeechProb: seg.NoSpeechProb,
		})
	}
	return out, nil
}

// CheckHealth pings whisperd's health endpoint. Used by readiness probes.
func (c *Client) CheckHealth(ctx context.Context) error {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("health", statusCode, time.Since(started)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(body))}
	}
	return nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func truncateBody(body string) string {
	const limit = 2048
	body = strings.TrimSpace(body)
	if len(body) > limit {
		return body[:limit]
	}
	return body
}
