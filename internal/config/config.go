package config

import (
	"errors"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
)

const defaultInitialPrompt = "Phone call with a receptionist. The caller may ask to speak with the owner, " +
	"manager, schedule an appointment, ask about business hours, services, or pricing."

type Config struct {
	ListenAddr    string
	EngineBaseURL string
	EngineAPIKey  string
	EngineTimeout time.Duration

	MaxUploadBytes   int64
	MaxConcurrent    int64
	AdmissionTimeout time.Duration

	BeamSize       int
	RetryBeamSize  int
	RetryThreshold float64

	Language      string
	InitialPrompt string
	VADFilter     bool

	NoSpeechThreshold         float64
	CompressionRatioThreshold float64
	LogProbThreshold          float64
	RepetitionPenalty         float64
	ConditionOnPreviousText   bool

	TempDir  string
	LogLevel string
}

type envConfig struct {
	ListenAddr              string  `env:"LISTEN_ADDR" envDefault:":8080"`
	EngineBaseURL           string  `env:"ENGINE_BASE_URL" envDefault:"http://127.0.0.1:9100"`
	EngineAPIKey            string  `env:"ENGINE_API_KEY"`
	EngineTimeoutSeconds    int     `env:"ENGINE_TIMEOUT_SECONDS" envDefault:"120"`
	MaxUploadBytes          int64   `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`
	MaxConcurrent           int64   `env:"MAX_CONCURRENT" envDefault:"2"`
	AdmissionTimeoutSeconds int     `env:"ADMISSION_TIMEOUT_SECONDS" envDefault:"30"`
	BeamSize                int     `env:"BEAM_SIZE" envDefault:"5"`
	RetryBeamSize           int     `env:"RETRY_BEAM_SIZE" envDefault:"10"`
	RetryThreshold          float64 `env:"RETRY_LOGPROB_THRESHOLD" envDefault:"-0.5"`
	Language                string  `env:"LANGUAGE" envDefault:"en"`
	InitialPrompt           string  `env:"INITIAL_PROMPT"`
	VADFilter               bool    `env:"VAD_FILTER" envDefault:"true"`
	NoSpeechThreshold       float64 `env:"NO_SPEECH_THRESHOLD" envDefault:"0.6"`
	CompressionRatio        float64 `env:"COMPRESSION_RATIO_THRESHOLD" envDefault:"2.4"`
	LogProbThreshold        float64 `env:"LOG_PROB_THRESHOLD" envDefault:"-1.0"`
	RepetitionPenalty       float64 `env:"REPETITION_PENALTY" envDefault:"1.1"`
	ConditionOnPreviousText bool    `env:"CONDITION_ON_PREVIOUS_TEXT" envDefault:"false"`
	TempDir                 string  `env:"TEMP_DIR"`
	LogLevel                string  `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	prompt := strings.TrimSpace(raw.InitialPrompt)
	if prompt == "" {
		prompt = defaultInitialPrompt
	}

	cfg := Config{
		ListenAddr:                strings.TrimSpace(raw.ListenAddr),
		EngineBaseURL:             strings.TrimRight(strings.TrimSpace(raw.EngineBaseURL), "/"),
		EngineAPIKey:              strings.TrimSpace(raw.EngineAPIKey),
		EngineTimeout:             time.Duration(raw.EngineTimeoutSeconds) * time.Second,
		MaxUploadBytes:            raw.MaxUploadBytes,
		MaxConcurrent:             raw.MaxConcurrent,
		AdmissionTimeout:          time.Duration(raw.AdmissionTimeoutSeconds) * time.Second,
		BeamSize:                  raw.BeamSize,
		RetryBeamSize:             raw.RetryBeamSize,
		RetryThreshold:            raw.RetryThreshold,
		Language:                  strings.TrimSpace(raw.Language),
		InitialPrompt:             prompt,
		VADFilter:                 raw.VADFilter,
		NoSpeechThreshold:         raw.NoSpeechThreshold,
		CompressionRatioThreshold: raw.CompressionRatio,
		LogProbThreshold:          raw.LogProbThreshold,
		RepetitionPenalty:         raw.RepetitionPenalty,
		ConditionOnPreviousText:   raw.ConditionOnPreviousText,
		TempDir:                   strings.TrimSpace(raw.TempDir),
		LogLevel:                  strings.ToLower(strings.TrimSpace(raw.LogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.EngineBaseURL == "" {
		return errors.New("ENGINE_BASE_URL must not be empty")
	}
	if c.EngineTimeout <= 0 {
		return errors.New("ENGINE_TIMEOUT_SECONDS must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("MAX_CONCURRENT must be > 0")
	}
	if c.AdmissionTimeout <= 0 {
		return errors.New("ADMISSION_TIMEOUT_SECONDS must be > 0")
	}
	if c.BeamSize <= 0 {
		return errors.New("BEAM_SIZE must be > 0")
	}
	if c.RetryBeamSize <= 0 {
		return errors.New("RETRY_BEAM_SIZE must be > 0")
	}
	return nil
}
