package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string

	DatabaseURL string

	// Object storage for recordings and published samples.
	StorageBackend   string // "gcs" or "local"
	RecordingsBucket string
	LocalStorageDir  string
	BaseURL          string
	SignedURLTTL     time.Duration

	// Speech-to-text provider.
	TranscribeURL    string
	TranscribeAPIKey string
	TranscodeURL     string

	// Summarization provider (OpenAI-compatible chat endpoint).
	LLMURL   string
	LLMKey   string
	LLMModel string

	// Transactional email.
	ResendAPIKey string
	FromEmail    string
	ReplyTo      string

	// Identity and webhook verification.
	AuthSecret    string
	WebhookSecret string

	// PII redaction.
	RedactionEnabled bool
	AnalyzerURL      string
	AnonymizerURL    string
	ServerSidePDF    bool

	MaxBodyBytes int64
	IdemKeyTTL   time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		Port:             envOr("PORT", "8080"),
		Environment:      envOr("ENVIRONMENT", "local"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StorageBackend:   envOr("STORAGE_BACKEND", "local"),
		RecordingsBucket: envOr("RECORDINGS_BUCKET", "recordings"),
		LocalStorageDir:  envOr("LOCAL_STORAGE_DIR", "./data"),
		BaseURL:          envOr("BASE_URL", "http://localhost:8080"),
		SignedURLTTL:     time.Hour,
		TranscribeURL:    envOr("TRANSCRIBE_URL", "https://api.deepgram.com/v1/listen?model=nova-2&smart_format=true"),
		TranscribeAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		TranscodeURL:     os.Getenv("TRANSCODE_URL"),
		LLMURL:           envOr("LLM_URL", "https://api.openai.com/v1/chat/completions"),
		LLMKey:           os.Getenv("OPENAI_API_KEY"),
		LLMModel:         envOr("SUMMARY_MODEL", "gpt-4o-mini"),
		ResendAPIKey:     os.Getenv("RESEND_API_KEY"),
		FromEmail:        envOr("FROM_EMAIL", "VoiceNotes <notifications@updates.voicenotes.dev>"),
		ReplyTo:          envOr("REPLY_TO", "support@updates.voicenotes.dev"),
		AuthSecret:       os.Getenv("AUTH_SECRET"),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		RedactionEnabled: envBool("REDACTION_ENABLED"),
		AnalyzerURL:      os.Getenv("PRESIDIO_ANALYZER_URL"),
		AnonymizerURL:    os.Getenv("PRESIDIO_ANONYMIZER_URL"),
		ServerSidePDF:    envBool("SERVER_SIDE_PDF"),
		MaxBodyBytes:     envInt64("MAX_BODY_BYTES", 10<<20),
		IdemKeyTTL:       24 * time.Hour,
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthSecret == "" {
		return cfg, fmt.Errorf("AUTH_SECRET is required")
	}
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string) bool {
	v, _ := strconv.ParseBool(os.Getenv(k))
	return v
}

func envInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
