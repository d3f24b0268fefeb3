package config

import (
	"fmt"
	"time"
)

const (
	RecognizerBackendOpenAI      = "openai"
	RecognizerBackendCloudSpeech = "cloud_speech"
	RecognizerBackendNone        = "none"
)

type Config struct {
	Env        string
	ListenAddr string

	SampleRate          int
	SampleWidthBytes    int
	PartialInterval     time.Duration
	PartialWindow       time.Duration
	MaxBuffer           time.Duration
	PartialBeamWidth    int
	FinalBeamWidth      int
	FlushBeamWidth      int
	TranscribeLanguage  string
	VADFilter           bool
	IngestStatsInterval time.Duration
	RecognitionTimeout  time.Duration
	MaxMessageBytes     int64

	RecognizerBackend     string
	RecognizerConcurrency int

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string

	DatabaseURL string

	DiscordToken            string
	DiscordCaptionChannelID string
	CaptionQueueSize        int

	SessionWebhookURL string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	if c.SampleWidthBytes != 2 {
		return fmt.Errorf("SAMPLE_WIDTH_BYTES must be 2 (16-bit PCM), got %d", c.SampleWidthBytes)
	}
	for _, d := range c.positiveDurationChecks() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.PartialWindow > c.MaxBuffer {
		return fmt.Errorf("PARTIAL_WINDOW (%s) must not exceed MAX_BUFFER (%s)", c.PartialWindow, c.MaxBuffer)
	}
	if c.PartialBeamWidth <= 0 || c.FinalBeamWidth <= 0 || c.FlushBeamWidth <= 0 {
		return fmt.Errorf("beam widths must be positive, got partial=%d final=%d flush=%d", c.PartialBeamWidth, c.FinalBeamWidth, c.FlushBeamWidth)
	}
	if c.RecognizerConcurrency <= 0 {
		return fmt.Errorf("RECOGNIZER_CONCURRENCY must be positive, got %d", c.RecognizerConcurrency)
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be positive, got %d", c.MaxMessageBytes)
	}
	if c.DiscordToken != "" && c.DiscordCaptionChannelID == "" {
		return fmt.Errorf("DISCORD_CAPTION_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	if c.CaptionQueueSize <= 0 {
		return fmt.Errorf("CAPTION_QUEUE_SIZE must be positive, got %d", c.CaptionQueueSize)
	}
	switch c.RecognizerBackend {
	case RecognizerBackendOpenAI:
		if c.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_BASE_URL is required when RECOGNIZER_BACKEND=%s", c.RecognizerBackend)
		}
		if c.OpenAIModel == "" {
			return fmt.Errorf("OPENAI_MODEL is required when RECOGNIZER_BACKEND=%s", c.RecognizerBackend)
		}
	case RecognizerBackendCloudSpeech:
		if c.GoogleCloudProjectID == "" || c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID and GOOGLE_CLOUD_CREDENTIALS_JSON are required when RECOGNIZER_BACKEND=%s", c.RecognizerBackend)
		}
	case RecognizerBackendNone:
	default:
		return fmt.Errorf("RECOGNIZER_BACKEND is invalid: %q", c.RecognizerBackend)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "LISTEN_ADDR", value: c.ListenAddr},
		{name: "TRANSCRIBE_LANGUAGE", value: c.TranscribeLanguage},
		{name: "RECOGNIZER_BACKEND", value: c.RecognizerBackend},
	}
}

type positiveDuration struct {
	name  string
	value time.Duration
}

func (c *Config) positiveDurationChecks() []positiveDuration {
	return []positiveDuration{
		{name: "PARTIAL_INTERVAL", value: c.PartialInterval},
		{name: "PARTIAL_WINDOW", value: c.PartialWindow},
		{name: "MAX_BUFFER", value: c.MaxBuffer},
		{name: "INGEST_STATS_INTERVAL", value: c.IngestStatsInterval},
		{name: "RECOGNITION_TIMEOUT", value: c.RecognitionTimeout},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) CaptionRelayEnabled() bool {
	return c.DiscordToken != "" && c.DiscordCaptionChannelID != ""
}
