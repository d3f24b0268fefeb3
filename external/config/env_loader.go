package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/kikitori/internal/config"
)

type envConfig struct {
	Env        string `env:"ENV" envDefault:"production"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8765"`

	SampleRate          int           `env:"SAMPLE_RATE" envDefault:"16000"`
	SampleWidthBytes    int           `env:"SAMPLE_WIDTH_BYTES" envDefault:"2"`
	PartialInterval     time.Duration `env:"PARTIAL_INTERVAL" envDefault:"3s"`
	PartialWindow       time.Duration `env:"PARTIAL_WINDOW" envDefault:"6s"`
	MaxBuffer           time.Duration `env:"MAX_BUFFER" envDefault:"12s"`
	PartialBeamWidth    int           `env:"PARTIAL_BEAM_WIDTH" envDefault:"2"`
	FinalBeamWidth      int           `env:"FINAL_BEAM_WIDTH" envDefault:"3"`
	FlushBeamWidth      int           `env:"FLUSH_BEAM_WIDTH" envDefault:"4"`
	TranscribeLanguage  string        `env:"TRANSCRIBE_LANGUAGE" envDefault:"en"`
	VADFilter           bool          `env:"VAD_FILTER" envDefault:"true"`
	IngestStatsInterval time.Duration `env:"INGEST_STATS_INTERVAL" envDefault:"5s"`
	RecognitionTimeout  time.Duration `env:"RECOGNITION_TIMEOUT" envDefault:"60s"`
	MaxMessageBytes     int64         `env:"MAX_MESSAGE_BYTES" envDefault:"8388608"`

	RecognizerBackend     string `env:"RECOGNIZER_BACKEND" envDefault:"openai"`
	RecognizerConcurrency int    `env:"RECOGNIZER_CONCURRENCY" envDefault:"1"`

	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"http://localhost:8000/v1"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"Systran/faster-whisper-tiny.en"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"short"`

	DatabaseURL string `env:"DATABASE_URL"`

	DiscordToken            string `env:"DISCORD_TOKEN"`
	DiscordCaptionChannelID string `env:"DISCORD_CAPTION_CHANNEL_ID"`
	CaptionQueueSize        int    `env:"CAPTION_QUEUE_SIZE" envDefault:"256"`

	SessionWebhookURL string `env:"SESSION_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		ListenAddr:                 raw.ListenAddr,
		SampleRate:                 raw.SampleRate,
		SampleWidthBytes:           raw.SampleWidthBytes,
		PartialInterval:            raw.PartialInterval,
		PartialWindow:              raw.PartialWindow,
		MaxBuffer:                  raw.MaxBuffer,
		PartialBeamWidth:           raw.PartialBeamWidth,
		FinalBeamWidth:             raw.FinalBeamWidth,
		FlushBeamWidth:             raw.FlushBeamWidth,
		TranscribeLanguage:         raw.TranscribeLanguage,
		VADFilter:                  raw.VADFilter,
		IngestStatsInterval:        raw.IngestStatsInterval,
		RecognitionTimeout:         raw.RecognitionTimeout,
		MaxMessageBytes:            raw.MaxMessageBytes,
		RecognizerBackend:          raw.RecognizerBackend,
		RecognizerConcurrency:      raw.RecognizerConcurrency,
		OpenAIBaseURL:              raw.OpenAIBaseURL,
		OpenAIAPIKey:               raw.OpenAIAPIKey,
		OpenAIModel:                raw.OpenAIModel,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DatabaseURL:                raw.DatabaseURL,
		DiscordToken:               raw.DiscordToken,
		DiscordCaptionChannelID:    raw.DiscordCaptionChannelID,
		CaptionQueueSize:           raw.CaptionQueueSize,
		SessionWebhookURL:          raw.SessionWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
