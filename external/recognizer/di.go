package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/samber/do/v2"
)

const engineInitTimeout = 15 * time.Second

// RegisterDI provides the configured engine behind a shared concurrency gate.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (recognizer.Recognizer, error) {
		c := do.MustInvoke[*config.Config](i)
		engine, err := newEngine(c)
		if err != nil {
			return nil, err
		}
		slog.Info("recognizer configured", "backend", c.RecognizerBackend, "concurrency", c.RecognizerConcurrency)
		return recognizer.NewGate(engine, c.RecognizerConcurrency), nil
	})
}

func newEngine(c *config.Config) (recognizer.Recognizer, error) {
	switch c.RecognizerBackend {
	case config.RecognizerBackendOpenAI:
		return NewOpenAIRecognizer(OpenAIConfig{
			BaseURL: c.OpenAIBaseURL,
			APIKey:  c.OpenAIAPIKey,
			Model:   c.OpenAIModel,
		}), nil
	case config.RecognizerBackendCloudSpeech:
		ctx, cancel := context.WithTimeout(context.Background(), engineInitTimeout)
		defer cancel()
		return NewCloudSpeechRecognizer(ctx, CloudSpeechConfig{
			ProjectID:       c.GoogleCloudProjectID,
			CredentialsJSON: c.GoogleCloudCredentialsJSON,
			Location:        c.GoogleCloudSpeechLocation,
			Model:           c.GoogleCloudSpeechModel,
		})
	case config.RecognizerBackendNone:
		return recognizer.Silent{}, nil
	default:
		return nil, fmt.Errorf("unsupported recognizer backend %q", c.RecognizerBackend)
	}
}
