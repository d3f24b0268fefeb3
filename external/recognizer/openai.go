package recognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/sashabaranov/go-openai"
)

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAIRecognizer posts each window as a WAV file to an OpenAI-compatible
// transcription endpoint, such as a local faster-whisper server.
type OpenAIRecognizer struct {
	client *openai.Client
	model  string
}

func NewOpenAIRecognizer(cfg OpenAIConfig) *OpenAIRecognizer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIRecognizer{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}
}

func (r *OpenAIRecognizer) Recognize(ctx context.Context, req recognizer.Request) (string, error) {
	if len(req.Samples) == 0 {
		return "", nil
	}
	var wav bytes.Buffer
	if err := audio.WriteWAV(&wav, audio.Float32ToPCM16(req.Samples), req.SampleRate); err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}
	// the transcription API has no beam width parameter
	slog.Debug("openai transcription request", "model", r.model, "samples", len(req.Samples), "beam_width", req.BeamWidth, "vad_filter", req.VADFilter)

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: "window.wav",
		Reader:   &wav,
		Language: req.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &recognizer.Error{Kind: fmt.Sprintf("http_%d", apiErr.HTTPStatusCode), Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &recognizer.Error{Kind: fmt.Sprintf("http_%d", reqErr.HTTPStatusCode), Err: err}
	}
	return &recognizer.Error{Kind: "transport", Err: err}
}
