package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

const speechAPIEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

type speechClient interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

// CloudSpeechRecognizer runs synchronous Speech-to-Text v2 recognition over
// raw LINEAR16 windows.
type CloudSpeechRecognizer struct {
	client     speechClient
	recognizer string
	model      string
}

func NewCloudSpeechRecognizer(ctx context.Context, cfg CloudSpeechConfig) (*CloudSpeechRecognizer, error) {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", location, speechAPIEndpointPort)))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	slog.Info("cloud speech recognizer ready", "location", location, "model", cfg.Model)
	return newCloudSpeechRecognizer(client, cfg.ProjectID, location, cfg.Model), nil
}

func newCloudSpeechRecognizer(client speechClient, projectID, location, model string) *CloudSpeechRecognizer {
	return &CloudSpeechRecognizer{
		client:     client,
		recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", projectID, location),
		model:      strings.TrimSpace(model),
	}
}

func (r *CloudSpeechRecognizer) Recognize(ctx context.Context, req recognizer.Request) (string, error) {
	if len(req.Samples) == 0 {
		return "", nil
	}
	slog.Debug("cloud speech recognize", "samples", len(req.Samples), "beam_width", req.BeamWidth)

	resp, err := r.client.Recognize(ctx, r.buildRequest(req))
	if err != nil {
		return "", err
	}
	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (r *CloudSpeechRecognizer) buildRequest(req recognizer.Request) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Recognizer: r.recognizer,
		Config: &speechpb.RecognitionConfig{
			Model:         r.model,
			LanguageCodes: []string{req.Language},
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   int32(req.SampleRate),
					AudioChannelCount: 1,
				},
			},
			Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
		},
		AudioSource: &speechpb.RecognizeRequest_Content{
			Content: audio.Float32ToPCM16(req.Samples),
		},
	}
}

func (r *CloudSpeechRecognizer) Close() error {
	return r.client.Close()
}
