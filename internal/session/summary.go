package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/kikitori/internal/webhook"
)

func buildTranscriptText(captions []Caption) string {
	lines := make([]string, 0, len(captions))
	for _, c := range captions {
		lines = append(lines, fmt.Sprintf("%s %s", formatElapsedHMS(c.Offset), c.Text))
	}
	return strings.Join(lines, "\n")
}

func buildSessionWebhookPayload(runID string, s Summary) webhook.SessionWebhookPayload {
	durationSeconds := int64(s.EndedAt.Sub(s.StartedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	captions := make([]webhook.SessionWebhookCaption, 0, len(s.Captions))
	for _, c := range s.Captions {
		captions = append(captions, webhook.SessionWebhookCaption{
			Seq:           c.Seq,
			Text:          c.Text,
			At:            c.At.UTC().Format(time.RFC3339),
			OffsetSeconds: c.Offset.Seconds(),
		})
	}

	return webhook.SessionWebhookPayload{
		SchemaVersion:      webhook.SessionWebhookSchemaVersion,
		RunID:              runID,
		SessionID:          s.ID,
		StartAt:            s.StartedAt.UTC().Format(time.RFC3339),
		EndAt:              s.EndedAt.UTC().Format(time.RFC3339),
		DurationSeconds:    durationSeconds,
		SampleRate:         s.SampleRate,
		ReportedClientRate: s.ReportedClientRate,
		BytesReceived:      s.Stats.BytesReceived,
		PartialCount:       s.Stats.Partials,
		FinalCount:         s.Stats.Finals,
		ErrorCount:         s.Stats.Errors,
		CloseReason:        s.CloseReason,
		Captions:           captions,
		Transcript:         buildTranscriptText(s.Captions),
	}
}

func formatElapsedHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
