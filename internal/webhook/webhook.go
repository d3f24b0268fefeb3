package webhook

import "context"

const SessionWebhookSchemaVersion = "1"

type SessionWebhookCaption struct {
	Seq           int64   `json:"seq"`
	Text          string  `json:"text"`
	At            string  `json:"at"`
	OffsetSeconds float64 `json:"offset_seconds"`
}

// SessionWebhookPayload summarizes one closed streaming session.
type SessionWebhookPayload struct {
	SchemaVersion      string                  `json:"schema_version"`
	RunID              string                  `json:"run_id"`
	SessionID          int64                   `json:"session_id"`
	StartAt            string                  `json:"start_at"`
	EndAt              string                  `json:"end_at"`
	DurationSeconds    int64                   `json:"duration_seconds"`
	SampleRate         int                     `json:"sample_rate"`
	ReportedClientRate int                     `json:"reported_client_rate,omitempty"`
	BytesReceived      int64                   `json:"bytes_received"`
	PartialCount       int                     `json:"partial_count"`
	FinalCount         int                     `json:"final_count"`
	ErrorCount         int                     `json:"error_count"`
	CloseReason        string                  `json:"close_reason"`
	Captions           []SessionWebhookCaption `json:"captions"`
	Transcript         string                  `json:"transcript"`
}

type Sender interface {
	SendSessionSummary(ctx context.Context, payload SessionWebhookPayload) error
}
