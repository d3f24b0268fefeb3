package repository

import "time"

type SessionStatus string

const (
	SessionStatusStreaming SessionStatus = "streaming"
	SessionStatusClosed    SessionStatus = "closed"
)

// StreamSession is one row of the session ledger. Transcript text is never
// stored.
type StreamSession struct {
	ID                 string
	RunID              string
	SessionNumber      int64
	RemoteAddr         string
	SampleRate         int
	ReportedClientRate int
	StartedAt          time.Time
	EndedAt            *time.Time
	Status             SessionStatus
	BytesReceived      int64
	PartialCount       int
	FinalCount         int
	ErrorCount         int
	CloseReason        string
}
