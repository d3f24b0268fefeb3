package session

import (
	"encoding/json"
	"log/slog"
	"math"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Outbound is the closed set of JSON messages a session sends to its client.
type Outbound interface {
	outboundType() string
}

// LogMessage carries the current sequence for correlation without
// consuming one.
type LogMessage struct {
	Text  string
	Level Level
	At    time.Time
	Seq   int64
}

type PartialMessage struct {
	Text string
	Seq  int64
}

type FinalMessage struct {
	Text string
	Seq  int64
}

type ErrorMessage struct {
	Error string
	Kind  string
}

func (LogMessage) outboundType() string     { return "log" }
func (PartialMessage) outboundType() string { return "partial" }
func (FinalMessage) outboundType() string   { return "final" }
func (ErrorMessage) outboundType() string   { return "error" }

func (m LogMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string  `json:"type"`
		Text  string  `json:"text"`
		Level Level   `json:"level"`
		TS    float64 `json:"ts"`
		Seq   int64   `json:"seq"`
	}{m.outboundType(), m.Text, m.Level, epochSeconds(m.At), m.Seq})
}

func (m PartialMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Seq  int64  `json:"seq"`
	}{m.outboundType(), m.Text, m.Seq})
}

func (m FinalMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Seq  int64  `json:"seq"`
	}{m.outboundType(), m.Text, m.Seq})
}

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}{m.outboundType(), m.Error, m.Kind})
}

func epochSeconds(t time.Time) float64 {
	return math.Round(float64(t.UnixMilli())) / 1000
}

// Command is the closed set of control frames a client may send.
type Command interface {
	command() string
}

type FlushCommand struct{}

type StopCommand struct{}

// MetaMessage reports client-side audio context details. ClientRate is zero
// when the client did not report a usable ctxRate.
type MetaMessage struct {
	ClientRate int
	Data       map[string]any
	Stats      map[string]any
}

func (FlushCommand) command() string { return "flush" }
func (StopCommand) command() string  { return "stop" }
func (MetaMessage) command() string  { return "meta" }

type inboundEnvelope struct {
	Command string          `json:"command"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Stats   json.RawMessage `json:"stats"`
}

// ParseCommand decodes a text frame. Unknown or malformed frames report
// false and must be ignored.
func ParseCommand(frame []byte) (Command, bool) {
	var env inboundEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, false
	}
	switch env.Command {
	case "flush":
		return FlushCommand{}, true
	case "stop":
		return StopCommand{}, true
	}
	if env.Type != "meta" {
		return nil, false
	}

	var meta MetaMessage
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &meta.Data); err != nil {
			return nil, false
		}
	}
	if len(env.Stats) > 0 {
		// stats are advisory; a malformed block does not invalidate ctxRate
		_ = json.Unmarshal(env.Stats, &meta.Stats)
	}
	if rate, ok := meta.Data["ctxRate"].(float64); ok && rate > 0 && rate == math.Trunc(rate) && rate <= math.MaxInt32 {
		meta.ClientRate = int(rate)
	}
	return meta, true
}
