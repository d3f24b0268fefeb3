package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/kikitori/internal/audio"
	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/foxseedlab/kikitori/internal/transcript"
)

const (
	triggerMaxBuffer = "max_buffer"
	triggerFlush     = "flush"
	triggerPartial   = "partial"
)

// Params fixes the audio format and recognition cadence of a session.
type Params struct {
	SampleRate          int
	SampleWidthBytes    int
	PartialInterval     time.Duration
	PartialWindow       time.Duration
	MaxBuffer           time.Duration
	PartialBeamWidth    int
	FinalBeamWidth      int
	FlushBeamWidth      int
	Language            string
	VADFilter           bool
	IngestStatsInterval time.Duration
	RecognitionTimeout  time.Duration
}

func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		SampleRate:          cfg.SampleRate,
		SampleWidthBytes:    cfg.SampleWidthBytes,
		PartialInterval:     cfg.PartialInterval,
		PartialWindow:       cfg.PartialWindow,
		MaxBuffer:           cfg.MaxBuffer,
		PartialBeamWidth:    cfg.PartialBeamWidth,
		FinalBeamWidth:      cfg.FinalBeamWidth,
		FlushBeamWidth:      cfg.FlushBeamWidth,
		Language:            cfg.TranscribeLanguage,
		VADFilter:           cfg.VADFilter,
		IngestStatsInterval: cfg.IngestStatsInterval,
		RecognitionTimeout:  cfg.RecognitionTimeout,
	}
}

// Sender delivers outbound messages. Errors are the transport's concern;
// a session never fails because its client went away.
type Sender interface {
	Send(msg Outbound) error
}

// Caption is one emitted final result.
type Caption struct {
	Seq    int64
	Text   string
	At     time.Time
	Offset time.Duration
}

type Stats struct {
	Frames        int64
	BytesReceived int64
	Recognitions  int
	Partials      int
	Finals        int
	Errors        int
}

// Summary describes a session after it closed.
type Summary struct {
	ID                 int64
	StartedAt          time.Time
	EndedAt            time.Time
	SampleRate         int
	ReportedClientRate int
	CloseReason        string
	Stats              Stats
	Captions           []Caption
}

// Session is the per-connection state machine. It is owned by a single
// goroutine and is not safe for concurrent use.
type Session struct {
	id         int64
	params     Params
	scheduler  Scheduler
	buffer     *audio.Buffer
	recognizer recognizer.Recognizer
	out        Sender
	logger     *slog.Logger
	now        func() time.Time
	onFinal    func(Caption)

	state              State
	startedAt          time.Time
	endedAt            time.Time
	reportedClientRate int
	lastPartialAt      time.Time
	lastPartialText    string
	sequence           int64

	ingestStart  time.Time
	ingestFrames int
	ingestBytes  int64

	stats    Stats
	captions []Caption
}

func NewSession(id int64, p Params, rec recognizer.Recognizer, out Sender, logger *slog.Logger, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	startedAt := now()
	return &Session{
		id:            id,
		params:        p,
		scheduler:     Scheduler{PartialInterval: p.PartialInterval, MaxBuffer: p.MaxBuffer},
		buffer:        audio.NewBuffer(p.SampleRate, p.SampleWidthBytes),
		recognizer:    rec,
		out:           out,
		logger:        logger,
		now:           now,
		state:         StateConnected,
		startedAt:     startedAt,
		lastPartialAt: startedAt,
		ingestStart:   startedAt,
	}
}

func (s *Session) ID() int64            { return s.id }
func (s *Session) State() State         { return s.state }
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Start sends the handshake and begins streaming.
func (s *Session) Start() error {
	if err := s.transition(EventHandshake); err != nil {
		return err
	}
	s.emitLog(LevelInfo, fmt.Sprintf(
		"connected: session #%d ready for PCM16LE mono @ %d Hz (partial every %s over %s window, finalize at %s)",
		s.id, s.params.SampleRate, s.params.PartialInterval, s.params.PartialWindow, s.params.MaxBuffer,
	))
	return nil
}

// HandleAudio appends a binary frame and runs at most one recognition pass.
func (s *Session) HandleAudio(ctx context.Context, chunk []byte) {
	if s.state != StateStreaming || len(chunk) == 0 {
		return
	}
	now := s.now()
	s.buffer.Append(chunk)
	s.recordIngest(now, len(chunk))

	decision := s.scheduler.Evaluate(WindowState{
		Uncommitted:      s.buffer.UncommittedDuration(),
		SinceLastPartial: now.Sub(s.lastPartialAt),
	})
	switch decision {
	case DecisionFinalize:
		s.finalize(ctx, triggerMaxBuffer, s.params.FinalBeamWidth)
	case DecisionPartial:
		s.partial(ctx, now)
	}
}

// HandleText applies a control frame and reports whether the client asked
// to stop.
func (s *Session) HandleText(ctx context.Context, frame []byte) bool {
	if s.state != StateStreaming {
		return false
	}
	cmd, ok := ParseCommand(frame)
	if !ok {
		s.logger.Debug("ignoring text frame", "bytes", len(frame))
		return false
	}
	switch c := cmd.(type) {
	case FlushCommand:
		s.finalize(ctx, triggerFlush, s.params.FlushBeamWidth)
	case StopCommand:
		s.close(ctx, CloseReasonStop, s.params.FlushBeamWidth)
		return true
	case MetaMessage:
		s.handleMeta(c)
	}
	return false
}

// Finish closes the session. Audio that was never committed gets one last
// final pass unless the client already stopped.
func (s *Session) Finish(ctx context.Context, reason string) {
	switch s.state {
	case StateStreaming:
		s.close(ctx, reason, s.params.FinalBeamWidth)
	case StateConnected:
		_ = s.transition(EventDisconnect)
	}
	s.endedAt = s.now()

	s.emitLog(LevelInfo, fmt.Sprintf(
		"disconnected: session #%d after %s (%d bytes, %d partials, %d finals, reason %s)",
		s.id, s.endedAt.Sub(s.startedAt).Round(time.Millisecond), s.stats.BytesReceived, s.stats.Partials, s.stats.Finals, reason,
	), "reason", reason, "recognitions", s.stats.Recognitions, "errors", s.stats.Errors)
}

func (s *Session) Summary(reason string) Summary {
	endedAt := s.endedAt
	if endedAt.IsZero() {
		endedAt = s.now()
	}
	captions := make([]Caption, len(s.captions))
	copy(captions, s.captions)
	return Summary{
		ID:                 s.id,
		StartedAt:          s.startedAt,
		EndedAt:            endedAt,
		SampleRate:         s.params.SampleRate,
		ReportedClientRate: s.reportedClientRate,
		CloseReason:        reason,
		Stats:              s.stats,
		Captions:           captions,
	}
}

func (s *Session) close(ctx context.Context, trigger string, beam int) {
	if err := s.transition(EventFinalize); err != nil {
		return
	}
	s.finalize(ctx, trigger, beam)
	_ = s.transition(EventFinalized)
}

func (s *Session) transition(event Event) error {
	next, err := Transition(s.state, event)
	if err != nil {
		s.logger.Error("session state transition rejected", "error", err)
		return err
	}
	s.logger.Debug("session state changed", "from", s.state, "to", next, "event", event)
	s.state = next
	return nil
}

func (s *Session) partial(ctx context.Context, now time.Time) {
	s.lastPartialAt = now
	window := s.buffer.TailWindow(s.params.PartialWindow)
	if len(window) == 0 {
		return
	}
	text, err := s.recognize(ctx, window, s.params.PartialBeamWidth)
	if err != nil {
		s.reportRecognitionError(triggerPartial, err)
		return
	}
	trimmed := transcript.TrimPartial(text)
	if trimmed == "" || trimmed == s.lastPartialText {
		return
	}
	s.lastPartialText = trimmed
	s.sequence++
	s.stats.Partials++
	s.send(PartialMessage{Text: trimmed, Seq: s.sequence})
}

// finalize recognizes the whole uncommitted region and commits it whether
// or not recognition succeeded. A commit always clears the partial baseline.
func (s *Session) finalize(ctx context.Context, trigger string, beam int) {
	region := s.buffer.Uncommitted()
	if len(region) == 0 {
		return
	}
	duration := s.buffer.UncommittedDuration()
	text, err := s.recognize(ctx, region, beam)
	if err != nil {
		s.reportRecognitionError(trigger, err)
	} else if text != "" {
		s.emitFinal(text)
	}
	s.buffer.Commit()
	s.lastPartialText = ""
	s.lastPartialAt = s.now()
	s.logger.Debug("committed audio",
		"trigger", trigger,
		"beam_width", beam,
		"committed_ms", duration.Milliseconds(),
		"committed_bytes_total", s.buffer.CommittedBytes())
}

func (s *Session) emitFinal(text string) {
	s.sequence++
	s.stats.Finals++
	at := s.now()
	c := Caption{Seq: s.sequence, Text: text, At: at, Offset: at.Sub(s.startedAt)}
	s.captions = append(s.captions, c)
	s.send(FinalMessage{Text: text, Seq: s.sequence})
	if s.onFinal != nil {
		s.onFinal(c)
	}
}

func (s *Session) recognize(ctx context.Context, pcm []byte, beam int) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.params.RecognitionTimeout)
	defer cancel()

	s.stats.Recognitions++
	started := s.now()
	text, err := s.recognizer.Recognize(ctx, recognizer.Request{
		Samples:    audio.PCM16ToFloat32(pcm),
		SampleRate: s.params.SampleRate,
		BeamWidth:  beam,
		Language:   s.params.Language,
		VADFilter:  s.params.VADFilter,
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("recognized window",
		"beam_width", beam,
		"window_bytes", len(pcm),
		"elapsed_ms", s.now().Sub(started).Milliseconds())
	return strings.TrimSpace(text), nil
}

func (s *Session) reportRecognitionError(trigger string, err error) {
	kind := recognizer.Kind(err)
	s.stats.Errors++
	s.emitLog(LevelError, fmt.Sprintf("recognition failed during %s: %v", trigger, err),
		"trigger", trigger, "kind", kind, "error", err)
	s.send(ErrorMessage{Error: err.Error(), Kind: kind})
}

func (s *Session) recordIngest(now time.Time, n int) {
	s.stats.Frames++
	s.stats.BytesReceived += int64(n)
	s.ingestFrames++
	s.ingestBytes += int64(n)

	elapsed := now.Sub(s.ingestStart)
	if elapsed < s.params.IngestStatsInterval || elapsed <= 0 {
		return
	}
	bytesPerSecond := float64(s.ingestBytes) / elapsed.Seconds()
	samplesPerSecond := bytesPerSecond / float64(s.params.SampleWidthBytes)
	s.emitLog(LevelInfo, fmt.Sprintf(
		"ingest: %d frames, %d bytes in %.1fs (%.0f B/s, ~%.0f samples/s, %.1fs uncommitted)",
		s.ingestFrames, s.ingestBytes, elapsed.Seconds(), bytesPerSecond, samplesPerSecond, s.buffer.UncommittedDuration().Seconds(),
	))
	s.ingestStart = now
	s.ingestFrames = 0
	s.ingestBytes = 0
}

func (s *Session) handleMeta(m MetaMessage) {
	if m.ClientRate <= 0 {
		s.logger.Debug("client meta without ctxRate", "stats", m.Stats)
		return
	}
	if m.ClientRate == s.reportedClientRate {
		return
	}
	s.reportedClientRate = m.ClientRate
	if m.ClientRate != s.params.SampleRate {
		s.emitLog(LevelWarn, fmt.Sprintf(
			"client audio runs at %d Hz but this session expects %d Hz; audio is not resampled, expect degraded recognition",
			m.ClientRate, s.params.SampleRate,
		), "client_rate", m.ClientRate)
		return
	}
	s.emitLog(LevelInfo, fmt.Sprintf("client audio rate %d Hz matches", m.ClientRate), "client_rate", m.ClientRate)
}

func (s *Session) emitLog(level Level, text string, attrs ...any) {
	s.logger.Log(context.Background(), level.slogLevel(), text, attrs...)
	s.send(LogMessage{Text: text, Level: level, At: s.now(), Seq: s.sequence})
}

func (s *Session) send(msg Outbound) {
	if err := s.out.Send(msg); err != nil {
		s.logger.Debug("dropping outbound message", "type", msg.outboundType(), "error", err)
	}
}
