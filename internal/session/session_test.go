package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const bytesPerSecond = 16000 * 2

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Outbound
}

func (s *recordingSender) Send(msg Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) messages() []Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outbound(nil), s.sent...)
}

func (s *recordingSender) partials() []PartialMessage {
	var out []PartialMessage
	for _, m := range s.messages() {
		if p, ok := m.(PartialMessage); ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *recordingSender) finals() []FinalMessage {
	var out []FinalMessage
	for _, m := range s.messages() {
		if f, ok := m.(FinalMessage); ok {
			out = append(out, f)
		}
	}
	return out
}

func (s *recordingSender) errorMessages() []ErrorMessage {
	var out []ErrorMessage
	for _, m := range s.messages() {
		if e, ok := m.(ErrorMessage); ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *recordingSender) logs() []LogMessage {
	var out []LogMessage
	for _, m := range s.messages() {
		if l, ok := m.(LogMessage); ok {
			out = append(out, l)
		}
	}
	return out
}

type scriptedRecognizer struct {
	mu      sync.Mutex
	beams   []int
	respond func(call int, req recognizer.Request) (string, error)
}

func (r *scriptedRecognizer) Recognize(ctx context.Context, req recognizer.Request) (string, error) {
	r.mu.Lock()
	r.beams = append(r.beams, req.BeamWidth)
	call := len(r.beams)
	r.mu.Unlock()
	if r.respond == nil {
		return "", nil
	}
	return r.respond(call, req)
}

func (r *scriptedRecognizer) calls() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.beams...)
}

func replyWith(text string) func(int, recognizer.Request) (string, error) {
	return func(int, recognizer.Request) (string, error) { return text, nil }
}

func testParams() Params {
	return Params{
		SampleRate:          16000,
		SampleWidthBytes:    2,
		PartialInterval:     3 * time.Second,
		PartialWindow:       6 * time.Second,
		MaxBuffer:           12 * time.Second,
		PartialBeamWidth:    2,
		FinalBeamWidth:      3,
		FlushBeamWidth:      4,
		Language:            "en",
		VADFilter:           true,
		IngestStatsInterval: 5 * time.Second,
		RecognitionTimeout:  time.Minute,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, rec recognizer.Recognizer) (*Session, *recordingSender, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	out := &recordingSender{}
	s := NewSession(1, testParams(), rec, out, discardLogger(), clock.Now)
	require.NoError(t, s.Start())
	return s, out, clock
}

// feedSeconds sends one second of silence per simulated second.
func feedSeconds(s *Session, clock *fakeClock, n int) {
	for i := 0; i < n; i++ {
		clock.Advance(time.Second)
		s.HandleAudio(context.Background(), make([]byte, bytesPerSecond))
	}
}

func TestStartSendsHandshake(t *testing.T) {
	s, out, _ := newTestSession(t, &scriptedRecognizer{})

	require.Equal(t, StateStreaming, s.State())
	logs := out.logs()
	require.Len(t, logs, 1)
	require.Equal(t, LevelInfo, logs[0].Level)
	require.Zero(t, logs[0].Seq)
	require.Contains(t, logs[0].Text, "16000 Hz")
	require.ErrorContains(t, s.Start(), "invalid transition")
}

func TestThreeSecondsOfSilenceRunsOnePartialPass(t *testing.T) {
	rec := &scriptedRecognizer{}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 3)

	require.Equal(t, []int{2}, rec.calls())
	require.Empty(t, out.partials())
	require.Empty(t, out.finals())
	require.Equal(t, StateStreaming, s.State())
}

func TestForcedFinalizeAtMaxBuffer(t *testing.T) {
	rec := &scriptedRecognizer{respond: replyWith("hello world.")}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 11)
	require.Equal(t, []int{2, 2, 2}, rec.calls())
	require.Empty(t, out.finals())

	feedSeconds(s, clock, 1)
	require.Equal(t, []int{2, 2, 2, 3}, rec.calls())
	require.Empty(t, s.buffer.Uncommitted())
	require.Equal(t, s.buffer.Len(), s.buffer.ProcessedOffset())

	feedSeconds(s, clock, 1)
	require.Len(t, rec.calls(), 4)
	require.Equal(t, bytesPerSecond, s.buffer.Len())

	finals := out.finals()
	require.Len(t, finals, 1)
	require.Equal(t, "hello world.", finals[0].Text)

	partials := out.partials()
	require.Len(t, partials, 1)
	require.Less(t, partials[0].Seq, finals[0].Seq)
}

func TestStopFinalizesOnceAtFlushBeam(t *testing.T) {
	rec := &scriptedRecognizer{respond: replyWith("see you.")}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 2)
	require.True(t, s.HandleText(context.Background(), []byte(`{"command":"stop"}`)))

	require.Equal(t, []int{4}, rec.calls())
	require.Equal(t, StateClosed, s.State())
	finals := out.finals()
	require.Len(t, finals, 1)
	require.Equal(t, FinalMessage{Text: "see you.", Seq: 1}, finals[0])

	before := len(out.messages())
	feedSeconds(s, clock, 4)
	require.False(t, s.HandleText(context.Background(), []byte(`{"command":"flush"}`)))
	require.Len(t, out.messages(), before)

	s.Finish(context.Background(), CloseReasonStop)
	require.Equal(t, []int{4}, rec.calls())
	logs := out.logs()
	require.Contains(t, logs[len(logs)-1].Text, "disconnected")
}

func TestFlushWithEmptyBufferIsNoop(t *testing.T) {
	rec := &scriptedRecognizer{respond: replyWith("never")}
	s, out, _ := newTestSession(t, rec)

	require.False(t, s.HandleText(context.Background(), []byte(`{"command":"flush"}`)))
	require.Empty(t, rec.calls())
	require.Len(t, out.messages(), 1)
	require.Equal(t, StateStreaming, s.State())
}

func TestFlushCommitsAndKeepsStreaming(t *testing.T) {
	rec := &scriptedRecognizer{respond: replyWith("  flushed text  ")}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 2)
	require.False(t, s.HandleText(context.Background(), []byte(`{"command":"flush"}`)))

	require.Equal(t, []int{4}, rec.calls())
	require.Equal(t, []FinalMessage{{Text: "flushed text", Seq: 1}}, out.finals())
	require.Empty(t, s.buffer.Uncommitted())
	require.Equal(t, StateStreaming, s.State())
}

func TestFlushResetsPartialBaselineWithoutFinal(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(_ int, req recognizer.Request) (string, error) {
		if req.BeamWidth == 4 {
			return "", nil
		}
		return "Same words.", nil
	}}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 3)
	require.False(t, s.HandleText(context.Background(), []byte(`{"command":"flush"}`)))
	require.Empty(t, out.finals())
	feedSeconds(s, clock, 3)

	require.Equal(t, []int{2, 4, 2}, rec.calls())
	require.Equal(t, []PartialMessage{
		{Text: "Same words.", Seq: 1},
		{Text: "Same words.", Seq: 2},
	}, out.partials())
}

func TestFlushErrorResetsPartialBaseline(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(_ int, req recognizer.Request) (string, error) {
		if req.BeamWidth == 4 {
			return "", errors.New("engine unavailable")
		}
		return "Same words.", nil
	}}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 3)
	require.False(t, s.HandleText(context.Background(), []byte(`{"command":"flush"}`)))
	feedSeconds(s, clock, 3)

	require.Equal(t, []int{2, 4, 2}, rec.calls())
	require.Len(t, out.errorMessages(), 1)
	require.Len(t, out.partials(), 2)
}

func TestPartialsAreTrimmedAndDeduplicated(t *testing.T) {
	replies := []string{"Hello there. How are", "Hello there. How are you", "How are you? Fine"}
	rec := &scriptedRecognizer{respond: func(call int, _ recognizer.Request) (string, error) {
		return replies[call-1], nil
	}}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 9)

	require.Equal(t, []int{2, 2, 2}, rec.calls())
	require.Equal(t, []PartialMessage{
		{Text: "Hello there.", Seq: 1},
		{Text: "How are you?", Seq: 2},
	}, out.partials())
}

func TestPartialWindowIsBoundedByTail(t *testing.T) {
	var sizes []int
	rec := &scriptedRecognizer{respond: func(_ int, req recognizer.Request) (string, error) {
		sizes = append(sizes, len(req.Samples))
		return "", nil
	}}
	s, _, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 9)

	require.Equal(t, []int{3 * 16000, 6 * 16000, 6 * 16000}, sizes)
}

func TestSequenceStrictlyIncreases(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(call int, _ recognizer.Request) (string, error) {
		return fmt.Sprintf("phrase %d.", call), nil
	}}
	s, out, clock := newTestSession(t, rec)

	for round := 0; round < 3; round++ {
		feedSeconds(s, clock, 14)
		s.HandleText(context.Background(), []byte(`{"command":"flush"}`))
	}

	var last int64
	var counted int
	for _, msg := range out.messages() {
		switch m := msg.(type) {
		case PartialMessage:
			require.Greater(t, m.Seq, last)
			last = m.Seq
			counted++
		case FinalMessage:
			require.Greater(t, m.Seq, last)
			last = m.Seq
			counted++
		case LogMessage:
			require.Equal(t, last, m.Seq)
		}
	}
	require.Greater(t, counted, 6)
}

func TestPartialErrorIsReportedWithoutCommit(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(int, recognizer.Request) (string, error) {
		return "", status.Error(codes.Unavailable, "engine down")
	}}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 3)

	errs := out.errorMessages()
	require.Len(t, errs, 1)
	require.Equal(t, "Unavailable", errs[0].Kind)
	require.Len(t, s.buffer.Uncommitted(), 3*bytesPerSecond)
	require.Equal(t, StateStreaming, s.State())
	require.Equal(t, LevelError, out.logs()[len(out.logs())-1].Level)
}

func TestFinalErrorStillCommits(t *testing.T) {
	rec := &scriptedRecognizer{respond: func(int, recognizer.Request) (string, error) {
		return "", fmt.Errorf("engine: %w", context.DeadlineExceeded)
	}}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 2)
	s.HandleText(context.Background(), []byte(`{"command":"flush"}`))

	errs := out.errorMessages()
	require.Len(t, errs, 1)
	require.Equal(t, recognizer.KindTimeout, errs[0].Kind)
	require.Empty(t, s.buffer.Uncommitted())
	require.Empty(t, out.finals())
}

func TestRecognitionSurvivesConnectionCancel(t *testing.T) {
	var gotErr error
	var hasDeadline bool
	rec := &scriptedRecognizer{respond: func(int, recognizer.Request) (string, error) {
		return "done.", nil
	}}
	s, out, clock := newTestSession(t, recognizer.Func(func(ctx context.Context, req recognizer.Request) (string, error) {
		gotErr = ctx.Err()
		_, hasDeadline = ctx.Deadline()
		return rec.Recognize(ctx, req)
	}))

	feedSeconds(s, clock, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.HandleText(ctx, []byte(`{"command":"flush"}`))

	require.NoError(t, gotErr)
	require.True(t, hasDeadline)
	require.Len(t, out.finals(), 1)
}

func TestMetaRateMismatchWarnsOnce(t *testing.T) {
	s, out, _ := newTestSession(t, &scriptedRecognizer{})

	s.HandleText(context.Background(), []byte(`{"type":"meta","data":{"ctxRate":48000}}`))
	s.HandleText(context.Background(), []byte(`{"type":"meta","data":{"ctxRate":48000},"stats":{"sent":10}}`))
	s.HandleText(context.Background(), []byte(`{"type":"meta","data":{"ctxRate":16000}}`))
	s.HandleText(context.Background(), []byte(`not json`))
	s.HandleText(context.Background(), []byte(`{"type":"meta","data":"broken"}`))

	logs := out.logs()
	require.Len(t, logs, 3)
	require.Equal(t, LevelWarn, logs[1].Level)
	require.Contains(t, logs[1].Text, "48000 Hz")
	require.Equal(t, LevelInfo, logs[2].Level)
	require.Equal(t, 16000, s.Summary("").ReportedClientRate)
}

func TestIngestStatsAreLoggedPeriodically(t *testing.T) {
	s, out, clock := newTestSession(t, &scriptedRecognizer{})

	feedSeconds(s, clock, 4)
	require.Len(t, out.logs(), 1)
	feedSeconds(s, clock, 1)
	logs := out.logs()
	require.Len(t, logs, 2)
	require.Contains(t, logs[1].Text, "ingest: 5 frames")
}

func TestDisconnectRunsFinalPass(t *testing.T) {
	rec := &scriptedRecognizer{respond: replyWith("last words.")}
	s, out, clock := newTestSession(t, rec)

	feedSeconds(s, clock, 2)
	s.Finish(context.Background(), CloseReasonDisconnect)

	require.Equal(t, []int{3}, rec.calls())
	require.Equal(t, StateClosed, s.State())
	require.Len(t, out.finals(), 1)

	summary := s.Summary(CloseReasonDisconnect)
	require.Equal(t, 1, summary.Stats.Finals)
	require.Equal(t, int64(2*bytesPerSecond), summary.Stats.BytesReceived)
	require.Len(t, summary.Captions, 1)
	require.Equal(t, 2*time.Second, summary.Captions[0].Offset)
}

func TestFinalCallbackReceivesCaptions(t *testing.T) {
	rec := &scriptedRecognizer{respond: replyWith("relayed.")}
	s, _, clock := newTestSession(t, rec)
	var got []Caption
	s.onFinal = func(c Caption) { got = append(got, c) }

	feedSeconds(s, clock, 1)
	s.HandleText(context.Background(), []byte(`{"command":"flush"}`))

	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].Seq)
	require.Equal(t, "relayed.", got[0].Text)
}

func TestProcessedOffsetInvariantUnderRandomTraffic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	rec := &scriptedRecognizer{respond: func(call int, _ recognizer.Request) (string, error) {
		if call%5 == 0 {
			return "", errors.New("flaky")
		}
		return fmt.Sprintf("text %d", call), nil
	}}
	s, _, clock := newTestSession(t, rec)

	for i := 0; i < 500; i++ {
		clock.Advance(time.Duration(rng.IntN(800)) * time.Millisecond)
		if rng.IntN(20) == 0 {
			s.HandleText(context.Background(), []byte(`{"command":"flush"}`))
		} else {
			s.HandleAudio(context.Background(), make([]byte, rng.IntN(20000)+1))
		}
		require.GreaterOrEqual(t, s.buffer.ProcessedOffset(), 0)
		require.LessOrEqual(t, s.buffer.ProcessedOffset(), s.buffer.Len())
		require.Zero(t, s.buffer.Len()%2)
		require.Less(t, s.buffer.UncommittedDuration(), 12*time.Second)
	}
}
