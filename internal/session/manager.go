package session

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/kikitori/internal/config"
	"github.com/foxseedlab/kikitori/internal/recognizer"
	"github.com/foxseedlab/kikitori/internal/relay"
	"github.com/foxseedlab/kikitori/internal/repository"
	"github.com/foxseedlab/kikitori/internal/webhook"
	"github.com/google/uuid"
)

const (
	CloseReasonStop       = "stop"
	CloseReasonDisconnect = "disconnect"
	CloseReasonShutdown   = "shutdown"
	CloseReasonPanic      = "panic"
)

const (
	ledgerTimeout   = 5 * time.Second
	finalizeTimeout = 15 * time.Second
)

// Frame is one inbound transport message.
type Frame struct {
	Binary bool
	Data   []byte
}

// Conn is a client connection. Receive blocks until the next frame and
// returns an error once the connection is gone or interrupted. Interrupt
// unblocks Receive but leaves Send usable. Close must be idempotent.
type Conn interface {
	Sender
	Receive() (Frame, error)
	Interrupt() error
	Close() error
	RemoteAddr() string
}

type CaptionPublisher interface {
	Publish(c relay.Caption) bool
}

type Manager struct {
	params     Params
	recognizer recognizer.Recognizer
	repo       repository.Repository
	webhook    webhook.Sender
	captions   CaptionPublisher
	runID      string
	startedAt  time.Time
	now        func() time.Time

	nextID  atomic.Int64
	closing atomic.Bool

	mu       sync.Mutex
	sessions map[int64]Conn
	wg       sync.WaitGroup
}

func NewManager(cfg *config.Config, rec recognizer.Recognizer, repo repository.Repository, wh webhook.Sender, captions CaptionPublisher) *Manager {
	return &Manager{
		params:     ParamsFromConfig(cfg),
		recognizer: rec,
		repo:       repo,
		webhook:    wh,
		captions:   captions,
		runID:      uuid.NewString(),
		startedAt:  time.Now(),
		now:        time.Now,
		sessions:   make(map[int64]Conn),
	}
}

func (m *Manager) RunID() string { return m.runID }

func (m *Manager) Uptime() time.Duration { return m.now().Sub(m.startedAt) }

func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Serve runs one session over conn until the client stops or the
// connection ends. It returns after the final pass; ledger and webhook
// delivery continue in the background.
func (m *Manager) Serve(ctx context.Context, conn Conn) {
	id, ok := m.register(conn)
	if !ok {
		slog.Warn("refusing connection during shutdown", "remote_addr", conn.RemoteAddr())
		_ = conn.Close()
		return
	}
	defer m.wg.Done()
	defer m.unregister(id)

	logger := slog.With("session_id", id, "remote_addr", conn.RemoteAddr())
	s := NewSession(id, m.params, m.recognizer, conn, logger, m.now)
	s.onFinal = func(c Caption) { m.publishCaption(logger, id, c) }

	ledgerID := m.recordStart(ctx, logger, s, conn.RemoteAddr())
	reason := m.run(ctx, logger, s, conn)
	m.finish(ctx, logger, s, reason)
	if err := conn.Close(); err != nil {
		logger.Debug("failed to close connection", "error", err)
	}

	summary := s.Summary(reason)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.finalizeSession(logger, ledgerID, summary)
	}()
}

// CloseAll refuses new connections and interrupts every active one so each
// session runs its final pass while it can still send. Serve closes the
// connection afterwards. It reports how many sessions were interrupted.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	m.closing.Store(true)
	conns := make([]Conn, 0, len(m.sessions))
	for _, c := range m.sessions {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		if err := c.Interrupt(); err != nil {
			slog.Debug("failed to interrupt connection", "remote_addr", c.RemoteAddr(), "error", err)
		}
	}
	return len(conns)
}

// Wait blocks until every session and its background delivery finished or
// ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", ctx.Err())
	}
}

// CloseOrphanedSessions closes ledger rows left open by earlier runs.
func (m *Manager) CloseOrphanedSessions(ctx context.Context) {
	n, err := m.repo.CloseStreamingSessions(ctx, m.runID, m.now())
	if err != nil {
		slog.Error("failed to close orphaned ledger sessions", "error", err)
		return
	}
	if n > 0 {
		slog.Warn("closed orphaned ledger sessions from a previous run", "count", n)
	}
}

func (m *Manager) run(ctx context.Context, logger *slog.Logger, s *Session, conn Conn) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session worker panicked", "panic", r, "stack", string(debug.Stack()))
			reason = CloseReasonPanic
		}
	}()

	if err := s.Start(); err != nil {
		return CloseReasonDisconnect
	}
	for {
		frame, err := conn.Receive()
		if err != nil {
			logger.Debug("connection receive ended", "error", err)
			if m.closing.Load() {
				return CloseReasonShutdown
			}
			return CloseReasonDisconnect
		}
		if frame.Binary {
			s.HandleAudio(ctx, frame.Data)
			continue
		}
		if s.HandleText(ctx, frame.Data) {
			return CloseReasonStop
		}
	}
}

func (m *Manager) finish(ctx context.Context, logger *slog.Logger, s *Session, reason string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("session final pass panicked", "panic", r)
		}
	}()
	s.Finish(ctx, reason)
}

// register adds conn under a new session id. Once CloseAll ran it refuses,
// so wg never grows while Wait may be draining it.
func (m *Manager) register(conn Conn) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing.Load() {
		return 0, false
	}
	m.wg.Add(1)
	id := m.nextID.Add(1)
	m.sessions[id] = conn
	return id, true
}

func (m *Manager) unregister(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) publishCaption(logger *slog.Logger, id int64, c Caption) {
	if m.captions == nil {
		return
	}
	if !m.captions.Publish(relay.Caption{SessionID: id, Seq: c.Seq, Text: c.Text, At: c.At}) {
		logger.Warn("caption relay queue full; dropping caption", "seq", c.Seq)
	}
}

func (m *Manager) recordStart(ctx context.Context, logger *slog.Logger, s *Session, remoteAddr string) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	rec, err := m.repo.CreateSession(ctx, repository.CreateSessionInput{
		RunID:         m.runID,
		SessionNumber: s.ID(),
		RemoteAddr:    remoteAddr,
		SampleRate:    m.params.SampleRate,
		StartedAt:     s.StartedAt(),
	})
	if err != nil {
		logger.Error("failed to record session start", "error", err)
		return ""
	}
	if rec == nil {
		return ""
	}
	return rec.ID
}

func (m *Manager) finalizeSession(logger *slog.Logger, ledgerID string, summary Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if ledgerID != "" {
		if err := m.repo.UpdateSessionCompleted(ctx, repository.CompleteSessionInput{
			SessionID:          ledgerID,
			EndedAt:            summary.EndedAt,
			ReportedClientRate: summary.ReportedClientRate,
			BytesReceived:      summary.Stats.BytesReceived,
			PartialCount:       summary.Stats.Partials,
			FinalCount:         summary.Stats.Finals,
			ErrorCount:         summary.Stats.Errors,
			CloseReason:        summary.CloseReason,
		}); err != nil {
			logger.Error("failed to complete ledger session", "error", err, "ledger_id", ledgerID)
		}
	}
	if err := m.webhook.SendSessionSummary(ctx, buildSessionWebhookPayload(m.runID, summary)); err != nil {
		logger.Error("failed to send session summary webhook", "error", err)
	}
}
