package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/internal/resilience"
	"github.com/voxwire/voxwire/pkg/events"
)

const (
	// DefaultModel is the generative model used for new sessions.
	DefaultModel = "gemini-2.0-flash-exp"

	// DefaultBaseURL is the production endpoint prefix.
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/v1alpha"

	// DefaultConnectTimeout bounds one dial plus setup handshake.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHeartbeatInterval is the liveness ping cadence while Connected.
	DefaultHeartbeatInterval = 30 * time.Second

	pingTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

// defaultReconnectPolicy matches the reconnection schedule: 1s doubling to a
// 30s cap, five attempts, no jitter.
var defaultReconnectPolicy = resilience.Policy{
	Initial:     1 * time.Second,
	Max:         30 * time.Second,
	MaxAttempts: 5,
}

// Manager owns exactly one duplex connection at a time and drives the
// connection automaton. Unexpected closes are retried with exponential
// backoff and surfaced as events; a non-recoverable failure or an exhausted
// reconnect budget parks the manager in [StatusError] until the next explicit
// Connect.
//
// Construct with [NewManager]; a manager instance must not be shared between
// independent sessions. All methods are safe for concurrent use.
type Manager struct {
	apiKey         string
	model          string
	baseURL        string
	transport      Transport
	connectTimeout time.Duration
	heartbeat      time.Duration
	retry          *resilience.Retrier
	obs            *observe.Metrics

	statusEvents  *events.Dispatcher[Status]
	errorEvents   *events.Dispatcher[*ConnectionError]
	messageEvents *events.Dispatcher[Message]

	mu         sync.Mutex
	status     Status
	cfg        Config
	conn       Conn
	queue      sendQueue
	window     *slidingWindow
	runCtx     context.Context
	runCancel  context.CancelFunc
	gen        int
	flushing   bool
	flushAgain bool
}

// Option is a functional option for configuring a [Manager].
type Option func(*Manager)

// WithModel sets the generative model used for sessions.
func WithModel(model string) Option {
	return func(m *Manager) { m.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(m *Manager) { m.baseURL = url }
}

// WithTransport replaces the WebSocket transport. Tests inject a scripted
// mock here.
func WithTransport(t Transport) Option {
	return func(m *Manager) { m.transport = t }
}

// WithConnectTimeout overrides the per-dial timeout (default 10s).
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

// WithHeartbeatInterval overrides the liveness ping cadence (default 30s).
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.heartbeat = d
		}
	}
}

// WithReconnectPolicy overrides the reconnection backoff schedule. Primarily
// used in tests to avoid multi-second waits.
func WithReconnectPolicy(policy resilience.Policy) Option {
	return func(m *Manager) { m.retry = resilience.NewRetrier(policy) }
}

// WithRateLimit overrides the outbound sliding-window cap (default 100 sends
// per trailing 60s).
func WithRateLimit(limit int, window time.Duration) Option {
	return func(m *Manager) { m.window = newSlidingWindow(limit, window) }
}

// WithObserver wires OTel instruments into the manager. A nil Metrics is
// valid and records nothing.
func WithObserver(obs *observe.Metrics) Option {
	return func(m *Manager) { m.obs = obs }
}

// NewManager creates a disconnected manager that authenticates with apiKey.
func NewManager(apiKey string, opts ...Option) *Manager {
	m := &Manager{
		apiKey:         apiKey,
		model:          DefaultModel,
		baseURL:        DefaultBaseURL,
		transport:      WebSocketTransport{},
		connectTimeout: DefaultConnectTimeout,
		heartbeat:      DefaultHeartbeatInterval,
		retry:          resilience.NewRetrier(defaultReconnectPolicy),
		window:         newSlidingWindow(DefaultRateLimit, DefaultRateWindow),
		statusEvents:   events.NewDispatcher[Status]("session.statusChange"),
		errorEvents:    events.NewDispatcher[*ConnectionError]("session.error"),
		messageEvents:  events.NewDispatcher[Message]("session.message"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// StatusEvents returns the dispatcher for connection status transitions.
func (m *Manager) StatusEvents() *events.Dispatcher[Status] { return m.statusEvents }

// ErrorEvents returns the dispatcher for session errors.
func (m *Manager) ErrorEvents() *events.Dispatcher[*ConnectionError] { return m.errorEvents }

// MessageEvents returns the dispatcher for inbound model turns.
func (m *Manager) MessageEvents() *events.Dispatcher[Message] { return m.messageEvents }

// Status returns the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Config returns the configuration of the current (or last) session.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// QueueLen returns the number of frames awaiting delivery.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.len()
}

// Connect opens the session: dial, setup handshake, then flush any frames
// queued while disconnected. A no-op when a connection attempt is already in
// flight or established. Recoverable dial failures are retried with backoff;
// an exhausted budget transitions the manager to [StatusError] and returns
// the error. The ctx governs the whole connect sequence including backoff
// waits; [Manager.Cleanup] also aborts it.
func (m *Manager) Connect(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	switch m.status {
	case StatusConnected, StatusConnecting, StatusReconnecting:
		m.mu.Unlock()
		return nil
	}
	cfg.Generation = cfg.Generation.merged()
	m.cfg = cfg
	m.retry.Reset()
	if m.runCancel != nil {
		// Stale run left behind by a terminal error state.
		m.runCancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.runCtx, m.runCancel = runCtx, cancel
	m.status = StatusConnecting
	m.mu.Unlock()
	m.statusEvents.Emit(StatusConnecting)

	// Tie the connect sequence to both the caller's ctx and the run
	// lifetime, so Cleanup aborts an in-flight backoff wait.
	actx, acancel := context.WithCancel(ctx)
	defer acancel()
	stop := context.AfterFunc(runCtx, acancel)
	defer stop()

	err := m.dialOnce(actx, cfg)
	if err == nil {
		return nil
	}
	if actx.Err() != nil {
		return actx.Err()
	}

	cerr := classifyConn(err)
	m.errorEvents.Emit(cerr)
	return m.reconnectAfter(actx, cerr)
}

// dialOnce performs one dial plus setup handshake within the connect timeout
// and, on success, installs the connection and starts the receive and
// heartbeat loops.
func (m *Manager) dialOnce(ctx context.Context, cfg Config) error {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s", m.baseURL, m.model, m.apiKey)

	ctx, span := observe.StartSpan(ctx, "session.dial")
	defer span.End()

	dctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	conn, err := m.transport.Dial(dctx, url)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: connect: %w", err)
	}

	setup, err := newSetupFrame(m.model, cfg.Generation, cfg.SystemInstruction)
	if err != nil {
		_ = conn.Close(CloseNormal, "setup failed")
		return fmt.Errorf("session: setup: %w", err)
	}
	if err := conn.Write(dctx, setup); err != nil {
		_ = conn.Close(CloseNormal, "setup failed")
		return fmt.Errorf("session: setup: %w", err)
	}

	// Install the connection. If Cleanup ran while dialing, close it instead.
	m.mu.Lock()
	if m.runCtx == nil || m.runCtx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close(CloseNormal, "session closed")
		return context.Canceled
	}
	m.conn = conn
	m.gen++
	gen := m.gen
	runCtx := m.runCtx
	m.mu.Unlock()

	m.retry.Reset()
	m.setStatus(StatusConnected)
	go m.receiveLoop(runCtx, conn, gen)
	go m.heartbeatLoop(runCtx, conn, gen)
	m.flush()
	return nil
}

// reconnectAfter drives the reconnection automaton: back off, redial. It
// returns nil once connected again, the triggering error when the budget is
// exhausted or the failure is fatal, and the context error when cancelled.
func (m *Manager) reconnectAfter(ctx context.Context, trigger *ConnectionError) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !trigger.Recoverable {
			m.setStatus(StatusError)
			return trigger
		}

		m.setStatus(StatusReconnecting)

		if werr := m.retry.Wait(ctx); werr != nil {
			if errors.Is(werr, resilience.ErrBudgetExhausted) {
				slog.Error("session reconnection gave up",
					"attempts", m.retry.Attempt(),
					"err", trigger,
				)
				m.setStatus(StatusError)
				return trigger
			}
			return werr
		}

		slog.Info("retrying session connect", "attempt", m.retry.Attempt())
		m.mu.Lock()
		cfg := m.cfg
		m.mu.Unlock()
		err := m.dialOnce(ctx, cfg)
		if err == nil {
			m.obs.RecordReconnect(ctx)
			slog.Info("reconnection successful", "attempt", m.retry.Attempt())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		trigger = classifyConn(err)
		m.errorEvents.Emit(trigger)
	}
}

// SendAudio frames one raw PCM chunk as realtime input and queues it for
// delivery, subject to the rate limit.
func (m *Manager) SendAudio(chunk []byte) error {
	frame, err := newAudioFrame(chunk)
	if err != nil {
		return fmt.Errorf("session: frame audio: %w", err)
	}
	return m.SendMessage(frame)
}

// SendText frames one text turn as client content and queues it for
// delivery, subject to the rate limit. An empty role defaults to "user".
func (m *Manager) SendText(role, text string) error {
	frame, err := newTextFrame(role, text)
	if err != nil {
		return fmt.Errorf("session: frame text: %w", err)
	}
	return m.SendMessage(frame)
}

// SendMessage queues an already-framed payload and attempts an immediate
// flush. It fails with a non-recoverable rate-limit error when the sliding
// window is at its cap. Frames queued while disconnected are delivered by the
// flush that follows the next successful connect.
func (m *Manager) SendMessage(payload []byte) error {
	m.mu.Lock()
	if !m.window.allow() {
		m.mu.Unlock()
		m.obs.RecordRateLimited(context.Background())
		return NewConnectionError("rate limit exceeded", false, nil)
	}
	m.queue.push(payload)
	m.mu.Unlock()
	m.obs.AddQueueDepth(context.Background(), 1)

	m.flush()
	return nil
}

// flush delivers queued frames in order while the session is Connected and
// under the rate cap. Exactly one flusher runs at a time: a concurrent caller
// marks a rerun and returns immediately, so frames cannot interleave on the
// wire and the window's allow-then-record stays atomic across flushes. A send
// failure returns the frame to the head of the queue and stops, surfacing a
// recoverable send error event.
func (m *Manager) flush() {
	m.mu.Lock()
	if m.flushing {
		m.flushAgain = true
		m.mu.Unlock()
		return
	}
	m.flushing = true
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if m.status != StatusConnected || m.conn == nil || m.runCtx == nil ||
			m.queue.len() == 0 || !m.window.allow() {
			if m.flushAgain {
				// A frame may have been queued after the last pop.
				m.flushAgain = false
				m.mu.Unlock()
				continue
			}
			m.flushing = false
			m.mu.Unlock()
			return
		}
		msg, _ := m.queue.pop()
		conn := m.conn
		ctx := m.runCtx
		m.mu.Unlock()

		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Write(wctx, msg.Payload)
		cancel()
		if err != nil {
			m.mu.Lock()
			m.queue.pushFront(msg)
			m.flushing = false
			m.flushAgain = false
			m.mu.Unlock()
			cerr := NewConnectionError("send failed", true, err)
			slog.Warn("outbound send failed", "err", err)
			m.errorEvents.Emit(cerr)
			m.obs.RecordSendError(ctx)
			return
		}

		m.mu.Lock()
		m.window.record()
		m.mu.Unlock()
		m.obs.RecordMessageSent(ctx)
		m.obs.AddQueueDepth(ctx, -1)
	}
}

// receiveLoop reads frames until the connection drops or the run is
// cancelled. An unexpected close hands off to reconnection.
func (m *Manager) receiveLoop(ctx context.Context, conn Conn, gen int) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleDisconnect(ctx, conn, gen, err)
			return
		}
		m.handleFrame(ctx, data)
	}
}

// handleFrame parses one inbound frame and emits the matching events. An
// unparsable frame becomes a non-recoverable parse error event; the receive
// path keeps running either way.
func (m *Manager) handleFrame(ctx context.Context, data []byte) {
	frame, err := parseServerFrame(data)
	if err != nil {
		slog.Warn("dropping unparsable frame", "err", err)
		m.errorEvents.Emit(NewConnectionError("unparsable frame", false, err))
		m.obs.RecordMessageReceived(ctx, "unknown")
		return
	}

	if frame.Error != nil {
		m.errorEvents.Emit(remoteError(frame.Error.Message, frame.Error.Code))
		m.obs.RecordMessageReceived(ctx, "error")
	}
	if sc := frame.ServerContent; sc != nil {
		msg := Message{Interrupted: sc.Interrupted}
		if sc.ModelTurn != nil {
			msg.Text = sc.ModelTurn.text()
		}
		if sc.ModelTurn != nil || sc.Interrupted {
			m.messageEvents.Emit(msg)
		}
		m.obs.RecordMessageReceived(ctx, "content")
	}
}

// handleDisconnect reacts to the receive loop losing the connection. A
// normal-closure close (or a concurrent Cleanup) leaves the manager
// Disconnected; anything else drives background reconnection.
func (m *Manager) handleDisconnect(ctx context.Context, conn Conn, gen int, cause error) {
	m.mu.Lock()
	if m.gen != gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	var ce *CloseError
	if errors.As(cause, &ce) && ce.Code == CloseNormal {
		m.setStatus(StatusDisconnected)
		return
	}

	cerr := classifyConn(cause)
	slog.Warn("session connection lost", "err", cause)
	m.errorEvents.Emit(cerr)

	// Background reconnection: failures here surface as events only — there
	// is no caller to re-raise to.
	if err := m.reconnectAfter(ctx, cerr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session reconnection failed", "err", err)
	}
}

// heartbeatLoop pings the connection at the heartbeat cadence while it is
// current. Ping failures are surfaced as recoverable send errors; the actual
// disconnect, if any, is detected by the receive loop.
func (m *Manager) heartbeatLoop(ctx context.Context, conn Conn, gen int) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			stale := m.gen != gen || m.conn != conn
			m.mu.Unlock()
			if stale {
				return
			}

			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				slog.Warn("heartbeat failed", "err", err)
				m.errorEvents.Emit(NewConnectionError("heartbeat failed", true, err))
				m.obs.RecordSendError(ctx)
			}
		}
	}
}

// Cleanup closes the connection with normal closure, detaches all
// subscribers, clears the queue and rate-limit bookkeeping and returns the
// manager to [StatusDisconnected]. Idempotent and safe to call from any
// state, including while a connect or reconnection sequence is in flight —
// the sequence observes the cancellation at its next suspension point.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if m.runCancel != nil {
		m.runCancel()
		m.runCancel = nil
		m.runCtx = nil
	}
	conn := m.conn
	m.conn = nil
	m.gen++
	m.status = StatusDisconnected
	dropped := m.queue.len()
	m.queue.clear()
	m.window.reset()
	m.mu.Unlock()

	m.statusEvents.Reset()
	m.errorEvents.Reset()
	m.messageEvents.Reset()

	if conn != nil {
		_ = conn.Close(CloseNormal, "session closed")
	}
	if dropped > 0 {
		m.obs.AddQueueDepth(context.Background(), -int64(dropped))
	}
	m.retry.Reset()
}

// setStatus records a transition and emits the statusChange event. The write
// is skipped when the owning run has been cleaned up, so a pending connect or
// reconnect continuation cannot clobber the state Cleanup installed. No-op if
// the status is unchanged.
func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.runCtx == nil || m.runCtx.Err() != nil || m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	m.mu.Unlock()
	m.statusEvents.Emit(s)
}

// classifyConn maps an arbitrary error to a [*ConnectionError]. Errors that
// are already classified pass through; everything else counts as a
// recoverable transport failure.
func classifyConn(err error) *ConnectionError {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr
	}
	return NewConnectionError("connection failed", true, err)
}
