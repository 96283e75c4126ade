package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/wslink/internal/lifecycle"
)

// eventKind identifies an entry on the manager's event queue.
type eventKind uint8

const (
	evStart eventKind = iota
	evStop
	evReconnect
	evVisibility
	evShutdown
	evDispose
	evSend
	evDialed
	evMessage
	evChannelClosed
	evHeartbeat
	evProbeTimeout
	evRetry
)

// event is the single input type of the event loop. Commands carry a
// reply channel; channel and timer events carry the generation or timer
// id they belong to.
type event struct {
	kind    eventKind
	gen     uint64
	ch      Channel
	err     error
	msg     TimestampedMessage
	data    []byte
	visible bool
	reply   chan error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEnvironment registers the manager for visibility and shutdown
// signals for its whole lifetime. Close unregisters it.
func WithEnvironment(env lifecycle.Environment) Option {
	return func(m *Manager) {
		m.env = env
	}
}

// Manager keeps one logical channel to Config.Endpoint alive.
//
// All methods are safe for concurrent use, including from Subscription
// callbacks.
type Manager struct {
	cfg    Config
	policy Policy
	dialer Dialer
	sub    Subscription
	logger *slog.Logger
	env    lifecycle.Environment

	unregister func()

	events       *queue[event]
	callbacks    *queue[func()]
	loopDone     chan struct{}
	dispatchDone chan struct{}
	closeOnce    sync.Once

	// Owned by the event loop goroutine.
	state      State
	attempt    uint32 // backoff exponent
	failed     uint32 // failed dials since the last Open, Start or Reconnect
	nextDelay  time.Duration
	manual     bool
	hidden     bool
	suspended  bool
	disposed   bool
	gen        uint64
	ch         Channel
	dialCancel context.CancelFunc
	session    uuid.UUID
	heartbeat  *heartbeat
	retry      *timerHandle
	probe      *timerHandle
	rng        *rand.Rand
	counters   Stats

	// Snapshot published after every event.
	mu    sync.RWMutex
	stats Stats
}

// NewManager creates an idle Manager. Zero durations in cfg take their
// defaults; an invalid cfg is the only error.
func NewManager(cfg Config, dialer Dialer, sub Subscription, opts ...Option) (*Manager, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrInvalidConfig)
	}

	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		sub:    sub,
		policy: Policy{
			Base:        cfg.BackoffBase,
			Max:         cfg.BackoffMax,
			CapExponent: cfg.BackoffCapExponent,
		},
		events:       newQueue[event](64),
		callbacks:    newQueue[func()](64),
		loopDone:     make(chan struct{}),
		dispatchDone: make(chan struct{}),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("endpoint", cfg.Endpoint)

	m.heartbeat = newHeartbeat(cfg.HeartbeatInterval, func(id uint64) {
		m.events.Send(event{kind: evHeartbeat, gen: id})
	})
	m.retry = newTimerHandle(func(id uint64) {
		m.events.Send(event{kind: evRetry, gen: id})
	})
	m.probe = newTimerHandle(func(id uint64) {
		m.events.Send(event{kind: evProbeTimeout, gen: id})
	})

	if m.env != nil {
		m.hidden = !m.env.Visible()
	}
	m.publish()

	go m.run()
	go m.dispatch()

	if m.env != nil {
		m.unregister = m.env.Register(coordinator{m: m})
	}

	return m, nil
}

// Start begins connecting. It is a no-op while a channel is live, being
// dialed, or a retry is pending.
func (m *Manager) Start() {
	m.command(context.Background(), event{kind: evStart})
}

// Stop closes any live channel, cancels all timers and suppresses
// automatic reconnection until the next Start. It returns after the
// channel is closed. Idempotent.
func (m *Manager) Stop() {
	m.command(context.Background(), event{kind: evStop})
}

// Reconnect drops any live channel and dials immediately with the attempt
// counter reset, skipping any pending backoff wait.
func (m *Manager) Reconnect() {
	m.command(context.Background(), event{kind: evReconnect})
}

// Send writes data to the open channel.
func (m *Manager) Send(data []byte) error {
	return m.command(context.Background(), event{kind: evSend, data: data})
}

// Close stops the manager, unregisters it from its environment and ends
// its goroutines. Pending callbacks still run. The Manager cannot be
// reused afterwards.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.unregister != nil {
			m.unregister()
		}
		m.command(context.Background(), event{kind: evDispose})
		m.events.Close()
		<-m.loopDone
		m.callbacks.Close()
	})
	return nil
}

// Done is closed once Close has returned and every pending callback has
// run. Callers that consume events (journals, routers) wait on it before
// shutting down themselves.
func (m *Manager) Done() <-chan struct{} {
	return m.dispatchDone
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats.State
}

// Stats returns a snapshot of the manager.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// command posts ev and waits until the loop has applied it.
func (m *Manager) command(ctx context.Context, ev event) error {
	ev.reply = make(chan error, 1)
	if !m.events.Send(ev) {
		return ErrManagerClosed
	}

	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the event loop. It is the only goroutine that touches loop-owned fields.
func (m *Manager) run() {
	defer close(m.loopDone)

	for {
		ev, ok := m.events.Receive()
		if !ok {
			return
		}

		err := m.handle(ev)
		m.publish()

		if ev.reply != nil {
			ev.reply <- err
		}
	}
}

func (m *Manager) handle(ev event) error {
	if m.disposed {
		if ev.kind == evDialed && ev.ch != nil {
			ev.ch.Close()
		}
		if ev.kind == evSend {
			return ErrManagerClosed
		}
		return nil
	}

	switch ev.kind {
	case evStart:
		m.handleStart()
	case evStop, evShutdown:
		m.handleStop()
	case evDispose:
		m.handleStop()
		m.disposed = true
	case evReconnect:
		m.handleReconnect()
	case evVisibility:
		m.handleVisibility(ev.visible)
	case evSend:
		return m.handleSend(ev.data)
	case evDialed:
		m.handleDialed(ev)
	case evMessage:
		m.handleMessage(ev)
	case evChannelClosed:
		m.handleChannelClosed(ev)
	case evHeartbeat:
		m.handleHeartbeat(ev.gen)
	case evProbeTimeout:
		if m.state == StateOpen && m.probe.owns(ev.gen) {
			m.probe.disarm()
			m.lose(ErrProbeTimeout)
		}
	case evRetry:
		m.handleRetry(ev.gen)
	}
	return nil
}

func (m *Manager) handleStart() {
	if m.state != StateIdle {
		return
	}
	m.manual = false
	m.attempt = 0
	m.failed = 0
	if m.hidden {
		m.logger.Info("start deferred until foreground")
		m.suspended = true
		return
	}
	m.connect()
}

func (m *Manager) handleStop() {
	m.manual = true
	m.suspended = false
	m.teardown(ReasonManual)
}

func (m *Manager) handleReconnect() {
	m.manual = false
	m.teardown(ReasonReconnect)
	m.attempt = 0
	m.failed = 0
	if m.hidden {
		m.suspended = true
		return
	}
	m.logger.Info("forced reconnect")
	m.connect()
}

func (m *Manager) handleVisibility(visible bool) {
	if m.hidden == !visible {
		return
	}
	m.hidden = !visible

	if m.hidden {
		if m.state != StateIdle {
			m.logger.Info("suspending connection", "state", m.state)
			m.teardown(ReasonSuspended)
			m.suspended = true
		}
		return
	}

	if m.suspended && !m.manual {
		m.suspended = false
		m.logger.Info("resuming connection", "attempt", m.attempt)
		m.connect()
	}
}

func (m *Manager) handleSend(data []byte) error {
	if m.state != StateOpen {
		return ErrNotConnected
	}
	if err := m.ch.Send(data); err != nil {
		m.lose(fmt.Errorf("send: %w", err))
		return err
	}
	return nil
}

// connect enters Connecting and dials in the background.
func (m *Manager) connect() {
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithCancel(context.Background())
	m.dialCancel = cancel
	m.state = StateConnecting
	m.nextDelay = 0
	m.counters.Dials++

	m.logger.Debug("dialing", "attempt", m.attempt)

	go func() {
		ch, err := m.dialer.Dial(ctx, m.cfg.Endpoint)
		if !m.events.Send(event{kind: evDialed, gen: gen, ch: ch, err: err}) && ch != nil {
			ch.Close()
		}
	}()
}

func (m *Manager) handleDialed(ev event) {
	if ev.gen != m.gen || m.state != StateConnecting {
		// Abandoned dial; a late success must not leak.
		if ev.ch != nil {
			ev.ch.Close()
		}
		return
	}
	m.dialCancel()
	m.dialCancel = nil

	if ev.err != nil {
		m.fail(ev.err)
		return
	}

	attempt := m.attempt
	m.ch = ev.ch
	m.state = StateOpen
	m.attempt = 0
	m.failed = 0
	m.session = uuid.New()
	m.counters.Opens++
	m.heartbeat.arm()

	go m.pump(m.gen, m.ch)

	m.logger.Info("connection open", "session", m.session, "attempt", attempt)
	m.emitOpen(OpenEvent{
		Session:  m.session,
		Endpoint: m.cfg.Endpoint,
		Attempt:  attempt,
		At:       time.Now(),
	})
}

// pump forwards a channel's frames and termination onto the event queue.
func (m *Manager) pump(gen uint64, ch Channel) {
	for msg := range ch.Messages() {
		m.events.Send(event{kind: evMessage, gen: gen, msg: msg})
	}

	var err error
	select {
	case err = <-ch.Errors():
	default:
	}
	m.events.Send(event{kind: evChannelClosed, gen: gen, err: err})
}

func (m *Manager) handleMessage(ev event) {
	if ev.gen != m.gen || m.state != StateOpen {
		return
	}
	m.probe.disarm()

	if isPong(ev.msg.Data) {
		return
	}
	m.counters.Messages++
	m.emitMessage(Message{
		Data:       ev.msg.Data,
		ReceivedAt: ev.msg.ReceivedAt,
		Session:    m.session,
	})
}

func (m *Manager) handleChannelClosed(ev event) {
	if ev.gen != m.gen || m.state != StateOpen {
		return
	}
	err := ev.err
	if err == nil {
		err = ErrRemoteClosed
	}
	m.lose(err)
}

func (m *Manager) handleHeartbeat(id uint64) {
	if m.state != StateOpen || !m.heartbeat.tick(id) {
		return
	}

	if err := m.ch.Send(m.cfg.ProbePayload); err != nil {
		m.lose(fmt.Errorf("send liveness probe: %w", err))
		return
	}
	m.counters.ProbesSent++

	if m.cfg.PongTimeout > 0 && !m.probe.armed() {
		m.probe.arm(m.cfg.PongTimeout)
	}
}

func (m *Manager) handleRetry(id uint64) {
	if m.state != StateWaitingToRetry || !m.retry.owns(id) {
		return
	}
	m.retry.disarm()
	m.attempt = saturatingInc(m.attempt)
	m.connect()
}

// lose handles an Open channel that failed. Timers go first, then the
// channel, then the retry decision.
func (m *Manager) lose(cause error) {
	session := m.session
	m.exitOpen()
	m.closeChannel()
	m.state = StateIdle

	m.counters.Failures++
	m.counters.LastError = cause.Error()
	m.logger.Warn("connection lost", "session", session, "error", cause)

	m.emitClose(CloseEvent{Session: session, Reason: ReasonLost, Err: cause, At: time.Now()})
	m.emitError(ErrorEvent{Kind: ErrorTransient, Err: cause, Attempt: m.attempt, At: time.Now()})

	m.scheduleRetry()
}

// fail handles a dial that did not produce a channel.
func (m *Manager) fail(cause error) {
	m.state = StateIdle
	m.failed = saturatingInc(m.failed)
	m.counters.Failures++
	m.counters.LastError = cause.Error()

	m.logger.Warn("connection attempt failed", "attempt", m.attempt, "failed", m.failed, "error", cause)
	m.emitError(ErrorEvent{Kind: ErrorTransient, Err: cause, Attempt: m.attempt, At: time.Now()})

	if m.cfg.MaxAttempts != UnlimitedAttempts && m.failed >= m.cfg.MaxAttempts {
		m.logger.Error("retry budget exhausted", "attempts", m.failed)
		m.emitError(ErrorEvent{
			Kind:    ErrorExhausted,
			Err:     fmt.Errorf("max attempts exhausted after %d attempts: %w", m.failed, cause),
			Attempt: m.attempt,
			At:      time.Now(),
		})
		return
	}

	m.scheduleRetry()
}

// scheduleRetry arms the retry timer unless reconnecting is suppressed.
func (m *Manager) scheduleRetry() {
	if m.manual {
		return
	}
	if m.hidden {
		m.suspended = true
		return
	}

	delay := m.policy.Delay(m.attempt)
	if m.cfg.Jitter > 0 {
		delay = Jittered(delay, m.cfg.Jitter, m.rng.Float64())
	}
	m.nextDelay = delay
	m.retry.arm(delay)
	m.state = StateWaitingToRetry

	m.logger.Info("retry scheduled", "attempt", m.attempt, "delay", delay)
}

// teardown moves any state to Idle, releasing whatever the state owns, and
// reports reason if something was torn down.
func (m *Manager) teardown(reason CloseReason) {
	var session uuid.UUID
	if m.state == StateOpen {
		session = m.session
	}

	switch m.state {
	case StateIdle:
		return
	case StateConnecting:
		m.dialCancel()
		m.dialCancel = nil
		m.gen++ // late dial results become stale
	case StateWaitingToRetry:
		m.retry.disarm()
		m.nextDelay = 0
	case StateOpen:
		m.exitOpen()
		m.closeChannel()
	}
	m.state = StateIdle

	m.logger.Info("connection closed", "reason", reason, "session", session)
	m.emitClose(CloseEvent{Session: session, Reason: reason, At: time.Now()})
}

// exitOpen disarms everything scoped to Open.
func (m *Manager) exitOpen() {
	m.heartbeat.disarm()
	m.probe.disarm()
}

// closeChannel closes the live channel through Closing, waiting at most
// CloseTimeout for the close to complete.
func (m *Manager) closeChannel() {
	ch := m.ch
	if ch == nil {
		return
	}
	m.ch = nil
	m.gen++ // events still queued from this channel become stale
	m.state = StateClosing

	done := make(chan error, 1)
	go func() { done <- ch.Close() }()

	timer := time.NewTimer(m.cfg.CloseTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			m.logger.Debug("channel close", "error", err)
		}
	case <-timer.C:
		m.logger.Warn("channel close timed out", "timeout", m.cfg.CloseTimeout)
	}
}

// publish copies loop-owned state into the snapshot.
func (m *Manager) publish() {
	s := m.counters
	s.State = m.state
	s.Attempt = m.attempt
	s.NextDelay = m.nextDelay
	s.Suspended = m.suspended
	if m.state == StateOpen {
		s.Session = m.session
	}

	m.mu.Lock()
	m.stats = s
	m.mu.Unlock()
}

// dispatch runs subscription callbacks in order.
func (m *Manager) dispatch() {
	defer close(m.dispatchDone)

	for {
		fn, ok := m.callbacks.Receive()
		if !ok {
			return
		}
		m.invoke(fn)
	}
}

func (m *Manager) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscription callback panicked", "panic", r)
		}
	}()
	fn()
}

func (m *Manager) emitOpen(ev OpenEvent) {
	if fn := m.sub.OnOpen; fn != nil {
		m.callbacks.Send(func() { fn(ev) })
	}
}

func (m *Manager) emitMessage(msg Message) {
	if fn := m.sub.OnMessage; fn != nil {
		m.callbacks.Send(func() { fn(msg) })
	}
}

func (m *Manager) emitClose(ev CloseEvent) {
	if fn := m.sub.OnClose; fn != nil {
		m.callbacks.Send(func() { fn(ev) })
	}
}

func (m *Manager) emitError(ev ErrorEvent) {
	if fn := m.sub.OnError; fn != nil {
		m.callbacks.Send(func() { fn(ev) })
	}
}

// isPong reports whether data is a {"type":"pong"} probe reply.
func isPong(data []byte) bool {
	// Quick check before parsing
	if !bytes.Contains(data, []byte(`"pong"`)) {
		return false
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return false
	}
	return envelope.Type == "pong"
}
