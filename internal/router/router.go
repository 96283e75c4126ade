package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/wslink/internal/connection"
)

// ErrMissingType is counted as a parse error for payloads without a "type".
var ErrMissingType = errors.New("message has no type")

// Router dispatches inbound messages to handlers by their JSON "type" field.
type Router interface {
	// Handle registers h for msgType. Must be called before Start.
	Handle(msgType string, h Handler)

	// HandleDefault registers h for types with no handler.
	HandleDefault(h Handler)

	// OnMessage enqueues msg. It fits connection.Subscription.OnMessage.
	OnMessage(msg connection.Message)

	// Start begins routing queued messages.
	Start(ctx context.Context) error

	// Stop drains the queue and shuts down the router.
	Stop(ctx context.Context) error

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	cfg    RouterConfig
	logger *slog.Logger

	handlers map[string]Handler
	fallback Handler
	ignore   map[string]struct{}

	box *mailbox[connection.Message]

	// Lifecycle
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Stats
	mu              sync.RWMutex
	received        int64
	routed          int64
	parseErrors     int64
	unknownMessages int64
	handlerPanics   int64
	byType          map[string]int64
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	ignore := make(map[string]struct{}, len(cfg.Ignore))
	for _, t := range cfg.Ignore {
		ignore[t] = struct{}{}
	}

	return &router{
		cfg:      cfg,
		logger:   logger.With("component", "router"),
		handlers: make(map[string]Handler),
		ignore:   ignore,
		box:      newMailbox[connection.Message](cfg.BufferSize),
		byType:   make(map[string]int64),
	}
}

func (r *router) Handle(msgType string, h Handler) {
	r.handlers[msgType] = h
}

func (r *router) HandleDefault(h Handler) {
	r.fallback = h
}

func (r *router) OnMessage(msg connection.Message) {
	if !r.box.Put(msg) {
		r.logger.Debug("message after stop dropped", "session", msg.Session)
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started",
		"handlers", len(r.handlers),
		"buffer", r.cfg.BufferSize,
	)

	return nil
}

// Stop closes the mailbox and waits for queued messages to be routed.
func (r *router) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.logger.Info("stopping message router")
		r.box.Close()

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			r.logger.Info("message router stopped")
		case <-ctx.Done():
			r.logger.Warn("message router stop timed out", "pending", r.box.Stats().Pending)
			err = ctx.Err()
		}
	})
	return err
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := make(map[string]int64, len(r.byType))
	for k, v := range r.byType {
		byType[k] = v
	}

	return RouterStats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		HandlerPanics:    r.handlerPanics,
		ByType:           byType,
		Mailbox:          r.box.Stats(),
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		batch, ok := r.box.Take(r.cfg.BatchSize)
		if !ok {
			return
		}
		for _, msg := range batch {
			r.route(msg)
		}
	}
}

// route resolves and dispatches a single message.
func (r *router) route(msg connection.Message) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	msgType, err := extractType(msg.Data)
	if err != nil {
		r.logger.Warn("failed to extract message type", "error", err, "size", len(msg.Data))
		r.mu.Lock()
		r.parseErrors++
		r.mu.Unlock()
		return
	}

	if _, skip := r.ignore[msgType]; skip {
		return
	}

	h, ok := r.handlers[msgType]
	if !ok {
		h = r.fallback
	}
	if h == nil {
		r.logger.Debug("skipping message type", "type", msgType)
		r.mu.Lock()
		r.unknownMessages++
		r.mu.Unlock()
		return
	}

	env := Envelope{
		Type:       msgType,
		Data:       msg.Data,
		Session:    msg.Session,
		ReceivedAt: msg.ReceivedAt,
	}
	if !r.invoke(h, env) {
		return
	}

	r.mu.Lock()
	r.routed++
	r.byType[msgType]++
	r.mu.Unlock()
}

func (r *router) invoke(h Handler, env Envelope) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked", "type", env.Type, "panic", p)
			r.mu.Lock()
			r.handlerPanics++
			r.mu.Unlock()
			ok = false
		}
	}()
	h(env)
	return true
}

// extractType reads the "type" field without decoding the rest.
func extractType(data []byte) (string, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Type == "" {
		return "", ErrMissingType
	}
	return envelope.Type, nil
}
