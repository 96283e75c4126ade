package reporter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Source returns the current values of a component as key/value pairs.
type Source func() []any

// Config holds reporter configuration.
type Config struct {
	Interval time.Duration // Report interval (default: 10s)
	Message  string        // Log message (default: "stats")
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Message:  "stats",
	}
}

type namedSource struct {
	name string
	fn   Source
}

// Reporter periodically samples sources and logs them.
type Reporter struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	sources []namedSource

	cycles atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Reporter.
func New(cfg Config, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Message == "" {
		cfg.Message = DefaultConfig().Message
	}
	return &Reporter{
		cfg:    cfg,
		logger: logger,
	}
}

// Add registers a source under name. Sources are reported in the order added.
func (r *Reporter) Add(name string, fn Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, namedSource{name: name, fn: fn})
}

// Start begins the reporting loop.
func (r *Reporter) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Debug("stats reporter started", "interval", r.cfg.Interval)
	return nil
}

// Stop shuts down the reporter and waits for the loop to exit.
func (r *Reporter) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cycles returns how many reports have been written.
func (r *Reporter) Cycles() int64 {
	return r.cycles.Load()
}

func (r *Reporter) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report samples every source and writes one log record.
func (r *Reporter) Report() {
	r.mu.Lock()
	sources := make([]namedSource, len(r.sources))
	copy(sources, r.sources)
	r.mu.Unlock()

	attrs := make([]any, 0, len(sources))
	for _, s := range sources {
		attrs = append(attrs, slog.Group(s.name, s.fn()...))
	}

	r.logger.Info(r.cfg.Message, attrs...)
	r.cycles.Add(1)
}
