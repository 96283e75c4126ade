package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/wslink/internal/connection"
)

// DB sends insert batches. *pgxpool.Pool satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Journal consumes connection events and writes them to link_events.
type Journal struct {
	cfg    Config
	logger *slog.Logger

	// Input from subscription callbacks
	input chan Entry

	// Database
	db DB

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// New creates a Journal.
func New(cfg Config, db DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	return &Journal{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "journal"),
		input:  make(chan Entry, cfg.BufferSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// Observe returns a Subscription that records every lifecycle event and
// then calls next. OnMessage is passed through untouched.
func (j *Journal) Observe(next connection.Subscription) connection.Subscription {
	return connection.Subscription{
		OnOpen: func(ev connection.OpenEvent) {
			j.Record(Entry{Kind: KindOpen, Session: ev.Session, Attempt: ev.Attempt, At: ev.At})
			if next.OnOpen != nil {
				next.OnOpen(ev)
			}
		},
		OnMessage: next.OnMessage,
		OnClose: func(ev connection.CloseEvent) {
			e := Entry{Kind: KindClose, Session: ev.Session, Reason: string(ev.Reason), At: ev.At}
			if ev.Err != nil {
				e.Error = ev.Err.Error()
			}
			j.Record(e)
			if next.OnClose != nil {
				next.OnClose(ev)
			}
		},
		OnError: func(ev connection.ErrorEvent) {
			e := Entry{Kind: KindError, Reason: string(ev.Kind), Attempt: ev.Attempt, At: ev.At}
			if ev.Err != nil {
				e.Error = ev.Err.Error()
			}
			j.Record(e)
			if next.OnError != nil {
				next.OnError(ev)
			}
		},
	}
}

// Record queues an entry. It never blocks; entries are dropped when the
// buffer is full.
func (j *Journal) Record(e Entry) {
	select {
	case j.input <- e:
		j.batchMu.Lock()
		j.metrics.Recorded++
		j.batchMu.Unlock()
	default:
		j.batchMu.Lock()
		j.metrics.Dropped++
		j.batchMu.Unlock()
		j.logger.Warn("journal buffer full, entry dropped", "kind", e.Kind)
	}
}

// Start begins consuming entries and writing to the database.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	j.wg.Add(1)
	go j.consumeLoop()

	// Flush ticker goroutine
	j.wg.Add(1)
	go j.flushLoop()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the journal, flushing whatever is pending within ctx.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping journal")

	if j.cancel != nil {
		j.cancel()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
		return ctx.Err()
	}

	// Drain what the consumer did not reach
drain:
	for {
		select {
		case e := <-j.input:
			j.add(e)
		default:
			break drain
		}
	}

	// Final flush
	j.flush(ctx)

	j.logger.Info("journal stopped")
	return nil
}

// Stats returns current metrics.
func (j *Journal) Stats() Metrics {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.metrics
}

// consumeLoop reads entries and accumulates batches.
func (j *Journal) consumeLoop() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ctx.Done():
			return
		case e := <-j.input:
			if j.add(e) {
				j.flush(j.ctx)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (j *Journal) flushLoop() {
	defer j.wg.Done()

	if j.cfg.FlushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.flush(j.ctx)
		}
	}
}

// add appends e to the batch and reports whether the batch is full.
func (j *Journal) add(e Entry) bool {
	r := j.transform(e)

	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	j.batch = append(j.batch, r)
	return len(j.batch) >= j.cfg.BatchSize
}

// transform converts an Entry to a row.
func (j *Journal) transform(e Entry) row {
	r := row{
		ID:       uuid.New(),
		Instance: j.cfg.Instance,
		Endpoint: j.cfg.Endpoint,
		Kind:     string(e.Kind),
		Attempt:  int64(e.Attempt),
		At:       e.At,
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	if e.Session != uuid.Nil {
		r.Session = e.Session.String()
	}
	if e.Reason != "" {
		r.Reason = e.Reason
	}
	if e.Error != "" {
		r.Error = e.Error
	}
	return r
}

// flush writes the current batch to the database.
func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := j.batch
	j.batch = make([]row, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	start := time.Now()

	inserted, err := j.batchInsert(ctx, batch)
	if err != nil {
		j.logger.Error("batch insert failed", "error", err, "count", len(batch))
		j.batchMu.Lock()
		j.metrics.Errors++
		j.batchMu.Unlock()
		return
	}

	j.batchMu.Lock()
	j.metrics.Inserts += int64(inserted)
	j.metrics.Flushes++
	j.batchMu.Unlock()

	j.logger.Debug("flushed link events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (j *Journal) batchInsert(ctx context.Context, rows []row) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.ID, r.Instance, r.Endpoint, r.Session, r.Kind, r.Reason, r.Error, r.Attempt, r.At)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}

	return inserted, nil
}
