// CLAUDE:SUMMARY Buffered operation timings flushed to SQLite in batches — record, query, prune, close.
// Package metrics records per-operation timing datapoints into the
// tabkeeper database. Persistence is batched and non-blocking: a failing
// flush logs and drops datapoints rather than applying backpressure to
// page operations.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultBufferSize    = 64
	defaultFlushInterval = 5 * time.Second
	flushTimeout         = 10 * time.Second
)

// Point is one operation timing datapoint.
type Point struct {
	Op         string
	Session    string
	DurationMs float64
	OK         bool
	RecordedAt time.Time
}

// Recorder buffers points and flushes them to SQLite in batches.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger

	bufferSize int

	mu     sync.Mutex
	buffer []*Point

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRecorder starts a recorder writing to db. Non-positive bufferSize or
// flushInterval fall back to the defaults.
func NewRecorder(db *sql.DB, logger *slog.Logger, bufferSize int, flushInterval time.Duration) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	r := &Recorder{
		db:         db,
		logger:     logger,
		bufferSize: bufferSize,
		buffer:     make([]*Point, 0, bufferSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go r.flushLoop(flushInterval)
	return r
}

// Observe records one completed operation. Non-blocking.
func (r *Recorder) Observe(op, session string, start time.Time, err error) {
	r.Record(&Point{
		Op:         op,
		Session:    session,
		DurationMs: float64(time.Since(start)) / float64(time.Millisecond),
		OK:         err == nil,
		RecordedAt: time.Now(),
	})
}

// Record queues a point for async persistence. Non-blocking.
func (r *Recorder) Record(p *Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, p)
	if len(r.buffer) >= r.bufferSize {
		r.flushLocked()
	}
}

// Query retrieves points for one op, newest first. Pass empty op for all
// ops. A non-positive limit defaults to 100.
func (r *Recorder) Query(ctx context.Context, op string, limit int) ([]*Point, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT op, session, duration_ms, ok, recorded_at FROM op_metrics`
	args := make([]any, 0, 2)
	if op != "" {
		q += ` WHERE op = ?`
		args = append(args, op)
	}
	q += ` ORDER BY recorded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Point
	for rows.Next() {
		p := &Point{}
		var ok int
		var ts int64
		if err := rows.Scan(&p.Op, &p.Session, &p.DurationMs, &ok, &ts); err != nil {
			return nil, err
		}
		p.OK = ok != 0
		p.RecordedAt = time.UnixMilli(ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Flush writes any buffered points immediately.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Prune deletes points recorded before the cutoff and reports how many
// were removed.
func (r *Recorder) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM op_metrics WHERE recorded_at < ?`,
		olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close flushes remaining points and stops the background goroutine.
// Safe to call more than once.
func (r *Recorder) Close() error {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
	return nil
}

func (r *Recorder) flushLoop(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			r.mu.Lock()
			r.flushLocked()
			r.mu.Unlock()
			return
		case <-ticker.C:
			r.mu.Lock()
			r.flushLocked()
			r.mu.Unlock()
		}
	}
}

// flushLocked writes the buffer in one transaction. Caller holds r.mu.
func (r *Recorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("metrics: begin tx", "error", err)
		return
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO op_metrics (op, session, duration_ms, ok, recorded_at) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		r.logger.Error("metrics: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, p := range r.buffer {
		ok := 0
		if p.OK {
			ok = 1
		}
		if _, err := stmt.ExecContext(ctx, p.Op, p.Session, p.DurationMs, ok, p.RecordedAt.UnixMilli()); err != nil {
			r.logger.Error("metrics: insert", "error", err, "op", p.Op)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("metrics: commit", "error", err)
	}
	r.buffer = r.buffer[:0]
}
