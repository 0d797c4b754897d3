package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	batchMaxOps  = 64
	batchMaxWait = 200 * time.Millisecond
)

// WriteOp is one unit of work submitted to the Writer; it runs inside the
// batch's shared transaction.
type WriteOp func(ctx context.Context, tx *sql.Tx) error

type writeRequest struct {
	op   WriteOp
	done chan error
}

// Writer serializes all Store mutation through a single goroutine so WAL
// contention is eliminated and transactions batch up to 64 ops or 200ms.
// The Ingest Pipeline and any other mutating component
// should submit through this rather than calling *DB methods directly once
// the gateway is running.
type Writer struct {
	db  *DB
	log *zap.Logger
	in  chan writeRequest
}

// NewWriter builds a Writer over db. Call Run in its own goroutine.
func NewWriter(db *DB, log *zap.Logger) *Writer {
	return &Writer{db: db, log: log, in: make(chan writeRequest, batchMaxOps*4)}
}

// Submit enqueues op and blocks until its batch has committed (or the
// context is cancelled first).
func (w *Writer) Submit(ctx context.Context, op WriteOp) error {
	req := writeRequest{op: op, done: make(chan error, 1)}
	select {
	case w.in <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the submission channel, grouping ops into batched
// transactions, until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	for {
		var batch []writeRequest
		select {
		case <-ctx.Done():
			return
		case req := <-w.in:
			batch = append(batch, req)
		}

		timer := time.NewTimer(batchMaxWait)
	collect:
		for len(batch) < batchMaxOps {
			select {
			case req := <-w.in:
				batch = append(batch, req)
			case <-timer.C:
				break collect
			case <-ctx.Done():
				timer.Stop()
				w.failAll(batch, ctx.Err())
				return
			}
		}
		timer.Stop()

		w.commitBatch(ctx, batch)
	}
}

// batchRetryDelay is the single retry backoff after a failed batch
// transaction.
const batchRetryDelay = 100 * time.Millisecond

func (w *Writer) commitBatch(ctx context.Context, batch []writeRequest) {
	results, err := w.runBatch(ctx, batch)
	if err != nil {
		w.log.Warn("write batch failed, retrying once", zap.Error(err), zap.Int("ops", len(batch)))
		select {
		case <-time.After(batchRetryDelay):
		case <-ctx.Done():
			w.failAll(batch, ctx.Err())
			return
		}
		results, err = w.runBatch(ctx, batch)
	}
	if err != nil {
		w.log.Error("write batch commit failed", zap.Error(err), zap.Int("ops", len(batch)))
		w.failAll(batch, err)
		return
	}

	for i, req := range batch {
		req.done <- results[i]
	}
}

func (w *Writer) runBatch(ctx context.Context, batch []writeRequest) ([]error, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: writer begin batch: %w", err)
	}

	results := make([]error, len(batch))
	for i, req := range batch {
		results[i] = req.op(ctx, tx)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: writer commit batch: %w", err)
	}
	return results, nil
}

func (w *Writer) failAll(batch []writeRequest, err error) {
	for _, req := range batch {
		req.done <- err
	}
}
