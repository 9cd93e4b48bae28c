package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/anonwell/maskpipe/pkg/estuary"
	"github.com/anonwell/maskpipe/pkg/events"
)

// CheckpointSaver persists the resume token of the last flushed event.
type CheckpointSaver interface {
	Save(ctx context.Context, token bson.Raw) error
}

/*
Batcher accumulates pending updates and flushes them as one bulk write,
either when the queue reaches its maximum size or when the flush timer
expires. All mutating methods are called from the consumer's single event
loop, so the queue itself needs no locking; the mutex only covers the
read-side Status snapshot.

A flush snapshots and clears the queue before writing, so events arriving
while the write is in flight land in the next batch and are never published
twice. The checkpoint saved after a flush is the token of the last
snapshotted update, and it is only saved once the bulk write has succeeded:
a persistently failing sink must not advance the checkpoint past events
that were never durably written. A failed batch is dropped, not retried;
replays after restart are absorbed by the upsert semantics.
*/
type Batcher struct {
	endpoint estuary.Endpoint
	saver    CheckpointSaver
	maxSize  int
	interval time.Duration

	mu      sync.Mutex
	pending []events.PendingUpdate
	flushes uint64

	timer *time.Timer
}

// NewBatcher creates a batch writer with its flush timer already running.
func NewBatcher(endpoint estuary.Endpoint, saver CheckpointSaver, maxSize int, interval time.Duration) *Batcher {
	return &Batcher{
		endpoint: endpoint,
		saver:    saver,
		maxSize:  maxSize,
		interval: interval,
		timer:    time.NewTimer(interval),
	}
}

// Timer exposes the flush timer channel for the consumer's select loop.
func (b *Batcher) Timer() <-chan time.Time {
	return b.timer.C
}

// Add enqueues one pending update and forces a flush when the queue
// reaches its maximum size.
func (b *Batcher) Add(ctx context.Context, update events.PendingUpdate) {
	b.mu.Lock()
	b.pending = append(b.pending, update)
	full := len(b.pending) >= b.maxSize
	b.mu.Unlock()

	if full {
		log.Debug().Int("batch_size", b.maxSize).Msg("Max batch size reached, flushing")
		b.Flush(ctx)
	}
}

// Flush cancels the pending timer, writes the snapshotted queue as one bulk
// upsert, advances the checkpoint on success and reschedules the timer. An
// empty queue is a no-op: no write is issued. The reschedule interval is
// self-correcting, so a slow flush shortens the delay to the next one
// instead of compounding drift.
func (b *Batcher) Flush(ctx context.Context) {
	b.stopTimer()
	start := time.Now()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.flushes++
	b.mu.Unlock()

	if len(batch) > 0 {
		if err := b.endpoint.WriteBatch(ctx, batch); err != nil {
			log.Error().Err(err).Int("batch_size", len(batch)).Msg("Bulk write failed, dropping batch")
		} else if token := batch[len(batch)-1].Token; len(token) > 0 && b.saver != nil {
			if err := b.saver.Save(ctx, token); err != nil {
				log.Error().Err(err).Msg("Failed to save checkpoint")
			}
		}
	}

	next := b.interval - time.Since(start)
	if next < 0 {
		next = 0
	}
	b.timer.Reset(next)
}

// Stop cancels the flush timer and discards whatever is still queued. This
// is the documented loss window on graceful shutdown: queued updates are
// not flushed, they will be replayed from the checkpoint on the next run.
func (b *Batcher) Stop() {
	b.stopTimer()

	b.mu.Lock()
	discarded := len(b.pending)
	b.pending = nil
	b.mu.Unlock()

	if discarded > 0 {
		log.Warn().Int("discarded", discarded).Msg("Discarding queued updates on shutdown")
	}
}

// stopTimer cancels the timer and drains an already-delivered fire so a
// Reset never races a stale tick.
func (b *Batcher) stopTimer() {
	if !b.timer.Stop() {
		select {
		case <-b.timer.C:
		default:
		}
	}
}

// Status reports queue depth and flush count for the health endpoint.
func (b *Batcher) Status() (pending int, flushes uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending), b.flushes
}
