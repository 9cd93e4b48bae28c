package reindex

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/anonwell/maskpipe/pkg/anonymize"
	"github.com/anonwell/maskpipe/pkg/estuary"
	"github.com/anonwell/maskpipe/pkg/events"
)

// RecordIterator yields source records one at a time. *mongo.Cursor
// satisfies it.
type RecordIterator interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// Job is the one-shot full reindex: every existing source record is
// anonymized and upserted in fixed-size batches. No checkpoint is read or
// written; the job is idempotent and safe to re-run.
type Job struct {
	endpoint  estuary.Endpoint
	batchSize int
}

// NewJob creates a reindex job writing batches of batchSize to endpoint.
func NewJob(endpoint estuary.Endpoint, batchSize int) *Job {
	return &Job{endpoint: endpoint, batchSize: batchSize}
}

// Run drains the iterator, flushing a bulk upsert per full batch and once
// more for the remainder. A rejected batch is logged and dropped; the scan
// continues with the next one. Returns the number of records written.
func (j *Job) Run(ctx context.Context, records RecordIterator) (int, error) {
	defer records.Close(ctx)

	batch := make([]events.PendingUpdate, 0, j.batchSize)
	written := 0
	scanned := 0

	for records.Next(ctx) {
		var doc bson.M
		if err := records.Decode(&doc); err != nil {
			log.Error().Err(err).Msg("Failed to decode source record, skipping")
			continue
		}
		scanned++

		batch = append(batch, events.PendingUpdate{
			ID:       doc["_id"],
			Kind:     events.ReplaceDocument,
			Document: anonymize.Document(doc),
		})
		if len(batch) >= j.batchSize {
			written += j.writeBatch(ctx, batch)
			batch = batch[:0]
			log.Info().Int("scanned", scanned).Int("written", written).Msg("Reindex progress")
		}
	}
	if len(batch) > 0 {
		written += j.writeBatch(ctx, batch)
	}

	if err := records.Err(); err != nil {
		return written, fmt.Errorf("source scan failed: %w", err)
	}
	log.Info().Int("scanned", scanned).Int("written", written).Msg("Reindex complete")
	return written, nil
}

func (j *Job) writeBatch(ctx context.Context, batch []events.PendingUpdate) int {
	if err := j.endpoint.WriteBatch(ctx, batch); err != nil {
		log.Error().Err(err).Int("batch_size", len(batch)).Msg("Bulk write failed, dropping batch")
		return 0
	}
	return len(batch)
}
