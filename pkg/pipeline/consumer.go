package pipeline

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/anonwell/maskpipe/pkg/anonymize"
	"github.com/anonwell/maskpipe/pkg/delta"
	"github.com/anonwell/maskpipe/pkg/events"
)

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "maskpipe_dropped_events_total",
	Help: "The total number of change events dropped without a usable field delta",
})

/*
Consumer is the change feed consumer: a single event loop selecting among
feed events, flush timer fires and shutdown. The three activities are
serialized onto this one goroutine, so dispatching an event, flushing and
stopping never run concurrently with each other.

Per event: inserts (and replaces) anonymize the full document into a
whole-record upsert; updates go through the reconstructor into a path-set
or whole-group write; anything else is ignored. Each enqueued update
carries its event's resume token for checkpointing.
*/
type Consumer struct {
	feed    <-chan events.ChangeEvent
	batcher *Batcher
}

// NewConsumer creates a consumer reading from feed into batcher.
func NewConsumer(feed <-chan events.ChangeEvent, batcher *Batcher) *Consumer {
	return &Consumer{feed: feed, batcher: batcher}
}

// Run processes events until the context is cancelled or the feed channel
// closes. On exit the flush timer is cancelled and queued updates are
// discarded, not flushed.
func (c *Consumer) Run(ctx context.Context) {
	log.Info().Msg("Starting change feed consumer")
	defer c.batcher.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Consumer interrupted, shutting down")
			return
		case event, ok := <-c.feed:
			if !ok {
				log.Info().Msg("Change feed closed, consumer stopping")
				return
			}
			c.dispatch(ctx, event)
		case <-c.batcher.Timer():
			c.batcher.Flush(ctx)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, event events.ChangeEvent) {
	switch event.Action {
	case events.InsertAction, events.ReplaceAction:
		c.batcher.Add(ctx, events.PendingUpdate{
			ID:       event.ID,
			Kind:     events.ReplaceDocument,
			Document: anonymize.Document(event.FullDocument),
			Token:    event.ResumeToken,
		})

	case events.UpdateAction:
		if !event.HasFieldDelta() {
			// Removal-only deltas are out of contract: the schema has no
			// arrays and documents are never partially deleted.
			log.Warn().
				Interface("id", event.ID).
				Strs("removed_fields", event.RemovedFields).
				Msg("Update event carries no usable field delta, dropping")
			eventsDropped.Inc()
			return
		}
		doc, fullReplace := delta.Reconstruct(event.UpdatedFields)
		c.batcher.Add(ctx, events.PendingUpdate{
			ID:     event.ID,
			Kind:   events.SetFields,
			Fields: delta.Expand(anonymize.Document(doc), fullReplace),
			Token:  event.ResumeToken,
		})

	default:
		log.Debug().Str("action", event.Action).Interface("id", event.ID).Msg("Ignoring event")
	}
}
