package estuary

// estuary means "mouth of river"
// Noun, the tidal mouth of a large river, where the tide meets the stream

// Implementations that write anonymized pending updates to an output store.

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/anonwell/maskpipe/pkg/events"
)

// Endpoint writes batches of pending updates to a sink. Implementations
// must be idempotent: every write is an upsert keyed by record identifier,
// so replaying the same batch is safe.
type Endpoint interface {
	WriteBatch(ctx context.Context, updates []events.PendingUpdate) error
	Close(ctx context.Context) error
}

var (
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	recordsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskpipe_sent_records_total",
		Help: "The total number of anonymized records sent to the sink",
	})
	batchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskpipe_flushed_batches_total",
		Help: "The total number of bulk writes issued",
	})
	batchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maskpipe_failed_batches_total",
		Help: "The total number of bulk writes rejected by the sink",
	})
)

// StdoutEndpoint logs every update instead of writing it; used for dry runs.
type StdoutEndpoint struct {
}

func (std StdoutEndpoint) WriteBatch(ctx context.Context, updates []events.PendingUpdate) error {
	for _, update := range updates {
		logger.Info().
			Interface("id", update.ID).
			Interface("document", update.Document).
			Interface("fields", update.Fields).
			Msg("record")
	}
	recordsSent.Add(float64(len(updates)))
	batchesFlushed.Inc()
	return nil
}

func (std StdoutEndpoint) Close(ctx context.Context) error {
	return nil
}
