package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/anonwell/maskpipe/pkg/api"
	"github.com/anonwell/maskpipe/pkg/checkpoint"
	"github.com/anonwell/maskpipe/pkg/config"
	"github.com/anonwell/maskpipe/pkg/estuary"
	"github.com/anonwell/maskpipe/pkg/events"
	"github.com/anonwell/maskpipe/pkg/pipeline"
	"github.com/anonwell/maskpipe/pkg/reindex"
	"github.com/anonwell/maskpipe/pkg/streams"
)

const (
	exitOK          = 0
	exitError       = 1
	exitConfig      = 2
	exitCloseFailed = 3
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile     string
	fullReindex bool
)

var rootCmd = &cobra.Command{
	Use:   "maskpipe",
	Short: "Mirror a person collection into an anonymized copy",
	Long: `maskpipe consumes the source collection's change feed, anonymizes
sensitive string fields and upserts the result into the target collection,
checkpointing the feed position after every flush. With --full-reindex it
instead runs a one-shot backfill over every existing record.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", os.Getenv("MASKPIPE_CONFIG"), "path to configuration file")
	rootCmd.Flags().BoolVar(&fullReindex, "full-reindex", false, "run the one-shot backfill instead of continuous sync")
}

// closeError marks a failure while closing connections during shutdown; the
// exit code distinguishes it from runtime failures.
type closeError struct {
	err error
}

func (e *closeError) Error() string { return fmt.Sprintf("shutdown close failed: %v", e.err) }
func (e *closeError) Unwrap() error { return e.err }

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var confErr *config.ConfigurationError
		var clsErr *closeError
		switch {
		case errors.As(err, &confErr):
			log.Error().Err(err).Msg("Invalid configuration")
			os.Exit(exitConfig)
		case errors.As(err, &clsErr):
			log.Error().Err(err).Msg("Failed to close connections during shutdown")
			os.Exit(exitCloseFailed)
		default:
			log.Error().Err(err).Msg("Fatal error")
			os.Exit(exitError)
		}
	}
	os.Exit(exitOK)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	endpoint, err := newEndpoint(cfg)
	if err != nil {
		return err
	}

	if fullReindex {
		return runReindex(ctx, cfg, endpoint)
	}
	return runSync(ctx, cfg, endpoint)
}

func newEndpoint(cfg *config.Config) (estuary.Endpoint, error) {
	switch cfg.Pipeline.Endpoint {
	case config.EndpointTypeStdout:
		return estuary.StdoutEndpoint{}, nil
	default:
		return estuary.NewMongoEndpoint(cfg)
	}
}

// runSync is the continuous mode: change feed -> reconstructor ->
// anonymizer -> batch writer -> checkpoint.
func runSync(ctx context.Context, cfg *config.Config, endpoint estuary.Endpoint) error {
	store, err := checkpoint.NewFileStore(cfg.Checkpoint.Path, cfg.StreamID())
	if err != nil {
		endpoint.Close(context.Background())
		return err
	}
	token, _, err := store.Load(ctx)
	if err != nil {
		// A corrupt checkpoint aborts startup: resuming blind would skip
		// or replay an unknown span of the feed.
		endpoint.Close(context.Background())
		return err
	}

	feed := make(chan events.ChangeEvent)
	stream, err := streams.NewMongoDBStream(cfg, token, feed)
	if err != nil {
		endpoint.Close(context.Background())
		return err
	}

	batcher := pipeline.NewBatcher(endpoint, store, cfg.Pipeline.MaxBatchSize, cfg.Pipeline.FlushInterval)
	consumer := pipeline.NewConsumer(feed, batcher)

	var server *api.Server
	if cfg.HTTP.Enabled {
		server = api.NewServer(cfg.HTTP.Addr, batcher)
		go server.Start()
	}

	go stream.Run(ctx)
	consumer.Run(ctx)

	// Shutdown: the consumer has already cancelled the flush timer and
	// discarded anything still queued.
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var closeErr error
	if server != nil {
		if err := server.Stop(shutCtx); err != nil {
			log.Warn().Err(err).Msg("Error stopping health/metrics server")
		}
	}
	if err := stream.Close(shutCtx); err != nil {
		closeErr = err
	}
	if err := endpoint.Close(shutCtx); err != nil {
		closeErr = err
	}
	if closeErr != nil {
		return &closeError{err: closeErr}
	}

	log.Info().Msg("Shutdown complete")
	return nil
}

// runReindex is the one-shot backfill over every existing source record.
func runReindex(ctx context.Context, cfg *config.Config, endpoint estuary.Endpoint) error {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		endpoint.Close(context.Background())
		return fmt.Errorf("failed to connect to source MongoDB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = client.Ping(pingCtx, readpref.Primary())
	cancel()
	if err != nil {
		client.Disconnect(context.Background())
		endpoint.Close(context.Background())
		return fmt.Errorf("failed to ping source MongoDB: %w", err)
	}

	source := client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.SourceCollection)
	cursor, err := source.Find(ctx, bson.D{})
	if err != nil {
		client.Disconnect(context.Background())
		endpoint.Close(context.Background())
		return fmt.Errorf("failed to scan source collection: %w", err)
	}

	job := reindex.NewJob(endpoint, cfg.Reindex.BatchSize)
	total, runErr := job.Run(ctx, cursor)
	log.Info().Int("records", total).Msg("Full reindex finished")

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var closeErr error
	if err := client.Disconnect(shutCtx); err != nil {
		closeErr = err
	}
	if err := endpoint.Close(shutCtx); err != nil {
		closeErr = err
	}

	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return &closeError{err: closeErr}
	}
	return nil
}
