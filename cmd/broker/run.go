package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fedspending/data-broker/internal/blob"
	"github.com/fedspending/data-broker/internal/config"
	"github.com/fedspending/data-broker/internal/events"
	"github.com/fedspending/data-broker/internal/generation"
	metricsserver "github.com/fedspending/data-broker/internal/metrics_server"
	"github.com/fedspending/data-broker/internal/store"
	"github.com/fedspending/data-broker/internal/worker"
	"github.com/fedspending/data-broker/pkg/metrics"
	"github.com/fedspending/data-broker/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var runMigrations bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the generation worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		cleanup := initLogging(cfg)
		defer cleanup()

		zap.S().Info("Starting data broker worker")
		defer zap.S().Info("Data broker worker stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if runMigrations {
			if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder); err != nil {
				zap.S().Fatalw("running migrations", "error", err)
			}
		}

		blobs, err := blob.New(cfg)
		if err != nil {
			zap.S().Fatalw("initializing file storage", "error", err)
		}
		zap.S().Infow("file storage ready", "type", blobs.Type())

		sources, err := loadSources(db, cfg)
		if err != nil {
			zap.S().Fatalw("loading sources", "error", err)
		}

		queue := generation.NewTaskQueue(s.Task())
		opts := []generation.PipelineOption{
			generation.WithQueue(queue),
			generation.WithPageSize(cfg.Generation.PageSize),
			generation.WithTempDir(cfg.Generation.TempDir),
		}
		if producer := newEventProducer(cfg); producer != nil {
			defer producer.Close()
			opts = append(opts, generation.WithEvents(producer))
		}
		pipeline := generation.NewPipeline(s, blobs, sources, opts...)

		if err := metrics.RegisterJobStatusCollector(s); err != nil {
			zap.S().Fatalw("registering job collector", "error", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		go func() {
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server, err := metricsserver.New(cfg.Service.MetricsAddress, listener)
			if err != nil {
				zap.S().Fatalw("creating metrics server", "error", err)
			}
			if err := server.Run(ctx); err != nil {
				zap.S().Errorw("running metrics server", "error", err)
			}
			cancel()
		}()

		w := worker.New(s.Task(), pipeline,
			worker.WithMaxWorkers(cfg.Worker.MaxWorkers),
			worker.WithPollInterval(cfg.Worker.PollInterval),
			worker.WithJobTimeout(cfg.Worker.JobTimeout),
			worker.WithLeaseDuration(cfg.Worker.LeaseDuration),
		)
		w.Start(ctx)

		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply database migrations before starting")
}

func loadSources(db *gorm.DB, cfg *config.Config) (*generation.Sources, error) {
	if cfg.Generation.SourcesFile == "" {
		zap.S().Warn("no sources file configured, every generation will fail")
		return generation.NewSources(), nil
	}

	sourcesCfg, err := generation.LoadSourcesConfig(cfg.Generation.SourcesFile)
	if err != nil {
		return nil, err
	}
	return generation.NewTableSources(db, sourcesCfg), nil
}

func newEventProducer(cfg *config.Config) *events.EventProducer {
	var w events.Writer
	switch cfg.Events.Writer {
	case "stdout":
		w = events.NewStdoutWriter()
	case "kafka":
		if len(cfg.Events.Brokers) == 0 {
			zap.S().Fatal("EVENTS_KAFKA_BROKERS is required by the kafka event writer")
		}
		w = events.NewKafkaWriter(cfg.Events.Brokers...)
	default:
		return nil
	}
	zap.S().Infow("publishing generation events", "writer", cfg.Events.Writer, "topic", cfg.Events.Topic)
	return events.NewEventProducer(w, events.WithTopic(cfg.Events.Topic))
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
