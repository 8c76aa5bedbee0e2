package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apiserver "github.com/tabval/validation-service/internal/api_server"
	"github.com/tabval/validation-service/internal/config"
	"github.com/tabval/validation-service/internal/events"
	handlers "github.com/tabval/validation-service/internal/handlers/v1alpha1"
	"github.com/tabval/validation-service/internal/jobs"
	"github.com/tabval/validation-service/internal/pipeline"
	"github.com/tabval/validation-service/internal/service"
	"github.com/tabval/validation-service/internal/storage"
	"github.com/tabval/validation-service/internal/store"
	"github.com/tabval/validation-service/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the validation api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting validation service")
		defer zap.S().Info("Validation service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		pool, err := newPgxPool(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("creating pgx pool", "error", err)
		}
		defer pool.Close()

		objectStore, err := storage.NewObjectStore(
			storage.WithEndpoint(cfg.S3.Endpoint),
			storage.WithBucket(cfg.S3.Bucket),
			storage.WithAccessKey(cfg.S3.AccessKey),
			storage.WithSecretKey(cfg.S3.SecretAccessKey),
			storage.WithOutputPrefix(cfg.S3.OutputPrefix),
			storage.WithSSL(cfg.S3.UseSSL),
		)
		if err != nil {
			zap.S().Fatalw("creating object store", "error", err)
		}

		producer := newEventProducer(cfg)
		defer func() { _ = producer.Close() }()

		registry := pipeline.NewJobRegistry()
		worker := jobs.NewValidationWorker(s, objectStore, producer, registry, cfg)

		client, err := jobs.NewClient(ctx, pool, worker)
		if err != nil {
			zap.S().Fatalw("creating river client", "error", err)
		}
		if err := client.Start(ctx); err != nil {
			zap.S().Fatalw("starting river client", "error", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			if err := client.Stop(stopCtx); err != nil {
				zap.S().Warnw("failed to stop river client", "error", err)
			}
		}()

		handler := handlers.NewServiceHandler(
			service.NewJobService(s, objectStore, client, registry),
			service.NewRuleSetService(s),
		)

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, listener, handler)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running api server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating metrics listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

func newPgxPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%s dbname=%s",
		cfg.Database.Hostname,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Port,
		cfg.Database.Name,
	)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}

	// Connection pool sized for job processing plus LISTEN/NOTIFY
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 5
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

func newEventProducer(cfg *config.Config) *events.EventProducer {
	opts := []events.ProducerOptions{
		events.WithQueueCapacity(cfg.Service.Kafka.QueueCapacity),
	}
	if cfg.Service.Kafka.Topic != "" {
		opts = append(opts, events.WithOutputTopic(cfg.Service.Kafka.Topic))
	}

	if len(cfg.Service.Kafka.Brokers) > 0 {
		writer, err := events.NewKafkaWriter(cfg.Service.Kafka.Brokers, cfg.Service.Kafka.ClientID)
		if err == nil {
			zap.S().Infow("publishing events to kafka", "brokers", cfg.Service.Kafka.Brokers)
			return events.NewEventProducer(writer, opts...)
		}
		zap.S().Errorw("failed to create kafka writer, falling back to stdout", "error", err)
	}

	return events.NewEventProducer(&events.StdoutWriter{}, opts...)
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
