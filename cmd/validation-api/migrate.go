package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tabval/validation-service/internal/config"
	"github.com/tabval/validation-service/internal/store"
	"github.com/tabval/validation-service/pkg/log"
	"github.com/tabval/validation-service/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
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

		zap.S().Info("Migrating the db")
		defer zap.S().Info("Db migrated")

		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool, err := newPgxPool(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("creating pgx pool", "error", err)
		}
		defer pool.Close()

		if cfg.Service.MigrationFolder != "" {
			if err := migrations.MigrateStore(db, cfg.Service.MigrationFolder, pool); err != nil {
				zap.S().Fatalw("running migrations", "error", err)
			}
			return nil
		}

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}
		if err := migrations.MigrateRiver(pool); err != nil {
			zap.S().Fatalw("running river migrations", "error", err)
		}

		return nil
	},
}
