package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/docstore"
	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/mapping"
	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/migrator"
	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/schema"
	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/sqlstore"
)

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	conf, err := readConfig(os.Getenv(ENV_CONFIG_FILE_PATH))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config file: %v\n", err)
		os.Exit(1)
	}
	initLogger(conf, opts.Verbose)
	slog.SetDefault(slog.Default().With(slog.String("run_id", uuid.NewString())))

	if err := run(context.Background(), opts, conf); err != nil {
		slog.Error("Migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, conf config) error {
	slog.Info("Start migration job")
	start := time.Now()

	slog.Debug("Connection settings", slog.String("mongo", opts.MongoURI), slog.String("sql", opts.SQLDSN))

	// Everything that can be checked without a connection is checked first.
	file, err := mapping.LoadFile(opts.MappingFile)
	if err != nil {
		return err
	}

	modelsFile := opts.ModelsFile
	if modelsFile == "" {
		modelsFile = conf.ModelsFile
	}
	registry := schema.NewRegistry()
	if modelsFile != "" {
		models, err := schema.LoadModels(modelsFile)
		if err != nil {
			return err
		}
		for _, m := range models {
			registry.Add(m)
		}
	}

	sqlDB, err := sqlstore.Open(ctx, opts.SQLDSN)
	if err != nil {
		return fmt.Errorf("%w: %w", migrator.ErrStore, err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Error closing destination database", slog.String("error", err.Error()))
		}
	}()

	if err := introspectMissing(ctx, sqlDB, registry, file); err != nil {
		return err
	}

	mongoDB, err := docstore.Connect(ctx, opts.MongoURI, docstore.WithMarkerField(conf.MarkerField))
	if err != nil {
		return fmt.Errorf("%w: %w", migrator.ErrStore, err)
	}
	defer func() {
		if err := mongoDB.Close(context.Background()); err != nil {
			slog.Error("Error closing source database", slog.String("error", err.Error()))
		}
	}()

	m := migrator.New(mongoDB, sqlDB, registry, migrator.WithBatchSize(conf.BatchSize))
	summary, err := m.Run(ctx, file)
	if err != nil {
		return err
	}

	slog.Info("Migration job completed",
		slog.Int("tables", len(summary.Results)),
		slog.Int("total_migrated", summary.Migrated),
		slog.String("duration", time.Since(start).String()))
	return nil
}

// introspectMissing reads the catalog for tables the models file does not describe.
func introspectMissing(ctx context.Context, store *sqlstore.Store, registry *schema.Registry, file *mapping.File) error {
	var missing []string
	seen := map[string]bool{}
	for _, t := range file.Tables() {
		if registry.Has(t.Table) || seen[t.Table] {
			continue
		}
		seen[t.Table] = true
		missing = append(missing, t.Table)
	}
	if len(missing) == 0 {
		return nil
	}

	models, err := store.Introspect(ctx, missing...)
	if err != nil {
		if errors.Is(err, schema.ErrModelNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", migrator.ErrStore, err)
	}
	for _, m := range models {
		registry.Add(m)
	}
	return nil
}
