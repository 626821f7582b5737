package migrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/mapping"
	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/schema"
)

// DefaultBatchSize is the number of documents read, inserted and marked per page.
const DefaultBatchSize = 1000

// ErrStore indicates a failure of the source or destination store.
var ErrStore = errors.New("store operation failed")

// Source is the document store documents are migrated from.
type Source interface {
	// FindUnmigrated returns up to limit documents of collection whose migration
	// marker is not set, restricted to the projected fields.
	FindUnmigrated(ctx context.Context, collection string, projection []string, limit int) ([]map[string]any, error)
	// MarkMigrated sets the migration marker on the documents with the given ids.
	MarkMigrated(ctx context.Context, collection string, ids []any) error
}

// Sink is the relational store rows are written to.
type Sink interface {
	BulkInsert(ctx context.Context, model *schema.Model, rows []mapping.Row) error
}

// Result reports the migration of one table.
type Result struct {
	Group      string
	Collection string
	Table      string
	Migrated   int
	Batches    int
	Duration   time.Duration
}

// Summary reports a whole run: the results of the tables completed, in file
// order, and the total number of migrated documents.
type Summary struct {
	Results  []Result
	Migrated int
	Duration time.Duration
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	s.Migrated += r.Migrated
}

// Migrator copies unmigrated documents into destination tables page by page.
type Migrator struct {
	source    Source
	sink      Sink
	models    *schema.Registry
	batchSize int
	logger    *slog.Logger
}

type Option func(*Migrator)

// WithBatchSize overrides DefaultBatchSize. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(m *Migrator) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithLogger sets the logger used for progress output. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

func New(source Source, sink Sink, models *schema.Registry, opts ...Option) *Migrator {
	m := &Migrator{
		source:    source,
		sink:      sink,
		models:    models,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MigrateTable moves every unmigrated document of the table's collection into
// the destination table. Each page is inserted before its documents are
// marked, so a failure between the two steps leaves the page unmarked.
func (m *Migrator) MigrateTable(ctx context.Context, table mapping.TableMapping) (Result, error) {
	result := Result{Group: table.Group, Collection: table.Collection, Table: table.Table}
	log := m.logger.With(slog.String("collection", table.Collection), slog.String("table", table.Table))

	model, err := m.models.Lookup(table.Table)
	if err != nil {
		return result, err
	}
	fields, err := mapping.Build(model, table.Columns)
	if err != nil {
		return result, fmt.Errorf("collection %s: %w", table.Collection, err)
	}

	if log.Enabled(ctx, slog.LevelDebug) {
		for _, source := range fields.Sources() {
			column, _ := fields.ColumnFor(source)
			attr, _ := fields.FieldFor(column)
			log.Debug(fmt.Sprintf("%s=>%s(sql: %s)", source, attr.Name, column),
				slog.String("coercion", fields.CoercionFor(column).String()))
		}
	}
	projection := fields.Projection()
	log.Debug("Query projection", slog.Any("projection", projection))

	start := time.Now()
	for {
		batchStart := time.Now()
		docs, err := m.source.FindUnmigrated(ctx, table.Collection, projection, m.batchSize)
		if err != nil {
			return result, fmt.Errorf("%w: %w", ErrStore, err)
		}
		if len(docs) == 0 {
			break
		}

		rows := make([]mapping.Row, 0, len(docs))
		ids := make([]any, 0, len(docs))
		for _, doc := range docs {
			row, err := fields.Transform(doc)
			if err != nil {
				return result, fmt.Errorf("collection %s: %w", table.Collection, err)
			}
			if log.Enabled(ctx, slog.LevelDebug) {
				log.Debug("Transformed row", slog.String("row", formatRow(row)))
			}
			rows = append(rows, row)
			ids = append(ids, doc[mapping.IDField])
		}

		if err := m.sink.BulkInsert(ctx, model, rows); err != nil {
			return result, fmt.Errorf("%w: %w", ErrStore, err)
		}
		if err := m.source.MarkMigrated(ctx, table.Collection, ids); err != nil {
			return result, fmt.Errorf("%w: %w", ErrStore, err)
		}

		result.Batches++
		result.Migrated += len(docs)
		log.Info("Batch migrated",
			slog.Int("batch", result.Batches),
			slog.Int("size", len(docs)),
			slog.Int("migrated", result.Migrated),
			slog.String("duration", time.Since(batchStart).String()),
		)
	}
	result.Duration = time.Since(start)

	log.Info("Records migrated",
		slog.Int("count", result.Migrated),
		slog.String("duration", result.Duration.String()),
	)
	return result, nil
}

// Run migrates every table of the mapping file in file order and stops at the
// first failure. The summary of the tables completed so far is returned with it.
func (m *Migrator) Run(ctx context.Context, file *mapping.File) (Summary, error) {
	var summary Summary
	start := time.Now()
	for _, group := range file.Groups {
		m.logger.Info("Processing group", slog.String("group", group.Label))
		for _, table := range group.Tables {
			m.logger.Info(fmt.Sprintf("Processing %s => %s", table.Collection, table.Table))
			res, err := m.MigrateTable(ctx, table)
			if err != nil {
				summary.Duration = time.Since(start)
				return summary, fmt.Errorf("migrating %s => %s: %w", table.Collection, table.Table, err)
			}
			summary.add(res)
		}
	}
	summary.Duration = time.Since(start)
	return summary, nil
}

func formatRow(row mapping.Row) string {
	normalized := make(map[string]any, len(row))
	for k, v := range row {
		normalized[k] = mapping.Normalize(v)
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Sprint(row)
	}
	return string(b)
}
