package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/mapping"
	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/schema"
)

// Store writes migrated rows into a relational database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database handle.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects to the database named by dsn, see ParseDSN for the accepted forms.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, dialect, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if dialect.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	return New(db, dialect), nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// BulkInsert inserts all rows into the model's table inside one transaction.
// Rows are grouped by the attributes they carry so a column a row lacks is
// left to the table default. Each group is split over as many multi-row
// INSERT statements as the dialect's bind parameter limit requires.
func (s *Store) BulkInsert(ctx context.Context, model *schema.Model, rows []mapping.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, g := range groupRows(model, rows) {
		if err := s.insertGroup(ctx, tx, model.Table, g); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert into %s: %w", model.Table, err)
	}
	return nil
}

// rowGroup is a set of rows carrying exactly the same attributes.
type rowGroup struct {
	attrs []schema.Attribute
	rows  []mapping.Row
}

// groupRows splits rows by the attributes they carry, in order of first
// appearance. Attributes follow the model's order.
func groupRows(model *schema.Model, rows []mapping.Row) []*rowGroup {
	var groups []*rowGroup
	index := make(map[string]*rowGroup)
	for _, row := range rows {
		var (
			attrs []schema.Attribute
			key   strings.Builder
		)
		for _, a := range model.Attributes {
			if _, ok := row[a.Name]; ok {
				attrs = append(attrs, a)
				key.WriteString(a.Name)
				key.WriteByte(0)
			}
		}

		g, ok := index[key.String()]
		if !ok {
			g = &rowGroup{attrs: attrs}
			index[key.String()] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
	}
	return groups
}

func (s *Store) insertGroup(ctx context.Context, tx *sql.Tx, table string, g *rowGroup) error {
	if len(g.attrs) == 0 {
		query := s.dialect.DefaultValues(table)
		for range g.rows {
			if _, err := tx.ExecContext(ctx, query); err != nil {
				return fmt.Errorf("failed to insert rows into %s: %w", table, err)
			}
		}
		return nil
	}

	perStatement := max(1, s.dialect.MaxParams/len(g.attrs))
	for start := 0; start < len(g.rows); start += perStatement {
		end := min(start+perStatement, len(g.rows))
		query, args, err := s.insertStatement(table, g.attrs, g.rows[start:end])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert rows into %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) insertStatement(table string, attrs []schema.Attribute, rows []mapping.Row) (string, []any, error) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.dialect.Quote(table))
	b.WriteString(" (")
	for i, a := range attrs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(s.dialect.Quote(a.Column))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(attrs))
	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for i, a := range attrs {
			if i > 0 {
				b.WriteString(", ")
			}
			v, err := sqlValue(row[a.Name])
			if err != nil {
				return "", nil, fmt.Errorf("field %s of %s: %w", a.Name, table, err)
			}
			args = append(args, v)
			b.WriteString(s.dialect.Placeholder(len(args)))
		}
		b.WriteString(")")
	}
	return b.String(), args, nil
}

// sqlValue converts a row value into something database/sql accepts.
// Documents and arrays are stored as JSON text.
func sqlValue(v any) (any, error) {
	switch x := mapping.Normalize(v).(type) {
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return x, nil
	}
}
