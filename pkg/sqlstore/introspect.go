package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/schema"
)

func (s *Store) columnsQuery() string {
	switch s.dialect.Driver {
	case DriverPostgres:
		return `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position
	`
	case DriverMySQL:
		return `
		SELECT column_name, column_type
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`
	default:
		return `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`
	}
}

// Introspect builds models for the given tables from the database catalog.
// Attribute names equal column names.
// Returns schema.ErrModelNotFound for a table without columns.
func (s *Store) Introspect(ctx context.Context, tables ...string) ([]*schema.Model, error) {
	models := make([]*schema.Model, 0, len(tables))
	for _, table := range tables {
		m, err := s.introspectTable(ctx, table)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func (s *Store) introspectTable(ctx context.Context, table string) (*schema.Model, error) {
	rows, err := s.db.QueryContext(ctx, s.columnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	m := &schema.Model{Name: table, Table: table}
	for rows.Next() {
		var name, dbType string
		if err := rows.Scan(&name, &dbType); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		m.Attributes = append(m.Attributes, schema.Attribute{
			Name:   name,
			Column: name,
			Type:   attributeType(dbType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	if len(m.Attributes) == 0 {
		return nil, fmt.Errorf("%w: tableName=%s", schema.ErrModelNotFound, table)
	}
	return m, nil
}

// attributeType maps a catalog column type onto a model attribute type.
func attributeType(dbType string) string {
	t := strings.ToLower(strings.TrimSpace(dbType))
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "bool"), t == "tinyint(1)", t == "bit(1)":
		return schema.TypeBoolean
	case strings.HasSuffix(t, "[]"), t == "array":
		return schema.TypeArray
	case strings.Contains(t, "json"):
		return schema.TypeJSON
	case strings.Contains(t, "timestamp"), strings.HasPrefix(t, "date"), strings.HasPrefix(t, "time"):
		return schema.TypeDatetime
	case strings.Contains(t, "int"):
		return schema.TypeInteger
	case strings.Contains(t, "char"), strings.Contains(t, "text"), strings.Contains(t, "clob"), t == "uuid":
		return schema.TypeString
	case strings.Contains(t, "real"), strings.Contains(t, "floa"), strings.Contains(t, "doub"),
		strings.HasPrefix(t, "numeric"), strings.HasPrefix(t, "decimal"):
		return schema.TypeFloat
	case strings.Contains(t, "blob"), strings.Contains(t, "binary"), t == "bytea":
		return schema.TypeBinary
	}
	return t
}
