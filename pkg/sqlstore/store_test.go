package sqlstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/mapping"
	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.DB().Exec(`CREATE TABLE person (
		id TEXT PRIMARY KEY,
		name TEXT,
		is_active BOOLEAN,
		age INTEGER,
		data TEXT
	)`)
	require.NoError(t, err)
	return s
}

func personModel() *schema.Model {
	return &schema.Model{
		Name:  "Person",
		Table: "person",
		Attributes: []schema.Attribute{
			{Name: "id", Column: "id", Type: schema.TypeString},
			{Name: "name", Column: "name", Type: schema.TypeString},
			{Name: "isActive", Column: "is_active", Type: schema.TypeBoolean},
			{Name: "age", Column: "age", Type: schema.TypeInteger},
			{Name: "data", Column: "data", Type: schema.TypeJSON},
		},
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestBulkInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []mapping.Row{
		{"id": "a", "name": "Ada", "isActive": true, "age": int32(36), "data": primitive.D{{Key: "k", Value: "v"}}},
		{"id": "b", "name": "Bob", "isActive": false},
	}
	require.NoError(t, s.BulkInsert(ctx, personModel(), rows))
	assert.Equal(t, 2, countRows(t, s.DB(), "person"))

	var (
		name   string
		active bool
		age    sql.NullInt64
		data   sql.NullString
	)
	err := s.DB().QueryRow(`SELECT name, is_active, age, data FROM person WHERE id = 'a'`).Scan(&name, &active, &age, &data)
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)
	assert.True(t, active)
	assert.Equal(t, int64(36), age.Int64)
	assert.Equal(t, `{"k":"v"}`, data.String)

	err = s.DB().QueryRow(`SELECT age, data FROM person WHERE id = 'b'`).Scan(&age, &data)
	require.NoError(t, err)
	assert.False(t, age.Valid)
	assert.False(t, data.Valid)
}

func TestBulkInsertChunksStatements(t *testing.T) {
	s := newTestStore(t)
	s.dialect.MaxParams = 4

	var rows []mapping.Row
	for i := 0; i < 7; i++ {
		rows = append(rows, mapping.Row{"id": string(rune('a' + i)), "name": "n"})
	}
	require.NoError(t, s.BulkInsert(context.Background(), personModel(), rows))
	assert.Equal(t, 7, countRows(t, s.DB(), "person"))
}

func TestBulkInsertIsAtomic(t *testing.T) {
	s := newTestStore(t)
	s.dialect.MaxParams = 2

	rows := []mapping.Row{
		{"id": "a", "name": "first"},
		{"id": "b", "name": "second"},
		{"id": "a", "name": "duplicate key"},
	}
	err := s.BulkInsert(context.Background(), personModel(), rows)
	require.Error(t, err)
	assert.Equal(t, 0, countRows(t, s.DB(), "person"))
}

func TestBulkInsertEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.BulkInsert(context.Background(), personModel(), nil))
}

func TestInsertStatement(t *testing.T) {
	s := New(nil, postgresDialect)
	attrs := personModel().Attributes[:2]

	query, args, err := s.insertStatement("person", attrs, []mapping.Row{
		{"id": "a", "name": "Ada"},
		{"id": "b", "name": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "person" ("id", "name") VALUES ($1, $2), ($3, $4)`, query)
	assert.Equal(t, []any{"a", "Ada", "b", nil}, args)
}

func TestGroupRows(t *testing.T) {
	model := personModel()
	groups := groupRows(model, []mapping.Row{
		{"name": "Ada", "id": "a"},
		{"id": "b"},
		{"id": "c", "name": "Cy"},
		{},
	})
	require.Len(t, groups, 3)

	assert.Equal(t, model.Attributes[:2], groups[0].attrs)
	assert.Len(t, groups[0].rows, 2)
	assert.Equal(t, model.Attributes[:1], groups[1].attrs)
	assert.Len(t, groups[1].rows, 1)
	assert.Empty(t, groups[2].attrs)
	assert.Len(t, groups[2].rows, 1)
}

func TestBulkInsertUsesColumnDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.DB().Exec(`CREATE TABLE task (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'open',
		owner TEXT
	)`)
	require.NoError(t, err)

	model := &schema.Model{Name: "Task", Table: "task", Attributes: []schema.Attribute{
		{Name: "id", Column: "id", Type: schema.TypeString},
		{Name: "status", Column: "status", Type: schema.TypeString},
		{Name: "owner", Column: "owner", Type: schema.TypeString},
	}}
	rows := []mapping.Row{
		{"id": "a", "status": "done", "owner": "ada"},
		{"id": "b"},
		{"id": "c", "owner": nil},
	}
	require.NoError(t, s.BulkInsert(ctx, model, rows))
	assert.Equal(t, 3, countRows(t, s.DB(), "task"))

	var status string
	var owner sql.NullString
	require.NoError(t, s.DB().QueryRow(`SELECT status, owner FROM task WHERE id = 'b'`).Scan(&status, &owner))
	assert.Equal(t, "open", status)
	assert.False(t, owner.Valid)

	require.NoError(t, s.DB().QueryRow(`SELECT status FROM task WHERE id = 'a'`).Scan(&status))
	assert.Equal(t, "done", status)
}

func TestBulkInsertRowsWithoutAttributes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.DB().Exec(`CREATE TABLE note (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT)`)
	require.NoError(t, err)

	model := &schema.Model{Name: "Note", Table: "note", Attributes: []schema.Attribute{
		{Name: "body", Column: "body", Type: schema.TypeString},
	}}
	require.NoError(t, s.BulkInsert(ctx, model, []mapping.Row{{}, {}, {"body": "hi"}}))
	assert.Equal(t, 3, countRows(t, s.DB(), "note"))

	var empty int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM note WHERE body IS NULL`).Scan(&empty))
	assert.Equal(t, 2, empty)
}

func TestIntrospect(t *testing.T) {
	s := newTestStore(t)

	models, err := s.Introspect(context.Background(), "person")
	require.NoError(t, err)
	require.Len(t, models, 1)

	m := models[0]
	assert.Equal(t, "person", m.Table)
	require.Len(t, m.Attributes, 5)
	assert.Equal(t, schema.Attribute{Name: "is_active", Column: "is_active", Type: schema.TypeBoolean}, m.Attributes[2])
	assert.Equal(t, schema.TypeInteger, m.Attributes[3].Type)

	_, err = s.Introspect(context.Background(), "nope")
	assert.ErrorIs(t, err, schema.ErrModelNotFound)
}
