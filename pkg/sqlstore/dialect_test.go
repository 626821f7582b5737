package sqlstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		dsn        string
		driver     string
		dataSource string
	}{
		{"postgres://user:pw@localhost/dest_db", DriverPostgres, "postgres://user:pw@localhost/dest_db"},
		{"postgresql://localhost/dest_db?sslmode=disable", DriverPostgres, "postgresql://localhost/dest_db?sslmode=disable"},
		{"sqlite://./dest.db", DriverSQLite, "./dest.db"},
		{"sqlite3://:memory:", DriverSQLite, ":memory:"},
		{"file:dest.db?cache=shared", DriverSQLite, "file:dest.db?cache=shared"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			driver, dataSource, dialect, err := ParseDSN(tt.dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dataSource, dataSource)
			assert.Equal(t, tt.driver, dialect.Driver)
		})
	}

	t.Run("mysql", func(t *testing.T) {
		driver, dataSource, _, err := ParseDSN("mysql://user:pw@tcp(localhost:3306)/dest_db")
		require.NoError(t, err)
		assert.Equal(t, DriverMySQL, driver)
		assert.True(t, strings.HasPrefix(dataSource, "user:pw@tcp(localhost:3306)/dest_db?"))
		assert.Contains(t, dataSource, "parseTime=true")
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, _, _, err := ParseDSN("oracle://localhost/db")
		assert.ErrorIs(t, err, ErrUnsupportedDSN)
	})

	t.Run("no scheme", func(t *testing.T) {
		_, _, _, err := ParseDSN("localhost")
		assert.ErrorIs(t, err, ErrUnsupportedDSN)
	})
}

func TestDialect(t *testing.T) {
	assert.Equal(t, "$3", postgresDialect.Placeholder(3))
	assert.Equal(t, `"user"`, postgresDialect.Quote("user"))
	assert.Equal(t, `INSERT INTO "note" DEFAULT VALUES`, postgresDialect.DefaultValues("note"))

	assert.Equal(t, "?", mysqlDialect.Placeholder(3))
	assert.Equal(t, "`order`", mysqlDialect.Quote("order"))
	assert.Equal(t, "INSERT INTO `note` () VALUES ()", mysqlDialect.DefaultValues("note"))

	assert.Equal(t, "?", sqliteDialect.Placeholder(1))
	assert.Equal(t, `"we""ird"`, sqliteDialect.Quote(`we"ird`))
	assert.Equal(t, `INSERT INTO "note" DEFAULT VALUES`, sqliteDialect.DefaultValues("note"))
}

func TestAttributeType(t *testing.T) {
	assert.Equal(t, "boolean", attributeType("boolean"))
	assert.Equal(t, "boolean", attributeType("BOOLEAN"))
	assert.Equal(t, "boolean", attributeType("tinyint(1)"))
	assert.Equal(t, "integer", attributeType("bigint"))
	assert.Equal(t, "string", attributeType("character varying"))
	assert.Equal(t, "json", attributeType("jsonb"))
	assert.Equal(t, "datetime", attributeType("timestamp with time zone"))
	assert.Equal(t, "array", attributeType("text[]"))
	assert.Equal(t, "float", attributeType("double precision"))
	assert.Equal(t, "binary", attributeType("bytea"))
	assert.Equal(t, "", attributeType(""))
}
