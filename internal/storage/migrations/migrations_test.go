package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `
-- first table
CREATE TABLE a (x Int64);

CREATE TABLE b (
    y String
) ENGINE = MergeTree()
ORDER BY y;
`
	stmts := splitStatements(input)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int64)", stmts[0])
	assert.Contains(t, stmts[1], "ORDER BY y")
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s fine'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://user:pw@localhost:9000/whales")
	require.NoError(t, err)
	assert.Equal(t, "whales", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedFiles(t *testing.T) {
	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, ch, 4)
	assert.Equal(t, "001_whale_events.sql", ch[0].name)

	for _, f := range ch {
		assert.NoError(t, validateNoSemicolonInStrings(f.body), f.name)
		assert.Len(t, splitStatements(f.body), 1, f.name)
	}

	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Len(t, pg, 2)
}
