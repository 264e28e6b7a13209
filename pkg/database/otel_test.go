package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationOf(t *testing.T) {
	tests := map[string]string{
		`SELECT * FROM "intake_drafts"`:              "db.select",
		`  insert into "intake_drafts" (...) values`: "db.insert",
		`UPDATE "intake_drafts" SET status=$1`:       "db.update",
		`DELETE FROM "client_profiles"`:              "db.delete",
		`WITH x AS (SELECT 1) SELECT * FROM x`:       "db.query",
		"":                                           "db.unknown",
	}
	for sql, want := range tests {
		assert.Equal(t, want, operationOf(sql), sql)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
