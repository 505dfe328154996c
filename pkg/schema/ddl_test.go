/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package schema

import (
	"strings"
	"testing"

	"gotest.tools/assert"
)

func stableDecision(t *testing.T) *Decision {
	t.Helper()
	docs := mustDocs(t, `[
		{"id":1,"name":"A","age":30,"active":true},
		{"id":2,"name":"B","age":25,"active":false},
		{"id":3,"name":"C","age":35,"active":true},
		{"id":4,"name":"D","age":40,"active":true}
	]`)
	summary, err := NewAnalyzerWithLimits(128, 2).Analyze(docs)
	assert.NilError(t, err)
	return Decide(summary, testDeciderConfig())
}

func TestGenerateTableDDL(t *testing.T) {
	decision := stableDecision(t)
	ddl := GenerateDDL(decision, "people")
	assert.Assert(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS people (\n"))
	assert.Assert(t, strings.Contains(ddl, "id UUID PRIMARY KEY"))
	assert.Assert(t, strings.Contains(ddl, "age BIGINT NOT NULL"))
	assert.Assert(t, strings.Contains(ddl, "active BOOLEAN NOT NULL"))
	assert.Assert(t, strings.Contains(ddl, "name VARCHAR(1) NOT NULL"))
	assert.Assert(t, strings.Contains(ddl, "extra JSONB"))
	assert.Assert(t, strings.Contains(ddl, "created_at TIMESTAMPTZ"))
	assert.Assert(t, strings.Contains(ddl, "updated_at TIMESTAMPTZ"))
	// the document's own id column is deduplicated against the surrogate key
	assert.Assert(t, strings.Contains(ddl, "id_1 BIGINT NOT NULL"))
	assert.Assert(t, strings.Contains(ddl, "CREATE INDEX IF NOT EXISTS"))
	assert.Assert(t, strings.Contains(ddl, "USING GIN (extra)"))
}

func TestGenerateCollectionDDL(t *testing.T) {
	docs := mustDocs(t, `[{"user":"A","orders":[{"id":1},{"id":2}]}]`)
	summary, err := NewAnalyzerWithLimits(128, 2).Analyze(docs)
	assert.NilError(t, err)
	decision := Decide(summary, testDeciderConfig())
	assert.Equal(t, decision.StorageChoice, ChoiceJSONB)

	ddl := GenerateDDL(decision, "docs_orders")
	assert.Assert(t, strings.Contains(ddl, "doc JSONB NOT NULL"))
	assert.Assert(t, strings.Contains(ddl, "USING GIN (doc)"))
}

func TestGenerateDDLDeterministic(t *testing.T) {
	decision := stableDecision(t)
	first := GenerateDDL(decision, "people")
	for i := 0; i < 5; i++ {
		assert.Equal(t, GenerateDDL(decision, "people"), first)
	}
}

func TestColumnTypeLadder(t *testing.T) {
	cases := []struct {
		stat *FieldStat
		want string
	}{
		{&FieldStat{Types: map[string]int{TypeBoolean: 1}}, "BOOLEAN"},
		{&FieldStat{Types: map[string]int{TypeInteger: 1}}, "BIGINT"},
		{&FieldStat{Types: map[string]int{TypeFloat: 1}}, "DOUBLE PRECISION"},
		{&FieldStat{Types: map[string]int{TypeString: 1}, MaxStringLen: 100}, "VARCHAR(100)"},
		{&FieldStat{Types: map[string]int{TypeString: 1}, MaxStringLen: 255}, "VARCHAR(255)"},
		{&FieldStat{Types: map[string]int{TypeString: 1}, MaxStringLen: 500}, "VARCHAR(1000)"},
		{&FieldStat{Types: map[string]int{TypeString: 1}, MaxStringLen: 2000}, "TEXT"},
		{&FieldStat{Types: map[string]int{TypeArray: 1}}, "JSONB"},
		{&FieldStat{Types: map[string]int{TypeObject: 1}}, "JSONB"},
		{&FieldStat{Types: map[string]int{TypeNull: 1}}, "TEXT"},
	}
	for _, tc := range cases {
		got, _ := columnType(tc.stat)
		assert.Equal(t, got, tc.want)
	}
}

func TestSanitizeColumnName(t *testing.T) {
	assert.Equal(t, SanitizeColumnName("user"), "user_col")
	assert.Equal(t, SanitizeColumnName("order"), "order_col")
	assert.Equal(t, SanitizeColumnName("User Name"), "user_name")
	assert.Equal(t, SanitizeColumnName("2fa"), "_2fa")

	// idempotence
	for _, raw := range []string{"user", "group", "order", "normal"} {
		once := SanitizeColumnName(raw)
		assert.Equal(t, SanitizeColumnName(once), once)
	}
}

func TestNullableColumns(t *testing.T) {
	// optional field present in half the docs stays nullable
	docs := mustDocs(t, `[
		{"id":1,"nick":"a"},
		{"id":2},
		{"id":3,"nick":"c"},
		{"id":4}
	]`)
	summary, err := NewAnalyzerWithLimits(128, 2).Analyze(docs)
	assert.NilError(t, err)
	decision := Decide(summary, testDeciderConfig())
	ddl := GenerateDDL(decision, "t")
	assert.Assert(t, strings.Contains(ddl, "nick VARCHAR(1),\n"))
	assert.Assert(t, !strings.Contains(ddl, "nick VARCHAR(1) NOT NULL"))
}
