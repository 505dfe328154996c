/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package schema

import (
	"fmt"
	"sort"
	"strings"
)

// reservedColumns are SQL keywords that cannot serve as bare column names.
var reservedColumns = map[string]bool{
	"user": true, "group": true, "order": true, "table": true,
	"select": true, "from": true, "where": true, "index": true,
	"primary": true, "column": true, "grant": true, "check": true,
	"default": true, "desc": true, "asc": true, "limit": true,
	"offset": true, "references": true, "constraint": true,
}

// SanitizeColumnName applies the identifier rules plus keyword reservation.
// Idempotent: a reserved word gets a _col suffix once; the suffixed form is
// no longer reserved.
func SanitizeColumnName(raw string) string {
	name := SanitizeIdentifier(raw)
	if name == "" {
		return ""
	}
	if reservedColumns[name] {
		name += "_col"
	}
	return name
}

type column struct {
	name    string
	sqlType string
	notNull bool
	indexed bool
	gin     bool
	jsonb   bool
}

// GenerateDDL renders the CREATE TABLE and index statements for a decision.
// Output is deterministic: columns sort by source path and the statement
// string is byte-identical across calls for equal decisions.
func GenerateDDL(decision *Decision, tableName string) string {
	if decision.StorageChoice == ChoiceJSONB {
		return generateCollectionDDL(tableName)
	}
	return generateTableDDL(decision, tableName)
}

func generateCollectionDDL(tableName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", tableName)
	sb.WriteString("    id UUID PRIMARY KEY,\n")
	sb.WriteString("    doc JSONB NOT NULL,\n")
	sb.WriteString("    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	sb.WriteString("    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()\n")
	sb.WriteString(");\n")
	fmt.Fprintf(&sb, "CREATE INDEX IF NOT EXISTS idx_%s_doc ON %s USING GIN (doc);\n", tableName, tableName)
	return sb.String()
}

func generateTableDDL(decision *Decision, tableName string) string {
	columns := projectColumns(decision)
	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE IF NOT EXISTS %s (\n", tableName)
	sb.WriteString("    id UUID PRIMARY KEY,\n")
	for _, col := range columns {
		fmt.Fprintf(&sb, "    %s %s", col.name, col.sqlType)
		if col.notNull {
			sb.WriteString(" NOT NULL")
		}
		sb.WriteString(",\n")
	}
	sb.WriteString("    extra JSONB,\n")
	sb.WriteString("    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),\n")
	sb.WriteString("    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()\n")
	sb.WriteString(");\n")
	for _, col := range columns {
		if !col.indexed {
			continue
		}
		if col.gin {
			fmt.Fprintf(&sb, "CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s USING GIN (%s);\n",
				tableName, col.name, tableName, col.name)
		} else {
			fmt.Fprintf(&sb, "CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s);\n",
				tableName, col.name, tableName, col.name)
		}
	}
	fmt.Fprintf(&sb, "CREATE INDEX IF NOT EXISTS idx_%s_extra ON %s USING GIN (extra);\n", tableName, tableName)
	return sb.String()
}

// projectColumns maps top-level fields to typed columns. Nested paths and
// array-of-objects markers are skipped; they land in the extra column.
func projectColumns(decision *Decision) []column {
	summary := decision.Summary
	paths := make([]string, 0, len(summary.Fields))
	for path := range summary.Fields {
		if strings.Contains(path, ".") || strings.HasSuffix(path, ArrayOfObjectsMarker) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	used := map[string]bool{"id": true, "extra": true, "created_at": true, "updated_at": true}
	columns := make([]column, 0, len(paths))
	for _, path := range paths {
		stat := summary.Fields[path]
		name := SanitizeColumnName(path)
		if name == "" {
			continue
		}
		name = dedupName(used, name)
		col := column{name: name}
		col.sqlType, col.jsonb = columnType(stat)
		presence := float64(stat.Present) / float64(summary.SampleSize)
		col.notNull = presence >= 0.95 && stat.Nulls == 0
		col.indexed = shouldIndex(name, stat, presence)
		col.gin = col.jsonb
		columns = append(columns, col)
	}
	return columns
}

func dedupName(used map[string]bool, name string) string {
	if !used[name] {
		used[name] = true
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

// columnType walks the typing ladder for the dominant type. The second result
// reports a JSONB column.
func columnType(stat *FieldStat) (string, bool) {
	switch stat.DominantType() {
	case TypeBoolean:
		return "BOOLEAN", false
	case TypeInteger:
		return "BIGINT", false
	case TypeFloat:
		return "DOUBLE PRECISION", false
	case TypeString:
		switch {
		case stat.MaxStringLen > 0 && stat.MaxStringLen <= 255:
			return fmt.Sprintf("VARCHAR(%d)", stat.MaxStringLen), false
		case stat.MaxStringLen > 255 && stat.MaxStringLen <= 1000:
			return "VARCHAR(1000)", false
		default:
			return "TEXT", false
		}
	case TypeArray, TypeObject:
		return "JSONB", true
	default:
		// null-only placeholder
		return "TEXT", false
	}
}

func shouldIndex(name string, stat *FieldStat, presence float64) bool {
	if strings.HasSuffix(name, "_id") || strings.HasSuffix(name, "_key") || strings.Contains(name, "id") {
		return true
	}
	dominant := stat.DominantType()
	if presence > 0.8 && stat.TypeStability() > 0.9 &&
		(dominant == TypeInteger || dominant == TypeString) {
		return true
	}
	return false
}
