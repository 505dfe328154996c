/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package schema

import (
	"fmt"
	"strings"
	"unicode"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
)

const (
	ChoiceSQL   = "sql"
	ChoiceJSONB = "jsonb"
)

// DeciderConfig carries the thresholds the decision rules compare against.
type DeciderConfig struct {
	MaxTopLevelKeys    int
	MaxDepth           int
	StabilityThreshold float64
	SQLScoreThreshold  float64
}

func DefaultDeciderConfig() DeciderConfig {
	return DeciderConfig{
		MaxTopLevelKeys:    commonconfig.GetSchemaMaxTopLevelKeys(),
		MaxDepth:           commonconfig.GetSchemaMaxDepth(),
		StabilityThreshold: commonconfig.GetSchemaStabilityThreshold(),
		SQLScoreThreshold:  commonconfig.GetSchemaSQLScoreThreshold(),
	}
}

// Decision is the storage plan derived from an analyzer summary. Reasons keep
// the ordered rule trace for review.
type Decision struct {
	StorageChoice string
	Confidence    float64
	Score         float64
	Reasons       []string
	StructureHash string
	Summary       *Summary
}

// Decide scores the summary against the SQL-suitability rules. Hard vetoes
// force JSONB regardless of score.
func Decide(summary *Summary, cfg DeciderConfig) *Decision {
	decision := &Decision{
		StructureHash: summary.StructureHash,
		Summary:       summary,
	}

	// vetoes first, highest confidence wins
	if summary.HasArrayOfObjects {
		decision.StorageChoice = ChoiceJSONB
		decision.Confidence = 0.95
		decision.Reasons = append(decision.Reasons, "✗ arrays of objects present, relational projection would lose structure")
		return decision
	}
	if summary.TopLevelKeys > cfg.MaxTopLevelKeys {
		decision.StorageChoice = ChoiceJSONB
		decision.Confidence = 0.90
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("✗ %d top-level keys exceed the limit of %d", summary.TopLevelKeys, cfg.MaxTopLevelKeys))
		return decision
	}
	if summary.MaxObservedDepth > cfg.MaxDepth {
		decision.StorageChoice = ChoiceJSONB
		decision.Confidence = 0.90
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("✗ nesting depth %d exceeds the limit of %d", summary.MaxObservedDepth, cfg.MaxDepth))
		return decision
	}

	score := 0.0
	rule := func(ok bool, award float64, what string) {
		if ok {
			score += award
			decision.Reasons = append(decision.Reasons, fmt.Sprintf("✓ %s (+%.2f)", what, award))
		} else {
			decision.Reasons = append(decision.Reasons, fmt.Sprintf("✗ %s", what))
		}
	}
	rule(summary.TopLevelKeys <= cfg.MaxTopLevelKeys, 0.25,
		fmt.Sprintf("top-level keys %d within limit %d", summary.TopLevelKeys, cfg.MaxTopLevelKeys))
	rule(summary.MaxObservedDepth <= cfg.MaxDepth, 0.25,
		fmt.Sprintf("depth %d within limit %d", summary.MaxObservedDepth, cfg.MaxDepth))
	rule(summary.FieldStability >= cfg.StabilityThreshold, 0.25,
		fmt.Sprintf("field stability %.2f meets threshold %.2f", summary.FieldStability, cfg.StabilityThreshold))
	rule(summary.TypeStability >= 0.9, 0.15,
		fmt.Sprintf("type stability %.2f meets threshold 0.90", summary.TypeStability))
	rule(!summary.HasArrayOfObjects, 0.10, "no arrays of objects")

	decision.Score = score
	if score >= cfg.SQLScoreThreshold {
		decision.StorageChoice = ChoiceSQL
		decision.Confidence = score
	} else {
		decision.StorageChoice = ChoiceJSONB
		decision.Confidence = 1 - score
	}
	return decision
}

// GenerateCollectionName sanitizes a user hint into a legal identifier, or
// derives a hash-based fallback when the hint is unusable.
func GenerateCollectionName(decision *Decision, hint string) string {
	if name := SanitizeIdentifier(hint); name != "" {
		return name
	}
	hash8 := decision.StructureHash
	if len(hash8) > 8 {
		hash8 = hash8[:8]
	}
	if decision.StorageChoice == ChoiceSQL {
		return "table_" + hash8
	}
	return "docs_" + hash8
}

// SanitizeIdentifier lowercases, replaces non-alphanumerics with underscores
// and forces the first character to be a letter or underscore. The function
// is idempotent. An empty or all-symbol input returns "".
func SanitizeIdentifier(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	var sb strings.Builder
	for _, r := range raw {
		if unicode.IsLower(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	if strings.Trim(name, "_") == "" {
		return ""
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	return name
}
