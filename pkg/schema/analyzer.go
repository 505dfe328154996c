/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

// JSON value type names as observed by the analyzer.
const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeString  = "string"
	TypeArray   = "array"
	TypeObject  = "object"
)

const maxSampleValues = 10

// ArrayOfObjectsMarker is appended to a path whose value is an array whose
// first element is an object. Descent stops at the marker.
const ArrayOfObjectsMarker = "[]"

// FieldStat accumulates per-path observations across a document batch.
type FieldStat struct {
	Path         string
	Depth        int
	Present      int
	Nulls        int
	Types        map[string]int
	MaxStringLen int
	Samples      []interface{}
}

// DominantType returns the plurality type of the path. Ties break
// alphabetically so the fingerprint stays deterministic.
func (s *FieldStat) DominantType() string {
	best, bestCount := TypeNull, -1
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s.Types[name] > bestCount {
			best, bestCount = name, s.Types[name]
		}
	}
	return best
}

// TypeStability is the share of observations matching the dominant type.
func (s *FieldStat) TypeStability() float64 {
	total := 0
	for _, count := range s.Types {
		total += count
	}
	if total == 0 {
		return 0
	}
	return float64(s.Types[s.DominantType()]) / float64(total)
}

// Summary is the analyzer output consumed by the decider.
type Summary struct {
	SampleSize        int
	Fields            map[string]*FieldStat
	TopLevelKeys      int
	FieldStability    float64
	TypeStability     float64
	MaxObservedDepth  int
	HasArrayOfObjects bool
	StructureHash     string
}

// Analyzer flattens JSON documents and accumulates structural statistics.
// The analysis depth exceeds the decider's depth threshold so the decider can
// see true depth even when its own limit is shallow.
type Analyzer struct {
	sampleSize    int
	analysisDepth int
}

func NewAnalyzer() *Analyzer {
	return NewAnalyzerWithLimits(commonconfig.GetSchemaSampleSize(), commonconfig.GetSchemaMaxDepth())
}

func NewAnalyzerWithLimits(sampleSize, deciderMaxDepth int) *Analyzer {
	analysisDepth := deciderMaxDepth + 3
	if analysisDepth < 5 {
		analysisDepth = 5
	}
	return &Analyzer{sampleSize: sampleSize, analysisDepth: analysisDepth}
}

// Analyze builds the structural summary of a document batch. Batches larger
// than the sample size are sampled uniformly.
func (a *Analyzer) Analyze(docs []map[string]interface{}) (*Summary, error) {
	if len(docs) == 0 {
		return nil, commonerrors.NewWithCode(400, commonerrors.SchemaFingerprintFail, "cannot analyze an empty batch")
	}
	sample := a.sampleUniform(docs)
	summary := &Summary{
		SampleSize: len(sample),
		Fields:     make(map[string]*FieldStat),
	}
	for _, doc := range sample {
		a.flatten(doc, "", 1, summary)
	}
	a.aggregate(summary)
	summary.StructureHash = Fingerprint(summary)
	return summary, nil
}

func (a *Analyzer) sampleUniform(docs []map[string]interface{}) []map[string]interface{} {
	if a.sampleSize <= 0 || len(docs) <= a.sampleSize {
		return docs
	}
	result := make([]map[string]interface{}, 0, a.sampleSize)
	step := float64(len(docs)) / float64(a.sampleSize)
	for i := 0; i < a.sampleSize; i++ {
		result = append(result, docs[int(float64(i)*step)])
	}
	return result
}

func (a *Analyzer) flatten(obj map[string]interface{}, prefix string, depth int, summary *Summary) {
	if depth > a.analysisDepth {
		return
	}
	for key, value := range obj {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		a.record(summary, path, depth, value)
		switch v := value.(type) {
		case map[string]interface{}:
			a.flatten(v, path, depth+1, summary)
		case []interface{}:
			if len(v) > 0 {
				if _, ok := v[0].(map[string]interface{}); ok {
					// array of objects: emit the marker, never descend
					a.record(summary, path+ArrayOfObjectsMarker, depth, v)
					summary.HasArrayOfObjects = true
				}
			}
		}
	}
}

func (a *Analyzer) record(summary *Summary, path string, depth int, value interface{}) {
	stat, ok := summary.Fields[path]
	if !ok {
		stat = &FieldStat{Path: path, Depth: depth, Types: make(map[string]int)}
		summary.Fields[path] = stat
	}
	stat.Present++
	typeName := TypeOf(value)
	stat.Types[typeName]++
	if typeName == TypeNull {
		stat.Nulls++
	}
	if s, ok := value.(string); ok && len(s) > stat.MaxStringLen {
		stat.MaxStringLen = len(s)
	}
	if len(stat.Samples) < maxSampleValues {
		stat.Samples = append(stat.Samples, value)
	}
	if depth > summary.MaxObservedDepth {
		summary.MaxObservedDepth = depth
	}
}

func (a *Analyzer) aggregate(summary *Summary) {
	var topPresence, typeSum float64
	topCount, pathCount := 0, 0
	for path, stat := range summary.Fields {
		if !strings.Contains(path, ".") && !strings.HasSuffix(path, ArrayOfObjectsMarker) {
			topPresence += float64(stat.Present) / float64(summary.SampleSize)
			topCount++
		}
		typeSum += stat.TypeStability()
		pathCount++
	}
	summary.TopLevelKeys = topCount
	if topCount > 0 {
		summary.FieldStability = topPresence / float64(topCount)
	}
	if pathCount > 0 {
		summary.TypeStability = typeSum / float64(pathCount)
	}
}

// TypeOf names a decoded JSON value. Whole float64 values are integers, since
// encoding/json decodes every number to float64.
func TypeOf(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) {
			return TypeInteger
		}
		return TypeFloat
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return TypeInteger
		}
		return TypeFloat
	case string:
		return TypeString
	case []interface{}:
		return TypeArray
	case map[string]interface{}:
		return TypeObject
	default:
		return TypeString
	}
}

// Fingerprint hashes the canonical {path: dominant type} projection of a
// summary. Identical field sets with identical dominant types always produce
// the same hash, independent of values.
func Fingerprint(summary *Summary) string {
	paths := make([]string, 0, len(summary.Fields))
	for path := range summary.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	var sb strings.Builder
	sb.WriteByte('{')
	for i, path := range paths {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%q:%q", path, summary.Fields[path].DominantType()))
	}
	sb.WriteByte('}')
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
