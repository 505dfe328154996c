/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

const (
	DESC = "desc"
	ASC  = "asc"

	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
)

// Asset / Job lifecycle phases. Transitions are monotone except the explicit
// re-process path done -> processing.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

const (
	KindMedia    = "media"
	KindJson     = "json"
	KindDocument = "document"
)

const (
	JobTypeMedia = "media"
	JobTypeJson  = "json"
)

const (
	SchemaProvisional = "provisional"
	SchemaActive      = "active"
	SchemaRejected    = "rejected"
)

const (
	StorageChoiceSQL   = "sql"
	StorageChoiceJSONB = "jsonb"
)

// RawAsset is the immutable record of an uploaded byte stream. Rows are never
// updated after insert.
type RawAsset struct {
	Id          string         `db:"id"`
	RequestId   string         `db:"request_id"`
	PartId      string         `db:"part_id"`
	Uri         string         `db:"uri"`
	SizeBytes   int64          `db:"size_bytes"`
	ContentType sql.NullString `db:"content_type"`
	CreatedAt   pq.NullTime    `db:"created_at"`
}

func GetRawAssetFieldTags() map[string]string {
	a := RawAsset{}
	return getFieldTags(a)
}

// Asset is the canonical post-processing handle to a unit of ingested content.
type Asset struct {
	Id            string          `db:"id"`
	Kind          string          `db:"kind"`
	Uri           string          `db:"uri"`
	Sha256        sql.NullString  `db:"sha256"`
	ContentType   sql.NullString  `db:"content_type"`
	SizeBytes     int64           `db:"size_bytes"`
	Owner         sql.NullString  `db:"owner"`
	Status        string          `db:"status"`
	ClusterId     sql.NullString  `db:"cluster_id"`
	Tags          sql.NullString  `db:"tags"`
	Embedding     pq.Float64Array `db:"embedding"`
	SchemaId      sql.NullString  `db:"schema_id"`
	RawAssetId    sql.NullString  `db:"raw_asset_id"`
	ParentAssetId sql.NullString  `db:"parent_asset_id"`
	Metadata      sql.NullString  `db:"metadata"`
	CreatedAt     pq.NullTime     `db:"created_at"`
	UpdatedAt     pq.NullTime     `db:"updated_at"`
}

func GetAssetFieldTags() map[string]string {
	a := Asset{}
	return getFieldTags(a)
}

// Job is a unit of background work mirrored in the queue. RequestId is the
// idempotency key and carries a unique index.
type Job struct {
	Id           string         `db:"id"`
	RequestId    string         `db:"request_id"`
	JobType      string         `db:"job_type"`
	Status       string         `db:"status"`
	JobData      []byte         `db:"job_data"`
	RetryCount   int            `db:"retry_count"`
	MaxRetries   int            `db:"max_retries"`
	NextRetryAt  pq.NullTime    `db:"next_retry_at"`
	DeadLetter   bool           `db:"dead_letter"`
	ErrorMessage sql.NullString `db:"error_message"`
	AssetIds     pq.StringArray `db:"asset_ids"`
	CreatedAt    pq.NullTime    `db:"created_at"`
	UpdatedAt    pq.NullTime    `db:"updated_at"`
	StartedAt    pq.NullTime    `db:"started_at"`
	CompletedAt  pq.NullTime    `db:"completed_at"`
}

func GetJobFieldTags() map[string]string {
	j := Job{}
	return getFieldTags(j)
}

// SchemaDef is a storage plan for a family of JSON documents, identified by
// the structural fingerprint of their flattened field set.
type SchemaDef struct {
	Id             string         `db:"id"`
	Name           string         `db:"name"`
	StructureHash  string         `db:"structure_hash"`
	StorageChoice  string         `db:"storage_choice"`
	Version        int            `db:"version"`
	DDL            sql.NullString `db:"ddl"`
	Status         string         `db:"status"`
	SampleSize     int            `db:"sample_size"`
	FieldStability float64        `db:"field_stability"`
	MaxDepth       int            `db:"max_depth"`
	TopLevelKeys   int            `db:"top_level_keys"`
	DecisionReason sql.NullString `db:"decision_reason"`
	ReviewedBy     sql.NullString `db:"reviewed_by"`
	ReviewedAt     pq.NullTime    `db:"reviewed_at"`
	CreatedAt      pq.NullTime    `db:"created_at"`
	UpdatedAt      pq.NullTime    `db:"updated_at"`
}

func GetSchemaDefFieldTags() map[string]string {
	s := SchemaDef{}
	return getFieldTags(s)
}

// Cluster is a centroid of media embeddings. The centroid stays a unit vector
// after every incremental update.
type Cluster struct {
	Id          string          `db:"id"`
	Name        string          `db:"name"`
	Centroid    pq.Float64Array `db:"centroid"`
	Threshold   float64         `db:"threshold"`
	Provisional bool            `db:"provisional"`
	Metadata    sql.NullString  `db:"metadata"`
	CreatedAt   pq.NullTime     `db:"created_at"`
	UpdatedAt   pq.NullTime     `db:"updated_at"`
}

func GetClusterFieldTags() map[string]string {
	c := Cluster{}
	return getFieldTags(c)
}

// Lineage is an append-only audit record keyed by request/asset/schema.
type Lineage struct {
	Id           int64          `db:"id"`
	RequestId    string         `db:"request_id"`
	AssetId      sql.NullString `db:"asset_id"`
	SchemaId     sql.NullString `db:"schema_id"`
	Stage        string         `db:"stage"`
	Detail       sql.NullString `db:"detail"`
	Success      bool           `db:"success"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    pq.NullTime    `db:"created_at"`
}

func GetLineageFieldTags() map[string]string {
	l := Lineage{}
	return getFieldTags(l)
}

// getFieldTags retrieves FieldTags for internal use.
func getFieldTags(obj interface{}) map[string]string {
	result := make(map[string]string)
	t := reflect.TypeOf(obj)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		result[strings.ToLower(field.Name)] = field.Tag.Get("db")
	}
	return result
}

// generateCommand generates an SQL command string using reflection.
// Iterates through struct fields and builds column and value lists,
// skipping fields with the specified ignoreTag.
func generateCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}

// GetFieldTag returns the FieldTag value.
func GetFieldTag(tags map[string]string, name string) string {
	name = strings.ToLower(name)
	return tags[name]
}
