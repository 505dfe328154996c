/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import "time"

// JobStatusResponse is the job-status view: lifecycle state plus per-asset
// progress.
type JobStatusResponse struct {
	JobId        string            `json:"job_id"`
	RequestId    string            `json:"request_id"`
	JobType      string            `json:"job_type"`
	Status       string            `json:"status"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	DeadLetter   bool              `json:"dead_letter"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Progress     map[string]int    `json:"progress"`
	Assets       []AssetStatusInfo `json:"assets"`
	Stages       []LineageEntry    `json:"stages"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	NextRetryAt  *time.Time        `json:"next_retry_at,omitempty"`
}

// LineageEntry is one audit record of the job's request, oldest first.
type LineageEntry struct {
	Stage        string    `json:"stage"`
	AssetId      string    `json:"system_id,omitempty"`
	SchemaId     string    `json:"schema_id,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type AssetStatusInfo struct {
	AssetId string `json:"system_id"`
	Kind    string `json:"kind"`
	Status  string `json:"status"`
}

// ObjectResponse is the canonical object view: kind-agnostic fields plus the
// kind-specific section.
type ObjectResponse struct {
	AssetId     string         `json:"system_id"`
	Kind        string         `json:"kind"`
	Uri         string         `json:"uri"`
	Sha256      string         `json:"sha256,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	SizeBytes   int64          `json:"size_bytes"`
	Owner       string         `json:"owner,omitempty"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Media       *MediaDetails  `json:"media,omitempty"`
	Record      *RecordDetails `json:"record,omitempty"`
}

type MediaDetails struct {
	ClusterId  string `json:"cluster_id,omitempty"`
	RawAssetId string `json:"raw_asset_id,omitempty"`
	Tags       string `json:"tags,omitempty"`
}

type RecordDetails struct {
	SchemaId    string `json:"schema_id,omitempty"`
	StorageKind string `json:"storage_kind,omitempty"`
	Collection  string `json:"collection,omitempty"`
	RecordKey   string `json:"record_key,omitempty"`
}

type SchemaInfo struct {
	SchemaId       string     `json:"schema_id"`
	Name           string     `json:"name"`
	StructureHash  string     `json:"structure_hash"`
	StorageChoice  string     `json:"storage_choice"`
	Version        int        `json:"version"`
	Status         string     `json:"status"`
	DDL            string     `json:"ddl,omitempty"`
	SampleSize     int        `json:"sample_size"`
	FieldStability float64    `json:"field_stability"`
	MaxDepth       int        `json:"max_depth"`
	TopLevelKeys   int        `json:"top_level_keys"`
	DecisionReason string     `json:"decision_reason,omitempty"`
	ReviewedBy     string     `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	AssetCount     int        `json:"asset_count,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ListSchemasResponse struct {
	Total int          `json:"total"`
	Items []SchemaInfo `json:"items"`
}

type ReviewRequest struct {
	Reviewer string `json:"reviewer" binding:"required"`
	Reason   string `json:"reason"`
}

type ClusterInfo struct {
	ClusterId    string    `json:"cluster_id"`
	Name         string    `json:"name"`
	Threshold    float64   `json:"threshold"`
	Provisional  bool      `json:"provisional"`
	AssetCount   int       `json:"asset_count"`
	CentroidDim  int       `json:"centroid_dim"`
	CentroidNorm float64   `json:"centroid_norm"`
	CreatedAt    time.Time `json:"created_at"`
}

type ListClustersResponse struct {
	Total int           `json:"total"`
	Items []ClusterInfo `json:"items"`
}

type RenameClusterRequest struct {
	Name string `json:"name" binding:"required"`
}

type ThresholdRequest struct {
	Threshold float64 `json:"threshold"`
}

type MergeClustersRequest struct {
	SourceIds []string `json:"source_ids" binding:"required"`
	TargetId  string   `json:"target_id" binding:"required"`
}

type MergeClustersResponse struct {
	TargetId    string   `json:"target_id"`
	SourceIds   []string `json:"source_ids"`
	AssetsMoved int64    `json:"assets_moved"`
}

type MergeCandidate struct {
	ClusterA   string  `json:"cluster_a"`
	NameA      string  `json:"name_a"`
	ClusterB   string  `json:"cluster_b"`
	NameB      string  `json:"name_b"`
	Similarity float64 `json:"similarity"`
}
