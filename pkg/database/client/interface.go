/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

type Interface interface {
	RawAssetInterface
	AssetInterface
	JobInterface
	SchemaDefInterface
	ClusterInterface
	LineageInterface

	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	ExecuteDDL(ctx context.Context, ddl string) error
}

type RawAssetInterface interface {
	InsertRawAsset(ctx context.Context, tx *sqlx.Tx, rawAsset *RawAsset) error
	GetRawAsset(ctx context.Context, rawAssetId string) (*RawAsset, error)
}

type AssetInterface interface {
	InsertAsset(ctx context.Context, tx *sqlx.Tx, asset *Asset) error
	GetAsset(ctx context.Context, assetId string) (*Asset, error)
	SelectAssets(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Asset, error)
	CountAssets(ctx context.Context, query sqrl.Sqlizer) (int, error)
	SetAssetStatus(ctx context.Context, assetId, status string) error
	SetAssetProcessed(ctx context.Context, assetId, uri, schemaId, status string) error
	UpdateAssetMedia(ctx context.Context, asset *Asset) error
	MoveAssetsToCluster(ctx context.Context, tx *sqlx.Tx, sourceClusterIds []string, targetClusterId string) (int64, error)
	CascadeAssetStatusBySchema(ctx context.Context, schemaId, fromStatus, toStatus string) (int64, error)
}

type JobInterface interface {
	InsertJob(ctx context.Context, tx *sqlx.Tx, job *Job) error
	GetJob(ctx context.Context, jobId string) (*Job, error)
	GetJobByRequestId(ctx context.Context, requestId string) (*Job, error)
	SelectJobs(ctx context.Context, query sqrl.Sqlizer, sortBy, order string, limit, offset int) ([]*Job, error)
	CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error)
	MarkJobProcessing(ctx context.Context, jobId string) error
	MarkJobDone(ctx context.Context, jobId string) error
	MarkJobRetry(ctx context.Context, jobId, errorMessage string, retryCount int, nextRetryAt int64) error
	MarkJobDeadLetter(ctx context.Context, jobId, errorMessage string, retryCount int) error
	SelectQueuedJobs(ctx context.Context, limit int) ([]*Job, error)
}

type SchemaDefInterface interface {
	UpsertSchemaByFingerprint(ctx context.Context, schema *SchemaDef) (*SchemaDef, bool, error)
	GetSchema(ctx context.Context, schemaId string) (*SchemaDef, error)
	GetSchemaByHash(ctx context.Context, structureHash string) (*SchemaDef, error)
	SelectSchemas(ctx context.Context, query sqrl.Sqlizer, sortBy, order string, limit, offset int) ([]*SchemaDef, error)
	CountSchemas(ctx context.Context, query sqrl.Sqlizer) (int, error)
	SetSchemaDDL(ctx context.Context, schemaId, ddl string) error
	ActivateSchema(ctx context.Context, schemaId, reviewer string) error
	RejectSchema(ctx context.Context, schemaId, reviewer, reason string) error
	CountAssetsBySchema(ctx context.Context, schemaId string) (int, error)
}

type ClusterInterface interface {
	InsertCluster(ctx context.Context, cluster *Cluster) error
	GetCluster(ctx context.Context, clusterId string) (*Cluster, error)
	GetClusterByName(ctx context.Context, name string) (*Cluster, error)
	SelectClusters(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Cluster, error)
	CountClusters(ctx context.Context, query sqrl.Sqlizer) (int, error)
	RenameCluster(ctx context.Context, clusterId, name string) error
	UpdateClusterThreshold(ctx context.Context, clusterId string, threshold float64) error
	ConfirmCluster(ctx context.Context, clusterId string) error
	UpdateClusterCentroid(ctx context.Context, tx *sqlx.Tx, clusterId string, centroid []float64) error
	DeleteCluster(ctx context.Context, tx *sqlx.Tx, clusterId string) error
	SelectClusterEmbeddings(ctx context.Context, clusterId string) ([][]float64, error)
}

type LineageInterface interface {
	InsertLineage(ctx context.Context, tx *sqlx.Tx, lineage *Lineage) error
	SelectLineageByRequestId(ctx context.Context, requestId string) ([]*Lineage, error)
}
