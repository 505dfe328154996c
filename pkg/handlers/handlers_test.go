/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"gotest.tools/assert"

	"github.com/mammothbox/mammothbox/pkg/blob"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/ingest"
	"github.com/mammothbox/mammothbox/pkg/queue"
	"github.com/mammothbox/mammothbox/pkg/utils/vectorutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCatalog struct {
	client.Interface
	jobs          map[string]*client.Job
	jobsByRequest map[string]*client.Job
	assets        map[string]*client.Asset
	schemas       map[string]*client.SchemaDef
	clusters      map[string]*client.Cluster
	embeddings    map[string][][]float64
	lineage       []*client.Lineage
	executedDDL   []string
	rawAssets     []*client.RawAsset
	centroids     map[string][]float64
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		jobs:          make(map[string]*client.Job),
		jobsByRequest: make(map[string]*client.Job),
		assets:        make(map[string]*client.Asset),
		schemas:       make(map[string]*client.SchemaDef),
		clusters:      make(map[string]*client.Cluster),
		embeddings:    make(map[string][][]float64),
		centroids:     make(map[string][]float64),
	}
}

func (f *fakeCatalog) Ping(context.Context) error { return nil }

func (f *fakeCatalog) WithTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

func (f *fakeCatalog) GetJob(_ context.Context, jobId string) (*client.Job, error) {
	job, ok := f.jobs[jobId]
	if !ok {
		return nil, commonerrors.NewWithCode(404, commonerrors.JobNotFound, "job not found")
	}
	return job, nil
}

func (f *fakeCatalog) GetJobByRequestId(_ context.Context, requestId string) (*client.Job, error) {
	job, ok := f.jobsByRequest[requestId]
	if !ok {
		return nil, commonerrors.NewWithCode(404, commonerrors.JobNotFound, "job not found")
	}
	return job, nil
}

func (f *fakeCatalog) InsertJob(_ context.Context, _ *sqlx.Tx, job *client.Job) error {
	f.jobs[job.Id] = job
	f.jobsByRequest[job.RequestId] = job
	return nil
}

func (f *fakeCatalog) InsertRawAsset(_ context.Context, _ *sqlx.Tx, raw *client.RawAsset) error {
	f.rawAssets = append(f.rawAssets, raw)
	return nil
}

func (f *fakeCatalog) InsertAsset(_ context.Context, _ *sqlx.Tx, asset *client.Asset) error {
	f.assets[asset.Id] = asset
	return nil
}

func (f *fakeCatalog) GetAsset(_ context.Context, assetId string) (*client.Asset, error) {
	asset, ok := f.assets[assetId]
	if !ok {
		return nil, commonerrors.NewNotFound("asset", assetId)
	}
	return asset, nil
}

func (f *fakeCatalog) SelectAssets(_ context.Context, query sqrl.Sqlizer, _ []string, _, _ int) ([]*client.Asset, error) {
	eq, ok := query.(sqrl.Eq)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T", query)
	}
	ids, _ := eq["id"].([]string)
	var result []*client.Asset
	for _, id := range ids {
		if asset, ok := f.assets[id]; ok {
			result = append(result, asset)
		}
	}
	return result, nil
}

func (f *fakeCatalog) CountAssets(context.Context, sqrl.Sqlizer) (int, error) {
	return len(f.assets), nil
}

func (f *fakeCatalog) MoveAssetsToCluster(_ context.Context, _ *sqlx.Tx, sourceIds []string, targetId string) (int64, error) {
	var moved int64
	for _, asset := range f.assets {
		for _, sourceId := range sourceIds {
			if asset.ClusterId.String == sourceId {
				asset.ClusterId = dbutils.NullString(targetId)
				moved++
			}
		}
	}
	return moved, nil
}

func (f *fakeCatalog) CascadeAssetStatusBySchema(_ context.Context, schemaId, fromStatus, toStatus string) (int64, error) {
	var flipped int64
	for _, asset := range f.assets {
		if asset.SchemaId.String == schemaId && asset.Status == fromStatus {
			asset.Status = toStatus
			flipped++
		}
	}
	return flipped, nil
}

func (f *fakeCatalog) GetSchema(_ context.Context, schemaId string) (*client.SchemaDef, error) {
	schema, ok := f.schemas[schemaId]
	if !ok {
		return nil, commonerrors.NewWithCode(404, commonerrors.SchemaNotFound, "schema not found")
	}
	return schema, nil
}

func (f *fakeCatalog) SelectSchemas(_ context.Context, _ sqrl.Sqlizer, _, _ string, _, _ int) ([]*client.SchemaDef, error) {
	var result []*client.SchemaDef
	for _, schema := range f.schemas {
		result = append(result, schema)
	}
	return result, nil
}

func (f *fakeCatalog) CountSchemas(context.Context, sqrl.Sqlizer) (int, error) {
	return len(f.schemas), nil
}

func (f *fakeCatalog) CountAssetsBySchema(_ context.Context, schemaId string) (int, error) {
	count := 0
	for _, asset := range f.assets {
		if asset.SchemaId.String == schemaId {
			count++
		}
	}
	return count, nil
}

func (f *fakeCatalog) ExecuteDDL(_ context.Context, ddl string) error {
	f.executedDDL = append(f.executedDDL, ddl)
	return nil
}

func (f *fakeCatalog) ActivateSchema(_ context.Context, schemaId, reviewer string) error {
	schema, ok := f.schemas[schemaId]
	if !ok || schema.Status != client.SchemaProvisional {
		return commonerrors.NewWithCode(400, commonerrors.SchemaNotProvisional, "schema is not provisional")
	}
	schema.Status = client.SchemaActive
	schema.ReviewedBy = dbutils.NullString(reviewer)
	return nil
}

func (f *fakeCatalog) RejectSchema(_ context.Context, schemaId, reviewer, reason string) error {
	schema, ok := f.schemas[schemaId]
	if !ok || schema.Status != client.SchemaProvisional {
		return commonerrors.NewWithCode(400, commonerrors.SchemaNotProvisional, "schema is not provisional")
	}
	schema.Status = client.SchemaRejected
	schema.ReviewedBy = dbutils.NullString(reviewer)
	schema.DecisionReason = dbutils.NullString(schema.DecisionReason.String + "; rejected: " + reason)
	return nil
}

func (f *fakeCatalog) GetCluster(_ context.Context, clusterId string) (*client.Cluster, error) {
	cluster, ok := f.clusters[clusterId]
	if !ok {
		return nil, commonerrors.NewWithCode(404, commonerrors.ClusterNotFound, "cluster not found")
	}
	return cluster, nil
}

func (f *fakeCatalog) SelectClusters(_ context.Context, _ sqrl.Sqlizer, _ []string, _, _ int) ([]*client.Cluster, error) {
	var result []*client.Cluster
	for _, cluster := range f.clusters {
		result = append(result, cluster)
	}
	return result, nil
}

func (f *fakeCatalog) CountClusters(context.Context, sqrl.Sqlizer) (int, error) {
	return len(f.clusters), nil
}

func (f *fakeCatalog) RenameCluster(_ context.Context, clusterId, name string) error {
	for _, cluster := range f.clusters {
		if cluster.Name == name && cluster.Id != clusterId {
			return commonerrors.NewWithCode(409, commonerrors.ClusterNameExists, "name taken")
		}
	}
	f.clusters[clusterId].Name = name
	return nil
}

func (f *fakeCatalog) UpdateClusterThreshold(_ context.Context, clusterId string, threshold float64) error {
	f.clusters[clusterId].Threshold = threshold
	return nil
}

func (f *fakeCatalog) ConfirmCluster(_ context.Context, clusterId string) error {
	f.clusters[clusterId].Provisional = false
	return nil
}

func (f *fakeCatalog) UpdateClusterCentroid(_ context.Context, _ *sqlx.Tx, clusterId string, centroid []float64) error {
	f.centroids[clusterId] = centroid
	return nil
}

func (f *fakeCatalog) DeleteCluster(_ context.Context, _ *sqlx.Tx, clusterId string) error {
	delete(f.clusters, clusterId)
	return nil
}

func (f *fakeCatalog) SelectClusterEmbeddings(_ context.Context, clusterId string) ([][]float64, error) {
	return f.embeddings[clusterId], nil
}

func (f *fakeCatalog) InsertLineage(_ context.Context, _ *sqlx.Tx, l *client.Lineage) error {
	// created_at is NOT NULL in the catalog, mirror the constraint here
	if !l.CreatedAt.Valid {
		return fmt.Errorf(`null value in column "created_at" of relation "lineage" violates not-null constraint`)
	}
	f.lineage = append(f.lineage, l)
	return nil
}

func (f *fakeCatalog) SelectLineageByRequestId(_ context.Context, requestId string) ([]*client.Lineage, error) {
	var records []*client.Lineage
	for _, l := range f.lineage {
		if l.RequestId == requestId {
			records = append(records, l)
		}
	}
	return records, nil
}

func newTestServer(t *testing.T, catalog *fakeCatalog) *gin.Engine {
	t.Helper()
	blobs, err := blob.NewFileStore(t.TempDir())
	assert.NilError(t, err)
	q := queue.NewInprocQueue()
	t.Cleanup(func() { _ = q.Close() })
	engine := gin.New()
	InitRouters(engine, NewHandler(catalog, q, ingest.NewOrchestrator(catalog, blobs, q)))
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		assert.NilError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) *T {
	t.Helper()
	result := new(T)
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), result))
	return result
}

func TestIngestEndpoint(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newTestServer(t, catalog)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	assert.NilError(t, writer.WriteField("payload", `{"name":"a","age":1}`))
	assert.NilError(t, writer.WriteField("owner", "alice"))
	part, err := writer.CreateFormFile("files[]", "notes.txt")
	assert.NilError(t, err)
	_, err = part.Write([]byte("some text content"))
	assert.NilError(t, err)
	assert.NilError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusAccepted)
	result := decode[ingest.Result](t, recorder)
	assert.Equal(t, result.Status, client.StatusQueued)
	assert.Equal(t, len(result.AssetIds), 2)
	assert.Assert(t, catalog.jobs[result.JobId] != nil)

	// the job view surfaces the request's audit trail
	recorder = doJSON(t, engine, http.MethodGet, "/api/v1/jobs/"+result.JobId, nil)
	assert.Equal(t, recorder.Code, http.StatusOK)
	status := decode[JobStatusResponse](t, recorder)
	assert.Equal(t, len(status.Stages), 2)
	assert.Equal(t, status.Stages[0].Stage, ingest.StageRawStored)
	assert.Equal(t, status.Stages[1].Stage, ingest.StageJsonValidated)
	assert.Assert(t, !status.Stages[0].CreatedAt.IsZero())
}

func TestIngestEndpointRejectsOversizedPayload(t *testing.T) {
	catalog := newFakeCatalog()
	engine := newTestServer(t, catalog)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	assert.NilError(t, writer.WriteField("payload", "not json"))
	assert.NilError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusBadRequest)
	assert.Assert(t, bytes.Contains(recorder.Body.Bytes(), []byte(commonerrors.PayloadInvalid)))
}

func TestJobStatusProgress(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.jobs["j1"] = &client.Job{
		Id: "j1", RequestId: "r1", JobType: client.JobTypeJson, Status: client.StatusProcessing,
		AssetIds: []string{"a1", "a2", "a3"},
	}
	catalog.assets["a1"] = &client.Asset{Id: "a1", Kind: client.KindJson, Status: client.StatusDone}
	catalog.assets["a2"] = &client.Asset{Id: "a2", Kind: client.KindJson, Status: client.StatusQueued}
	catalog.assets["a3"] = &client.Asset{Id: "a3", Kind: client.KindJson, Status: client.StatusFailed}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodGet, "/api/v1/jobs/j1", nil)
	assert.Equal(t, recorder.Code, http.StatusOK)
	status := decode[JobStatusResponse](t, recorder)
	assert.Equal(t, status.Status, client.StatusProcessing)
	assert.Equal(t, status.Progress[client.StatusDone], 1)
	assert.Equal(t, status.Progress[client.StatusQueued], 1)
	assert.Equal(t, status.Progress[client.StatusFailed], 1)
	assert.Equal(t, len(status.Assets), 3)
}

func TestJobStatusNotFound(t *testing.T) {
	engine := newTestServer(t, newFakeCatalog())
	recorder := doJSON(t, engine, http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, recorder.Code, http.StatusNotFound)
}

func TestObjectViewForJsonRecord(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.assets["a1"] = &client.Asset{
		Id: "a1", Kind: client.KindJson, Uri: "sql://people/abc123",
		SchemaId: dbutils.NullString("s1"), Status: client.StatusDone,
	}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodGet, "/api/v1/objects/a1", nil)
	assert.Equal(t, recorder.Code, http.StatusOK)
	object := decode[ObjectResponse](t, recorder)
	assert.Assert(t, object.Record != nil)
	assert.Equal(t, object.Record.StorageKind, client.StorageChoiceSQL)
	assert.Equal(t, object.Record.Collection, "people")
	assert.Equal(t, object.Record.RecordKey, "abc123")
	assert.Assert(t, object.Media == nil)
}

func TestObjectViewForMedia(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.assets["m1"] = &client.Asset{
		Id: "m1", Kind: client.KindMedia, Uri: "s3://bucket/media/clusters/c1/m1.png",
		ClusterId: dbutils.NullString("c1"), RawAssetId: dbutils.NullString("raw1"),
		Status: client.StatusDone,
	}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodGet, "/api/v1/objects/m1", nil)
	assert.Equal(t, recorder.Code, http.StatusOK)
	object := decode[ObjectResponse](t, recorder)
	assert.Assert(t, object.Media != nil)
	assert.Equal(t, object.Media.ClusterId, "c1")
	assert.Equal(t, object.Media.RawAssetId, "raw1")
}

func seedProvisionalSchema(catalog *fakeCatalog, schemaId string, queuedAssets int) {
	catalog.schemas[schemaId] = &client.SchemaDef{
		Id: schemaId, Name: "people", StructureHash: "hash", StorageChoice: client.StorageChoiceSQL,
		Status: client.SchemaProvisional,
		DDL:    dbutils.NullString("CREATE TABLE IF NOT EXISTS people (id UUID PRIMARY KEY)"),
	}
	for i := 0; i < queuedAssets; i++ {
		id := fmt.Sprintf("asset-%d", i)
		catalog.assets[id] = &client.Asset{
			Id: id, Kind: client.KindJson, Status: client.StatusQueued,
			SchemaId: dbutils.NullString(schemaId),
		}
	}
}

func TestApproveSchemaCascade(t *testing.T) {
	catalog := newFakeCatalog()
	seedProvisionalSchema(catalog, "s1", 10)
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/schemas/s1/approve", ReviewRequest{Reviewer: "admin"})
	assert.Equal(t, recorder.Code, http.StatusOK)
	info := decode[SchemaInfo](t, recorder)
	assert.Equal(t, info.Status, client.SchemaActive)
	assert.Equal(t, info.ReviewedBy, "admin")
	assert.Equal(t, len(catalog.executedDDL), 1)

	for _, asset := range catalog.assets {
		assert.Equal(t, asset.Status, client.StatusProcessing)
	}
	assert.Equal(t, len(catalog.lineage), 1)
	assert.Equal(t, catalog.lineage[0].Stage, StageSchemaApproved)
	assert.Assert(t, catalog.lineage[0].CreatedAt.Valid)

	// re-approval is rejected by the status precondition
	recorder = doJSON(t, engine, http.MethodPost, "/api/v1/schemas/s1/approve", ReviewRequest{Reviewer: "admin"})
	assert.Equal(t, recorder.Code, http.StatusBadRequest)
	assert.Equal(t, len(catalog.executedDDL), 1)
}

func TestRejectSchemaFailsQueuedAssets(t *testing.T) {
	catalog := newFakeCatalog()
	seedProvisionalSchema(catalog, "s1", 3)
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/schemas/s1/reject",
		ReviewRequest{Reviewer: "admin", Reason: "too sparse"})
	assert.Equal(t, recorder.Code, http.StatusOK)
	info := decode[SchemaInfo](t, recorder)
	assert.Equal(t, info.Status, client.SchemaRejected)

	for _, asset := range catalog.assets {
		assert.Equal(t, asset.Status, client.StatusFailed)
	}

	// approve after reject is rejected
	recorder = doJSON(t, engine, http.MethodPost, "/api/v1/schemas/s1/approve", ReviewRequest{Reviewer: "admin"})
	assert.Equal(t, recorder.Code, http.StatusBadRequest)
	assert.Equal(t, len(catalog.executedDDL), 0)
}

func TestMergeClusters(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.clusters["t"] = &client.Cluster{Id: "t", Name: "target", Centroid: []float64{1, 0}}
	catalog.clusters["s1"] = &client.Cluster{Id: "s1", Name: "one"}
	catalog.clusters["s2"] = &client.Cluster{Id: "s2", Name: "two"}
	catalog.embeddings["t"] = [][]float64{{1, 0}, {0.9, 0.1}}
	catalog.embeddings["s1"] = [][]float64{{0.8, 0.2}, {0.7, 0.3}, {0.9, 0.1}}
	catalog.embeddings["s2"] = [][]float64{{0.6, 0.4}, {0.5, 0.5}, {0.4, 0.6}, {0.7, 0.3}}
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s1-a%d", i)
		catalog.assets[id] = &client.Asset{Id: id, Kind: client.KindMedia, ClusterId: dbutils.NullString("s1")}
	}
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("s2-a%d", i)
		catalog.assets[id] = &client.Asset{Id: id, Kind: client.KindMedia, ClusterId: dbutils.NullString("s2")}
	}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/clusters/merge",
		MergeClustersRequest{SourceIds: []string{"s1", "s2"}, TargetId: "t"})
	assert.Equal(t, recorder.Code, http.StatusOK)
	result := decode[MergeClustersResponse](t, recorder)
	assert.Equal(t, result.AssetsMoved, int64(7))

	_, s1Exists := catalog.clusters["s1"]
	_, s2Exists := catalog.clusters["s2"]
	assert.Assert(t, !s1Exists && !s2Exists)
	for _, asset := range catalog.assets {
		assert.Equal(t, asset.ClusterId.String, "t")
	}

	centroid := catalog.centroids["t"]
	assert.Assert(t, math.Abs(vectorutil.Norm(centroid)-1) < 1e-6)

	assert.Equal(t, len(catalog.lineage), 1)
	assert.Equal(t, catalog.lineage[0].Stage, StageClustersMerged)
	assert.Assert(t, catalog.lineage[0].CreatedAt.Valid)
	assert.Assert(t, bytes.Contains([]byte(catalog.lineage[0].Detail.String), []byte(`"assets_moved":7`)))
}

func TestMergeClusterIntoItselfRejected(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.clusters["t"] = &client.Cluster{Id: "t", Name: "target"}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/clusters/merge",
		MergeClustersRequest{SourceIds: []string{"t"}, TargetId: "t"})
	assert.Equal(t, recorder.Code, http.StatusBadRequest)
	assert.Assert(t, bytes.Contains(recorder.Body.Bytes(), []byte(commonerrors.ClusterMergeSelf)))
}

func TestClusterThresholdRangeCheck(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.clusters["c1"] = &client.Cluster{Id: "c1", Name: "one", Threshold: 0.8}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/clusters/c1/threshold", ThresholdRequest{Threshold: 1.5})
	assert.Equal(t, recorder.Code, http.StatusBadRequest)
	assert.Equal(t, catalog.clusters["c1"].Threshold, 0.8)

	recorder = doJSON(t, engine, http.MethodPost, "/api/v1/clusters/c1/threshold", ThresholdRequest{Threshold: 0.9})
	assert.Equal(t, recorder.Code, http.StatusOK)
	assert.Equal(t, catalog.clusters["c1"].Threshold, 0.9)
}

func TestRenameClusterConflict(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.clusters["c1"] = &client.Cluster{Id: "c1", Name: "one"}
	catalog.clusters["c2"] = &client.Cluster{Id: "c2", Name: "two"}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/clusters/c1/rename", RenameClusterRequest{Name: "two"})
	assert.Equal(t, recorder.Code, http.StatusConflict)

	recorder = doJSON(t, engine, http.MethodPost, "/api/v1/clusters/c1/rename", RenameClusterRequest{Name: "three"})
	assert.Equal(t, recorder.Code, http.StatusOK)
	assert.Equal(t, catalog.clusters["c1"].Name, "three")
}

func TestClusterAdminActionsRecordTimestampedAudit(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.clusters["c1"] = &client.Cluster{Id: "c1", Name: "one", Threshold: 0.8, Provisional: true}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodPost, "/api/v1/clusters/c1/rename", RenameClusterRequest{Name: "faces"})
	assert.Equal(t, recorder.Code, http.StatusOK)
	recorder = doJSON(t, engine, http.MethodPost, "/api/v1/clusters/c1/threshold", ThresholdRequest{Threshold: 0.9})
	assert.Equal(t, recorder.Code, http.StatusOK)
	recorder = doJSON(t, engine, http.MethodPost, "/api/v1/clusters/c1/confirm", nil)
	assert.Equal(t, recorder.Code, http.StatusOK)

	assert.Equal(t, len(catalog.lineage), 3)
	stages := []string{StageClusterRenamed, StageClusterThreshold, StageClusterConfirmed}
	for i, record := range catalog.lineage {
		assert.Equal(t, record.Stage, stages[i])
		assert.Assert(t, record.CreatedAt.Valid)
	}
}

func TestMergeCandidates(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.clusters["a"] = &client.Cluster{Id: "a", Name: "a", Centroid: []float64{1, 0}}
	catalog.clusters["b"] = &client.Cluster{Id: "b", Name: "b", Centroid: []float64{0.99, 0.14}}
	catalog.clusters["c"] = &client.Cluster{Id: "c", Name: "c", Centroid: []float64{0, 1}}
	engine := newTestServer(t, catalog)

	recorder := doJSON(t, engine, http.MethodGet, "/api/v1/clusters/merge-candidates?threshold=0.9", nil)
	assert.Equal(t, recorder.Code, http.StatusOK)
	candidates := decode[[]MergeCandidate](t, recorder)
	assert.Equal(t, len(*candidates), 1)
	pair := (*candidates)[0]
	assert.Assert(t, pair.Similarity > 0.9)
	names := []string{pair.NameA, pair.NameB}
	assert.Assert(t, (names[0] == "a" && names[1] == "b") || (names[0] == "b" && names[1] == "a"))
}

func TestHealthz(t *testing.T) {
	engine := newTestServer(t, newFakeCatalog())
	recorder := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, recorder.Code, http.StatusOK)
}
