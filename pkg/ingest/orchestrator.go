/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/blob"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/metrics"
	"github.com/mammothbox/mammothbox/pkg/processors"
	"github.com/mammothbox/mammothbox/pkg/queue"
	"github.com/mammothbox/mammothbox/pkg/utils/backoff"
	"github.com/mammothbox/mammothbox/pkg/utils/jsonutil"
)

// Lineage stages written by the orchestrator.
const (
	StageRawStored     = "raw_stored"
	StageJsonValidated = "json_validated"
)

// Request is one ingestion call: files, an optional JSON payload, and an
// optional idempotency key collapsing retries onto one job.
type Request struct {
	RequestId string
	Owner     string
	Comments  string
	Hint      string
	Payload   string
	Files     []FilePart
}

// Result is what the API returns with 202.
type Result struct {
	JobId     string    `json:"job_id"`
	RequestId string    `json:"request_id"`
	AssetIds  []string  `json:"system_ids"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message,omitempty"`
}

// Orchestrator runs the synchronous half of ingestion: validate, persist
// bytes and rows, enqueue exactly one job.
type Orchestrator struct {
	catalog client.Interface
	blobs   blob.Interface
	queue   queue.Queue
}

func NewOrchestrator(catalog client.Interface, blobs blob.Interface, q queue.Queue) *Orchestrator {
	return &Orchestrator{catalog: catalog, blobs: blobs, queue: q}
}

func (o *Orchestrator) Ingest(ctx context.Context, req *Request) (*Result, error) {
	requestId := req.RequestId
	if requestId == "" {
		requestId = uuid.NewString()
	}
	if len(req.Files) == 0 && req.Payload == "" {
		return nil, commonerrors.NewBadRequest("nothing to ingest: no files and no payload")
	}

	// fast path for retried requests
	if existing, err := o.catalog.GetJobByRequestId(ctx, requestId); err == nil {
		return duplicateResult(existing), nil
	} else if !commonerrors.IsNotFound(err) {
		return nil, err
	}

	files, err := validateFiles(req.Files)
	if err != nil {
		return nil, err
	}
	batch, err := validatePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	// bytes land in the blob store before any catalog row exists; an aborted
	// transaction leaves only unreferenced blobs behind
	stored, err := o.storeRawFiles(ctx, requestId, files)
	if err != nil {
		return nil, err
	}

	job, assetIds, err := o.persist(ctx, requestId, req, stored, batch)
	if err != nil {
		if commonerrors.IsConflict(err) {
			// a concurrent request with the same key won the insert
			winner, getErr := o.catalog.GetJobByRequestId(ctx, requestId)
			if getErr != nil {
				return nil, getErr
			}
			return duplicateResult(winner), nil
		}
		return nil, err
	}

	o.enqueue(job)
	metrics.IngestRequests.Inc()
	return &Result{
		JobId:     job.Id,
		RequestId: requestId,
		AssetIds:  assetIds,
		Status:    client.StatusQueued,
		CreatedAt: dbutils.ParseNullTime(job.CreatedAt),
	}, nil
}

type storedFile struct {
	file       *validatedFile
	rawAssetId string
	uri        string
}

func (o *Orchestrator) storeRawFiles(ctx context.Context, requestId string, files []*validatedFile) ([]*storedFile, error) {
	var stored []*storedFile
	for _, file := range files {
		partId := uuid.NewString()
		uri, err := o.blobs.StoreRaw(ctx, requestId, partId, file.part.Filename,
			bytes.NewReader(file.part.Data), file.mimeType)
		if err != nil {
			return nil, err
		}
		stored = append(stored, &storedFile{file: file, rawAssetId: partId, uri: uri})
	}
	return stored, nil
}

// persist writes every row of the request in one transaction. The job insert
// is last; its unique request_id index is what makes concurrent duplicates
// collapse.
func (o *Orchestrator) persist(ctx context.Context, requestId string, req *Request,
	stored []*storedFile, batch []map[string]interface{}) (*client.Job, []string, error) {

	now := time.Now().UTC()
	var assetIds []string
	hasMedia := false
	job := &client.Job{
		Id:         uuid.NewString(),
		RequestId:  requestId,
		Status:     client.StatusQueued,
		MaxRetries: 3,
		CreatedAt:  dbutils.NullTime(now),
		UpdatedAt:  dbutils.NullTime(now),
	}

	err := o.catalog.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, s := range stored {
			rawAsset := &client.RawAsset{
				Id:          uuid.NewString(),
				RequestId:   requestId,
				PartId:      s.rawAssetId,
				Uri:         s.uri,
				SizeBytes:   s.file.sizeBytes,
				ContentType: dbutils.NullString(s.file.mimeType),
				CreatedAt:   dbutils.NullTime(now),
			}
			if err := o.catalog.InsertRawAsset(ctx, tx, rawAsset); err != nil {
				return err
			}
			asset := &client.Asset{
				Id:          uuid.NewString(),
				Kind:        s.file.kind,
				Uri:         s.uri,
				Sha256:      dbutils.NullString(s.file.sha256Hex),
				ContentType: dbutils.NullString(s.file.mimeType),
				SizeBytes:   s.file.sizeBytes,
				Owner:       dbutils.NullString(req.Owner),
				Status:      client.StatusQueued,
				RawAssetId:  dbutils.NullString(rawAsset.Id),
				CreatedAt:   dbutils.NullTime(now),
				UpdatedAt:   dbutils.NullTime(now),
			}
			if err := o.catalog.InsertAsset(ctx, tx, asset); err != nil {
				return err
			}
			if asset.Kind == client.KindMedia {
				hasMedia = true
			}
			assetIds = append(assetIds, asset.Id)
			if err := o.lineage(ctx, tx, requestId, asset.Id, StageRawStored,
				fmt.Sprintf(`{"uri":%q,"size":%d}`, s.uri, s.file.sizeBytes)); err != nil {
				return err
			}
		}
		for _, doc := range batch {
			encoded := jsonutil.MarshalSilently(doc)
			docHash := sha256Hex(encoded)
			asset := &client.Asset{
				Id:        uuid.NewString(),
				Kind:      client.KindJson,
				Uri:       "json://pending/" + docHash,
				Sha256:    dbutils.NullString(docHash),
				SizeBytes: int64(len(encoded)),
				Owner:     dbutils.NullString(req.Owner),
				Status:    client.StatusQueued,
				CreatedAt: dbutils.NullTime(now),
				UpdatedAt: dbutils.NullTime(now),
			}
			if err := o.catalog.InsertAsset(ctx, tx, asset); err != nil {
				return err
			}
			assetIds = append(assetIds, asset.Id)
			if err := o.lineage(ctx, tx, requestId, asset.Id, StageJsonValidated, ""); err != nil {
				return err
			}
		}

		job.JobType = client.JobTypeJson
		if hasMedia {
			job.JobType = client.JobTypeMedia
		}
		job.AssetIds = assetIds
		job.JobData = jsonutil.MarshalSilently(processors.JobPayload{
			AssetIds: assetIds,
			Batch:    batch,
			Owner:    req.Owner,
			Comments: req.Comments,
			Hint:     req.Hint,
		})
		return o.catalog.InsertJob(ctx, tx, job)
	})
	if err != nil {
		return nil, nil, err
	}
	return job, assetIds, nil
}

// enqueue mirrors the committed job onto the queue, retrying briefly. A final
// failure is tolerated: the reconciler re-enqueues queued jobs.
func (o *Orchestrator) enqueue(job *client.Job) {
	msg := &queue.Message{
		JobId:      job.Id,
		JobType:    job.JobType,
		JobData:    job.JobData,
		MaxRetries: job.MaxRetries,
		CreatedAt:  dbutils.ParseNullTime(job.CreatedAt).Unix(),
	}
	err := backoff.Retry(func() error {
		return o.queue.Enqueue(context.Background(), msg)
	}, 10*time.Second, 2*time.Second)
	if err != nil {
		klog.ErrorS(err, "failed to enqueue job after commit, reconciler will recover it", "job", job.Id)
	}
}

func (o *Orchestrator) lineage(ctx context.Context, tx *sqlx.Tx, requestId, assetId, stage, detail string) error {
	return o.catalog.InsertLineage(ctx, tx, &client.Lineage{
		RequestId: requestId,
		AssetId:   dbutils.NullString(assetId),
		Stage:     stage,
		Detail:    dbutils.NullString(detail),
		Success:   true,
		CreatedAt: dbutils.NullTime(time.Now().UTC()),
	})
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func duplicateResult(job *client.Job) *Result {
	return &Result{
		JobId:     job.Id,
		RequestId: job.RequestId,
		AssetIds:  job.AssetIds,
		Status:    job.Status,
		CreatedAt: dbutils.ParseNullTime(job.CreatedAt),
		Message:   "duplicate request",
	}
}
