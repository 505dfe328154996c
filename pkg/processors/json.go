/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package processors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/schema"
	"github.com/mammothbox/mammothbox/pkg/utils/jsonutil"
)

// Lineage stages written by the json processor.
const (
	StageSchemaAnalysis    = "schema_analysis"
	StageSchemaCreated     = "schema_created"
	StageSchemaReused      = "schema_reused"
	StageJsonComplete      = "json_processing_complete"
	AutoMigrationsReviewer = "auto_migrate"
)

// JsonProcessor turns a batch of JSON documents into a schema decision and a
// storage location per document.
type JsonProcessor struct {
	catalog client.Interface
}

func NewJsonProcessor(catalog client.Interface) *JsonProcessor {
	return &JsonProcessor{catalog: catalog}
}

func (p *JsonProcessor) Type() string {
	return client.JobTypeJson
}

func (p *JsonProcessor) Process(ctx context.Context, job *client.Job) error {
	var payload JobPayload
	if err := jsonutil.Unmarshal(job.JobData, &payload); err != nil {
		return commonerrors.NewPermanent(fmt.Sprintf("job %s carries undecodable data: %v", job.Id, err))
	}
	if len(payload.Batch) == 0 {
		return commonerrors.NewPermanent(fmt.Sprintf("job %s carries no documents", job.Id))
	}
	jsonAssets, err := p.loadJsonAssets(ctx, &payload)
	if err != nil {
		return err
	}
	if len(jsonAssets) != len(payload.Batch) {
		klog.Warningf("job %s: %d documents but %d json assets", job.Id, len(payload.Batch), len(jsonAssets))
	}

	summary, err := schema.NewAnalyzer().Analyze(payload.Batch)
	if err != nil {
		p.lineage(ctx, job.RequestId, "", "", StageSchemaAnalysis, "", false, err.Error())
		return commonerrors.NewPermanent(fmt.Sprintf("job %s: %v", job.Id, err))
	}
	decision := schema.Decide(summary, schema.DefaultDeciderConfig())
	detail := jsonutil.MarshalSilently(map[string]interface{}{
		"storage_choice": decision.StorageChoice,
		"confidence":     decision.Confidence,
		"reasons":        decision.Reasons,
		"fingerprint":    decision.StructureHash,
	})
	p.lineage(ctx, job.RequestId, "", "", StageSchemaAnalysis, string(detail), true, "")

	schemaRow, created, err := p.upsertSchema(ctx, decision, payload.Hint, summary)
	if err != nil {
		return err
	}
	stage := StageSchemaReused
	if created {
		stage = StageSchemaCreated
	}
	p.lineage(ctx, job.RequestId, "", schemaRow.Id, stage, "", true, "")

	if err = p.updateAssets(ctx, jsonAssets, payload.Batch, schemaRow); err != nil {
		return err
	}
	p.lineage(ctx, job.RequestId, "", schemaRow.Id, StageJsonComplete, "", true, "")
	return nil
}

func (p *JsonProcessor) loadJsonAssets(ctx context.Context, payload *JobPayload) ([]*client.Asset, error) {
	var assets []*client.Asset
	for _, assetId := range payload.AssetIds {
		asset, err := p.catalog.GetAsset(ctx, assetId)
		if err != nil {
			if commonerrors.IsNotFound(err) {
				klog.Warningf("asset %s vanished before processing", assetId)
				continue
			}
			return nil, err
		}
		if asset.Kind == client.KindJson {
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

// upsertSchema persists the decision behind the fingerprint unique index. A
// freshly created schema gets its DDL generated and, under auto_migrate,
// executed and activated without review.
func (p *JsonProcessor) upsertSchema(ctx context.Context, decision *schema.Decision, hint string, summary *schema.Summary) (*client.SchemaDef, bool, error) {
	name := schema.GenerateCollectionName(decision, hint)
	row := &client.SchemaDef{
		Id:             uuid.NewString(),
		Name:           name,
		StructureHash:  decision.StructureHash,
		StorageChoice:  decision.StorageChoice,
		Version:        1,
		Status:         client.SchemaProvisional,
		SampleSize:     summary.SampleSize,
		FieldStability: summary.FieldStability,
		MaxDepth:       summary.MaxObservedDepth,
		TopLevelKeys:   summary.TopLevelKeys,
		DecisionReason: dbutils.NullString(strings.Join(decision.Reasons, "; ")),
		CreatedAt:      dbutils.NullTime(time.Now().UTC()),
		UpdatedAt:      dbutils.NullTime(time.Now().UTC()),
	}
	schemaRow, created, err := p.catalog.UpsertSchemaByFingerprint(ctx, row)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return schemaRow, false, nil
	}
	ddl := schema.GenerateDDL(decision, schemaRow.Name)
	if err = p.catalog.SetSchemaDDL(ctx, schemaRow.Id, ddl); err != nil {
		return nil, false, err
	}
	schemaRow.DDL = dbutils.NullString(ddl)
	if commonconfig.IsAutoMigrate() {
		if err = p.catalog.ExecuteDDL(ctx, ddl); err != nil {
			return nil, false, err
		}
		if err = p.catalog.ActivateSchema(ctx, schemaRow.Id, AutoMigrationsReviewer); err != nil {
			return nil, false, err
		}
		schemaRow.Status = client.SchemaActive
	}
	return schemaRow, true, nil
}

// updateAssets stamps each document's storage location onto its asset. Assets
// finish only when the schema is active; otherwise they wait for approval.
func (p *JsonProcessor) updateAssets(ctx context.Context, assets []*client.Asset, batch []map[string]interface{}, schemaRow *client.SchemaDef) error {
	status := client.StatusQueued
	if schemaRow.Status == client.SchemaActive {
		status = client.StatusDone
	}
	scheme := "jsonb"
	if schemaRow.StorageChoice == client.StorageChoiceSQL {
		scheme = "sql"
	}
	for i, asset := range assets {
		if i >= len(batch) {
			break
		}
		sum := sha256.Sum256(jsonutil.MarshalSilently(batch[i]))
		uri := fmt.Sprintf("%s://%s/%s", scheme, schemaRow.Name, hex.EncodeToString(sum[:]))
		if err := p.catalog.SetAssetProcessed(ctx, asset.Id, uri, schemaRow.Id, status); err != nil {
			return err
		}
	}
	return nil
}

func (p *JsonProcessor) lineage(ctx context.Context, requestId, assetId, schemaId, stage, detail string, success bool, errorMessage string) {
	record := &client.Lineage{
		RequestId:    requestId,
		AssetId:      dbutils.NullString(assetId),
		SchemaId:     dbutils.NullString(schemaId),
		Stage:        stage,
		Detail:       dbutils.NullString(detail),
		Success:      success,
		ErrorMessage: dbutils.NullString(errorMessage),
		CreatedAt:    dbutils.NullTime(time.Now().UTC()),
	}
	if err := p.catalog.InsertLineage(ctx, nil, record); err != nil {
		klog.ErrorS(err, "failed to write lineage", "stage", stage, "request", requestId)
	}
}
