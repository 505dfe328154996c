/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"strconv"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/utils/jsonutil"
)

const (
	StageSchemaApproved = "admin_schema_approved"
	StageSchemaRejected = "admin_schema_rejected"
)

// ListSchemas lists schema definitions, filterable by status and storage
// choice.
func (h *Handler) ListSchemas(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.listSchemas(c, c.Query("status"))
	})
}

// ListPendingSchemas lists only provisional schemas awaiting review.
func (h *Handler) ListPendingSchemas(c *gin.Context) {
	handle(c, func(c *gin.Context) (interface{}, error) {
		return h.listSchemas(c, client.SchemaProvisional)
	})
}

// GetSchema returns one schema with its dependent asset count.
func (h *Handler) GetSchema(c *gin.Context) {
	handle(c, h.getSchema)
}

// ApproveSchema activates a provisional schema: executes its DDL, records the
// reviewer and releases the schema's queued assets to processing.
func (h *Handler) ApproveSchema(c *gin.Context) {
	handle(c, h.approveSchema)
}

// RejectSchema rejects a provisional schema and fails its queued assets.
func (h *Handler) RejectSchema(c *gin.Context) {
	handle(c, h.rejectSchema)
}

func (h *Handler) listSchemas(c *gin.Context, status string) (interface{}, error) {
	ctx := c.Request.Context()
	tags := client.GetSchemaDefFieldTags()
	query := sqrl.And{}
	if status != "" {
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "Status"): status})
	}
	if choice := c.Query("storage_choice"); choice != "" {
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "StorageChoice"): choice})
	}
	limit, offset := parseLimitOffset(c)

	schemas, err := h.catalog.SelectSchemas(ctx, query, client.CreatedAt, client.DESC, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := h.catalog.CountSchemas(ctx, query)
	if err != nil {
		return nil, err
	}

	items := make([]SchemaInfo, 0, len(schemas))
	for _, schema := range schemas {
		items = append(items, schemaInfo(schema, 0))
	}
	return &ListSchemasResponse{Total: total, Items: items}, nil
}

func (h *Handler) getSchema(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	schema, err := h.catalog.GetSchema(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	count, err := h.catalog.CountAssetsBySchema(ctx, schema.Id)
	if err != nil {
		return nil, err
	}
	info := schemaInfo(schema, count)
	return &info, nil
}

func (h *Handler) approveSchema(c *gin.Context) (interface{}, error) {
	req := &ReviewRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	ctx := c.Request.Context()
	schemaId := c.Param("id")

	schema, err := h.catalog.GetSchema(ctx, schemaId)
	if err != nil {
		return nil, err
	}
	if schema.Status != client.SchemaProvisional {
		return nil, commonerrors.NewWithCode(400, commonerrors.SchemaNotProvisional,
			fmt.Sprintf("schema %s is %s, only provisional schemas can be approved", schemaId, schema.Status))
	}
	if schema.DDL.Valid && schema.DDL.String != "" {
		if err = h.catalog.ExecuteDDL(ctx, schema.DDL.String); err != nil {
			return nil, err
		}
	}
	if err = h.catalog.ActivateSchema(ctx, schemaId, req.Reviewer); err != nil {
		return nil, err
	}
	released, err := h.catalog.CascadeAssetStatusBySchema(ctx, schemaId, client.StatusQueued, client.StatusProcessing)
	if err != nil {
		return nil, err
	}
	h.schemaLineage(c, schema, StageSchemaApproved, req.Reviewer, map[string]interface{}{
		"before": client.SchemaProvisional, "after": client.SchemaActive, "assets_released": released,
	})

	klog.Infof("schema %s approved by %s, released %d assets", schemaId, req.Reviewer, released)
	updated, err := h.catalog.GetSchema(ctx, schemaId)
	if err != nil {
		return nil, err
	}
	info := schemaInfo(updated, 0)
	return &info, nil
}

func (h *Handler) rejectSchema(c *gin.Context) (interface{}, error) {
	req := &ReviewRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	ctx := c.Request.Context()
	schemaId := c.Param("id")

	schema, err := h.catalog.GetSchema(ctx, schemaId)
	if err != nil {
		return nil, err
	}
	if err = h.catalog.RejectSchema(ctx, schemaId, req.Reviewer, req.Reason); err != nil {
		return nil, err
	}
	failed, err := h.catalog.CascadeAssetStatusBySchema(ctx, schemaId, client.StatusQueued, client.StatusFailed)
	if err != nil {
		return nil, err
	}
	h.schemaLineage(c, schema, StageSchemaRejected, req.Reviewer, map[string]interface{}{
		"before": client.SchemaProvisional, "after": client.SchemaRejected,
		"reason": req.Reason, "assets_failed": failed,
	})

	klog.Infof("schema %s rejected by %s, failed %d assets", schemaId, req.Reviewer, failed)
	updated, err := h.catalog.GetSchema(ctx, schemaId)
	if err != nil {
		return nil, err
	}
	info := schemaInfo(updated, 0)
	return &info, nil
}

// schemaLineage records the admin action. Audit failures are logged, never
// surfaced to the caller.
func (h *Handler) schemaLineage(c *gin.Context, schema *client.SchemaDef, stage, reviewer string, detail map[string]interface{}) {
	detail["reviewer"] = reviewer
	err := h.catalog.InsertLineage(c.Request.Context(), nil, &client.Lineage{
		RequestId: uuid.NewString(),
		SchemaId:  dbutils.NullString(schema.Id),
		Stage:     stage,
		Detail:    dbutils.NullString(string(jsonutil.MarshalSilently(detail))),
		Success:   true,
		CreatedAt: dbutils.NullTime(time.Now().UTC()),
	})
	if err != nil {
		klog.ErrorS(err, "failed to record admin lineage", "schema", schema.Id, "stage", stage)
	}
}

func schemaInfo(schema *client.SchemaDef, assetCount int) SchemaInfo {
	return SchemaInfo{
		SchemaId:       schema.Id,
		Name:           schema.Name,
		StructureHash:  schema.StructureHash,
		StorageChoice:  schema.StorageChoice,
		Version:        schema.Version,
		Status:         schema.Status,
		DDL:            schema.DDL.String,
		SampleSize:     schema.SampleSize,
		FieldStability: schema.FieldStability,
		MaxDepth:       schema.MaxDepth,
		TopLevelKeys:   schema.TopLevelKeys,
		DecisionReason: schema.DecisionReason.String,
		ReviewedBy:     schema.ReviewedBy.String,
		ReviewedAt:     optionalTime(schema.ReviewedAt),
		AssetCount:     assetCount,
		CreatedAt:      dbutils.ParseNullTime(schema.CreatedAt),
	}
}

func parseLimitOffset(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
