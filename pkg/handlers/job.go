/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"

	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
)

// GetJobStatus returns a job's lifecycle state with per-asset progress counts.
func (h *Handler) GetJobStatus(c *gin.Context) {
	handle(c, h.getJobStatus)
}

func (h *Handler) getJobStatus(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	job, err := h.catalog.GetJob(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}

	progress := map[string]int{
		client.StatusQueued:     0,
		client.StatusProcessing: 0,
		client.StatusDone:       0,
		client.StatusFailed:     0,
	}
	var assetInfos []AssetStatusInfo
	if len(job.AssetIds) > 0 {
		assets, err := h.catalog.SelectAssets(ctx,
			sqrl.Eq{"id": []string(job.AssetIds)}, []string{"created_at ASC"}, len(job.AssetIds), 0)
		if err != nil {
			return nil, err
		}
		for _, asset := range assets {
			progress[asset.Status]++
			assetInfos = append(assetInfos, AssetStatusInfo{
				AssetId: asset.Id,
				Kind:    asset.Kind,
				Status:  asset.Status,
			})
		}
	}

	records, err := h.catalog.SelectLineageByRequestId(ctx, job.RequestId)
	if err != nil {
		return nil, err
	}
	stages := make([]LineageEntry, 0, len(records))
	for _, record := range records {
		stages = append(stages, LineageEntry{
			Stage:        record.Stage,
			AssetId:      record.AssetId.String,
			SchemaId:     record.SchemaId.String,
			Detail:       record.Detail.String,
			Success:      record.Success,
			ErrorMessage: record.ErrorMessage.String,
			CreatedAt:    dbutils.ParseNullTime(record.CreatedAt),
		})
	}

	return &JobStatusResponse{
		JobId:        job.Id,
		RequestId:    job.RequestId,
		JobType:      job.JobType,
		Status:       job.Status,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		DeadLetter:   job.DeadLetter,
		ErrorMessage: job.ErrorMessage.String,
		Progress:     progress,
		Assets:       assetInfos,
		Stages:       stages,
		CreatedAt:    dbutils.ParseNullTime(job.CreatedAt),
		StartedAt:    optionalTime(job.StartedAt),
		CompletedAt:  optionalTime(job.CompletedAt),
		NextRetryAt:  optionalTime(job.NextRetryAt),
	}, nil
}

func optionalTime(t pq.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	result := t.Time
	return &result
}
