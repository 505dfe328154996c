/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
)

// GetObject returns canonical metadata for one asset, with a kind-specific
// section for media and processed JSON records.
func (h *Handler) GetObject(c *gin.Context) {
	handle(c, h.getObject)
}

func (h *Handler) getObject(c *gin.Context) (interface{}, error) {
	asset, err := h.catalog.GetAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}

	rsp := &ObjectResponse{
		AssetId:     asset.Id,
		Kind:        asset.Kind,
		Uri:         asset.Uri,
		Sha256:      asset.Sha256.String,
		ContentType: asset.ContentType.String,
		SizeBytes:   asset.SizeBytes,
		Owner:       asset.Owner.String,
		Status:      asset.Status,
		CreatedAt:   dbutils.ParseNullTime(asset.CreatedAt),
		UpdatedAt:   dbutils.ParseNullTime(asset.UpdatedAt),
	}
	switch asset.Kind {
	case client.KindMedia:
		rsp.Media = &MediaDetails{
			ClusterId:  asset.ClusterId.String,
			RawAssetId: asset.RawAssetId.String,
			Tags:       asset.Tags.String,
		}
	case client.KindJson:
		record := &RecordDetails{SchemaId: asset.SchemaId.String}
		record.StorageKind, record.Collection, record.RecordKey = parseStorageURI(asset.Uri)
		rsp.Record = record
	}
	return rsp, nil
}

// parseStorageURI splits sql://<table>/<key> and jsonb://<collection>/<key>
// URIs. Unrecognized schemes yield empty fields.
func parseStorageURI(uri string) (storageKind, collection, key string) {
	switch {
	case strings.HasPrefix(uri, "sql://"):
		storageKind = client.StorageChoiceSQL
		uri = strings.TrimPrefix(uri, "sql://")
	case strings.HasPrefix(uri, "jsonb://"):
		storageKind = client.StorageChoiceJSONB
		uri = strings.TrimPrefix(uri, "jsonb://")
	default:
		return "", "", ""
	}
	parts := strings.SplitN(uri, "/", 2)
	collection = parts[0]
	if len(parts) > 1 {
		key = parts[1]
	}
	return storageKind, collection, key
}
