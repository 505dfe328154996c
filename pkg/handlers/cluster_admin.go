/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/utils/jsonutil"
	"github.com/mammothbox/mammothbox/pkg/utils/vectorutil"
)

const (
	StageClusterRenamed   = "admin_cluster_renamed"
	StageClusterThreshold = "admin_cluster_threshold"
	StageClusterConfirmed = "admin_cluster_confirmed"
	StageClustersMerged   = "admin_clusters_merged"
)

// ListClusters lists clusters, filterable by provisional state.
func (h *Handler) ListClusters(c *gin.Context) {
	handle(c, h.listClusters)
}

// GetCluster returns one cluster with centroid quality stats.
func (h *Handler) GetCluster(c *gin.Context) {
	handle(c, h.getCluster)
}

// RenameCluster renames a cluster, rejecting duplicate names.
func (h *Handler) RenameCluster(c *gin.Context) {
	handle(c, h.renameCluster)
}

// UpdateClusterThreshold updates the similarity threshold, range-checked to
// [0, 1].
func (h *Handler) UpdateClusterThreshold(c *gin.Context) {
	handle(c, h.updateClusterThreshold)
}

// ConfirmCluster flips a provisional cluster to confirmed.
func (h *Handler) ConfirmCluster(c *gin.Context) {
	handle(c, h.confirmCluster)
}

// MergeClusters moves all assets from the source clusters into the target,
// recomputes the target centroid and deletes the sources.
func (h *Handler) MergeClusters(c *gin.Context) {
	handle(c, h.mergeClusters)
}

// ListMergeCandidates returns cluster pairs whose centroid similarity meets
// the configured threshold.
func (h *Handler) ListMergeCandidates(c *gin.Context) {
	handle(c, h.listMergeCandidates)
}

func (h *Handler) listClusters(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	tags := client.GetClusterFieldTags()
	query := sqrl.And{}
	if provisional := c.Query("provisional"); provisional != "" {
		value, err := strconv.ParseBool(provisional)
		if err != nil {
			return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid provisional filter %q", provisional))
		}
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "Provisional"): value})
	}
	limit, offset := parseLimitOffset(c)
	orderBy := []string{fmt.Sprintf("%s DESC", client.CreatedAt)}

	clusters, err := h.catalog.SelectClusters(ctx, query, orderBy, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := h.catalog.CountClusters(ctx, query)
	if err != nil {
		return nil, err
	}

	minAssets, _ := strconv.Atoi(c.DefaultQuery("min_assets", "0"))
	items := make([]ClusterInfo, 0, len(clusters))
	for _, cluster := range clusters {
		count, err := h.clusterAssetCount(c, cluster.Id)
		if err != nil {
			return nil, err
		}
		if count < minAssets {
			continue
		}
		items = append(items, clusterInfo(cluster, count))
	}
	return &ListClustersResponse{Total: total, Items: items}, nil
}

func (h *Handler) getCluster(c *gin.Context) (interface{}, error) {
	cluster, err := h.catalog.GetCluster(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	count, err := h.clusterAssetCount(c, cluster.Id)
	if err != nil {
		return nil, err
	}
	info := clusterInfo(cluster, count)
	return &info, nil
}

func (h *Handler) renameCluster(c *gin.Context) (interface{}, error) {
	req := &RenameClusterRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	ctx := c.Request.Context()
	clusterId := c.Param("id")

	cluster, err := h.catalog.GetCluster(ctx, clusterId)
	if err != nil {
		return nil, err
	}
	if err = h.catalog.RenameCluster(ctx, clusterId, req.Name); err != nil {
		return nil, err
	}
	h.clusterLineage(c, nil, clusterId, StageClusterRenamed, map[string]interface{}{
		"before": cluster.Name, "after": req.Name,
	})
	return h.refreshedCluster(c, clusterId)
}

func (h *Handler) updateClusterThreshold(c *gin.Context) (interface{}, error) {
	req := &ThresholdRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return nil, commonerrors.NewWithCode(400, commonerrors.ThresholdOutOfRange,
			fmt.Sprintf("threshold %v is outside [0, 1]", req.Threshold))
	}
	ctx := c.Request.Context()
	clusterId := c.Param("id")

	cluster, err := h.catalog.GetCluster(ctx, clusterId)
	if err != nil {
		return nil, err
	}
	if err = h.catalog.UpdateClusterThreshold(ctx, clusterId, req.Threshold); err != nil {
		return nil, err
	}
	h.clusterLineage(c, nil, clusterId, StageClusterThreshold, map[string]interface{}{
		"before": cluster.Threshold, "after": req.Threshold,
	})
	return h.refreshedCluster(c, clusterId)
}

func (h *Handler) confirmCluster(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	clusterId := c.Param("id")
	cluster, err := h.catalog.GetCluster(ctx, clusterId)
	if err != nil {
		return nil, err
	}
	if err = h.catalog.ConfirmCluster(ctx, clusterId); err != nil {
		return nil, err
	}
	h.clusterLineage(c, nil, clusterId, StageClusterConfirmed, map[string]interface{}{
		"before": cluster.Provisional, "after": false,
	})
	return h.refreshedCluster(c, clusterId)
}

func (h *Handler) mergeClusters(c *gin.Context) (interface{}, error) {
	req := &MergeClustersRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	if len(req.SourceIds) == 0 {
		return nil, commonerrors.NewBadRequest("source_ids is empty")
	}
	for _, sourceId := range req.SourceIds {
		if sourceId == req.TargetId {
			return nil, commonerrors.NewWithCode(400, commonerrors.ClusterMergeSelf,
				fmt.Sprintf("cluster %s cannot be merged into itself", sourceId))
		}
	}

	ctx := c.Request.Context()
	if _, err := h.catalog.GetCluster(ctx, req.TargetId); err != nil {
		return nil, err
	}
	embeddings, err := h.catalog.SelectClusterEmbeddings(ctx, req.TargetId)
	if err != nil {
		return nil, err
	}
	for _, sourceId := range req.SourceIds {
		if _, err = h.catalog.GetCluster(ctx, sourceId); err != nil {
			return nil, err
		}
		sourceEmbeddings, err := h.catalog.SelectClusterEmbeddings(ctx, sourceId)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, sourceEmbeddings...)
	}
	centroid := vectorutil.Normalize(vectorutil.Mean(embeddings))

	var moved int64
	err = h.catalog.WithTx(ctx, func(tx *sqlx.Tx) error {
		moved, err = h.catalog.MoveAssetsToCluster(ctx, tx, req.SourceIds, req.TargetId)
		if err != nil {
			return err
		}
		if len(centroid) > 0 {
			if err = h.catalog.UpdateClusterCentroid(ctx, tx, req.TargetId, centroid); err != nil {
				return err
			}
		}
		for _, sourceId := range req.SourceIds {
			if err = h.catalog.DeleteCluster(ctx, tx, sourceId); err != nil {
				return err
			}
		}
		return h.catalog.InsertLineage(ctx, tx, &client.Lineage{
			RequestId: uuid.NewString(),
			Stage:     StageClustersMerged,
			Detail: dbutils.NullString(string(jsonutil.MarshalSilently(map[string]interface{}{
				"target": req.TargetId, "sources": req.SourceIds, "assets_moved": moved,
			}))),
			Success:   true,
			CreatedAt: dbutils.NullTime(time.Now().UTC()),
		})
	})
	if err != nil {
		return nil, err
	}

	klog.Infof("merged clusters %v into %s, moved %d assets", req.SourceIds, req.TargetId, moved)
	return &MergeClustersResponse{
		TargetId:    req.TargetId,
		SourceIds:   req.SourceIds,
		AssetsMoved: moved,
	}, nil
}

func (h *Handler) listMergeCandidates(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	threshold := commonconfig.GetClusterMergeCandidateThreshold()
	if value := c.Query("threshold"); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return nil, commonerrors.NewBadRequest(fmt.Sprintf("invalid threshold %q", value))
		}
		threshold = parsed
	}

	clusters, err := h.catalog.SelectClusters(ctx, sqrl.And{}, []string{client.CreatedAt + " ASC"}, -1, 0)
	if err != nil {
		return nil, err
	}

	var candidates []MergeCandidate
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			similarity := vectorutil.CosineSimilarity(clusters[i].Centroid, clusters[j].Centroid)
			if similarity < threshold {
				continue
			}
			candidates = append(candidates, MergeCandidate{
				ClusterA:   clusters[i].Id,
				NameA:      clusters[i].Name,
				ClusterB:   clusters[j].Id,
				NameB:      clusters[j].Name,
				Similarity: similarity,
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	return candidates, nil
}

func (h *Handler) clusterAssetCount(c *gin.Context, clusterId string) (int, error) {
	tags := client.GetAssetFieldTags()
	return h.catalog.CountAssets(c.Request.Context(),
		sqrl.Eq{client.GetFieldTag(tags, "ClusterId"): clusterId})
}

func (h *Handler) refreshedCluster(c *gin.Context, clusterId string) (interface{}, error) {
	cluster, err := h.catalog.GetCluster(c.Request.Context(), clusterId)
	if err != nil {
		return nil, err
	}
	count, err := h.clusterAssetCount(c, clusterId)
	if err != nil {
		return nil, err
	}
	info := clusterInfo(cluster, count)
	return &info, nil
}

// clusterLineage records an admin cluster action. Audit failures are logged,
// never surfaced.
func (h *Handler) clusterLineage(c *gin.Context, tx *sqlx.Tx, clusterId, stage string, detail map[string]interface{}) {
	detail["cluster_id"] = clusterId
	err := h.catalog.InsertLineage(c.Request.Context(), tx, &client.Lineage{
		RequestId: uuid.NewString(),
		Stage:     stage,
		Detail:    dbutils.NullString(string(jsonutil.MarshalSilently(detail))),
		Success:   true,
		CreatedAt: dbutils.NullTime(time.Now().UTC()),
	})
	if err != nil {
		klog.ErrorS(err, "failed to record admin lineage", "cluster", clusterId, "stage", stage)
	}
}

func clusterInfo(cluster *client.Cluster, assetCount int) ClusterInfo {
	return ClusterInfo{
		ClusterId:    cluster.Id,
		Name:         cluster.Name,
		Threshold:    cluster.Threshold,
		Provisional:  cluster.Provisional,
		AssetCount:   assetCount,
		CentroidDim:  len(cluster.Centroid),
		CentroidNorm: vectorutil.Norm(cluster.Centroid),
		CreatedAt:    dbutils.ParseNullTime(cluster.CreatedAt),
	}
}
