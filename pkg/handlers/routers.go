/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	apiutils "github.com/mammothbox/mammothbox/pkg/utils"
)

const RouterRootPath = "/api/v1/"

// InitRouters initializes and registers all API routes with the Gin engine.
func InitRouters(e *gin.Engine, h *Handler) {
	e.GET("/healthz", h.Healthz)
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.NoRoute(func(c *gin.Context) {
		apiutils.AbortWithApiError(c, commonerrors.NewNotFoundWithMessage(c.Request.RequestURI+" not found"))
	})

	group := e.Group(RouterRootPath)
	{
		group.POST("ingest", h.Ingest)

		group.GET("jobs/:id", h.GetJobStatus)
		group.GET("objects/:id", h.GetObject)

		group.GET("schemas", h.ListSchemas)
		group.GET("schemas/pending", h.ListPendingSchemas)
		group.GET("schemas/:id", h.GetSchema)
		group.POST("schemas/:id/approve", h.ApproveSchema)
		group.POST("schemas/:id/reject", h.RejectSchema)

		group.GET("clusters", h.ListClusters)
		group.GET("clusters/merge-candidates", h.ListMergeCandidates)
		group.GET("clusters/:id", h.GetCluster)
		group.POST("clusters/:id/rename", h.RenameCluster)
		group.POST("clusters/:id/threshold", h.UpdateClusterThreshold)
		group.POST("clusters/:id/confirm", h.ConfirmCluster)
		group.POST("clusters/merge", h.MergeClusters)
	}
}

// Healthz reports liveness of the catalog connection.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.catalog.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
