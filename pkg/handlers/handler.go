/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/database/client"
	"github.com/mammothbox/mammothbox/pkg/ingest"
	"github.com/mammothbox/mammothbox/pkg/queue"
	apiutils "github.com/mammothbox/mammothbox/pkg/utils"
)

// Handler handles HTTP requests for ingestion, job status and admin review.
type Handler struct {
	catalog      client.Interface
	queue        queue.Queue
	orchestrator *ingest.Orchestrator
}

// NewHandler creates a new API handler.
func NewHandler(catalog client.Interface, q queue.Queue, orchestrator *ingest.Orchestrator) *Handler {
	return &Handler{
		catalog:      catalog,
		queue:        q,
		orchestrator: orchestrator,
	}
}

// handle is a common handler wrapper for HTTP requests.
func handle(c *gin.Context, fn func(c *gin.Context) (interface{}, error)) {
	handleWithStatus(c, http.StatusOK, fn)
}

func handleWithStatus(c *gin.Context, status int, fn func(c *gin.Context) (interface{}, error)) {
	result, err := fn(c)
	if err != nil {
		klog.ErrorS(err, "handler error", "path", c.Request.URL.Path)
		apiutils.AbortWithApiError(c, err)
		return
	}
	c.JSON(status, result)
}
