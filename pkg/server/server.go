/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/blob"
	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/handlers"
	"github.com/mammothbox/mammothbox/pkg/ingest"
	"github.com/mammothbox/mammothbox/pkg/media"
	"github.com/mammothbox/mammothbox/pkg/metrics"
	"github.com/mammothbox/mammothbox/pkg/options"
	"github.com/mammothbox/mammothbox/pkg/processors"
	"github.com/mammothbox/mammothbox/pkg/queue"
	apiutils "github.com/mammothbox/mammothbox/pkg/utils"
	"github.com/mammothbox/mammothbox/pkg/worker"
)

const (
	queueSampleInterval = 15 * time.Second
	shutdownHTTPTimeout = 10 * time.Second
)

// Run assembles and runs the whole service: catalog, blob store, queue,
// worker pool, reconciler and HTTP API. It blocks until SIGINT/SIGTERM and
// then shuts the pieces down in reverse order.
func Run() error {
	opt := &options.Options{}
	if err := opt.InitFlags(); err != nil {
		return err
	}
	if err := commonconfig.LoadConfig(opt.Config); err != nil {
		return fmt.Errorf("failed to load config %s: %w", opt.Config, err)
	}

	catalog := client.NewClient()
	if catalog == nil {
		return commonerrors.NewInternalError("failed to initialize the catalog client")
	}
	ctx := context.Background()
	if commonconfig.IsMigrateOnStartup() {
		if err := catalog.Migrate(ctx); err != nil {
			return err
		}
	}

	blobs, err := blob.New()
	if err != nil {
		return err
	}
	q, err := queue.New()
	if err != nil {
		return err
	}

	registry := processors.NewRegistry()
	registry.Register(processors.NewJsonProcessor(catalog))
	registry.Register(processors.NewMediaProcessor(catalog, media.NewService(catalog, blobs, nil)))

	supervisor := worker.NewSupervisor(catalog, q, registry, commonconfig.GetWorkerThreads())
	supervisor.Start()

	reconciler := worker.NewReconciler(catalog, q)
	if err = reconciler.Start(ctx); err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	go metrics.WatchQueue(watchCtx, q, queueSampleInterval)

	engine := gin.New()
	engine.Use(apiutils.Logger(), gin.Recovery())
	orchestrator := ingest.NewOrchestrator(catalog, blobs, q)
	handlers.InitRouters(engine, handlers.NewHandler(catalog, q, orchestrator))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", commonconfig.GetServerPort()),
		Handler: engine,
	}
	go func() {
		klog.Infof("http server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	klog.Infof("received signal %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownHTTPTimeout)
	defer cancel()
	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		klog.ErrorS(err, "http shutdown failed")
	}
	stopWatch()
	reconciler.Stop()
	supervisor.Stop(time.Duration(commonconfig.GetWorkerStopTimeout()) * time.Second)
	if err = q.Close(); err != nil {
		klog.ErrorS(err, "queue close failed")
	}
	if err = catalog.Close(); err != nil {
		klog.ErrorS(err, "catalog close failed")
	}
	klog.Infof("shutdown complete")
	return nil
}
