/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/queue"
)

const namespace = "mammothbox"

var (
	JobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Jobs completed successfully.",
	})
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_failed_total",
		Help:      "Jobs dead-lettered after exhausting retries or failing permanently.",
	})
	JobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_retried_total",
		Help:      "Job attempts rescheduled with backoff.",
	})
	IngestRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_requests_total",
		Help:      "Ingestion requests accepted.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Messages waiting in the ready queue.",
	})
	DLQDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dlq_depth",
		Help:      "Messages parked in the dead-letter queue.",
	})
)

// WatchQueue samples queue depths until the context ends.
func WatchQueue(ctx context.Context, q queue.Queue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if size, err := q.Size(ctx); err == nil {
				QueueDepth.Set(float64(size))
			} else {
				klog.ErrorS(err, "failed to sample queue depth")
			}
			if size, err := q.DLQSize(ctx); err == nil {
				DLQDepth.Set(float64(size))
			}
		}
	}
}
