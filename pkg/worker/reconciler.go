/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	"github.com/mammothbox/mammothbox/pkg/database/client"
	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	"github.com/mammothbox/mammothbox/pkg/queue"
)

const (
	reconcileBatch = 500

	// jobs touched more recently than this are assumed to still have a live
	// queue message and are left alone
	reconcileMinAge = 2 * time.Minute
)

// Reconciler closes the outbox gap: a job committed as queued whose enqueue
// failed (or whose process died) is put back on the queue at startup and on
// a periodic sweep.
type Reconciler struct {
	catalog client.Interface
	queue   queue.Queue
	cron    *cron.Cron
}

func NewReconciler(catalog client.Interface, q queue.Queue) *Reconciler {
	return &Reconciler{catalog: catalog, queue: q}
}

// Start runs one immediate sweep and schedules the periodic one.
func (r *Reconciler) Start(ctx context.Context) error {
	if n, err := r.Sweep(ctx); err != nil {
		klog.ErrorS(err, "startup reconcile sweep failed")
	} else if n > 0 {
		klog.Infof("startup reconcile re-enqueued %d jobs", n)
	}
	r.cron = cron.New()
	_, err := r.cron.AddFunc(commonconfig.GetReconcileSchedule(), func() {
		if n, err := r.Sweep(context.Background()); err != nil {
			klog.ErrorS(err, "reconcile sweep failed")
		} else if n > 0 {
			klog.Infof("reconcile sweep re-enqueued %d jobs", n)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Reconciler) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

// Sweep re-enqueues catalog jobs stuck in queued. Only jobs idle past the
// minimum age are taken, so a message enqueued moments ago is not duplicated.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	jobs, err := r.catalog.SelectQueuedJobs(ctx, reconcileBatch)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-reconcileMinAge)
	count := 0
	for _, job := range jobs {
		updatedAt := dbutils.ParseNullTime(job.UpdatedAt)
		if !updatedAt.IsZero() && updatedAt.After(cutoff) {
			continue
		}
		msg := MessageFromJob(job)
		if err = r.queue.Enqueue(ctx, msg); err != nil {
			klog.ErrorS(err, "failed to re-enqueue job", "job", job.Id)
			continue
		}
		count++
	}
	return count, nil
}

// MessageFromJob mirrors a catalog row onto the queue.
func MessageFromJob(job *client.Job) *queue.Message {
	msg := &queue.Message{
		JobId:      job.Id,
		JobType:    job.JobType,
		JobData:    job.JobData,
		RetryCount: job.RetryCount,
		MaxRetries: job.MaxRetries,
	}
	if created := dbutils.ParseNullTime(job.CreatedAt); !created.IsZero() {
		msg.CreatedAt = created.Unix()
	}
	if next := dbutils.ParseNullTime(job.NextRetryAt); !next.IsZero() {
		msg.NextRetryAt = next.Unix()
	}
	return msg
}
