/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/database/client"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/metrics"
	"github.com/mammothbox/mammothbox/pkg/processors"
	"github.com/mammothbox/mammothbox/pkg/queue"
)

const dequeueTimeout = time.Second

// Supervisor owns a fixed pool of workers draining the queue. Each worker
// mirrors every queue decision (done, retry, dead-letter) into the catalog so
// the two views never drift.
type Supervisor struct {
	catalog  client.Interface
	queue    queue.Queue
	registry *processors.Registry
	threads  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(catalog client.Interface, q queue.Queue, registry *processors.Registry, threads int) *Supervisor {
	if threads <= 0 {
		threads = 1
	}
	return &Supervisor{
		catalog:  catalog,
		queue:    q,
		registry: registry,
		threads:  threads,
	}
}

func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for i := 0; i < s.threads; i++ {
		s.wg.Add(1)
		go s.run(ctx, i)
	}
	klog.Infof("supervisor started %d workers", s.threads)
}

// Stop signals the workers and waits up to timeout for them to finish the
// message they hold. Jobs still processing after the timeout stay in
// processing state until an operator or the next startup reconciles them.
func (s *Supervisor) Stop(timeout time.Duration) {
	if s.cancel == nil {
		return
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		klog.Infof("supervisor stopped")
	case <-time.After(timeout):
		klog.Warningf("supervisor stop timed out after %s, some jobs may remain processing", timeout)
	}
}

func (s *Supervisor) run(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := s.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			klog.ErrorS(err, "worker dequeue failed", "worker", id)
			continue
		}
		if msg == nil {
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *Supervisor) handle(ctx context.Context, msg *queue.Message) {
	job, err := s.catalog.GetJob(ctx, msg.JobId)
	if err != nil {
		if commonerrors.IsNotFound(err) {
			// stale message, the job row is gone
			klog.Warningf("job %s has no catalog row, acking", msg.JobId)
			_ = s.queue.Ack(ctx, msg.JobId)
			return
		}
		klog.ErrorS(err, "failed to load job", "job", msg.JobId)
		s.fail(ctx, msg, err)
		return
	}
	if err = s.catalog.MarkJobProcessing(ctx, job.Id); err != nil {
		klog.ErrorS(err, "failed to mark job processing", "job", job.Id)
	}
	processor, ok := s.registry.Resolve(job.JobType)
	if !ok {
		reason := fmt.Sprintf("no processor registered for job type %q", job.JobType)
		klog.Errorf("job %s: %s", job.Id, reason)
		s.fail(ctx, msg, commonerrors.NewPermanent(reason))
		return
	}
	if err = s.invoke(ctx, processor, job); err != nil {
		s.fail(ctx, msg, err)
		return
	}
	if err = s.catalog.MarkJobDone(ctx, job.Id); err != nil {
		klog.ErrorS(err, "failed to mark job done", "job", job.Id)
	}
	if err = s.queue.Ack(ctx, job.Id); err != nil {
		klog.ErrorS(err, "failed to ack job", "job", job.Id)
	}
	metrics.JobsProcessed.Inc()
}

// invoke runs the processor with panic containment. A panicking processor is
// a transient failure, never a dead worker.
func (s *Supervisor) invoke(ctx context.Context, processor processors.Processor, job *client.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("processor panic on job %s: %v", job.Id, r)
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return processor.Process(ctx, job)
}

// fail lets the queue decide between retry and DLQ, then mirrors the outcome
// onto the Job row.
func (s *Supervisor) fail(ctx context.Context, msg *queue.Message, procErr error) {
	permanent := commonerrors.IsPermanent(procErr)
	nacked, dlq, err := s.queue.Nack(ctx, msg.JobId, procErr.Error(), permanent)
	if err != nil {
		klog.ErrorS(err, "failed to nack job", "job", msg.JobId)
		return
	}
	if dlq {
		if err = s.catalog.MarkJobDeadLetter(ctx, msg.JobId, procErr.Error(), nacked.RetryCount); err != nil {
			klog.ErrorS(err, "failed to dead-letter job", "job", msg.JobId)
		}
		metrics.JobsFailed.Inc()
		return
	}
	if err = s.catalog.MarkJobRetry(ctx, msg.JobId, procErr.Error(), nacked.RetryCount, nacked.NextRetryAt); err != nil {
		klog.ErrorS(err, "failed to mark job retry", "job", msg.JobId)
	}
	metrics.JobsRetried.Inc()
}
