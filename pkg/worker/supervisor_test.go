/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/mammothbox/mammothbox/pkg/database/client"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/processors"
	"github.com/mammothbox/mammothbox/pkg/queue"
)

type retryMark struct {
	jobId       string
	retryCount  int
	nextRetryAt int64
}

type fakeCatalog struct {
	client.Interface
	mu         sync.Mutex
	jobs       map[string]*client.Job
	processing []string
	done       []string
	retries    []retryMark
	dead       []retryMark
	queued     []*client.Job
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{jobs: make(map[string]*client.Job)}
}

func (f *fakeCatalog) GetJob(_ context.Context, jobId string) (*client.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobId]
	if !ok {
		return nil, commonerrors.NewWithCode(404, commonerrors.JobNotFound, "job not found")
	}
	return job, nil
}

func (f *fakeCatalog) MarkJobProcessing(_ context.Context, jobId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processing = append(f.processing, jobId)
	return nil
}

func (f *fakeCatalog) MarkJobDone(_ context.Context, jobId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, jobId)
	return nil
}

func (f *fakeCatalog) MarkJobRetry(_ context.Context, jobId, _ string, retryCount int, nextRetryAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, retryMark{jobId: jobId, retryCount: retryCount, nextRetryAt: nextRetryAt})
	return nil
}

func (f *fakeCatalog) MarkJobDeadLetter(_ context.Context, jobId, _ string, retryCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = append(f.dead, retryMark{jobId: jobId, retryCount: retryCount})
	return nil
}

func (f *fakeCatalog) SelectQueuedJobs(_ context.Context, _ int) ([]*client.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued, nil
}

func (f *fakeCatalog) doneCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.done)
}

func (f *fakeCatalog) deadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dead)
}

func (f *fakeCatalog) retryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.retries)
}

type scriptedProcessor struct {
	jobType string
	mu      sync.Mutex
	calls   int
	fail    error
	panics  bool
}

func (p *scriptedProcessor) Type() string { return p.jobType }

func (p *scriptedProcessor) Process(_ context.Context, _ *client.Job) error {
	p.mu.Lock()
	p.calls++
	panics, fail := p.panics, p.fail
	p.mu.Unlock()
	if panics {
		panic("scripted panic")
	}
	return fail
}

func (p *scriptedProcessor) setPanics(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panics = v
}

func (p *scriptedProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func startSupervisor(t *testing.T, catalog *fakeCatalog, q queue.Queue, procs ...processors.Processor) *Supervisor {
	t.Helper()
	registry := processors.NewRegistry()
	for _, p := range procs {
		registry.Register(p)
	}
	supervisor := NewSupervisor(catalog, q, registry, 1)
	supervisor.Start()
	t.Cleanup(func() { supervisor.Stop(2 * time.Second) })
	return supervisor
}

func seedJob(catalog *fakeCatalog, q queue.Queue, jobId, jobType string, maxRetries int) {
	job := &client.Job{Id: jobId, RequestId: "req-" + jobId, JobType: jobType, Status: client.StatusQueued, MaxRetries: maxRetries}
	catalog.mu.Lock()
	catalog.jobs[jobId] = job
	catalog.mu.Unlock()
	_ = q.Enqueue(context.Background(), &queue.Message{JobId: jobId, JobType: jobType, MaxRetries: maxRetries})
}

func TestSupervisorProcessesJob(t *testing.T) {
	catalog := newFakeCatalog()
	q := queue.NewInprocQueue()
	processor := &scriptedProcessor{jobType: client.JobTypeJson}
	startSupervisor(t, catalog, q, processor)

	seedJob(catalog, q, "j1", client.JobTypeJson, 3)
	waitFor(t, func() bool { return catalog.doneCount() == 1 })
	assert.Equal(t, processor.callCount(), 1)

	size, err := q.Size(t.Context())
	assert.NilError(t, err)
	assert.Equal(t, size, 0)
}

func TestSupervisorTransientFailureSchedulesRetry(t *testing.T) {
	catalog := newFakeCatalog()
	q := queue.NewInprocQueue()
	processor := &scriptedProcessor{jobType: client.JobTypeJson, fail: fmt.Errorf("flaky downstream")}
	startSupervisor(t, catalog, q, processor)

	seedJob(catalog, q, "j1", client.JobTypeJson, 3)
	waitFor(t, func() bool { return catalog.retryCount() >= 1 })

	catalog.mu.Lock()
	mark := catalog.retries[0]
	catalog.mu.Unlock()
	assert.Equal(t, mark.jobId, "j1")
	assert.Equal(t, mark.retryCount, 1)
	assert.Assert(t, mark.nextRetryAt >= time.Now().Unix())
}

func TestSupervisorPermanentErrorGoesStraightToDLQ(t *testing.T) {
	catalog := newFakeCatalog()
	q := queue.NewInprocQueue()
	processor := &scriptedProcessor{jobType: client.JobTypeJson, fail: commonerrors.NewPermanent("cannot fingerprint")}
	startSupervisor(t, catalog, q, processor)

	seedJob(catalog, q, "j1", client.JobTypeJson, 3)
	waitFor(t, func() bool { return catalog.deadCount() == 1 })
	assert.Equal(t, processor.callCount(), 1)
	assert.Equal(t, catalog.retryCount(), 0)

	dlqSize, err := q.DLQSize(t.Context())
	assert.NilError(t, err)
	assert.Equal(t, dlqSize, 1)
}

func TestSupervisorExhaustedRetriesDeadLetter(t *testing.T) {
	catalog := newFakeCatalog()
	q := queue.NewInprocQueue()
	processor := &scriptedProcessor{jobType: client.JobTypeJson, fail: fmt.Errorf("always failing")}
	startSupervisor(t, catalog, q, processor)

	seedJob(catalog, q, "j1", client.JobTypeJson, 0)
	waitFor(t, func() bool { return catalog.deadCount() == 1 })
}

func TestSupervisorUnknownJobTypeDeadLettersAsPermanent(t *testing.T) {
	catalog := newFakeCatalog()
	q := queue.NewInprocQueue()
	startSupervisor(t, catalog, q)

	seedJob(catalog, q, "j1", "mystery", 3)
	waitFor(t, func() bool { return catalog.deadCount() == 1 })

	// permanent failures exhaust the retry allowance on their way to the DLQ
	catalog.mu.Lock()
	mark := catalog.dead[0]
	catalog.mu.Unlock()
	assert.Equal(t, mark.jobId, "j1")
	assert.Equal(t, mark.retryCount, 3)

	size, err := q.Size(t.Context())
	assert.NilError(t, err)
	assert.Equal(t, size, 0)
	dlqSize, err := q.DLQSize(t.Context())
	assert.NilError(t, err)
	assert.Equal(t, dlqSize, 1)
}

func TestSupervisorStaleMessageAcked(t *testing.T) {
	catalog := newFakeCatalog()
	q := queue.NewInprocQueue()
	processor := &scriptedProcessor{jobType: client.JobTypeJson}
	startSupervisor(t, catalog, q, processor)

	// message without a catalog row
	_ = q.Enqueue(context.Background(), &queue.Message{JobId: "ghost", JobType: client.JobTypeJson, MaxRetries: 3})
	waitFor(t, func() bool {
		size, _ := q.Size(context.Background())
		return size == 0
	})
	assert.Equal(t, processor.callCount(), 0)
	assert.Equal(t, catalog.doneCount(), 0)
}

func TestSupervisorRecoversFromPanic(t *testing.T) {
	catalog := newFakeCatalog()
	q := queue.NewInprocQueue()
	panicky := &scriptedProcessor{jobType: client.JobTypeJson, panics: true}
	startSupervisor(t, catalog, q, panicky)

	seedJob(catalog, q, "boom", client.JobTypeJson, 0)
	waitFor(t, func() bool { return catalog.deadCount() == 1 })

	// the worker survives and keeps serving
	healthy := &client.Job{Id: "ok", JobType: client.JobTypeJson, Status: client.StatusQueued, MaxRetries: 0}
	catalog.mu.Lock()
	catalog.jobs["ok"] = healthy
	catalog.mu.Unlock()
	panicky.setPanics(false)
	_ = q.Enqueue(context.Background(), &queue.Message{JobId: "ok", JobType: client.JobTypeJson})
	waitFor(t, func() bool { return catalog.doneCount() == 1 })
}
