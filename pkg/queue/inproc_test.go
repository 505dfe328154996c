/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"fmt"
	"testing"
	"time"

	"gotest.tools/assert"
)

func msg(id string, priority int) *Message {
	return &Message{JobId: id, JobType: "json", Priority: priority, MaxRetries: 3}
}

func TestInprocPriorityOrdering(t *testing.T) {
	q := NewInprocQueue()
	ctx := t.Context()
	assert.NilError(t, q.Enqueue(ctx, msg("low", 1)))
	assert.NilError(t, q.Enqueue(ctx, msg("high", 5)))
	assert.NilError(t, q.Enqueue(ctx, msg("mid", 3)))

	for _, want := range []string{"high", "mid", "low"} {
		got, err := q.Dequeue(ctx, time.Second)
		assert.NilError(t, err)
		assert.Equal(t, got.JobId, want)
		assert.NilError(t, q.Ack(ctx, got.JobId))
	}
}

func TestInprocFIFOWithinPriority(t *testing.T) {
	q := NewInprocQueue()
	ctx := t.Context()
	for i := 0; i < 5; i++ {
		assert.NilError(t, q.Enqueue(ctx, msg(fmt.Sprintf("j%d", i), 2)))
	}
	for i := 0; i < 5; i++ {
		got, err := q.Dequeue(ctx, time.Second)
		assert.NilError(t, err)
		assert.Equal(t, got.JobId, fmt.Sprintf("j%d", i))
		assert.NilError(t, q.Ack(ctx, got.JobId))
	}
}

func TestInprocDequeueTimeout(t *testing.T) {
	q := NewInprocQueue()
	start := time.Now()
	got, err := q.Dequeue(t.Context(), 120*time.Millisecond)
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
	elapsed := time.Since(start)
	assert.Assert(t, elapsed >= 120*time.Millisecond)
	assert.Assert(t, elapsed < 500*time.Millisecond)
}

func TestInprocDelayedDoesNotBlockReady(t *testing.T) {
	q := NewInprocQueue()
	ctx := t.Context()
	delayed := msg("delayed", 9)
	delayed.NextRetryAt = time.Now().Add(time.Hour).Unix()
	assert.NilError(t, q.Enqueue(ctx, delayed))
	assert.NilError(t, q.Enqueue(ctx, msg("ready", 1)))

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "ready")

	size, err := q.Size(ctx)
	assert.NilError(t, err)
	assert.Equal(t, size, 1)
}

func TestInprocNackRetryThenDLQ(t *testing.T) {
	q := NewInprocQueue()
	ctx := t.Context()
	assert.NilError(t, q.Enqueue(ctx, msg("j", 1)))

	// initial attempt plus 3 retries, each retry backs off 2^n seconds
	for attempt := 0; attempt < 3; attempt++ {
		got, err := q.Dequeue(ctx, time.Second)
		assert.NilError(t, err)
		assert.Equal(t, got.JobId, "j")

		before := time.Now()
		nacked, dlq, err := q.Nack(ctx, "j", "boom", false)
		assert.NilError(t, err)
		assert.Assert(t, !dlq)
		assert.Equal(t, nacked.RetryCount, attempt+1)
		minDelay := int64(1 << uint(attempt))
		assert.Assert(t, nacked.NextRetryAt-before.Unix() >= minDelay-1)

		// release the backoff so the next attempt is immediate
		nacked.NextRetryAt = 0
	}

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.RetryCount, 3)

	nacked, dlq, err := q.Nack(ctx, "j", "boom", false)
	assert.NilError(t, err)
	assert.Assert(t, dlq)
	assert.Equal(t, nacked.RetryCount, 3)

	dlqSize, err := q.DLQSize(ctx)
	assert.NilError(t, err)
	assert.Equal(t, dlqSize, 1)

	// dead-lettered jobs are never delivered again
	got, err = q.Dequeue(ctx, 60*time.Millisecond)
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
}

func TestInprocNackPermanent(t *testing.T) {
	q := NewInprocQueue()
	ctx := t.Context()
	assert.NilError(t, q.Enqueue(ctx, msg("j", 1)))
	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "j")

	nacked, dlq, err := q.Nack(ctx, "j", "irrecoverable", true)
	assert.NilError(t, err)
	assert.Assert(t, dlq)
	assert.Equal(t, nacked.RetryCount, nacked.MaxRetries)
}

func TestInprocAckUnknownJob(t *testing.T) {
	q := NewInprocQueue()
	ctx := t.Context()
	assert.ErrorContains(t, q.Ack(ctx, "ghost"), "not in flight")
	_, _, err := q.Nack(ctx, "ghost", "x", false)
	assert.ErrorContains(t, err, "not in flight")
}

func TestInprocClose(t *testing.T) {
	q := NewInprocQueue()
	ctx := t.Context()
	assert.NilError(t, q.Enqueue(ctx, msg("j", 1)))
	assert.NilError(t, q.Close())
	assert.ErrorContains(t, q.Enqueue(ctx, msg("k", 1)), "closed")

	got, err := q.Dequeue(ctx, 60*time.Millisecond)
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, retryDelay(0), time.Second)
	assert.Equal(t, retryDelay(1), 2*time.Second)
	assert.Equal(t, retryDelay(2), 4*time.Second)
	assert.Equal(t, retryDelay(-1), time.Second)
	assert.Equal(t, retryDelay(64), retryDelay(30))
}
