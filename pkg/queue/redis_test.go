/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gotest.tools/assert"
)

func newTestRedisQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueueWithClient(client, "queue")
}

func TestRedisRoundTrip(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := t.Context()

	assert.NilError(t, q.Enqueue(ctx, msg("j1", 1)))
	size, err := q.Size(ctx)
	assert.NilError(t, err)
	assert.Equal(t, size, 1)

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "j1")
	assert.Equal(t, got.JobType, "json")

	size, err = q.Size(ctx)
	assert.NilError(t, err)
	assert.Equal(t, size, 0)

	assert.NilError(t, q.Ack(ctx, "j1"))
	assert.ErrorContains(t, q.Ack(ctx, "j1"), "not in flight")
}

func TestRedisPriorityOrdering(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := t.Context()
	assert.NilError(t, q.Enqueue(ctx, msg("low", 1)))
	assert.NilError(t, q.Enqueue(ctx, msg("high", 5)))

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "high")
	assert.NilError(t, q.Ack(ctx, "high"))

	got, err = q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "low")
}

func TestRedisNackRetrySchedulesBackoff(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := t.Context()
	assert.NilError(t, q.Enqueue(ctx, msg("j", 1)))

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "j")

	before := time.Now()
	nacked, dlq, err := q.Nack(ctx, "j", "boom", false)
	assert.NilError(t, err)
	assert.Assert(t, !dlq)
	assert.Equal(t, nacked.RetryCount, 1)
	assert.Assert(t, nacked.NextRetryAt >= before.Unix())

	// back in ready but delayed, so a short dequeue comes up empty
	size, err := q.Size(ctx)
	assert.NilError(t, err)
	assert.Equal(t, size, 1)
	got, err = q.Dequeue(ctx, 80*time.Millisecond)
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
}

func TestRedisNackToDLQ(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := t.Context()
	m := msg("j", 1)
	m.MaxRetries = 0
	assert.NilError(t, q.Enqueue(ctx, m))

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "j")

	_, dlq, err := q.Nack(ctx, "j", "boom", false)
	assert.NilError(t, err)
	assert.Assert(t, dlq)

	dlqSize, err := q.DLQSize(ctx)
	assert.NilError(t, err)
	assert.Equal(t, dlqSize, 1)

	got, err = q.Dequeue(ctx, 60*time.Millisecond)
	assert.NilError(t, err)
	assert.Assert(t, got == nil)
}

func TestRedisNackPermanent(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := t.Context()
	assert.NilError(t, q.Enqueue(ctx, msg("j", 1)))

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "j")

	nacked, dlq, err := q.Nack(ctx, "j", "bad payload", true)
	assert.NilError(t, err)
	assert.Assert(t, dlq)
	assert.Equal(t, nacked.RetryCount, nacked.MaxRetries)
}

func TestRedisClaimScansPastDelayedBacklog(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := t.Context()

	// more delayed messages than one scan page, all sorted ahead of the
	// only claimable one
	future := time.Now().Add(time.Hour).Unix()
	for i := 0; i < claimBatch+10; i++ {
		m := msg(fmt.Sprintf("delayed-%03d", i), 5)
		m.NextRetryAt = future
		assert.NilError(t, q.Enqueue(ctx, m))
	}
	assert.NilError(t, q.Enqueue(ctx, msg("ready", 1)))

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Assert(t, got != nil)
	assert.Equal(t, got.JobId, "ready")
}

func TestRedisStaleReadyMember(t *testing.T) {
	q := newTestRedisQueue(t)
	ctx := t.Context()
	// a ready member without meta must be skipped and cleaned up
	assert.NilError(t, q.client.ZAdd(ctx, q.readyKey(), redis.Z{Score: 0, Member: "ghost"}).Err())
	assert.NilError(t, q.Enqueue(ctx, msg("real", 0)))

	got, err := q.Dequeue(ctx, time.Second)
	assert.NilError(t, err)
	assert.Equal(t, got.JobId, "real")
}
