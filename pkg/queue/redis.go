/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/utils/jsonutil"
)

// claimBatch is the page size when scanning the ready set for a claimable
// member.
const claimBatch = 50

// RedisQueue is the distributed backend. The ready set is a sorted set scored
// by negative priority; the single atomic claim step is the ZRem, so workers
// on different processes never double-claim a message. No Lua is involved: a
// losing ZRem just moves to the next candidate.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

func NewRedisQueue() (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: commonconfig.GetRedisAddr(),
		DB:   commonconfig.GetRedisDB(),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, commonerrors.WrapError(err, "failed to connect redis", commonerrors.InternalError)
	}
	klog.Infof("init redis queue, addr: %s", commonconfig.GetRedisAddr())
	return &RedisQueue{client: client, prefix: commonconfig.GetRedisPrefix()}, nil
}

// NewRedisQueueWithClient is the test constructor.
func NewRedisQueueWithClient(client *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{client: client, prefix: prefix}
}

func (q *RedisQueue) readyKey() string            { return q.prefix + ":ready" }
func (q *RedisQueue) metaKey(jobId string) string { return q.prefix + ":meta:" + jobId }
func (q *RedisQueue) inFlightKey(jobId string) string {
	return q.prefix + ":in_flight:" + jobId
}
func (q *RedisQueue) dlqKey(jobId string) string { return q.prefix + ":dlq:" + jobId }
func (q *RedisQueue) dlqIndexKey() string        { return q.prefix + ":dlq_ids" }

func (q *RedisQueue) Enqueue(ctx context.Context, msg *Message) error {
	if msg == nil || msg.JobId == "" {
		return commonerrors.NewBadRequest("the message is empty")
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().Unix()
	}
	payload := jsonutil.MarshalSilently(msg)
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.metaKey(msg.JobId),
		"payload", payload,
		"next_retry_at", msg.NextRetryAt)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{
		Score:  float64(-msg.Priority),
		Member: msg.JobId,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		klog.ErrorS(err, "failed to enqueue message", "job", msg.JobId)
		return err
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		msg, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := pollQuantum
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *RedisQueue) tryClaim(ctx context.Context) (*Message, error) {
	now := time.Now()
	for start := int64(0); ; start += claimBatch {
		candidates, err := q.client.ZRange(ctx, q.readyKey(), start, start+claimBatch-1).Result()
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		for _, jobId := range candidates {
			msg, err := q.loadMeta(ctx, jobId)
			if err != nil {
				// stale member without meta: drop it
				q.client.ZRem(ctx, q.readyKey(), jobId)
				continue
			}
			if !msg.Ready(now) {
				continue
			}
			removed, err := q.client.ZRem(ctx, q.readyKey(), jobId).Result()
			if err != nil {
				return nil, err
			}
			if removed != 1 {
				// another worker won the claim
				continue
			}
			if err = q.client.HSet(ctx, q.inFlightKey(jobId),
				"started_at", now.Unix()).Err(); err != nil {
				return nil, err
			}
			return msg, nil
		}
		if len(candidates) < claimBatch {
			return nil, nil
		}
	}
}

func (q *RedisQueue) loadMeta(ctx context.Context, jobId string) (*Message, error) {
	payload, err := q.client.HGet(ctx, q.metaKey(jobId), "payload").Result()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err = jsonutil.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (q *RedisQueue) Ack(ctx context.Context, jobId string) error {
	exists, err := q.client.Exists(ctx, q.inFlightKey(jobId)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return commonerrors.NewWithCode(404, commonerrors.JobNotFound,
			fmt.Sprintf("job %q is not in flight", jobId))
	}
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, q.inFlightKey(jobId))
	pipe.Del(ctx, q.metaKey(jobId))
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Nack(ctx context.Context, jobId, errorMessage string, permanent bool) (*Message, bool, error) {
	exists, err := q.client.Exists(ctx, q.inFlightKey(jobId)).Result()
	if err != nil {
		return nil, false, err
	}
	if exists == 0 {
		return nil, false, commonerrors.NewWithCode(404, commonerrors.JobNotFound,
			fmt.Sprintf("job %q is not in flight", jobId))
	}
	msg, err := q.loadMeta(ctx, jobId)
	if err != nil {
		return nil, false, err
	}
	if permanent {
		msg.RetryCount = msg.MaxRetries
	}
	if msg.RetryCount >= msg.MaxRetries {
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, q.dlqKey(jobId),
			"payload", jsonutil.MarshalSilently(msg),
			"error", errorMessage,
			"failed_at", time.Now().Unix())
		pipe.SAdd(ctx, q.dlqIndexKey(), jobId)
		pipe.Del(ctx, q.inFlightKey(jobId))
		pipe.Del(ctx, q.metaKey(jobId))
		if _, err = pipe.Exec(ctx); err != nil {
			return nil, false, err
		}
		klog.Infof("job %s moved to dlq after %d retries: %s", jobId, msg.RetryCount, errorMessage)
		return msg, true, nil
	}
	delay := retryDelay(msg.RetryCount)
	msg.RetryCount++
	msg.NextRetryAt = time.Now().Add(delay).Unix()
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.metaKey(jobId),
		"payload", jsonutil.MarshalSilently(msg),
		"next_retry_at", msg.NextRetryAt)
	pipe.ZAdd(ctx, q.readyKey(), redis.Z{
		Score:  float64(-msg.Priority),
		Member: jobId,
	})
	pipe.Del(ctx, q.inFlightKey(jobId))
	if _, err = pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	return msg, false, nil
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	size, err := q.client.ZCard(ctx, q.readyKey()).Result()
	return int(size), err
}

func (q *RedisQueue) DLQSize(ctx context.Context) (int, error) {
	size, err := q.client.SCard(ctx, q.dlqIndexKey()).Result()
	return int(size), err
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
