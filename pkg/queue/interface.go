/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"fmt"
	"time"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

const (
	BackendInproc      = "inproc"
	BackendDistributed = "distributed"

	// pollQuantum bounds the sleep between readiness checks while a dequeue
	// waits on delayed messages.
	pollQuantum = 50 * time.Millisecond
)

// Message mirrors a Job row on the queue side. NextRetryAt is unix seconds;
// zero means immediately ready.
type Message struct {
	JobId       string `json:"job_id"`
	JobType     string `json:"job_type"`
	JobData     []byte `json:"job_data,omitempty"`
	Priority    int    `json:"priority"`
	RetryCount  int    `json:"retry_count"`
	MaxRetries  int    `json:"max_retries"`
	CreatedAt   int64  `json:"created_at"`
	NextRetryAt int64  `json:"next_retry_at,omitempty"`
}

// Ready reports whether the message may be delivered at the given time.
func (m *Message) Ready(now time.Time) bool {
	return m.NextRetryAt == 0 || m.NextRetryAt <= now.Unix()
}

// Queue is the contract shared by the in-process and distributed backends.
// Dequeue blocks up to timeout and returns (nil, nil) when nothing became
// ready. Nack reports the rescheduled message and whether it went to the DLQ
// so the caller can mirror the decision into the catalog.
type Queue interface {
	Enqueue(ctx context.Context, msg *Message) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Message, error)
	Ack(ctx context.Context, jobId string) error
	Nack(ctx context.Context, jobId, errorMessage string, permanent bool) (*Message, bool, error)
	Size(ctx context.Context) (int, error)
	DLQSize(ctx context.Context) (int, error)
	Close() error
}

// New builds the queue backend selected by configuration.
func New() (Queue, error) {
	backend := commonconfig.GetQueueBackend()
	switch backend {
	case BackendInproc:
		return NewInprocQueue(), nil
	case BackendDistributed:
		return NewRedisQueue()
	default:
		return nil, commonerrors.NewBadRequest(fmt.Sprintf("unknown queue backend %q", backend))
	}
}

// retryDelay is the exponential backoff before the next attempt, computed
// from the retry count before increment: 1s, 2s, 4s, ...
func retryDelay(retryCountBefore int) time.Duration {
	if retryCountBefore < 0 {
		retryCountBefore = 0
	}
	if retryCountBefore > 30 {
		retryCountBefore = 30
	}
	return time.Duration(1<<uint(retryCountBefore)) * time.Second
}
