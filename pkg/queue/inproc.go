/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

type heapItem struct {
	msg *Message
	seq uint64
}

// messageHeap orders by priority descending, then enqueue sequence ascending.
type messageHeap []*heapItem

func (h messageHeap) Len() int { return len(h) }
func (h messageHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority
	}
	return h[i].seq < h[j].seq
}
func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *messageHeap) Push(x interface{}) {
	*h = append(*h, x.(*heapItem))
}
func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// InprocQueue is the single-process backend: a mutex-guarded priority heap
// plus an in-flight map. Delayed messages stay in the heap and are skipped
// until ready, so they never block ready messages.
type InprocQueue struct {
	mu       sync.Mutex
	ready    messageHeap
	inFlight map[string]*Message
	dlq      map[string]*Message
	seq      uint64
	closed   bool
}

func NewInprocQueue() *InprocQueue {
	q := &InprocQueue{
		inFlight: make(map[string]*Message),
		dlq:      make(map[string]*Message),
	}
	heap.Init(&q.ready)
	return q
}

func (q *InprocQueue) Enqueue(_ context.Context, msg *Message) error {
	if msg == nil || msg.JobId == "" {
		return commonerrors.NewBadRequest("the message is empty")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return commonerrors.NewWithCode(500, commonerrors.QueueClosed, "the queue is closed")
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().Unix()
	}
	q.seq++
	heap.Push(&q.ready, &heapItem{msg: msg, seq: q.seq})
	return nil
}

// Dequeue returns the highest-priority ready message, polling in short
// quanta while only delayed messages remain. (nil, nil) on timeout.
func (q *InprocQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		if msg := q.tryClaim(); msg != nil {
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

// tryClaim pops the best ready message. Delayed heads are set aside and
// pushed back, preserving their order.
func (q *InprocQueue) tryClaim() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	now := time.Now()
	var delayed []*heapItem
	var claimed *Message
	for q.ready.Len() > 0 {
		item := heap.Pop(&q.ready).(*heapItem)
		if item.msg.Ready(now) {
			claimed = item.msg
			break
		}
		delayed = append(delayed, item)
	}
	for _, item := range delayed {
		heap.Push(&q.ready, item)
	}
	if claimed != nil {
		q.inFlight[claimed.JobId] = claimed
	}
	return claimed
}

func (q *InprocQueue) Ack(_ context.Context, jobId string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inFlight[jobId]; !ok {
		return commonerrors.NewWithCode(404, commonerrors.JobNotFound,
			fmt.Sprintf("job %q is not in flight", jobId))
	}
	delete(q.inFlight, jobId)
	return nil
}

func (q *InprocQueue) Nack(_ context.Context, jobId, errorMessage string, permanent bool) (*Message, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.inFlight[jobId]
	if !ok {
		return nil, false, commonerrors.NewWithCode(404, commonerrors.JobNotFound,
			fmt.Sprintf("job %q is not in flight", jobId))
	}
	delete(q.inFlight, jobId)
	if permanent {
		msg.RetryCount = msg.MaxRetries
	}
	if msg.RetryCount >= msg.MaxRetries {
		q.dlq[jobId] = msg
		klog.Infof("job %s moved to dlq after %d retries: %s", jobId, msg.RetryCount, errorMessage)
		return msg, true, nil
	}
	delay := retryDelay(msg.RetryCount)
	msg.RetryCount++
	msg.NextRetryAt = time.Now().Add(delay).Unix()
	q.seq++
	heap.Push(&q.ready, &heapItem{msg: msg, seq: q.seq})
	return msg, false, nil
}

func (q *InprocQueue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len(), nil
}

func (q *InprocQueue) DLQSize(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq), nil
}

// Close rejects further enqueues and drops queued messages. In-flight
// messages finish through Ack/Nack as usual.
func (q *InprocQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.ready = q.ready[:0]
	return nil
}
