/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package processors

import (
	"context"
	"sync"

	"github.com/mammothbox/mammothbox/pkg/database/client"
)

// JobPayload is the typed form of Job.JobData. Media jobs carry asset IDs
// only; json jobs additionally carry the document batch.
type JobPayload struct {
	AssetIds []string                 `json:"asset_ids"`
	Batch    []map[string]interface{} `json:"batch,omitempty"`
	Owner    string                   `json:"owner,omitempty"`
	Comments string                   `json:"comments,omitempty"`
	Hint     string                   `json:"hint,omitempty"`
}

// Processor handles one job type. Errors propagate to the worker loop which
// reconciles queue and catalog; a permanent error skips retries.
type Processor interface {
	Type() string
	Process(ctx context.Context, job *client.Job) error
}

// Registry resolves processors by job type. New kinds register by string.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Type()] = p
}

func (r *Registry) Resolve(jobType string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[jobType]
	return p, ok
}
