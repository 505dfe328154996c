/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package processors

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/mammothbox/mammothbox/pkg/database/client"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
	"github.com/mammothbox/mammothbox/pkg/utils/jsonutil"
)

// MediaService normalizes media bytes, computes hashes and embeddings, and
// updates the asset row. The implementation is external to this system.
type MediaService interface {
	ProcessAsset(ctx context.Context, asset *client.Asset) error
}

// MediaProcessor fans a media job out to the media service, one asset at a
// time. All assets are attempted; the first failure becomes the job error.
type MediaProcessor struct {
	catalog client.Interface
	media   MediaService
}

func NewMediaProcessor(catalog client.Interface, media MediaService) *MediaProcessor {
	return &MediaProcessor{catalog: catalog, media: media}
}

func (p *MediaProcessor) Type() string {
	return client.JobTypeMedia
}

func (p *MediaProcessor) Process(ctx context.Context, job *client.Job) error {
	var payload JobPayload
	if err := jsonutil.Unmarshal(job.JobData, &payload); err != nil {
		return commonerrors.NewPermanent(fmt.Sprintf("job %s carries undecodable data: %v", job.Id, err))
	}
	if p.media == nil {
		return commonerrors.NewInternalError("no media service is configured")
	}
	var firstErr error
	failed := 0
	for _, assetId := range payload.AssetIds {
		asset, err := p.catalog.GetAsset(ctx, assetId)
		if err != nil {
			if commonerrors.IsNotFound(err) {
				klog.Warningf("asset %s vanished before media processing", assetId)
				continue
			}
			return err
		}
		if asset.Kind == client.KindJson {
			continue
		}
		if err = p.media.ProcessAsset(ctx, asset); err != nil {
			klog.ErrorS(err, "media processing failed", "asset", assetId)
			failed++
			if firstErr == nil {
				firstErr = err
			}
			if statusErr := p.catalog.SetAssetStatus(ctx, assetId, client.StatusFailed); statusErr != nil {
				klog.ErrorS(statusErr, "failed to mark asset failed", "asset", assetId)
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("media job %s: %d asset(s) failed, first: %w", job.Id, failed, firstErr)
	}
	return nil
}
