/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"k8s.io/klog/v2"

	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

const (
	TRawAsset = "raw_asset"
)

var (
	getRawAssetCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1`, TRawAsset)
	insertRawAssetFormat = `INSERT INTO ` + TRawAsset + ` (%s) VALUES (%s)`
)

// ext returns the executor for a write: the supplied transaction when the
// caller runs one, the pooled connection otherwise.
func (c *Client) ext(tx *sqlx.Tx) sqlx.ExtContext {
	if tx != nil {
		return tx.Unsafe()
	}
	return c.db.Unsafe()
}

func (c *Client) InsertRawAsset(ctx context.Context, tx *sqlx.Tx, rawAsset *RawAsset) error {
	if rawAsset == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	cmd := generateCommand(*rawAsset, insertRawAssetFormat, "")
	if _, err := sqlx.NamedExecContext(ctx, c.ext(tx), cmd, rawAsset); err != nil {
		klog.ErrorS(err, "failed to insert raw asset db", "id", rawAsset.Id)
		return err
	}
	return nil
}

func (c *Client) GetRawAsset(ctx context.Context, rawAssetId string) (*RawAsset, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var rawAssets []*RawAsset
	if err := db.SelectContext(ctx, &rawAssets, getRawAssetCmd, rawAssetId); err != nil {
		klog.ErrorS(err, "failed to select raw asset", "id", rawAssetId)
		return nil, err
	}
	if len(rawAssets) == 0 {
		return nil, commonerrors.NewNotFound("RawAsset", rawAssetId)
	}
	return rawAssets[0], nil
}
