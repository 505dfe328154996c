/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"k8s.io/klog/v2"

	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

const (
	TAsset = "asset"
)

var (
	getAssetCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1`, TAsset)
	insertAssetFormat = `INSERT INTO ` + TAsset + ` (%s) VALUES (%s)`
	updateAssetMediaCmd = fmt.Sprintf(`UPDATE %s
		SET uri = :uri,
		    sha256 = :sha256,
		    content_type = :content_type,
		    size_bytes = :size_bytes,
		    status = :status,
		    cluster_id = :cluster_id,
		    embedding = :embedding,
		    metadata = :metadata,
		    updated_at = :updated_at
		WHERE id = :id`, TAsset)
)

func (c *Client) InsertAsset(ctx context.Context, tx *sqlx.Tx, asset *Asset) error {
	if asset == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	cmd := generateCommand(*asset, insertAssetFormat, "")
	if _, err := sqlx.NamedExecContext(ctx, c.ext(tx), cmd, asset); err != nil {
		klog.ErrorS(err, "failed to insert asset db", "id", asset.Id)
		return err
	}
	return nil
}

func (c *Client) SelectAssets(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Asset, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	if limit < 0 {
		var err error
		if limit, err = c.CountAssets(ctx, query); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TAsset).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var assets []*Asset
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &assets, sql, args...)
	} else {
		err = db.SelectContext(ctx, &assets, sql, args...)
	}
	return assets, err
}

func (c *Client) CountAssets(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	if c.db == nil {
		return 0, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TAsset).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

func (c *Client) GetAsset(ctx context.Context, assetId string) (*Asset, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var assets []*Asset
	if err := db.SelectContext(ctx, &assets, getAssetCmd, assetId); err != nil {
		klog.ErrorS(err, "failed to select asset", "id", assetId)
		return nil, err
	}
	if len(assets) == 0 {
		return nil, commonerrors.NewNotFound("Asset", assetId)
	}
	return assets[0], nil
}

func (c *Client) SetAssetStatus(ctx context.Context, assetId, status string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET status=$1, updated_at=$2 WHERE id=$3`, TAsset)
	_, err := db.ExecContext(ctx, cmd, status, time.Now().UTC(), assetId)
	if err != nil {
		klog.ErrorS(err, "failed to update asset db", "id", assetId)
		return err
	}
	return nil
}

// SetAssetProcessed records the storage location decided by the json
// processor along with the schema reference and terminal status.
func (c *Client) SetAssetProcessed(ctx context.Context, assetId, uri, schemaId, status string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET uri=$1, schema_id=$2, status=$3, updated_at=$4 WHERE id=$5`, TAsset)
	_, err := db.ExecContext(ctx, cmd, uri, dbutils.NullString(schemaId), status, time.Now().UTC(), assetId)
	if err != nil {
		klog.ErrorS(err, "failed to update asset db", "id", assetId)
		return err
	}
	return nil
}

func (c *Client) UpdateAssetMedia(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	asset.UpdatedAt = dbutils.NullTime(time.Now().UTC())
	db := c.db.Unsafe()
	if _, err := db.NamedExecContext(ctx, updateAssetMediaCmd, asset); err != nil {
		klog.ErrorS(err, "failed to update media asset db", "id", asset.Id)
		return err
	}
	return nil
}

// MoveAssetsToCluster reassigns every asset of the source clusters to the
// target and returns the number of moved rows.
func (c *Client) MoveAssetsToCluster(ctx context.Context, tx *sqlx.Tx, sourceClusterIds []string, targetClusterId string) (int64, error) {
	if c.db == nil {
		return 0, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	cmd := fmt.Sprintf(`UPDATE %s SET cluster_id=$1, updated_at=$2 WHERE cluster_id = ANY($3)`, TAsset)
	result, err := c.ext(tx).ExecContext(ctx, cmd, targetClusterId, time.Now().UTC(), pq.Array(sourceClusterIds))
	if err != nil {
		klog.ErrorS(err, "failed to move assets", "target", targetClusterId)
		return 0, err
	}
	return result.RowsAffected()
}

// CascadeAssetStatusBySchema flips every asset referencing the schema from
// one status to another, returning the affected count. Used by the admin
// approve/reject cascade.
func (c *Client) CascadeAssetStatusBySchema(ctx context.Context, schemaId, fromStatus, toStatus string) (int64, error) {
	if c.db == nil {
		return 0, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET status=$1, updated_at=$2 WHERE schema_id=$3 AND status=$4`, TAsset)
	result, err := db.ExecContext(ctx, cmd, toStatus, time.Now().UTC(), schemaId, fromStatus)
	if err != nil {
		klog.ErrorS(err, "failed to cascade asset status", "schema", schemaId)
		return 0, err
	}
	return result.RowsAffected()
}
