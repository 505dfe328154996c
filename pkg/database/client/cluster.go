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
	TCluster = "cluster"
)

var (
	getClusterCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1`, TCluster)
	getClusterByNameCmd = fmt.Sprintf(`SELECT * FROM %s WHERE name = $1 LIMIT 1`, TCluster)
	insertClusterFormat = `INSERT INTO ` + TCluster + ` (%s) VALUES (%s)`
)

func (c *Client) InsertCluster(ctx context.Context, cluster *Cluster) error {
	if cluster == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := generateCommand(*cluster, insertClusterFormat, "")
	if _, err := db.NamedExecContext(ctx, cmd, cluster); err != nil {
		if dbutils.IsUniqueViolation(err) {
			return commonerrors.NewWithCode(409, commonerrors.ClusterNameExists,
				fmt.Sprintf("cluster name %q already exists", cluster.Name))
		}
		klog.ErrorS(err, "failed to insert cluster db", "id", cluster.Id)
		return err
	}
	return nil
}

func (c *Client) GetCluster(ctx context.Context, clusterId string) (*Cluster, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var clusters []*Cluster
	if err := db.SelectContext(ctx, &clusters, getClusterCmd, clusterId); err != nil {
		klog.ErrorS(err, "failed to select cluster", "id", clusterId)
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, commonerrors.NewWithCode(404, commonerrors.ClusterNotFound, fmt.Sprintf("cluster %q not found", clusterId))
	}
	return clusters[0], nil
}

func (c *Client) GetClusterByName(ctx context.Context, name string) (*Cluster, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var clusters []*Cluster
	if err := db.SelectContext(ctx, &clusters, getClusterByNameCmd, name); err != nil {
		klog.ErrorS(err, "failed to select cluster", "name", name)
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, commonerrors.NewWithCode(404, commonerrors.ClusterNotFound, fmt.Sprintf("cluster %q not found", name))
	}
	return clusters[0], nil
}

func (c *Client) SelectClusters(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Cluster, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	if limit < 0 {
		var err error
		if limit, err = c.CountClusters(ctx, query); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TCluster).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var clusters []*Cluster
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &clusters, sql, args...)
	} else {
		err = db.SelectContext(ctx, &clusters, sql, args...)
	}
	return clusters, err
}

func (c *Client) CountClusters(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	if c.db == nil {
		return 0, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TCluster).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

func (c *Client) RenameCluster(ctx context.Context, clusterId, name string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET name=$1, updated_at=$2 WHERE id=$3`, TCluster)
	if _, err := db.ExecContext(ctx, cmd, name, time.Now().UTC(), clusterId); err != nil {
		if dbutils.IsUniqueViolation(err) {
			return commonerrors.NewWithCode(409, commonerrors.ClusterNameExists,
				fmt.Sprintf("cluster name %q already exists", name))
		}
		klog.ErrorS(err, "failed to rename cluster db", "id", clusterId)
		return err
	}
	return nil
}

func (c *Client) UpdateClusterThreshold(ctx context.Context, clusterId string, threshold float64) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET threshold=$1, updated_at=$2 WHERE id=$3`, TCluster)
	if _, err := db.ExecContext(ctx, cmd, threshold, time.Now().UTC(), clusterId); err != nil {
		klog.ErrorS(err, "failed to update cluster db", "id", clusterId)
		return err
	}
	return nil
}

func (c *Client) ConfirmCluster(ctx context.Context, clusterId string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET provisional=false, updated_at=$1 WHERE id=$2`, TCluster)
	if _, err := db.ExecContext(ctx, cmd, time.Now().UTC(), clusterId); err != nil {
		klog.ErrorS(err, "failed to confirm cluster db", "id", clusterId)
		return err
	}
	return nil
}

func (c *Client) UpdateClusterCentroid(ctx context.Context, tx *sqlx.Tx, clusterId string, centroid []float64) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	cmd := fmt.Sprintf(`UPDATE %s SET centroid=$1, updated_at=$2 WHERE id=$3`, TCluster)
	if _, err := c.ext(tx).ExecContext(ctx, cmd, pq.Float64Array(centroid), time.Now().UTC(), clusterId); err != nil {
		klog.ErrorS(err, "failed to update cluster centroid db", "id", clusterId)
		return err
	}
	return nil
}

func (c *Client) DeleteCluster(ctx context.Context, tx *sqlx.Tx, clusterId string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	cmd := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, TCluster)
	if _, err := c.ext(tx).ExecContext(ctx, cmd, clusterId); err != nil {
		klog.ErrorS(err, "failed to delete cluster db", "id", clusterId)
		return err
	}
	return nil
}

// SelectClusterEmbeddings loads the embedding of every asset assigned to the
// cluster, for centroid recomputation after a merge.
func (c *Client) SelectClusterEmbeddings(ctx context.Context, clusterId string) ([][]float64, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`SELECT embedding FROM %s WHERE cluster_id=$1 AND embedding IS NOT NULL`, TAsset)
	var rows []pq.Float64Array
	if err := db.SelectContext(ctx, &rows, cmd, clusterId); err != nil {
		klog.ErrorS(err, "failed to select cluster embeddings", "id", clusterId)
		return nil, err
	}
	results := make([][]float64, 0, len(rows))
	for _, row := range rows {
		results = append(results, []float64(row))
	}
	return results, nil
}
