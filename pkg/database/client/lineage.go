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
	TLineage = "lineage"
)

var (
	selectLineageCmd    = fmt.Sprintf(`SELECT * FROM %s WHERE request_id = $1 ORDER BY created_at ASC, id ASC`, TLineage)
	insertLineageFormat = `INSERT INTO ` + TLineage + ` (%s) VALUES (%s)`
)

// InsertLineage appends an audit record. The id column is serial and is
// excluded from the insert.
func (c *Client) InsertLineage(ctx context.Context, tx *sqlx.Tx, lineage *Lineage) error {
	if lineage == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	cmd := generateCommand(*lineage, insertLineageFormat, "id")
	if _, err := sqlx.NamedExecContext(ctx, c.ext(tx), cmd, lineage); err != nil {
		klog.ErrorS(err, "failed to insert lineage db", "request_id", lineage.RequestId)
		return err
	}
	return nil
}

func (c *Client) SelectLineageByRequestId(ctx context.Context, requestId string) ([]*Lineage, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var records []*Lineage
	if err := db.SelectContext(ctx, &records, selectLineageCmd, requestId); err != nil {
		klog.ErrorS(err, "failed to select lineage", "request_id", requestId)
		return nil, err
	}
	return records, nil
}
