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
	"k8s.io/klog/v2"

	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

const (
	TSchemaDef = "schema_def"
)

var (
	getSchemaCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1`, TSchemaDef)
	getSchemaByHashCmd = fmt.Sprintf(`SELECT * FROM %s WHERE structure_hash = $1 LIMIT 1`, TSchemaDef)
	insertSchemaFormat = `INSERT INTO ` + TSchemaDef + ` (%s) VALUES (%s)`
)

// UpsertSchemaByFingerprint inserts a provisional schema unless a row with
// the same structure_hash exists. The unique index arbitrates concurrent
// inserts: on conflict the winning row is re-read and returned. The boolean
// reports whether this call created the row.
func (c *Client) UpsertSchemaByFingerprint(ctx context.Context, schema *SchemaDef) (*SchemaDef, bool, error) {
	if schema == nil {
		return nil, false, commonerrors.NewBadRequest("the input is empty")
	}
	if c.db == nil {
		return nil, false, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	existing, err := c.GetSchemaByHash(ctx, schema.StructureHash)
	if err == nil {
		return existing, false, nil
	}
	if !commonerrors.IsNotFound(err) {
		return nil, false, err
	}

	db := c.db.Unsafe()
	cmd := generateCommand(*schema, insertSchemaFormat, "")
	if _, err = db.NamedExecContext(ctx, cmd, schema); err != nil {
		if dbutils.IsUniqueViolation(err) {
			// lost the insert race, the winner's row is authoritative
			winner, getErr := c.GetSchemaByHash(ctx, schema.StructureHash)
			if getErr != nil {
				return nil, false, getErr
			}
			return winner, false, nil
		}
		klog.ErrorS(err, "failed to insert schema db", "hash", schema.StructureHash)
		return nil, false, err
	}
	return schema, true, nil
}

func (c *Client) GetSchema(ctx context.Context, schemaId string) (*SchemaDef, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var schemas []*SchemaDef
	if err := db.SelectContext(ctx, &schemas, getSchemaCmd, schemaId); err != nil {
		klog.ErrorS(err, "failed to select schema", "id", schemaId)
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, commonerrors.NewWithCode(404, commonerrors.SchemaNotFound, fmt.Sprintf("schema %q not found", schemaId))
	}
	return schemas[0], nil
}

func (c *Client) GetSchemaByHash(ctx context.Context, structureHash string) (*SchemaDef, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var schemas []*SchemaDef
	if err := db.SelectContext(ctx, &schemas, getSchemaByHashCmd, structureHash); err != nil {
		klog.ErrorS(err, "failed to select schema", "hash", structureHash)
		return nil, err
	}
	if len(schemas) == 0 {
		return nil, commonerrors.NewWithCode(404, commonerrors.SchemaNotFound, fmt.Sprintf("schema with hash %q not found", structureHash))
	}
	return schemas[0], nil
}

func (c *Client) SelectSchemas(ctx context.Context, query sqrl.Sqlizer, sortBy, order string, limit, offset int) ([]*SchemaDef, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	orderBy := func() []string {
		var results []string
		if sortBy == "" || order == "" {
			return results
		}
		if order == DESC {
			results = append(results, fmt.Sprintf("%s desc", sortBy))
		} else {
			results = append(results, fmt.Sprintf("%s asc", sortBy))
		}
		return results
	}()
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TSchemaDef).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var schemas []*SchemaDef
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &schemas, sql, args...)
	} else {
		err = db.SelectContext(ctx, &schemas, sql, args...)
	}
	return schemas, err
}

func (c *Client) CountSchemas(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	if c.db == nil {
		return 0, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TSchemaDef).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

func (c *Client) SetSchemaDDL(ctx context.Context, schemaId, ddl string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET ddl=$1, updated_at=$2 WHERE id=$3`, TSchemaDef)
	_, err := db.ExecContext(ctx, cmd, ddl, time.Now().UTC(), schemaId)
	if err != nil {
		klog.ErrorS(err, "failed to update schema db", "id", schemaId)
		return err
	}
	return nil
}

// ActivateSchema flips a provisional schema to active. The status guard in
// the WHERE clause makes approval of a non-provisional schema a no-op that
// surfaces as a precondition error.
func (c *Client) ActivateSchema(ctx context.Context, schemaId, reviewer string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	now := time.Now().UTC()
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', reviewed_by=$1, reviewed_at=$2, updated_at=$3 WHERE id=$4 AND status='%s'`,
		TSchemaDef, SchemaActive, SchemaProvisional)
	result, err := db.ExecContext(ctx, cmd, reviewer, now, now, schemaId)
	if err != nil {
		klog.ErrorS(err, "failed to update schema db", "id", schemaId)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return commonerrors.NewWithCode(400, commonerrors.SchemaNotProvisional,
			fmt.Sprintf("schema %q is not provisional", schemaId))
	}
	return nil
}

func (c *Client) RejectSchema(ctx context.Context, schemaId, reviewer, reason string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	now := time.Now().UTC()
	cmd := fmt.Sprintf(`UPDATE %s
		SET status='%s',
		    reviewed_by=$1,
		    reviewed_at=$2,
		    updated_at=$3,
		    decision_reason=COALESCE(decision_reason, '') || $4
		WHERE id=$5 AND status='%s'`, TSchemaDef, SchemaRejected, SchemaProvisional)
	result, err := db.ExecContext(ctx, cmd, reviewer, now, now, "; rejected: "+reason, schemaId)
	if err != nil {
		klog.ErrorS(err, "failed to update schema db", "id", schemaId)
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return commonerrors.NewWithCode(400, commonerrors.SchemaNotProvisional,
			fmt.Sprintf("schema %q is not provisional", schemaId))
	}
	return nil
}

func (c *Client) CountAssetsBySchema(ctx context.Context, schemaId string) (int, error) {
	return c.CountAssets(ctx, sqrl.Eq{"schema_id": schemaId})
}
