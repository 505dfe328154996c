/*
 * Copyright (c) 2025, MammothBox Authors. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	commonconfig "github.com/mammothbox/mammothbox/pkg/config"
	"github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

var (
	once     sync.Once
	instance *Client
)

// Client manages both sqlx and gorm connections against the catalog database.
// Row CRUD goes through sqlx; DDL execution and startup migration go through
// gorm.
type Client struct {
	db              *sqlx.DB
	gorm            *gorm.DB
	*utils.DBConfig
}

// NewClient creates the singleton catalog client from common configuration.
// The initialization happens only once even if called multiple times.
func NewClient() *Client {
	once.Do(func() {
		cfg := &utils.DBConfig{
			DBName:         commonconfig.GetDBName(),
			Username:       commonconfig.GetDBUser(),
			Password:       commonconfig.GetDBPassword(),
			Host:           commonconfig.GetDBHost(),
			Port:           commonconfig.GetDBPort(),
			SSLMode:        commonconfig.GetDBSslMode(),
			MaxOpenConns:   commonconfig.GetDBMaxOpenConns(),
			MaxIdleConns:   commonconfig.GetDBMaxIdleConns(),
			MaxLifetime:    time.Duration(commonconfig.GetDBMaxLifetimeSecond()) * time.Second,
			MaxIdleTime:    time.Duration(commonconfig.GetDBMaxIdleTimeSecond()) * time.Second,
			ConnectTimeout: commonconfig.GetDBConnectTimeoutSecond(),
			RequestTimeout: time.Duration(commonconfig.GetDBRequestTimeoutSecond()) * time.Second,
		}
		if err := checkParams(cfg); err != nil {
			klog.ErrorS(err, "failed to check db params")
			return
		}
		db, err := utils.Connect(cfg, utils.PgDriver)
		if err != nil {
			klog.Errorf("%s", err.Error())
			return
		}
		if err = db.Ping(); err != nil {
			klog.ErrorS(err, "failed to ping db")
			return
		}
		gormDb, err := utils.ConnectGorm(cfg)
		if err != nil {
			klog.ErrorS(err, "failed to connect gorm")
			return
		}
		instance = &Client{db: db, DBConfig: cfg, gorm: gormDb}
		klog.Infof("init db-client successfully! conn-timeout: %d(s), request-timeout: %d(s)",
			cfg.ConnectTimeout, commonconfig.GetDBRequestTimeoutSecond())
	})
	return instance
}

func checkParams(cfg *utils.DBConfig) error {
	if cfg.DBName == "" || cfg.Username == "" || cfg.Host == "" {
		return fmt.Errorf("the db config is incomplete, name: %q, user: %q, host: %q",
			cfg.DBName, cfg.Username, cfg.Host)
	}
	if cfg.Port <= 0 {
		return fmt.Errorf("invalid db port %d", cfg.Port)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// WithTx runs fn inside a transaction. The transaction is rolled back on
// error or panic and committed otherwise.
func (c *Client) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if c == nil || c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			klog.ErrorS(rbErr, "failed to rollback tx")
		}
		return err
	}
	return tx.Commit()
}

// ExecuteDDL runs a generated DDL statement against the catalog. Statements
// are CREATE ... IF NOT EXISTS so re-execution is harmless.
func (c *Client) ExecuteDDL(ctx context.Context, ddl string) error {
	if c == nil || c.gorm == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	if ddl == "" {
		return commonerrors.NewBadRequest("the ddl is empty")
	}
	if err := c.gorm.WithContext(ctx).Exec(ddl).Error; err != nil {
		klog.ErrorS(err, "failed to execute ddl")
		return err
	}
	return nil
}

// Migrate creates the catalog tables and indexes if missing.
func (c *Client) Migrate(ctx context.Context) error {
	if c == nil || c.gorm == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	for _, stmt := range catalogDDL {
		if err := c.gorm.WithContext(ctx).Exec(stmt).Error; err != nil {
			klog.ErrorS(err, "failed to migrate catalog", "stmt", stmt)
			return err
		}
	}
	klog.Infof("catalog migration finished, %d statements", len(catalogDDL))
	return nil
}

var catalogDDL = []string{
	`CREATE TABLE IF NOT EXISTS raw_asset (
		id UUID PRIMARY KEY,
		request_id TEXT NOT NULL,
		part_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		content_type TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_asset_request_id ON raw_asset (request_id)`,
	`CREATE TABLE IF NOT EXISTS asset (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		uri TEXT NOT NULL,
		sha256 TEXT,
		content_type TEXT,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		owner TEXT,
		status TEXT NOT NULL DEFAULT 'queued',
		cluster_id UUID,
		tags JSONB,
		embedding DOUBLE PRECISION[],
		schema_id UUID,
		raw_asset_id UUID,
		parent_asset_id UUID,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_status ON asset (status)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_sha256 ON asset (sha256)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_cluster_id ON asset (cluster_id)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_schema_id ON asset (schema_id)`,
	`CREATE INDEX IF NOT EXISTS idx_asset_raw_asset_id ON asset (raw_asset_id)`,
	`CREATE TABLE IF NOT EXISTS job (
		id UUID PRIMARY KEY,
		request_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		job_data BYTEA,
		retry_count INT NOT NULL DEFAULT 0,
		max_retries INT NOT NULL DEFAULT 3,
		next_retry_at TIMESTAMPTZ,
		dead_letter BOOLEAN NOT NULL DEFAULT false,
		error_message TEXT,
		asset_ids TEXT[],
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_job_request_id ON job (request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_job_status ON job (status)`,
	`CREATE TABLE IF NOT EXISTS schema_def (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		structure_hash TEXT NOT NULL,
		storage_choice TEXT NOT NULL,
		version INT NOT NULL DEFAULT 1,
		ddl TEXT,
		status TEXT NOT NULL DEFAULT 'provisional',
		sample_size INT NOT NULL DEFAULT 0,
		field_stability DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_depth INT NOT NULL DEFAULT 0,
		top_level_keys INT NOT NULL DEFAULT 0,
		decision_reason TEXT,
		reviewed_by TEXT,
		reviewed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_schema_def_structure_hash ON schema_def (structure_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_schema_def_status ON schema_def (status)`,
	`CREATE TABLE IF NOT EXISTS cluster (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		centroid DOUBLE PRECISION[] NOT NULL,
		threshold DOUBLE PRECISION NOT NULL DEFAULT 0.8,
		provisional BOOLEAN NOT NULL DEFAULT true,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_cluster_name ON cluster (name)`,
	`CREATE TABLE IF NOT EXISTS lineage (
		id BIGSERIAL PRIMARY KEY,
		request_id TEXT NOT NULL,
		asset_id UUID REFERENCES asset (id) ON DELETE CASCADE,
		schema_id UUID,
		stage TEXT NOT NULL,
		detail JSONB,
		success BOOLEAN NOT NULL DEFAULT true,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lineage_request_id ON lineage (request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lineage_asset_id ON lineage (asset_id)`,
}
