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
	"k8s.io/klog/v2"

	dbutils "github.com/mammothbox/mammothbox/pkg/database/utils"
	commonerrors "github.com/mammothbox/mammothbox/pkg/errors"
)

const (
	TJob = "job"
)

var (
	getJobCmd           = fmt.Sprintf(`SELECT * FROM %s WHERE id = $1 LIMIT 1`, TJob)
	getJobByRequestCmd  = fmt.Sprintf(`SELECT * FROM %s WHERE request_id = $1 LIMIT 1`, TJob)
	insertJobFormat     = `INSERT INTO ` + TJob + ` (%s) VALUES (%s)`
	selectQueuedJobsCmd = fmt.Sprintf(`SELECT * FROM %s WHERE status = 'queued' AND dead_letter = false ORDER BY created_at ASC LIMIT $1`, TJob)
)

// InsertJob writes a job row. A duplicate request_id surfaces as a conflict
// error so callers can fall back to the winning row.
func (c *Client) InsertJob(ctx context.Context, tx *sqlx.Tx, job *Job) error {
	if job == nil {
		return commonerrors.NewBadRequest("the input is empty")
	}
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	cmd := generateCommand(*job, insertJobFormat, "")
	if _, err := sqlx.NamedExecContext(ctx, c.ext(tx), cmd, job); err != nil {
		if dbutils.IsUniqueViolation(err) {
			return commonerrors.NewConflict(fmt.Sprintf("a job with request_id %q already exists", job.RequestId))
		}
		klog.ErrorS(err, "failed to insert job db", "id", job.Id)
		return err
	}
	return nil
}

func (c *Client) GetJob(ctx context.Context, jobId string) (*Job, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var jobs []*Job
	if err := db.SelectContext(ctx, &jobs, getJobCmd, jobId); err != nil {
		klog.ErrorS(err, "failed to select job", "id", jobId)
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, commonerrors.NewWithCode(404, commonerrors.JobNotFound, fmt.Sprintf("job %q not found", jobId))
	}
	return jobs[0], nil
}

func (c *Client) GetJobByRequestId(ctx context.Context, requestId string) (*Job, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var jobs []*Job
	if err := db.SelectContext(ctx, &jobs, getJobByRequestCmd, requestId); err != nil {
		klog.ErrorS(err, "failed to select job", "request_id", requestId)
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, commonerrors.NewWithCode(404, commonerrors.JobNotFound, fmt.Sprintf("job for request %q not found", requestId))
	}
	return jobs[0], nil
}

func (c *Client) SelectJobs(ctx context.Context, query sqrl.Sqlizer, sortBy, order string, limit, offset int) ([]*Job, error) {
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
		From(TJob).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var jobs []*Job
	if c.RequestTimeout > 0 {
		ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		defer cancel()
		err = db.SelectContext(ctx2, &jobs, sql, args...)
	} else {
		err = db.SelectContext(ctx, &jobs, sql, args...)
	}
	return jobs, err
}

func (c *Client) CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	if c.db == nil {
		return 0, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TJob).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

func (c *Client) MarkJobProcessing(ctx context.Context, jobId string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	now := time.Now().UTC()
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', started_at=$1, updated_at=$2 WHERE id=$3`,
		TJob, StatusProcessing)
	_, err := db.ExecContext(ctx, cmd, now, now, jobId)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", jobId)
		return err
	}
	return nil
}

func (c *Client) MarkJobDone(ctx context.Context, jobId string) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	now := time.Now().UTC()
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', completed_at=$1, updated_at=$2, error_message=NULL WHERE id=$3`,
		TJob, StatusDone)
	_, err := db.ExecContext(ctx, cmd, now, now, jobId)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", jobId)
		return err
	}
	return nil
}

// MarkJobRetry mirrors the queue's retry decision into the catalog: the job
// goes back to queued with the schedule copied from the queue message.
func (c *Client) MarkJobRetry(ctx context.Context, jobId, errorMessage string, retryCount int, nextRetryAt int64) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', error_message=$1, retry_count=$2, next_retry_at=$3, updated_at=$4 WHERE id=$5`,
		TJob, StatusQueued)
	_, err := db.ExecContext(ctx, cmd, errorMessage, retryCount,
		time.Unix(nextRetryAt, 0).UTC(), time.Now().UTC(), jobId)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", jobId)
		return err
	}
	return nil
}

func (c *Client) MarkJobDeadLetter(ctx context.Context, jobId, errorMessage string, retryCount int) error {
	if c.db == nil {
		return commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	now := time.Now().UTC()
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', dead_letter=true, error_message=$1, retry_count=$2, completed_at=$3, updated_at=$4 WHERE id=$5`,
		TJob, StatusFailed)
	_, err := db.ExecContext(ctx, cmd, errorMessage, retryCount, now, now, jobId)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", jobId)
		return err
	}
	return nil
}

// SelectQueuedJobs lists jobs the outbox reconciler may need to re-enqueue.
func (c *Client) SelectQueuedJobs(ctx context.Context, limit int) ([]*Job, error) {
	if c.db == nil {
		return nil, commonerrors.NewInternalError("The client of db has not been initialized")
	}
	db := c.db.Unsafe()
	var jobs []*Job
	if err := db.SelectContext(ctx, &jobs, selectQueuedJobsCmd, limit); err != nil {
		klog.ErrorS(err, "failed to select queued jobs")
		return nil, err
	}
	return jobs, nil
}
