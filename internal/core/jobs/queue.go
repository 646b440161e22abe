package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the persistence the worker needs. *Queue implements it.
type Store interface {
	Claim(ctx context.Context, queue string) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, err error) error
}

// Queue is the gorm implementation of the jobs table.
type Queue struct {
	db  *gorm.DB
	now func() time.Time
}

func NewQueue(db *gorm.DB) *Queue {
	return &Queue{db: db, now: time.Now}
}

// Enqueue inserts a job. With a dedup key, a second enqueue while the first
// job is still active returns ErrAlreadyQueued.
func (q *Queue) Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload interface{}, opts EnqueueOptions) (*Job, error) {
	opts = opts.withDefaults()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s payload: %w", jobType, err)
	}

	job := &Job{
		TenantID:    tenantID,
		Queue:       opts.Queue,
		Type:        jobType,
		Payload:     body,
		Status:      StatusPending,
		MaxAttempts: opts.MaxAttempts,
		RunAt:       q.now().Add(opts.Delay),
	}
	if opts.DedupKey == "" {
		if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, fmt.Errorf("failed to enqueue %s: %w", jobType, err)
		}
		return job, nil
	}

	key := opts.DedupKey
	job.DedupKey = &key
	res := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dedup_key"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "status IN ?", Vars: []interface{}{activeStatuses}},
		}},
		DoNothing: true,
	}).Create(job)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", jobType, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, key)
	}
	return job, nil
}

// Claim atomically moves the next runnable job of a queue to running. Several
// processes poll the same table; SKIP LOCKED keeps them off each other's rows.
// Returns nil, nil when nothing is runnable.
func (q *Queue) Claim(ctx context.Context, queue string) (*Job, error) {
	var claimed []Job
	err := q.db.WithContext(ctx).Raw(`
		UPDATE jobs SET status = ?, attempts = attempts + 1, locked_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = ? AND status IN ? AND run_at <= ?
			ORDER BY run_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		StatusRunning, q.now(), q.now(),
		queue, []Status{StatusPending, StatusRetrying}, q.now(),
	).Scan(&claimed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return &claimed[0], nil
}

func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := q.now()
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, StatusRunning).
		Updates(map[string]interface{}{
			"status":      StatusDone,
			"finished_at": now,
			"locked_at":   nil,
		}).Error
}

// Fail records jobErr. The job is retried after Backoff until MaxAttempts,
// or dies at once when the error is permanent.
func (q *Queue) Fail(ctx context.Context, job *Job, jobErr error) error {
	now := q.now()
	updates := map[string]interface{}{
		"last_error": jobErr.Error(),
		"locked_at":  nil,
	}
	if IsPermanent(jobErr) || job.Attempts >= job.MaxAttempts {
		updates["status"] = StatusDead
		updates["finished_at"] = now
	} else {
		updates["status"] = StatusRetrying
		updates["run_at"] = now.Add(Backoff(job.Attempts))
	}
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, StatusRunning).
		Updates(updates).Error
}

// RequeueStale returns jobs left running by a crashed process to the queue.
func (q *Queue) RequeueStale(ctx context.Context, lockedBefore time.Time) (int64, error) {
	res := q.db.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND locked_at < ?", StatusRunning, lockedBefore).
		Updates(map[string]interface{}{
			"status":    StatusRetrying,
			"locked_at": nil,
			"run_at":    q.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Purge deletes finished jobs older than the cutoff.
func (q *Queue) Purge(ctx context.Context, finishedBefore time.Time) (int64, error) {
	res := q.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?", []Status{StatusDone, StatusDead}, finishedBefore).
		Delete(&Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
