// Package jobs is a Postgres-backed work queue for side effects that must
// survive a restart: campaign sends and media downloads. Delivery is
// at-least-once, so handlers must be idempotent.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Status of a queued job
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusRetrying Status = "retrying"
	StatusDone     Status = "done"
	StatusDead     Status = "dead"
)

// activeStatuses are the states in which a dedup key is reserved.
var activeStatuses = []Status{StatusPending, StatusRunning, StatusRetrying}

// ErrAlreadyQueued is returned by Enqueue when an active job holds the same
// dedup key.
var ErrAlreadyQueued = errors.New("job already queued")

// Job is one row of the jobs table.
type Job struct {
	ID       uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID uuid.UUID      `gorm:"type:uuid;not null"`
	Queue    string         `gorm:"type:varchar(100);not null"`
	Type     string         `gorm:"type:varchar(100);not null"`
	DedupKey *string        `gorm:"type:varchar(200)"`
	Payload  datatypes.JSON `gorm:"type:jsonb"`

	Status      Status `gorm:"type:varchar(20);not null;default:'pending'"`
	Attempts    int    `gorm:"not null;default:0"`
	MaxAttempts int    `gorm:"not null;default:5"`

	RunAt      time.Time `gorm:"not null"`
	LockedAt   *time.Time
	FinishedAt *time.Time
	LastError  string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string {
	return "jobs"
}

// Decode unmarshals the payload into v. A payload that does not decode will
// never succeed, so the error is permanent.
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", j.Type, err))
	}
	return nil
}

// Handler runs one job. Returning nil completes it; an error schedules a
// retry unless it is wrapped with Permanent.
type Handler func(ctx context.Context, job *Job) error

// EnqueueOptions tune a single Enqueue call. Zero values take defaults.
type EnqueueOptions struct {
	Queue       string
	DedupKey    string
	MaxAttempts int
	Delay       time.Duration
}

func (o EnqueueOptions) withDefaults() EnqueueOptions {
	if o.Queue == "" {
		o.Queue = DefaultQueue
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

// DefaultQueue is used when no queue is named.
const DefaultQueue = "default"

// WorkerConfig contains configuration for a worker pool
type WorkerConfig struct {
	Queue        string
	Concurrency  int
	PollInterval time.Duration
	Timeout      time.Duration // per job

	// Observer is told about every finished job (metrics).
	Observer func(jobType string, err error)
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Queue:        DefaultQueue,
		Concurrency:  4,
		PollInterval: time.Second,
		Timeout:      2 * time.Minute,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff is the delay before retry number attempt: 2^attempt seconds,
// capped at one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= 12 {
		return time.Hour
	}
	d := time.Duration(1<<attempt) * time.Second
	if d > time.Hour {
		return time.Hour
	}
	return d
}
