package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// ErrNoJobsAvailable is returned by ProcessNext on an empty queue.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Worker is a pool of goroutines draining one queue.
type Worker struct {
	store    Store
	config   WorkerConfig
	handlers map[string]Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(store Store, config WorkerConfig) *Worker {
	def := DefaultWorkerConfig()
	if config.Queue == "" {
		config.Queue = def.Queue
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Worker{store: store, config: config, handlers: make(map[string]Handler)}
}

// Handle registers the handler for a job type. Call before Start.
func (w *Worker) Handle(jobType string, h Handler) *Worker {
	w.handlers[jobType] = h
	return w
}

// Start launches the pool. It runs until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("worker for queue %s already started", w.config.Queue)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	utils.LogInfo("🚀 Starting job worker", map[string]interface{}{
		"queue":       w.config.Queue,
		"concurrency": w.config.Concurrency,
		"types":       len(w.handlers),
	})
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i+1)
	}
	return nil
}

// Stop cancels the pool and waits for running jobs to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	utils.LogInfo("✅ Job worker stopped", map[string]interface{}{"queue": w.config.Queue})
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// drain before sleeping again
		for ctx.Err() == nil {
			err := w.ProcessNext(ctx)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrNoJobsAvailable) && ctx.Err() == nil {
				utils.LogWarn("⚠️ job worker error", map[string]interface{}{
					"worker": id,
					"queue":  w.config.Queue,
					"error":  err.Error(),
				})
			}
			break
		}
		timer.Reset(w.config.PollInterval)
	}
}

// ProcessNext claims and runs one job. Handler failures are recorded on the
// job, not returned.
func (w *Worker) ProcessNext(ctx context.Context) error {
	job, err := w.store.Claim(ctx, w.config.Queue)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNoJobsAvailable
	}

	fields := map[string]interface{}{
		"job_id":    job.ID.String(),
		"job_type":  job.Type,
		"tenant_id": job.TenantID.String(),
		"attempt":   job.Attempts,
	}

	handler, ok := w.handlers[job.Type]
	if !ok {
		err := Permanent(fmt.Errorf("no handler registered for job type %s", job.Type))
		utils.LogError("❌ job has no handler", err, fields)
		w.finish(ctx, job, err)
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	start := time.Now()
	err = handler(jobCtx, job)
	cancel()
	fields["duration"] = time.Since(start).String()

	if err != nil {
		fields["permanent"] = IsPermanent(err)
		utils.LogError("❌ job failed", err, fields)
	} else {
		utils.LogDebug("job completed", fields)
	}
	w.finish(ctx, job, err)
	return nil
}

func (w *Worker) finish(ctx context.Context, job *Job, jobErr error) {
	if w.config.Observer != nil {
		w.config.Observer(job.Type, jobErr)
	}

	// the result must be recorded even when shutdown cancelled ctx
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var err error
	if jobErr != nil {
		err = w.store.Fail(recordCtx, job, jobErr)
	} else {
		err = w.store.Complete(recordCtx, job)
	}
	if err != nil {
		utils.LogError("⚠️ failed to record job result", err, map[string]interface{}{"job_id": job.ID.String()})
	}
}
