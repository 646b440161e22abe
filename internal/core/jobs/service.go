package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// Enqueuer is the producer side used by the engage services.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload interface{}, opts ...EnqueueOptions) (*Job, error)
}

// Service owns the queue and the worker pools of one process.
type Service struct {
	queue   *Queue
	workers []*Worker
}

func NewService(db *gorm.DB) *Service {
	return &Service{queue: NewQueue(db)}
}

func (s *Service) Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload interface{}, opts ...EnqueueOptions) (*Job, error) {
	var o EnqueueOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	return s.queue.Enqueue(ctx, tenantID, jobType, payload, o)
}

// NewWorker creates a pool on this service's queue. Register handlers on the
// result, then call StartWorkers.
func (s *Service) NewWorker(config WorkerConfig) *Worker {
	w := NewWorker(s.queue, config)
	s.workers = append(s.workers, w)
	return w
}

func (s *Service) StartWorkers(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) StopWorkers() {
	for _, w := range s.workers {
		w.Stop()
	}
}

// Maintain requeues jobs locked for longer than staleAfter and purges
// finished jobs older than retention.
func (s *Service) Maintain(ctx context.Context, staleAfter, retention time.Duration) error {
	now := time.Now()
	requeued, err := s.queue.RequeueStale(ctx, now.Add(-staleAfter))
	if err != nil {
		return err
	}
	purged, err := s.queue.Purge(ctx, now.Add(-retention))
	if err != nil {
		return err
	}
	if requeued > 0 || purged > 0 {
		utils.LogInfo("job table maintained", map[string]interface{}{
			"requeued": requeued,
			"purged":   purged,
		})
	}
	return nil
}
