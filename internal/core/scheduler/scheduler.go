// Package scheduler runs the periodic maintenance sweeps.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// Task is a named sweep. It receives a context bounded by Timeout.
type Task struct {
	Name     string
	Schedule string // cron expression with seconds, e.g. "0 */30 * * * *"
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler handles cron-based sweeps
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID // task name -> entry id
	jobsMux sync.RWMutex
}

// NewScheduler creates a new scheduler. A sweep still running when its
// next tick fires is skipped.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		jobs: make(map[string]cron.EntryID),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	utils.LogInfo("scheduler started", map[string]interface{}{"tasks": s.Tasks()})
}

// Stop stops the scheduler and waits for running sweeps
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	utils.LogInfo("scheduler stopped", nil)
}

// Add registers a task, replacing an existing one with the same name
func (s *Scheduler) Add(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %s has no Run func", task.Name)
	}
	if task.Timeout <= 0 {
		task.Timeout = 5 * time.Minute
	}

	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	if entryID, exists := s.jobs[task.Name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, task.Name)
	}

	entryID, err := s.cron.AddFunc(task.Schedule, func() { runTask(task) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", task.Name, err)
	}

	s.jobs[task.Name] = entryID
	return nil
}

// Remove removes a task from the scheduler
func (s *Scheduler) Remove(name string) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Tasks returns the registered task names, sorted
func (s *Scheduler) Tasks() []string {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runTask(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), task.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			utils.LogError("scheduled task panicked", fmt.Errorf("%v", r), map[string]interface{}{"task": task.Name})
		}
	}()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		utils.LogError("scheduled task failed", err, map[string]interface{}{"task": task.Name})
		return
	}
	utils.LogDebug("scheduled task done", map[string]interface{}{
		"task":     task.Name,
		"duration": time.Since(start).String(),
	})
}
