// Package schedule runs recurring agent tasks on their cron expressions.
package schedule

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
)

// Handler is the callback invoked when a scheduled task fires.
type Handler func(ctx context.Context, task *model.Task)

// Scheduler registers every scheduled task's cron expression and fires the
// handler on schedule.
type Scheduler struct {
	tasks   *repository.TaskRepository
	handler Handler
	cron    *cron.Cron
	ctx     context.Context
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler backed by the task repository. The handler is
// called each time a scheduled task fires.
func New(tasks *repository.TaskRepository, handler Handler) *Scheduler {
	return &Scheduler{
		tasks:   tasks,
		handler: handler,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
}

// Start loads the scheduled tasks, registers their cron entries, and starts
// the ticker. Tasks with invalid expressions are skipped and logged. The
// context is kept for the scheduler's lifetime: every fire and every Reload
// runs against it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	return s.register()
}

func (s *Scheduler) register() error {
	tasks, err := s.tasks.ListScheduled(s.ctx)
	if err != nil {
		return err
	}

	ctx := s.ctx
	for _, task := range tasks {
		if task.Cron == "" {
			continue
		}

		task := task
		_, err := s.cron.AddFunc(task.Cron, func() {
			log.Printf("Cron firing task %q (%s)", task.Name, task.ID)
			s.handler(ctx, task)
		})
		if err != nil {
			log.Printf("Invalid cron expression %q for task %q: %v", task.Cron, task.Name, err)
			continue
		}
		log.Printf("Scheduled task %q: %s", task.Name, task.Cron)
	}

	s.cron.Start()
	return nil
}

// Reload stops the existing cron, creates a new one, and starts it again
// from the current task table. Entries keep firing with the context given
// to Start, never the caller's.
func (s *Scheduler) Reload() error {
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	s.cron.Stop()
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.register()
}

// Stop stops the cron ticker. Running handlers are not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
