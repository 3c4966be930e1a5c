package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
)

func setupTasks(t *testing.T) (*repository.TaskRepository, func()) {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	return repository.NewTaskRepository(database), func() { database.Close() }
}

func TestScheduler_FiresScheduledTask(t *testing.T) {
	tasks, cleanup := setupTasks(t)
	defer cleanup()

	ctx := context.Background()
	task := &model.Task{
		ID:          uuid.New(),
		ProfileID:   uuid.New(),
		ThreadID:    uuid.New(),
		Name:        "pox report",
		Prompt:      "summarize the current pox cycle",
		Cron:        "* * * * * *", // every second
		IsScheduled: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	fired := make(chan *model.Task, 1)
	var once sync.Once
	s := New(tasks, func(ctx context.Context, task *model.Task) {
		once.Do(func() { fired <- task })
	})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	defer s.Stop()

	select {
	case got := <-fired:
		if got.ID != task.ID {
			t.Errorf("Fired task %s, want %s", got.ID, task.ID)
		}
		if got.Prompt != task.Prompt {
			t.Errorf("Prompt = %q, want %q", got.Prompt, task.Prompt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the task to fire")
	}
}

func TestScheduler_ReloadFiresWithLiveContext(t *testing.T) {
	tasks, cleanup := setupTasks(t)
	defer cleanup()

	ctx := context.Background()
	task := &model.Task{
		ID:          uuid.New(),
		ProfileID:   uuid.New(),
		ThreadID:    uuid.New(),
		Name:        "balance check",
		Prompt:      "report the treasury balance",
		Cron:        "* * * * * *", // every second
		IsScheduled: true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	fired := make(chan error, 8)
	s := New(tasks, func(ctx context.Context, task *model.Task) {
		select {
		case fired <- ctx.Err():
		default:
		}
	})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	defer s.Stop()

	// A reload triggered from a short-lived scope, the way the task-create
	// handler does it. The request context dies right after.
	reqCtx, cancelReq := context.WithCancel(ctx)
	if err := s.Reload(); err != nil {
		t.Fatalf("Failed to reload scheduler: %v", err)
	}
	cancelReq()
	<-reqCtx.Done()

	// Drain anything fired before the reload, then wait for a post-reload
	// fire. It must carry a context that is still live.
	for {
		select {
		case <-fired:
			continue
		default:
		}
		break
	}
	select {
	case err := <-fired:
		if err != nil {
			t.Fatalf("Cron fired with a dead context: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for the task to fire after reload")
	}
}

func TestScheduler_SkipsInvalidAndUnscheduled(t *testing.T) {
	tasks, cleanup := setupTasks(t)
	defer cleanup()

	ctx := context.Background()
	broken := &model.Task{
		ID:          uuid.New(),
		ProfileID:   uuid.New(),
		ThreadID:    uuid.New(),
		Name:        "broken",
		Prompt:      "x",
		Cron:        "not a cron expression",
		IsScheduled: true,
		CreatedAt:   time.Now().UTC(),
	}
	disabled := &model.Task{
		ID:        uuid.New(),
		ProfileID: uuid.New(),
		ThreadID:  uuid.New(),
		Name:      "disabled",
		Prompt:    "y",
		Cron:      "* * * * * *",
		CreatedAt: time.Now().UTC(),
	}
	for _, task := range []*model.Task{broken, disabled} {
		if err := tasks.Create(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	fired := make(chan struct{}, 8)
	s := New(tasks, func(ctx context.Context, task *model.Task) {
		fired <- struct{}{}
	})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Failed to start scheduler: %v", err)
	}
	defer s.Stop()

	select {
	case <-fired:
		t.Fatal("No task should have fired")
	case <-time.After(1500 * time.Millisecond):
	}
}
