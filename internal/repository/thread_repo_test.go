package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/model"
)

func TestThreadRepository_CreateAndGet(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewThreadRepository(database)
	ctx := context.Background()

	thread := &model.Thread{
		ID:        uuid.New(),
		ProfileID: uuid.New(),
		Name:      "sBTC questions",
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, thread); err != nil {
		t.Fatalf("Failed to create thread: %v", err)
	}

	got, err := repo.GetByID(ctx, thread.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve thread: %v", err)
	}
	if got.Name != thread.Name || got.ProfileID != thread.ProfileID {
		t.Errorf("Retrieved thread = %+v, want %+v", got, thread)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, model.ErrThreadNotFound) {
		t.Errorf("Expected ErrThreadNotFound, got %v", err)
	}
}

func TestThreadRepository_ListNewestFirst(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewThreadRepository(database)
	ctx := context.Background()

	profileID := uuid.New()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		thread := &model.Thread{
			ID:        uuid.New(),
			ProfileID: profileID,
			Name:      "thread",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, thread); err != nil {
			t.Fatalf("Failed to create thread %d: %v", i, err)
		}
	}

	threads, err := repo.List(ctx, profileID)
	if err != nil {
		t.Fatalf("Failed to list threads: %v", err)
	}
	if len(threads) != 3 {
		t.Fatalf("Listed %d threads, want 3", len(threads))
	}
	if threads[0].CreatedAt.Before(threads[1].CreatedAt) {
		t.Error("Threads should be ordered newest first")
	}
}

func TestThreadRepository_HistoryMergesJobsAndSteps(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	threads := NewThreadRepository(database)
	jobs := NewJobRepository(database)
	steps := NewStepRepository(database)
	ctx := context.Background()

	threadID := uuid.New()
	profileID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)

	job := newTestJob(threadID, profileID, "what is stacking?")
	job.CreatedAt = base
	job.UpdatedAt = base
	if err := jobs.Create(ctx, job); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	toolStep := &model.Step{
		ID:        uuid.New(),
		JobID:     job.ID,
		ProfileID: profileID,
		Role:      "assistant",
		Tool:      "pox_info",
		ToolInput: "{}",
		CreatedAt: base.Add(time.Minute),
	}
	resultStep := &model.Step{
		ID:        uuid.New(),
		JobID:     job.ID,
		ProfileID: profileID,
		Role:      "assistant",
		Content:   "Stacking locks STX to earn BTC rewards.",
		CreatedAt: base.Add(2 * time.Minute),
	}
	for _, s := range []*model.Step{toolStep, resultStep} {
		if err := steps.Create(ctx, s); err != nil {
			t.Fatalf("Failed to create step: %v", err)
		}
	}

	history, err := threads.History(ctx, threadID)
	if err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History has %d entries, want 3", len(history))
	}

	// Oldest first: user input, then tool use, then result.
	if history[0].Type != "user" || history[0].Content != "what is stacking?" {
		t.Errorf("Entry 0 = %+v, want user input", history[0])
	}
	if history[1].Type != "tool" || history[1].Content != "pox_info" {
		t.Errorf("Entry 1 = %+v, want tool entry", history[1])
	}
	if history[2].Type != "result" || history[2].Content != "Stacking locks STX to earn BTC rewards." {
		t.Errorf("Entry 2 = %+v, want result entry", history[2])
	}

	for i := 1; i < len(history); i++ {
		if history[i].CreatedAt.Before(history[i-1].CreatedAt) {
			t.Fatal("History should be sorted by created_at ascending")
		}
	}
}

func TestThreadRepository_HistoryEmptyThread(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewThreadRepository(database)
	history, err := repo.History(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("History on empty thread errored: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History has %d entries, want 0", len(history))
	}
}
