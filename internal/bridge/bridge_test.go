package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/db"
	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/pipeline"
	"github.com/stacks-agent-crew/backend/internal/repository"
	"github.com/stacks-agent-crew/backend/internal/ws"
)

// fakeConn records every message written to it. Setting fail makes all
// writes error, which the registry treats as a dead connection.
type fakeConn struct {
	mu       sync.Mutex
	messages []any
	fail     bool
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write failed")
	}
	c.messages = append(c.messages, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.messages))
	copy(out, c.messages)
	return out
}

type testEnv struct {
	bridge  *Bridge
	jobs    *repository.JobRepository
	steps   *repository.StepRepository
	jobReg  *ws.Registry
	fixture StartRequest
}

func setupTestBridge(t *testing.T, pipe pipeline.Pipeline) (*testEnv, func()) {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	jobs := repository.NewJobRepository(database)
	steps := repository.NewStepRepository(database)
	threads := repository.NewThreadRepository(database)
	agents := repository.NewAgentRepository(database)
	profiles := repository.NewProfileRepository(database)

	ctx := context.Background()
	profile := &model.Profile{ID: uuid.New(), Username: "tester", CreatedAt: time.Now().UTC()}
	if err := profiles.Create(ctx, profile); err != nil {
		t.Fatalf("Failed to create profile: %v", err)
	}
	thread := &model.Thread{ID: uuid.New(), ProfileID: profile.ID, Name: "test thread", CreatedAt: time.Now().UTC()}
	if err := threads.Create(ctx, thread); err != nil {
		t.Fatalf("Failed to create thread: %v", err)
	}

	jobReg := ws.NewRegistry("job", nil)
	b := New(jobs, steps, threads, agents, pipe, jobReg, nil, Config{MaxConcurrent: 4})

	env := &testEnv{
		bridge: b,
		jobs:   jobs,
		steps:  steps,
		jobReg: jobReg,
		fixture: StartRequest{
			ThreadID:  thread.ID,
			ProfileID: profile.ID,
			Input:     "what is a clarity contract?",
		},
	}

	cleanup := func() {
		database.Close()
	}
	return env, cleanup
}

func scriptedEvents() []pipeline.Event {
	return []pipeline.Event{
		{Type: pipeline.EventTypeToken, Role: "assistant", Content: "A Clarity"},
		{Type: pipeline.EventTypeToken, Role: "assistant", Content: " contract"},
		{Type: pipeline.EventTypeTool, Role: "assistant", Tool: "contract_lookup", ToolInput: "SP000.pox", ToolOutput: "found", Status: "end"},
		{Type: pipeline.EventTypeResult, Role: "assistant", Content: "A Clarity contract is a smart contract on Stacks."},
		{Type: pipeline.EventTypeEnd, Status: "end"},
	}
}

func TestBridge_StreamDeliversEventsInOrder(t *testing.T) {
	env, cleanup := setupTestBridge(t, pipeline.NewScriptedPipeline(scriptedEvents()...))
	defer cleanup()

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, env.fixture)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}

	conn := &fakeConn{}
	env.jobReg.Connect(job.ID.String(), conn)
	defer env.jobReg.Disconnect(job.ID.String(), conn)

	if err := env.bridge.Stream(ctx, job.ID); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	msgs := conn.snapshot()
	if len(msgs) != len(scriptedEvents())+1 {
		t.Fatalf("Expected %d messages, got %d", len(scriptedEvents())+1, len(msgs))
	}

	// Stream messages arrive in pipeline order, then the terminal result.
	wantContents := []string{"A Clarity", " contract", "", "A Clarity contract is a smart contract on Stacks.", ""}
	for i, want := range wantContents {
		sm, ok := msgs[i].(ws.StreamMessage)
		if !ok {
			t.Fatalf("Message %d is %T, want StreamMessage", i, msgs[i])
		}
		if sm.Content != want {
			t.Errorf("Message %d content = %q, want %q", i, sm.Content, want)
		}
		if sm.ThreadID != env.fixture.ThreadID.String() {
			t.Errorf("Message %d thread_id = %q, want %q", i, sm.ThreadID, env.fixture.ThreadID.String())
		}
	}

	final, ok := msgs[len(msgs)-1].(ws.ResultMessage)
	if !ok {
		t.Fatalf("Last message is %T, want ResultMessage", msgs[len(msgs)-1])
	}
	if final.Content != "A Clarity contract is a smart contract on Stacks." {
		t.Errorf("Final result = %q", final.Content)
	}
}

func TestBridge_ConcurrentJobsKeepTheirOwnOrder(t *testing.T) {
	tokens := func(prefix string, n int) []pipeline.Event {
		evs := make([]pipeline.Event, 0, n+2)
		for i := 0; i < n; i++ {
			evs = append(evs, pipeline.Event{
				Type:    pipeline.EventTypeToken,
				Role:    "assistant",
				Content: prefix + string(rune('0'+i)),
			})
		}
		evs = append(evs,
			pipeline.Event{Type: pipeline.EventTypeResult, Role: "assistant", Content: prefix + "done"},
			pipeline.Event{Type: pipeline.EventTypeEnd, Status: "end"},
		)
		return evs
	}

	env, cleanup := setupTestBridge(t, pipeline.NewScriptedPipeline(tokens("x", 8)...))
	defer cleanup()

	ctx := context.Background()
	conns := make([]*fakeConn, 2)
	var wg sync.WaitGroup
	for i := range conns {
		job, err := env.bridge.StartJob(ctx, env.fixture)
		if err != nil {
			t.Fatalf("Failed to start job %d: %v", i, err)
		}

		conn := &fakeConn{}
		conns[i] = conn
		env.jobReg.Connect(job.ID.String(), conn)

		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if err := env.bridge.Stream(ctx, id); err != nil {
				t.Errorf("Stream returned error: %v", err)
			}
		}(job.ID)
	}
	wg.Wait()

	// However the two streams interleave in real time, each channel sees
	// its own events in pipeline order.
	for i, conn := range conns {
		msgs := conn.snapshot()
		if len(msgs) != 11 {
			t.Fatalf("Connection %d got %d messages, want 11", i, len(msgs))
		}
		for j := 0; j < 8; j++ {
			sm, ok := msgs[j].(ws.StreamMessage)
			if !ok {
				t.Fatalf("Connection %d message %d is %T, want StreamMessage", i, j, msgs[j])
			}
			want := "x" + string(rune('0'+j))
			if sm.Content != want {
				t.Errorf("Connection %d message %d = %q, want %q", i, j, sm.Content, want)
			}
		}
		if final, ok := msgs[10].(ws.ResultMessage); !ok || final.Content != "xdone" {
			t.Errorf("Connection %d final message = %#v", i, msgs[10])
		}
	}
}

func TestBridge_FinalizesJobRow(t *testing.T) {
	env, cleanup := setupTestBridge(t, pipeline.NewScriptedPipeline(scriptedEvents()...))
	defer cleanup()

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, env.fixture)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}
	if err := env.bridge.Stream(ctx, job.ID); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	stored, err := env.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("Failed to load job: %v", err)
	}
	if stored.Status != model.JobStatusComplete {
		t.Errorf("Status = %q, want %q", stored.Status, model.JobStatusComplete)
	}
	if stored.Result != "A Clarity contract is a smart contract on Stacks." {
		t.Errorf("Result = %q", stored.Result)
	}
	if stored.Tokens != 2 {
		t.Errorf("Tokens = %d, want 2", stored.Tokens)
	}

	// Tool completion and result are persisted as steps, token deltas are not.
	persisted, err := env.steps.List(ctx, model.StepFilter{JobID: &job.ID})
	if err != nil {
		t.Fatalf("Failed to list steps: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(persisted))
	}
	if persisted[0].Tool != "contract_lookup" {
		t.Errorf("First step tool = %q", persisted[0].Tool)
	}

	if env.bridge.Running(job.ID) {
		t.Error("Job should no longer be running after Stream returns")
	}
}

func TestBridge_PipelineFailure(t *testing.T) {
	pipe := &pipeline.ScriptedPipeline{
		Events: []pipeline.Event{
			{Type: pipeline.EventTypeToken, Role: "assistant", Content: "partial"},
		},
		Err: errors.New("provider unavailable"),
	}
	env, cleanup := setupTestBridge(t, pipe)
	defer cleanup()

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, env.fixture)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}

	conn := &fakeConn{}
	env.jobReg.Connect(job.ID.String(), conn)
	defer env.jobReg.Disconnect(job.ID.String(), conn)

	if err := env.bridge.Stream(ctx, job.ID); err == nil {
		t.Fatal("Expected Stream to return the pipeline error")
	}

	stored, err := env.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("Failed to load job: %v", err)
	}
	if stored.Status != model.JobStatusFailed {
		t.Errorf("Status = %q, want %q", stored.Status, model.JobStatusFailed)
	}

	msgs := conn.snapshot()
	if len(msgs) == 0 {
		t.Fatal("Expected at least the error broadcast")
	}
	last, ok := msgs[len(msgs)-1].(ws.ErrorMessage)
	if !ok {
		t.Fatalf("Last message is %T, want ErrorMessage", msgs[len(msgs)-1])
	}
	if last.Message != "Agent execution failed" {
		t.Errorf("Error message = %q", last.Message)
	}
}

func TestBridge_FanOutToExtraTargets(t *testing.T) {
	env, cleanup := setupTestBridge(t, pipeline.NewScriptedPipeline(scriptedEvents()...))
	defer cleanup()

	threadReg := ws.NewRegistry("thread", nil)
	threadConn := &fakeConn{}
	threadReg.Connect(env.fixture.ThreadID.String(), threadConn)

	req := env.fixture
	req.Targets = []Target{{Registry: threadReg, ChannelID: env.fixture.ThreadID.String()}}

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, req)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}
	if err := env.bridge.Stream(ctx, job.ID); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	if got := len(threadConn.snapshot()); got != len(scriptedEvents())+1 {
		t.Errorf("Thread subscriber got %d messages, want %d", got, len(scriptedEvents())+1)
	}
}

func TestBridge_FailedSubscriberDoesNotAbortStream(t *testing.T) {
	env, cleanup := setupTestBridge(t, pipeline.NewScriptedPipeline(scriptedEvents()...))
	defer cleanup()

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, env.fixture)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}

	bad := &fakeConn{fail: true}
	good := &fakeConn{}
	env.jobReg.Connect(job.ID.String(), bad)
	env.jobReg.Connect(job.ID.String(), good)

	if err := env.bridge.Stream(ctx, job.ID); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	if got := len(good.snapshot()); got != len(scriptedEvents())+1 {
		t.Errorf("Healthy subscriber got %d messages, want %d", got, len(scriptedEvents())+1)
	}
	if env.jobReg.ConnCount(job.ID.String()) != 1 {
		t.Errorf("Failed connection should have been pruned, count = %d", env.jobReg.ConnCount(job.ID.String()))
	}
}

// gatedPipeline emits events one at a time when released, so tests can
// observe a job mid-stream.
type gatedPipeline struct {
	gate chan pipeline.Event
}

func (p *gatedPipeline) Stream(ctx context.Context, req pipeline.Request) (<-chan pipeline.Event, <-chan error) {
	events := make(chan pipeline.Event)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)
		for {
			select {
			case ev, ok := <-p.gate:
				if !ok {
					return
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()

	return events, errc
}

func TestBridge_ReplayMidStream(t *testing.T) {
	gate := make(chan pipeline.Event)
	env, cleanup := setupTestBridge(t, &gatedPipeline{gate: gate})
	defer cleanup()

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, env.fixture)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- env.bridge.Stream(ctx, job.ID) }()

	gate <- pipeline.Event{Type: pipeline.EventTypeToken, Content: "one"}
	gate <- pipeline.Event{Type: pipeline.EventTypeToken, Content: "two"}

	// The consumer appends to the ring after receiving; give it a moment.
	deadline := time.After(2 * time.Second)
	for env.bridge.Replay(job.ID) == nil || len(env.bridge.Replay(job.ID)) < 2 {
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for replay buffer to fill")
		case <-time.After(10 * time.Millisecond):
		}
	}

	replay := env.bridge.Replay(job.ID)
	if replay[0].Content != "one" || replay[1].Content != "two" {
		t.Errorf("Replay = [%q, %q], want [one, two]", replay[0].Content, replay[1].Content)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	if env.bridge.Replay(job.ID) != nil {
		t.Error("Replay should return nil once the job is finished")
	}
}

func TestBridge_Cancel(t *testing.T) {
	gate := make(chan pipeline.Event)
	env, cleanup := setupTestBridge(t, &gatedPipeline{gate: gate})
	defer cleanup()
	defer close(gate)

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, env.fixture)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- env.bridge.Stream(ctx, job.ID) }()

	gate <- pipeline.Event{Type: pipeline.EventTypeToken, Content: "partial"}

	if !env.bridge.Cancel(job.ID) {
		t.Fatal("Cancel reported the job as not running")
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Expected Stream to return a cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for cancelled stream to finish")
	}

	stored, err := env.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("Failed to load job: %v", err)
	}
	if stored.Status != model.JobStatusFailed {
		t.Errorf("Status = %q, want %q", stored.Status, model.JobStatusFailed)
	}
}

func TestBridge_OnCompleteHook(t *testing.T) {
	env, cleanup := setupTestBridge(t, pipeline.NewScriptedPipeline(scriptedEvents()...))
	defer cleanup()

	var (
		mu       sync.Mutex
		notified *model.Job
	)
	env.bridge.OnComplete(func(job *model.Job) {
		mu.Lock()
		defer mu.Unlock()
		notified = job
	})

	ctx := context.Background()
	job, err := env.bridge.StartJob(ctx, env.fixture)
	if err != nil {
		t.Fatalf("Failed to start job: %v", err)
	}
	if err := env.bridge.Stream(ctx, job.ID); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if notified == nil {
		t.Fatal("Completion hook was not invoked")
	}
	if notified.Status != model.JobStatusComplete {
		t.Errorf("Hook job status = %q, want %q", notified.Status, model.JobStatusComplete)
	}
	if notified.Result == "" {
		t.Error("Hook job should carry the final result")
	}
}

func TestBridge_StartJobValidation(t *testing.T) {
	env, cleanup := setupTestBridge(t, pipeline.NewScriptedPipeline())
	defer cleanup()

	ctx := context.Background()

	t.Run("empty input", func(t *testing.T) {
		req := env.fixture
		req.Input = ""
		if _, err := env.bridge.StartJob(ctx, req); !errors.Is(err, model.ErrInputRequired) {
			t.Errorf("Expected ErrInputRequired, got %v", err)
		}
	})

	t.Run("missing thread", func(t *testing.T) {
		req := env.fixture
		req.ThreadID = uuid.Nil
		if _, err := env.bridge.StartJob(ctx, req); !errors.Is(err, model.ErrThreadRequired) {
			t.Errorf("Expected ErrThreadRequired, got %v", err)
		}
	})
}
