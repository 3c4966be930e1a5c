// Package bridge connects the agent pipeline to WebSocket delivery. A job
// runs in a background goroutine that feeds a buffered queue; the caller's
// foreground loop drains the queue and fans events out through the channel
// registries. Closing the queue is the completion signal.
package bridge

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/stacks-agent-crew/backend/internal/buffer"
	"github.com/stacks-agent-crew/backend/internal/logger"
	"github.com/stacks-agent-crew/backend/internal/metrics"
	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/pipeline"
	"github.com/stacks-agent-crew/backend/internal/repository"
	"github.com/stacks-agent-crew/backend/internal/ws"
)

const (
	// Queue depth between the pipeline producer and the send loop. The
	// producer only blocks once the consumer falls this far behind.
	queueSize = 256

	// Events retained per running job for mid-stream attach replay.
	defaultRingSize = 512
)

// Target is one registry channel that receives a job's events.
type Target struct {
	Registry  *ws.Registry
	ChannelID string
}

// StartRequest describes one job to execute.
type StartRequest struct {
	ThreadID  uuid.UUID
	ProfileID uuid.UUID
	AgentID   *uuid.UUID
	Input     string

	// Targets receive every stream event for the job. The job's own
	// channel (keyed by job ID) is always added implicitly.
	Targets []Target
}

// CompleteFunc is invoked after a job reaches a terminal status. The job
// carries its final result and status. Hooks run on the consumer goroutine
// and must not block.
type CompleteFunc func(job *model.Job)

// Config holds bridge tuning knobs.
type Config struct {
	// MaxConcurrent limits how many pipelines run at once. Zero means
	// unlimited.
	MaxConcurrent int64

	// RingSize is the per-job replay buffer capacity. Zero uses the
	// default.
	RingSize int

	// TranscriptDir, when set, enables per-job JSONL transcripts.
	TranscriptDir string
}

// Bridge owns the set of running jobs and moves their pipeline events from
// the background producer to the foreground WebSocket send loop.
type Bridge struct {
	jobs    *repository.JobRepository
	steps   *repository.StepRepository
	threads *repository.ThreadRepository
	agents  *repository.AgentRepository

	pipe pipeline.Pipeline
	sem  *semaphore.Weighted

	jobChannels *ws.Registry
	metrics     *metrics.Metrics

	ringSize      int
	transcriptDir string

	mu      sync.RWMutex
	running map[uuid.UUID]*runningJob

	hooksMu sync.RWMutex
	hooks   []CompleteFunc
}

// runningJob is the bookkeeping entry for one in-flight job.
type runningJob struct {
	job       *model.Job
	queue     chan pipeline.Event
	cancel    context.CancelFunc
	targets   []Target
	ring      *buffer.EventRing[ws.StreamMessage]
	startedAt time.Time

	// err is written by the producer before it closes the queue; the
	// close is the synchronization point, so the consumer may read it
	// only after the queue is drained.
	err error
}

// New creates a Bridge.
func New(
	jobs *repository.JobRepository,
	steps *repository.StepRepository,
	threads *repository.ThreadRepository,
	agents *repository.AgentRepository,
	pipe pipeline.Pipeline,
	jobChannels *ws.Registry,
	m *metrics.Metrics,
	cfg Config,
) *Bridge {
	b := &Bridge{
		jobs:          jobs,
		steps:         steps,
		threads:       threads,
		agents:        agents,
		pipe:          pipe,
		jobChannels:   jobChannels,
		metrics:       m,
		ringSize:      cfg.RingSize,
		transcriptDir: cfg.TranscriptDir,
		running:       make(map[uuid.UUID]*runningJob),
	}
	if b.ringSize <= 0 {
		b.ringSize = defaultRingSize
	}
	if cfg.MaxConcurrent > 0 {
		b.sem = semaphore.NewWeighted(cfg.MaxConcurrent)
	}
	return b
}

// OnComplete registers a hook invoked after every terminal job.
func (b *Bridge) OnComplete(fn CompleteFunc) {
	b.hooksMu.Lock()
	defer b.hooksMu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// StartJob persists a new job row and launches the background producer.
// The returned job is already in running state; the caller must follow up
// with Stream to drain events, otherwise the producer eventually blocks on
// a full queue.
func (b *Bridge) StartJob(ctx context.Context, req StartRequest) (*model.Job, error) {
	create := model.CreateJobRequest{
		ThreadID:  req.ThreadID,
		ProfileID: req.ProfileID,
		AgentID:   req.AgentID,
		Input:     req.Input,
	}
	if err := create.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New(),
		ThreadID:  req.ThreadID,
		ProfileID: req.ProfileID,
		AgentID:   req.AgentID,
		Input:     req.Input,
		Status:    model.JobStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	// The producer outlives the triggering socket: a disconnect must not
	// kill a job mid-pipeline, so the run context is detached from ctx.
	runCtx, cancel := context.WithCancel(context.Background())
	rj := &runningJob{
		job:       job,
		queue:     make(chan pipeline.Event, queueSize),
		cancel:    cancel,
		targets:   append([]Target{{Registry: b.jobChannels, ChannelID: job.ID.String()}}, req.Targets...),
		ring:      buffer.NewEventRing[ws.StreamMessage](b.ringSize),
		startedAt: now,
	}

	b.mu.Lock()
	b.running[job.ID] = rj
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.JobsStarted.Inc()
	}

	go b.produce(runCtx, rj)

	return job, nil
}

// produce runs the pipeline and pushes its events onto the job queue.
// Closing the queue tells the consumer the stream is over.
func (b *Bridge) produce(ctx context.Context, rj *runningJob) {
	defer close(rj.queue)

	if b.sem != nil {
		if err := b.sem.Acquire(ctx, 1); err != nil {
			rj.err = fmt.Errorf("job cancelled while queued: %w", err)
			return
		}
		defer b.sem.Release(1)
	}

	req, err := b.buildRequest(ctx, rj.job)
	if err != nil {
		rj.err = err
		return
	}

	var transcript *logger.TranscriptLogger
	if b.transcriptDir != "" {
		transcript, err = logger.NewTranscriptLogger(b.transcriptDir, rj.job.ID, rj.job.ThreadID)
		if err != nil {
			log.Printf("Failed to open transcript for job %s: %v", rj.job.ID, err)
			transcript = nil
		} else {
			defer transcript.Close()
		}
	}

	events, errc := b.pipe.Stream(ctx, req)
	for ev := range events {
		if transcript != nil {
			if werr := transcript.WriteEvent(ev); werr != nil {
				log.Printf("Failed to write transcript event for job %s: %v", rj.job.ID, werr)
				transcript = nil
			}
		}
		b.persistStep(ctx, rj.job, ev)

		select {
		case rj.queue <- ev:
		case <-ctx.Done():
			rj.err = ctx.Err()
			return
		}
	}

	if perr := <-errc; perr != nil {
		rj.err = perr
	}
}

// buildRequest loads the agent persona and thread history for a job.
func (b *Bridge) buildRequest(ctx context.Context, job *model.Job) (pipeline.Request, error) {
	var agent *model.Agent
	if job.AgentID != nil {
		var err error
		agent, err = b.agents.GetByID(ctx, *job.AgentID)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("failed to load agent: %w", err)
		}
	}

	entries, err := b.threads.History(ctx, job.ThreadID)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to load history: %w", err)
	}

	history := make([]pipeline.HistoryMessage, 0, len(entries))
	for _, e := range entries {
		if e.Content == "" {
			continue
		}
		role := e.Role
		if role == "" {
			role = "assistant"
		}
		history = append(history, pipeline.HistoryMessage{Role: role, Content: e.Content})
	}

	return pipeline.Request{
		Persona: pipeline.GeneratePersona(agent),
		History: history,
		Input:   job.Input,
	}, nil
}

// persistStep records tool completions and results as job steps. Token
// deltas are transient and never hit the database.
func (b *Bridge) persistStep(ctx context.Context, job *model.Job, ev pipeline.Event) {
	isToolEnd := ev.Type == pipeline.EventTypeTool && ev.Status == "end"
	isResult := ev.Type == pipeline.EventTypeResult && ev.Content != ""
	if !isToolEnd && !isResult {
		return
	}

	role := ev.Role
	if role == "" {
		role = "assistant"
	}
	step := &model.Step{
		ID:         uuid.New(),
		JobID:      job.ID,
		ProfileID:  job.ProfileID,
		AgentID:    job.AgentID,
		Role:       role,
		Content:    ev.Content,
		Tool:       ev.Tool,
		ToolInput:  ev.ToolInput,
		ToolOutput: ev.ToolOutput,
		Thought:    ev.Thought,
		CreatedAt:  time.Now().UTC(),
	}
	if err := b.steps.Create(ctx, step); err != nil {
		log.Printf("Failed to persist step for job %s: %v", job.ID, err)
		return
	}
	if b.metrics != nil {
		b.metrics.StepsPersisted.Inc()
	}
}

// Stream drains the job's event queue, fanning every event out to the
// job's targets, until the producer closes the queue. It then finalizes
// the job row with the last non-empty content seen as the result, removes
// the running entry, and notifies completion hooks.
//
// Stream must be called exactly once per started job. It returns the
// pipeline error, if any.
func (b *Bridge) Stream(ctx context.Context, jobID uuid.UUID) error {
	b.mu.RLock()
	rj, ok := b.running[jobID]
	b.mu.RUnlock()
	if !ok {
		return model.ErrJobNotFound
	}

	defer func() {
		b.mu.Lock()
		delete(b.running, jobID)
		b.mu.Unlock()

		if b.metrics != nil {
			b.metrics.JobDuration.Observe(time.Since(rj.startedAt).Seconds())
		}
	}()

	var (
		lastContent string
		tokens      int64
	)
	for ev := range rj.queue {
		msg := rj.streamMessage(ev)
		rj.ring.Append(msg)
		for _, t := range rj.targets {
			t.Registry.Send(t.ChannelID, msg)
		}
		if ev.Type == pipeline.EventTypeToken {
			tokens++
		}
		if ev.Content != "" {
			lastContent = ev.Content
		}
	}

	job := rj.job
	if rj.err != nil {
		log.Printf("Job %s failed: %v", jobID, rj.err)
		for _, t := range rj.targets {
			t.Registry.BroadcastError(t.ChannelID, "Agent execution failed")
		}
		b.finish(ctx, job, lastContent, tokens, model.JobStatusFailed)
		if b.metrics != nil {
			b.metrics.JobsFailed.Inc()
		}
		b.notify(job)
		return rj.err
	}

	for _, t := range rj.targets {
		t.Registry.Send(t.ChannelID, ws.ResultMessage{
			Type:    ws.OutboundTypeResult,
			Content: lastContent,
		})
	}
	b.finish(ctx, job, lastContent, tokens, model.JobStatusComplete)
	if b.metrics != nil {
		b.metrics.JobsCompleted.Inc()
	}
	b.notify(job)
	return nil
}

// finish writes the terminal job state, keeping the in-memory copy in sync
// for completion hooks.
func (b *Bridge) finish(ctx context.Context, job *model.Job, result string, tokens int64, status model.JobStatus) {
	job.Result = result
	job.Tokens = tokens
	job.Status = status
	job.UpdatedAt = time.Now().UTC()

	if err := b.jobs.Finish(ctx, job.ID, result, tokens, status); err != nil {
		log.Printf("Failed to finalize job %s: %v", job.ID, err)
	}
}

func (b *Bridge) notify(job *model.Job) {
	b.hooksMu.RLock()
	hooks := make([]CompleteFunc, len(b.hooks))
	copy(hooks, b.hooks)
	b.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(job)
	}
}

// Cancel aborts a running job's pipeline. The producer closes the queue on
// its way out, so the normal Stream teardown still runs. It reports whether
// the job was running.
func (b *Bridge) Cancel(jobID uuid.UUID) bool {
	b.mu.RLock()
	rj, ok := b.running[jobID]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	rj.cancel()
	return true
}

// Running reports whether the job is currently in flight.
func (b *Bridge) Running(jobID uuid.UUID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.running[jobID]
	return ok
}

// RunningCount returns the number of in-flight jobs.
func (b *Bridge) RunningCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.running)
}

// Replay returns the stream events the job has emitted so far, oldest
// first, for clients attaching mid-stream. It returns nil for jobs that
// are not running.
func (b *Bridge) Replay(jobID uuid.UUID) []ws.StreamMessage {
	b.mu.RLock()
	rj, ok := b.running[jobID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return rj.ring.Snapshot()
}

// streamMessage converts a pipeline event into the wire message for this
// job's subscribers.
func (rj *runningJob) streamMessage(ev pipeline.Event) ws.StreamMessage {
	ts := ev.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	started := rj.startedAt
	msg := ws.StreamMessage{
		Type:         ws.OutboundTypeStream,
		StreamType:   string(ev.Type),
		Role:         ev.Role,
		Content:      ev.Content,
		Tool:         ev.Tool,
		ToolInput:    ev.ToolInput,
		Thought:      ev.Thought,
		Status:       ev.Status,
		ThreadID:     rj.job.ThreadID.String(),
		Timestamp:    ts,
		JobStartedAt: &started,
	}
	if ev.Type == pipeline.EventTypeResult {
		msg.Result = ev.Content
	}
	if rj.job.AgentID != nil {
		msg.AgentID = rj.job.AgentID.String()
	}
	return msg
}
