package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stacks-agent-crew/backend/internal/bridge"
	"github.com/stacks-agent-crew/backend/internal/metrics"
	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
	"github.com/stacks-agent-crew/backend/internal/ws"
)

const maxInboundMessageSize = 8192

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; production deployments sit
	// behind a reverse proxy that enforces origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ChatHandler owns the thread, crew and job WebSocket endpoints.
type ChatHandler struct {
	bridge  *bridge.Bridge
	manager *ws.Manager
	threads *repository.ThreadRepository
	crews   *repository.CrewRepository
	jobs    *repository.JobRepository
	metrics *metrics.Metrics
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(
	b *bridge.Bridge,
	manager *ws.Manager,
	threads *repository.ThreadRepository,
	crews *repository.CrewRepository,
	jobs *repository.JobRepository,
	m *metrics.Metrics,
) *ChatHandler {
	return &ChatHandler{
		bridge:  b,
		manager: manager,
		threads: threads,
		crews:   crews,
		jobs:    jobs,
		metrics: m,
	}
}

// RegisterRoutes registers the WebSocket routes on a Gin router group.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/chat/ws", h.ThreadSocket)
	rg.GET("/crew/ws/:crew_id", h.CrewSocket)
	rg.GET("/job/ws/:job_id", h.JobSocket)
}

// ThreadSocket handles GET /api/chat/ws?thread_id=&profile_id=, the
// conversational socket bound to one thread. Inbound "history" replays the
// thread transcript; "message" starts a job and streams its events back.
// Malformed inbound messages produce an in-band error and leave the socket
// open.
func (h *ChatHandler) ThreadSocket(c *gin.Context) {
	threadID, err := uuid.Parse(c.Query("thread_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "thread_id is required and must be a UUID")
		return
	}
	profileID, err := uuid.Parse(c.Query("profile_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "profile_id is required and must be a UUID")
		return
	}

	if _, err := h.threads.GetByID(c.Request.Context(), threadID); err != nil {
		if errors.Is(err, model.ErrThreadNotFound) {
			sendError(c, http.StatusNotFound, "THREAD_NOT_FOUND", "Thread "+threadID.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load thread: "+err.Error())
		return
	}

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade thread socket: %v", err)
		return
	}
	raw.SetReadLimit(maxInboundMessageSize)

	conn := ws.NewConn(raw)
	channelID := threadID.String()
	h.manager.Threads.Connect(channelID, conn)
	defer func() {
		h.manager.Threads.Disconnect(channelID, conn)
		conn.Close()
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}

		var msg ws.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.WriteJSON(ws.NewErrorMessage("invalid message"))
			continue
		}

		switch msg.Type {
		case ws.InboundTypeHistory:
			h.sendHistory(c.Request.Context(), conn, threadID)

		case ws.InboundTypeMessage, ws.InboundTypeChatMessage:
			h.runThreadJob(c.Request.Context(), conn, threadID, profileID, msg)

		default:
			conn.WriteJSON(ws.NewErrorMessage("unknown message type"))
		}
	}
}

func (h *ChatHandler) sendHistory(ctx context.Context, conn ws.Conn, threadID uuid.UUID) {
	entries, err := h.threads.History(ctx, threadID)
	if err != nil {
		log.Printf("Failed to load history for thread %s: %v", threadID, err)
		conn.WriteJSON(ws.NewErrorMessage("failed to load history"))
		return
	}
	conn.WriteJSON(ws.HistoryMessage{Type: ws.OutboundTypeHistory, Entries: entries})
}

// runThreadJob starts a job for one inbound message and streams it to the
// thread channel. Streaming is synchronous: the socket processes messages
// one at a time, in order.
func (h *ChatHandler) runThreadJob(ctx context.Context, conn ws.Conn, threadID, profileID uuid.UUID, msg ws.InboundMessage) {
	text := msg.Text()
	if text == "" {
		conn.WriteJSON(ws.NewErrorMessage("message content is required"))
		return
	}

	var agentID *uuid.UUID
	if msg.AgentID != "" {
		parsed, err := uuid.Parse(msg.AgentID)
		if err != nil {
			conn.WriteJSON(ws.NewErrorMessage("invalid agent_id"))
			return
		}
		agentID = &parsed
	}
	// An explicit thread_id in the message overrides the socket's thread.
	if msg.ThreadID != "" {
		parsed, err := uuid.Parse(msg.ThreadID)
		if err != nil {
			conn.WriteJSON(ws.NewErrorMessage("invalid thread_id"))
			return
		}
		threadID = parsed
	}

	job, err := h.bridge.StartJob(ctx, bridge.StartRequest{
		ThreadID:  threadID,
		ProfileID: profileID,
		AgentID:   agentID,
		Input:     text,
		Targets: []bridge.Target{
			{Registry: h.manager.Threads, ChannelID: threadID.String()},
		},
	})
	if err != nil {
		log.Printf("Failed to start job on thread %s: %v", threadID, err)
		conn.WriteJSON(ws.NewErrorMessage("failed to start job"))
		return
	}

	conn.WriteJSON(ws.JobStartedMessage{Type: ws.OutboundTypeJobStarted, JobID: job.ID})

	if err := h.bridge.Stream(ctx, job.ID); err != nil {
		log.Printf("Job %s stream ended with error: %v", job.ID, err)
	}
}

// JobSocket handles GET /api/job/ws/:job_id, a read-only attach to one
// job's channel. A client joining mid-stream is caught up from the event
// ring first, then receives live events as they arrive. For a job that has
// already finished, the stored outcome is sent instead.
func (h *ChatHandler) JobSocket(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "job_id must be a UUID")
		return
	}

	if _, err := h.jobs.GetByID(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			sendError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Job "+jobID.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job: "+err.Error())
		return
	}

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade job socket: %v", err)
		return
	}
	raw.SetReadLimit(maxInboundMessageSize)

	conn := ws.NewConn(raw)
	channelID := jobID.String()
	h.manager.Jobs.Connect(channelID, conn)
	defer func() {
		h.manager.Jobs.Disconnect(channelID, conn)
		conn.Close()
	}()

	// Connect before reading the ring so no event falls between catch-up
	// and live delivery.
	if h.bridge.Running(jobID) {
		for _, msg := range h.bridge.Replay(jobID) {
			conn.WriteJSON(msg)
		}
	} else {
		job, err := h.jobs.GetByID(c.Request.Context(), jobID)
		if err != nil {
			log.Printf("Failed to reload job %s: %v", jobID, err)
			return
		}
		switch job.Status {
		case model.JobStatusComplete:
			conn.WriteJSON(ws.ResultMessage{Type: ws.OutboundTypeResult, Content: job.Result})
		case model.JobStatusFailed:
			conn.WriteJSON(ws.NewErrorMessage("Agent execution failed"))
		}
	}

	// Inbound frames are discarded; the read loop only notices the close.
	for {
		if _, _, err := raw.ReadMessage(); err != nil {
			return
		}
	}
}

// CrewSocket handles GET /api/crew/ws/:crew_id, the crew execution socket.
// Each connection gets an ephemeral session channel. A "chat_message" starts
// a job streamed back on that channel; while one is in flight, further
// inputs are rejected in-band and discarded.
func (h *ChatHandler) CrewSocket(c *gin.Context) {
	crewID, err := uuid.Parse(c.Param("crew_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "crew_id must be a UUID")
		return
	}

	crew, err := h.crews.GetByID(c.Request.Context(), crewID)
	if err != nil {
		if errors.Is(err, model.ErrCrewNotFound) {
			sendError(c, http.StatusNotFound, "CREW_NOT_FOUND", "Crew "+crewID.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load crew: "+err.Error())
		return
	}

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade crew socket: %v", err)
		return
	}
	raw.SetReadLimit(maxInboundMessageSize)

	conn := ws.NewConn(raw)
	sessionID := uuid.New().String()
	h.manager.Sessions.Connect(sessionID, conn)
	defer func() {
		h.manager.Sessions.Disconnect(sessionID, conn)
		conn.Close()
	}()

	// One thread per socket, created on the first message.
	var threadID uuid.UUID

	// The socket keeps reading while a job streams in the background, so
	// the guard is shared between the read loop and the stream goroutine.
	var busy atomic.Bool

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}

		var msg ws.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.WriteJSON(ws.NewErrorMessage("invalid message"))
			continue
		}
		if msg.Type != ws.InboundTypeChatMessage && msg.Type != ws.InboundTypeMessage {
			conn.WriteJSON(ws.NewErrorMessage("unknown message type"))
			continue
		}

		text := msg.Text()
		if text == "" {
			conn.WriteJSON(ws.NewErrorMessage("message content is required"))
			continue
		}

		if !busy.CompareAndSwap(false, true) {
			conn.WriteJSON(ws.NewErrorMessage(model.ErrJobInFlight.Error()))
			if h.metrics != nil {
				h.metrics.JobsRejected.Inc()
			}
			continue
		}

		if threadID == uuid.Nil {
			thread := &model.Thread{
				ID:        uuid.New(),
				ProfileID: crew.ProfileID,
				Name:      "crew: " + crew.Name,
				CreatedAt: time.Now().UTC(),
			}
			if err := h.threads.Create(c.Request.Context(), thread); err != nil {
				busy.Store(false)
				log.Printf("Failed to create crew thread: %v", err)
				conn.WriteJSON(ws.NewErrorMessage("failed to start job"))
				continue
			}
			threadID = thread.ID
		}

		job, err := h.bridge.StartJob(c.Request.Context(), bridge.StartRequest{
			ThreadID:  threadID,
			ProfileID: crew.ProfileID,
			Input:     text,
			Targets: []bridge.Target{
				{Registry: h.manager.Sessions, ChannelID: sessionID},
			},
		})
		if err != nil {
			busy.Store(false)
			log.Printf("Failed to start crew job: %v", err)
			conn.WriteJSON(ws.NewErrorMessage("failed to start job"))
			continue
		}

		conn.WriteJSON(ws.JobStartedMessage{Type: ws.OutboundTypeJobStarted, JobID: job.ID})

		go func() {
			defer busy.Store(false)
			if err := h.bridge.Stream(context.Background(), job.ID); err != nil {
				log.Printf("Crew job %s stream ended with error: %v", job.ID, err)
			}
		}()
	}
}
