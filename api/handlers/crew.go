package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/bridge"
	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
)

// CrewHandler handles crew management and synchronous crew execution.
type CrewHandler struct {
	crews   *repository.CrewRepository
	threads *repository.ThreadRepository
	jobs    *repository.JobRepository
	bridge  *bridge.Bridge
}

// NewCrewHandler creates a new CrewHandler.
func NewCrewHandler(
	crews *repository.CrewRepository,
	threads *repository.ThreadRepository,
	jobs *repository.JobRepository,
	b *bridge.Bridge,
) *CrewHandler {
	return &CrewHandler{crews: crews, threads: threads, jobs: jobs, bridge: b}
}

// RegisterRoutes registers the crew routes on a Gin router group.
func (h *CrewHandler) RegisterRoutes(rg *gin.RouterGroup) {
	crews := rg.Group("/crews")
	{
		crews.POST("", h.Create)
		crews.GET("", h.List)
	}
	rg.POST("/crew/execute/:crew_id", h.Execute)
}

// CreateCrewRequest represents the request body for creating a crew.
type CreateCrewRequest struct {
	ProfileID   uuid.UUID `json:"profileId" binding:"required"`
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
}

// Create handles POST /api/crews - creates a new crew.
func (h *CrewHandler) Create(c *gin.Context) {
	var req CreateCrewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	crew := &model.Crew{
		ID:          uuid.New(),
		ProfileID:   req.ProfileID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.crews.Create(c.Request.Context(), crew); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create crew: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, crew)
}

// List handles GET /api/crews?profile_id=… - lists a profile's crews.
func (h *CrewHandler) List(c *gin.Context) {
	profileID, err := uuid.Parse(c.Query("profile_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "profile_id is required and must be a UUID")
		return
	}

	crews, err := h.crews.ListByProfile(c.Request.Context(), profileID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list crews: "+err.Error())
		return
	}
	if crews == nil {
		crews = []*model.Crew{}
	}

	c.JSON(http.StatusOK, crews)
}

// ExecuteRequest represents the request body for synchronous execution.
type ExecuteRequest struct {
	Message  string `json:"message" binding:"required"`
	ThreadID string `json:"threadId"`
}

// Execute handles POST /api/crew/execute/:crew_id - runs one crew job to
// completion and returns the finished job. The streaming variant of the
// same operation lives on the crew WebSocket.
func (h *CrewHandler) Execute(c *gin.Context) {
	crewID, err := uuid.Parse(c.Param("crew_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "crew_id must be a UUID")
		return
	}

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
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

	var threadID uuid.UUID
	if req.ThreadID != "" {
		if threadID, err = uuid.Parse(req.ThreadID); err != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "threadId must be a UUID")
			return
		}
	} else {
		thread := &model.Thread{
			ID:        uuid.New(),
			ProfileID: crew.ProfileID,
			Name:      "crew: " + crew.Name,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.threads.Create(c.Request.Context(), thread); err != nil {
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create thread: "+err.Error())
			return
		}
		threadID = thread.ID
	}

	job, err := h.bridge.StartJob(c.Request.Context(), bridge.StartRequest{
		ThreadID:  threadID,
		ProfileID: crew.ProfileID,
		Input:     req.Message,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start job: "+err.Error())
		return
	}

	// No socket is attached; draining the queue here is what runs the job
	// to completion.
	if err := h.bridge.Stream(c.Request.Context(), job.ID); err != nil {
		sendError(c, http.StatusBadGateway, "EXECUTION_FAILED", "Agent execution failed: "+err.Error())
		return
	}

	finished, err := h.jobs.GetByID(c.Request.Context(), job.ID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, finished)
}
