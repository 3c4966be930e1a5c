package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
)

// ThreadHandler handles HTTP requests for conversation threads.
type ThreadHandler struct {
	threads *repository.ThreadRepository
}

// NewThreadHandler creates a new ThreadHandler.
func NewThreadHandler(threads *repository.ThreadRepository) *ThreadHandler {
	return &ThreadHandler{threads: threads}
}

// RegisterRoutes registers the thread routes on a Gin router group.
func (h *ThreadHandler) RegisterRoutes(rg *gin.RouterGroup) {
	threads := rg.Group("/threads")
	{
		threads.POST("", h.Create)
		threads.GET("", h.List)
		threads.GET("/:id", h.Get)
		threads.GET("/:id/history", h.History)
	}
}

// Create handles POST /api/threads - creates a new thread.
func (h *ThreadHandler) Create(c *gin.Context) {
	var req model.CreateThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if req.ProfileID == uuid.Nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "profileId is required")
		return
	}

	name := req.Name
	if name == "" {
		name = "New thread"
	}
	thread := &model.Thread{
		ID:        uuid.New(),
		ProfileID: req.ProfileID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.threads.Create(c.Request.Context(), thread); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create thread: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, thread)
}

// List handles GET /api/threads?profile_id=… - lists a profile's threads,
// newest first.
func (h *ThreadHandler) List(c *gin.Context) {
	profileID, err := uuid.Parse(c.Query("profile_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "profile_id is required and must be a UUID")
		return
	}

	threads, err := h.threads.List(c.Request.Context(), profileID)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list threads: "+err.Error())
		return
	}
	if threads == nil {
		threads = []*model.Thread{}
	}

	c.JSON(http.StatusOK, threads)
}

// Get handles GET /api/threads/:id - gets a specific thread.
func (h *ThreadHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Thread ID must be a UUID")
		return
	}

	thread, err := h.threads.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrThreadNotFound) {
			sendError(c, http.StatusNotFound, "THREAD_NOT_FOUND", "Thread "+id.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get thread: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, thread)
}

// History handles GET /api/threads/:id/history - returns the merged
// transcript of job inputs and steps, oldest first.
func (h *ThreadHandler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Thread ID must be a UUID")
		return
	}

	history, err := h.threads.History(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load history: "+err.Error())
		return
	}
	if history == nil {
		history = []model.HistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}
