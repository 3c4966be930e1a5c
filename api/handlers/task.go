package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
	"github.com/stacks-agent-crew/backend/internal/schedule"
)

// TaskHandler handles HTTP requests for scheduled tasks.
type TaskHandler struct {
	tasks     *repository.TaskRepository
	scheduler *schedule.Scheduler
}

// NewTaskHandler creates a new TaskHandler. The scheduler may be nil when
// scheduling is disabled.
func NewTaskHandler(tasks *repository.TaskRepository, scheduler *schedule.Scheduler) *TaskHandler {
	return &TaskHandler{tasks: tasks, scheduler: scheduler}
}

// RegisterRoutes registers the task routes on a Gin router group.
func (h *TaskHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	{
		tasks.POST("", h.Create)
		tasks.GET("", h.ListScheduled)
	}
}

// CreateTaskRequest represents the request body for creating a task.
type CreateTaskRequest struct {
	ProfileID uuid.UUID  `json:"profileId" binding:"required"`
	AgentID   *uuid.UUID `json:"agentId"`
	ThreadID  uuid.UUID  `json:"threadId" binding:"required"`
	Name      string     `json:"name" binding:"required"`
	Prompt    string     `json:"prompt" binding:"required"`
	Cron      string     `json:"cron"`
}

// Create handles POST /api/tasks - creates a task; tasks with a cron
// expression are picked up by the scheduler on its next reload.
func (h *TaskHandler) Create(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	task := &model.Task{
		ID:          uuid.New(),
		ProfileID:   req.ProfileID,
		AgentID:     req.AgentID,
		ThreadID:    req.ThreadID,
		Name:        req.Name,
		Prompt:      req.Prompt,
		Cron:        req.Cron,
		IsScheduled: req.Cron != "",
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.tasks.Create(c.Request.Context(), task); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create task: "+err.Error())
		return
	}

	if h.scheduler != nil && task.IsScheduled {
		if err := h.scheduler.Reload(); err != nil {
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Task saved but scheduler reload failed: "+err.Error())
			return
		}
	}

	c.JSON(http.StatusCreated, task)
}

// ListScheduled handles GET /api/tasks - lists every scheduled task.
func (h *TaskHandler) ListScheduled(c *gin.Context) {
	tasks, err := h.tasks.ListScheduled(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tasks: "+err.Error())
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}

	c.JSON(http.StatusOK, tasks)
}
