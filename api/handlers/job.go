package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/model"
	"github.com/stacks-agent-crew/backend/internal/repository"
)

// JobHandler handles HTTP requests for jobs and their steps.
type JobHandler struct {
	jobs  *repository.JobRepository
	steps *repository.StepRepository
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs *repository.JobRepository, steps *repository.StepRepository) *JobHandler {
	return &JobHandler{jobs: jobs, steps: steps}
}

// RegisterRoutes registers the job routes on a Gin router group.
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup) {
	jobs := rg.Group("/jobs")
	{
		jobs.GET("/:id", h.Get)
		jobs.GET("/:id/steps", h.Steps)
	}
}

// Get handles GET /api/jobs/:id - gets a specific job.
func (h *JobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Job ID must be a UUID")
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			sendError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Job "+id.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get job: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, job)
}

// Steps handles GET /api/jobs/:id/steps - lists the job's persisted steps,
// oldest first.
func (h *JobHandler) Steps(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Job ID must be a UUID")
		return
	}

	if _, err := h.jobs.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			sendError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Job "+id.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get job: "+err.Error())
		return
	}

	steps, err := h.steps.List(c.Request.Context(), model.StepFilter{JobID: &id})
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list steps: "+err.Error())
		return
	}
	if steps == nil {
		steps = []*model.Step{}
	}

	c.JSON(http.StatusOK, gin.H{"steps": steps})
}
