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

// ProfileHandler handles HTTP requests for profiles and their agents.
type ProfileHandler struct {
	profiles *repository.ProfileRepository
	agents   *repository.AgentRepository
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profiles *repository.ProfileRepository, agents *repository.AgentRepository) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, agents: agents}
}

// RegisterRoutes registers the profile and agent routes on a Gin router group.
func (h *ProfileHandler) RegisterRoutes(rg *gin.RouterGroup) {
	profiles := rg.Group("/profiles")
	{
		profiles.POST("", h.CreateProfile)
		profiles.GET("/:id", h.GetProfile)
	}
	agents := rg.Group("/agents")
	{
		agents.POST("", h.CreateAgent)
		agents.GET("/:id", h.GetAgent)
	}
}

// CreateProfileRequest represents the request body for creating a profile.
type CreateProfileRequest struct {
	Email                string `json:"email"`
	Username             string `json:"username"`
	AssignedAgentAddress string `json:"assignedAgentAddress"`
}

// CreateProfile handles POST /api/profiles - creates a new profile.
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	var req CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	profile := &model.Profile{
		ID:                   uuid.New(),
		Email:                req.Email,
		Username:             req.Username,
		AssignedAgentAddress: req.AssignedAgentAddress,
		CreatedAt:            time.Now().UTC(),
	}
	if err := h.profiles.Create(c.Request.Context(), profile); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create profile: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, profile)
}

// GetProfile handles GET /api/profiles/:id - gets a specific profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Profile ID must be a UUID")
		return
	}

	profile, err := h.profiles.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrProfileNotFound) {
			sendError(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "Profile "+id.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get profile: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, profile)
}

// CreateAgentRequest represents the request body for creating an agent.
type CreateAgentRequest struct {
	ProfileID  uuid.UUID `json:"profileId" binding:"required"`
	Name       string    `json:"name" binding:"required"`
	Role       string    `json:"role"`
	Goal       string    `json:"goal"`
	Backstory  string    `json:"backstory"`
	AgentTools []string  `json:"agentTools"`
}

// CreateAgent handles POST /api/agents - creates a new agent persona.
func (h *ProfileHandler) CreateAgent(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	agent := &model.Agent{
		ID:         uuid.New(),
		ProfileID:  req.ProfileID,
		Name:       req.Name,
		Role:       req.Role,
		Goal:       req.Goal,
		Backstory:  req.Backstory,
		AgentTools: req.AgentTools,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.agents.Create(c.Request.Context(), agent); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create agent: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, agent)
}

// GetAgent handles GET /api/agents/:id - gets a specific agent.
func (h *ProfileHandler) GetAgent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Agent ID must be a UUID")
		return
	}

	agent, err := h.agents.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrAgentNotFound) {
			sendError(c, http.StatusNotFound, "AGENT_NOT_FOUND", "Agent "+id.String()+" not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get agent: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, agent)
}
