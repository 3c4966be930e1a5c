package pipeline

import (
	"github.com/stacks-agent-crew/backend/internal/pipeline"
)

// Re-export types from internal/pipeline for external use
type (
	Pipeline       = pipeline.Pipeline
	Event          = pipeline.Event
	EventType      = pipeline.EventType
	Request        = pipeline.Request
	HistoryMessage = pipeline.HistoryMessage
)

const (
	EventTypeToken  = pipeline.EventTypeToken
	EventTypeTool   = pipeline.EventTypeTool
	EventTypeResult = pipeline.EventTypeResult
	EventTypeEnd    = pipeline.EventTypeEnd
)

// NewOpenAIPipeline creates a pipeline backed by an OpenAI-compatible endpoint.
func NewOpenAIPipeline(endpoint, apiKey, model string) Pipeline {
	return pipeline.NewOpenAIPipeline(endpoint, apiKey, model)
}

// NewScriptedPipeline creates a pipeline that replays a fixed event sequence.
func NewScriptedPipeline(events ...Event) Pipeline {
	return pipeline.NewScriptedPipeline(events...)
}
