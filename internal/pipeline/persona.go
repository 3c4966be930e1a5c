package pipeline

import (
	"fmt"
	"strings"

	"github.com/stacks-agent-crew/backend/internal/model"
)

const staticPersona = "You are a helpful assistant. Specifically you're a Stacks blockchain " +
	"expert. You have access to a bunch of tools to provide extra data regarding " +
	"the Stacks blockchain. Use tools when needed."

// GeneratePersona renders the system prompt for an agent record. A nil agent
// yields the static default persona.
func GeneratePersona(agent *model.Agent) string {
	if agent == nil {
		return staticPersona
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", agent.Name)
	if agent.Role != "" {
		fmt.Fprintf(&b, " Your role: %s.", agent.Role)
	}
	if agent.Goal != "" {
		fmt.Fprintf(&b, " Your goal: %s.", agent.Goal)
	}
	if agent.Backstory != "" {
		fmt.Fprintf(&b, " Backstory: %s", agent.Backstory)
	}
	return b.String()
}
