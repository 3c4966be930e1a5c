package pipeline

import "context"

// ScriptedPipeline replays a fixed sequence of events. It backs tests and
// the dev-mode server when no provider endpoint is configured.
type ScriptedPipeline struct {
	Events []Event
	Err    error
}

// NewScriptedPipeline creates a pipeline that replays the given events.
func NewScriptedPipeline(events ...Event) *ScriptedPipeline {
	return &ScriptedPipeline{Events: events}
}

// Stream replays the scripted events in order, honoring context cancellation.
func (p *ScriptedPipeline) Stream(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	events := make(chan Event, len(p.Events))
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		for _, ev := range p.Events {
			select {
			case events <- ev:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		if p.Err != nil {
			errc <- p.Err
		}
	}()

	return events, errc
}
