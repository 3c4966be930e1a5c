package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// streamChunk is one SSE data payload from an OpenAI-compatible endpoint.
type streamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// OpenAIPipeline streams completions from an OpenAI-compatible endpoint.
type OpenAIPipeline struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewOpenAIPipeline creates a pipeline backed by an OpenAI-compatible
// chat-completions endpoint.
func NewOpenAIPipeline(endpoint, apiKey, model string) *OpenAIPipeline {
	return &OpenAIPipeline{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{},
	}
}

// Stream sends a streaming chat completion request and converts the SSE
// response into pipeline events: one token event per content delta, a final
// result event with the accumulated text, then an end event.
func (p *OpenAIPipeline) Stream(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	events := make(chan Event, 64)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		if err := p.stream(ctx, req, events); err != nil {
			errc <- err
		}
	}()

	return events, errc
}

func (p *OpenAIPipeline) stream(ctx context.Context, req Request, events chan<- Event) error {
	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.Persona != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Persona})
	}
	for _, h := range req.History {
		messages = append(messages, chatMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Input})

	body, err := json.Marshal(chatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
	}

	var accumulated strings.Builder
	if err := p.readStream(ctx, resp.Body, events, &accumulated); err != nil {
		return err
	}

	now := time.Now().UTC()
	if accumulated.Len() > 0 {
		result := Event{
			Type:      EventTypeResult,
			Role:      "assistant",
			Content:   accumulated.String(),
			CreatedAt: now,
		}
		if err := sendEvent(ctx, events, result); err != nil {
			return err
		}
	}
	return sendEvent(ctx, events, Event{Type: EventTypeEnd, Role: "assistant", Status: "end", CreatedAt: now})
}

// sendEvent pushes an event without blocking past context cancellation. The
// consumer may stop draining at any time.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readStream parses the SSE body line by line, emitting a token event for
// every non-empty content delta.
func (p *OpenAIPipeline) readStream(ctx context.Context, reader io.Reader, events chan<- Event, accumulated *strings.Builder) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Malformed chunks are skipped, the stream continues
			continue
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			accumulated.WriteString(choice.Delta.Content)
			token := Event{
				Type:      EventTypeToken,
				Role:      "assistant",
				Content:   choice.Delta.Content,
				Status:    "processing",
				CreatedAt: time.Now().UTC(),
			}
			if err := sendEvent(ctx, events, token); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	return nil
}
