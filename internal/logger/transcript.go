// Package logger records job event transcripts in JSON-Lines format.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacks-agent-crew/backend/internal/pipeline"
)

// TranscriptHeader is the first line of a transcript file.
type TranscriptHeader struct {
	Version   int    `json:"version"`
	JobID     string `json:"job_id"`
	ThreadID  string `json:"thread_id"`
	Timestamp int64  `json:"timestamp"`
}

// TranscriptLogger writes one JSONL transcript file per job. Each line
// after the header is [time_offset_seconds, event].
type TranscriptLogger struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// NewTranscriptLogger creates a transcript logger writing to
// <dir>/<job_id>.jsonl.
func NewTranscriptLogger(dir string, jobID, threadID uuid.UUID) (*TranscriptLogger, error) {
	file, err := os.Create(filepath.Join(dir, fmt.Sprintf("%s.jsonl", jobID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	l := &TranscriptLogger{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}
	if err := l.writeHeader(jobID, threadID); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

// NewTranscriptLoggerWithWriter creates a transcript logger that writes to
// the given writer. This is useful for testing.
func NewTranscriptLoggerWithWriter(w io.Writer) *TranscriptLogger {
	return &TranscriptLogger{
		writer:    w,
		startTime: time.Now(),
	}
}

func (l *TranscriptLogger) writeHeader(jobID, threadID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := TranscriptHeader{
		Version:   1,
		JobID:     jobID.String(),
		ThreadID:  threadID.String(),
		Timestamp: l.startTime.Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteEvent appends one pipeline event to the transcript.
func (l *TranscriptLogger) WriteEvent(ev pipeline.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := []any{time.Since(l.startTime).Seconds(), ev}
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the transcript file.
func (l *TranscriptLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
