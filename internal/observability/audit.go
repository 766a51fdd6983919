package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventConstraintEdit AuditEventType = "constraint.edit"
	AuditEventRunStart       AuditEventType = "run.start"
	AuditEventRunPublished   AuditEventType = "run.published"
	AuditEventRunDiscarded   AuditEventType = "run.discarded"
	AuditEventRunFailed      AuditEventType = "run.failed"
)

// AuditEvent is a single JSON line of the audit trail.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	Generation  uint64         `json:"generation,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	Algorithm   string         `json:"algorithm,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger appends audit events as JSON lines. A nil or disabled logger
// discards events.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // file path, "stdout" or "stderr"
	SessionID  string
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}
	return newAuditLogger(writer, config.SessionID, config.Enabled), nil
}

func newAuditLogger(w io.Writer, sessionID string, enabled bool) *AuditLogger {
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: enabled}
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogConstraintEdit records a user edit of the constraint set.
func (l *AuditLogger) LogConstraintEdit(op, source, target string) {
	_ = l.Log(&AuditEvent{
		EventType: AuditEventConstraintEdit,
		Success:   true,
		Message:   fmt.Sprintf("%s %s -> %s", op, source, target),
		Details:   map[string]any{"operation": op, "source": source, "target": target},
	})
}

func (l *AuditLogger) LogRunStart(generation uint64, taskID, algorithm string, variableCount int) {
	_ = l.Log(&AuditEvent{
		EventType:  AuditEventRunStart,
		Generation: generation,
		TaskID:     taskID,
		Algorithm:  algorithm,
		Success:    true,
		Details:    map[string]any{"variable_count": variableCount},
	})
}

// LogRunEnd records how a started run ended: published, discarded or failed.
func (l *AuditLogger) LogRunEnd(generation uint64, taskID, algorithm, outcome string, duration time.Duration, err error) {
	event := &AuditEvent{
		Generation: generation,
		TaskID:     taskID,
		Algorithm:  algorithm,
		Duration:   duration,
		Message:    outcome,
	}
	switch {
	case outcome == OutcomeFailed:
		event.EventType = AuditEventRunFailed
		if err != nil {
			event.ErrorDetail = err.Error()
		}
	case outcome == OutcomePublished:
		event.EventType = AuditEventRunPublished
		event.Success = true
	default:
		event.EventType = AuditEventRunDiscarded
	}
	_ = l.Log(event)
}

// Close closes the audit log file, if any.
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
