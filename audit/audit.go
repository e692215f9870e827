// Package audit provides the session-scoped, append-only journal of
// operation lifecycle events, with fire-and-forget alerting for
// high-severity and critical-operation failures.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/opsgate/opsgate/telemetry"
	"github.com/opsgate/opsgate/types"
)

// Status of an operation lifecycle entry. For a single operation
// entries always appear in the order initiated -> (success | failed).
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// Security event severities.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Entry is one immutable journal record. Operation entries carry
// operation/parameters/status; security events carry the event fields
// instead. Entries are never mutated or deleted after being written.
type Entry struct {
	Timestamp     time.Time      `json:"timestamp"`
	Sequence      int64          `json:"sequence"`
	SessionID     string         `json:"session_id"`
	User          string         `json:"user"`
	Operation     string         `json:"operation,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Status        Status         `json:"status,omitempty"`
	Error         string         `json:"error,omitempty"`
	ResultSummary map[string]any `json:"result_summary,omitempty"`
	EventType     string         `json:"event_type,omitempty"`
	SecurityEvent string         `json:"security_event,omitempty"`
	Severity      string         `json:"severity,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// resultAllowList is the only set of fields copied from an operation
// result into the audit trail. Everything else is dropped so sensitive
// payload data never reaches the journal.
var resultAllowList = []string{"success", "status", "count", "name", "domain", "environment"}

// criticalOperations trigger an operational alert when they fail.
var criticalOperations = map[string]bool{
	types.OpIsolate:  true,
	types.OpFailover: true,
	types.OpDeploy:   true,
}

// Log is the session journal. Appends are serialized by a mutex so
// lines are never interleaved; alert dispatch is handed to a bounded
// background worker and never blocks or fails an append.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	path     string
	sequence int64

	sessionID string
	user      string

	index  *btree.BTreeG[*Entry]
	alerts *dispatcher
	logger *telemetry.Logger
	now    func() time.Time
}

// Open starts a new audit session in dir. The journal file is named by
// session start time; user is the upstream-established caller identity.
func Open(dir, user string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	start := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("audit-%s.jsonl", start.Format("20060102-150405")))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	logger := telemetry.NewLogger("audit")

	return &Log{
		file:      file,
		writer:    bufio.NewWriter(file),
		path:      path,
		sessionID: uuid.NewString(),
		user:      user,
		index: btree.NewG[*Entry](32, func(a, b *Entry) bool {
			return a.Sequence < b.Sequence
		}),
		alerts: newDispatcher(64, logger),
		logger: logger,
		now:    time.Now,
	}, nil
}

// SessionID returns this session's identifier.
func (l *Log) SessionID() string { return l.sessionID }

// Path returns the journal file path, for downstream shipping.
func (l *Log) Path() string { return l.path }

// Close flushes and closes the journal and stops the alert worker.
// Pending alerts are delivered before Close returns.
func (l *Log) Close() error {
	l.alerts.close()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

// LogOperation appends an initiated entry.
func (l *Log) LogOperation(operation string, params map[string]any) error {
	return l.append(&Entry{
		Operation:  operation,
		Parameters: params,
		Status:     StatusInitiated,
	})
}

// LogSuccess appends a success entry. Only allow-listed fields of the
// result survive into the entry's summary.
func (l *Log) LogSuccess(operation string, result, params map[string]any) error {
	return l.append(&Entry{
		Operation:     operation,
		Parameters:    params,
		Status:        StatusSuccess,
		ResultSummary: summarize(result),
	})
}

// LogError appends a failed entry, and raises an operational alert when
// the operation is in the critical set. Alerting is fire-and-forget.
func (l *Log) LogError(operation string, opErr error, params map[string]any) error {
	entry := &Entry{
		Operation:  operation,
		Parameters: params,
		Status:     StatusFailed,
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}

	if err := l.append(entry); err != nil {
		return err
	}

	if criticalOperations[operation] {
		l.alerts.dispatch(alert{
			kind:      alertOperational,
			operation: operation,
			errMsg:    entry.Error,
		})
	}
	return nil
}

// LogSecurityEvent appends a security-event entry, and raises an alert
// for critical or high severity.
func (l *Log) LogSecurityEvent(eventType, severity string, details map[string]any) error {
	if err := l.append(&Entry{
		EventType:     "security",
		SecurityEvent: eventType,
		Severity:      severity,
		Details:       details,
	}); err != nil {
		return err
	}

	if severity == SeverityCritical || severity == SeverityHigh {
		l.alerts.dispatch(alert{
			kind:      alertSecurity,
			eventType: eventType,
			severity:  severity,
			details:   details,
		})
	}
	return nil
}

// append stamps and writes a single entry: whole line, flush, sync.
func (l *Log) append(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	entry.Timestamp = l.now()
	entry.Sequence = l.sequence
	entry.SessionID = l.sessionID
	entry.User = l.user

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := l.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}

	l.index.ReplaceOrInsert(entry)
	return nil
}

// RecentOperations returns the entries written within the trailing
// window, in write order, optionally filtered by operation name.
// Malformed lines in the journal are skipped rather than failing the
// whole scan.
func (l *Log) RecentOperations(window time.Duration, operationFilter string) ([]Entry, error) {
	l.mu.Lock()
	cutoff := l.now().Add(-window)
	flushErr := l.writer.Flush()
	l.mu.Unlock()
	if flushErr != nil {
		return nil, flushErr
	}

	var out []Entry
	err := Scan(l.path, func(e Entry) {
		if e.Timestamp.Before(cutoff) {
			return
		}
		if operationFilter != "" && e.Operation != operationFilter {
			return
		}
		out = append(out, e)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// summarize copies only allow-listed fields from a result.
func summarize(result map[string]any) map[string]any {
	if result == nil {
		return nil
	}
	summary := make(map[string]any)
	for _, field := range resultAllowList {
		if v, ok := result[field]; ok {
			summary[field] = v
		}
	}
	return summary
}
