package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the active audit file inside the log directory.
const FileName = "audit.jsonl"

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	BatchID   string                 `json:"batchId,omitempty"`
	Channel   string                 `json:"channel"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs int64                  `json:"latencyMs"`
}

// Rotation bounds the audit file set.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation keeps five 10 MB segments for four weeks.
func DefaultRotation() Rotation {
	return Rotation{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 28}
}

// Logger implements the audit logging functionality.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
	closed   bool
}

// NewLogger creates an audit logger in logDir with DefaultRotation.
func NewLogger(logDir string) (*Logger, error) {
	return NewLoggerWithRotation(logDir, DefaultRotation())
}

// NewLoggerWithRotation creates an audit logger in logDir.
func NewLoggerWithRotation(logDir string, rot Rotation) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, FileName)

	// Create the file up front so a bad directory fails here, not on first write.
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    rot.MaxSizeMB,
			MaxBackups: rot.MaxBackups,
			MaxAge:     rot.MaxAgeDays,
			Compress:   rot.Compress,
		},
	}, nil
}

// LogAction logs an audit record for one command.
func (l *Logger) LogAction(ctx context.Context, action, channel, result string, latency time.Duration) {
	params := ParamsFromContext(ctx)
	batchID, _ := params["batchId"].(string)

	l.writeEntry(AuditEntry{
		Timestamp: time.Now().UTC(),
		User:      UserFromContext(ctx),
		BatchID:   batchID,
		Channel:   channel,
		Action:    action,
		Params:    params,
		Outcome:   outcomeFromCode(result),
		Code:      result,
		LatencyMs: latency.Milliseconds(),
	})
}

// LogControlAction logs an operator action that is not a transmission
// (for example clearing the queue).
func (l *Logger) LogControlAction(ctx context.Context, action string, params map[string]interface{}, err error) {
	code := "SUCCESS"
	if err != nil {
		code = err.Error()
	}

	l.writeEntry(AuditEntry{
		Timestamp: time.Now().UTC(),
		User:      UserFromContext(ctx),
		Action:    action,
		Params:    params,
		Outcome:   outcomeFromCode(code),
		Code:      code,
	})
}

func (l *Logger) writeEntry(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		log.Printf("audit: dropped %s entry after close", entry.Action)
		return
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		log.Printf("audit: failed to marshal entry: %v", err)
		return
	}

	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		log.Printf("audit: failed to write entry: %v", err)
	}
}

// outcomeFromCode collapses a result code to success, cancelled or failure.
func outcomeFromCode(code string) string {
	switch code {
	case "SUCCESS":
		return "success"
	case "CANCELLED":
		return "cancelled"
	default:
		return "failure"
	}
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.out.Close()
}

// GetFilePath returns the path to the active audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate starts a new file, keeping the old one as a timestamped backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.out.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}
