package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	// Device session events
	EventConnect       EventType = "CONNECT"
	EventConnectFailed EventType = "CONNECT_FAILED"

	// Configuration events
	EventProfileCreate EventType = "PROFILE_CREATE"
	EventProfileUpdate EventType = "PROFILE_UPDATE"
	EventProfileDelete EventType = "PROFILE_DELETE"
	EventCommit        EventType = "COMMIT"
	EventCommitFailed  EventType = "COMMIT_FAILED"

	// Local device profile store events
	EventDeviceAdd    EventType = "DEVICE_ADD"
	EventDeviceDelete EventType = "DEVICE_DELETE"

	// System events
	EventStartup  EventType = "STARTUP"
	EventShutdown EventType = "SHUTDOWN"
	EventError    EventType = "ERROR"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	Severity  Severity               `json:"severity"`
	Source    string                 `json:"source"`
	User      string                 `json:"user,omitempty"`
	Device    string                 `json:"device,omitempty"`
	Profile   string                 `json:"profile,omitempty"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Logger appends audit events as JSON lines from a background writer
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	filepath  string
	maxSize   int64
	maxAge    time.Duration
	encoder   *json.Encoder
	eventChan chan *AuditEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// Config represents logger configuration
type Config struct {
	FilePath string
	MaxSize  int64         // Maximum file size in bytes before rotation
	MaxAge   time.Duration // Maximum age of rotated files
}

// NewLogger creates a new audit logger
func NewLogger(config Config) (*Logger, error) {
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	logger := &Logger{
		file:      file,
		filepath:  config.FilePath,
		maxSize:   config.MaxSize,
		maxAge:    config.MaxAge,
		encoder:   json.NewEncoder(file),
		eventChan: make(chan *AuditEvent, 100),
		stopChan:  make(chan struct{}),
	}

	logger.wg.Add(1)
	go logger.worker()

	logger.LogSystem(EventStartup, "audit logger started", nil)

	return logger, nil
}

// Log queues an audit event for writing
func (l *Logger) Log(event *AuditEvent) {
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Details = sanitize(event.Details)

	select {
	case l.eventChan <- event:
	case <-time.After(time.Second):
		fmt.Fprintf(os.Stderr, "Failed to log audit event: timeout\n")
	}
}

// LogConnect logs a device connection attempt
func (l *Logger) LogConnect(device, user string, success bool, details map[string]interface{}) {
	eventType, result, severity := EventConnect, "SUCCESS", SeverityInfo
	if !success {
		eventType, result, severity = EventConnectFailed, "FAILED", SeverityWarning
	}

	l.Log(&AuditEvent{
		Type:     eventType,
		Severity: severity,
		Source:   "device",
		User:     user,
		Device:   device,
		Action:   "connect",
		Result:   result,
		Details:  details,
	})
}

// LogProfileChange logs a create, update or delete of an IKE crypto profile
func (l *Logger) LogProfileChange(operation EventType, device, profile string, success bool, details map[string]interface{}) {
	result, severity := "SUCCESS", SeverityInfo
	if !success {
		result, severity = "FAILED", SeverityError
	}

	l.Log(&AuditEvent{
		Type:     operation,
		Severity: severity,
		Source:   "reconcile",
		Device:   device,
		Profile:  profile,
		Action:   string(operation),
		Result:   result,
		Details:  details,
	})
}

// LogCommit logs a commit on a device
func (l *Logger) LogCommit(device string, success bool, details map[string]interface{}) {
	eventType, result, severity := EventCommit, "SUCCESS", SeverityInfo
	if !success {
		eventType, result, severity = EventCommitFailed, "FAILED", SeverityError
	}

	l.Log(&AuditEvent{
		Type:     eventType,
		Severity: severity,
		Source:   "reconcile",
		Device:   device,
		Action:   "commit",
		Result:   result,
		Details:  details,
	})
}

// LogDeviceChange logs a change to the local device profile store
func (l *Logger) LogDeviceChange(operation EventType, name, address string) {
	l.Log(&AuditEvent{
		Type:     operation,
		Severity: SeverityInfo,
		Source:   "storage",
		Device:   address,
		Profile:  name,
		Action:   string(operation),
		Result:   "SUCCESS",
	})
}

// LogError logs an error event
func (l *Logger) LogError(source string, err error, details map[string]interface{}) {
	l.Log(&AuditEvent{
		Type:     EventError,
		Severity: SeverityError,
		Source:   source,
		Action:   "error",
		Result:   "ERROR",
		Error:    err.Error(),
		Details:  details,
	})
}

// LogSystem logs a system event
func (l *Logger) LogSystem(eventType EventType, message string, details map[string]interface{}) {
	l.Log(&AuditEvent{
		Type:     eventType,
		Severity: SeverityInfo,
		Source:   "system",
		Action:   string(eventType),
		Result:   message,
		Details:  details,
	})
}

// worker writes queued events and runs hourly maintenance
func (l *Logger) worker() {
	defer l.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case event := <-l.eventChan:
			l.writeEvent(event)

		case <-ticker.C:
			l.performMaintenance()

		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) writeEvent(event *AuditEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.encoder.Encode(event); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit event: %v\n", err)
	}

	if l.maxSize > 0 {
		if info, err := l.file.Stat(); err == nil && info.Size() > l.maxSize {
			l.rotate()
		}
	}
}

// rotate renames the current file with a timestamp suffix and reopens. Caller holds mu.
func (l *Logger) rotate() {
	_ = l.file.Close()

	timestamp := time.Now().Format("20060102-150405.000")
	_ = os.Rename(l.filepath, fmt.Sprintf("%s.%s", l.filepath, timestamp))

	file, err := os.OpenFile(l.filepath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open new audit log file: %v\n", err)
		return
	}

	l.file = file
	l.encoder = json.NewEncoder(file)
}

// performMaintenance removes rotated files older than maxAge
func (l *Logger) performMaintenance() {
	if l.maxAge <= 0 {
		return
	}

	dir := filepath.Dir(l.filepath)
	base := filepath.Base(l.filepath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-l.maxAge)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == base || !strings.HasPrefix(name, base+".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

// Close flushes pending events and closes the file
func (l *Logger) Close() error {
	l.LogSystem(EventShutdown, "audit logger shutting down", nil)

	close(l.stopChan)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the active log file path
func (l *Logger) Path() string {
	return l.filepath
}

func generateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}

// sanitize drops detail keys that may carry credentials
func sanitize(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	clean := make(map[string]interface{}, len(details))
	for k, v := range details {
		if !isSensitiveKey(k) {
			clean[k] = v
		}
	}
	return clean
}

func isSensitiveKey(key string) bool {
	sensitiveKeys := []string{
		"password", "secret", "key", "token", "credential", "passphrase",
	}

	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// Query filters audit events
type Query struct {
	StartTime  time.Time
	EndTime    time.Time
	EventTypes []EventType
	Devices    []string
	Profiles   []string
	Limit      int
}

// Search reads the active log file and returns matching events in file order
func (l *Logger) Search(query Query) ([]*AuditEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return SearchFile(l.filepath, query)
}

// SearchFile runs a query against an audit log file without an open Logger
func SearchFile(path string, query Query) ([]*AuditEvent, error) {
	file, err := os.Open(path) // #nosec G304 - path comes from local configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)

	for {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			break
		}

		if !query.StartTime.IsZero() && event.Timestamp.Before(query.StartTime) {
			continue
		}
		if !query.EndTime.IsZero() && event.Timestamp.After(query.EndTime) {
			continue
		}
		if len(query.EventTypes) > 0 && !slices.Contains(query.EventTypes, event.Type) {
			continue
		}
		if len(query.Devices) > 0 && !slices.Contains(query.Devices, event.Device) {
			continue
		}
		if len(query.Profiles) > 0 && !slices.Contains(query.Profiles, event.Profile) {
			continue
		}

		events = append(events, &event)
	}

	// Keep the most recent entries when limited
	if query.Limit > 0 && len(events) > query.Limit {
		events = events[len(events)-query.Limit:]
	}

	return events, nil
}
