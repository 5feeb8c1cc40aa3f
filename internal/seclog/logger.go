package seclog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxFileSize = 10 * 1024 * 1024
	defaultMaxFiles    = 50
	recentRingSize     = 4096
)

// Config controls the rotating audit log.
type Config struct {
	Dir              string
	Application      string
	MaxFileSizeBytes int64
	MaxFiles         int
}

// Logger appends security events as one JSON object per line, rotating
// segments by size and pruning the oldest beyond the retention count.
// Every event is also mirrored to the structured console log, and a
// bounded in-memory ring keeps recent events available for reports and
// alert evaluation without re-reading files.
type Logger struct {
	cfg     Config
	console *zap.Logger

	mu       sync.Mutex
	file     *os.File
	fileSize int64
	segment  int

	ringMu sync.RWMutex
	ring   []Event

	sinks []func(Event)
}

// NewLogger opens (or creates) the log directory and active segment.
func NewLogger(cfg Config, console *zap.Logger) (*Logger, error) {
	if cfg.Dir == "" {
		cfg.Dir = "security-logs"
	}
	if cfg.Application == "" {
		cfg.Application = "upload-gateway"
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = defaultMaxFileSize
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	if console == nil {
		console = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create security log dir: %w", err)
	}

	l := &Logger{
		cfg:     cfg,
		console: console,
		ring:    make([]Event, 0, recentRingSize),
	}
	if err := l.openSegment(); err != nil {
		return nil, err
	}
	return l, nil
}

// AddSink registers a callback invoked synchronously for every logged
// event. Register sinks before the logger starts receiving traffic.
func (l *Logger) AddSink(sink func(Event)) {
	l.sinks = append(l.sinks, sink)
}

// Log records an event. The ID, timestamp and tagging fields are filled
// here so callers only describe what happened.
func (l *Logger) Log(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityLow
	}
	event.LogLevel = logLevelFor(event.Severity)
	event.Application = l.cfg.Application

	if err := l.append(event); err != nil {
		l.console.Error("security log append failed", zap.Error(err))
	}
	l.mirror(event)
	l.remember(event)

	for _, sink := range l.sinks {
		sink(event)
	}
	return event
}

// Recent returns events logged within the window, newest last.
func (l *Logger) Recent(window time.Duration) []Event {
	cutoff := time.Now().UTC().Add(-window)
	l.ringMu.RLock()
	defer l.ringMu.RUnlock()
	out := make([]Event, 0, len(l.ring))
	for _, event := range l.ring {
		if event.Timestamp.After(cutoff) {
			out = append(out, event)
		}
	}
	return out
}

// Close flushes and closes the active segment.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) append(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	payload = append(payload, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("security log closed")
	}
	if l.fileSize+int64(len(payload)) > l.cfg.MaxFileSizeBytes {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := l.file.Write(payload)
	l.fileSize += int64(n)
	if err != nil {
		return fmt.Errorf("write security event: %w", err)
	}
	return nil
}

func (l *Logger) openSegment() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openSegmentLocked()
}

func (l *Logger) openSegmentLocked() error {
	l.segment++
	name := fmt.Sprintf("security-%s-%06d.log", time.Now().UTC().Format("20060102-150405"), l.segment)
	path := filepath.Join(l.cfg.Dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open security log segment: %w", err)
	}
	l.file = file
	l.fileSize = 0
	return nil
}

func (l *Logger) rotateLocked() error {
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			l.console.Warn("closing rotated segment failed", zap.Error(err))
		}
		l.file = nil
	}
	if err := l.openSegmentLocked(); err != nil {
		return err
	}
	l.pruneLocked()
	return nil
}

// pruneLocked removes the oldest segments beyond the retention count.
func (l *Logger) pruneLocked() {
	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		l.console.Warn("security log prune failed", zap.Error(err))
		return
	}
	var segments []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "security-") && strings.HasSuffix(name, ".log") {
			segments = append(segments, name)
		}
	}
	if len(segments) <= l.cfg.MaxFiles {
		return
	}
	sort.Strings(segments)
	for _, name := range segments[:len(segments)-l.cfg.MaxFiles] {
		if err := os.Remove(filepath.Join(l.cfg.Dir, name)); err != nil {
			l.console.Warn("removing old security log failed", zap.String("file", name), zap.Error(err))
		}
	}
}

func (l *Logger) mirror(event Event) {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("result", string(event.Result)),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		fields = append(fields, zap.String("ip", event.IPAddress))
	}
	if event.Filename != "" {
		fields = append(fields, zap.String("filename", event.Filename))
	}
	if len(event.Threats) > 0 {
		fields = append(fields, zap.Strings("threats", event.Threats))
	}
	if event.QuarantineID != "" {
		fields = append(fields, zap.String("quarantine_id", event.QuarantineID))
	}
	if event.Detail != "" {
		fields = append(fields, zap.String("detail", event.Detail))
	}

	switch event.Severity {
	case SeverityCritical, SeverityHigh:
		l.console.Error("security event", fields...)
	case SeverityMedium:
		l.console.Warn("security event", fields...)
	default:
		l.console.Info("security event", fields...)
	}
}

func (l *Logger) remember(event Event) {
	l.ringMu.Lock()
	defer l.ringMu.Unlock()
	if len(l.ring) >= recentRingSize {
		l.ring = append(l.ring[:0], l.ring[1:]...)
	}
	l.ring = append(l.ring, event)
}

func logLevelFor(severity Severity) string {
	switch severity {
	case SeverityCritical, SeverityHigh:
		return "error"
	case SeverityMedium:
		return "warn"
	default:
		return "info"
	}
}
