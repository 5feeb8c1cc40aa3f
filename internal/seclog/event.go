package seclog

import "time"

// EventType classifies security-relevant decisions.
type EventType string

const (
	EventUploadSuccess     EventType = "UPLOAD_SUCCESS"
	EventUploadBlocked     EventType = "UPLOAD_BLOCKED"
	EventMaliciousFile     EventType = "MALICIOUS_FILE_DETECTED"
	EventPathTraversal     EventType = "PATH_TRAVERSAL_ATTEMPT"
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventQuarantineAction  EventType = "QUARANTINE_ACTION"
	EventSuspiciousActive  EventType = "SUSPICIOUS_ACTIVITY"
	EventScanResult        EventType = "SCAN_RESULT"
	EventSystemError       EventType = "SYSTEM_ERROR"
)

// Severity grades an event for console colouring and alert thresholds.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Result is the outcome recorded with each event.
type Result string

const (
	ResultSuccess     Result = "SUCCESS"
	ResultFailure     Result = "FAILURE"
	ResultBlocked     Result = "BLOCKED"
	ResultQuarantined Result = "QUARANTINED"
)

// Event is one append-only audit record. Created once per decision and
// never mutated; rotated into dated log segments.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Type         EventType `json:"type"`
	Severity     Severity  `json:"severity"`
	UserID       string    `json:"userId,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Threats      []string  `json:"threats,omitempty"`
	Warnings     []string  `json:"warnings,omitempty"`
	QuarantineID string    `json:"quarantineId,omitempty"`
	Result       Result    `json:"result"`
	Detail       string    `json:"detail,omitempty"`
	StackTrace   string    `json:"stackTrace,omitempty"`

	LogLevel    string `json:"_logLevel"`
	Application string `json:"_application"`
}
