package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stylizr/upload-gateway/internal/seclog"
)

type eventSourceStub struct {
	events []seclog.Event
}

func (s *eventSourceStub) Recent(time.Duration) []seclog.Event {
	return s.events
}

func sampleEvents() []seclog.Event {
	now := time.Now().UTC()
	return []seclog.Event{
		{
			ID:        "ev-1",
			Timestamp: now,
			Type:      seclog.EventMaliciousFile,
			Severity:  seclog.SeverityCritical,
			UserID:    "user-1",
			IPAddress: "10.0.0.1",
			Filename:  "evil.gif",
			Threats:   []string{"script injection: script tag"},
			Result:    seclog.ResultQuarantined,
		},
		{
			ID:        "ev-2",
			Timestamp: now,
			Type:      seclog.EventUploadSuccess,
			Severity:  seclog.SeverityLow,
			Result:    seclog.ResultSuccess,
		},
	}
}

func TestSecurityReportCSV(t *testing.T) {
	svc := NewReportService(&eventSourceStub{events: sampleEvents()}, nil)

	payload, contentType, err := svc.SecurityReport(time.Hour, "csv")
	require.NoError(t, err)
	require.Equal(t, "text/csv", contentType)

	text := string(payload)
	require.Contains(t, text, "Timestamp,Type,Severity")
	require.Contains(t, text, "MALICIOUS_FILE_DETECTED")
	require.Contains(t, text, "script injection: script tag")

	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 3)
}

func TestSecurityReportPDF(t *testing.T) {
	svc := NewReportService(&eventSourceStub{events: sampleEvents()}, nil)

	payload, contentType, err := svc.SecurityReport(time.Hour, "pdf")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", contentType)
	require.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestSecurityReportUnknownFormat(t *testing.T) {
	svc := NewReportService(&eventSourceStub{}, nil)
	_, _, err := svc.SecurityReport(time.Hour, "xlsx")
	require.Error(t, err)
}

func TestSummaryCounts(t *testing.T) {
	svc := NewReportService(&eventSourceStub{events: sampleEvents()}, nil)

	counts := svc.Summary(time.Hour)
	require.Equal(t, 2, counts["total"])
	require.Equal(t, 1, counts["type:MALICIOUS_FILE_DETECTED"])
	require.Equal(t, 1, counts["severity:CRITICAL"])
}
