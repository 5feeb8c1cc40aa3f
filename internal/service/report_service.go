package service

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stylizr/upload-gateway/internal/seclog"
	"github.com/stylizr/upload-gateway/pkg/export"
)

type eventSource interface {
	Recent(window time.Duration) []seclog.Event
}

// ReportService renders recent security events as downloadable CSV or
// PDF summaries for operators.
type ReportService struct {
	events eventSource
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(events eventSource, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		events: events,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// SecurityReport renders events from the trailing window in the
// requested format ("csv" or "pdf"). Returns the payload and its
// content type.
func (s *ReportService) SecurityReport(window time.Duration, format string) ([]byte, string, error) {
	events := s.events.Recent(window)
	dataset := eventsToDataset(events)

	switch format {
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", fmt.Errorf("render csv report: %w", err)
		}
		return payload, "text/csv", nil
	case "pdf":
		title := fmt.Sprintf("Security Events (last %s)", window)
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", fmt.Errorf("render pdf report: %w", err)
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", format)
	}
}

// Summary aggregates trailing-window counts per event type and severity.
func (s *ReportService) Summary(window time.Duration) map[string]int {
	counts := make(map[string]int)
	for _, event := range s.events.Recent(window) {
		counts["type:"+string(event.Type)]++
		counts["severity:"+string(event.Severity)]++
		counts["total"]++
	}
	return counts
}

func eventsToDataset(events []seclog.Event) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Timestamp", "Type", "Severity", "Result", "User", "IP", "Filename", "Threats", "Detail"},
	}
	for _, event := range events {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Timestamp": event.Timestamp.Format(time.RFC3339),
			"Type":      string(event.Type),
			"Severity":  string(event.Severity),
			"Result":    string(event.Result),
			"User":      event.UserID,
			"IP":        event.IPAddress,
			"Filename":  event.Filename,
			"Threats":   strings.Join(event.Threats, "|"),
			"Detail":    event.Detail,
		})
	}
	return dataset
}
