package seclog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stylizr/upload-gateway/pkg/jobs"
)

// Alert categories evaluated over the trailing window.
const (
	AlertCriticalEvents   = "critical_events"
	AlertSuspiciousEvents = "suspicious_activity"
	AlertFailedUploads    = "failed_uploads"
)

// AlertConfig sets trailing-window thresholds. An alert of a given
// category fires at most once per MinInterval no matter how many
// further events arrive.
type AlertConfig struct {
	Window           time.Duration
	CriticalEvents   int
	SuspiciousEvents int
	FailedUploads    int
	MinInterval      time.Duration
	DispatchWorkers  int
}

// DefaultAlertConfig returns the production thresholds.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		Window:           time.Hour,
		CriticalEvents:   5,
		SuspiciousEvents: 10,
		FailedUploads:    20,
		MinInterval:      time.Hour,
		DispatchWorkers:  1,
	}
}

// Alert is the payload handed to the notifier.
type Alert struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Window    string    `json:"window"`
	Triggered time.Time `json:"triggered"`
	LastEvent Event     `json:"lastEvent"`
}

// Notifier delivers alerts out of process. The default implementation
// writes to the console log; deployments can swap in webhook or pager
// integrations.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier surfaces alerts on the structured console log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.Error("security alert",
		zap.String("alert_id", alert.ID),
		zap.String("category", alert.Category),
		zap.Int("count", alert.Count),
		zap.Int("threshold", alert.Threshold),
		zap.String("window", alert.Window),
		zap.String("last_event_type", string(alert.LastEvent.Type)))
	return nil
}

// Alerter watches the event stream and raises alerts when trailing
// counts cross thresholds. Dispatch happens on a background queue so
// the upload path never blocks on a slow notifier.
type Alerter struct {
	cfg      AlertConfig
	notifier Notifier
	logger   *zap.Logger
	queue    *jobs.Queue

	mu        sync.Mutex
	buckets   map[string][]time.Time
	lastFired map[string]time.Time
}

// NewAlerter builds an alerter and its dispatch queue. Call Start before
// attaching it to a logger via Observe.
func NewAlerter(cfg AlertConfig, notifier Notifier, logger *zap.Logger) *Alerter {
	defaults := DefaultAlertConfig()
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.CriticalEvents <= 0 {
		cfg.CriticalEvents = defaults.CriticalEvents
	}
	if cfg.SuspiciousEvents <= 0 {
		cfg.SuspiciousEvents = defaults.SuspiciousEvents
	}
	if cfg.FailedUploads <= 0 {
		cfg.FailedUploads = defaults.FailedUploads
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaults.MinInterval
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = defaults.DispatchWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	a := &Alerter{
		cfg:       cfg,
		notifier:  notifier,
		logger:    logger,
		buckets:   make(map[string][]time.Time),
		lastFired: make(map[string]time.Time),
	}
	a.queue = jobs.NewQueue("security-alerts", a.dispatch, jobs.QueueConfig{
		Workers: cfg.DispatchWorkers,
		Logger:  logger,
	})
	return a
}

// Start launches the dispatch workers.
func (a *Alerter) Start(ctx context.Context) {
	a.queue.Start(ctx)
}

// Stop drains the dispatch queue workers.
func (a *Alerter) Stop() {
	a.queue.Stop()
}

// Observe classifies one event and enqueues any alert it triggers.
// Intended to be registered as a logger sink.
func (a *Alerter) Observe(event Event) {
	for _, category := range categorize(event) {
		if alert, fired := a.record(category, event); fired {
			job := jobs.Job{
				ID:      alert.ID,
				Type:    "security_alert",
				Payload: alert,
			}
			if err := a.queue.Enqueue(job); err != nil {
				a.logger.Error("alert dispatch enqueue failed",
					zap.String("category", category), zap.Error(err))
			}
		}
	}
}

func categorize(event Event) []string {
	var categories []string
	if event.Severity == SeverityCritical {
		categories = append(categories, AlertCriticalEvents)
	}
	switch event.Type {
	case EventSuspiciousActive, EventPathTraversal, EventMaliciousFile:
		categories = append(categories, AlertSuspiciousEvents)
	}
	if event.Result == ResultFailure || event.Result == ResultBlocked {
		categories = append(categories, AlertFailedUploads)
	}
	return categories
}

func (a *Alerter) record(category string, event Event) (Alert, bool) {
	threshold := a.threshold(category)
	now := time.Now().UTC()
	cutoff := now.Add(-a.cfg.Window)

	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.buckets[category]
	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	a.buckets[category] = kept

	if len(kept) < threshold {
		return Alert{}, false
	}
	if last, ok := a.lastFired[category]; ok && now.Sub(last) < a.cfg.MinInterval {
		return Alert{}, false
	}
	a.lastFired[category] = now

	return Alert{
		ID:        uuid.New().String(),
		Category:  category,
		Count:     len(kept),
		Threshold: threshold,
		Window:    a.cfg.Window.String(),
		Triggered: now,
		LastEvent: event,
	}, true
}

func (a *Alerter) threshold(category string) int {
	switch category {
	case AlertCriticalEvents:
		return a.cfg.CriticalEvents
	case AlertSuspiciousEvents:
		return a.cfg.SuspiciousEvents
	default:
		return a.cfg.FailedUploads
	}
}

func (a *Alerter) dispatch(ctx context.Context, job jobs.Job) error {
	alert, ok := job.Payload.(Alert)
	if !ok {
		return fmt.Errorf("unexpected alert payload %T", job.Payload)
	}
	return a.notifier.Notify(ctx, alert)
}
