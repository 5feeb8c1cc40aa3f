package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stylizr/upload-gateway/internal/filesec"
	"github.com/stylizr/upload-gateway/internal/models"
	"github.com/stylizr/upload-gateway/internal/ratelimit"
	"github.com/stylizr/upload-gateway/internal/seclog"
)

type validatorStub struct {
	verdict filesec.Verdict
	last    filesec.Candidate
}

func (v *validatorStub) Validate(candidate filesec.Candidate) filesec.Verdict {
	v.last = candidate
	return v.verdict
}

type limiterStub struct {
	decision   ratelimit.Decision
	err        error
	marked     []string
	lastReq    ratelimit.Request
	allowCalls int
}

func (l *limiterStub) Allow(_ context.Context, req ratelimit.Request) (ratelimit.Decision, error) {
	l.allowCalls++
	l.lastReq = req
	return l.decision, l.err
}

func (l *limiterStub) MarkSuspicious(identity string) {
	l.marked = append(l.marked, identity)
}

type storeStub struct {
	saved   map[string][]byte
	saveErr error
	deleted []string
}

func newStoreStub() *storeStub {
	return &storeStub{saved: make(map[string][]byte)}
}

func (s *storeStub) SaveStream(filename string, r io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.saved[filename] = data
	return "/blobs/" + filename, nil
}

func (s *storeStub) Delete(filename string) error {
	s.deleted = append(s.deleted, filename)
	delete(s.saved, filename)
	return nil
}

type repoStub struct {
	records   map[string]*models.UploadRecord
	createErr error
}

func newRepoStub() *repoStub {
	return &repoStub{records: make(map[string]*models.UploadRecord)}
}

func (r *repoStub) Create(_ context.Context, record *models.UploadRecord) error {
	if r.createErr != nil {
		return r.createErr
	}
	if record.ID == "" {
		record.ID = fmt.Sprintf("up-%d", len(r.records)+1)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	r.records[record.ID] = record
	return nil
}

func (r *repoStub) GetByID(_ context.Context, id string) (*models.UploadRecord, error) {
	if record, ok := r.records[id]; ok {
		clone := *record
		return &clone, nil
	}
	return nil, errors.New("not found")
}

func (r *repoStub) ListByOwner(_ context.Context, ownerID string, _ int) ([]models.UploadRecord, error) {
	var out []models.UploadRecord
	for _, record := range r.records {
		if record.OwnerID == ownerID {
			out = append(out, *record)
		}
	}
	return out, nil
}

type eventLogStub struct {
	events []seclog.Event
}

func (e *eventLogStub) Log(event seclog.Event) seclog.Event {
	e.events = append(e.events, event)
	return event
}

func (e *eventLogStub) byType(eventType seclog.EventType) []seclog.Event {
	var out []seclog.Event
	for _, event := range e.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func allowedDecision() ratelimit.Decision {
	return ratelimit.Decision{Allowed: true, Limit: 50, Remaining: 49}
}

func stageSpool(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spool")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func pngSpool(t *testing.T) ([]byte, string) {
	t.Helper()
	data := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 'I', 'H', 'D', 'R',
		0x00, 0x00, 0x00, 0x64, 0x00, 0x00, 0x00, 0x32}
	data = append(data, bytes.Repeat([]byte("pixel"), 32)...)
	return data, stageSpool(t, data)
}

func TestUploadAcceptsValidFile(t *testing.T) {
	data, spool := pngSpool(t)
	validator := &validatorStub{verdict: filesec.Verdict{
		IsValid:          true,
		SecureFilename:   "abc_1_rand_photo.png",
		DetectedMimeType: "image/png",
	}}
	limiter := &limiterStub{decision: allowedDecision()}
	store := newStoreStub()
	repo := newRepoStub()
	events := &eventLogStub{}

	svc := NewUploadService(validator, limiter, store, repo, events, nil, nil)
	resp, err := svc.Upload(context.Background(), UploadInput{
		Path:             spool,
		OriginalFilename: "photo.png",
		OwnerID:          "user-1",
		IP:               "10.0.0.1",
		DeclaredSize:     int64(len(data)),
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "abc_1_rand_photo.png", resp.SecureFilename)
	require.Equal(t, int64(len(data)), resp.SizeBytes)
	require.Equal(t, 100, resp.Width)
	require.Equal(t, 50, resp.Height)

	require.Equal(t, data, store.saved["abc_1_rand_photo.png"])
	require.Len(t, repo.records, 1)
	stored := repo.records[resp.ID]
	require.Len(t, stored.ContentHash, 64)
	require.Len(t, events.byType(seclog.EventUploadSuccess), 1)

	require.Equal(t, "user-1", limiter.lastReq.UserID)
	require.Equal(t, "10.0.0.1", limiter.lastReq.IP)
}

func TestUploadRateLimited(t *testing.T) {
	_, spool := pngSpool(t)
	limiter := &limiterStub{decision: ratelimit.Decision{
		Allowed:    false,
		Tier:       ratelimit.TierBurst,
		RetryAfter: 30 * time.Second,
		Limit:      10,
	}}
	events := &eventLogStub{}

	svc := NewUploadService(&validatorStub{}, limiter, newStoreStub(), newRepoStub(), events, nil, nil)
	_, err := svc.Upload(context.Background(), UploadInput{Path: spool, OriginalFilename: "photo.png", IP: "10.0.0.1"})

	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	require.Equal(t, ratelimit.TierBurst, limited.Decision.Tier)
	require.Len(t, events.byType(seclog.EventRateLimitExceeded), 1)
}

func TestUploadRejectedEmitsBlockedEvent(t *testing.T) {
	_, spool := pngSpool(t)
	validator := &validatorStub{verdict: filesec.Verdict{
		IsValid: false,
		Errors:  []string{"extension .exe is not allowed"},
	}}
	limiter := &limiterStub{decision: allowedDecision()}
	events := &eventLogStub{}

	svc := NewUploadService(validator, limiter, newStoreStub(), newRepoStub(), events, nil, nil)
	_, err := svc.Upload(context.Background(), UploadInput{Path: spool, OriginalFilename: "x.exe", IP: "10.0.0.1"})

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, events.byType(seclog.EventUploadBlocked), 1)
	require.Empty(t, limiter.marked)
}

func TestUploadHighRiskMarksSuspiciousAndQuarantines(t *testing.T) {
	_, spool := pngSpool(t)
	validator := &validatorStub{verdict: filesec.Verdict{
		IsValid:      false,
		Errors:       []string{"script injection: script tag"},
		Scan:         &filesec.ScanResult{Threats: []string{"script injection: script tag"}},
		Risk:         &filesec.RiskAssessment{Level: filesec.RiskHigh, BehaviorScore: 70},
		QuarantineID: "q-1",
	}}
	limiter := &limiterStub{decision: allowedDecision()}
	events := &eventLogStub{}

	svc := NewUploadService(validator, limiter, newStoreStub(), newRepoStub(), events, nil, nil)
	_, err := svc.Upload(context.Background(), UploadInput{
		Path:             spool,
		OriginalFilename: "evil.gif",
		OwnerID:          "user-2",
		IP:               "10.0.0.2",
	})
	require.Error(t, err)

	require.Equal(t, []string{"user-2"}, limiter.marked)
	malicious := events.byType(seclog.EventMaliciousFile)
	require.Len(t, malicious, 1)
	require.Equal(t, seclog.SeverityCritical, malicious[0].Severity)
	require.Equal(t, seclog.ResultQuarantined, malicious[0].Result)
	require.Len(t, events.byType(seclog.EventQuarantineAction), 1)
}

func TestUploadTraversalMarksSuspicious(t *testing.T) {
	_, spool := pngSpool(t)
	validator := &validatorStub{verdict: filesec.Verdict{
		IsValid: false,
		Errors:  []string{"filename contains a path traversal sequence"},
	}}
	limiter := &limiterStub{decision: allowedDecision()}
	events := &eventLogStub{}

	svc := NewUploadService(validator, limiter, newStoreStub(), newRepoStub(), events, nil, nil)
	_, err := svc.Upload(context.Background(), UploadInput{Path: spool, OriginalFilename: "../../x.png", IP: "10.0.0.3"})
	require.Error(t, err)

	require.Equal(t, []string{"10.0.0.3"}, limiter.marked)
	require.Len(t, events.byType(seclog.EventPathTraversal), 1)
}

func TestUploadValidatorSystemErrorsEmitSystemEvent(t *testing.T) {
	_, spool := pngSpool(t)
	validator := &validatorStub{verdict: filesec.Verdict{
		IsValid:      false,
		Errors:       []string{"stat upload: permission denied"},
		SystemErrors: []string{"stat upload: permission denied"},
	}}
	events := &eventLogStub{}

	svc := NewUploadService(validator, &limiterStub{decision: allowedDecision()}, newStoreStub(), newRepoStub(), events, nil, nil)
	_, err := svc.Upload(context.Background(), UploadInput{Path: spool, OriginalFilename: "photo.png", IP: "10.0.0.6"})

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, events.byType(seclog.EventUploadBlocked), 1)

	system := events.byType(seclog.EventSystemError)
	require.Len(t, system, 1)
	require.Equal(t, seclog.SeverityMedium, system[0].Severity)
	require.Equal(t, seclog.ResultFailure, system[0].Result)
	require.Contains(t, system[0].Detail, "permission denied")
}

func TestUploadRepoFailureCleansStoredBlob(t *testing.T) {
	_, spool := pngSpool(t)
	validator := &validatorStub{verdict: filesec.Verdict{
		IsValid:        true,
		SecureFilename: "stored.png",
	}}
	repo := newRepoStub()
	repo.createErr = errors.New("db down")
	store := newStoreStub()
	events := &eventLogStub{}

	svc := NewUploadService(validator, &limiterStub{decision: allowedDecision()}, store, repo, events, nil, nil)
	_, err := svc.Upload(context.Background(), UploadInput{Path: spool, OriginalFilename: "photo.png", IP: "10.0.0.4"})
	require.Error(t, err)

	require.Equal(t, []string{"stored.png"}, store.deleted)
	system := events.byType(seclog.EventSystemError)
	require.Len(t, system, 1)
	require.Equal(t, seclog.SeverityMedium, system[0].Severity)
}

func TestUploadLimiterFailure(t *testing.T) {
	_, spool := pngSpool(t)
	limiter := &limiterStub{err: errors.New("store unavailable")}
	events := &eventLogStub{}

	svc := NewUploadService(&validatorStub{}, limiter, newStoreStub(), newRepoStub(), events, nil, nil)
	_, err := svc.Upload(context.Background(), UploadInput{Path: spool, OriginalFilename: "photo.png", IP: "10.0.0.5"})
	require.Error(t, err)
	require.Len(t, events.byType(seclog.EventSystemError), 1)
}
