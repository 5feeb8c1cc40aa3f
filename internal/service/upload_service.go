package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/stylizr/upload-gateway/internal/dto"
	"github.com/stylizr/upload-gateway/internal/filesec"
	"github.com/stylizr/upload-gateway/internal/models"
	"github.com/stylizr/upload-gateway/internal/ratelimit"
	"github.com/stylizr/upload-gateway/internal/seclog"
)

// UploadInput describes one staged upload awaiting validation. Path
// points at a temporary spool file owned by the caller.
type UploadInput struct {
	Path             string
	OriginalFilename string
	OwnerID          string
	IP               string
	DeclaredSize     int64
	DeclaredMimeType string
}

// RateLimitedError carries the limiter decision so transport code can
// emit Retry-After and X-RateLimit headers.
type RateLimitedError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s tier, retry in %s", e.Decision.Tier, e.Decision.RetryAfter)
}

// RejectedError carries the full verdict for a refused file.
type RejectedError struct {
	Verdict filesec.Verdict
}

func (e *RejectedError) Error() string {
	if len(e.Verdict.Errors) > 0 {
		return e.Verdict.Errors[0]
	}
	return "upload rejected"
}

type uploadValidator interface {
	Validate(candidate filesec.Candidate) filesec.Verdict
}

type uploadLimiter interface {
	Allow(ctx context.Context, req ratelimit.Request) (ratelimit.Decision, error)
	MarkSuspicious(identity string)
}

type blobStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

type uploadRepository interface {
	Create(ctx context.Context, record *models.UploadRecord) error
	GetByID(ctx context.Context, id string) (*models.UploadRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.UploadRecord, error)
}

type eventLog interface {
	Log(event seclog.Event) seclog.Event
}

// UploadService runs the full intake pipeline: rate limiting, the
// validation façade, audit logging, metrics, then durable storage and
// the database record for accepted files.
type UploadService struct {
	validator uploadValidator
	limiter   uploadLimiter
	store     blobStore
	repo      uploadRepository
	events    eventLog
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewUploadService wires the pipeline. metrics may be nil.
func NewUploadService(
	validator uploadValidator,
	limiter uploadLimiter,
	store blobStore,
	repo uploadRepository,
	events eventLog,
	metrics *MetricsService,
	logger *zap.Logger,
) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{
		validator: validator,
		limiter:   limiter,
		store:     store,
		repo:      repo,
		events:    events,
		metrics:   metrics,
		logger:    logger,
	}
}

// Upload processes one staged file end to end. The spool file at
// input.Path is consumed on success and left for the caller to discard
// on failure.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (*dto.UploadResponse, error) {
	started := time.Now()

	decision, err := s.limiter.Allow(ctx, ratelimit.Request{
		IP:     input.IP,
		UserID: input.OwnerID,
		Size:   input.DeclaredSize,
	})
	if err != nil {
		s.systemError(input, fmt.Sprintf("rate limiter unavailable: %v", err))
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !decision.Allowed {
		s.metrics.RecordUpload("rate_limited", 0)
		s.metrics.RecordRateLimitRejection(decision.Tier)
		s.events.Log(seclog.Event{
			Type:      seclog.EventRateLimitExceeded,
			Severity:  seclog.SeverityMedium,
			UserID:    input.OwnerID,
			IPAddress: input.IP,
			Filename:  input.OriginalFilename,
			Result:    seclog.ResultBlocked,
			Detail:    fmt.Sprintf("%s tier exhausted", decision.Tier),
		})
		return nil, &RateLimitedError{Decision: decision}
	}

	verdict := s.validator.Validate(filesec.Candidate{
		Path:             input.Path,
		OriginalFilename: input.OriginalFilename,
		OwnerID:          input.OwnerID,
		DeclaredSize:     input.DeclaredSize,
		DeclaredMimeType: input.DeclaredMimeType,
	})

	if !verdict.IsValid {
		s.metrics.ObserveValidation("rejected", time.Since(started))
		s.recordRejection(input, verdict)
		return nil, &RejectedError{Verdict: verdict}
	}

	s.metrics.ObserveValidation("accepted", time.Since(started))
	response, err := s.persist(ctx, input, verdict)
	if err != nil {
		s.systemError(input, err.Error())
		return nil, err
	}

	s.metrics.RecordUpload("accepted", response.SizeBytes)
	s.events.Log(seclog.Event{
		Type:      seclog.EventUploadSuccess,
		Severity:  seclog.SeverityLow,
		UserID:    input.OwnerID,
		IPAddress: input.IP,
		Filename:  verdict.SecureFilename,
		Warnings:  verdict.Warnings,
		Result:    seclog.ResultSuccess,
	})
	return response, nil
}

// GetUpload fetches one stored upload record.
func (s *UploadService) GetUpload(ctx context.Context, id string) (*dto.UploadResponse, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return recordToResponse(record, nil), nil
}

// ListUploads returns the owner's recent uploads.
func (s *UploadService) ListUploads(ctx context.Context, ownerID string, limit int) ([]dto.UploadResponse, error) {
	records, err := s.repo.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.UploadResponse, 0, len(records))
	for i := range records {
		out = append(out, *recordToResponse(&records[i], nil))
	}
	return out, nil
}

func (s *UploadService) persist(ctx context.Context, input UploadInput, verdict filesec.Verdict) (*dto.UploadResponse, error) {
	spool, err := os.Open(input.Path)
	if err != nil {
		return nil, fmt.Errorf("open spool file: %w", err)
	}
	defer spool.Close() //nolint:errcheck

	info, err := spool.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat spool file: %w", err)
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("init hasher: %w", err)
	}
	if _, err := s.store.SaveStream(verdict.SecureFilename, io.TeeReader(spool, hasher)); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	width, height := s.extractDimensions(input.Path)

	record := &models.UploadRecord{
		OwnerID:          input.OwnerID,
		SecureFilename:   verdict.SecureFilename,
		OriginalFilename: input.OriginalFilename,
		MimeType:         verdict.DetectedMimeType,
		SizeBytes:        info.Size(),
		ContentHash:      hex.EncodeToString(hasher.Sum(nil)),
		Width:            width,
		Height:           height,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		// Keep storage and database consistent when the insert fails.
		if delErr := s.store.Delete(verdict.SecureFilename); delErr != nil {
			s.logger.Error("orphaned stored file", zap.String("filename", verdict.SecureFilename), zap.Error(delErr))
		}
		return nil, fmt.Errorf("persist upload record: %w", err)
	}

	return recordToResponse(record, verdict.Warnings), nil
}

func (s *UploadService) extractDimensions(path string) (int, int) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer file.Close() //nolint:errcheck
	header := make([]byte, 64*1024)
	n, _ := file.Read(header)
	header = header[:n]

	detection, err := filesec.DetectMagicNumberBytes(header)
	if err != nil {
		return 0, 0
	}
	dims, err := filesec.ExtractDimensions(detection.Format, header)
	if err != nil {
		return 0, 0
	}
	return dims.Width, dims.Height
}

// recordRejection classifies the failure, emits the audit event, bumps
// metrics and applies the suspicious mark where warranted.
func (s *UploadService) recordRejection(input UploadInput, verdict filesec.Verdict) {
	identity := input.OwnerID
	if identity == "" {
		identity = input.IP
	}

	eventType := seclog.EventUploadBlocked
	severity := seclog.SeverityMedium
	result := seclog.ResultBlocked

	traversal := false
	for _, msg := range verdict.Errors {
		if strings.Contains(msg, "traversal") {
			traversal = true
			break
		}
	}

	var threats []string
	if verdict.Scan != nil {
		threats = verdict.Scan.Threats
	}

	switch {
	case traversal:
		eventType = seclog.EventPathTraversal
		severity = seclog.SeverityHigh
		s.limiter.MarkSuspicious(identity)
	case verdict.Risk != nil && verdict.Risk.Level == filesec.RiskHigh:
		eventType = seclog.EventMaliciousFile
		severity = seclog.SeverityCritical
		s.limiter.MarkSuspicious(identity)
		for range threats {
			s.metrics.RecordThreat("scanner")
		}
	}
	if verdict.QuarantineID != "" {
		result = seclog.ResultQuarantined
	}

	s.metrics.RecordUpload("rejected", 0)
	s.events.Log(seclog.Event{
		Type:         eventType,
		Severity:     severity,
		UserID:       input.OwnerID,
		IPAddress:    input.IP,
		Filename:     input.OriginalFilename,
		Threats:      threats,
		Warnings:     verdict.Warnings,
		QuarantineID: verdict.QuarantineID,
		Result:       result,
		Detail:       strings.Join(verdict.Errors, "; "),
	})
	if verdict.QuarantineID != "" {
		s.events.Log(seclog.Event{
			Type:         seclog.EventQuarantineAction,
			Severity:     seclog.SeverityHigh,
			UserID:       input.OwnerID,
			IPAddress:    input.IP,
			Filename:     input.OriginalFilename,
			QuarantineID: verdict.QuarantineID,
			Result:       seclog.ResultQuarantined,
			Detail:       "file isolated pending review",
		})
	}
	// I/O failures inside the validator are operational faults, not
	// content judgements. They surface separately from the rejection.
	if len(verdict.SystemErrors) > 0 {
		s.systemError(input, strings.Join(verdict.SystemErrors, "; "))
	}
}

func (s *UploadService) systemError(input UploadInput, detail string) {
	s.metrics.RecordUpload("error", 0)
	s.events.Log(seclog.Event{
		Type:      seclog.EventSystemError,
		Severity:  seclog.SeverityMedium,
		UserID:    input.OwnerID,
		IPAddress: input.IP,
		Filename:  input.OriginalFilename,
		Result:    seclog.ResultFailure,
		Detail:    detail,
	})
}

func recordToResponse(record *models.UploadRecord, warnings []string) *dto.UploadResponse {
	return &dto.UploadResponse{
		ID:               record.ID,
		SecureFilename:   record.SecureFilename,
		OriginalFilename: record.OriginalFilename,
		MimeType:         record.MimeType,
		SizeBytes:        record.SizeBytes,
		Width:            record.Width,
		Height:           record.Height,
		Warnings:         warnings,
		CreatedAt:        record.CreatedAt,
	}
}
