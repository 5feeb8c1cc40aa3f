package filesec

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Candidate is one untrusted upload staged at a temporary path. It never
// escapes the validation flow; quarantine copies the bytes if needed.
type Candidate struct {
	Path             string
	OriginalFilename string
	OwnerID          string
	DeclaredSize     int64
	DeclaredMimeType string
}

// Verdict is the outcome of one validation pass. Errors accumulate so the
// caller sees every violation at once; warnings never affect validity.
// SystemErrors repeats the subset of Errors caused by I/O failures
// rather than the file's content, so the audit trail can report them
// as operational faults instead of policy rejections.
type Verdict struct {
	IsValid          bool            `json:"isValid"`
	SecureFilename   string          `json:"secureFilename,omitempty"`
	DetectedMimeType string          `json:"detectedMimeType,omitempty"`
	Errors           []string        `json:"errors"`
	Warnings         []string        `json:"warnings"`
	SystemErrors     []string        `json:"systemErrors,omitempty"`
	Scan             *ScanResult     `json:"scan,omitempty"`
	Risk             *RiskAssessment `json:"risk,omitempty"`
	QuarantineID     string          `json:"quarantineId,omitempty"`
}

// QuarantineReceipt identifies the stored quarantine copy of a file.
type QuarantineReceipt struct {
	ID   string
	Path string
}

// Quarantiner isolates high-risk files. Quarantining is best-effort: a
// failure is reported but never changes the safety verdict.
type Quarantiner interface {
	Quarantine(path, reason string, metadata map[string]string) (QuarantineReceipt, error)
}

// ValidatorConfig bounds accepted files per detected type.
type ValidatorConfig struct {
	TypeSizeLimits        map[Format]int64
	MaxDimension          int
	MaxPixels             int64
	MaxEstimatedMemory    int64
	SuspiciousAspectRatio float64
	Risk                  RiskConfig
	QuarantineEnabled     bool
}

// DefaultValidatorConfig returns per-type caps sized for photo uploads.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		TypeSizeLimits: map[Format]int64{
			FormatJPEG: 25 * 1024 * 1024,
			FormatPNG:  25 * 1024 * 1024,
			FormatGIF:  15 * 1024 * 1024,
			FormatWebP: 25 * 1024 * 1024,
			FormatBMP:  50 * 1024 * 1024,
			FormatTIFF: 60 * 1024 * 1024,
			FormatICO:  1 * 1024 * 1024,
		},
		MaxDimension:          16384,
		MaxPixels:             120_000_000,
		MaxEstimatedMemory:    512 * 1024 * 1024,
		SuspiciousAspectRatio: 20,
		Risk:                  DefaultRiskConfig(),
		QuarantineEnabled:     true,
	}
}

// Validator sequences extension, signature, size, dimension and content
// checks into one pass/fail decision per uploaded file.
type Validator struct {
	scanner    *Scanner
	quarantine Quarantiner
	cfg        ValidatorConfig
	logger     *zap.Logger
}

// NewValidator constructs the façade. quarantine may be nil when
// quarantining is disabled.
func NewValidator(scanner *Scanner, quarantine Quarantiner, cfg ValidatorConfig, logger *zap.Logger) *Validator {
	defaults := DefaultValidatorConfig()
	if cfg.TypeSizeLimits == nil {
		cfg.TypeSizeLimits = defaults.TypeSizeLimits
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = defaults.MaxDimension
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = defaults.MaxPixels
	}
	if cfg.MaxEstimatedMemory <= 0 {
		cfg.MaxEstimatedMemory = defaults.MaxEstimatedMemory
	}
	if cfg.SuspiciousAspectRatio <= 0 {
		cfg.SuspiciousAspectRatio = defaults.SuspiciousAspectRatio
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{scanner: scanner, quarantine: quarantine, cfg: cfg, logger: logger}
}

// Validate runs the full pipeline over one candidate. Checks accumulate
// error messages; a check is skipped only when it depends on a failed
// predecessor (no detected type means no type-specific size check).
// System errors are folded into the verdict rather than propagated.
func (v *Validator) Validate(candidate Candidate) Verdict {
	verdict := Verdict{Errors: []string{}, Warnings: []string{}}

	// 1. Extension policy.
	if err := ValidateExtension(candidate.OriginalFilename); err != nil {
		verdict.Errors = append(verdict.Errors, err.Error())
	}
	if ContainsTraversal(candidate.OriginalFilename) {
		verdict.Errors = append(verdict.Errors, "filename contains a path traversal sequence")
	}

	// 2. Magic number: the authoritative type.
	detection, err := DetectMagicNumber(candidate.Path)
	typeKnown := err == nil
	if err != nil {
		if errors.Is(err, ErrEmptyFile) || errors.Is(err, ErrUnknownSignature) {
			verdict.Errors = append(verdict.Errors, err.Error())
		} else {
			systemFault(&verdict, fmt.Sprintf("signature check failed: %v", err))
		}
	} else {
		verdict.DetectedMimeType = detection.MimeType
		if candidate.DeclaredMimeType != "" && candidate.DeclaredMimeType != detection.MimeType {
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("declared type %s does not match detected %s", candidate.DeclaredMimeType, detection.MimeType))
		}
	}

	var fileSize int64
	if info, statErr := os.Stat(candidate.Path); statErr != nil {
		systemFault(&verdict, fmt.Sprintf("stat upload: %v", statErr))
	} else {
		fileSize = info.Size()
	}

	// 3. Type-specific size cap, keyed by the detected type.
	if typeKnown {
		if limit, ok := v.cfg.TypeSizeLimits[detection.Format]; ok && fileSize > limit {
			verdict.Errors = append(verdict.Errors, fmt.Sprintf("%s file of %d bytes exceeds the %d byte limit", detection.Format, fileSize, limit))
		}
	}

	// 4. Dimension checks. Extraction failures degrade to a warning.
	if typeKnown && detection.Format != FormatTIFF && detection.Format != FormatICO {
		v.checkDimensions(candidate.Path, detection.Format, fileSize, &verdict)
	}

	// 5. Content scan + quarantine. Unlike the size and dimension
	// checks, the scan does not need a detected type: an
	// unrecognized-signature payload still gets threat analysis, with
	// any embedded image magic treated as a polyglot indicator.
	scanFormat := FormatUnknown
	if typeKnown {
		scanFormat = detection.Format
	}
	v.runScan(candidate, scanFormat, &verdict)

	// 6. Secure filename, generated even for rejected uploads so a safe
	// name exists for diagnostic logging.
	verdict.SecureFilename = GenerateSecureFilename(candidate.OriginalFilename, candidate.OwnerID)

	verdict.IsValid = len(verdict.Errors) == 0
	return verdict
}

func (v *Validator) checkDimensions(path string, format Format, fileSize int64, verdict *Verdict) {
	header, err := readHeader(path, 64*1024)
	if err != nil {
		systemFault(verdict, fmt.Sprintf("read header: %v", err))
		return
	}
	dims, err := ExtractDimensions(format, header)
	if err != nil {
		verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("dimensions unavailable: %v", err))
		return
	}
	if dims.Width > v.cfg.MaxDimension || dims.Height > v.cfg.MaxDimension {
		verdict.Errors = append(verdict.Errors, fmt.Sprintf("dimensions %dx%d exceed the %dpx limit", dims.Width, dims.Height, v.cfg.MaxDimension))
	}
	if dims.Pixels() > v.cfg.MaxPixels {
		verdict.Errors = append(verdict.Errors, fmt.Sprintf("%d pixels exceed the %d pixel limit", dims.Pixels(), v.cfg.MaxPixels))
	}
	if dims.EstimatedMemoryBytes() > v.cfg.MaxEstimatedMemory {
		verdict.Errors = append(verdict.Errors, fmt.Sprintf("estimated decode memory %d bytes exceeds the %d byte limit", dims.EstimatedMemoryBytes(), v.cfg.MaxEstimatedMemory))
	}
	if dims.Width > 0 && dims.Height > 0 {
		ratio := float64(dims.Width) / float64(dims.Height)
		if ratio < 1 {
			ratio = 1 / ratio
		}
		if ratio > v.cfg.SuspiciousAspectRatio {
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("suspicious aspect ratio %.1f:1", ratio))
		}
	}
	// A tiny file claiming a huge canvas is a decompression-bomb shape.
	if pixels := dims.Pixels(); pixels > 0 && fileSize > 0 {
		if float64(pixels)/float64(fileSize) > 5000 {
			verdict.Warnings = append(verdict.Warnings, "anomalous compression ratio for declared dimensions")
		}
	}
}

func (v *Validator) runScan(candidate Candidate, format Format, verdict *Verdict) {
	scan, err := v.scanner.ScanFile(candidate.Path, format)
	if err != nil {
		systemFault(verdict, fmt.Sprintf("content scan failed: %v", err))
		return
	}
	verdict.Scan = &scan
	verdict.Warnings = append(verdict.Warnings, scan.Warnings...)

	risk := AssessRisk(scan, v.cfg.Risk)
	verdict.Risk = &risk

	if !scan.IsSafe {
		verdict.Errors = append(verdict.Errors, scan.Threats...)
	}

	if risk.Level == RiskHigh && v.cfg.QuarantineEnabled && v.quarantine != nil {
		reason := "high risk content"
		if len(scan.Threats) > 0 {
			reason = scan.Threats[0]
		}
		receipt, qErr := v.quarantine.Quarantine(candidate.Path, reason, map[string]string{
			"originalFilename": candidate.OriginalFilename,
			"ownerId":          candidate.OwnerID,
		})
		if qErr != nil {
			v.logger.Error("quarantine failed", zap.Error(qErr), zap.String("path", candidate.Path))
		} else {
			verdict.QuarantineID = receipt.ID
			verdict.Errors = append(verdict.Errors, fmt.Sprintf("file quarantined under id %s", receipt.ID))
		}
	}
}

// systemFault records an I/O failure both as a rejection reason and as
// an operational fault for the audit trail.
func systemFault(verdict *Verdict, msg string) {
	verdict.Errors = append(verdict.Errors, msg)
	verdict.SystemErrors = append(verdict.SystemErrors, msg)
}

func readHeader(path string, max int) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck
	return readHeaderFrom(file, max)
}

// readHeaderFrom fills up to max bytes, tolerating files shorter than
// the window. A reader may legally return short reads, so a single Read
// call is not enough here.
func readHeaderFrom(r io.Reader, max int) ([]byte, error) {
	buf := make([]byte, max)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}
