package filesec

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// PatternSeverity splits injection patterns into blocking and advisory
// classes.
type PatternSeverity string

const (
	SeverityHigh   PatternSeverity = "high"
	SeverityMedium PatternSeverity = "medium"
	SeverityLow    PatternSeverity = "low"
)

// ScanPattern is one case-insensitive substring the scanner looks for.
type ScanPattern struct {
	Token    string
	Severity PatternSeverity
	Label    string
}

// ContentAnalysis summarises the heuristics computed during a scan.
type ContentAnalysis struct {
	Entropy                float64 `json:"entropy"`
	SuspiciousPatternCount int     `json:"suspiciousPatternCount"`
	EmbeddedFilesDetected  bool    `json:"embeddedFilesDetected"`
}

// ScanResult is the unified threat/warning report for one file. IsSafe is
// true iff no threats were found; warnings never block a file.
type ScanResult struct {
	IsSafe          bool            `json:"isSafe"`
	Threats         []string        `json:"threats"`
	Warnings        []string        `json:"warnings"`
	ContentAnalysis ContentAnalysis `json:"contentAnalysis"`
}

// ScannerConfig carries the tunable thresholds and pattern tables. The
// severity calibration of the default tables is the current best-known
// trade-off against false positives on binary pixel data.
type ScannerConfig struct {
	EntropyThreatThreshold  float64
	EntropyWarningThreshold float64
	EntropyWindowBytes      int
	CommandTokenThreatCount int
	NullByteWarningRatio    float64
	LargeFileWarningBytes   int64

	ScriptPatterns      []ScanPattern
	SQLTokens           []string
	CommandTokens       []string
	SteganographyTokens []string
}

// DefaultScannerConfig returns the standard calibration.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		EntropyThreatThreshold:  7.8,
		EntropyWarningThreshold: 7.5,
		EntropyWindowBytes:      DefaultEntropyWindow,
		CommandTokenThreatCount: 3,
		NullByteWarningRatio:    0.10,
		LargeFileWarningBytes:   100 * 1024 * 1024,
		ScriptPatterns:          defaultScriptPatterns,
		SQLTokens:               defaultSQLTokens,
		CommandTokens:           defaultCommandTokens,
		SteganographyTokens:     defaultSteganographyTokens,
	}
}

var defaultScriptPatterns = []ScanPattern{
	{Token: "<script", Severity: SeverityHigh, Label: "script tag"},
	{Token: "javascript:", Severity: SeverityHigh, Label: "javascript URI"},
	{Token: "vbscript:", Severity: SeverityHigh, Label: "vbscript URI"},
	{Token: "eval(", Severity: SeverityHigh, Label: "eval call"},
	{Token: "<iframe", Severity: SeverityHigh, Label: "iframe tag"},
	{Token: "document.cookie", Severity: SeverityHigh, Label: "cookie access"},
	{Token: "document.write", Severity: SeverityMedium, Label: "DOM write"},
	{Token: "onload=", Severity: SeverityMedium, Label: "onload handler"},
	{Token: "onerror=", Severity: SeverityMedium, Label: "onerror handler"},
	{Token: "onclick=", Severity: SeverityMedium, Label: "onclick handler"},
	{Token: "onmouseover=", Severity: SeverityLow, Label: "onmouseover handler"},
	{Token: "fromcharcode", Severity: SeverityLow, Label: "charcode decoding"},
	{Token: "window.location", Severity: SeverityLow, Label: "location manipulation"},
}

var defaultSQLTokens = []string{
	"union select", "drop table", "insert into", "delete from",
	"truncate table", "xp_cmdshell", "' or '1'='1", "or 1=1--",
}

var defaultCommandTokens = []string{
	"$(", "`", "&&", "||", "; rm ", "| sh", "/bin/sh", "/bin/bash",
	"cmd.exe", "powershell", "nc -e", "wget http", "curl http",
}

var defaultSteganographyTokens = []string{
	"steghide", "outguess", "openstego", "silenteye", "lsb",
}

// executableSignatures are matched at any offset: executable headers can
// be appended after valid image data in polyglot attacks.
var executableSignatures = []struct {
	bytes []byte
	label string
}{
	{[]byte{0x4D, 0x5A}, "DOS/PE executable"},
	{[]byte{0x7F, 0x45, 0x4C, 0x46}, "ELF executable"},
	{[]byte{0xFE, 0xED, 0xFA, 0xCE}, "Mach-O executable"},
	{[]byte{0xFE, 0xED, 0xFA, 0xCF}, "Mach-O 64-bit executable"},
	{[]byte{0xCE, 0xFA, 0xED, 0xFE}, "Mach-O executable (reversed)"},
	{[]byte{0xCF, 0xFA, 0xED, 0xFE}, "Mach-O 64-bit executable (reversed)"},
	{[]byte{0x50, 0x4B, 0x03, 0x04}, "ZIP/JAR archive"},
	{[]byte{0x52, 0x61, 0x72, 0x21, 0x1A, 0x07}, "RAR archive"},
}

// polyglotMarkers are image-format magic strings that only count as a
// threat inside a file whose detected type is a different format.
var polyglotMarkers = []struct {
	marker string
	format Format
	label  string
}{
	{"GIF87a", FormatGIF, "GIF signature"},
	{"GIF89a", FormatGIF, "GIF signature"},
	{"\x89PNG", FormatPNG, "PNG signature"},
	{"\xFF\xD8\xFF", FormatJPEG, "JPEG signature"},
}

// Scanner runs layered content analysis over uploaded file bytes.
type Scanner struct {
	cfg    ScannerConfig
	logger *zap.Logger
}

// NewScanner builds a scanner, filling zero-valued config fields with the
// default calibration.
func NewScanner(cfg ScannerConfig, logger *zap.Logger) *Scanner {
	defaults := DefaultScannerConfig()
	if cfg.EntropyThreatThreshold <= 0 {
		cfg.EntropyThreatThreshold = defaults.EntropyThreatThreshold
	}
	if cfg.EntropyWarningThreshold <= 0 {
		cfg.EntropyWarningThreshold = defaults.EntropyWarningThreshold
	}
	if cfg.EntropyWindowBytes <= 0 {
		cfg.EntropyWindowBytes = defaults.EntropyWindowBytes
	}
	if cfg.CommandTokenThreatCount <= 0 {
		cfg.CommandTokenThreatCount = defaults.CommandTokenThreatCount
	}
	if cfg.NullByteWarningRatio <= 0 {
		cfg.NullByteWarningRatio = defaults.NullByteWarningRatio
	}
	if cfg.LargeFileWarningBytes <= 0 {
		cfg.LargeFileWarningBytes = defaults.LargeFileWarningBytes
	}
	if cfg.ScriptPatterns == nil {
		cfg.ScriptPatterns = defaults.ScriptPatterns
	}
	if cfg.SQLTokens == nil {
		cfg.SQLTokens = defaults.SQLTokens
	}
	if cfg.CommandTokens == nil {
		cfg.CommandTokens = defaults.CommandTokens
	}
	if cfg.SteganographyTokens == nil {
		cfg.SteganographyTokens = defaults.SteganographyTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, logger: logger}
}

// ScanFile reads the file at path and scans its content. The detected
// format drives the polyglot check.
func (s *Scanner) ScanFile(path string, detected Format) (ScanResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScanResult{}, fmt.Errorf("read file for content scan: %w", err)
	}
	return s.Scan(data, detected), nil
}

// Scan analyses in-memory content. Bytes are interpreted as a binary-safe
// string for substring matching.
func (s *Scanner) Scan(data []byte, detected Format) ScanResult {
	result := ScanResult{
		Threats:  []string{},
		Warnings: []string{},
	}
	content := string(data)
	lowered := strings.ToLower(content)

	// 1. Executable headers at any offset.
	for _, sig := range executableSignatures {
		idx := strings.Index(content, string(sig.bytes))
		if idx < 0 {
			continue
		}
		result.Threats = append(result.Threats, fmt.Sprintf("embedded %s at offset %d", sig.label, idx))
		result.ContentAnalysis.EmbeddedFilesDetected = true
	}

	// 2. Script/markup injection patterns, severity-tagged.
	for _, pattern := range s.cfg.ScriptPatterns {
		if !strings.Contains(lowered, pattern.Token) {
			continue
		}
		result.ContentAnalysis.SuspiciousPatternCount++
		switch pattern.Severity {
		case SeverityHigh:
			result.Threats = append(result.Threats, fmt.Sprintf("script injection: %s", pattern.Label))
		default:
			result.Warnings = append(result.Warnings, fmt.Sprintf("suspicious pattern: %s", pattern.Label))
		}
	}

	// 3. SQL injection tokens.
	for _, token := range s.cfg.SQLTokens {
		if strings.Contains(lowered, token) {
			result.Threats = append(result.Threats, fmt.Sprintf("sql injection token: %q", token))
			result.ContentAnalysis.SuspiciousPatternCount++
		}
	}

	// 4. Command-injection token density. Single incidental matches are
	// expected in binary noise; only a cluster of distinct tokens blocks.
	distinct := 0
	for _, token := range s.cfg.CommandTokens {
		if strings.Contains(lowered, token) {
			distinct++
		}
	}
	if distinct > s.cfg.CommandTokenThreatCount {
		result.Threats = append(result.Threats, fmt.Sprintf("command injection: %d distinct shell tokens", distinct))
	}

	// 5. Polyglot detection against the detected (not declared) type.
	for _, marker := range polyglotMarkers {
		if marker.format == detected {
			continue
		}
		if strings.Contains(content, marker.marker) {
			result.Threats = append(result.Threats, fmt.Sprintf("polyglot indicator: %s inside %s content", marker.label, detected))
		}
	}

	// 6. Entropy over the bounded prefix.
	entropy := PrefixEntropy(data, s.cfg.EntropyWindowBytes)
	result.ContentAnalysis.Entropy = entropy
	if entropy > s.cfg.EntropyThreatThreshold {
		result.Threats = append(result.Threats, fmt.Sprintf("entropy %.2f suggests encrypted or obfuscated content", entropy))
	} else if entropy > s.cfg.EntropyWarningThreshold {
		result.Warnings = append(result.Warnings, fmt.Sprintf("entropy %.2f suggests compressed content", entropy))
	}

	// 7. Null-byte density.
	if ratio := NullByteRatio(data); ratio > s.cfg.NullByteWarningRatio {
		result.Warnings = append(result.Warnings, fmt.Sprintf("null bytes make up %.0f%% of content, possible data hiding", ratio*100))
	}

	// 8. Oversized file (independent of the hard per-type cap).
	if int64(len(data)) > s.cfg.LargeFileWarningBytes {
		result.Warnings = append(result.Warnings, "file exceeds 100MB, potential resource exhaustion")
	}

	// 9. Steganography tool keywords. Warning only: false-positive prone.
	for _, token := range s.cfg.SteganographyTokens {
		if strings.Contains(lowered, token) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("steganography keyword %q found", token))
			break
		}
	}

	result.IsSafe = len(result.Threats) == 0
	if !result.IsSafe {
		s.logger.Debug("content scan found threats",
			zap.Int("threats", len(result.Threats)),
			zap.Int("warnings", len(result.Warnings)),
			zap.Float64("entropy", entropy))
	}
	return result
}
