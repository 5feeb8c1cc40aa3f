package filesec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestScanner() *Scanner {
	return NewScanner(ScannerConfig{}, nil)
}

// cleanImageBody produces benign low-entropy content free of shell or
// script byte sequences.
func cleanImageBody(n int) []byte {
	return bytes.Repeat([]byte("pixeldata123456 "), n/16+1)[:n]
}

func TestScanCleanContent(t *testing.T) {
	data := append(gifHeader(100, 100), cleanImageBody(2048)...)
	result := newTestScanner().Scan(data, FormatGIF)
	require.True(t, result.IsSafe)
	require.Empty(t, result.Threats)
	require.False(t, result.ContentAnalysis.EmbeddedFilesDetected)
}

func TestScanDetectsScriptInjection(t *testing.T) {
	data := append(gifHeader(10, 10), []byte(`<script>alert(1)</script>`)...)
	result := newTestScanner().Scan(data, FormatGIF)
	require.False(t, result.IsSafe)
	require.NotEmpty(t, result.Threats)
	require.Contains(t, strings.Join(result.Threats, " "), "script")
	require.Greater(t, result.ContentAnalysis.SuspiciousPatternCount, 0)
}

func TestScanMediumPatternsAreWarnings(t *testing.T) {
	data := append(gifHeader(10, 10), []byte(` onload=init `)...)
	result := newTestScanner().Scan(data, FormatGIF)
	require.True(t, result.IsSafe)
	require.NotEmpty(t, result.Warnings)
}

func TestScanDetectsEmbeddedExecutable(t *testing.T) {
	data := append(gifHeader(10, 10), cleanImageBody(64)...)
	data = append(data, 0x4D, 0x5A, 0x90, 0x00) // MZ header appended after image data
	result := newTestScanner().Scan(data, FormatGIF)
	require.False(t, result.IsSafe)
	require.True(t, result.ContentAnalysis.EmbeddedFilesDetected)
	require.Contains(t, strings.Join(result.Threats, " "), "DOS/PE")
}

func TestScanDetectsSQLTokens(t *testing.T) {
	data := append(gifHeader(10, 10), []byte("x UNION SELECT password FROM users")...)
	result := newTestScanner().Scan(data, FormatGIF)
	require.False(t, result.IsSafe)
}

func TestScanCommandTokenDensity(t *testing.T) {
	scanner := newTestScanner()

	// A single incidental token must not block.
	one := append(gifHeader(10, 10), []byte("value && other")...)
	require.True(t, scanner.Scan(one, FormatGIF).IsSafe)

	// A cluster of distinct shell tokens does.
	cluster := append(gifHeader(10, 10), []byte("$(id) `ls` a && b /bin/sh powershell")...)
	result := scanner.Scan(cluster, FormatGIF)
	require.False(t, result.IsSafe)
	require.Contains(t, strings.Join(result.Threats, " "), "command injection")
}

func TestScanPolyglotIndicator(t *testing.T) {
	// A PNG signature inside GIF-detected content is a polyglot shape.
	data := append(gifHeader(10, 10), cleanImageBody(32)...)
	data = append(data, []byte("\x89PNG")...)
	result := newTestScanner().Scan(data, FormatGIF)
	require.False(t, result.IsSafe)
	require.Contains(t, strings.Join(result.Threats, " "), "polyglot")

	// The same marker inside actual PNG content is expected.
	pngData := append(pngHeader(10, 10), cleanImageBody(32)...)
	require.True(t, newTestScanner().Scan(pngData, FormatPNG).IsSafe)
}

func TestScanEntropyThreat(t *testing.T) {
	uniform := make([]byte, 0, 4096)
	for i := 0; i < 16; i++ {
		for b := 0; b < 256; b++ {
			uniform = append(uniform, byte(b))
		}
	}
	result := newTestScanner().Scan(uniform, FormatJPEG)
	require.False(t, result.IsSafe)
	require.Contains(t, strings.Join(result.Threats, " "), "entropy")
	require.InDelta(t, 8.0, result.ContentAnalysis.Entropy, 0.0001)
}

func TestScanNullByteWarning(t *testing.T) {
	data := append(gifHeader(10, 10), make([]byte, 1024)...)
	result := newTestScanner().Scan(data, FormatGIF)
	require.NotEmpty(t, result.Warnings)
	require.Contains(t, strings.Join(result.Warnings, " "), "null bytes")
}

func TestScanSteganographyKeywordWarningOnly(t *testing.T) {
	data := append(gifHeader(10, 10), []byte(" processed with steghide ")...)
	result := newTestScanner().Scan(data, FormatGIF)
	require.True(t, result.IsSafe)
	require.Contains(t, strings.Join(result.Warnings, " "), "steganography")
}
