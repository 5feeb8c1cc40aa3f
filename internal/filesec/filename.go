package filesec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// MaxFilenameLength caps generated filenames to stay within common
// filesystem limits.
const MaxFilenameLength = 255

// Extensions permitted for upload, lowercase without the leading dot.
var allowedExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {},
	"webp": {}, "bmp": {}, "tiff": {}, "ico": {},
}

// Extensions rejected outright: executables, scripts, server-side code.
var dangerousExtensions = map[string]struct{}{
	"exe": {}, "dll": {}, "com": {}, "bat": {}, "cmd": {}, "scr": {}, "msi": {},
	"sh": {}, "bash": {}, "ps1": {}, "vbs": {}, "js": {}, "jar": {},
	"php": {}, "php3": {}, "php4": {}, "php5": {}, "phtml": {},
	"asp": {}, "aspx": {}, "jsp": {}, "cgi": {}, "pl": {}, "py": {}, "rb": {},
	"htaccess": {}, "htpasswd": {},
}

// ValidateExtension rejects dangerous extensions and anything outside the
// image whitelist. Comparison is case-insensitive; the check fails closed
// with an explicit reason.
func ValidateExtension(filename string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return fmt.Errorf("filename %q has no extension", filename)
	}
	if _, dangerous := dangerousExtensions[ext]; dangerous {
		return fmt.Errorf("extension .%s is not allowed: executable or script content", ext)
	}
	if _, allowed := allowedExtensions[ext]; !allowed {
		return fmt.Errorf("extension .%s is not an allowed image type", ext)
	}
	return nil
}

// traversal sequences including URL-encoded and double-encoded variants
var traversalSequences = []string{
	"../", "..\\", "%2e%2e%2f", "%2e%2e/", "..%2f", "%2e%2e%5c",
	"%252e%252e%252f", "%252e%252e", "....//", "....\\\\",
}

// ContainsTraversal reports whether raw carries a path-traversal sequence,
// checked case-insensitively against plain, encoded and double-encoded
// variants.
func ContainsTraversal(raw string) bool {
	lowered := strings.ToLower(raw)
	if strings.Contains(lowered, "..") {
		return true
	}
	for _, seq := range traversalSequences {
		if strings.Contains(lowered, seq) {
			return true
		}
	}
	return strings.Contains(lowered, "%2e%2e") || strings.Contains(lowered, "%252e")
}

// ValidateAndSanitizePath resolves candidate against baseDir and rejects
// any path whose resolved form escapes the base directory, including
// traversal sequences and null-byte injection.
func ValidateAndSanitizePath(baseDir, candidate string) (string, error) {
	if strings.ContainsRune(candidate, 0) {
		return "", fmt.Errorf("path contains a null byte")
	}
	if ContainsTraversal(candidate) {
		return "", fmt.Errorf("path contains a traversal sequence")
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}
	resolved, err := filepath.Abs(filepath.Join(absBase, candidate))
	if err != nil {
		return "", fmt.Errorf("resolve candidate path: %w", err)
	}
	if resolved != absBase && !strings.HasPrefix(resolved, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path resolves outside the base directory")
	}
	return resolved, nil
}

// GenerateSecureFilename derives a collision-free, traversal-safe storage
// name from the declared filename and owning identity. The output is
// hash(ownerID)[0:8] + "_" + unix-millis + "_" + 8 random bytes hex +
// "_" + sanitized basename + extension, never longer than 255 characters
// and never containing path separators.
func GenerateSecureFilename(originalFilename, ownerID string) string {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	base := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))
	base = sanitizeBasename(base)
	if base == "" {
		base = "upload"
	}

	ownerHash := blake2b.Sum256([]byte(ownerID))
	prefix := hex.EncodeToString(ownerHash[:])[:8]
	stamp := time.Now().UnixMilli()
	random := randomHex(8)

	name := fmt.Sprintf("%s_%d_%s_%s%s", prefix, stamp, random, base, sanitizeExtension(ext))
	if len(name) > MaxFilenameLength {
		// Trim the basename portion; the unique prefix always survives.
		overflow := len(name) - MaxFilenameLength
		if overflow < len(base) {
			base = base[:len(base)-overflow]
		} else {
			base = "f"
		}
		name = fmt.Sprintf("%s_%d_%s_%s%s", prefix, stamp, random, base, sanitizeExtension(ext))
	}
	return name
}

// sanitizeBasename strips directory components, traversal remnants,
// control characters and filesystem-reserved characters, then collapses
// repeated separators.
func sanitizeBasename(raw string) string {
	raw = strings.ReplaceAll(raw, "\\", "/")
	raw = raw[strings.LastIndex(raw, "/")+1:]
	for ContainsTraversal(raw) {
		raw = strings.ReplaceAll(raw, "..", "")
		raw = strings.ReplaceAll(strings.ToLower(raw), "%2e", "")
		raw = strings.ReplaceAll(raw, "%25", "")
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range raw {
		switch {
		case r < 0x20 || r == 0x7F:
			// control characters dropped
		case strings.ContainsRune(`/\:*?"<>|%`, r) || r == 0:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		case r == '_' || r == '-' || r == '.':
			if !lastUnderscore {
				b.WriteRune(r)
				lastUnderscore = r == '_'
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	cleaned := strings.Trim(b.String(), "._-")
	if len(cleaned) > 64 {
		cleaned = cleaned[:64]
	}
	return cleaned
}

func sanitizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	var b strings.Builder
	for _, r := range ext {
		if r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
