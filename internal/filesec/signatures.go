package filesec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format identifies an image format detected from file content.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatICO  Format = "ico"

	// FormatUnknown marks content whose signature matched no known
	// image type. Scanning still runs against it; any image magic
	// found inside is then a polyglot indicator.
	FormatUnknown Format = "unknown"
)

// Detection is the outcome of a successful magic-number check. The
// detected type is authoritative; the client-declared MIME type and the
// filename extension are never trusted.
type Detection struct {
	Format   Format
	MimeType string
}

var (
	// ErrEmptyFile is returned when the file has no readable bytes.
	ErrEmptyFile = errors.New("file is empty")
	// ErrUnknownSignature is returned when no known image signature matches.
	ErrUnknownSignature = errors.New("file signature does not match any allowed image format")
)

const signatureHeaderLen = 16

// signature describes one magic-number table entry. Some formats need a
// secondary byte check beyond the prefix (WebP's RIFF container).
type signature struct {
	prefix          []byte
	secondaryOffset int
	secondary       []byte
	format          Format
	mimeType        string
}

// Published magic numbers for the supported image formats. The WebP entry
// requires "WEBP" at offset 8 inside the RIFF container; a bare RIFF
// prefix is not accepted.
var signatureTable = []signature{
	{prefix: []byte{0xFF, 0xD8, 0xFF}, format: FormatJPEG, mimeType: "image/jpeg"},
	{prefix: []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, format: FormatPNG, mimeType: "image/png"},
	{prefix: []byte("GIF87a"), format: FormatGIF, mimeType: "image/gif"},
	{prefix: []byte("GIF89a"), format: FormatGIF, mimeType: "image/gif"},
	{prefix: []byte("RIFF"), secondaryOffset: 8, secondary: []byte("WEBP"), format: FormatWebP, mimeType: "image/webp"},
	{prefix: []byte("BM"), format: FormatBMP, mimeType: "image/bmp"},
	{prefix: []byte{0x49, 0x49, 0x2A, 0x00}, format: FormatTIFF, mimeType: "image/tiff"},
	{prefix: []byte{0x4D, 0x4D, 0x00, 0x2A}, format: FormatTIFF, mimeType: "image/tiff"},
	{prefix: []byte{0x00, 0x00, 0x01, 0x00}, format: FormatICO, mimeType: "image/x-icon"},
}

// DetectMagicNumber reads a fixed 16-byte prefix from the file at path and
// matches it against the signature table.
func DetectMagicNumber(path string) (Detection, error) {
	file, err := os.Open(path)
	if err != nil {
		return Detection{}, fmt.Errorf("open file for signature check: %w", err)
	}
	defer file.Close() //nolint:errcheck

	header := make([]byte, signatureHeaderLen)
	n, err := file.Read(header)
	if err != nil && err != io.EOF {
		return Detection{}, fmt.Errorf("read file header: %w", err)
	}
	if n == 0 {
		return Detection{}, ErrEmptyFile
	}

	return DetectMagicNumberBytes(header[:n])
}

// DetectMagicNumberBytes matches an in-memory header buffer against the
// signature table.
func DetectMagicNumberBytes(header []byte) (Detection, error) {
	if len(header) == 0 {
		return Detection{}, ErrEmptyFile
	}
	for _, sig := range signatureTable {
		if !bytes.HasPrefix(header, sig.prefix) {
			continue
		}
		if len(sig.secondary) > 0 {
			end := sig.secondaryOffset + len(sig.secondary)
			if len(header) < end || !bytes.Equal(header[sig.secondaryOffset:end], sig.secondary) {
				continue
			}
		}
		return Detection{Format: sig.format, MimeType: sig.mimeType}, nil
	}
	return Detection{}, ErrUnknownSignature
}
