package filesec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectMagicNumberBytes(t *testing.T) {
	tests := []struct {
		name     string
		header   []byte
		format   Format
		mimeType string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, FormatJPEG, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, FormatPNG, "image/png"},
		{"gif87a", []byte("GIF87a~~~~"), FormatGIF, "image/gif"},
		{"gif89a", []byte("GIF89a~~~~"), FormatGIF, "image/gif"},
		{"webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), FormatWebP, "image/webp"},
		{"bmp", []byte("BM\x00\x00\x00\x00"), FormatBMP, "image/bmp"},
		{"tiff little endian", []byte{0x49, 0x49, 0x2A, 0x00, 0x08}, FormatTIFF, "image/tiff"},
		{"tiff big endian", []byte{0x4D, 0x4D, 0x00, 0x2A, 0x08}, FormatTIFF, "image/tiff"},
		{"ico", []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00}, FormatICO, "image/x-icon"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			detection, err := DetectMagicNumberBytes(tc.header)
			require.NoError(t, err)
			require.Equal(t, tc.format, detection.Format)
			require.Equal(t, tc.mimeType, detection.MimeType)
		})
	}
}

func TestDetectMagicNumberBytesRejectsBareRIFF(t *testing.T) {
	_, err := DetectMagicNumberBytes([]byte("RIFF\x10\x00\x00\x00WAVEfmt "))
	require.ErrorIs(t, err, ErrUnknownSignature)
}

func TestDetectMagicNumberBytesUnknown(t *testing.T) {
	_, err := DetectMagicNumberBytes([]byte("#!/bin/sh\n"))
	require.ErrorIs(t, err, ErrUnknownSignature)
}

func TestDetectMagicNumberBytesEmpty(t *testing.T) {
	_, err := DetectMagicNumberBytes(nil)
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestDetectMagicNumberFromFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00}, 0o600))
	detection, err := DetectMagicNumber(path)
	require.NoError(t, err)
	require.Equal(t, FormatPNG, detection.Format)

	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = DetectMagicNumber(empty)
	require.ErrorIs(t, err, ErrEmptyFile)
}
