package filesec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngHeader(width, height uint32) []byte {
	header := append([]byte{}, pngSignature...)
	header = append(header, 0x00, 0x00, 0x00, 0x0D)
	header = append(header, []byte("IHDR")...)
	header = binary.BigEndian.AppendUint32(header, width)
	header = binary.BigEndian.AppendUint32(header, height)
	return header
}

func jpegWithSOF(width, height uint16) []byte {
	data := []byte{0xFF, 0xD8}
	// APP0 segment before the frame header.
	data = append(data, 0xFF, 0xE0, 0x00, 0x04, 0x00, 0x00)
	// SOF0: length, precision, height, width, components.
	data = append(data, 0xFF, 0xC0, 0x00, 0x0B, 0x08)
	data = binary.BigEndian.AppendUint16(data, height)
	data = binary.BigEndian.AppendUint16(data, width)
	data = append(data, 0x03, 0x01, 0x11, 0x00)
	return data
}

func gifHeader(width, height uint16) []byte {
	header := []byte("GIF89a")
	header = binary.LittleEndian.AppendUint16(header, width)
	header = binary.LittleEndian.AppendUint16(header, height)
	return header
}

func bmpHeader(width, height int32) []byte {
	header := make([]byte, 26)
	header[0], header[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(header[18:22], uint32(width))
	binary.LittleEndian.PutUint32(header[22:26], uint32(height))
	return header
}

func TestPNGDimensions(t *testing.T) {
	dims, err := ExtractDimensions(FormatPNG, pngHeader(1920, 1080))
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 1920, Height: 1080}, dims)
}

func TestPNGDimensionsTruncated(t *testing.T) {
	_, err := ExtractDimensions(FormatPNG, pngHeader(1920, 1080)[:20])
	require.Error(t, err)
	require.Contains(t, err.Error(), "truncated")
}

func TestPNGDimensionsZero(t *testing.T) {
	_, err := ExtractDimensions(FormatPNG, pngHeader(0, 1080))
	require.Error(t, err)
}

func TestJPEGDimensions(t *testing.T) {
	dims, err := ExtractDimensions(FormatJPEG, jpegWithSOF(640, 480))
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 640, Height: 480}, dims)
}

func TestJPEGDimensionsNoSOF(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x04, 0x00, 0x00}
	_, err := ExtractDimensions(FormatJPEG, data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no SOF marker")
}

func TestGIFDimensions(t *testing.T) {
	dims, err := ExtractDimensions(FormatGIF, gifHeader(320, 200))
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 320, Height: 200}, dims)
}

func TestBMPDimensions(t *testing.T) {
	dims, err := ExtractDimensions(FormatBMP, bmpHeader(800, 600))
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 800, Height: 600}, dims)
}

func TestBMPDimensionsTopDown(t *testing.T) {
	dims, err := ExtractDimensions(FormatBMP, bmpHeader(800, -600))
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 800, Height: 600}, dims)
}

func TestWebPDimensionsVP8(t *testing.T) {
	header := make([]byte, 30)
	copy(header, "RIFF")
	copy(header[8:], "WEBPVP8 ")
	header[23], header[24], header[25] = 0x9D, 0x01, 0x2A
	binary.LittleEndian.PutUint16(header[26:28], 550)
	binary.LittleEndian.PutUint16(header[28:30], 368)

	dims, err := ExtractDimensions(FormatWebP, header)
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 550, Height: 368}, dims)
}

func TestWebPDimensionsVP8L(t *testing.T) {
	header := make([]byte, 25)
	copy(header, "RIFF")
	copy(header[8:], "WEBPVP8L")
	header[20] = 0x2F
	// 14-bit fields store size-1: 1023x767 encodes 1024x768.
	bits := uint32(1023) | uint32(767)<<14
	binary.LittleEndian.PutUint32(header[21:25], bits)

	dims, err := ExtractDimensions(FormatWebP, header)
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 1024, Height: 768}, dims)
}

func TestWebPDimensionsVP8X(t *testing.T) {
	header := make([]byte, 30)
	copy(header, "RIFF")
	copy(header[8:], "WEBPVP8X")
	// 24-bit little-endian fields store size-1.
	header[24], header[25], header[26] = 0xFF, 0x03, 0x00 // 1023 -> 1024
	header[27], header[28], header[29] = 0xFF, 0x01, 0x00 // 511 -> 512

	dims, err := ExtractDimensions(FormatWebP, header)
	require.NoError(t, err)
	require.Equal(t, Dimensions{Width: 1024, Height: 512}, dims)
}

func TestWebPDimensionsUnknownChunk(t *testing.T) {
	header := make([]byte, 30)
	copy(header, "RIFF")
	copy(header[8:], "WEBPXXXX")
	_, err := ExtractDimensions(FormatWebP, header)
	require.Error(t, err)
}

func TestExtractDimensionsUnsupportedFormat(t *testing.T) {
	_, err := ExtractDimensions(FormatTIFF, []byte{0x49, 0x49, 0x2A, 0x00})
	require.Error(t, err)
}

func TestDimensionsDerived(t *testing.T) {
	dims := Dimensions{Width: 1000, Height: 2000}
	require.Equal(t, int64(2_000_000), dims.Pixels())
	require.Equal(t, int64(8_000_000), dims.EstimatedMemoryBytes())
}
