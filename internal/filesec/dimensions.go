package filesec

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Dimensions holds the pixel geometry parsed from an image header.
type Dimensions struct {
	Width  int
	Height int
}

// Pixels returns the total pixel count.
func (d Dimensions) Pixels() int64 {
	return int64(d.Width) * int64(d.Height)
}

// EstimatedMemoryBytes approximates decoder memory use at 4 bytes/pixel.
func (d Dimensions) EstimatedMemoryBytes() int64 {
	return d.Pixels() * 4
}

// ExtractDimensions parses width and height from header bytes without
// decoding the image. Truncated or malformed headers return a
// format-specific error rather than zero dimensions.
func ExtractDimensions(format Format, header []byte) (Dimensions, error) {
	switch format {
	case FormatPNG:
		return pngDimensions(header)
	case FormatJPEG:
		return jpegDimensions(header)
	case FormatGIF:
		return gifDimensions(header)
	case FormatBMP:
		return bmpDimensions(header)
	case FormatWebP:
		return webpDimensions(header)
	default:
		return Dimensions{}, fmt.Errorf("dimension extraction not supported for format %q", format)
	}
}

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// pngDimensions reads big-endian width/height at the fixed IHDR offset.
// Layout: 8-byte signature, 4-byte chunk length, "IHDR", width, height.
func pngDimensions(header []byte) (Dimensions, error) {
	if len(header) < 24 {
		return Dimensions{}, fmt.Errorf("png: header truncated at %d bytes", len(header))
	}
	if !bytes.HasPrefix(header, pngSignature) {
		return Dimensions{}, fmt.Errorf("png: missing signature")
	}
	if !bytes.Equal(header[12:16], []byte("IHDR")) {
		return Dimensions{}, fmt.Errorf("png: first chunk is not IHDR")
	}
	width := binary.BigEndian.Uint32(header[16:20])
	height := binary.BigEndian.Uint32(header[20:24])
	if width == 0 || height == 0 {
		return Dimensions{}, fmt.Errorf("png: zero dimensions in IHDR")
	}
	return Dimensions{Width: int(width), Height: int(height)}, nil
}

// jpegDimensions walks markers until a Start-Of-Frame (0xFFC0-0xFFC3) and
// reads height then width as big-endian u16 after the precision byte.
func jpegDimensions(data []byte) (Dimensions, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return Dimensions{}, fmt.Errorf("jpeg: missing SOI marker")
	}
	offset := 2
	for offset+1 < len(data) {
		if data[offset] != 0xFF {
			return Dimensions{}, fmt.Errorf("jpeg: malformed marker at offset %d", offset)
		}
		marker := data[offset+1]
		offset += 2
		// Padding bytes between markers.
		for marker == 0xFF && offset < len(data) {
			marker = data[offset]
			offset++
		}
		// Standalone markers carry no length field.
		if marker == 0xD8 || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			continue
		}
		if offset+2 > len(data) {
			return Dimensions{}, fmt.Errorf("jpeg: truncated segment length")
		}
		segLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		if segLen < 2 {
			return Dimensions{}, fmt.Errorf("jpeg: invalid segment length %d", segLen)
		}
		if marker >= 0xC0 && marker <= 0xC3 {
			if offset+7 > len(data) {
				return Dimensions{}, fmt.Errorf("jpeg: truncated SOF segment")
			}
			height := binary.BigEndian.Uint16(data[offset+3 : offset+5])
			width := binary.BigEndian.Uint16(data[offset+5 : offset+7])
			if width == 0 || height == 0 {
				return Dimensions{}, fmt.Errorf("jpeg: zero dimensions in SOF")
			}
			return Dimensions{Width: int(width), Height: int(height)}, nil
		}
		offset += segLen
	}
	return Dimensions{}, fmt.Errorf("jpeg: no SOF marker found")
}

// gifDimensions reads little-endian u16 width/height at fixed offsets
// after the 6-byte version signature.
func gifDimensions(header []byte) (Dimensions, error) {
	if len(header) < 10 {
		return Dimensions{}, fmt.Errorf("gif: header truncated at %d bytes", len(header))
	}
	if !bytes.HasPrefix(header, []byte("GIF87a")) && !bytes.HasPrefix(header, []byte("GIF89a")) {
		return Dimensions{}, fmt.Errorf("gif: missing version signature")
	}
	width := binary.LittleEndian.Uint16(header[6:8])
	height := binary.LittleEndian.Uint16(header[8:10])
	if width == 0 || height == 0 {
		return Dimensions{}, fmt.Errorf("gif: zero dimensions in logical screen descriptor")
	}
	return Dimensions{Width: int(width), Height: int(height)}, nil
}

// bmpDimensions reads signed 32-bit width/height from the info header.
// Height may be negative for top-down bitmaps; the absolute value is used.
func bmpDimensions(header []byte) (Dimensions, error) {
	if len(header) < 26 {
		return Dimensions{}, fmt.Errorf("bmp: header truncated at %d bytes", len(header))
	}
	if header[0] != 'B' || header[1] != 'M' {
		return Dimensions{}, fmt.Errorf("bmp: missing BM signature")
	}
	width := int32(binary.LittleEndian.Uint32(header[18:22]))
	height := int32(binary.LittleEndian.Uint32(header[22:26]))
	if height < 0 {
		height = -height
	}
	if width <= 0 || height == 0 {
		return Dimensions{}, fmt.Errorf("bmp: invalid dimensions %dx%d", width, height)
	}
	return Dimensions{Width: int(width), Height: int(height)}, nil
}

// webpDimensions verifies the RIFF/WEBP container and dispatches on the
// sub-format chunk: simple VP8 (14-bit fields masked from little-endian
// u16), lossless VP8L (14-bit fields packed into a u32, biased by +1),
// and extended VP8X (24-bit fields, biased by +1).
func webpDimensions(header []byte) (Dimensions, error) {
	if len(header) < 16 {
		return Dimensions{}, fmt.Errorf("webp: header truncated at %d bytes", len(header))
	}
	if !bytes.HasPrefix(header, []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WEBP")) {
		return Dimensions{}, fmt.Errorf("webp: missing RIFF/WEBP container markers")
	}
	chunk := string(header[12:16])
	switch chunk {
	case "VP8 ":
		if len(header) < 30 {
			return Dimensions{}, fmt.Errorf("webp: truncated VP8 chunk")
		}
		if header[23] != 0x9D || header[24] != 0x01 || header[25] != 0x2A {
			return Dimensions{}, fmt.Errorf("webp: missing VP8 start code")
		}
		width := int(binary.LittleEndian.Uint16(header[26:28]) & 0x3FFF)
		height := int(binary.LittleEndian.Uint16(header[28:30]) & 0x3FFF)
		if width == 0 || height == 0 {
			return Dimensions{}, fmt.Errorf("webp: zero dimensions in VP8 frame")
		}
		return Dimensions{Width: width, Height: height}, nil
	case "VP8L":
		if len(header) < 25 {
			return Dimensions{}, fmt.Errorf("webp: truncated VP8L chunk")
		}
		if header[20] != 0x2F {
			return Dimensions{}, fmt.Errorf("webp: missing VP8L signature byte")
		}
		bits := binary.LittleEndian.Uint32(header[21:25])
		width := int(bits&0x3FFF) + 1
		height := int((bits>>14)&0x3FFF) + 1
		return Dimensions{Width: width, Height: height}, nil
	case "VP8X":
		if len(header) < 30 {
			return Dimensions{}, fmt.Errorf("webp: truncated VP8X chunk")
		}
		width := int(uint32(header[24])|uint32(header[25])<<8|uint32(header[26])<<16) + 1
		height := int(uint32(header[27])|uint32(header[28])<<8|uint32(header[29])<<16) + 1
		return Dimensions{Width: width, Height: height}, nil
	default:
		return Dimensions{}, fmt.Errorf("webp: unknown sub-format %q", chunk)
	}
}
