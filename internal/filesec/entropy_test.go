package filesec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShannonEntropyBounds(t *testing.T) {
	require.Equal(t, 0.0, ShannonEntropy(nil))
	require.Equal(t, 0.0, ShannonEntropy(bytes.Repeat([]byte{0xAA}, 1024)))

	uniform := make([]byte, 0, 4096)
	for i := 0; i < 16; i++ {
		for b := 0; b < 256; b++ {
			uniform = append(uniform, byte(b))
		}
	}
	require.InDelta(t, 8.0, ShannonEntropy(uniform), 0.0001)
}

func TestShannonEntropyTwoSymbols(t *testing.T) {
	data := bytes.Repeat([]byte{0x00, 0xFF}, 512)
	require.InDelta(t, 1.0, ShannonEntropy(data), 0.0001)
}

func TestPrefixEntropyWindow(t *testing.T) {
	// Low-entropy prefix followed by a uniform tail; a bounded window must
	// only see the prefix.
	data := bytes.Repeat([]byte{0x41}, 4096)
	for b := 0; b < 256; b++ {
		data = append(data, byte(b))
	}
	require.Equal(t, 0.0, PrefixEntropy(data, 4096))
	require.Equal(t, 0.0, PrefixEntropy(data, 0)) // non-positive window falls back to 4096
	require.Greater(t, PrefixEntropy(data, len(data)), 0.0)
}

func TestNullByteRatio(t *testing.T) {
	require.Equal(t, 0.0, NullByteRatio(nil))
	require.Equal(t, 0.0, NullByteRatio([]byte("abcd")))
	require.InDelta(t, 0.5, NullByteRatio([]byte{0, 1, 0, 2}), 0.0001)
}
