package filesec

import "math"

// DefaultEntropyWindow bounds how much of a file feeds the entropy
// calculation. 4KB is enough to distinguish compressed or encrypted
// payloads from ordinary image data.
const DefaultEntropyWindow = 4096

// ShannonEntropy computes the Shannon entropy in bits over the byte
// frequency distribution of data. The result is bounded to [0, 8] for
// byte-valued input: 0 for a run of identical bytes, approaching 8 for
// uniformly random bytes.
func ShannonEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// PrefixEntropy computes Shannon entropy over at most window leading
// bytes of data. A non-positive window falls back to the default.
func PrefixEntropy(data []byte, window int) float64 {
	if window <= 0 {
		window = DefaultEntropyWindow
	}
	if len(data) > window {
		data = data[:window]
	}
	return ShannonEntropy(data)
}

// NullByteRatio returns the fraction of data that is NUL bytes.
// High ratios inside an image body suggest padding used for data hiding.
func NullByteRatio(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	nulls := 0
	for _, b := range data {
		if b == 0 {
			nulls++
		}
	}
	return float64(nulls) / float64(len(data))
}
