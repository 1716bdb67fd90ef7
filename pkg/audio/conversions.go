package audio

import "math"

// float64ToPCM16 clamps sample to [-1, 1] and quantizes to a signed 16-bit
// value. Negative samples scale by 32768 and non-negative ones by 32767, so
// both full-scale extremes land on -32768 and 32767 without overflow. The
// scaled value is truncated, not rounded.
func float64ToPCM16(sample float64) int16 {
	if sample > 1.0 {
		sample = 1.0
	} else if sample < -1.0 {
		sample = -1.0
	}
	if sample < 0 {
		return int16(sample * 32768)
	}
	return int16(sample * 32767)
}

// Int16SliceToFloat64Into fills dst with int16 converted to float64 and returns the slice.
func Int16SliceToFloat64Into(dst []float64, samples []int16) []float64 {
	if cap(dst) < len(samples) {
		dst = make([]float64, len(samples))
	} else {
		dst = dst[:len(samples)]
	}
	for i, sample := range samples {
		dst[i] = float64(sample) / float64(math.MaxInt16)
	}
	return dst
}

// Int16SliceToBytesInto converts int16 samples to little-endian bytes.
func Int16SliceToBytesInto(dst []byte, samples []int16) []byte {
	needed := len(samples) * 2
	if cap(dst) < needed {
		dst = make([]byte, needed)
	} else {
		dst = dst[:needed]
	}
	for i, sample := range samples {
		offset := i * 2
		dst[offset] = byte(sample)
		dst[offset+1] = byte(sample >> 8)
	}
	return dst
}

// BytesToInt16SliceInto converts little-endian bytes to int16 samples. A
// trailing odd byte is ignored.
func BytesToInt16SliceInto(dst []int16, data []byte) []int16 {
	n := len(data) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	} else {
		dst = dst[:n]
	}
	for i := 0; i < n; i++ {
		offset := i * 2
		dst[i] = int16(uint16(data[offset]) | uint16(data[offset+1])<<8)
	}
	return dst
}
