package audio

import "sync"

var bytesPool sync.Pool
var int16Pool sync.Pool
var float64Pool sync.Pool

// AcquireBytes returns a byte slice with length size.
func AcquireBytes(size int) []byte {
	if size <= 0 {
		return nil
	}
	if v := bytesPool.Get(); v != nil {
		buf := v.([]byte)
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// ReleaseBytes puts a byte slice back to the pool.
func ReleaseBytes(buf []byte) {
	if buf == nil {
		return
	}
	bytesPool.Put(buf[:0])
}

// AcquireInt16 returns an int16 slice with length size.
func AcquireInt16(size int) []int16 {
	if size <= 0 {
		return nil
	}
	if v := int16Pool.Get(); v != nil {
		buf := v.([]int16)
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]int16, size)
}

// ReleaseInt16 puts an int16 slice back to the pool.
func ReleaseInt16(buf []int16) {
	if buf == nil {
		return
	}
	int16Pool.Put(buf[:0])
}

// AcquireFloat64 returns a float64 slice with length size.
func AcquireFloat64(size int) []float64 {
	if size <= 0 {
		return nil
	}
	if v := float64Pool.Get(); v != nil {
		buf := v.([]float64)
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]float64, size)
}

// ReleaseFloat64 puts a float64 slice back to the pool.
func ReleaseFloat64(buf []float64) {
	if buf == nil {
		return
	}
	float64Pool.Put(buf[:0])
}
