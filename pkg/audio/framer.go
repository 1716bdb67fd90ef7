package audio

// Framer accumulates quantized PCM16 samples and cuts fixed-size frames for
// the upstream link. Samples arrive in resampler-sized bursts that rarely
// line up with the frame duration the backend expects.
type Framer struct {
	buf []int16
}

// Push appends samples to the pending buffer.
func (f *Framer) Push(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	f.buf = append(f.buf, pcm...)
}

// Len returns the number of pending samples.
func (f *Framer) Len() int {
	return len(f.buf)
}

// PopFrame returns a frame of exactly frameSize samples if enough are
// pending. The frame comes from the package pool; hand it back with
// ReleaseInt16 after use.
func (f *Framer) PopFrame(frameSize int) ([]int16, bool) {
	if frameSize <= 0 || len(f.buf) < frameSize {
		return nil, false
	}
	frame := AcquireInt16(frameSize)
	copy(frame, f.buf[:frameSize])
	f.buf = f.buf[frameSize:]
	return frame, true
}

// PopRemainderPadded returns the pending samples zero-padded to frameSize,
// or nil when nothing is pending. Anything beyond frameSize is truncated.
func (f *Framer) PopRemainderPadded(frameSize int) []int16 {
	if frameSize <= 0 || len(f.buf) == 0 {
		return nil
	}
	if len(f.buf) > frameSize {
		f.buf = f.buf[:frameSize]
	}
	frame := AcquireInt16(frameSize)
	n := copy(frame, f.buf)
	for i := n; i < frameSize; i++ {
		frame[i] = 0
	}
	f.buf = nil
	return frame
}

// Reset drops pending samples.
func (f *Framer) Reset() {
	f.buf = nil
}
