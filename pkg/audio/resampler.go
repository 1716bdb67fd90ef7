package audio

// DefaultTargetRate is the sample rate the speech backend consumes.
const DefaultTargetRate = 16000

// Resampler converts mono float samples arriving at a caller-declared rate
// into 16-bit PCM at a fixed target rate. Input that does not complete an
// output sample under the current ratio is carried in a tail buffer, so the
// stream can be fed in chunks of any size. Instances are not safe for
// concurrent use; each capture session owns exactly one.
type Resampler struct {
	targetRate  float64
	currentRate float64
	tail        []float64
}

// NewResampler creates a resampler emitting PCM16 at targetRate. The input
// rate starts equal to the target until the caller declares otherwise through
// SetSampleRate. A non-positive targetRate falls back to DefaultTargetRate.
// The target rate is fixed for the life of the instance.
func NewResampler(targetRate float64) *Resampler {
	if targetRate <= 0 {
		targetRate = DefaultTargetRate
	}
	return &Resampler{targetRate: targetRate, currentRate: targetRate}
}

// TargetRate returns the fixed output rate.
func (r *Resampler) TargetRate() float64 { return r.targetRate }

// CurrentRate returns the declared input rate.
func (r *Resampler) CurrentRate() float64 { return r.currentRate }

// Pending returns the number of input samples held over for the next call.
func (r *Resampler) Pending() int { return len(r.tail) }

// SetSampleRate declares the rate of the input that follows. Non-positive
// values fall back to the target rate. When the rate actually changes the
// tail buffer is dropped; samples held at the old rate have no valid time
// alignment at the new one. Re-declaring the current rate keeps the tail.
func (r *Resampler) SetSampleRate(rate float64) {
	if rate <= 0 {
		rate = r.targetRate
	}
	if rate == r.currentRate {
		return
	}
	r.currentRate = rate
	r.tail = r.tail[:0]
}

// Process converts one chunk of mono samples in [-1, 1] and returns the
// quantized PCM16 output. When input and target rate match every sample is
// quantized as-is; otherwise output samples are linearly interpolated at
// positions spaced by currentRate/targetRate and the unconsumed remainder
// becomes the new tail. The returned slice is owned by the caller.
func (r *Resampler) Process(buf []float64) []int16 {
	if r.currentRate <= 0 || len(buf) == 0 {
		return nil
	}
	if r.currentRate == r.targetRate {
		out := make([]int16, len(buf))
		for i, sample := range buf {
			out[i] = float64ToPCM16(sample)
		}
		return out
	}
	ratio := r.currentRate / r.targetRate
	combined := append(r.tail, buf...)
	outputLen := int(float64(len(combined)) / ratio)
	if outputLen <= 0 {
		r.tail = combined
		return nil
	}
	out := make([]int16, outputLen)
	last := len(combined) - 1
	for i := 0; i < outputLen; i++ {
		pos := float64(i) * ratio
		base := int(pos)
		if base > last {
			base = last
		}
		next := base + 1
		if next > last {
			next = last
		}
		weight := pos - float64(base)
		out[i] = float64ToPCM16(combined[base]*(1-weight) + combined[next]*weight)
	}
	consumed := int(float64(outputLen) * ratio)
	if consumed > len(combined) {
		consumed = len(combined)
	}
	r.tail = combined[consumed:]
	return out
}

// Flush quantizes whatever remains in the tail buffer, without interpolation,
// and clears it. Call at end of stream so the final fractional window is not
// dropped.
func (r *Resampler) Flush() []int16 {
	if len(r.tail) == 0 {
		return nil
	}
	out := make([]int16, len(r.tail))
	for i, sample := range r.tail {
		out[i] = float64ToPCM16(sample)
	}
	r.tail = nil
	return out
}

// Reset restores the freshly constructed state: input rate back to the
// target, tail buffer dropped.
func (r *Resampler) Reset() {
	r.currentRate = r.targetRate
	r.tail = nil
}
