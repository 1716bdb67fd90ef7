package audio

import "testing"

func TestFloat64ToPCM16(t *testing.T) {
	cases := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1.0, 32767},
		{-1.0, -32768},
		{1.5, 32767},
		{-1.5, -32768},
		{0.5, 16383},
		{-0.5, -16384},
	}
	for _, tc := range cases {
		if got := float64ToPCM16(tc.in); got != tc.want {
			t.Fatalf("float64ToPCM16(%v)=%d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestInt16BytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256, -257}
	data := Int16SliceToBytesInto(nil, samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("len(data)=%d, want %d", len(data), len(samples)*2)
	}
	back := BytesToInt16SliceInto(nil, data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Fatalf("back[%d]=%d, want %d", i, back[i], samples[i])
		}
	}
}

func TestBytesToInt16IgnoresOddByte(t *testing.T) {
	out := BytesToInt16SliceInto(nil, []byte{0x01, 0x00, 0xff})
	if len(out) != 1 || out[0] != 1 {
		t.Fatalf("out=%v, want [1]", out)
	}
}
