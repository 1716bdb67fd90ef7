package codec

import (
	"encoding/binary"
	"testing"
)

func TestNormalizeVersion(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{1, Version1},
		{2, Version2},
		{3, Version3},
		{0, Version1},
		{99, Version1},
	}
	for _, tc := range cases {
		if got := NormalizeVersion(tc.in); got != tc.want {
			t.Fatalf("NormalizeVersion(%d)=%d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPackDecodeV1Raw(t *testing.T) {
	payload := []byte{0xaa, 0xbb}
	frame := Pack(Version1, payload)
	if string(frame) != string(payload) {
		t.Fatalf("Pack(v1)=%v, want raw payload %v", frame, payload)
	}

	got, kind, err := Decode(Version1, frame)
	if err != nil {
		t.Fatalf("Decode(v1) returned error: %v", err)
	}
	if kind != PayloadKindAudio {
		t.Fatalf("Decode(v1) kind=%v, want %v", kind, PayloadKindAudio)
	}
	if string(got) != string(payload) {
		t.Fatalf("Decode(v1) payload=%v, want %v", got, payload)
	}
}

func TestPackDecodeV2Audio(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	frame := Pack(Version2, payload)

	got, kind, err := Decode(Version2, frame)
	if err != nil {
		t.Fatalf("Decode(v2) returned error: %v", err)
	}
	if kind != PayloadKindAudio {
		t.Fatalf("Decode(v2) kind=%v, want %v", kind, PayloadKindAudio)
	}
	if string(got) != string(payload) {
		t.Fatalf("Decode(v2) payload=%v, want %v", got, payload)
	}
}

func TestPackDecodeV3Audio(t *testing.T) {
	payload := []byte{0x09, 0x08, 0x07}
	frame := Pack(Version3, payload)

	got, kind, err := Decode(Version3, frame)
	if err != nil {
		t.Fatalf("Decode(v3) returned error: %v", err)
	}
	if kind != PayloadKindAudio {
		t.Fatalf("Decode(v3) kind=%v, want %v", kind, PayloadKindAudio)
	}
	if string(got) != string(payload) {
		t.Fatalf("Decode(v3) payload=%v, want %v", got, payload)
	}
}

func TestPackIntoReusesBuffer(t *testing.T) {
	scratch := make([]byte, 0, 64)
	frame := PackInto(Version3, scratch, []byte{1, 2, 3})
	if cap(frame) != 64 {
		t.Fatalf("cap(frame)=%d, want 64", cap(frame))
	}
	if len(frame) != v3HeaderSize+3 {
		t.Fatalf("len(frame)=%d, want %d", len(frame), v3HeaderSize+3)
	}
}

func TestDecodeV2CommandPayload(t *testing.T) {
	payload := []byte(`{"type":"transcript"}`)
	frame := make([]byte, v2HeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], Version2)
	binary.BigEndian.PutUint16(frame[2:4], payloadTypeCmd)
	binary.BigEndian.PutUint32(frame[12:16], uint32(len(payload)))
	copy(frame[v2HeaderSize:], payload)

	got, kind, err := Decode(Version2, frame)
	if err != nil {
		t.Fatalf("Decode(v2 cmd) returned error: %v", err)
	}
	if kind != PayloadKindCommand {
		t.Fatalf("Decode(v2 cmd) kind=%v, want %v", kind, PayloadKindCommand)
	}
	if string(got) != string(payload) {
		t.Fatalf("Decode(v2 cmd) payload=%q, want %q", string(got), string(payload))
	}
}

func TestDecodeV2InvalidPayloadSize(t *testing.T) {
	frame := make([]byte, v2HeaderSize)
	binary.BigEndian.PutUint16(frame[0:2], Version2)
	binary.BigEndian.PutUint16(frame[2:4], payloadTypeAudio)
	binary.BigEndian.PutUint32(frame[12:16], 10)

	if _, _, err := Decode(Version2, frame); err == nil {
		t.Fatal("Decode(v2) error=nil, want non-nil")
	}
}

func TestDecodeV3ShortFrame(t *testing.T) {
	if _, _, err := Decode(Version3, []byte{0x00, 0x00}); err == nil {
		t.Fatal("Decode(v3) error=nil, want non-nil")
	}
}
