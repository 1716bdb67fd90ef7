package codec

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	// Version1 uses raw audio payload frames.
	Version1 = 1
	// Version2 uses a fixed-width header with payload type, timestamp and size.
	Version2 = 2
	// Version3 uses a compact fixed-width header with payload type and size.
	Version3 = 3

	payloadTypeAudio = 0
	payloadTypeCmd   = 1

	v2HeaderSize = 16
	v3HeaderSize = 4
)

// PayloadKind describes the decoded payload category.
type PayloadKind int

const (
	// PayloadKindAudio indicates PCM bytes.
	PayloadKindAudio PayloadKind = iota
	// PayloadKindCommand indicates JSON command bytes.
	PayloadKindCommand
)

// NormalizeVersion returns a supported protocol version.
func NormalizeVersion(version int) int {
	switch version {
	case Version2, Version3:
		return version
	default:
		return Version1
	}
}

// Decode parses a binary frame according to protocol version. The returned
// payload aliases the frame.
func Decode(version int, frame []byte) ([]byte, PayloadKind, error) {
	switch NormalizeVersion(version) {
	case Version2:
		return decodeV2(frame)
	case Version3:
		return decodeV3(frame)
	default:
		return frame, PayloadKindAudio, nil
	}
}

// Pack allocates a binary audio frame according to protocol version.
func Pack(version int, payload []byte) []byte {
	return PackInto(version, nil, payload)
}

// PackInto frames an audio payload into dst, reusing its capacity, and
// returns the slice. Send paths call this once per frame and keep one scratch
// buffer per link.
func PackInto(version int, dst []byte, payload []byte) []byte {
	switch NormalizeVersion(version) {
	case Version2:
		dst = grow(dst, v2HeaderSize+len(payload))
		binary.BigEndian.PutUint16(dst[0:2], Version2)
		binary.BigEndian.PutUint16(dst[2:4], payloadTypeAudio)
		binary.BigEndian.PutUint32(dst[4:8], 0)
		binary.BigEndian.PutUint32(dst[8:12], uint32(time.Now().UnixMilli()))
		binary.BigEndian.PutUint32(dst[12:16], uint32(len(payload)))
		copy(dst[v2HeaderSize:], payload)
		return dst
	case Version3:
		dst = grow(dst, v3HeaderSize+len(payload))
		dst[0] = payloadTypeAudio
		dst[1] = 0
		binary.BigEndian.PutUint16(dst[2:4], uint16(len(payload)))
		copy(dst[v3HeaderSize:], payload)
		return dst
	default:
		dst = grow(dst, len(payload))
		copy(dst, payload)
		return dst
	}
}

func grow(dst []byte, size int) []byte {
	if cap(dst) < size {
		return make([]byte, size)
	}
	return dst[:size]
}

func decodeV2(frame []byte) ([]byte, PayloadKind, error) {
	if len(frame) < v2HeaderSize {
		return nil, PayloadKindAudio, errors.New("relay binary v2 frame too short")
	}
	msgType := binary.BigEndian.Uint16(frame[2:4])
	payloadSize := binary.BigEndian.Uint32(frame[12:16])
	if int(payloadSize) > len(frame)-v2HeaderSize {
		return nil, PayloadKindAudio, errors.New("relay binary v2 invalid payload size")
	}
	payload := frame[v2HeaderSize : v2HeaderSize+int(payloadSize)]
	switch msgType {
	case payloadTypeAudio:
		return payload, PayloadKindAudio, nil
	case payloadTypeCmd:
		return payload, PayloadKindCommand, nil
	default:
		return nil, PayloadKindAudio, errors.New("relay binary v2 unsupported payload type")
	}
}

func decodeV3(frame []byte) ([]byte, PayloadKind, error) {
	if len(frame) < v3HeaderSize {
		return nil, PayloadKindAudio, errors.New("relay binary v3 frame too short")
	}
	msgType := frame[0]
	payloadSize := binary.BigEndian.Uint16(frame[2:4])
	if int(payloadSize) > len(frame)-v3HeaderSize {
		return nil, PayloadKindAudio, errors.New("relay binary v3 invalid payload size")
	}
	payload := frame[v3HeaderSize : v3HeaderSize+int(payloadSize)]
	switch msgType {
	case payloadTypeAudio:
		return payload, PayloadKindAudio, nil
	case payloadTypeCmd:
		return payload, PayloadKindCommand, nil
	default:
		return nil, PayloadKindAudio, errors.New("relay binary v3 unsupported payload type")
	}
}
