package protocol

import (
	"fmt"
	"strings"
)

// Checksum sums the byte values of payload up to the first NUL
func Checksum(payload string) uint64 {
	var sum uint64
	for i := 0; i < len(payload); i++ {
		if payload[i] == 0 {
			break
		}
		sum += uint64(payload[i])
	}
	return sum
}

// Encode builds a packet and embeds the payload checksum.
// Payloads that do not fit are rejected rather than truncated.
func Encode(kind Kind, origin int, payload string) (Packet, error) {
	if !kind.Known() {
		return Packet{}, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
	if origin < 0 || origin > maxOrigin {
		return Packet{}, fmt.Errorf("%w: %d", ErrInvalidOrigin, origin)
	}
	if len(payload) > PayloadSize {
		return Packet{}, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), PayloadSize)
	}
	if strings.IndexByte(payload, 0) >= 0 {
		return Packet{}, ErrPayloadContainsNUL
	}

	return Packet{
		Kind:     kind,
		Origin:   origin,
		Payload:  payload,
		Checksum: Checksum(payload),
	}, nil
}

// MustEncode is like Encode but panics on error. Intended for fixed payloads.
func MustEncode(kind Kind, origin int, payload string) Packet {
	p, err := Encode(kind, origin, payload)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate recomputes the payload checksum and compares it to the carried one
func (p Packet) Validate() error {
	if got := Checksum(p.Payload); got != p.Checksum {
		return fmt.Errorf("%w: carried %d, computed %d", ErrChecksumMismatch, p.Checksum, got)
	}
	return nil
}

// Valid reports whether the packet passes integrity validation
func (p Packet) Valid() bool {
	return p.Validate() == nil
}

// WithOrigin returns a copy of p attributed to origin. The checksum covers only the
// payload, so it stays valid.
func (p Packet) WithOrigin(origin int) Packet {
	p.Origin = origin
	return p
}
