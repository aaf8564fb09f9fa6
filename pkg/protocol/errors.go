package protocol

import "errors"

// Encoding errors
var (
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum packet payload size")
	ErrPayloadContainsNUL = errors.New("payload must not contain NUL bytes")
	ErrUnknownKind        = errors.New("unknown message kind")
	ErrInvalidOrigin      = errors.New("origin id out of range")
)

// Decoding errors
var (
	ErrShortPacket      = errors.New("short packet")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
