package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MarshalBinary encodes the packet into its fixed wire layout
func (p Packet) MarshalBinary() ([]byte, error) {
	if len(p.Payload) > PayloadSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(p.Payload), PayloadSize)
	}
	if p.Origin < 0 || p.Origin > maxOrigin {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOrigin, p.Origin)
	}

	buf := make([]byte, PacketSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.Kind))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(p.Origin)))
	copy(buf[8:8+PayloadSize], p.Payload)
	binary.BigEndian.PutUint64(buf[8+PayloadSize:], p.Checksum)

	return buf, nil
}

// UnmarshalBinary decodes a fixed-size wire packet. It does not validate the
// checksum; callers must do so before acting on the packet.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) != PacketSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShortPacket, len(data), PacketSize)
	}

	origin := int32(binary.BigEndian.Uint32(data[4:8]))
	if origin < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOrigin, origin)
	}

	payload := data[8 : 8+PayloadSize]
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}

	p.Kind = Kind(binary.BigEndian.Uint32(data[0:4]))
	p.Origin = int(origin)
	p.Payload = string(payload)
	p.Checksum = binary.BigEndian.Uint64(data[8+PayloadSize:])
	return nil
}

// Decode unmarshals a packet and rejects it if it fails integrity validation
func Decode(data []byte) (Packet, error) {
	var p Packet
	if err := p.UnmarshalBinary(data); err != nil {
		return Packet{}, err
	}
	if err := p.Validate(); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// ReadPacket reads exactly one packet from r. A stream that ends before
// PacketSize bytes yields ErrShortPacket.
func ReadPacket(r io.Reader) (Packet, error) {
	buf := make([]byte, PacketSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Packet{}, fmt.Errorf("%w: %v", ErrShortPacket, err)
		}
		return Packet{}, err
	}

	var p Packet
	if err := p.UnmarshalBinary(buf); err != nil {
		return Packet{}, err
	}
	return p, nil
}

// WritePacket writes the encoded packet to w
func WritePacket(w io.Writer, p Packet) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
