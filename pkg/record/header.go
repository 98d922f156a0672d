package record

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

// Record size limits.
const (
	// StreamHeaderSize is type(1) | version(2) | length(2).
	StreamHeaderSize = 5

	// DatagramHeaderSize is type(1) | version(2) | epoch(2) | seq(6) | length(2).
	DatagramHeaderSize = 13

	// MaxPlaintext is the largest plaintext fragment.
	MaxPlaintext = 16384

	// MaxCiphertext is the largest record body accepted from the wire.
	MaxCiphertext = MaxPlaintext + 256

	// MinFragment is the smallest configurable fragment limit.
	MinFragment = 512

	// DefaultDatagramFragment keeps a protected record inside a typical MTU.
	DefaultDatagramFragment = 1200

	MaxStreamSequence   uint64 = 1<<64 - 1
	MaxDatagramSequence uint64 = 1<<48 - 1
)

// Header is a decoded record header. Epoch and Sequence are only carried
// on the wire in datagram mode.
type Header struct {
	Type     ContentType
	Version  uint16
	Epoch    uint16
	Sequence uint64
	Length   int
}

// Marshal encodes the header for mode m.
func (h Header) Marshal(m Mode) []byte {
	b := cryptobyte.NewFixedBuilder(make([]byte, 0, m.HeaderSize()))
	b.AddUint8(uint8(h.Type))
	b.AddUint16(h.Version)
	if m == ModeDatagram {
		b.AddUint16(h.Epoch)
		b.AddUint16(uint16(h.Sequence >> 32))
		b.AddUint32(uint32(h.Sequence))
	}
	b.AddUint16(uint16(h.Length))
	return b.BytesOrPanic()
}

// ParseHeader decodes a header from the start of data.
func ParseHeader(m Mode, data []byte) (Header, error) {
	if len(data) < m.HeaderSize() {
		return Header{}, fmt.Errorf("%w: need %d bytes, have %d", ErrInvalidHeader, m.HeaderSize(), len(data))
	}
	s := cryptobyte.String(data[:m.HeaderSize()])

	var h Header
	var typ uint8
	var length uint16
	s.ReadUint8(&typ)
	s.ReadUint16(&h.Version)
	if m == ModeDatagram {
		var hi uint16
		var lo uint32
		s.ReadUint16(&h.Epoch)
		s.ReadUint16(&hi)
		s.ReadUint32(&lo)
		h.Sequence = uint64(hi)<<32 | uint64(lo)
	}
	s.ReadUint16(&length)

	h.Type = ContentType(typ)
	h.Length = int(length)
	return h, nil
}
