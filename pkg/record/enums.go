package record

import "fmt"

// ContentType is the record content type.
type ContentType uint8

// Content types.
const (
	ContentChangeCipherSpec ContentType = 20 // reserved, never sent
	ContentAlert            ContentType = 21
	ContentHandshake        ContentType = 22
	ContentApplicationData  ContentType = 23
)

// String returns the content type name.
func (t ContentType) String() string {
	switch t {
	case ContentChangeCipherSpec:
		return "ChangeCipherSpec"
	case ContentAlert:
		return "Alert"
	case ContentHandshake:
		return "Handshake"
	case ContentApplicationData:
		return "ApplicationData"
	default:
		return fmt.Sprintf("ContentType(%d)", uint8(t))
	}
}

// IsValid reports whether t may appear on the wire.
func (t ContentType) IsValid() bool {
	return t == ContentAlert || t == ContentHandshake || t == ContentApplicationData
}

// Mode selects stream (TLS) or datagram (DTLS) framing.
type Mode uint8

// Framing modes.
const (
	ModeStream Mode = iota
	ModeDatagram
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeDatagram:
		return "datagram"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// HeaderSize returns the record header length for the mode.
func (m Mode) HeaderSize() int {
	if m == ModeDatagram {
		return DatagramHeaderSize
	}
	return StreamHeaderSize
}

// DefaultVersion returns the record version written in this mode.
func (m Mode) DefaultVersion() uint16 {
	if m == ModeDatagram {
		return VersionDTLS
	}
	return VersionTLS
}

// DefaultMaxFragment returns the default plaintext fragment limit.
func (m Mode) DefaultMaxFragment() int {
	if m == ModeDatagram {
		return DefaultDatagramFragment
	}
	return MaxPlaintext
}

// MaxSequence returns the first sequence number that may not be used.
func (m Mode) MaxSequence() uint64 {
	if m == ModeDatagram {
		return MaxDatagramSequence
	}
	return MaxStreamSequence
}

// Protocol versions carried in the record header.
const (
	VersionTLS  uint16 = 0x0304
	VersionDTLS uint16 = 0xfefc
)
