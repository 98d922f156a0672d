package handshake

import (
	"fmt"

	"github.com/backkem/tinytls/pkg/crypto"
	"golang.org/x/crypto/cryptobyte"
)

// Message framing sizes.
const (
	// HeaderSize is type(1) | length(3) | message_seq(2).
	HeaderSize = 6

	// DatagramHeaderSize adds fragment_offset(3) | fragment_length(3).
	DatagramHeaderSize = 12

	// MaxMessageSize bounds a reassembled handshake message body.
	MaxMessageSize = 1 << 16

	// RandomSize is the length of the hello random values.
	RandomSize = 32
)

// Message is a framed handshake message body.
type Message interface {
	Type() MessageType
	Marshal() ([]byte, error)
	Unmarshal(body []byte) error
}

// frame encodes a message in its unfragmented form. This is the form that
// enters the transcript in both modes.
func frame(t MessageType, seq uint16, body []byte) []byte {
	out := make([]byte, 0, HeaderSize+len(body))
	out = append(out, byte(t), byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	out = append(out, byte(seq>>8), byte(seq))
	return append(out, body...)
}

// fragment is one piece of a datagram handshake message.
type fragment struct {
	typ    MessageType
	length int
	seq    uint16
	offset int
	data   []byte
}

func (f fragment) marshal() []byte {
	var b cryptobyte.Builder
	b.AddUint8(uint8(f.typ))
	addUint24(&b, f.length)
	b.AddUint16(f.seq)
	addUint24(&b, f.offset)
	addUint24(&b, len(f.data))
	b.AddBytes(f.data)
	return b.BytesOrPanic()
}

// parseFragment decodes one fragment from the front of data and returns
// the remaining bytes.
func parseFragment(data []byte) (fragment, []byte, error) {
	s := cryptobyte.String(data)
	var (
		typ                     uint8
		length, offset, fraglen uint32
		f                       fragment
	)
	if !s.ReadUint8(&typ) || !s.ReadUint24(&length) || !s.ReadUint16(&f.seq) ||
		!s.ReadUint24(&offset) || !s.ReadUint24(&fraglen) || !s.ReadBytes(&f.data, int(fraglen)) {
		return fragment{}, nil, fmt.Errorf("%w: truncated fragment", ErrDecode)
	}
	f.typ, f.length, f.offset = MessageType(typ), int(length), int(offset)
	if f.length > MaxMessageSize {
		return fragment{}, nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, f.length)
	}
	if f.offset+len(f.data) > f.length {
		return fragment{}, nil, fmt.Errorf("%w: fragment %d+%d beyond length %d", ErrDecode, f.offset, len(f.data), f.length)
	}
	return f, []byte(s), nil
}

// splitFragments cuts a message into datagram fragments whose encoding
// fits in maxRecord bytes.
func splitFragments(t MessageType, seq uint16, body []byte, maxRecord int) [][]byte {
	room := maxRecord - DatagramHeaderSize
	var out [][]byte
	off := 0
	for {
		n := min(len(body)-off, room)
		out = append(out, fragment{typ: t, length: len(body), seq: seq, offset: off, data: body[off : off+n]}.marshal())
		off += n
		if off >= len(body) {
			return out
		}
	}
}

func addUint24(b *cryptobyte.Builder, v int) {
	b.AddUint24(uint32(v))
}

// ClientHello opens the handshake.
type ClientHello struct {
	Version       uint16
	Random        [RandomSize]byte
	CipherSuites  []CipherSuite
	Groups        []crypto.Group
	KeyShareGroup crypto.Group
	KeyShare      []byte
}

// Type implements Message.
func (m *ClientHello) Type() MessageType { return TypeClientHello }

// Marshal implements Message.
func (m *ClientHello) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(m.Version)
	b.AddBytes(m.Random[:])
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, cs := range m.CipherSuites {
			b.AddUint16(uint16(cs))
		}
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, g := range m.Groups {
			b.AddUint16(uint16(g))
		}
	})
	b.AddUint16(uint16(m.KeyShareGroup))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.KeyShare)
	})
	return b.Bytes()
}

// Unmarshal implements Message.
func (m *ClientHello) Unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var (
		suites, groups, share cryptobyte.String
		random                []byte
		group                 uint16
	)
	if !s.ReadUint16(&m.Version) || !s.ReadBytes(&random, RandomSize) ||
		!s.ReadUint16LengthPrefixed(&suites) || !s.ReadUint16LengthPrefixed(&groups) ||
		!s.ReadUint16(&group) || !s.ReadUint16LengthPrefixed(&share) || !s.Empty() {
		return fmt.Errorf("%w: ClientHello", ErrDecode)
	}
	copy(m.Random[:], random)
	m.KeyShareGroup = crypto.Group(group)
	m.KeyShare = append([]byte(nil), share...)

	m.CipherSuites = m.CipherSuites[:0]
	for !suites.Empty() {
		var v uint16
		if !suites.ReadUint16(&v) {
			return fmt.Errorf("%w: ClientHello cipher suites", ErrDecode)
		}
		m.CipherSuites = append(m.CipherSuites, CipherSuite(v))
	}
	m.Groups = m.Groups[:0]
	for !groups.Empty() {
		var v uint16
		if !groups.ReadUint16(&v) {
			return fmt.Errorf("%w: ClientHello groups", ErrDecode)
		}
		m.Groups = append(m.Groups, crypto.Group(v))
	}
	if len(m.CipherSuites) == 0 || len(m.Groups) == 0 {
		return fmt.Errorf("%w: ClientHello without suites or groups", ErrDecode)
	}
	return nil
}

// ServerHello answers the ClientHello with the negotiated parameters.
type ServerHello struct {
	Version     uint16
	Random      [RandomSize]byte
	CipherSuite CipherSuite
	Group       crypto.Group
	KeyShare    []byte
}

// Type implements Message.
func (m *ServerHello) Type() MessageType { return TypeServerHello }

// Marshal implements Message.
func (m *ServerHello) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(m.Version)
	b.AddBytes(m.Random[:])
	b.AddUint16(uint16(m.CipherSuite))
	b.AddUint16(uint16(m.Group))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.KeyShare)
	})
	return b.Bytes()
}

// Unmarshal implements Message.
func (m *ServerHello) Unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var (
		random       []byte
		suite, group uint16
		share        cryptobyte.String
	)
	if !s.ReadUint16(&m.Version) || !s.ReadBytes(&random, RandomSize) ||
		!s.ReadUint16(&suite) || !s.ReadUint16(&group) ||
		!s.ReadUint16LengthPrefixed(&share) || !s.Empty() {
		return fmt.Errorf("%w: ServerHello", ErrDecode)
	}
	copy(m.Random[:], random)
	m.CipherSuite = CipherSuite(suite)
	m.Group = crypto.Group(group)
	m.KeyShare = append([]byte(nil), share...)
	return nil
}

// Certificate carries a DER chain, leaf first. A client without an
// identity answers a CertificateRequest with an empty chain.
type Certificate struct {
	Chain [][]byte
}

// Type implements Message.
func (m *Certificate) Type() MessageType { return TypeCertificate }

// Marshal implements Message.
func (m *Certificate) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, der := range m.Chain {
			b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddBytes(der)
			})
		}
	})
	return b.Bytes()
}

// Unmarshal implements Message.
func (m *Certificate) Unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var list cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&list) || !s.Empty() {
		return fmt.Errorf("%w: Certificate", ErrDecode)
	}
	m.Chain = nil
	for !list.Empty() {
		var der cryptobyte.String
		if !list.ReadUint24LengthPrefixed(&der) || der.Empty() {
			return fmt.Errorf("%w: Certificate entry", ErrDecode)
		}
		m.Chain = append(m.Chain, append([]byte(nil), der...))
	}
	return nil
}

// CertificateRequest asks the client to authenticate.
type CertificateRequest struct {
	Schemes []SignatureScheme
}

// Type implements Message.
func (m *CertificateRequest) Type() MessageType { return TypeCertificateRequest }

// Marshal implements Message.
func (m *CertificateRequest) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, sc := range m.Schemes {
			b.AddUint16(uint16(sc))
		}
	})
	return b.Bytes()
}

// Unmarshal implements Message.
func (m *CertificateRequest) Unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var list cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&list) || !s.Empty() {
		return fmt.Errorf("%w: CertificateRequest", ErrDecode)
	}
	m.Schemes = nil
	for !list.Empty() {
		var v uint16
		if !list.ReadUint16(&v) {
			return fmt.Errorf("%w: CertificateRequest schemes", ErrDecode)
		}
		m.Schemes = append(m.Schemes, SignatureScheme(v))
	}
	return nil
}

// CertificateVerify proves possession of the certificate key.
type CertificateVerify struct {
	Scheme    SignatureScheme
	Signature []byte
}

// Type implements Message.
func (m *CertificateVerify) Type() MessageType { return TypeCertificateVerify }

// Marshal implements Message.
func (m *CertificateVerify) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(uint16(m.Scheme))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.Signature)
	})
	return b.Bytes()
}

// Unmarshal implements Message.
func (m *CertificateVerify) Unmarshal(body []byte) error {
	s := cryptobyte.String(body)
	var (
		scheme uint16
		sig    cryptobyte.String
	)
	if !s.ReadUint16(&scheme) || !s.ReadUint16LengthPrefixed(&sig) || !s.Empty() {
		return fmt.Errorf("%w: CertificateVerify", ErrDecode)
	}
	m.Scheme = SignatureScheme(scheme)
	m.Signature = append([]byte(nil), sig...)
	return nil
}

// Finished carries the transcript MAC.
type Finished struct {
	VerifyData []byte
}

// Type implements Message.
func (m *Finished) Type() MessageType { return TypeFinished }

// Marshal implements Message.
func (m *Finished) Marshal() ([]byte, error) {
	return append([]byte(nil), m.VerifyData...), nil
}

// Unmarshal implements Message.
func (m *Finished) Unmarshal(body []byte) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty Finished", ErrDecode)
	}
	m.VerifyData = append([]byte(nil), body...)
	return nil
}
