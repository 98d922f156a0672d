package handshake

import (
	"fmt"

	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/crypto/detecdsa"
)

// MessageType identifies a handshake message.
type MessageType uint8

// Handshake message types.
const (
	TypeClientHello        MessageType = 1
	TypeServerHello        MessageType = 2
	TypeCertificate        MessageType = 11
	TypeCertificateRequest MessageType = 13
	TypeCertificateVerify  MessageType = 15
	TypeFinished           MessageType = 20
)

// String returns the message name.
func (t MessageType) String() string {
	switch t {
	case TypeClientHello:
		return "ClientHello"
	case TypeServerHello:
		return "ServerHello"
	case TypeCertificate:
		return "Certificate"
	case TypeCertificateRequest:
		return "CertificateRequest"
	case TypeCertificateVerify:
		return "CertificateVerify"
	case TypeFinished:
		return "Finished"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Role is the handshake role.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "unknown"
	}
}

// State is the handshake state. The client and server walk disjoint
// paths that end in StateEstablished.
type State int

const (
	StateInit State = iota

	// Client states.
	StateSentHello
	StateReceivedServerHello
	StateVerifiedCert
	StateSentFinished

	// Server states.
	StateReceivedHello
	StateSentServerHelloCert
	StateReceivedClientFinished

	StateEstablished
	StateFailed
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSentHello:
		return "SENT_HELLO"
	case StateReceivedServerHello:
		return "RECEIVED_SERVER_HELLO"
	case StateVerifiedCert:
		return "VERIFIED_CERT"
	case StateSentFinished:
		return "SENT_FINISHED"
	case StateReceivedHello:
		return "RECEIVED_HELLO"
	case StateSentServerHelloCert:
		return "SENT_SERVER_HELLO_CERT"
	case StateReceivedClientFinished:
		return "RECEIVED_CLIENT_FINISHED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further handshake progress is possible.
func (s State) Terminal() bool {
	return s == StateEstablished || s == StateFailed || s == StateClosed
}

// VerifyMode selects whether the peer's certificate chain is checked.
type VerifyMode int

const (
	// VerifyNone accepts any peer certificate. The CertificateVerify
	// signature is still checked against the presented key.
	VerifyNone VerifyMode = iota

	// VerifyPeer checks the peer chain against the trusted roots. A server
	// in this mode requests a client certificate.
	VerifyPeer
)

// String returns the mode name.
func (v VerifyMode) String() string {
	if v == VerifyPeer {
		return "peer"
	}
	return "none"
}

// CipherSuite identifies the record AEAD and handshake hash.
type CipherSuite uint16

// Supported cipher suites.
const (
	TLS_AES_128_GCM_SHA256       CipherSuite = 0x1301
	TLS_AES_256_GCM_SHA384       CipherSuite = 0x1302
	TLS_CHACHA20_POLY1305_SHA256 CipherSuite = 0x1303
	TLS_AES_128_CCM_SHA256       CipherSuite = 0x1304
)

// DefaultCipherSuites is the preference order used when none is configured.
var DefaultCipherSuites = []CipherSuite{
	TLS_AES_128_GCM_SHA256,
	TLS_CHACHA20_POLY1305_SHA256,
	TLS_AES_256_GCM_SHA384,
	TLS_AES_128_CCM_SHA256,
}

// DefaultGroups is the key exchange preference order used when none is
// configured. The first entry is the group of the client's key share.
var DefaultGroups = []crypto.Group{crypto.GroupX25519, crypto.GroupP256, crypto.GroupX448}

// String returns the IANA suite name.
func (c CipherSuite) String() string {
	switch c {
	case TLS_AES_128_GCM_SHA256:
		return "TLS_AES_128_GCM_SHA256"
	case TLS_AES_256_GCM_SHA384:
		return "TLS_AES_256_GCM_SHA384"
	case TLS_CHACHA20_POLY1305_SHA256:
		return "TLS_CHACHA20_POLY1305_SHA256"
	case TLS_AES_128_CCM_SHA256:
		return "TLS_AES_128_CCM_SHA256"
	default:
		return fmt.Sprintf("CipherSuite(%#04x)", uint16(c))
	}
}

// Supported reports whether the suite is implemented.
func (c CipherSuite) Supported() bool {
	return c.AEAD() != 0
}

// AEAD returns the record protection algorithm.
func (c CipherSuite) AEAD() crypto.AEAD {
	switch c {
	case TLS_AES_128_GCM_SHA256:
		return crypto.AEADAES128GCM
	case TLS_AES_256_GCM_SHA384:
		return crypto.AEADAES256GCM
	case TLS_CHACHA20_POLY1305_SHA256:
		return crypto.AEADChaCha20Poly1305
	case TLS_AES_128_CCM_SHA256:
		return crypto.AEADAES128CCM
	default:
		return 0
	}
}

// Hash returns the transcript and key schedule hash.
func (c CipherSuite) Hash() crypto.Hash {
	if c == TLS_AES_256_GCM_SHA384 {
		return crypto.HashSHA384
	}
	return crypto.HashSHA256
}

// SignatureScheme identifies a CertificateVerify algorithm.
type SignatureScheme uint16

// Supported signature schemes.
const (
	ECDSAWithP256AndSHA256 SignatureScheme = 0x0403
	ECDSAWithP384AndSHA384 SignatureScheme = 0x0503
	ECDSAWithP521AndSHA512 SignatureScheme = 0x0603
)

// SupportedSignatureSchemes lists every scheme this package verifies.
var SupportedSignatureSchemes = []SignatureScheme{
	ECDSAWithP256AndSHA256,
	ECDSAWithP384AndSHA384,
	ECDSAWithP521AndSHA512,
}

// SchemeForCurve returns the scheme that signs with key curve c.
func SchemeForCurve(c detecdsa.Curve) SignatureScheme {
	switch c {
	case detecdsa.CurveP384:
		return ECDSAWithP384AndSHA384
	case detecdsa.CurveP521:
		return ECDSAWithP521AndSHA512
	default:
		return ECDSAWithP256AndSHA256
	}
}

// Curve returns the key curve of the scheme, or 0 if unknown.
func (s SignatureScheme) Curve() detecdsa.Curve {
	switch s {
	case ECDSAWithP256AndSHA256:
		return detecdsa.CurveP256
	case ECDSAWithP384AndSHA384:
		return detecdsa.CurveP384
	case ECDSAWithP521AndSHA512:
		return detecdsa.CurveP521
	default:
		return 0
	}
}

// String returns the scheme name.
func (s SignatureScheme) String() string {
	switch s {
	case ECDSAWithP256AndSHA256:
		return "ecdsa_secp256r1_sha256"
	case ECDSAWithP384AndSHA384:
		return "ecdsa_secp384r1_sha384"
	case ECDSAWithP521AndSHA512:
		return "ecdsa_secp521r1_sha512"
	default:
		return fmt.Sprintf("SignatureScheme(%#04x)", uint16(s))
	}
}
