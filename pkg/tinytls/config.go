package tinytls

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/backkem/tinytls/pkg/credentials"
	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/handshake"
	"github.com/backkem/tinytls/pkg/record"
	"github.com/backkem/tinytls/pkg/transport"
	"github.com/pion/logging"
)

// Protocol selects stream (TLS) or datagram (DTLS) framing.
type Protocol int

const (
	ProtocolTLS Protocol = iota
	ProtocolDTLS
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolTLS:
		return "tls"
	case ProtocolDTLS:
		return "dtls"
	default:
		return fmt.Sprintf("Protocol(%d)", int(p))
	}
}

func (p Protocol) mode() record.Mode {
	if p == ProtocolDTLS {
		return record.ModeDatagram
	}
	return record.ModeStream
}

// Re-exported handshake types.
type (
	Role        = handshake.Role
	State       = handshake.State
	CipherSuite = handshake.CipherSuite
	VerifyMode  = handshake.VerifyMode
)

const (
	RoleClient = handshake.RoleClient
	RoleServer = handshake.RoleServer

	VerifyNone = handshake.VerifyNone
	VerifyPeer = handshake.VerifyPeer
)

// TransportFactory opens the transport of a new session.
type TransportFactory func() (transport.Transport, error)

// CryptoDevice offloads cryptographic operations. When one is set on the
// Config, handshake transcript hashing goes through it. A device returns
// ErrCryptoUnavailable for requests it leaves to software.
type CryptoDevice interface {
	Hash(alg crypto.Hash, data []byte) ([]byte, error)
}

// Config configures a Context. The zero value is a TLS client
// configuration without peer verification.
type Config struct {
	// Protocol selects TLS or DTLS.
	Protocol Protocol

	// Version overrides the protocol version.
	// Default: 0x0304 for TLS, 0xfefc for DTLS.
	Version uint16

	// Files loads credentials from disk. Mutually exclusive with Buffers.
	Files credentials.Files

	// Buffers loads credentials from DER or PEM data in memory.
	// Mutually exclusive with Files.
	Buffers credentials.Buffers

	// Verify selects peer certificate verification. VerifyPeer requires
	// trusted roots.
	Verify VerifyMode

	// FailIfNoPeerCert makes servers reject clients without a certificate.
	FailIfNoPeerCert bool

	// CipherSuites in preference order.
	// Default: handshake.DefaultCipherSuites
	CipherSuites []CipherSuite

	// Groups in preference order. Clients send a key share for the first.
	// Default: handshake.DefaultGroups
	Groups []crypto.Group

	// MaxFragment limits the plaintext carried per record.
	// Default: 16384 for TLS, 1200 for DTLS. Minimum 512.
	MaxFragment int

	// CryptoDevice offloads transcript hashing.
	CryptoDevice CryptoDevice

	// Transport opens the transport of each new session. Sessions can
	// also be given one with Session.SetTransport.
	Transport TransportFactory

	// Rand is the randomness source. Default: crypto/rand.Reader.
	Rand io.Reader

	// Now returns the time used for certificate validity.
	// Default: time.Now
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// WithVerifyPeer verifies the peer chain and, on servers, rejects clients
// that present no certificate.
func (c Config) WithVerifyPeer() Config {
	c.Verify = VerifyPeer
	c.FailIfNoPeerCert = true
	return c
}

// WithCertificateFiles sets the local certificate chain and key paths.
func (c Config) WithCertificateFiles(certFile, keyFile string) Config {
	c.Files.Certificate = certFile
	c.Files.PrivateKey = keyFile
	return c
}

// WithRootCAFiles adds trusted root certificate paths.
func (c Config) WithRootCAFiles(paths ...string) Config {
	c.Files.RootCAs = append(append([]string(nil), c.Files.RootCAs...), paths...)
	return c
}

// WithCertificateBuffers sets the local certificate chain and key data.
func (c Config) WithCertificateBuffers(cert, key []byte) Config {
	c.Buffers.Certificate = cert
	c.Buffers.PrivateKey = key
	return c
}

// WithRootCABuffers adds trusted root certificate data.
func (c Config) WithRootCABuffers(cas ...[]byte) Config {
	c.Buffers.RootCAs = append(append([][]byte(nil), c.Buffers.RootCAs...), cas...)
	return c
}

// WithCipherSuites sets the suite preference order.
func (c Config) WithCipherSuites(suites ...CipherSuite) Config {
	c.CipherSuites = suites
	return c
}

// WithGroups sets the group preference order.
func (c Config) WithGroups(groups ...crypto.Group) Config {
	c.Groups = groups
	return c
}

// WithMaxFragment sets the maximum fragment length.
func (c Config) WithMaxFragment(n int) Config {
	c.MaxFragment = n
	return c
}

// WithCryptoDevice registers a crypto device.
func (c Config) WithCryptoDevice(d CryptoDevice) Config {
	c.CryptoDevice = d
	return c
}

// WithTransport sets the default transport factory.
func (c Config) WithTransport(f TransportFactory) Config {
	c.Transport = f
	return c
}

// WithLoggerFactory sets the logger factory.
func (c Config) WithLoggerFactory(f logging.LoggerFactory) Config {
	c.LoggerFactory = f
	return c
}

func (c Config) withDefaults() Config {
	mode := c.Protocol.mode()
	if c.Version == 0 {
		c.Version = mode.DefaultVersion()
	}
	// The context keeps private copies of both lists.
	if len(c.CipherSuites) == 0 {
		c.CipherSuites = slices.Clone(handshake.DefaultCipherSuites)
	} else {
		c.CipherSuites = slices.Clone(c.CipherSuites)
	}
	if len(c.Groups) == 0 {
		c.Groups = slices.Clone(handshake.DefaultGroups)
	} else {
		c.Groups = slices.Clone(c.Groups)
	}
	if c.MaxFragment == 0 {
		c.MaxFragment = mode.DefaultMaxFragment()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Validate checks the configuration without loading credentials.
func (c Config) Validate() error {
	if c.Protocol != ProtocolTLS && c.Protocol != ProtocolDTLS {
		return fmt.Errorf("%w: %s", ErrInvalidProtocol, c.Protocol)
	}
	for _, cs := range c.CipherSuites {
		if !cs.Supported() {
			return fmt.Errorf("%w: %s", ErrUnsupportedSuite, cs)
		}
	}
	for _, g := range c.Groups {
		if !g.Supported() {
			return fmt.Errorf("%w: %s", ErrUnsupportedGroup, g)
		}
	}
	if c.MaxFragment != 0 && (c.MaxFragment < record.MinFragment || c.MaxFragment > record.MaxPlaintext) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidFragment, c.MaxFragment, record.MinFragment, record.MaxPlaintext)
	}
	if !c.Files.IsZero() && !c.Buffers.IsZero() {
		return credentials.ErrMixedCredentialSources
	}
	return nil
}
