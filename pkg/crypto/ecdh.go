package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/dh/x448"
	"golang.org/x/crypto/curve25519"
)

// Group identifies an ephemeral key-exchange group. Values are the TLS
// NamedGroup code points.
type Group uint16

// Supported groups.
const (
	GroupP256   Group = 23
	GroupX25519 Group = 29
	GroupX448   Group = 30
)

// P-256 encoding sizes.
const (
	// P256PublicKeySizeBytes is the uncompressed point size: 0x04 || X || Y.
	P256PublicKeySizeBytes = 65

	// P256GroupSizeBytes is the scalar and coordinate size.
	P256GroupSizeBytes = 32
)

var (
	ErrUnsupportedGroup = errors.New("ecdh: unsupported group")
	ErrInvalidKeyShare  = errors.New("ecdh: invalid peer key share")
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupP256:
		return "P-256"
	case GroupX25519:
		return "X25519"
	case GroupX448:
		return "X448"
	default:
		return fmt.Sprintf("Group(%d)", uint16(g))
	}
}

// PublicKeySize returns the encoded public key share length.
func (g Group) PublicKeySize() int {
	switch g {
	case GroupP256:
		return P256PublicKeySizeBytes
	case GroupX25519:
		return curve25519.PointSize
	case GroupX448:
		return x448.Size
	default:
		return 0
	}
}

// Supported reports whether g can be used for key exchange.
func (g Group) Supported() bool {
	return g.PublicKeySize() != 0
}

// KeyShare is one side of an ephemeral key exchange.
type KeyShare struct {
	group   Group
	private []byte
	public  []byte
	p256    *ecdh.PrivateKey
}

// GenerateKeyShare creates an ephemeral key pair for g. A nil rand uses
// crypto/rand.
func GenerateKeyShare(g Group, random io.Reader) (*KeyShare, error) {
	if random == nil {
		random = rand.Reader
	}
	ks := &KeyShare{group: g}
	switch g {
	case GroupP256:
		priv, err := ecdh.P256().GenerateKey(random)
		if err != nil {
			return nil, fmt.Errorf("ecdh: generate P-256 key: %w", err)
		}
		ks.p256 = priv
		ks.public = priv.PublicKey().Bytes()
	case GroupX25519:
		ks.private = make([]byte, curve25519.ScalarSize)
		if _, err := io.ReadFull(random, ks.private); err != nil {
			return nil, fmt.Errorf("ecdh: generate X25519 key: %w", err)
		}
		pub, err := curve25519.X25519(ks.private, curve25519.Basepoint)
		if err != nil {
			return nil, fmt.Errorf("ecdh: X25519 public key: %w", err)
		}
		ks.public = pub
	case GroupX448:
		var secret, public x448.Key
		if _, err := io.ReadFull(random, secret[:]); err != nil {
			return nil, fmt.Errorf("ecdh: generate X448 key: %w", err)
		}
		x448.KeyGen(&public, &secret)
		ks.private = secret[:]
		ks.public = public[:]
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGroup, g)
	}
	return ks, nil
}

// NewKeyShare rebuilds a key share from a private scalar.
func NewKeyShare(g Group, private []byte) (*KeyShare, error) {
	ks := &KeyShare{group: g}
	switch g {
	case GroupP256:
		priv, err := ecdh.P256().NewPrivateKey(private)
		if err != nil {
			return nil, fmt.Errorf("ecdh: invalid P-256 private key: %w", err)
		}
		ks.p256 = priv
		ks.public = priv.PublicKey().Bytes()
	case GroupX25519:
		if len(private) != curve25519.ScalarSize {
			return nil, fmt.Errorf("ecdh: X25519 private key must be %d bytes", curve25519.ScalarSize)
		}
		pub, err := curve25519.X25519(private, curve25519.Basepoint)
		if err != nil {
			return nil, err
		}
		ks.private = append([]byte(nil), private...)
		ks.public = pub
	case GroupX448:
		if len(private) != x448.Size {
			return nil, fmt.Errorf("ecdh: X448 private key must be %d bytes", x448.Size)
		}
		var secret, public x448.Key
		copy(secret[:], private)
		x448.KeyGen(&public, &secret)
		ks.private = secret[:]
		ks.public = public[:]
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGroup, g)
	}
	return ks, nil
}

// Group returns the key share's group.
func (ks *KeyShare) Group() Group { return ks.group }

// PublicKey returns the encoded public share sent to the peer.
func (ks *KeyShare) PublicKey() []byte { return ks.public }

// SharedSecret combines the local private key with the peer's public share.
func (ks *KeyShare) SharedSecret(peer []byte) ([]byte, error) {
	if len(peer) != ks.group.PublicKeySize() {
		return nil, fmt.Errorf("%w: %s share is %d bytes, want %d", ErrInvalidKeyShare, ks.group, len(peer), ks.group.PublicKeySize())
	}
	switch ks.group {
	case GroupP256:
		if ks.p256 == nil {
			return nil, ErrInvalidKeyShare
		}
		pub, err := ecdh.P256().NewPublicKey(peer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyShare, err)
		}
		return ks.p256.ECDH(pub)
	case GroupX25519:
		secret, err := curve25519.X25519(ks.private, peer)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKeyShare, err)
		}
		return secret, nil
	case GroupX448:
		var secret, public, shared x448.Key
		copy(secret[:], ks.private)
		copy(public[:], peer)
		ok := x448.Shared(&shared, &secret, &public)
		clear(secret[:])
		if !ok {
			return nil, fmt.Errorf("%w: low-order X448 point", ErrInvalidKeyShare)
		}
		return shared[:], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGroup, ks.group)
	}
}

// Zeroize clears the private scalar. The share is unusable afterwards.
func (ks *KeyShare) Zeroize() {
	if ks == nil {
		return
	}
	if ks.private != nil {
		var zero = make([]byte, len(ks.private))
		subtle.ConstantTimeCopy(1, ks.private, zero)
		ks.private = nil
	}
	ks.p256 = nil
}
