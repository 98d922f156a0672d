// Package crypto provides the primitives consumed by the record layer and the
// handshake: SHA-2 digests, HMAC, HKDF, the AEAD ciphers of the supported
// cipher suites and the ephemeral key-exchange groups.
package crypto

import (
	stdcrypto "crypto"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
)

// Hash identifies a SHA-2 digest used by a cipher suite or a signature.
type Hash uint8

// Supported digests.
const (
	HashSHA256 Hash = iota + 1
	HashSHA384
	HashSHA512
)

// SHA-256 constants.
const (
	// SHA256LenBits is the SHA-256 output length in bits.
	SHA256LenBits = 256

	// SHA256LenBytes is the SHA-256 output length in bytes.
	SHA256LenBytes = 32
)

// ErrUnknownHash is returned for digests outside the supported set.
var ErrUnknownHash = errors.New("crypto: unknown hash")

// String returns the conventional name of the digest.
func (h Hash) String() string {
	switch h {
	case HashSHA256:
		return "SHA-256"
	case HashSHA384:
		return "SHA-384"
	case HashSHA512:
		return "SHA-512"
	default:
		return fmt.Sprintf("Hash(%d)", uint8(h))
	}
}

// Size returns the digest length in bytes, or 0 for an unknown digest.
func (h Hash) Size() int {
	switch h {
	case HashSHA256:
		return 32
	case HashSHA384:
		return 48
	case HashSHA512:
		return 64
	default:
		return 0
	}
}

// Available reports whether h is one of the supported digests.
func (h Hash) Available() bool {
	return h.Size() != 0
}

// New returns a fresh hash.Hash for h. It panics on an unknown digest.
func (h Hash) New() hash.Hash {
	switch h {
	case HashSHA256:
		return sha256.New()
	case HashSHA384:
		return sha512.New384()
	case HashSHA512:
		return sha512.New()
	default:
		panic("crypto: New called on unknown hash " + h.String())
	}
}

// Sum computes the digest of message in one call.
func (h Hash) Sum(message []byte) []byte {
	d := h.New()
	d.Write(message)
	return d.Sum(nil)
}

// Standard returns the crypto.Hash identifier of the digest, or zero for
// an unknown one.
func (h Hash) Standard() stdcrypto.Hash {
	switch h {
	case HashSHA256:
		return stdcrypto.SHA256
	case HashSHA384:
		return stdcrypto.SHA384
	case HashSHA512:
		return stdcrypto.SHA512
	default:
		return 0
	}
}

// HashForDigestSize maps a digest length to the SHA-2 function producing it.
// 32 bytes selects SHA-256, 48 SHA-384 and 64 SHA-512.
func HashForDigestSize(n int) (Hash, error) {
	switch n {
	case 32:
		return HashSHA256, nil
	case 48:
		return HashSHA384, nil
	case 64:
		return HashSHA512, nil
	default:
		return 0, fmt.Errorf("%w: no SHA-2 digest of %d bytes", ErrUnknownHash, n)
	}
}

// SHA256 computes the SHA-256 hash of a message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}
