package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// AEAD identifies a record protection algorithm.
type AEAD uint8

// Supported AEAD algorithms.
const (
	AEADAES128GCM AEAD = iota + 1
	AEADAES256GCM
	AEADChaCha20Poly1305
	AEADAES128CCM
)

// IVSize is the per-direction static IV length for every supported AEAD.
const IVSize = 12

// ErrInvalidAEADKey is returned when a key does not match the algorithm.
var ErrInvalidAEADKey = errors.New("crypto: invalid AEAD key length")

// String returns the algorithm name.
func (a AEAD) String() string {
	switch a {
	case AEADAES128GCM:
		return "AES-128-GCM"
	case AEADAES256GCM:
		return "AES-256-GCM"
	case AEADChaCha20Poly1305:
		return "CHACHA20-POLY1305"
	case AEADAES128CCM:
		return "AES-128-CCM"
	default:
		return fmt.Sprintf("AEAD(%d)", uint8(a))
	}
}

// KeySize returns the key length in bytes.
func (a AEAD) KeySize() int {
	switch a {
	case AEADAES128GCM, AEADAES128CCM:
		return 16
	case AEADAES256GCM, AEADChaCha20Poly1305:
		return 32
	default:
		return 0
	}
}

// New returns a cipher.AEAD keyed with key. All algorithms use a 12-byte
// nonce and a 16-byte tag.
func (a AEAD) New(key []byte) (cipher.AEAD, error) {
	if a.KeySize() == 0 || len(key) != a.KeySize() {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidAEADKey, a, a.KeySize(), len(key))
	}
	switch a {
	case AEADAES128GCM, AEADAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AEADChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return NewAESCCM(key)
	}
}
