package record

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/backkem/tinytls/pkg/crypto"
)

// Protection holds the AEAD key and static IV for one direction of one
// epoch.
type Protection struct {
	suite crypto.AEAD
	aead  cipher.AEAD
	key   []byte
	iv    []byte
}

// NewProtection keys an AEAD. The key and IV are copied.
func NewProtection(suite crypto.AEAD, key, iv []byte) (*Protection, error) {
	if len(iv) != crypto.IVSize {
		return nil, fmt.Errorf("%w: iv of %d bytes", ErrInvalidKeyLength, len(iv))
	}
	aead, err := suite.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyLength, err)
	}
	return &Protection{
		suite: suite,
		aead:  aead,
		key:   append([]byte(nil), key...),
		iv:    append([]byte(nil), iv...),
	}, nil
}

// Suite returns the AEAD algorithm.
func (p *Protection) Suite() crypto.AEAD {
	return p.suite
}

// Overhead returns the tag length.
func (p *Protection) Overhead() int {
	if p.aead == nil {
		return 0
	}
	return p.aead.Overhead()
}

// Seal encrypts plaintext for the record counter and appends it to dst.
func (p *Protection) Seal(dst []byte, counter uint64, aad, plaintext []byte) ([]byte, error) {
	if p.aead == nil {
		return nil, ErrKeysZeroized
	}
	nonce, err := crypto.RecordNonce(p.iv, counter)
	if err != nil {
		return nil, err
	}
	return p.aead.Seal(dst, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext. Any failure is reported as
// ErrBadRecordMAC.
func (p *Protection) Open(dst []byte, counter uint64, aad, ciphertext []byte) ([]byte, error) {
	if p.aead == nil {
		return nil, ErrKeysZeroized
	}
	nonce, err := crypto.RecordNonce(p.iv, counter)
	if err != nil {
		return nil, err
	}
	out, err := p.aead.Open(dst, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrBadRecordMAC
	}
	return out, nil
}

// Zeroize clears the key material. The Protection is unusable afterwards.
func (p *Protection) Zeroize() {
	if p == nil {
		return
	}
	clear(p.key)
	clear(p.iv)
	p.aead = nil
}

// Zeroized reports whether Zeroize was called.
func (p *Protection) Zeroized() bool {
	return p.aead == nil
}

func isErr(err, target error) bool {
	return errors.Is(err, target)
}
