// AES-CCM (NIST 800-38C, RFC 3610) exposed as a cipher.AEAD so it can back
// the AES_128_CCM cipher suite next to the standard library GCM ciphers.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	// AESCCMTagSize is the authentication tag size used by the record layer.
	AESCCMTagSize = 16

	// AESCCMNonceSize is the nonce size used by the record layer. It leaves
	// a 3-byte length field, enough for any record.
	AESCCMNonceSize = 12

	aesBlockSize = 16
)

var (
	ErrAESCCMInvalidKeySize   = errors.New("aesccm: invalid key size, must be 16 or 32 bytes")
	ErrAESCCMInvalidNonceSize = errors.New("aesccm: invalid nonce size")
	ErrAESCCMInvalidTagSize   = errors.New("aesccm: invalid tag size, must be 4, 6, 8, 10, 12, 14, or 16")
	ErrAESCCMAuthFailed       = errors.New("aesccm: message authentication failed")
)

type aesCCM struct {
	block   cipher.Block
	tagSize int // M
	lenSize int // L = 15 - nonceSize
}

// NewAESCCM returns AES-CCM with a 12-byte nonce and a 16-byte tag.
func NewAESCCM(key []byte) (cipher.AEAD, error) {
	return NewAESCCMWithParams(key, AESCCMNonceSize, AESCCMTagSize)
}

// NewAESCCMWithParams returns AES-CCM with explicit nonce and tag sizes.
// nonceSize must be 7..13 and tagSize one of 4, 6, ..., 16.
func NewAESCCMWithParams(key []byte, nonceSize, tagSize int) (cipher.AEAD, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, ErrAESCCMInvalidKeySize
	}
	lenSize := 15 - nonceSize
	if lenSize < 2 || lenSize > 8 {
		return nil, ErrAESCCMInvalidNonceSize
	}
	if tagSize < 4 || tagSize > 16 || tagSize%2 != 0 {
		return nil, ErrAESCCMInvalidTagSize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &aesCCM{block: block, tagSize: tagSize, lenSize: lenSize}, nil
}

func (c *aesCCM) NonceSize() int { return 15 - c.lenSize }

func (c *aesCCM) Overhead() int { return c.tagSize }

func (c *aesCCM) maxLength() uint64 {
	if c.lenSize >= 8 {
		return 1<<63 - 1
	}
	return 1<<(8*c.lenSize) - 1
}

// Seal appends ciphertext||tag to dst. Like the standard library AEADs it
// panics on a nonce of the wrong size.
func (c *aesCCM) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if len(nonce) != c.NonceSize() {
		panic("aesccm: incorrect nonce length given to Seal")
	}
	if uint64(len(plaintext)) > c.maxLength() {
		panic("aesccm: plaintext too large")
	}

	tag := c.computeTag(nonce, plaintext, additionalData)
	ret, out := sliceForAppend(dst, len(plaintext)+c.tagSize)

	c.ctrXOR(nonce, out[:len(plaintext)], plaintext)
	s0 := c.counterBlock(nonce, 0)
	for i := 0; i < c.tagSize; i++ {
		out[len(plaintext)+i] = tag[i] ^ s0[i]
	}
	return ret
}

// Open authenticates and decrypts ciphertext||tag, appending to dst.
func (c *aesCCM) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != c.NonceSize() {
		return nil, ErrAESCCMInvalidNonceSize
	}
	if len(ciphertext) < c.tagSize {
		return nil, ErrAESCCMAuthFailed
	}

	data := ciphertext[:len(ciphertext)-c.tagSize]
	encTag := ciphertext[len(ciphertext)-c.tagSize:]

	plaintext := make([]byte, len(data))
	c.ctrXOR(nonce, plaintext, data)

	expected := c.computeTag(nonce, plaintext, additionalData)
	s0 := c.counterBlock(nonce, 0)
	received := make([]byte, c.tagSize)
	for i := range received {
		received[i] = encTag[i] ^ s0[i]
	}
	if subtle.ConstantTimeCompare(received, expected) != 1 {
		clear(plaintext)
		return nil, ErrAESCCMAuthFailed
	}

	ret, out := sliceForAppend(dst, len(plaintext))
	copy(out, plaintext)
	return ret, nil
}

// computeTag computes the CBC-MAC (NIST 800-38C Section 6.1).
func (c *aesCCM) computeTag(nonce, plaintext, aad []byte) []byte {
	// Flags = Reserved(1) || Adata(1) || M'(3) || L'(3)
	var b0 [aesBlockSize]byte
	if len(aad) > 0 {
		b0[0] |= 1 << 6
	}
	b0[0] |= byte((c.tagSize-2)/2) << 3
	b0[0] |= byte(c.lenSize - 1)
	n := copy(b0[1:], nonce)
	putLength(b0[1+n:], len(plaintext))

	mac := make([]byte, aesBlockSize)
	c.block.Encrypt(mac, b0[:])

	if len(aad) > 0 {
		var hdr []byte
		switch {
		case len(aad) < (1<<16)-(1<<8):
			hdr = binary.BigEndian.AppendUint16(nil, uint16(len(aad)))
		case uint64(len(aad)) < 1<<32:
			hdr = binary.BigEndian.AppendUint32([]byte{0xff, 0xfe}, uint32(len(aad)))
		default:
			hdr = binary.BigEndian.AppendUint64([]byte{0xff, 0xff}, uint64(len(aad)))
		}
		c.cbcMAC(mac, append(hdr, aad...))
	}
	c.cbcMAC(mac, plaintext)

	return mac[:c.tagSize]
}

// cbcMAC absorbs data, zero-padded to the block size, into mac.
func (c *aesCCM) cbcMAC(mac, data []byte) {
	for len(data) > 0 {
		var block [aesBlockSize]byte
		n := copy(block[:], data)
		data = data[n:]
		subtle.XORBytes(mac, mac, block[:])
		c.block.Encrypt(mac, mac)
	}
}

// counterBlock returns E(K, A_i).
func (c *aesCCM) counterBlock(nonce []byte, i uint64) []byte {
	var a [aesBlockSize]byte
	a[0] = byte(c.lenSize - 1)
	copy(a[1:], nonce)
	for j := aesBlockSize - 1; j > aesBlockSize-1-c.lenSize && i > 0; j-- {
		a[j] = byte(i)
		i >>= 8
	}
	s := make([]byte, aesBlockSize)
	c.block.Encrypt(s, a[:])
	return s
}

// ctrXOR encrypts or decrypts src into dst using counters starting at 1.
func (c *aesCCM) ctrXOR(nonce, dst, src []byte) {
	for i, ctr := 0, uint64(1); i < len(src); i, ctr = i+aesBlockSize, ctr+1 {
		ks := c.counterBlock(nonce, ctr)
		end := min(i+aesBlockSize, len(src))
		subtle.XORBytes(dst[i:end], src[i:end], ks)
	}
}

// putLength writes length big-endian into all of dst.
func putLength(dst []byte, length int) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(length)
		length >>= 8
	}
}

// sliceForAppend extends in by n bytes, returning the whole slice and the tail.
func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
