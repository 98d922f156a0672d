package crypto

import (
	"encoding/binary"
	"errors"
)

// ErrInvalidIVSize is returned when a static IV is shorter than 8 bytes.
var ErrInvalidIVSize = errors.New("crypto: IV must be at least 8 bytes")

// RecordNonce builds a per-record AEAD nonce: the static IV XORed with the
// big-endian 64-bit record counter, right-aligned. Datagram records pass
// epoch<<48 | seq as the counter.
func RecordNonce(iv []byte, counter uint64) ([]byte, error) {
	if len(iv) < 8 {
		return nil, ErrInvalidIVSize
	}
	nonce := make([]byte, len(iv))
	copy(nonce, iv)

	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	off := len(nonce) - 8
	for i := range ctr {
		nonce[off+i] ^= ctr[i]
	}
	return nonce, nil
}

// DatagramCounter packs a datagram epoch and 48-bit sequence number.
func DatagramCounter(epoch uint16, seq uint64) uint64 {
	return uint64(epoch)<<48 | seq&(1<<48-1)
}
