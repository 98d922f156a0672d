package crypto

import (
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"
)

// LabelPrefix is prepended to every HKDF-Expand-Label label.
const LabelPrefix = "tinytls "

// HKDFExtract performs the HKDF-Extract step (RFC 5869 Section 2.2).
// A nil salt is treated as HashLen zero bytes.
func HKDFExtract(h Hash, inputKey, salt []byte) []byte {
	return hkdf.Extract(h.New, inputKey, salt)
}

// HKDFExpand performs the HKDF-Expand step (RFC 5869 Section 2.3).
func HKDFExpand(h Hash, prk, info []byte, length int) ([]byte, error) {
	reader := hkdf.Expand(h.New, prk, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// HKDFExpandLabel expands secret with a structured info block:
//
//	uint16 length
//	opaque label<7..255>   = LabelPrefix + label
//	opaque context<0..255>
//
// The layout mirrors the TLS 1.3 HkdfLabel (RFC 8446 Section 7.1).
func HKDFExpandLabel(h Hash, secret []byte, label string, context []byte, length int) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(uint16(length))
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(LabelPrefix))
		b.AddBytes([]byte(label))
	})
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	info, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("crypto: building label %q: %w", label, err)
	}
	return HKDFExpand(h, secret, info, length)
}

// HKDFSHA256 derives key material using HKDF-SHA256 (extract then expand).
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(HashSHA256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
