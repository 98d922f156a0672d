package crypto

import (
	"crypto/hmac"
	"hash"
)

// HMAC computes the HMAC of message under key using digest h.
func HMAC(h Hash, key, message []byte) []byte {
	m := hmac.New(h.New, key)
	m.Write(message)
	return m.Sum(nil)
}

// NewHMAC returns a hash.Hash computing HMAC incrementally.
//
// Usage:
//
//	m := crypto.NewHMAC(crypto.HashSHA256, key)
//	m.Write(data1)
//	m.Write(data2)
//	mac := m.Sum(nil)
func NewHMAC(h Hash, key []byte) hash.Hash {
	return hmac.New(h.New, key)
}

// HMACSHA256 computes the HMAC-SHA256 of a message using the given key.
func HMACSHA256(key, message []byte) [SHA256LenBytes]byte {
	var result [SHA256LenBytes]byte
	copy(result[:], HMAC(HashSHA256, key, message))
	return result
}

// HMACEqual compares two MACs for equality in constant time.
// This should be used instead of bytes.Equal to prevent timing attacks.
func HMACEqual(mac1, mac2 []byte) bool {
	return hmac.Equal(mac1, mac2)
}
