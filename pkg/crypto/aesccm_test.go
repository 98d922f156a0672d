package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// RFC 3610 test vectors from Section 8.
// https://datatracker.ietf.org/doc/html/rfc3610
//
// These vectors have 13-byte nonces with 8-byte tags (M=8).
// L=2 (length field is 2 bytes since 15-13=2)
var rfc3610TestVectors = []struct {
	name       string
	key        string // AES key (hex)
	nonce      string // 13-byte nonce (hex)
	aad        string // Additional authenticated data (hex)
	plaintext  string // Plaintext to encrypt (hex)
	ciphertext string // Ciphertext without AAD (hex)
	tag        string // 8-byte tag (hex)
	nonceSize  int    // Nonce size (7-13)
	tagSize    int    // Tag size (4, 6, 8, 10, 12, 14, or 16)
}{
	// Packet Vector #1 (M=8, L=2)
	// From RFC 3610 Section 8:
	// Input: AAD (8 bytes) + plaintext (23 bytes) = 31 bytes
	// Output: AAD (8 bytes) + ciphertext (23 bytes) + tag (8 bytes) = 39 bytes
	{
		name:       "RFC3610_Vector1",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000003020100a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e",
		ciphertext: "588c979a61c663d2f066d0c2c0f989806d5f6b61dac384",
		tag:        "17e8d12cfdf926e0",
		nonceSize:  13,
		tagSize:    8,
	},
	// Packet Vector #2 (M=8, L=2)
	// Input: AAD (8 bytes) + plaintext (24 bytes) = 32 bytes
	// Output: AAD (8 bytes) + ciphertext (24 bytes) + tag (8 bytes) = 40 bytes
	{
		name:       "RFC3610_Vector2",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000004030201a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		ciphertext: "72c91a36e135f8cf291ca894085c87e3cc15c439c9e43a3b",
		tag:        "a091d56e10400916",
		nonceSize:  13,
		tagSize:    8,
	},
	// Packet Vector #7 (M=10, L=2) - 10-byte tag
	// Input: AAD (8 bytes) + plaintext (23 bytes) = 31 bytes
	// Output: AAD (8 bytes) + ciphertext (23 bytes) + tag (10 bytes) = 41 bytes
	{
		name:       "RFC3610_Vector7",
		key:        "c0c1c2c3c4c5c6c7c8c9cacbcccdcecf",
		nonce:      "00000009080706a0a1a2a3a4a5",
		aad:        "0001020304050607",
		plaintext:  "08090a0b0c0d0e0f101112131415161718191a1b1c1d1e",
		ciphertext: "0135d1b2c95f41d5d1d4fec185d166b8094e999dfed96c",
		tag:        "048c56602c97acbb7490",
		nonceSize:  13,
		tagSize:    10,
	},
}

// Vectors with a 13-byte nonce and a 16-byte tag
// (connectedhomeip src/crypto/tests/AES_CCM_128_test_vectors.h).
var ccm13x16TestVectors = []struct {
	name       string
	key        string // AES-128 key (hex)
	nonce      string // 13-byte nonce (hex)
	aad        string // Additional authenticated data (hex)
	plaintext  string // Plaintext (hex)
	ciphertext string // Ciphertext (hex, same length as plaintext)
	tag        string // 16-byte authentication tag (hex)
}{
	// tcId=38: Empty plaintext with 13-byte nonce and 16-byte tag
	{
		name:       "CHIP_empty_plaintext",
		key:        "404142434445464748494a4b4c4d4e4f",
		nonce:      "101112131415161718191a1b1c",
		aad:        "",
		plaintext:  "",
		ciphertext: "",
		tag:        "32d6f8243a26d0bd98d01b0f448e7773",
	},
	// 13-byte plaintext
	{
		name:       "CHIP_2ef53070ae20",
		key:        "0953fa93e7caac9638f58820220a398e",
		nonce:      "00800000011201000012345678",
		aad:        "",
		plaintext:  "fffd034b50057e400000010000",
		ciphertext: "b5e5bfdacbaf6cb7fb6bff871f",
		tag:        "b0d6dd827d35bf372fa6425dcd17d356",
	},
	// 9-byte plaintext
	{
		name:       "CHIP_91c8d337cf46",
		key:        "0953fa93e7caac9638f58820220a398e",
		nonce:      "00800148202345000012345678",
		aad:        "",
		plaintext:  "120104320308ba072f",
		ciphertext: "79d7dbc0c9b4d43eeb",
		tag:        "281508e50d58dbbd27c39597800f4733",
	},
}

func decodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("failed to decode %q: %v", s, err)
	}
	return b
}

func TestNewAESCCM(t *testing.T) {
	tests := []struct {
		name    string
		keyLen  int
		wantErr bool
	}{
		{"AES-128", 16, false},
		{"AES-256", 32, false},
		{"short", 15, true},
		{"AES-192", 24, true},
		{"empty", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAESCCM(make([]byte, tc.keyLen))
			if (err != nil) != tc.wantErr {
				t.Errorf("NewAESCCM(%d bytes) error = %v, wantErr %v", tc.keyLen, err, tc.wantErr)
			}
		})
	}

	if _, err := NewAESCCMWithParams(make([]byte, 16), 14, 16); err != ErrAESCCMInvalidNonceSize {
		t.Errorf("nonce 14: got %v, want %v", err, ErrAESCCMInvalidNonceSize)
	}
	if _, err := NewAESCCMWithParams(make([]byte, 16), 12, 5); err != ErrAESCCMInvalidTagSize {
		t.Errorf("tag 5: got %v, want %v", err, ErrAESCCMInvalidTagSize)
	}
}

func TestAESCCMRoundtrip(t *testing.T) {
	key := decodeHex(t, "000102030405060708090a0b0c0d0e0f")
	nonce := decodeHex(t, "101112131415161718191a1b")
	aad := []byte("record header")

	ccm, err := NewAESCCM(key)
	if err != nil {
		t.Fatalf("NewAESCCM failed: %v", err)
	}
	if ccm.NonceSize() != AESCCMNonceSize || ccm.Overhead() != AESCCMTagSize {
		t.Fatalf("sizes = %d/%d, want %d/%d", ccm.NonceSize(), ccm.Overhead(), AESCCMNonceSize, AESCCMTagSize)
	}

	for _, n := range []int{0, 1, 15, 16, 17, 1000} {
		plaintext := bytes.Repeat([]byte{0x5a}, n)
		sealed := ccm.Seal(nil, nonce, plaintext, aad)
		if len(sealed) != n+AESCCMTagSize {
			t.Fatalf("len %d: sealed length = %d", n, len(sealed))
		}
		opened, err := ccm.Open(nil, nonce, sealed, aad)
		if err != nil {
			t.Fatalf("len %d: Open failed: %v", n, err)
		}
		if !bytes.Equal(opened, plaintext) {
			t.Errorf("len %d: roundtrip mismatch", n)
		}
	}
}

func TestAESCCMSealAppends(t *testing.T) {
	ccm, _ := NewAESCCM(make([]byte, 16))
	nonce := make([]byte, AESCCMNonceSize)
	prefix := []byte{1, 2, 3}

	out := ccm.Seal(prefix, nonce, []byte("hello"), nil)
	if !bytes.Equal(out[:3], prefix) {
		t.Fatalf("prefix not preserved: %x", out[:3])
	}
	opened, err := ccm.Open(nil, nonce, out[3:], nil)
	if err != nil || string(opened) != "hello" {
		t.Fatalf("Open = %q, %v", opened, err)
	}
}

func TestAESCCMAuthenticationFailure(t *testing.T) {
	ccm, _ := NewAESCCM(make([]byte, 16))
	nonce := make([]byte, AESCCMNonceSize)
	sealed := ccm.Seal(nil, nonce, []byte("payload"), []byte("aad"))

	tests := []struct {
		name   string
		mutate func(ct, aad []byte) ([]byte, []byte)
	}{
		{"flip ciphertext", func(ct, aad []byte) ([]byte, []byte) { ct[0] ^= 1; return ct, aad }},
		{"flip tag", func(ct, aad []byte) ([]byte, []byte) { ct[len(ct)-1] ^= 1; return ct, aad }},
		{"wrong aad", func(ct, aad []byte) ([]byte, []byte) { return ct, []byte("aae") }},
		{"truncated", func(ct, aad []byte) ([]byte, []byte) { return ct[:AESCCMTagSize-1], aad }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ct := append([]byte(nil), sealed...)
			ct, aad := tc.mutate(ct, []byte("aad"))
			if _, err := ccm.Open(nil, nonce, ct, aad); err != ErrAESCCMAuthFailed {
				t.Errorf("Open error = %v, want %v", err, ErrAESCCMAuthFailed)
			}
		})
	}
}

func TestAESCCM13ByteNonceVectors(t *testing.T) {
	for _, tc := range ccm13x16TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			key := decodeHex(t, tc.key)
			nonce := decodeHex(t, tc.nonce)
			aad := decodeHex(t, tc.aad)
			plaintext := decodeHex(t, tc.plaintext)
			want := append(decodeHex(t, tc.ciphertext), decodeHex(t, tc.tag)...)

			ccm, err := NewAESCCMWithParams(key, 13, 16)
			if err != nil {
				t.Fatalf("NewAESCCMWithParams failed: %v", err)
			}
			got := ccm.Seal(nil, nonce, plaintext, aad)
			if !bytes.Equal(got, want) {
				t.Errorf("sealed mismatch\ngot:  %x\nwant: %x", got, want)
			}
			decrypted, err := ccm.Open(nil, nonce, got, aad)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Errorf("decrypted text mismatch\ngot:  %x\nwant: %x", decrypted, plaintext)
			}
		})
	}
}

// TestAESCCMRFC3610Vectors tests against RFC 3610 Section 8 packet vectors.
func TestAESCCMRFC3610Vectors(t *testing.T) {
	for _, tc := range rfc3610TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			key := decodeHex(t, tc.key)
			nonce := decodeHex(t, tc.nonce)
			aad := decodeHex(t, tc.aad)
			plaintext := decodeHex(t, tc.plaintext)
			expectedCiphertext := decodeHex(t, tc.ciphertext)
			expectedTag := decodeHex(t, tc.tag)

			ccm, err := NewAESCCMWithParams(key, tc.nonceSize, tc.tagSize)
			if err != nil {
				t.Fatalf("NewAESCCMWithParams failed: %v", err)
			}

			result := ccm.Seal(nil, nonce, plaintext, aad)
			gotCiphertext := result[:len(result)-tc.tagSize]
			gotTag := result[len(result)-tc.tagSize:]

			if !bytes.Equal(gotCiphertext, expectedCiphertext) {
				t.Errorf("ciphertext mismatch\ngot:  %x\nwant: %x", gotCiphertext, expectedCiphertext)
			}
			if !bytes.Equal(gotTag, expectedTag) {
				t.Errorf("tag mismatch\ngot:  %x\nwant: %x", gotTag, expectedTag)
			}

			decrypted, err := ccm.Open(nil, nonce, result, aad)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(decrypted, plaintext) {
				t.Errorf("decrypted text mismatch\ngot:  %x\nwant: %x", decrypted, plaintext)
			}
		})
	}
}

func BenchmarkAESCCMSeal(b *testing.B) {
	ccm, _ := NewAESCCM(make([]byte, 16))
	nonce := make([]byte, AESCCMNonceSize)
	plaintext := make([]byte, 256)
	aad := make([]byte, 13)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ccm.Seal(nil, nonce, plaintext, aad)
	}
}
