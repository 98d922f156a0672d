package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// SHA-256 vectors from NIST FIPS 180-4 and the NIST CAVP short message set.
var sha256TestVectors = []struct {
	name     string
	message  string // hex-encoded input
	expected string // hex-encoded expected hash
}{
	// NIST FIPS 180-4 Example B.1 - One Block Message (256 bits)
	{
		name:     "FIPS180-4_B1_abc",
		message:  "616263", // "abc"
		expected: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	},
	// NIST FIPS 180-4 Example B.2 - Two Block Message (448 bits)
	{
		name:     "FIPS180-4_B2_448bit",
		message:  "6162636462636465636465666465666765666768666768696768696a68696a6b696a6b6c6a6b6c6d6b6c6d6e6c6d6e6f6d6e6f706e6f7071", // "abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq"
		expected: "248d6a61d20638b8e5c026930c3e6039a33ce45964ff2167f6ecedd419db06c1",
	},
	// NIST CAVP Short Message Test Vector - Empty string
	{
		name:     "CAVP_empty",
		message:  "",
		expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	},
	// NIST CAVP Short Message Test Vector - 8 bits
	{
		name:     "CAVP_8bit",
		message:  "d3",
		expected: "28969cdfa74a12c82f3bad960b0b000aca2ac329deea5c2328ebc6f2ba9802c1",
	},
	// NIST CAVP Short Message Test Vector - 16 bits
	{
		name:     "CAVP_16bit",
		message:  "11af",
		expected: "5ca7133fa735326081558ac312c620eeca9970d1e70a4b95533d956f072d1f98",
	},
	// NIST CAVP Short Message Test Vector - 24 bits
	{
		name:     "CAVP_24bit",
		message:  "b4190e",
		expected: "dff2e73091f6c05e528896c4c831b9448653dc2ff043528f6769437bc7b975c2",
	},
	// NIST CAVP Short Message Test Vector - 32 bits
	{
		name:     "CAVP_32bit",
		message:  "74ba2521",
		expected: "b16aa56be3880d18cd41e68384cf1ec8c17680c45a02b1575dc1518923ae8b0e",
	},
	// NIST CAVP Short Message Test Vector - 40 bits
	{
		name:     "CAVP_40bit",
		message:  "c299209682",
		expected: "f0887fe961c9cd3beab957e8222494abb969b1ce4c6557976df8b0f6d20e9166",
	},
	// NIST CAVP Short Message Test Vector - 48 bits
	{
		name:     "CAVP_48bit",
		message:  "e1dc724d5621",
		expected: "eca0a060b489636225b4fa64d267dabbe44273067ac679f20820bddc6b6a90ac",
	},
	// NIST CAVP Short Message Test Vector - 64 bits
	{
		name:     "CAVP_64bit",
		message:  "06e076f5a442d5",
		expected: "3fd877e27450e6bbd5d74bb82f9870c64c66e109418baa8e6bbcff355e287926",
	},
	// Additional test: 512 bits (one full block)
	{
		name:     "CAVP_512bit",
		message:  "5a86b737eaea8ee976a0a24da63e7ed7eefad18a101c1211e2b3650c5187c2a8a650547208251f6d4237e661c7bf4c77f335390394c37fa1a9f9be836ac28509",
		expected: "42e61e174fbb3897d6dd6cef3dd2802fe67b331953b06114a65c772859dfc1aa",
	},
}

func TestSHA256(t *testing.T) {
	for _, tc := range sha256TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			message := decodeHex(t, tc.message)
			expected := decodeHex(t, tc.expected)

			result := SHA256(message)
			if !bytes.Equal(result[:], expected) {
				t.Errorf("hash mismatch\ngot:  %x\nwant: %x", result[:], expected)
			}
			if got := HashSHA256.Sum(message); !bytes.Equal(got, expected) {
				t.Errorf("HashSHA256.Sum mismatch\ngot:  %x\nwant: %x", got, expected)
			}
		})
	}
}

func TestHashSum(t *testing.T) {
	// FIPS 180-4 "abc" examples.
	tests := []struct {
		hash     Hash
		size     int
		expected string
	}{
		{HashSHA256, 32, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{HashSHA384, 48, "cb00753f45a35e8bb5a03d699ac65007272c32ab0eded1631a8b605a43ff5bed8086072ba1e7cc2358baeca134c825a7"},
		{HashSHA512, 64, "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"},
	}
	for _, tc := range tests {
		t.Run(tc.hash.String(), func(t *testing.T) {
			if tc.hash.Size() != tc.size {
				t.Errorf("Size() = %d, want %d", tc.hash.Size(), tc.size)
			}
			got := tc.hash.Sum([]byte("abc"))
			if hex.EncodeToString(got) != tc.expected {
				t.Errorf("Sum(abc) = %x, want %s", got, tc.expected)
			}
		})
	}
}

func TestHashIncremental(t *testing.T) {
	message := []byte("abcdbcdecdefdefgefghfghighijhijkijkljklmklmnlmnomnopnopq")
	for _, h := range []Hash{HashSHA256, HashSHA384, HashSHA512} {
		d := h.New()
		d.Write(message[:10])
		d.Write(message[10:30])
		d.Write(message[30:])
		if got, want := d.Sum(nil), h.Sum(message); !bytes.Equal(got, want) {
			t.Errorf("%s incremental mismatch\ngot:  %x\nwant: %x", h, got, want)
		}
	}
}

func TestHashForDigestSize(t *testing.T) {
	tests := []struct {
		size    int
		want    Hash
		wantErr bool
	}{
		{32, HashSHA256, false},
		{48, HashSHA384, false},
		{64, HashSHA512, false},
		{20, 0, true},
		{0, 0, true},
	}
	for _, tc := range tests {
		got, err := HashForDigestSize(tc.size)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownHash) {
				t.Errorf("HashForDigestSize(%d) error = %v, want ErrUnknownHash", tc.size, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("HashForDigestSize(%d) = %v, %v; want %v", tc.size, got, err, tc.want)
		}
	}
	if Hash(9).Available() {
		t.Error("Hash(9) reported available")
	}
}

func TestHashStandard(t *testing.T) {
	for _, h := range []Hash{HashSHA256, HashSHA384, HashSHA512} {
		std := h.Standard()
		if std.Size() != h.Size() {
			t.Errorf("%s.Standard().Size() = %d, want %d", h, std.Size(), h.Size())
		}
	}
	if Hash(9).Standard() != 0 {
		t.Error("Hash(9).Standard() is non-zero")
	}
}

func BenchmarkSHA256(b *testing.B) {
	message := make([]byte, 1024)
	for i := range message {
		message[i] = byte(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SHA256(message)
	}
}
