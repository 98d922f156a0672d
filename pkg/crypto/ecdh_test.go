package crypto

import (
	"bytes"
	"errors"
	"testing"
)

// Known-answer vectors: RFC 5903 Section 8.1 for P-256, RFC 7748 Section 6.1
// for X25519.
var ecdhTestVectors = []struct {
	name         string
	group        Group
	privateKeyA  string
	publicKeyA   string
	privateKeyB  string
	publicKeyB   string
	sharedSecret string
}{
	{
		name:        "RFC5903_P256",
		group:       GroupP256,
		privateKeyA: "c88f01f510d9ac3f70a292daa2316de544e9aab8afe84049c62a9c57862d1433",
		publicKeyA: "04" +
			"dad0b65394221cf9b051e1feca5787d098dfe637fc90b9ef945d0c3772581180" +
			"5271a0461cdb8252d61f1c456fa3e59ab1f45b33accf5f58389e0577b8990bb3",
		privateKeyB: "c6ef9c5d78ae012a011164acb397ce2088685d8f06bf9be0b283ab46476bee53",
		publicKeyB: "04" +
			"d12dfb5289c8d4f81208b70270398c342296970a0bccb74c736fc7554494bf63" +
			"56fbf3ca366cc23e8157854c13c58d6aac23f046ada30f8353e74f33039872ab",
		sharedSecret: "d6840f6b42f6edafd13116e0e12565202fef8e9ece7dce03812464d04b9442de",
	},
	{
		name:         "RFC7748_X25519",
		group:        GroupX25519,
		privateKeyA:  "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a",
		publicKeyA:   "8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a",
		privateKeyB:  "5dab087e624a8a4b79e17f8b83800ee66f3bb1292618b6fd1c2f8b27ff88e0eb",
		publicKeyB:   "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f",
		sharedSecret: "4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742",
	},
}

func TestKeyShareVectors(t *testing.T) {
	for _, tc := range ecdhTestVectors {
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewKeyShare(tc.group, decodeHex(t, tc.privateKeyA))
			if err != nil {
				t.Fatalf("NewKeyShare(A) failed: %v", err)
			}
			b, err := NewKeyShare(tc.group, decodeHex(t, tc.privateKeyB))
			if err != nil {
				t.Fatalf("NewKeyShare(B) failed: %v", err)
			}
			if !bytes.Equal(a.PublicKey(), decodeHex(t, tc.publicKeyA)) {
				t.Errorf("public key A mismatch: %x", a.PublicKey())
			}
			if !bytes.Equal(b.PublicKey(), decodeHex(t, tc.publicKeyB)) {
				t.Errorf("public key B mismatch: %x", b.PublicKey())
			}

			want := decodeHex(t, tc.sharedSecret)
			sAB, err := a.SharedSecret(b.PublicKey())
			if err != nil {
				t.Fatalf("SharedSecret(A,B) failed: %v", err)
			}
			sBA, err := b.SharedSecret(a.PublicKey())
			if err != nil {
				t.Fatalf("SharedSecret(B,A) failed: %v", err)
			}
			if !bytes.Equal(sAB, want) || !bytes.Equal(sBA, want) {
				t.Errorf("shared secret mismatch\ngot:  %x / %x\nwant: %x", sAB, sBA, want)
			}
		})
	}
}

func TestKeyShareSymmetric(t *testing.T) {
	for _, g := range []Group{GroupP256, GroupX25519, GroupX448} {
		t.Run(g.String(), func(t *testing.T) {
			a, err := GenerateKeyShare(g, nil)
			if err != nil {
				t.Fatalf("GenerateKeyShare failed: %v", err)
			}
			b, err := GenerateKeyShare(g, nil)
			if err != nil {
				t.Fatalf("GenerateKeyShare failed: %v", err)
			}
			if len(a.PublicKey()) != g.PublicKeySize() {
				t.Errorf("public key length = %d, want %d", len(a.PublicKey()), g.PublicKeySize())
			}

			s1, err := a.SharedSecret(b.PublicKey())
			if err != nil {
				t.Fatalf("SharedSecret failed: %v", err)
			}
			s2, err := b.SharedSecret(a.PublicKey())
			if err != nil {
				t.Fatalf("SharedSecret failed: %v", err)
			}
			if !bytes.Equal(s1, s2) {
				t.Errorf("shared secrets differ\n%x\n%x", s1, s2)
			}
		})
	}
}

func TestKeyShareInvalidPeer(t *testing.T) {
	ks, err := GenerateKeyShare(GroupP256, nil)
	if err != nil {
		t.Fatalf("GenerateKeyShare failed: %v", err)
	}

	if _, err := ks.SharedSecret(make([]byte, 10)); !errors.Is(err, ErrInvalidKeyShare) {
		t.Errorf("short share: error = %v, want ErrInvalidKeyShare", err)
	}

	offCurve := make([]byte, P256PublicKeySizeBytes)
	offCurve[0] = 0x04
	offCurve[64] = 1
	if _, err := ks.SharedSecret(offCurve); !errors.Is(err, ErrInvalidKeyShare) {
		t.Errorf("off-curve share: error = %v, want ErrInvalidKeyShare", err)
	}

	x, _ := GenerateKeyShare(GroupX448, nil)
	if _, err := x.SharedSecret(make([]byte, 56)); !errors.Is(err, ErrInvalidKeyShare) {
		t.Errorf("low-order X448 share: error = %v, want ErrInvalidKeyShare", err)
	}
}

func TestUnsupportedGroup(t *testing.T) {
	if _, err := GenerateKeyShare(Group(99), nil); !errors.Is(err, ErrUnsupportedGroup) {
		t.Errorf("error = %v, want ErrUnsupportedGroup", err)
	}
	if Group(99).Supported() {
		t.Error("Group(99) reported supported")
	}
}

func TestKeyShareZeroize(t *testing.T) {
	ks, _ := GenerateKeyShare(GroupX25519, nil)
	priv := ks.private
	ks.Zeroize()
	if !bytes.Equal(priv, make([]byte, len(priv))) {
		t.Error("private scalar not cleared")
	}
	if ks.private != nil {
		t.Error("private reference retained")
	}
}
