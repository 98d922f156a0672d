package detecdsa

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/backkem/tinytls/pkg/crypto"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Sign produces a deterministic ECDSA signature over a precomputed digest.
// The RFC 6979 nonce is derived with the SHA-2 function whose output
// length equals len(hash). r and s are returned fixed-width.
func Sign(priv *PrivateKey, hash []byte, c Curve) (r, s []byte, err error) {
	if err := c.check(); err != nil {
		return nil, nil, err
	}
	if priv == nil || priv.D == nil {
		return nil, nil, ErrInvalidPrivateKey
	}
	if priv.Curve != c {
		return nil, nil, fmt.Errorf("%w: key is %s, requested %s", ErrCurveMismatch, priv.Curve, c)
	}
	h, err := crypto.HashForDigestSize(len(hash))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}

	n := c.Elliptic().Params().N
	if priv.D.Sign() <= 0 || priv.D.Cmp(n) >= 0 {
		return nil, nil, ErrInvalidPrivateKey
	}

	// A nil random source selects RFC 6979 nonces.
	der, err := priv.ECDSA().Sign(nil, hash, h.Standard())
	if err != nil {
		return nil, nil, fmt.Errorf("detecdsa: sign: %w", err)
	}
	return decodeDER(der, c.Size())
}

// decodeDER unpacks an ASN.1 ECDSA-Sig-Value into fixed-width r and s.
func decodeDER(der []byte, size int) (r, s []byte, err error) {
	input := cryptobyte.String(der)
	var inner cryptobyte.String
	rInt, sInt := new(big.Int), new(big.Int)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(rInt) || !inner.ReadASN1Integer(sInt) || !inner.Empty() {
		return nil, nil, fmt.Errorf("%w: malformed DER", ErrInvalidSignature)
	}
	if rInt.Sign() <= 0 || sInt.Sign() <= 0 || rInt.BitLen() > size*8 || sInt.BitLen() > size*8 {
		return nil, nil, fmt.Errorf("%w: component out of range", ErrInvalidSignature)
	}
	r = make([]byte, size)
	s = make([]byte, size)
	rInt.FillBytes(r)
	sInt.FillBytes(s)
	return r, s, nil
}

// Verify checks a fixed-width (r, s) signature over hash. Out-of-range
// components and off-curve keys are rejected before any curve arithmetic.
func Verify(pub *PublicKey, hash, r, s []byte, c Curve) bool {
	if c.check() != nil || pub == nil || pub.Curve != c {
		return false
	}
	size := c.Size()
	if len(r) != size || len(s) != size || len(hash) == 0 {
		return false
	}
	n := c.Elliptic().Params().N
	rInt := new(big.Int).SetBytes(r)
	sInt := new(big.Int).SetBytes(s)
	if !inRange(rInt, n) || !inRange(sInt, n) {
		return false
	}
	if !pub.OnCurve() {
		return false
	}
	return ecdsa.Verify(pub.ECDSA(), hash, rInt, sInt)
}

// inRange reports whether 1 <= v <= n-1.
func inRange(v, n *big.Int) bool {
	return v.Sign() > 0 && v.Cmp(n) < 0
}
