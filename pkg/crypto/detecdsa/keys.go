package detecdsa

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// PublicKey is a point on a supported curve.
type PublicKey struct {
	Curve Curve
	X, Y  *big.Int
}

// PrivateKey is a scalar d in [1, n-1] together with its public point.
type PrivateKey struct {
	PublicKey
	D *big.Int
}

// GenerateKey creates a random key pair. A nil random uses crypto/rand.
func GenerateKey(c Curve, random io.Reader) (*PrivateKey, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if random == nil {
		random = rand.Reader
	}
	k, err := c.ecdh().GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("detecdsa: generate %s key: %w", c, err)
	}
	return PrivateKeyFromBytes(c, k.Bytes())
}

// PrivateKeyFromBytes imports a big-endian scalar. Shorter inputs are
// left-padded to the curve size.
func PrivateKeyFromBytes(c Curve, d []byte) (*PrivateKey, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	if len(d) == 0 || len(d) > c.Size() {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrInvalidPrivateKey, len(d), c)
	}
	priv, err := c.ecdh().NewPrivateKey(leftPad(d, c.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	pub, err := ParsePublicKey(c, priv.PublicKey().Bytes())
	if err != nil {
		return nil, err
	}
	return &PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(d)}, nil
}

// FromECDSA converts a standard library private key.
func FromECDSA(k *ecdsa.PrivateKey) (*PrivateKey, error) {
	if k == nil || k.D == nil {
		return nil, ErrInvalidPrivateKey
	}
	c, err := CurveOf(k.Curve)
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromBytes(c, k.D.Bytes())
}

// PublicFromECDSA converts a standard library public key.
func PublicFromECDSA(k *ecdsa.PublicKey) (*PublicKey, error) {
	if k == nil || k.X == nil || k.Y == nil {
		return nil, ErrInvalidPublicKey
	}
	c, err := CurveOf(k.Curve)
	if err != nil {
		return nil, err
	}
	pub := &PublicKey{Curve: c, X: new(big.Int).Set(k.X), Y: new(big.Int).Set(k.Y)}
	if !pub.OnCurve() {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// ParsePublicKey accepts X||Y or the uncompressed 0x04||X||Y form.
func ParsePublicKey(c Curve, b []byte) (*PublicKey, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	size := c.Size()
	switch {
	case len(b) == 2*size+1 && b[0] == 0x04:
		b = b[1:]
	case len(b) == 2*size:
	default:
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrInvalidPublicKey, len(b), c)
	}
	pub := &PublicKey{
		Curve: c,
		X:     new(big.Int).SetBytes(b[:size]),
		Y:     new(big.Int).SetBytes(b[size:]),
	}
	if !pub.OnCurve() {
		return nil, fmt.Errorf("%w: point not on %s", ErrInvalidPublicKey, c)
	}
	return pub, nil
}

// OnCurve reports whether the point lies on its curve.
func (p *PublicKey) OnCurve() bool {
	if p == nil || p.X == nil || p.Y == nil || p.Curve.check() != nil {
		return false
	}
	return p.Curve.Elliptic().IsOnCurve(p.X, p.Y)
}

// Bytes returns X||Y, each coordinate zero-padded to the curve size.
func (p *PublicKey) Bytes() []byte {
	size := p.Curve.Size()
	out := make([]byte, 2*size)
	p.X.FillBytes(out[:size])
	p.Y.FillBytes(out[size:])
	return out
}

// Uncompressed returns 0x04||X||Y.
func (p *PublicKey) Uncompressed() []byte {
	return append([]byte{0x04}, p.Bytes()...)
}

// ECDSA converts the key for use with crypto/ecdsa and crypto/x509.
func (p *PublicKey) ECDSA() *ecdsa.PublicKey {
	return &ecdsa.PublicKey{Curve: p.Curve.Elliptic(), X: p.X, Y: p.Y}
}

// Public returns the public half.
func (k *PrivateKey) Public() *PublicKey {
	return &k.PublicKey
}

// Bytes returns d zero-padded to the curve size.
func (k *PrivateKey) Bytes() []byte {
	out := make([]byte, k.Curve.Size())
	k.D.FillBytes(out)
	return out
}

// ECDSA converts the key for use with crypto/x509 certificate creation.
func (k *PrivateKey) ECDSA() *ecdsa.PrivateKey {
	return &ecdsa.PrivateKey{PublicKey: *k.PublicKey.ECDSA(), D: k.D}
}

// Zeroize clears the scalar. The key is unusable afterwards.
func (k *PrivateKey) Zeroize() {
	if k.D != nil {
		k.D.SetInt64(0)
	}
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
