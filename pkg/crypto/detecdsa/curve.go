// Package detecdsa implements ECDSA with deterministic nonces (RFC 6979)
// over the NIST P-256, P-384 and P-521 curves.
//
// Signatures use a fixed-width encoding: r and s each occupy exactly
// Curve.Size() bytes, big-endian and zero-padded on the left. The same key
// and digest always produce the same signature.
package detecdsa

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"errors"
	"fmt"

	"github.com/backkem/tinytls/pkg/crypto"
)

// Curve identifies a supported prime-order curve.
type Curve uint8

// Supported curves.
const (
	CurveP256 Curve = iota + 1
	CurveP384
	CurveP521
)

var (
	ErrUnsupportedCurve  = errors.New("detecdsa: unsupported curve")
	ErrCurveMismatch     = errors.New("detecdsa: key does not belong to curve")
	ErrInvalidPrivateKey = errors.New("detecdsa: invalid private key")
	ErrInvalidPublicKey  = errors.New("detecdsa: invalid public key")
	ErrInvalidSignature  = errors.New("detecdsa: invalid signature encoding")
	ErrInvalidHash       = errors.New("detecdsa: unsupported digest length")
)

// String returns the NIST curve name.
func (c Curve) String() string {
	switch c {
	case CurveP256:
		return "P-256"
	case CurveP384:
		return "P-384"
	case CurveP521:
		return "P-521"
	default:
		return fmt.Sprintf("Curve(%d)", uint8(c))
	}
}

// Size returns the byte length of a scalar and of each signature half:
// 32, 48 or 66.
func (c Curve) Size() int {
	switch c {
	case CurveP256:
		return 32
	case CurveP384:
		return 48
	case CurveP521:
		return 66
	default:
		return 0
	}
}

// Hash returns the digest conventionally paired with the curve.
func (c Curve) Hash() crypto.Hash {
	switch c {
	case CurveP384:
		return crypto.HashSHA384
	case CurveP521:
		return crypto.HashSHA512
	default:
		return crypto.HashSHA256
	}
}

// Elliptic returns the curve parameters.
func (c Curve) Elliptic() elliptic.Curve {
	switch c {
	case CurveP256:
		return elliptic.P256()
	case CurveP384:
		return elliptic.P384()
	case CurveP521:
		return elliptic.P521()
	default:
		return nil
	}
}

func (c Curve) ecdh() ecdh.Curve {
	switch c {
	case CurveP256:
		return ecdh.P256()
	case CurveP384:
		return ecdh.P384()
	case CurveP521:
		return ecdh.P521()
	default:
		return nil
	}
}

func (c Curve) check() error {
	if c.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrUnsupportedCurve, c)
	}
	return nil
}

// CurveOf maps standard library curve parameters to a Curve.
func CurveOf(ec elliptic.Curve) (Curve, error) {
	if ec == nil {
		return 0, ErrUnsupportedCurve
	}
	switch ec.Params().Name {
	case "P-256":
		return CurveP256, nil
	case "P-384":
		return CurveP384, nil
	case "P-521":
		return CurveP521, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurve, ec.Params().Name)
	}
}
