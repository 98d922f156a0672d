package detecdsa

import "fmt"

// SignatureRequest bundles the inputs of one signing operation.
type SignatureRequest struct {
	PrivateKey *PrivateKey
	Hash       []byte
	Curve      Curve
}

// Signature is a fixed-width (r, s) pair.
type Signature struct {
	R, S []byte
}

// Sign executes the request.
func (req SignatureRequest) Sign() (*Signature, error) {
	r, s, err := Sign(req.PrivateKey, req.Hash, req.Curve)
	if err != nil {
		return nil, err
	}
	return &Signature{R: r, S: s}, nil
}

// Bytes returns r||s.
func (sig *Signature) Bytes() []byte {
	out := make([]byte, 0, len(sig.R)+len(sig.S))
	out = append(out, sig.R...)
	return append(out, sig.S...)
}

// Verify checks the signature against pub.
func (sig *Signature) Verify(pub *PublicKey, hash []byte, c Curve) bool {
	return Verify(pub, hash, sig.R, sig.S, c)
}

// ParseSignature splits an r||s encoding of exactly 2*c.Size() bytes.
func ParseSignature(c Curve, b []byte) (*Signature, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	size := c.Size()
	if len(b) != 2*size {
		return nil, fmt.Errorf("%w: %d bytes for %s, want %d", ErrInvalidSignature, len(b), c, 2*size)
	}
	return &Signature{
		R: append([]byte(nil), b[:size]...),
		S: append([]byte(nil), b[size:]...),
	}, nil
}

// SignMessage hashes message with the curve's digest and signs it.
func SignMessage(priv *PrivateKey, message []byte) (*Signature, error) {
	if priv == nil {
		return nil, ErrInvalidPrivateKey
	}
	return SignatureRequest{
		PrivateKey: priv,
		Hash:       priv.Curve.Hash().Sum(message),
		Curve:      priv.Curve,
	}.Sign()
}

// VerifyMessage hashes message with the curve's digest and verifies an
// r||s signature.
func VerifyMessage(pub *PublicKey, message, sig []byte) bool {
	if pub == nil {
		return false
	}
	parsed, err := ParseSignature(pub.Curve, sig)
	if err != nil {
		return false
	}
	return parsed.Verify(pub, pub.Curve.Hash().Sum(message), pub.Curve)
}
