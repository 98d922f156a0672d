package demo

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/crypto/detecdsa"
)

// SignMessage is the RFC 6979 sample message.
const SignMessage = "sample"

// ErrVerifyFailed is returned when the demo signature does not verify.
var ErrVerifyFailed = errors.New("demo: signature did not verify")

// RFC 6979 appendix A.2.5 to A.2.7 private keys.
var signKeys = map[detecdsa.Curve]string{
	detecdsa.CurveP256: "c9afa9d845ba75166b5c215767b1d6934e50c3db36e89b127b8a622b120f6721",
	detecdsa.CurveP384: "6b9d3dad2e1b8c1c05b19875b6659f4de23c3b667bf297ba9aa47740787137d896d5724e4c70a825f872c9ea60d2edf5",
	detecdsa.CurveP521: "00fad06daa62ba3b25d2fb40133da757205de67f5bb0018fee8c86e1b68c7e75caa896eb32f1f47c70855836a6d16fcc1466f6d8fbec67db89ec0c08b0e996b83538",
}

// SignDemo hashes the sample message with h, signs the digest with the
// fixed RFC 6979 key of curve, verifies the signature and prints the
// digest and r||s as hex to out.
func SignDemo(out io.Writer, curve detecdsa.Curve, h crypto.Hash) (*detecdsa.Signature, error) {
	keyHex, ok := signKeys[curve]
	if !ok {
		return nil, detecdsa.ErrUnsupportedCurve
	}
	d, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, err
	}
	priv, err := detecdsa.PrivateKeyFromBytes(curve, d)
	if err != nil {
		return nil, err
	}
	defer priv.Zeroize()
	if !h.Available() {
		return nil, crypto.ErrUnknownHash
	}

	fmt.Fprintf(out, "Running NIST %s,%s Deterministic Sign Test\n", curve, h)
	digest := h.Sum([]byte(SignMessage))
	fmt.Fprintf(out, "Digest %d\n", len(digest))
	dump(out, digest)

	sig, err := detecdsa.SignatureRequest{PrivateKey: priv, Hash: digest, Curve: curve}.Sign()
	if err != nil {
		fmt.Fprintf(out, "Failure: %v\n", err)
		return nil, err
	}
	if !sig.Verify(priv.Public(), digest, curve) {
		fmt.Fprintln(out, "Failure: verify")
		return nil, ErrVerifyFailed
	}
	raw := sig.Bytes()
	fmt.Fprintf(out, "Signature %d\n", len(raw))
	dump(out, raw)
	fmt.Fprintln(out, "Success")
	return sig, nil
}

// dump prints data as upper-case hex, 16 bytes per line.
func dump(out io.Writer, data []byte) {
	for i, b := range data {
		fmt.Fprintf(out, "%02X ", b)
		if i%16 == 15 {
			fmt.Fprintln(out)
		}
	}
	fmt.Fprintln(out)
}
