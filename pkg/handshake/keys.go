package handshake

import (
	"fmt"

	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/crypto/detecdsa"
	"github.com/backkem/tinytls/pkg/record"
)

// Key schedule labels. crypto.LabelPrefix is prepended by HKDFExpandLabel.
const (
	labelClientFinished = "c finished"
	labelServerFinished = "s finished"
	labelClientKey      = "c ap key"
	labelClientIV       = "c ap iv"
	labelServerKey      = "s ap key"
	labelServerIV       = "s ap iv"
)

// CertificateVerify contexts.
const (
	serverSignatureContext = "tinytls, server CertificateVerify"
	clientSignatureContext = "tinytls, client CertificateVerify"
)

// KeySchedule holds the handshake secret of one connection.
type KeySchedule struct {
	hash      crypto.Hash
	handshake []byte
}

// NewKeySchedule derives the handshake secret.
//
//	hs = HKDF-Extract(salt = 0, ikm = ecdhe_shared)
func NewKeySchedule(h crypto.Hash, shared []byte) *KeySchedule {
	return &KeySchedule{hash: h, handshake: crypto.HKDFExtract(h, shared, nil)}
}

// Hash returns the schedule hash.
func (k *KeySchedule) Hash() crypto.Hash { return k.hash }

// FinishedKey derives the Finished MAC key of one role.
//
//	finished_key = HKDF-Expand-Label(hs, "c finished" | "s finished",
//	                                 H(ClientHello..ServerHello), HashLen)
func (k *KeySchedule) FinishedKey(role Role, helloHash []byte) ([]byte, error) {
	label := labelClientFinished
	if role == RoleServer {
		label = labelServerFinished
	}
	return crypto.HKDFExpandLabel(k.hash, k.handshake, label, helloHash, k.hash.Size())
}

// FinishedMAC computes verify_data = HMAC(finished_key, H(transcript)).
func FinishedMAC(h crypto.Hash, finishedKey, transcriptHash []byte) []byte {
	return crypto.HMAC(h, finishedKey, transcriptHash)
}

// TrafficKeys are the application keys of both directions.
type TrafficKeys struct {
	Suite     CipherSuite
	ClientKey []byte
	ClientIV  []byte
	ServerKey []byte
	ServerIV  []byte
}

// TrafficKeys derives the application keys from the full transcript hash.
//
//	ms         = HKDF-Extract(salt = hs, ikm = 0)
//	client key = HKDF-Expand-Label(ms, "c ap key", H(transcript), KeyLen)
//	client iv  = HKDF-Expand-Label(ms, "c ap iv",  H(transcript), IVLen)
//	server key = HKDF-Expand-Label(ms, "s ap key", H(transcript), KeyLen)
//	server iv  = HKDF-Expand-Label(ms, "s ap iv",  H(transcript), IVLen)
func (k *KeySchedule) TrafficKeys(suite CipherSuite, transcriptHash []byte) (*TrafficKeys, error) {
	if k.handshake == nil {
		return nil, fmt.Errorf("%w: key schedule zeroized", ErrInvalidState)
	}
	master := crypto.HKDFExtract(k.hash, make([]byte, k.hash.Size()), k.handshake)
	defer clear(master)

	keyLen := suite.AEAD().KeySize()
	tk := &TrafficKeys{Suite: suite}
	outputs := []struct {
		dst    *[]byte
		label  string
		length int
	}{
		{&tk.ClientKey, labelClientKey, keyLen},
		{&tk.ClientIV, labelClientIV, crypto.IVSize},
		{&tk.ServerKey, labelServerKey, keyLen},
		{&tk.ServerIV, labelServerIV, crypto.IVSize},
	}
	for _, o := range outputs {
		v, err := crypto.HKDFExpandLabel(k.hash, master, o.label, transcriptHash, o.length)
		if err != nil {
			tk.Zeroize()
			return nil, err
		}
		*o.dst = v
	}
	return tk, nil
}

// Protections returns the read and write protection of role.
func (t *TrafficKeys) Protections(role Role) (read, write *record.Protection, err error) {
	client, err := record.NewProtection(t.Suite.AEAD(), t.ClientKey, t.ClientIV)
	if err != nil {
		return nil, nil, err
	}
	server, err := record.NewProtection(t.Suite.AEAD(), t.ServerKey, t.ServerIV)
	if err != nil {
		client.Zeroize()
		return nil, nil, err
	}
	if role == RoleClient {
		return server, client, nil
	}
	return client, server, nil
}

// Zeroize clears the keys.
func (t *TrafficKeys) Zeroize() {
	if t == nil {
		return
	}
	clear(t.ClientKey)
	clear(t.ClientIV)
	clear(t.ServerKey)
	clear(t.ServerIV)
}

// Zeroize clears the handshake secret.
func (k *KeySchedule) Zeroize() {
	if k == nil {
		return
	}
	clear(k.handshake)
	k.handshake = nil
}

// signedContent builds the CertificateVerify input:
//
//	0x20 * 64 || context || 0x00 || H(transcript)
func signedContent(role Role, transcriptHash []byte) []byte {
	context := clientSignatureContext
	if role == RoleServer {
		context = serverSignatureContext
	}
	out := make([]byte, 0, 64+len(context)+1+len(transcriptHash))
	for range 64 {
		out = append(out, 0x20)
	}
	out = append(out, context...)
	out = append(out, 0)
	return append(out, transcriptHash...)
}

// signTranscript produces the CertificateVerify of role with the
// deterministic signer. The digest hash follows the key's curve.
func signTranscript(priv *detecdsa.PrivateKey, role Role, transcriptHash []byte) (*CertificateVerify, error) {
	digest := priv.Curve.Hash().Sum(signedContent(role, transcriptHash))
	sig, err := detecdsa.SignatureRequest{PrivateKey: priv, Hash: digest, Curve: priv.Curve}.Sign()
	if err != nil {
		return nil, err
	}
	return &CertificateVerify{Scheme: SchemeForCurve(priv.Curve), Signature: sig.Bytes()}, nil
}

// verifyTranscript checks a CertificateVerify sent by role.
func verifyTranscript(pub *detecdsa.PublicKey, role Role, transcriptHash []byte, cv *CertificateVerify) error {
	curve := cv.Scheme.Curve()
	if curve == 0 || curve != pub.Curve {
		return fmt.Errorf("%w: %s for %s key", ErrUnsupportedScheme, cv.Scheme, pub.Curve)
	}
	sig, err := detecdsa.ParseSignature(curve, cv.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	digest := curve.Hash().Sum(signedContent(role, transcriptHash))
	if !sig.Verify(pub, digest, curve) {
		return ErrBadSignature
	}
	return nil
}
