// Package credentials loads certificates, private keys and trusted roots,
// and validates peer certificate chains.
//
// Credentials come either from files (LoadFiles) or from in-memory PEM or
// DER buffers (LoadBuffers). One Credentials value never mixes the two.
package credentials

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/backkem/tinytls/pkg/crypto/detecdsa"
)

// Files names credential files on disk. Every file may hold PEM or DER.
type Files struct {
	// Certificate holds the local chain, leaf first.
	Certificate string

	// PrivateKey holds the key for the leaf certificate.
	PrivateKey string

	// RootCAs lists files of trusted root certificates.
	RootCAs []string
}

// IsZero reports whether no file is named.
func (f Files) IsZero() bool {
	return f.Certificate == "" && f.PrivateKey == "" && len(f.RootCAs) == 0
}

// Buffers holds credentials in memory. Every buffer may hold PEM or DER.
type Buffers struct {
	Certificate []byte
	PrivateKey  []byte
	RootCAs     [][]byte
}

// IsZero reports whether every buffer is empty.
func (b Buffers) IsZero() bool {
	return len(b.Certificate) == 0 && len(b.PrivateKey) == 0 && len(b.RootCAs) == 0
}

// Credentials is a parsed, read-only credential set.
type Credentials struct {
	// Chain is the local certificate chain, leaf first. Empty if the
	// local side has no identity.
	Chain []*x509.Certificate

	// PrivateKey signs CertificateVerify. Nil without identity.
	PrivateKey *detecdsa.PrivateKey

	// Roots are the trusted roots used to verify peers.
	Roots *x509.CertPool

	rootCount int
}

// Load builds Credentials from whichever source is set. Setting both is
// an error; setting neither yields empty Credentials.
func Load(files Files, buffers Buffers) (*Credentials, error) {
	switch {
	case !files.IsZero() && !buffers.IsZero():
		return nil, ErrMixedCredentialSources
	case !files.IsZero():
		return LoadFiles(files)
	default:
		return LoadBuffers(buffers)
	}
}

// LoadFiles reads and parses credential files.
func LoadFiles(f Files) (*Credentials, error) {
	var b Buffers
	var err error
	if f.Certificate != "" {
		if b.Certificate, err = os.ReadFile(f.Certificate); err != nil {
			return nil, fmt.Errorf("credentials: certificate: %w", err)
		}
	}
	if f.PrivateKey != "" {
		if b.PrivateKey, err = os.ReadFile(f.PrivateKey); err != nil {
			return nil, fmt.Errorf("credentials: private key: %w", err)
		}
	}
	for _, name := range f.RootCAs {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("credentials: root CA: %w", err)
		}
		b.RootCAs = append(b.RootCAs, data)
	}
	return LoadBuffers(b)
}

// LoadBuffers parses in-memory credentials.
func LoadBuffers(b Buffers) (*Credentials, error) {
	c := &Credentials{Roots: x509.NewCertPool()}

	switch {
	case len(b.Certificate) > 0 && len(b.PrivateKey) == 0:
		return nil, ErrCertificateWithoutKey
	case len(b.Certificate) == 0 && len(b.PrivateKey) > 0:
		return nil, ErrKeyWithoutCertificate
	}

	if len(b.Certificate) > 0 {
		chain, err := ParseCertificates(b.Certificate)
		if err != nil {
			return nil, fmt.Errorf("certificate: %w", err)
		}
		key, err := ParsePrivateKey(b.PrivateKey)
		if err != nil {
			return nil, err
		}
		if err := checkKeyPair(chain[0], key); err != nil {
			return nil, err
		}
		c.Chain = chain
		c.PrivateKey = key
	}

	for _, data := range b.RootCAs {
		roots, err := ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("root CA: %w", err)
		}
		for _, root := range roots {
			c.Roots.AddCert(root)
			c.rootCount++
		}
	}
	return c, nil
}

// HasIdentity reports whether a local certificate and key are present.
func (c *Credentials) HasIdentity() bool {
	return c != nil && len(c.Chain) > 0 && c.PrivateKey != nil
}

// HasRoots reports whether at least one trusted root is configured.
func (c *Credentials) HasRoots() bool {
	return c != nil && c.rootCount > 0
}

// ChainDER returns the local chain in DER, leaf first.
func (c *Credentials) ChainDER() [][]byte {
	out := make([][]byte, len(c.Chain))
	for i, cert := range c.Chain {
		out[i] = cert.Raw
	}
	return out
}

// ParseCertificates decodes one or more certificates from PEM or
// concatenated DER.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	if !isPEM(data) {
		certs, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
		if len(certs) == 0 {
			return nil, ErrNoCertificate
		}
		return certs, nil
	}

	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificate
	}
	return certs, nil
}

// ParsePrivateKey decodes an ECDSA private key from PEM (SEC 1 or PKCS #8)
// or DER.
func ParsePrivateKey(data []byte) (*detecdsa.PrivateKey, error) {
	der := data
	if isPEM(data) {
		der = nil
		for {
			var block *pem.Block
			block, data = pem.Decode(data)
			if block == nil {
				break
			}
			if block.Type == "EC PRIVATE KEY" || block.Type == "PRIVATE KEY" {
				der = block.Bytes
				break
			}
		}
		if der == nil {
			return nil, ErrNoPrivateKey
		}
	}

	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return fromECDSA(k)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %w", ErrParseFailed, err)
	}
	ec, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return fromECDSA(ec)
}

func fromECDSA(k *ecdsa.PrivateKey) (*detecdsa.PrivateKey, error) {
	priv, err := detecdsa.FromECDSA(k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	return priv, nil
}

// PublicKey extracts the signature verification key of cert.
func PublicKey(cert *x509.Certificate) (*detecdsa.PublicKey, error) {
	ec, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, cert.PublicKey)
	}
	pub, err := detecdsa.PublicFromECDSA(ec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKey, err)
	}
	return pub, nil
}

func checkKeyPair(leaf *x509.Certificate, key *detecdsa.PrivateKey) error {
	pub, err := PublicKey(leaf)
	if err != nil {
		return err
	}
	if pub.Curve != key.Curve || !bytes.Equal(pub.Bytes(), key.Public().Bytes()) {
		return ErrKeyMismatch
	}
	return nil
}

func isPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN"))
}
