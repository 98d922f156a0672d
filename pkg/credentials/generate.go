package credentials

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/backkem/tinytls/pkg/crypto/detecdsa"
	"github.com/google/uuid"
)

// GenerateOptions configures GenerateDemoSet.
type GenerateOptions struct {
	// Curve for all three keys.
	// Default: detecdsa.CurveP256
	Curve detecdsa.Curve

	// Hosts are the server certificate's DNS names or IP addresses.
	// Default: localhost, 127.0.0.1
	Hosts []string

	// Validity is the lifetime of every certificate.
	// Default: 365 days
	Validity time.Duration

	// Now is the start of the validity period.
	// Default: time.Now()
	Now time.Time

	// Random is the entropy source for key generation.
	// Default: crypto/rand.Reader
	Random io.Reader
}

func (o GenerateOptions) withDefaults() GenerateOptions {
	if o.Curve == 0 {
		o.Curve = detecdsa.CurveP256
	}
	if len(o.Hosts) == 0 {
		o.Hosts = []string{"localhost", "127.0.0.1"}
	}
	if o.Validity == 0 {
		o.Validity = 365 * 24 * time.Hour
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Random == nil {
		o.Random = rand.Reader
	}
	return o
}

// DemoSet is a self-contained PKI: one CA and a server and client leaf
// issued by it. All fields are PEM.
type DemoSet struct {
	CACert     []byte
	CAKey      []byte
	ServerCert []byte
	ServerKey  []byte
	ClientCert []byte
	ClientKey  []byte
}

// GenerateDemoSet issues a fresh CA, server and client certificate.
func GenerateDemoSet(opts GenerateOptions) (*DemoSet, error) {
	opts = opts.withDefaults()
	notBefore := opts.Now.Add(-time.Minute)
	notAfter := opts.Now.Add(opts.Validity)

	caKey, err := detecdsa.GenerateKey(opts.Curve, opts.Random)
	if err != nil {
		return nil, err
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          newSerial(),
		Subject:               pkix.Name{CommonName: "tinytls demo CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(opts.Random, caTmpl, caTmpl, caKey.ECDSA().Public(), caKey.ECDSA())
	if err != nil {
		return nil, fmt.Errorf("credentials: create CA: %w", err)
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		return nil, err
	}

	set := &DemoSet{CACert: encodePEM("CERTIFICATE", caDER)}
	if set.CAKey, err = EncodePrivateKeyPEM(caKey); err != nil {
		return nil, err
	}

	leaves := []struct {
		name  string
		usage x509.ExtKeyUsage
		cert  *[]byte
		key   *[]byte
	}{
		{"tinytls demo server", x509.ExtKeyUsageServerAuth, &set.ServerCert, &set.ServerKey},
		{"tinytls demo client", x509.ExtKeyUsageClientAuth, &set.ClientCert, &set.ClientKey},
	}
	for _, leaf := range leaves {
		key, err := detecdsa.GenerateKey(opts.Curve, opts.Random)
		if err != nil {
			return nil, err
		}
		tmpl := &x509.Certificate{
			SerialNumber: newSerial(),
			Subject:      pkix.Name{CommonName: leaf.name},
			NotBefore:    notBefore,
			NotAfter:     notAfter,
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{leaf.usage},
		}
		if leaf.usage == x509.ExtKeyUsageServerAuth {
			for _, h := range opts.Hosts {
				if ip := net.ParseIP(h); ip != nil {
					tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
				} else {
					tmpl.DNSNames = append(tmpl.DNSNames, h)
				}
			}
		}
		der, err := x509.CreateCertificate(opts.Random, tmpl, ca, key.ECDSA().Public(), caKey.ECDSA())
		if err != nil {
			return nil, fmt.Errorf("credentials: create %s: %w", leaf.name, err)
		}
		*leaf.cert = encodePEM("CERTIFICATE", der)
		if *leaf.key, err = EncodePrivateKeyPEM(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// ServerBuffers returns the server identity trusting the demo CA.
func (s *DemoSet) ServerBuffers() Buffers {
	return Buffers{Certificate: s.ServerCert, PrivateKey: s.ServerKey, RootCAs: [][]byte{s.CACert}}
}

// ClientBuffers returns the client identity trusting the demo CA.
func (s *DemoSet) ClientBuffers() Buffers {
	return Buffers{Certificate: s.ClientCert, PrivateKey: s.ClientKey, RootCAs: [][]byte{s.CACert}}
}

// File names written by WriteFiles.
const (
	CACertFile     = "ca-cert.pem"
	CAKeyFile      = "ca-key.pem"
	ServerCertFile = "server-cert.pem"
	ServerKeyFile  = "server-key.pem"
	ClientCertFile = "client-cert.pem"
	ClientKeyFile  = "client-key.pem"
)

// WriteFiles stores the set in dir and returns the server and client
// file sets. Private keys are written with mode 0600.
func (s *DemoSet) WriteFiles(dir string) (server, client Files, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, Files{}, err
	}
	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{CACertFile, s.CACert, 0o644},
		{CAKeyFile, s.CAKey, 0o600},
		{ServerCertFile, s.ServerCert, 0o644},
		{ServerKeyFile, s.ServerKey, 0o600},
		{ClientCertFile, s.ClientCert, 0o644},
		{ClientKeyFile, s.ClientKey, 0o600},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, f.mode); err != nil {
			return Files{}, Files{}, err
		}
	}
	ca := []string{filepath.Join(dir, CACertFile)}
	server = Files{Certificate: filepath.Join(dir, ServerCertFile), PrivateKey: filepath.Join(dir, ServerKeyFile), RootCAs: ca}
	client = Files{Certificate: filepath.Join(dir, ClientCertFile), PrivateKey: filepath.Join(dir, ClientKeyFile), RootCAs: ca}
	return server, client, nil
}

// EncodePrivateKeyPEM encodes key as a SEC 1 "EC PRIVATE KEY" block.
func EncodePrivateKeyPEM(key *detecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key.ECDSA())
	if err != nil {
		return nil, err
	}
	return encodePEM("EC PRIVATE KEY", der), nil
}

// EncodeCertificatePEM encodes DER certificates as PEM.
func EncodeCertificatePEM(ders ...[]byte) []byte {
	var out []byte
	for _, der := range ders {
		out = append(out, encodePEM("CERTIFICATE", der)...)
	}
	return out
}

func encodePEM(typ string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der})
}

// newSerial derives a positive 128-bit serial number from a random UUID.
func newSerial() *big.Int {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:])
}
