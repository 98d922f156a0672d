package credentials

import (
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ParseChain decodes a DER chain received from a peer, leaf first.
func ParseChain(chain [][]byte) ([]*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}
	certs := make([]*x509.Certificate, 0, len(chain))
	for i, der := range chain {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: certificate %d: %w", ErrParseFailed, i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// VerifyPeer parses a peer chain and verifies it against the trusted
// roots for the given key usage. Certificates after the leaf are used as
// intermediates.
func (c *Credentials) VerifyPeer(chain [][]byte, usage x509.ExtKeyUsage, now time.Time) ([]*x509.Certificate, error) {
	certs, err := ParseChain(chain)
	if err != nil {
		return nil, err
	}
	if !c.HasRoots() {
		return nil, ErrNoTrustedRoots
	}

	leaf := certs[0]
	if err := validateCertTime(leaf, now); err != nil {
		return nil, err
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         c.Roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{usage},
	})
	if err != nil {
		return nil, classifyVerifyError(err)
	}
	return certs, nil
}

func classifyVerifyError(err error) error {
	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		return fmt.Errorf("%w: %w", ErrCertificateUnknownIssuer, err)
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
		return fmt.Errorf("%w: %w", ErrCertificateExpired, err)
	}
	return fmt.Errorf("%w: %w", ErrCertificateChainBroken, err)
}

// validateCertTime validates the certificate's validity period.
func validateCertTime(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return ErrCertificateNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrCertificateExpired
	}
	return nil
}
