package credentials

import "errors"

// Credential loading errors.
var (
	ErrMixedCredentialSources = errors.New("credentials: files and buffers cannot be mixed")
	ErrNoCertificate          = errors.New("credentials: no certificate found")
	ErrNoPrivateKey           = errors.New("credentials: no private key found")
	ErrCertificateWithoutKey  = errors.New("credentials: certificate configured without private key")
	ErrKeyWithoutCertificate  = errors.New("credentials: private key configured without certificate")
	ErrKeyMismatch            = errors.New("credentials: private key does not match certificate")
	ErrUnsupportedKey         = errors.New("credentials: unsupported key type (ECDSA P-256/P-384/P-521 only)")
	ErrParseFailed            = errors.New("credentials: failed to parse")
)

// Certificate validation errors.
var (
	ErrNoTrustedRoots           = errors.New("credentials: no trusted roots configured")
	ErrEmptyChain               = errors.New("credentials: peer sent no certificate")
	ErrCertificateChainBroken   = errors.New("credentials: certificate chain validation failed")
	ErrCertificateExpired       = errors.New("credentials: certificate expired")
	ErrCertificateNotYetValid   = errors.New("credentials: certificate not yet valid")
	ErrCertificateUnknownIssuer = errors.New("credentials: certificate signed by unknown authority")
)
