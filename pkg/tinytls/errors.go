package tinytls

import (
	"errors"
	"io"

	"github.com/backkem/tinytls/pkg/handshake"
	"github.com/backkem/tinytls/pkg/record"
	"github.com/backkem/tinytls/pkg/transport"
)

// Session and context errors.
var (
	// ErrNotReady is returned by Read and Write before the handshake
	// completes.
	ErrNotReady = errors.New("tinytls: session not established")

	// ErrSessionClosed is returned after Shutdown or Close.
	ErrSessionClosed = errors.New("tinytls: session closed")

	// ErrSessionFailed wraps the error that moved a session to FAILED.
	ErrSessionFailed = errors.New("tinytls: session failed")

	// ErrCryptoUnavailable is returned by a CryptoDevice for requests it
	// does not handle. The software implementation is used instead.
	ErrCryptoUnavailable = errors.New("tinytls: crypto device cannot handle request")
)

// Configuration errors. They are returned synchronously, before any I/O.
var (
	ErrInvalidConfig    = errors.New("tinytls: invalid configuration")
	ErrContextClosed    = errors.New("tinytls: context closed")
	ErrNoTransport      = errors.New("tinytls: no transport configured")
	ErrWrongRole        = errors.New("tinytls: operation not valid for session role")
	ErrNoIdentity       = errors.New("tinytls: server sessions require a certificate and key")
	ErrNoTrustedRoots   = errors.New("tinytls: peer verification requires trusted roots")
	ErrUnsupportedSuite = errors.New("tinytls: unsupported cipher suite")
	ErrUnsupportedGroup = errors.New("tinytls: unsupported key exchange group")
	ErrInvalidFragment  = errors.New("tinytls: invalid maximum fragment length")
	ErrInvalidProtocol  = errors.New("tinytls: invalid protocol variant")
)

// Kind classifies an error returned by this package.
type Kind int

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota

	// KindRetryable asks the caller to repeat the call when the transport
	// is ready (WantRead/WantWrite).
	KindRetryable

	// KindPeerClosed reports an orderly close by the peer.
	KindPeerClosed

	// KindProtocolViolation reports a handshake or record failure. The
	// session is FAILED.
	KindProtocolViolation

	// KindConfiguration reports invalid configuration or API misuse.
	KindConfiguration

	// KindNotReady reports Read or Write before ESTABLISHED.
	KindNotReady

	// KindSessionClosed reports use after Shutdown or Close.
	KindSessionClosed

	// KindTransport reports a transport error. It is fatal except for
	// transport.ErrTimeout on a DTLS session, which leaves the session
	// in its current state; the caller calls HandleTimeout and retries.
	KindTransport
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRetryable:
		return "retryable"
	case KindPeerClosed:
		return "peer-closed"
	case KindProtocolViolation:
		return "protocol-violation"
	case KindConfiguration:
		return "configuration"
	case KindNotReady:
		return "not-ready"
	case KindSessionClosed:
		return "session-closed"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

var configErrors = []error{
	ErrInvalidConfig, ErrContextClosed, ErrNoTransport, ErrWrongRole, ErrNoIdentity,
	handshake.ErrNoIdentity, handshake.ErrNoRecordLayer, record.ErrNoTransport,
}

// KindOf classifies err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	if transport.IsRetryable(err) {
		return KindRetryable
	}
	var alert record.Alert
	if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrConnClosed) ||
		(errors.As(err, &alert) && alert.IsCloseNotify()) {
		return KindPeerClosed
	}
	if errors.Is(err, ErrNotReady) {
		return KindNotReady
	}
	if errors.Is(err, ErrSessionClosed) || errors.Is(err, handshake.ErrHandshakeClosed) {
		return KindSessionClosed
	}
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return KindConfiguration
		}
	}
	if transport.Code(err) != nil {
		return KindTransport
	}
	return KindProtocolViolation
}
