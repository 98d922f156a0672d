package handshake

import (
	"errors"

	"github.com/backkem/tinytls/pkg/credentials"
	"github.com/backkem/tinytls/pkg/record"
)

// Handshake errors. Every protocol error moves the machine to
// StateFailed after a best-effort fatal alert.
var (
	ErrUnexpectedMessage   = errors.New("handshake: unexpected message")
	ErrDecode              = errors.New("handshake: malformed message")
	ErrVersionMismatch     = errors.New("handshake: unsupported protocol version")
	ErrNoCommonSuite       = errors.New("handshake: no common cipher suite")
	ErrNoCommonGroup       = errors.New("handshake: no common key exchange group")
	ErrBadKeyShare         = errors.New("handshake: invalid key share")
	ErrBadFinished         = errors.New("handshake: finished verification failed")
	ErrBadSignature        = errors.New("handshake: certificate verify signature invalid")
	ErrUnsupportedScheme   = errors.New("handshake: unsupported signature scheme")
	ErrNoPeerCertificate   = errors.New("handshake: peer sent no certificate")
	ErrBadCertificate      = errors.New("handshake: bad peer certificate")
	ErrMessageTooLarge     = errors.New("handshake: message too large")
	ErrAlertReceived       = errors.New("handshake: alert received")
	ErrHandshakeFailed     = errors.New("handshake: handshake failed")
	ErrHandshakeClosed     = errors.New("handshake: handshake closed")
	ErrNotEstablished      = errors.New("handshake: not established")
	ErrInvalidState        = errors.New("handshake: invalid state")
	ErrNoIdentity          = errors.New("handshake: server has no certificate")
	ErrNoRecordLayer       = errors.New("handshake: no record layer configured")
	ErrNothingToRetransmit = errors.New("handshake: no flight to retransmit")
)

// AlertFor maps a handshake error to the alert sent before failing.
func AlertFor(err error) record.AlertDescription {
	switch {
	case errors.Is(err, ErrDecode), errors.Is(err, ErrMessageTooLarge):
		return record.AlertDecodeError
	case errors.Is(err, ErrUnexpectedMessage):
		return record.AlertUnexpectedMessage
	case errors.Is(err, ErrVersionMismatch):
		return record.AlertProtocolVersion
	case errors.Is(err, ErrNoCommonSuite), errors.Is(err, ErrNoCommonGroup):
		return record.AlertHandshakeFailure
	case errors.Is(err, ErrBadKeyShare), errors.Is(err, ErrUnsupportedScheme):
		return record.AlertIllegalParameter
	case errors.Is(err, ErrBadFinished), errors.Is(err, ErrBadSignature):
		return record.AlertDecryptError
	case errors.Is(err, ErrNoPeerCertificate):
		return record.AlertCertificateRequired
	case errors.Is(err, credentials.ErrCertificateUnknownIssuer):
		return record.AlertUnknownCA
	case errors.Is(err, credentials.ErrUnsupportedKey):
		return record.AlertUnsupportedCertificate
	case errors.Is(err, ErrBadCertificate):
		return record.AlertBadCertificate
	default:
		return record.AlertFor(err)
	}
}
