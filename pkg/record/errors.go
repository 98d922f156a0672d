package record

import "errors"

// Record layer errors.
var (
	// Fatal errors: the connection cannot continue.
	ErrRecordOverflow    = errors.New("record: record overflow")
	ErrBadRecordMAC      = errors.New("record: bad record mac")
	ErrSequenceExhausted = errors.New("record: sequence number exhausted")
	ErrBadVersion        = errors.New("record: unexpected protocol version")
	ErrUnexpectedRecord  = errors.New("record: unexpected record")
	ErrInvalidHeader     = errors.New("record: invalid header")
	ErrKeysZeroized      = errors.New("record: protection keys zeroized")

	// ErrRecordDropped marks a datagram record discarded without changing
	// any state: a replay, a stale or unknown epoch, or a forgery.
	ErrRecordDropped = errors.New("record: record dropped")

	// Configuration errors.
	ErrNoTransport      = errors.New("record: no transport configured")
	ErrInvalidFragment  = errors.New("record: invalid maximum fragment length")
	ErrInvalidKeyLength = errors.New("record: invalid key or iv length")
)
