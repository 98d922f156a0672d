// Package record implements record framing and protection: headers,
// fragmentation, AEAD sealing, epochs, sequence numbers and datagram
// replay protection.
package record

import (
	"errors"
	"fmt"

	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/transport"
	"github.com/pion/logging"
)

// Epochs. Epoch 0 carries the plaintext handshake; protected traffic
// starts at epoch 1 once keys are installed.
const (
	EpochPlaintext uint16 = 0
	EpochTraffic   uint16 = 1
)

// Record is one received record after decryption.
type Record struct {
	Type     ContentType
	Epoch    uint16
	Sequence uint64
	Payload  []byte
}

// Config configures a Layer.
type Config struct {
	// Transport carries the records. Required.
	Transport transport.Transport

	// Mode selects stream or datagram framing.
	Mode Mode

	// Version overrides the record header version.
	// Default: Mode.DefaultVersion()
	Version uint16

	// MaxFragment limits the plaintext carried per record.
	// Default: Mode.DefaultMaxFragment(). Range: [MinFragment, MaxPlaintext].
	MaxFragment int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// writeState is the outbound state of one epoch.
type writeState struct {
	prot *Protection
	seq  *SequenceCounter
}

// readState is the inbound state of one epoch.
type readState struct {
	prot   *Protection
	seq    *SequenceCounter // stream mode implicit sequence
	window ReplayWindow     // datagram mode
}

// Layer frames, protects and moves records over a Transport. It is used
// by a single session and is not safe for concurrent use.
//
// Outbound records are queued and written by Flush. A Flush interrupted by
// a retryable transport error resumes where it stopped on the next call,
// so no record is ever sent twice or skipped.
type Layer struct {
	tr          transport.Transport
	mode        Mode
	version     uint16
	maxFragment int
	log         logging.LeveledLogger

	writeEpoch uint16
	writes     [2]*writeState
	readEpoch  uint16
	reads      [2]*readState

	out    [][]byte
	outOff int

	in      []byte
	recvBuf []byte
	dropped int
	zeroed  bool
}

// NewLayer creates a record layer.
func NewLayer(config Config) (*Layer, error) {
	if config.Transport == nil {
		return nil, ErrNoTransport
	}
	l := &Layer{
		tr:          config.Transport,
		mode:        config.Mode,
		version:     config.Version,
		maxFragment: config.MaxFragment,
	}
	if l.version == 0 {
		l.version = l.mode.DefaultVersion()
	}
	if l.maxFragment == 0 {
		l.maxFragment = l.mode.DefaultMaxFragment()
	}
	if l.maxFragment < MinFragment || l.maxFragment > MaxPlaintext {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFragment, l.maxFragment)
	}
	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("record")
	}

	limit := l.mode.MaxSequence()
	l.writes[EpochPlaintext] = &writeState{seq: NewSequenceCounter(limit)}
	l.reads[EpochPlaintext] = &readState{seq: NewSequenceCounter(limit)}

	size := MaxCiphertext + l.mode.HeaderSize()
	if l.mode == ModeDatagram {
		size = transport.MaxDatagramSize
	}
	l.recvBuf = make([]byte, size)
	return l, nil
}

// Mode returns the framing mode.
func (l *Layer) Mode() Mode { return l.mode }

// MaxFragment returns the plaintext limit per record.
func (l *Layer) MaxFragment() int { return l.maxFragment }

// SetTransport replaces the transport. Queued and buffered data is kept.
func (l *Layer) SetTransport(t transport.Transport) {
	l.tr = t
}

// Protected reports whether outbound records are encrypted.
func (l *Layer) Protected() bool {
	return l.writeEpoch == EpochTraffic
}

// InstallKeys switches both directions to epoch 1 with the given keys.
// Records already queued keep the protection they were built with.
func (l *Layer) InstallKeys(read, write *Protection) {
	limit := l.mode.MaxSequence()
	l.writes[EpochTraffic] = &writeState{prot: write, seq: NewSequenceCounter(limit)}
	l.reads[EpochTraffic] = &readState{prot: read, seq: NewSequenceCounter(limit)}
	l.writeEpoch = EpochTraffic
	l.readEpoch = EpochTraffic
	if l.log != nil {
		l.log.Debugf("installed %s keys, epoch %d", write.Suite(), EpochTraffic)
	}
}

// Queue frames payload into records of the current write epoch. Payloads
// longer than the fragment limit are split; an empty payload queues
// nothing.
func (l *Layer) Queue(ct ContentType, payload []byte) error {
	return l.QueueEpoch(l.writeEpoch, ct, payload)
}

// QueueEpoch frames payload into records of an explicit epoch. Datagram
// handshake retransmissions use it to resend epoch 0 messages after
// keys are installed.
func (l *Layer) QueueEpoch(epoch uint16, ct ContentType, payload []byte) error {
	if l.zeroed {
		return ErrKeysZeroized
	}
	if int(epoch) >= len(l.writes) || l.writes[epoch] == nil {
		return fmt.Errorf("%w: no write state for epoch %d", ErrUnexpectedRecord, epoch)
	}
	ws := l.writes[epoch]

	for len(payload) > 0 {
		n := min(len(payload), l.maxFragment)
		rec, err := l.seal(epoch, ws, ct, payload[:n])
		if err != nil {
			return err
		}
		l.out = append(l.out, rec)
		payload = payload[n:]
	}
	return nil
}

func (l *Layer) seal(epoch uint16, ws *writeState, ct ContentType, fragment []byte) ([]byte, error) {
	seq, err := ws.seq.Next()
	if err != nil {
		return nil, err
	}

	hdr := Header{Type: ct, Version: l.version, Epoch: epoch, Sequence: seq, Length: len(fragment)}
	if ws.prot == nil {
		return append(hdr.Marshal(l.mode), fragment...), nil
	}

	// Protected records hide the content type inside the ciphertext.
	hdr.Type = ContentApplicationData
	hdr.Length = len(fragment) + 1 + ws.prot.Overhead()
	aad := hdr.Marshal(l.mode)

	inner := make([]byte, 0, len(fragment)+1)
	inner = append(inner, fragment...)
	inner = append(inner, byte(ct))

	counter := seq
	if l.mode == ModeDatagram {
		counter = crypto.DatagramCounter(epoch, seq)
	}
	return ws.prot.Seal(aad, counter, aad, inner)
}

// Pending reports whether queued records are waiting for Flush.
func (l *Layer) Pending() bool {
	return len(l.out) > 0
}

// Flush writes queued records. On a transport error the remaining
// records stay queued and the error is returned unchanged.
func (l *Layer) Flush() error {
	for len(l.out) > 0 {
		rec := l.out[0]
		n, err := l.tr.Send(rec[l.outOff:])
		if err != nil {
			return err
		}
		if n == 0 {
			return transport.ErrConnClosed
		}
		if l.mode == ModeDatagram {
			// A datagram is all or nothing.
			n = len(rec) - l.outOff
		}
		l.outOff += n
		if l.outOff < len(rec) {
			continue
		}
		if l.log != nil {
			l.log.Tracef("sent %s record, %d bytes", ContentType(rec[0]), len(rec))
		}
		l.out[0] = nil
		l.out = l.out[1:]
		l.outOff = 0
	}
	return nil
}

// DiscardPending drops queued records that were not yet written.
func (l *Layer) DiscardPending() {
	l.out = nil
	l.outOff = 0
}

// ReadRecord returns the next authentic record. Datagram records that
// must be ignored are skipped silently. Transport errors, including
// retryable ones, are returned unchanged with partial input kept.
func (l *Layer) ReadRecord() (Record, error) {
	if l.zeroed {
		return Record{}, ErrKeysZeroized
	}
	for {
		rec, ok, err := l.parse()
		if errors.Is(err, ErrRecordDropped) {
			l.dropped++
			if l.log != nil {
				l.log.Debugf("dropped record: %v", err)
			}
			continue
		}
		if err != nil {
			return Record{}, err
		}
		if ok {
			if l.log != nil {
				l.log.Tracef("received %s record epoch=%d seq=%d len=%d", rec.Type, rec.Epoch, rec.Sequence, len(rec.Payload))
			}
			return rec, nil
		}

		if err := l.receive(); err != nil {
			return Record{}, err
		}
	}
}

// Dropped returns the number of records discarded so far.
func (l *Layer) Dropped() int {
	return l.dropped
}

// Buffered returns the number of received bytes not yet parsed.
func (l *Layer) Buffered() int {
	return len(l.in)
}

func (l *Layer) receive() error {
	if l.mode == ModeDatagram && len(l.in) > 0 {
		// Leftover bytes of a datagram never complete a record.
		l.in = l.in[:0]
		l.dropped++
	}
	n, err := l.tr.Receive(l.recvBuf)
	if err != nil {
		return err
	}
	if n == 0 {
		// A zero-byte receive is an orderly close.
		return transport.ErrConnClosed
	}
	l.in = append(l.in, l.recvBuf[:n]...)
	return nil
}

// parse extracts one record from the input buffer. ok is false when more
// input is needed.
func (l *Layer) parse() (Record, bool, error) {
	hs := l.mode.HeaderSize()
	if len(l.in) < hs {
		return Record{}, false, nil
	}
	hdr, err := ParseHeader(l.mode, l.in)
	if err != nil {
		return Record{}, false, err
	}
	if hdr.Length > MaxCiphertext {
		return Record{}, false, fmt.Errorf("%w: %d bytes", ErrRecordOverflow, hdr.Length)
	}
	if len(l.in) < hs+hdr.Length {
		return Record{}, false, nil
	}

	raw := l.in[:hs+hdr.Length]
	l.in = l.in[hs+hdr.Length:]

	if l.mode == ModeDatagram {
		return l.openDatagram(hdr, raw[:hs], raw[hs:])
	}
	return l.openStream(hdr, raw[:hs], raw[hs:])
}

func (l *Layer) openStream(hdr Header, aad, body []byte) (Record, bool, error) {
	if hdr.Version != l.version {
		return Record{}, false, fmt.Errorf("%w: %#04x", ErrBadVersion, hdr.Version)
	}

	rs := l.reads[l.readEpoch]
	if rs.prot == nil {
		if hdr.Type != ContentHandshake && hdr.Type != ContentAlert {
			return Record{}, false, fmt.Errorf("%w: plaintext %s", ErrUnexpectedRecord, hdr.Type)
		}
		if len(body) > MaxPlaintext {
			return Record{}, false, fmt.Errorf("%w: plaintext of %d bytes", ErrRecordOverflow, len(body))
		}
		seq, err := rs.seq.Next()
		if err != nil {
			return Record{}, false, err
		}
		return Record{Type: hdr.Type, Epoch: l.readEpoch, Sequence: seq, Payload: clone(body)}, true, nil
	}

	if hdr.Type != ContentApplicationData {
		return Record{}, false, fmt.Errorf("%w: unprotected %s after key change", ErrUnexpectedRecord, hdr.Type)
	}
	seq, err := rs.seq.Next()
	if err != nil {
		return Record{}, false, err
	}
	plain, err := rs.prot.Open(nil, seq, aad, body)
	if err != nil {
		return Record{}, false, err
	}
	ct, payload, err := splitInner(plain)
	if err != nil {
		return Record{}, false, err
	}
	return Record{Type: ct, Epoch: l.readEpoch, Sequence: seq, Payload: payload}, true, nil
}

func (l *Layer) openDatagram(hdr Header, aad, body []byte) (Record, bool, error) {
	if hdr.Version != l.version {
		return Record{}, false, fmt.Errorf("%w: version %#04x", ErrRecordDropped, hdr.Version)
	}
	if int(hdr.Epoch) >= len(l.reads) || l.reads[hdr.Epoch] == nil {
		return Record{}, false, fmt.Errorf("%w: unknown epoch %d", ErrRecordDropped, hdr.Epoch)
	}
	if hdr.Sequence >= MaxDatagramSequence {
		return Record{}, false, fmt.Errorf("%w: sequence %d out of range", ErrRecordDropped, hdr.Sequence)
	}
	rs := l.reads[hdr.Epoch]
	if !rs.window.Check(hdr.Sequence) {
		return Record{}, false, fmt.Errorf("%w: replayed epoch=%d seq=%d", ErrRecordDropped, hdr.Epoch, hdr.Sequence)
	}

	if rs.prot == nil {
		// Once keys are installed, epoch 0 only carries handshake
		// retransmissions.
		plaintextOK := hdr.Type == ContentHandshake ||
			(hdr.Type == ContentAlert && l.readEpoch == EpochPlaintext)
		if !plaintextOK {
			return Record{}, false, fmt.Errorf("%w: plaintext %s in epoch %d", ErrRecordDropped, hdr.Type, hdr.Epoch)
		}
		if len(body) > MaxPlaintext {
			return Record{}, false, fmt.Errorf("%w: plaintext of %d bytes", ErrRecordOverflow, len(body))
		}
		rs.window.Accept(hdr.Sequence)
		return Record{Type: hdr.Type, Epoch: hdr.Epoch, Sequence: hdr.Sequence, Payload: clone(body)}, true, nil
	}

	if hdr.Type != ContentApplicationData {
		return Record{}, false, fmt.Errorf("%w: unprotected %s in epoch %d", ErrRecordDropped, hdr.Type, hdr.Epoch)
	}
	// Authentication failure is fatal even for datagrams.
	plain, err := rs.prot.Open(nil, crypto.DatagramCounter(hdr.Epoch, hdr.Sequence), aad, body)
	if err != nil {
		return Record{}, false, err
	}
	ct, payload, err := splitInner(plain)
	if err != nil {
		return Record{}, false, err
	}
	rs.window.Accept(hdr.Sequence)
	return Record{Type: ct, Epoch: hdr.Epoch, Sequence: hdr.Sequence, Payload: payload}, true, nil
}

// splitInner removes the inner content type and any zero padding.
func splitInner(plain []byte) (ContentType, []byte, error) {
	i := len(plain) - 1
	for i >= 0 && plain[i] == 0 {
		i--
	}
	if i < 0 {
		return 0, nil, fmt.Errorf("%w: missing inner content type", ErrUnexpectedRecord)
	}
	ct := ContentType(plain[i])
	if !ct.IsValid() {
		return 0, nil, fmt.Errorf("%w: inner type %s", ErrUnexpectedRecord, ct)
	}
	if i > MaxPlaintext {
		return 0, nil, fmt.Errorf("%w: plaintext of %d bytes", ErrRecordOverflow, i)
	}
	return ct, plain[:i], nil
}

// Zeroize clears all key material and buffers. The layer is unusable
// afterwards.
func (l *Layer) Zeroize() {
	for _, ws := range l.writes {
		if ws != nil {
			ws.prot.Zeroize()
		}
	}
	for _, rs := range l.reads {
		if rs != nil {
			rs.prot.Zeroize()
		}
	}
	clear(l.in)
	clear(l.recvBuf)
	l.in = nil
	l.out = nil
	l.outOff = 0
	l.zeroed = true
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
