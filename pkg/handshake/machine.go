// Package handshake implements the client and server handshake state
// machines: message codec, transcript, key schedule, certificate
// authentication and datagram reassembly and retransmission.
//
// A Machine is driven by repeated calls to Step. Each call flushes queued
// records and then performs at most one transition. Retryable transport
// errors are returned with the state unchanged, so the caller can repeat
// the call once the transport is ready.
package handshake

import (
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/backkem/tinytls/pkg/credentials"
	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/crypto/detecdsa"
	"github.com/backkem/tinytls/pkg/record"
	"github.com/backkem/tinytls/pkg/transport"
	"github.com/pion/logging"
)

// Config configures a Machine.
type Config struct {
	// Role selects the client or server state machine.
	Role Role

	// Records carries the handshake. Required.
	Records *record.Layer

	// Credentials holds the local identity and the trusted roots.
	// A server requires an identity.
	Credentials *credentials.Credentials

	// Verify selects peer certificate verification.
	Verify VerifyMode

	// FailIfNoPeerCert makes a server fail when the client sends no
	// certificate. It also makes the server request one.
	FailIfNoPeerCert bool

	// Version is the protocol version exchanged in the hellos.
	// Default: the record layer's mode default.
	Version uint16

	// CipherSuites in preference order. Default: DefaultCipherSuites.
	CipherSuites []CipherSuite

	// Groups in preference order. Default: DefaultGroups.
	Groups []crypto.Group

	// Hash replaces software transcript hashing.
	Hash HashFunc

	// Rand is the randomness source. Default: crypto/rand.Reader.
	Rand io.Reader

	// Now returns the time used for certificate validity.
	// Default: time.Now.
	Now func() time.Time

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// outbound is one sent message, kept for datagram retransmission.
type outbound struct {
	typ  MessageType
	seq  uint16
	body []byte
}

// Machine runs one handshake. It is not safe for concurrent use.
type Machine struct {
	config  Config
	role    Role
	records *record.Layer
	log     logging.LeveledLogger

	state State
	err   error

	transcript transcript
	stream     streamInbox
	reasm      *reassembler
	sendSeq    uint16

	flight     []outbound
	lastFlight []outbound

	suite        CipherSuite
	group        crypto.Group
	keyShare     *crypto.KeyShare
	schedule     *KeySchedule
	shared       []byte
	clientFinKey []byte
	serverFinKey []byte

	clientRandom [RandomSize]byte
	serverRandom [RandomSize]byte

	certRequested    bool
	requestedSchemes []SignatureScheme
	peerChain        []*x509.Certificate
	peerKey          *detecdsa.PublicKey
	peerCertSeen     bool
	peerVerified     bool

	retransmits int
}

// NewMachine creates a machine in StateInit.
func NewMachine(config Config) (*Machine, error) {
	if config.Records == nil {
		return nil, ErrNoRecordLayer
	}
	if config.Role == RoleServer && !config.Credentials.HasIdentity() {
		return nil, ErrNoIdentity
	}
	if config.Version == 0 {
		config.Version = config.Records.Mode().DefaultVersion()
	}
	if len(config.CipherSuites) == 0 {
		config.CipherSuites = DefaultCipherSuites
	}
	if len(config.Groups) == 0 {
		config.Groups = DefaultGroups
	}
	if config.Hash == nil {
		config.Hash = softwareHash
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	m := &Machine{
		config:     config,
		role:       config.Role,
		records:    config.Records,
		state:      StateInit,
		transcript: transcript{hash: config.Hash},
		reasm:      newReassembler(),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("handshake")
	}
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Role returns the machine role.
func (m *Machine) Role() Role { return m.role }

// Err returns the error that ended the handshake, if any.
func (m *Machine) Err() error { return m.err }

// CipherSuite returns the negotiated suite, or 0 before negotiation.
func (m *Machine) CipherSuite() CipherSuite { return m.suite }

// Group returns the negotiated key exchange group.
func (m *Machine) Group() crypto.Group { return m.group }

// Version returns the protocol version.
func (m *Machine) Version() uint16 { return m.config.Version }

// PeerCertificates returns the chain presented by the peer, leaf first.
func (m *Machine) PeerCertificates() []*x509.Certificate { return m.peerChain }

// Retransmissions returns how many flights were resent.
func (m *Machine) Retransmissions() int { return m.retransmits }

// Run steps the machine until it is established or an error is returned.
func (m *Machine) Run() error {
	for m.state != StateEstablished {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step flushes pending records and performs at most one transition.
func (m *Machine) Step() error {
	switch m.state {
	case StateEstablished:
		return nil
	case StateFailed:
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, m.err)
	case StateClosed:
		return ErrHandshakeClosed
	}

	if err := m.step(); err != nil {
		return m.HandleError(err)
	}
	return nil
}

func (m *Machine) step() error {
	if err := m.records.Flush(); err != nil {
		return err
	}
	if m.role == RoleClient {
		return m.clientStep()
	}
	return m.serverStep()
}

func (m *Machine) setState(s State) {
	if m.log != nil {
		m.log.Debugf("%s: %s -> %s", m.role, m.state, s)
	}
	m.state = s
}

// HandleError applies the failure policy to an error from the record
// layer or transport and returns it. Retryable errors, and timeouts in
// datagram mode, leave the state unchanged. A received alert or an
// orderly transport close ends the machine without a reply. Other
// transport errors fail it silently and protocol errors fail it after a
// fatal alert. The session calls it for errors seen after the handshake.
func (m *Machine) HandleError(err error) error {
	var alert record.Alert
	switch {
	case transport.IsRetryable(err):
		return err
	case errors.Is(err, transport.ErrTimeout) && m.records.Mode() == record.ModeDatagram:
		// The caller retransmits through Retransmit and steps again.
		return err
	case errors.As(err, &alert):
		if alert.IsCloseNotify() {
			m.terminate(StateClosed, err)
		} else {
			m.terminate(StateFailed, err)
		}
		return err
	case errors.Is(err, transport.ErrConnClosed):
		m.terminate(StateClosed, err)
		return err
	case transport.Code(err) != nil:
		m.terminate(StateFailed, err)
		return err
	default:
		m.Fail(err)
		return err
	}
}

// Fail sends a fatal alert for err, best effort, and moves to
// StateFailed. Secrets and the record layer are zeroized.
func (m *Machine) Fail(err error) {
	if m.state == StateFailed || m.state == StateClosed {
		return
	}
	desc := AlertFor(err)
	if m.log != nil {
		m.log.Warnf("%s handshake failed in %s: %v (sending %s)", m.role, m.state, err, desc)
	}
	m.records.DiscardPending()
	alert := record.Alert{Level: record.AlertLevelFatal, Description: desc}
	if qerr := m.records.Queue(record.ContentAlert, alert.Marshal()); qerr == nil {
		_ = m.records.Flush()
	}
	m.terminate(StateFailed, err)
}

func (m *Machine) terminate(s State, err error) {
	if m.log != nil && s == StateClosed {
		m.log.Infof("%s handshake closed in %s: %v", m.role, m.state, err)
	}
	m.setState(s)
	m.err = err
	m.zeroize()
	m.records.Zeroize()
}

// zeroize clears handshake secrets. Safe to call more than once.
func (m *Machine) zeroize() {
	m.keyShare.Zeroize()
	m.keyShare = nil
	m.schedule.Zeroize()
	clear(m.shared)
	m.shared = nil
	clear(m.clientFinKey)
	clear(m.serverFinKey)
	m.transcript.reset()
}

// Close abandons the handshake and clears its secrets.
func (m *Machine) Close() {
	if m.state != StateFailed && m.state != StateClosed {
		m.setState(StateClosed)
	}
	m.zeroize()
	m.flight = nil
	m.lastFlight = nil
}

// emit adds a message to the current flight and the transcript.
func (m *Machine) emit(msg Message) error {
	body, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrDecode, msg.Type(), err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %s of %d bytes", ErrMessageTooLarge, msg.Type(), len(body))
	}
	out := outbound{typ: msg.Type(), seq: m.sendSeq, body: body}
	m.sendSeq++
	m.transcript.add(frame(out.typ, out.seq, out.body))
	m.flight = append(m.flight, out)
	if m.log != nil {
		m.log.Tracef("%s: queued %s seq=%d len=%d", m.role, out.typ, out.seq, len(body))
	}
	return nil
}

// sendFlight frames the current flight into records exactly once.
func (m *Machine) sendFlight() error {
	if err := m.queueFlight(m.flight, m.records.Queue); err != nil {
		return err
	}
	m.lastFlight = m.flight
	m.flight = nil
	return nil
}

func (m *Machine) queueFlight(flight []outbound, queue func(record.ContentType, []byte) error) error {
	if m.records.Mode() == record.ModeStream {
		var buf []byte
		for _, out := range flight {
			buf = append(buf, frame(out.typ, out.seq, out.body)...)
		}
		return queue(record.ContentHandshake, buf)
	}
	for _, out := range flight {
		for _, frag := range splitFragments(out.typ, out.seq, out.body, m.records.MaxFragment()) {
			if err := queue(record.ContentHandshake, frag); err != nil {
				return err
			}
		}
	}
	return nil
}

// Retransmit resends the last flight in epoch 0 with fresh record
// sequence numbers. It is a no-op in stream mode.
func (m *Machine) Retransmit() error {
	if m.records.Mode() == record.ModeStream {
		return nil
	}
	if m.state == StateFailed || m.state == StateClosed {
		return m.Step()
	}
	if len(m.lastFlight) == 0 {
		return ErrNothingToRetransmit
	}
	// A server that has seen the client's Finished has nothing to resend.
	if m.role == RoleServer && m.state == StateEstablished {
		return nil
	}
	queue := func(ct record.ContentType, p []byte) error {
		return m.records.QueueEpoch(record.EpochPlaintext, ct, p)
	}
	if err := m.queueFlight(m.lastFlight, queue); err != nil {
		return m.HandleError(err)
	}
	m.retransmits++
	if m.log != nil {
		m.log.Debugf("%s: retransmitting %d messages in %s", m.role, len(m.lastFlight), m.state)
	}
	if err := m.records.Flush(); err != nil {
		return m.HandleError(err)
	}
	return nil
}

// HandleRecord processes a handshake record received after the machine
// is established. In datagram mode a retransmitted server Finished means
// the client's last flight was lost, so the client resends it. Any other
// handshake record is a protocol violation in stream mode and ignored in
// datagram mode.
func (m *Machine) HandleRecord(rec record.Record) error {
	if m.state != StateEstablished {
		return fmt.Errorf("%w: %s", ErrNotEstablished, m.state)
	}
	if rec.Type != record.ContentHandshake {
		return fmt.Errorf("%w: %s record", ErrUnexpectedMessage, rec.Type)
	}
	if m.records.Mode() == record.ModeStream || rec.Epoch != record.EpochPlaintext {
		return fmt.Errorf("%w: post-handshake message", ErrUnexpectedMessage)
	}
	if m.role != RoleClient {
		return nil
	}
	data := rec.Payload
	for len(data) > 0 {
		f, rest, err := parseFragment(data)
		if err != nil {
			return nil
		}
		if f.typ == TypeFinished {
			return m.Retransmit()
		}
		data = rest
	}
	return nil
}

// nextMessage returns the next complete handshake message, reading
// records as needed.
func (m *Machine) nextMessage() (inbound, error) {
	for {
		in, ok, err := m.popMessage()
		if err != nil {
			return inbound{}, err
		}
		if ok {
			if m.log != nil {
				m.log.Tracef("%s: received %s seq=%d len=%d", m.role, in.typ, in.seq, len(in.body))
			}
			return in, nil
		}

		rec, err := m.records.ReadRecord()
		if err != nil {
			return inbound{}, err
		}
		if err := m.absorb(rec); err != nil {
			return inbound{}, err
		}
	}
}

func (m *Machine) popMessage() (inbound, bool, error) {
	if m.records.Mode() == record.ModeStream {
		return m.stream.pop()
	}
	in, ok := m.reasm.pop()
	return in, ok, nil
}

// absorb feeds one record into the message buffers.
func (m *Machine) absorb(rec record.Record) error {
	switch rec.Type {
	case record.ContentAlert:
		alert, err := record.ParseAlert(rec.Payload)
		if err != nil {
			return err
		}
		if alert.Level == record.AlertLevelWarning && !alert.IsCloseNotify() {
			if m.log != nil {
				m.log.Debugf("%s: ignoring warning alert %s", m.role, alert.Description)
			}
			return nil
		}
		return fmt.Errorf("%w: %w", ErrAlertReceived, alert)
	case record.ContentHandshake:
	default:
		return fmt.Errorf("%w: %s record during handshake", ErrUnexpectedMessage, rec.Type)
	}

	if m.records.Mode() == record.ModeStream {
		m.stream.add(rec.Payload)
		return nil
	}

	data := rec.Payload
	for len(data) > 0 {
		f, rest, err := parseFragment(data)
		if err != nil {
			return err
		}
		dup, err := m.reasm.add(f)
		if err != nil {
			return err
		}
		if dup {
			if err := m.onDuplicate(f); err != nil {
				return err
			}
		}
		data = rest
	}
	return nil
}

// onDuplicate reacts to a retransmitted message. A server still waiting
// for the client's second flight resends its own flight when the
// ClientHello shows up again; every other duplicate is dropped.
func (m *Machine) onDuplicate(f fragment) error {
	if m.log != nil {
		m.log.Tracef("%s: duplicate %s seq=%d", m.role, f.typ, f.seq)
	}
	if m.role == RoleServer && m.state == StateSentServerHelloCert && f.typ == TypeClientHello && f.offset == 0 {
		if m.records.Pending() {
			return nil
		}
		return m.Retransmit()
	}
	return nil
}

// expect asserts the message type.
func expect(in inbound, t MessageType) error {
	if in.typ != t {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedMessage, in.typ, t)
	}
	return nil
}

// acceptPeerChain validates a presented chain and extracts the signing key.
func (m *Machine) acceptPeerChain(chain [][]byte) error {
	usage := x509.ExtKeyUsageServerAuth
	if m.role == RoleServer {
		usage = x509.ExtKeyUsageClientAuth
	}

	var (
		certs []*x509.Certificate
		err   error
	)
	if m.config.Verify == VerifyPeer {
		if m.config.Credentials == nil {
			return fmt.Errorf("%w: %w", ErrBadCertificate, credentials.ErrNoTrustedRoots)
		}
		certs, err = m.config.Credentials.VerifyPeer(chain, usage, m.config.Now())
	} else {
		certs, err = credentials.ParseChain(chain)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadCertificate, err)
	}
	key, err := credentials.PublicKey(certs[0])
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadCertificate, err)
	}
	m.peerChain = certs
	m.peerKey = key
	if m.log != nil {
		m.log.Debugf("%s: peer certificate %q accepted (verify=%s)", m.role, certs[0].Subject.CommonName, m.config.Verify)
	}
	return nil
}

// verifyPeerSignature checks the peer CertificateVerify against the
// transcript preceding it.
func (m *Machine) verifyPeerSignature(in inbound) error {
	var cv CertificateVerify
	if err := cv.Unmarshal(in.body); err != nil {
		return err
	}
	th, err := m.transcript.sum(m.suite.Hash())
	if err != nil {
		return err
	}
	peer := RoleServer
	if m.role == RoleServer {
		peer = RoleClient
	}
	return verifyTranscript(m.peerKey, peer, th, &cv)
}

// emitCertificateVerify signs the transcript with the local key.
func (m *Machine) emitCertificateVerify() error {
	th, err := m.transcript.sum(m.suite.Hash())
	if err != nil {
		return err
	}
	cv, err := signTranscript(m.config.Credentials.PrivateKey, m.role, th)
	if err != nil {
		return err
	}
	return m.emit(cv)
}

// deriveFinishedKeys runs after ServerHello entered the transcript.
func (m *Machine) deriveFinishedKeys(shared []byte) error {
	defer clear(shared)
	h := m.suite.Hash()
	m.schedule = NewKeySchedule(h, shared)
	helloHash, err := m.transcript.sum(h)
	if err != nil {
		return err
	}
	if m.clientFinKey, err = m.schedule.FinishedKey(RoleClient, helloHash); err != nil {
		return err
	}
	m.serverFinKey, err = m.schedule.FinishedKey(RoleServer, helloHash)
	return err
}

// finishedMAC computes the verify_data of role over the current transcript.
func (m *Machine) finishedMAC(role Role) ([]byte, error) {
	h := m.suite.Hash()
	th, err := m.transcript.sum(h)
	if err != nil {
		return nil, err
	}
	key := m.clientFinKey
	if role == RoleServer {
		key = m.serverFinKey
	}
	return FinishedMAC(h, key, th), nil
}

// checkFinished verifies the peer Finished and adds it to the transcript.
func (m *Machine) checkFinished(in inbound, peer Role) error {
	if err := expect(in, TypeFinished); err != nil {
		return err
	}
	var fin Finished
	if err := fin.Unmarshal(in.body); err != nil {
		return err
	}
	want, err := m.finishedMAC(peer)
	if err != nil {
		return err
	}
	if !crypto.HMACEqual(want, fin.VerifyData) {
		return ErrBadFinished
	}
	m.transcript.add(in.raw())
	return nil
}

// establish derives the traffic keys from the full transcript and
// installs them in the record layer.
func (m *Machine) establish() error {
	th, err := m.transcript.sum(m.suite.Hash())
	if err != nil {
		return err
	}
	keys, err := m.schedule.TrafficKeys(m.suite, th)
	if err != nil {
		return err
	}
	defer keys.Zeroize()
	read, write, err := keys.Protections(m.role)
	if err != nil {
		return err
	}
	m.records.InstallKeys(read, write)

	m.keyShare.Zeroize()
	m.keyShare = nil
	m.schedule.Zeroize()
	clear(m.clientFinKey)
	clear(m.serverFinKey)
	m.transcript.reset()
	if m.role == RoleServer {
		m.lastFlight = nil
	}

	m.setState(StateEstablished)
	if m.log != nil {
		m.log.Infof("%s handshake established: %s, %s", m.role, m.suite, m.group)
	}
	return nil
}

func (m *Machine) random(dst []byte) error {
	if _, err := io.ReadFull(m.config.Rand, dst); err != nil {
		return fmt.Errorf("handshake: reading random: %w", err)
	}
	return nil
}
