package tinytls

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/handshake"
	"github.com/backkem/tinytls/pkg/record"
	"github.com/backkem/tinytls/pkg/transport"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Session is one TLS or DTLS connection. It is driven by a single
// goroutine and has no internal locking.
type Session struct {
	ctx  *Context
	role Role
	id   uuid.UUID
	tr   transport.Transport
	log  logging.LeveledLogger

	layer   *record.Layer
	machine *handshake.Machine

	plain        []byte
	pendingWrite int
	peerClosed   bool
	freed        bool
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Role returns the session role.
func (s *Session) Role() Role { return s.role }

// State returns the handshake state.
func (s *Session) State() State {
	if s.machine == nil {
		if s.freed {
			return handshake.StateClosed
		}
		return handshake.StateInit
	}
	return s.machine.State()
}

// CipherSuite returns the negotiated suite, or 0 before negotiation.
func (s *Session) CipherSuite() CipherSuite {
	if s.machine == nil {
		return 0
	}
	return s.machine.CipherSuite()
}

// Group returns the negotiated key exchange group, or 0 before
// negotiation.
func (s *Session) Group() crypto.Group {
	if s.machine == nil {
		return 0
	}
	return s.machine.Group()
}

// Version returns the protocol version.
func (s *Session) Version() uint16 { return s.ctx.config.Version }

// PeerCertificates returns the peer chain, leaf first, once received.
func (s *Session) PeerCertificates() []*x509.Certificate {
	if s.machine == nil {
		return nil
	}
	return s.machine.PeerCertificates()
}

// SetTransport replaces the transport used by this session. The Context
// and other sessions are unaffected.
func (s *Session) SetTransport(t transport.Transport) {
	s.tr = t
	if s.layer != nil {
		s.layer.SetTransport(t)
	}
}

// Connect runs the client handshake. It returns nil once ESTABLISHED and
// otherwise the last error; a retryable error means Connect should be
// called again when the transport is ready.
func (s *Session) Connect() error {
	return s.handshake(RoleClient)
}

// Accept runs the server handshake with the same contract as Connect.
func (s *Session) Accept() error {
	return s.handshake(RoleServer)
}

func (s *Session) handshake(role Role) error {
	if s.role != role {
		return fmt.Errorf("%w: %s session", ErrWrongRole, s.role)
	}
	if s.freed {
		return ErrSessionClosed
	}
	if err := s.start(); err != nil {
		return err
	}
	err := s.machine.Run()
	if err != nil && s.log != nil && !transport.IsRetryable(err) {
		s.log.Warnf("session %s: handshake in %s: %v", s.id, s.machine.State(), err)
	}
	return err
}

// start builds the record layer and handshake machine on first use.
func (s *Session) start() error {
	if s.machine != nil {
		return nil
	}
	if s.tr == nil {
		return ErrNoTransport
	}
	cfg := s.ctx.config
	layer, err := record.NewLayer(record.Config{
		Transport:     s.tr,
		Mode:          cfg.Protocol.mode(),
		Version:       cfg.Version,
		MaxFragment:   cfg.MaxFragment,
		LoggerFactory: cfg.LoggerFactory,
	})
	if err != nil {
		return err
	}
	m, err := handshake.NewMachine(handshake.Config{
		Role:             s.role,
		Records:          layer,
		Credentials:      s.ctx.creds,
		Verify:           cfg.Verify,
		FailIfNoPeerCert: cfg.FailIfNoPeerCert,
		Version:          cfg.Version,
		CipherSuites:     cfg.CipherSuites,
		Groups:           cfg.Groups,
		Hash:             s.ctx.hashFunc(),
		Rand:             cfg.Rand,
		Now:              cfg.Now,
		LoggerFactory:    cfg.LoggerFactory,
	})
	if err != nil {
		return err
	}
	s.layer = layer
	s.machine = m
	return nil
}

// ready reports whether application data may flow.
func (s *Session) ready() error {
	if s.freed {
		return ErrSessionClosed
	}
	if s.machine == nil {
		return ErrNotReady
	}
	switch s.machine.State() {
	case handshake.StateEstablished:
		return nil
	case handshake.StateClosed:
		return ErrSessionClosed
	case handshake.StateFailed:
		return fmt.Errorf("%w: %w", ErrSessionFailed, s.machine.Err())
	default:
		return ErrNotReady
	}
}

// Write sends p as application data, split across records as needed. A
// zero-length write sends nothing. After a retryable error the caller
// must repeat Write with the same data; the records are already queued
// and are only flushed.
func (s *Session) Write(p []byte) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if len(p) == 0 && s.pendingWrite == 0 {
		return 0, nil
	}
	if s.pendingWrite == 0 {
		if err := s.layer.Queue(record.ContentApplicationData, p); err != nil {
			return 0, s.machine.HandleError(err)
		}
		s.pendingWrite = len(p)
	}
	if err := s.layer.Flush(); err != nil {
		return 0, s.machine.HandleError(err)
	}
	n := s.pendingWrite
	s.pendingWrite = 0
	return n, nil
}

// Read returns buffered application data, reading records as needed. It
// returns at most len(p) bytes and keeps the rest for the next call.
// After the peer's close_notify it returns io.EOF.
func (s *Session) Read(p []byte) (int, error) {
	if err := s.ready(); err != nil {
		if s.peerClosed && errors.Is(err, ErrSessionClosed) && !s.freed {
			return 0, io.EOF
		}
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.plain) == 0 {
		rec, err := s.layer.ReadRecord()
		if err != nil {
			return 0, s.machine.HandleError(err)
		}
		if err := s.handleRecord(rec); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.plain)
	s.plain = s.plain[n:]
	return n, nil
}

func (s *Session) handleRecord(rec record.Record) error {
	switch rec.Type {
	case record.ContentApplicationData:
		s.plain = rec.Payload
		return nil
	case record.ContentAlert:
		alert, err := record.ParseAlert(rec.Payload)
		if err != nil {
			return s.machine.HandleError(err)
		}
		if alert.IsCloseNotify() {
			if s.log != nil {
				s.log.Infof("session %s: peer sent close_notify", s.id)
			}
			s.peerClosed = true
			s.machine.HandleError(alert)
			return io.EOF
		}
		if alert.Level == record.AlertLevelWarning {
			return nil
		}
		return s.machine.HandleError(fmt.Errorf("%w: %w", handshake.ErrAlertReceived, alert))
	case record.ContentHandshake:
		if err := s.machine.HandleRecord(rec); err != nil {
			return s.machine.HandleError(err)
		}
		return nil
	default:
		return s.machine.HandleError(fmt.Errorf("%w: %s record", handshake.ErrUnexpectedMessage, rec.Type))
	}
}

// HandleTimeout retransmits the last handshake flight in DTLS. The
// caller invokes it when a read timed out; it is a no-op for TLS and
// for established servers.
func (s *Session) HandleTimeout() error {
	if s.freed {
		return ErrSessionClosed
	}
	if s.machine == nil {
		return ErrNotReady
	}
	err := s.machine.Retransmit()
	if errors.Is(err, handshake.ErrNothingToRetransmit) {
		return nil
	}
	return err
}

// Shutdown sends close_notify, ignoring transport errors, and moves the
// session to CLOSED. Later Read and Write calls fail with
// ErrSessionClosed.
func (s *Session) Shutdown() error {
	if s.freed {
		return ErrSessionClosed
	}
	if s.machine == nil {
		s.freed = true
		return nil
	}
	if s.machine.State() == handshake.StateEstablished {
		alert := record.Alert{Level: record.AlertLevelWarning, Description: record.AlertCloseNotify}
		if err := s.layer.Queue(record.ContentAlert, alert.Marshal()); err == nil {
			if err := s.layer.Flush(); err != nil && s.log != nil {
				s.log.Debugf("session %s: close_notify not delivered: %v", s.id, err)
			}
		}
	}
	s.machine.Close()
	s.layer.Zeroize()
	s.peerClosed = false
	if s.log != nil {
		s.log.Debugf("session %s: shut down", s.id)
	}
	return nil
}

// Close releases the session and zeroizes all key material. It is safe
// at any point, including mid-handshake, and idempotent. The transport is
// not closed.
func (s *Session) Close() error {
	if s.freed {
		return nil
	}
	s.freed = true
	if s.machine != nil {
		s.machine.Close()
		s.layer.Zeroize()
	}
	clear(s.plain)
	s.plain = nil
	s.machine = nil
	s.layer = nil
	return nil
}
