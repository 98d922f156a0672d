package handshake

import (
	"fmt"
	"slices"

	"github.com/backkem/tinytls/pkg/crypto"
)

func (m *Machine) serverStep() error {
	if m.state == StateReceivedHello {
		return m.sendServerFlight()
	}
	if m.state == StateReceivedClientFinished {
		return m.establish()
	}

	in, err := m.nextMessage()
	if err != nil {
		return err
	}
	switch m.state {
	case StateInit:
		return m.handleClientHello(in)
	case StateSentServerHelloCert:
		return m.handleClientFlight(in)
	default:
		return fmt.Errorf("%w: server in %s", ErrInvalidState, m.state)
	}
}

// handleClientHello negotiates the suite in server preference order and
// completes the key exchange on the client's key share. There is no
// hello retry: the share must be for a group the server accepts.
func (m *Machine) handleClientHello(in inbound) error {
	if err := expect(in, TypeClientHello); err != nil {
		return err
	}
	var ch ClientHello
	if err := ch.Unmarshal(in.body); err != nil {
		return err
	}
	if ch.Version != m.config.Version {
		return fmt.Errorf("%w: %#04x", ErrVersionMismatch, ch.Version)
	}

	suite, ok := negotiate(m.config.CipherSuites, ch.CipherSuites, CipherSuite.Supported)
	if !ok {
		return fmt.Errorf("%w: client offered %v", ErrNoCommonSuite, ch.CipherSuites)
	}
	if !slices.Contains(m.config.Groups, ch.KeyShareGroup) || !slices.Contains(ch.Groups, ch.KeyShareGroup) {
		return fmt.Errorf("%w: client key share is %s", ErrNoCommonGroup, ch.KeyShareGroup)
	}
	ks, err := crypto.GenerateKeyShare(ch.KeyShareGroup, m.config.Rand)
	if err != nil {
		return err
	}
	m.keyShare = ks
	shared, err := ks.SharedSecret(ch.KeyShare)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadKeyShare, err)
	}

	m.suite = suite
	m.group = ch.KeyShareGroup
	m.clientRandom = ch.Random
	m.shared = shared
	m.transcript.add(in.raw())
	m.setState(StateReceivedHello)
	return nil
}

// sendServerFlight builds ServerHello through Finished as one flight.
func (m *Machine) sendServerFlight() error {
	if err := m.random(m.serverRandom[:]); err != nil {
		return err
	}
	sh := &ServerHello{
		Version:     m.config.Version,
		Random:      m.serverRandom,
		CipherSuite: m.suite,
		Group:       m.group,
		KeyShare:    m.keyShare.PublicKey(),
	}
	if err := m.emit(sh); err != nil {
		return err
	}
	shared := m.shared
	m.shared = nil
	if err := m.deriveFinishedKeys(shared); err != nil {
		return err
	}

	if err := m.emit(&Certificate{Chain: m.config.Credentials.ChainDER()}); err != nil {
		return err
	}
	if m.config.Verify == VerifyPeer || m.config.FailIfNoPeerCert {
		m.certRequested = true
		if err := m.emit(&CertificateRequest{Schemes: SupportedSignatureSchemes}); err != nil {
			return err
		}
	}
	if err := m.emitCertificateVerify(); err != nil {
		return err
	}
	mac, err := m.finishedMAC(RoleServer)
	if err != nil {
		return err
	}
	if err := m.emit(&Finished{VerifyData: mac}); err != nil {
		return err
	}
	if err := m.sendFlight(); err != nil {
		return err
	}
	m.setState(StateSentServerHelloCert)
	return nil
}

// handleClientFlight consumes the client's Certificate and
// CertificateVerify when requested, then its Finished.
func (m *Machine) handleClientFlight(in inbound) error {
	switch in.typ {
	case TypeCertificate:
		if !m.certRequested || m.peerCertSeen {
			break
		}
		var cert Certificate
		if err := cert.Unmarshal(in.body); err != nil {
			return err
		}
		m.peerCertSeen = true
		if len(cert.Chain) == 0 {
			if m.config.FailIfNoPeerCert {
				return ErrNoPeerCertificate
			}
			if m.log != nil {
				m.log.Infof("server: client sent no certificate, continuing unauthenticated")
			}
		} else if err := m.acceptPeerChain(cert.Chain); err != nil {
			return err
		}
		m.transcript.add(in.raw())
		return nil

	case TypeCertificateVerify:
		if m.peerKey == nil || m.peerVerified {
			break
		}
		if err := m.verifyPeerSignature(in); err != nil {
			return err
		}
		m.peerVerified = true
		m.transcript.add(in.raw())
		return nil

	case TypeFinished:
		if m.certRequested && !m.peerCertSeen {
			if m.config.FailIfNoPeerCert {
				return fmt.Errorf("%w: Finished without Certificate", ErrNoPeerCertificate)
			}
			break
		}
		if m.peerKey != nil && !m.peerVerified {
			break
		}
		if err := m.checkFinished(in, RoleClient); err != nil {
			return err
		}
		m.setState(StateReceivedClientFinished)
		return nil
	}
	return fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, in.typ, m.state)
}

// negotiate returns the first local preference the peer offered.
func negotiate[T comparable](local, offered []T, usable func(T) bool) (T, bool) {
	for _, v := range local {
		if usable(v) && slices.Contains(offered, v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
