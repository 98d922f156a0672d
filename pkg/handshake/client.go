package handshake

import (
	"fmt"
	"slices"

	"github.com/backkem/tinytls/pkg/crypto"
)

func (m *Machine) clientStep() error {
	if m.state == StateInit {
		return m.sendClientHello()
	}
	if m.state == StateSentFinished {
		return m.establish()
	}

	in, err := m.nextMessage()
	if err != nil {
		return err
	}
	switch m.state {
	case StateSentHello:
		return m.handleServerHello(in)
	case StateReceivedServerHello:
		return m.handleServerAuth(in)
	case StateVerifiedCert:
		if err := m.checkFinished(in, RoleServer); err != nil {
			return err
		}
		return m.sendClientFinished()
	default:
		return fmt.Errorf("%w: client in %s", ErrInvalidState, m.state)
	}
}

// sendClientHello offers the configured suites and groups with one key
// share for the preferred group.
func (m *Machine) sendClientHello() error {
	group := m.config.Groups[0]
	ks, err := crypto.GenerateKeyShare(group, m.config.Rand)
	if err != nil {
		return err
	}
	m.keyShare = ks
	if err := m.random(m.clientRandom[:]); err != nil {
		return err
	}

	ch := &ClientHello{
		Version:       m.config.Version,
		Random:        m.clientRandom,
		CipherSuites:  m.config.CipherSuites,
		Groups:        m.config.Groups,
		KeyShareGroup: group,
		KeyShare:      ks.PublicKey(),
	}
	if err := m.emit(ch); err != nil {
		return err
	}
	if err := m.sendFlight(); err != nil {
		return err
	}
	m.setState(StateSentHello)
	return nil
}

func (m *Machine) handleServerHello(in inbound) error {
	if err := expect(in, TypeServerHello); err != nil {
		return err
	}
	var sh ServerHello
	if err := sh.Unmarshal(in.body); err != nil {
		return err
	}
	if sh.Version != m.config.Version {
		return fmt.Errorf("%w: %#04x", ErrVersionMismatch, sh.Version)
	}
	if !slices.Contains(m.config.CipherSuites, sh.CipherSuite) || !sh.CipherSuite.Supported() {
		return fmt.Errorf("%w: server chose %s", ErrNoCommonSuite, sh.CipherSuite)
	}
	if sh.Group != m.keyShare.Group() {
		return fmt.Errorf("%w: server chose %s, offered %s", ErrNoCommonGroup, sh.Group, m.keyShare.Group())
	}
	shared, err := m.keyShare.SharedSecret(sh.KeyShare)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadKeyShare, err)
	}

	m.suite = sh.CipherSuite
	m.group = sh.Group
	m.serverRandom = sh.Random
	m.transcript.add(in.raw())
	if err := m.deriveFinishedKeys(shared); err != nil {
		return err
	}
	m.setState(StateReceivedServerHello)
	return nil
}

// handleServerAuth consumes Certificate, an optional CertificateRequest
// and CertificateVerify, one message per step.
func (m *Machine) handleServerAuth(in inbound) error {
	switch in.typ {
	case TypeCertificate:
		if m.peerCertSeen {
			break
		}
		var cert Certificate
		if err := cert.Unmarshal(in.body); err != nil {
			return err
		}
		if len(cert.Chain) == 0 {
			return fmt.Errorf("%w: server must authenticate", ErrNoPeerCertificate)
		}
		if err := m.acceptPeerChain(cert.Chain); err != nil {
			return err
		}
		m.peerCertSeen = true
		m.transcript.add(in.raw())
		return nil

	case TypeCertificateRequest:
		if !m.peerCertSeen || m.certRequested {
			break
		}
		var req CertificateRequest
		if err := req.Unmarshal(in.body); err != nil {
			return err
		}
		m.certRequested = true
		m.requestedSchemes = req.Schemes
		m.transcript.add(in.raw())
		return nil

	case TypeCertificateVerify:
		if !m.peerCertSeen {
			break
		}
		if err := m.verifyPeerSignature(in); err != nil {
			return err
		}
		m.peerVerified = true
		m.transcript.add(in.raw())
		m.setState(StateVerifiedCert)
		return nil
	}
	return fmt.Errorf("%w: %s in %s", ErrUnexpectedMessage, in.typ, m.state)
}

// sendClientFinished answers a CertificateRequest, if any, and finishes.
func (m *Machine) sendClientFinished() error {
	if m.certRequested {
		var chain [][]byte
		if m.canAuthenticate() {
			chain = m.config.Credentials.ChainDER()
		}
		if err := m.emit(&Certificate{Chain: chain}); err != nil {
			return err
		}
		if len(chain) > 0 {
			if err := m.emitCertificateVerify(); err != nil {
				return err
			}
		}
	}

	mac, err := m.finishedMAC(RoleClient)
	if err != nil {
		return err
	}
	if err := m.emit(&Finished{VerifyData: mac}); err != nil {
		return err
	}
	if err := m.sendFlight(); err != nil {
		return err
	}
	m.setState(StateSentFinished)
	return nil
}

// canAuthenticate reports whether the local identity signs with a scheme
// the server asked for.
func (m *Machine) canAuthenticate() bool {
	if !m.config.Credentials.HasIdentity() {
		return false
	}
	scheme := SchemeForCurve(m.config.Credentials.PrivateKey.Curve)
	return slices.Contains(m.requestedSchemes, scheme)
}
