package tinytls

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/backkem/tinytls/pkg/credentials"
	"github.com/backkem/tinytls/pkg/crypto"
	"github.com/backkem/tinytls/pkg/handshake"
	"github.com/google/uuid"
	"github.com/pion/logging"
)

// Context is the validated, read-only configuration shared by sessions.
// It is safe for concurrent use.
type Context struct {
	config Config
	creds  *credentials.Credentials
	log    logging.LeveledLogger
	closed atomic.Bool
}

// NewContext validates config and loads its credentials. All
// configuration errors are reported here, before any network I/O.
func NewContext(config Config) (*Context, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	config = config.withDefaults()

	var creds *credentials.Credentials
	if !config.Files.IsZero() || !config.Buffers.IsZero() {
		var err error
		creds, err = credentials.Load(config.Files, config.Buffers)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if config.Verify == VerifyPeer && !creds.HasRoots() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoTrustedRoots)
	}

	c := &Context{config: config, creds: creds}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("tinytls")
	}
	if c.log != nil {
		c.log.Debugf("context: %s version=%#04x verify=%s identity=%t", config.Protocol, config.Version, config.Verify, creds.HasIdentity())
	}
	return c, nil
}

// Config returns a copy of the effective configuration.
func (c *Context) Config() Config {
	cfg := c.config
	cfg.CipherSuites = slices.Clone(cfg.CipherSuites)
	cfg.Groups = slices.Clone(cfg.Groups)
	return cfg
}

// Credentials returns the loaded credentials, or nil.
func (c *Context) Credentials() *credentials.Credentials { return c.creds }

// Close marks the context closed. Existing sessions are unaffected; new
// sessions cannot be created.
func (c *Context) Close() error {
	c.closed.Store(true)
	return nil
}

// NewSession creates a session for role. The transport comes from the
// Config's factory, if any, or from Session.SetTransport.
func (c *Context) NewSession(role Role) (*Session, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	if role != RoleClient && role != RoleServer {
		return nil, fmt.Errorf("%w: %s", ErrWrongRole, role)
	}
	if role == RoleServer && !c.creds.HasIdentity() {
		return nil, ErrNoIdentity
	}

	s := &Session{ctx: c, role: role, id: uuid.New()}
	if c.config.Transport != nil {
		tr, err := c.config.Transport()
		if err != nil {
			return nil, fmt.Errorf("tinytls: opening transport: %w", err)
		}
		s.tr = tr
	}
	if c.config.LoggerFactory != nil {
		s.log = c.config.LoggerFactory.NewLogger("tinytls-session")
	}
	if s.log != nil {
		s.log.Debugf("session %s: created %s", s.id, role)
	}
	return s, nil
}

// hashFunc routes transcript hashing through the crypto device.
func (c *Context) hashFunc() handshake.HashFunc {
	dev := c.config.CryptoDevice
	if dev == nil {
		return nil
	}
	return func(h crypto.Hash, data []byte) ([]byte, error) {
		sum, err := dev.Hash(h, data)
		if errors.Is(err, ErrCryptoUnavailable) {
			return h.Sum(data), nil
		}
		if err != nil {
			return nil, fmt.Errorf("tinytls: crypto device: %w", err)
		}
		return sum, nil
	}
}
