package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Datagram is a message-preserving Transport over a net.PacketConn bound
// to a single peer. A Datagram created without a peer adopts the source
// of the first datagram it receives, which is how a server learns its
// client.
type Datagram struct {
	conn        net.PacketConn
	nonBlocking bool
	pollTimeout time.Duration
	readTimeout time.Duration
	log         logging.LeveledLogger

	mu   sync.RWMutex
	peer net.Addr
}

// DatagramConfig configures a Datagram transport.
type DatagramConfig struct {
	// Conn is an optional pre-existing PacketConn to use.
	// If nil, a new connection will be created using ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the address to listen on (e.g., ":11111").
	// Ignored if Conn is provided.
	ListenAddr string

	// Peer is the remote address. If nil, it is learned from the first
	// received datagram.
	Peer net.Addr

	// NonBlocking makes Receive return ErrWantRead instead of blocking.
	NonBlocking bool

	// PollTimeout is the deadline used in non-blocking mode.
	// Default: DefaultPollTimeout
	PollTimeout time.Duration

	// ReadTimeout bounds a blocking Receive; expiry is reported as
	// ErrTimeout so the caller can retransmit. Zero waits forever.
	ReadTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewDatagram creates a datagram transport with the given configuration.
func NewDatagram(config DatagramConfig) (*Datagram, error) {
	d := &Datagram{
		conn:        config.Conn,
		nonBlocking: config.NonBlocking,
		pollTimeout: config.PollTimeout,
		readTimeout: config.ReadTimeout,
		peer:        config.Peer,
	}
	if d.pollTimeout <= 0 {
		d.pollTimeout = DefaultPollTimeout
	}

	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("transport-datagram")
	}

	if d.conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		d.conn = conn
	}

	return d, nil
}

// DialDatagram opens an ephemeral UDP socket bound to the peer at addr.
func DialDatagram(addr string, config DatagramConfig) (*Datagram, error) {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	config.Peer = peer
	return NewDatagram(config)
}

// Datagram reports true: one Send is one datagram.
func (d *Datagram) Datagram() bool { return true }

// Send writes p as a single datagram to the peer.
func (d *Datagram) Send(p []byte) (int, error) {
	peer := d.Peer()
	if peer == nil {
		return 0, wrap(ErrGeneral, ErrNoPeer)
	}
	if len(p) > MaxDatagramSize {
		return 0, ErrGeneral
	}

	n, err := d.conn.WriteTo(p, peer)
	if err != nil {
		if d.log != nil {
			d.log.Warnf("send failed: %v", err)
		}
		return 0, Classify(err, true)
	}
	if d.log != nil {
		d.log.Tracef("sent %d bytes to %v", n, peer)
	}
	return n, nil
}

// Receive reads the next datagram from the peer into p. Datagrams from
// other sources are discarded. A datagram larger than p is truncated.
func (d *Datagram) Receive(p []byte) (int, error) {
	for {
		switch {
		case d.nonBlocking:
			_ = d.conn.SetReadDeadline(time.Now().Add(d.pollTimeout))
		case d.readTimeout > 0:
			_ = d.conn.SetReadDeadline(time.Now().Add(d.readTimeout))
		}

		n, addr, err := d.conn.ReadFrom(p)
		if err != nil {
			code := Classify(err, false)
			if d.nonBlocking && Code(code) == ErrTimeout {
				return 0, wrap(ErrWantRead, err)
			}
			if d.log != nil {
				d.log.Debugf("receive: %v", code)
			}
			return 0, code
		}

		if !d.acceptFrom(addr) {
			if d.log != nil {
				d.log.Debugf("dropping %d bytes from unknown peer %v", n, addr)
			}
			if d.nonBlocking {
				return 0, ErrWantRead
			}
			continue
		}

		if d.log != nil {
			d.log.Tracef("received %d bytes from %v", n, addr)
		}
		if n == 0 {
			return 0, ErrWantRead
		}
		return n, nil
	}
}

func (d *Datagram) acceptFrom(addr net.Addr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.peer == nil {
		d.peer = addr
		return true
	}
	return addr == nil || addr.String() == d.peer.String()
}

// Peer returns the remote address, or nil if it is not known yet.
func (d *Datagram) Peer() net.Addr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.peer
}

// SetPeer changes the remote address.
func (d *Datagram) SetPeer(addr net.Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peer = addr
}

// LocalAddr returns the local address the transport is bound to.
func (d *Datagram) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

// Close closes the underlying connection.
func (d *Datagram) Close() error {
	_ = d.conn.SetReadDeadline(time.Now())
	return d.conn.Close()
}
